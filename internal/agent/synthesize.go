package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// maxResultRows caps how many result rows are rendered into the synthesis
// prompt. Aggregate queries rarely come close; this guards against a
// runaway SELECT blowing the token budget.
const maxResultRows = 50

// citationScoreFloor filters which retrieved chunks earn a citation. Chunks
// at or below this score contributed noise, not evidence.
const citationScoreFloor = 0.1

type synthesisReply struct {
	Answer      json.RawMessage `json:"answer"`
	Explanation string          `json:"explanation"`
}

// synthesize turns the gathered evidence into the final AnswerRecord: a
// model call for the answer text and explanation, then deterministic
// coercion, confidence scoring and citation assembly.
func (a *Agent) synthesize(ctx context.Context, q model.Question, chunks []model.RetrievedChunk, attempt model.QueryAttempt, exec *model.ExecutionResult, repairs int) (*model.AnswerRecord, error) {
	prompt := fmt.Sprintf(synthesizeUserPrompt,
		q.Text,
		model.NormalizeHint(q.FormatHint),
		formatChunks(chunks),
		formatResult(exec))

	out, err := a.llm.complete(ctx, "synthesize",
		[]anthropic.SystemBlock{{Text: synthesizeSystemPrompt}},
		prompt)
	if err != nil {
		return nil, err
	}

	rawAnswer, explanation := parseSynthesis(out)
	answer, coerced := model.CoerceAnswer(rawAnswer, q.FormatHint)
	if !coerced {
		zap.L().Debug("answer coercion fell back to string",
			zap.String("question_id", q.ID),
			zap.String("format_hint", q.FormatHint))
	}

	rec := &model.AnswerRecord{
		QuestionID:  q.ID,
		FinalAnswer: answer,
		SQL:         attempt.SQL,
		Confidence:  scoreConfidence(chunks, exec, repairs),
		Explanation: explanation,
		Citations:   a.buildCitations(chunks, attempt.SQL, exec),
	}
	return rec, nil
}

// parseSynthesis splits a model reply into answer text and explanation. The
// reply should be a JSON object; if it is not, the whole completion is
// treated as the answer.
func parseSynthesis(out string) (answer, explanation string) {
	cleaned := stripJSONFence(out)
	var reply synthesisReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil || len(reply.Answer) == 0 {
		return out, ""
	}

	// A quoted answer unquotes to a plain string; any other JSON shape is
	// passed through verbatim for coercion to handle.
	var s string
	if err := json.Unmarshal(reply.Answer, &s); err == nil {
		return s, reply.Explanation
	}
	return string(reply.Answer), reply.Explanation
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "json"))
}

// scoreConfidence computes the answer confidence:
//
//	0.5 base
//	+0.3 when the query executed and returned rows
//	+0.2 * mean retrieval score
//	-0.1 per repair attempt
//
// clamped to [0,1]. Document-only answers use the same formula with the
// execution term absent.
func scoreConfidence(chunks []model.RetrievedChunk, exec *model.ExecutionResult, repairs int) float64 {
	c := 0.5
	if exec != nil && exec.OK() && exec.HasRows() {
		c += 0.3
	}
	c += 0.2 * model.MeanScore(chunks)
	c -= 0.1 * float64(repairs)
	return model.ClampConfidence(c)
}

// buildCitations collects chunk IDs that scored above the citation floor
// plus, when the query succeeded, every warehouse table referenced by the
// final SQL. The result is deduplicated and sorted.
func (a *Agent) buildCitations(chunks []model.RetrievedChunk, sql string, exec *model.ExecutionResult) []string {
	var cites []string
	for _, c := range chunks {
		if c.Score > citationScoreFloor {
			cites = append(cites, c.ID)
		}
	}
	if exec != nil && exec.OK() && sql != "" {
		lower := strings.ToLower(sql)
		for _, t := range a.tables {
			if strings.Contains(lower, strings.ToLower(t)) {
				cites = append(cites, t)
			}
		}
	}
	return model.FinalizeCitations(cites)
}

// formatResult renders an execution result for the synthesis prompt. Errors
// and empty results are stated explicitly so the model does not invent rows.
func formatResult(exec *model.ExecutionResult) string {
	switch {
	case exec == nil:
		return "(no query was run)"
	case !exec.OK():
		return fmt.Sprintf("(query failed: %s)", exec.Err)
	case !exec.HasRows():
		return "(query returned no rows)"
	}

	rows := exec.Rows
	truncated := false
	if len(rows) > maxResultRows {
		rows = rows[:maxResultRows]
		truncated = true
	}
	data, err := json.Marshal(map[string]any{
		"columns": exec.Columns,
		"rows":    rows,
	})
	if err != nil {
		return fmt.Sprintf("(result could not be rendered: %v)", err)
	}
	if truncated {
		return fmt.Sprintf("%s\n(%d further rows truncated)", data, len(exec.Rows)-maxResultRows)
	}
	return string(data)
}
