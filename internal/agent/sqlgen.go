package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
)

// generateSQL produces the first query attempt for a question, grounded on
// the warehouse schema (cached in the system prompt), the planner's
// constraints, and any retrieved documentation.
func (a *Agent) generateSQL(ctx context.Context, question string, constraints model.Constraints, chunks []model.RetrievedChunk) (model.QueryAttempt, error) {
	prompt := fmt.Sprintf(generateUserPrompt,
		question,
		formatConstraints(constraints),
		formatChunks(chunks))

	out, err := a.llm.complete(ctx, "generate", a.schemaBlocks, prompt)
	if err != nil {
		return model.QueryAttempt{}, err
	}

	sql := cleanSQL(out)
	zap.L().Debug("generated sql", zap.String("sql", sql))
	return model.QueryAttempt{SQL: sql, Attempt: 0}, nil
}

// repairSQL asks the model to fix a failed query given the database error
// text. The schema stays in the system prompt so the repair can correct
// misspelled table or column names.
func (a *Agent) repairSQL(ctx context.Context, prior model.QueryAttempt, dbErr string) (model.QueryAttempt, error) {
	prompt := fmt.Sprintf(repairUserPrompt, prior.SQL, dbErr)

	out, err := a.llm.complete(ctx, "repair", a.schemaBlocks, prompt)
	if err != nil {
		return model.QueryAttempt{}, err
	}

	sql := cleanSQL(out)
	zap.L().Debug("repaired sql",
		zap.Int("attempt", prior.Attempt+1),
		zap.String("sql", sql))
	return model.QueryAttempt{SQL: sql, Attempt: prior.Attempt + 1}, nil
}

// cleanSQL strips markdown code fences and a leading "sql" language tag from
// model output, leaving a bare statement.
func cleanSQL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimPrefix(strings.TrimSpace(s), "sql")
	}
	return strings.TrimSpace(s)
}

// formatChunks renders retrieved chunks for a prompt, each labeled with its
// chunk ID so citations in explanations line up with source material.
func formatChunks(chunks []model.RetrievedChunk) string {
	if len(chunks) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s]\n%s", c.ID, c.Text)
	}
	return b.String()
}
