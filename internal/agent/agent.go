package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/config"
	"github.com/sells-group/retail-copilot/internal/model"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// Retriever is the document search surface the agent needs.
type Retriever interface {
	Search(query string, topK int) []model.RetrievedChunk
}

// Warehouse is the read-only SQL surface the agent needs.
type Warehouse interface {
	Tables(ctx context.Context) ([]string, error)
	Schema(ctx context.Context) (string, error)
	Query(ctx context.Context, sqlText string) *model.ExecutionResult
}

// state names one stage of the pipeline. Transitions move strictly forward
// except for the executing/repairing cycle, which is bounded by
// model.MaxRepairs.
type state string

const (
	stateRouting  state = "routing"
	stateRetrieve state = "retrieving"
	statePlan     state = "planning"
	stateGenerate state = "generating"
	stateExecute  state = "executing"
	stateRepair   state = "repairing"
	stateSynth    state = "synthesizing"
	stateDone     state = "done"
)

// Agent drives one question through route → retrieve → plan → generate →
// execute (with bounded repair) → synthesize. A single Agent is safe for
// concurrent Answer calls: all mutable state lives in the per-call run.
type Agent struct {
	llm          *llmCaller
	retriever    Retriever
	warehouse    Warehouse
	topK         int
	tables       []string
	schemaBlocks []anthropic.SystemBlock
}

// New builds an Agent. The warehouse schema is introspected once here and
// reused as a cached system prompt for every generation and repair call.
func New(ctx context.Context, client anthropic.Client, retriever Retriever, wh Warehouse, cfg *config.Config) (*Agent, error) {
	schema, err := wh.Schema(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "agent: introspect schema")
	}
	tables, err := wh.Tables(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "agent: list tables")
	}

	topK := cfg.Corpus.TopK
	if topK <= 0 {
		topK = 3
	}

	return &Agent{
		llm:          newLLMCaller(client, cfg.Anthropic),
		retriever:    retriever,
		warehouse:    wh,
		topK:         topK,
		tables:       tables,
		schemaBlocks: anthropic.BuildCachedSystemBlocks(fmt.Sprintf(generateSystemPrompt, schema)),
	}, nil
}

// run is the mutable state of one Answer call.
type run struct {
	question model.Question
	state    state
	trace    []string

	route       model.Route
	chunks      []model.RetrievedChunk
	constraints model.Constraints
	attempt     model.QueryAttempt
	exec        *model.ExecutionResult
	repairs     int
	record      *model.AnswerRecord
}

func (r *run) step(s state, note string) {
	r.state = s
	if note != "" {
		r.trace = append(r.trace, fmt.Sprintf("%s: %s", s, note))
	} else {
		r.trace = append(r.trace, string(s))
	}
}

// Answer runs the full pipeline for one question and returns its record and
// the stage-by-stage trace. Infrastructure failures (model unreachable after
// retries, context cancelled) return an error; database errors never do —
// they feed the repair loop and, when repairs are exhausted, the synthesizer
// still produces a degraded record.
func (a *Agent) Answer(ctx context.Context, q model.Question) (*model.AnswerRecord, []string, error) {
	start := time.Now()
	r := &run{question: q, state: stateRouting}

	for r.state != stateDone {
		if err := ctx.Err(); err != nil {
			return nil, r.trace, eris.Wrap(err, "agent: answer")
		}
		if err := a.advance(ctx, r); err != nil {
			return nil, r.trace, err
		}
	}

	zap.L().Info("answered question",
		zap.String("question_id", q.ID),
		zap.String("route", string(r.route)),
		zap.Int("repairs", r.repairs),
		zap.Float64("confidence", r.record.Confidence),
		zap.Duration("elapsed", time.Since(start)))
	return r.record, r.trace, nil
}

// advance performs exactly one state transition.
func (a *Agent) advance(ctx context.Context, r *run) error {
	switch r.state {
	case stateRouting:
		route, err := a.route(ctx, r.question.Text)
		if err != nil {
			return err
		}
		r.route = route
		r.step(stateRetrieve, "route="+string(route))

	case stateRetrieve:
		r.chunks = a.retriever.Search(r.question.Text, a.topK)
		if r.route.NeedsSQL() {
			r.step(statePlan, fmt.Sprintf("%d chunks", len(r.chunks)))
		} else {
			// Document-only questions skip the whole SQL arm.
			r.step(stateSynth, fmt.Sprintf("%d chunks", len(r.chunks)))
		}

	case statePlan:
		r.constraints = plan(r.question.Text, r.chunks)
		r.step(stateGenerate, fmt.Sprintf("%d constraints", len(r.constraints)))

	case stateGenerate:
		attempt, err := a.generateSQL(ctx, r.question.Text, r.constraints, r.chunks)
		if err != nil {
			return err
		}
		r.attempt = attempt
		r.step(stateExecute, "")

	case stateExecute:
		r.exec = a.warehouse.Query(ctx, r.attempt.SQL)
		if r.exec.OK() {
			r.step(stateSynth, "rows="+fmt.Sprint(len(r.exec.Rows)))
		} else if r.repairs < model.MaxRepairs {
			r.step(stateRepair, r.exec.Err)
		} else {
			// Repairs exhausted: synthesize from whatever evidence exists.
			r.step(stateSynth, "repairs exhausted")
		}

	case stateRepair:
		attempt, err := a.repairSQL(ctx, r.attempt, r.exec.Err)
		if err != nil {
			return err
		}
		r.attempt = attempt
		r.repairs++
		r.step(stateExecute, fmt.Sprintf("repair %d", r.repairs))

	case stateSynth:
		rec, err := a.synthesize(ctx, r.question, r.chunks, r.attempt, r.exec, r.repairs)
		if err != nil {
			return err
		}
		r.record = rec
		r.step(stateDone, "")

	default:
		return eris.Errorf("agent: unknown state %q", r.state)
	}
	return nil
}
