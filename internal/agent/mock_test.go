package agent

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/retail-copilot/internal/config"
	"github.com/sells-group/retail-copilot/internal/model"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// promptContains matches a single-turn request whose user prompt contains
// the given substring. Each pipeline stage has a distinctive prompt marker,
// so this is how tests bind canned replies to stages.
func promptContains(sub string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 && strings.Contains(req.Messages[0].Content, sub)
	})
}

const (
	routerMarker   = "Classification:"
	generateMarker = "SQLite query:"
	repairMarker   = "This SQLite query failed"
	synthMarker    = "JSON response:"
)

type fakeRetriever struct {
	chunks []model.RetrievedChunk
}

func (f *fakeRetriever) Search(query string, topK int) []model.RetrievedChunk {
	if len(f.chunks) > topK {
		return f.chunks[:topK]
	}
	return f.chunks
}

// fakeWarehouse returns scripted results in order and records every query it
// was asked to run.
type fakeWarehouse struct {
	schema  string
	tables  []string
	results []*model.ExecutionResult
	queries []string
}

func (f *fakeWarehouse) Tables(ctx context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeWarehouse) Schema(ctx context.Context) (string, error) { return f.schema, nil }

func (f *fakeWarehouse) Query(ctx context.Context, sqlText string) *model.ExecutionResult {
	f.queries = append(f.queries, sqlText)
	if len(f.results) == 0 {
		return &model.ExecutionResult{Err: "no scripted result"}
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"
	cfg.Anthropic.MaxTokens = 512
	cfg.Anthropic.RequestsPerSec = 1000
	cfg.Anthropic.MaxRetries = 1
	cfg.Corpus.TopK = 3
	return cfg
}

func newTestAgent(llm anthropic.Client, ret Retriever, wh Warehouse) (*Agent, error) {
	return New(context.Background(), llm, ret, wh, testConfig())
}
