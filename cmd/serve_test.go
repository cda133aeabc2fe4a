package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sells-group/retail-copilot/internal/agent"
	"github.com/sells-group/retail-copilot/internal/config"
	"github.com/sells-group/retail-copilot/internal/retrieval"
	"github.com/sells-group/retail-copilot/internal/store"
	"github.com/sells-group/retail-copilot/internal/warehouse"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// scriptedLLM answers each call by matching a substring of the user prompt.
type scriptedLLM struct {
	replies map[string]string
}

func (s *scriptedLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	for marker, reply := range s.replies {
		if strings.Contains(prompt, marker) {
			return &anthropic.MessageResponse{
				Content: []anthropic.ContentBlock{{Type: "text", Text: reply}},
			}, nil
		}
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "retrieval"}},
	}, nil
}

func testEnv(t *testing.T) *agentEnv {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "returns_policy.md"),
		[]byte("Returns are accepted within 30 days of purchase."), 0o644))
	ret, err := retrieval.NewFromDir(dir)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`CREATE TABLE Orders (OrderID INTEGER PRIMARY KEY, Freight REAL);
		INSERT INTO Orders VALUES (1, 12.5);`)
	require.NoError(t, err)
	wh := warehouse.NewFromDB(db)

	st, err := store.NewSQLite(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	llm := &scriptedLLM{replies: map[string]string{
		"Classification:": "retrieval",
		"JSON response:":  `{"answer": "Returns are accepted within 30 days.", "explanation": "Stated in the returns policy."}`,
	}}

	c := &config.Config{}
	c.Anthropic.Model = "claude-haiku-4-5-20251001"
	c.Anthropic.MaxTokens = 512
	c.Anthropic.RequestsPerSec = 1000
	c.Anthropic.MaxRetries = 1
	c.Corpus.TopK = 3

	ag, err := agent.New(context.Background(), llm, ret, wh, c)
	require.NoError(t, err)

	return &agentEnv{Agent: ag, Store: st, Warehouse: wh, Retriever: ret}
}

func TestServeHealth(t *testing.T) {
	router := newRouter(testEnv(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Contains(t, rr.Body.String(), `"corpus":1`)
}

func TestServeAsk(t *testing.T) {
	env := testEnv(t)
	router := newRouter(env)

	body := strings.NewReader(`{"question": "what is the returns window?", "format_hint": "str"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", body)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Returns are accepted within 30 days.")
	assert.Contains(t, rr.Body.String(), `"confidence"`)

	// The answer is also persisted to history.
	entries, err := env.Store.ListAnswers(context.Background(), store.AnswerFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "what is the returns window?", entries[0].Question)
}

func TestServeAskRejectsBadRequests(t *testing.T) {
	router := newRouter(testEnv(t))

	for name, body := range map[string]string{
		"invalid json":     "{not json",
		"missing question": `{"format_hint": "str"}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestShutdownServerDrainsInFlightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)

	type result struct {
		status int
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, rErr := http.Get("http://" + ln.Addr().String() + "/slow")
		if rErr != nil {
			resCh <- result{err: rErr}
			return
		}
		resp.Body.Close()
		resCh <- result{status: resp.StatusCode}
	}()

	<-started
	done := make(chan struct{})
	go func() {
		shutdownServer(srv)
		close(done)
	}()

	// Shutdown must wait for the in-flight request, not abort it.
	select {
	case <-done:
		t.Fatal("shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	res := <-resCh
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
	<-done
}
