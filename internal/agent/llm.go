package agent

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/retail-copilot/internal/config"
	"github.com/sells-group/retail-copilot/internal/resilience"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// zeroTemp pins every call to temperature 0 so identical inputs produce
// identical answers.
var zeroTemp = func() *float64 { t := 0.0; return &t }()

type llmCaller struct {
	client  anthropic.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	model   string
	maxTok  int64
}

func newLLMCaller(client anthropic.Client, cfg config.AnthropicConfig) *llmCaller {
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("retrying model call",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 2.0
	}
	maxTok := cfg.MaxTokens
	if maxTok <= 0 {
		maxTok = 1024
	}
	return &llmCaller{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		retry:   retry,
		model:   cfg.Model,
		maxTok:  maxTok,
	}
}

// complete sends a single-turn prompt and returns the trimmed text of the
// response. Transient API failures are retried with backoff; a non-transient
// failure or retry exhaustion is returned to the caller. The phase label is
// attached to the cost log so spend can be attributed per pipeline stage.
func (l *llmCaller) complete(ctx context.Context, phase string, system []anthropic.SystemBlock, prompt string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "llm: rate limit wait")
	}

	req := anthropic.MessageRequest{
		Model:       l.model,
		MaxTokens:   l.maxTok,
		System:      system,
		Temperature: zeroTemp,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: prompt},
		},
	}

	resp, err := resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return l.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: create message")
	}

	resp.Usage.LogCost(l.model, phase)
	return strings.TrimSpace(resp.Text()), nil
}
