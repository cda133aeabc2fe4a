package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/retail-copilot/internal/model"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// route classifies a question by the evidence needed to answer it. The model
// output is normalized by substring match; anything unrecognized falls back
// to hybrid, which is always safe since it gathers both kinds of evidence.
func (a *Agent) route(ctx context.Context, question string) (model.Route, error) {
	out, err := a.llm.complete(ctx, "router",
		[]anthropic.SystemBlock{{Text: routerSystemPrompt}},
		fmt.Sprintf(routerUserPrompt, question))
	if err != nil {
		return "", err
	}

	r := normalizeRoute(out)
	zap.L().Debug("routed question",
		zap.String("raw", out),
		zap.String("route", string(r)))
	return r, nil
}

func normalizeRoute(raw string) model.Route {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "hybrid"):
		return model.RouteHybrid
	case strings.Contains(s, "sql"):
		return model.RouteSQL
	case strings.Contains(s, "retrieval"), strings.Contains(s, "rag"):
		return model.RouteRetrieval
	default:
		return model.RouteHybrid
	}
}
