package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/retail-copilot/internal/agent"
	"github.com/sells-group/retail-copilot/internal/retrieval"
	"github.com/sells-group/retail-copilot/internal/store"
	"github.com/sells-group/retail-copilot/internal/warehouse"
	"github.com/sells-group/retail-copilot/pkg/anthropic"
)

// agentEnv bundles the wired-up components a command needs.
type agentEnv struct {
	Agent     *agent.Agent
	Store     store.Store
	Warehouse *warehouse.Warehouse
	Retriever *retrieval.Retriever
}

func (e *agentEnv) Close() {
	if e.Store != nil {
		e.Store.Close()
	}
	if e.Warehouse != nil {
		e.Warehouse.Close()
	}
}

// initEnv opens the warehouse read-only, loads the document corpus, connects
// the answer store and builds the agent on top.
func initEnv(ctx context.Context) (*agentEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (COPILOT_ANTHROPIC_KEY)")
	}

	wh, err := warehouse.Open(cfg.Warehouse.Path)
	if err != nil {
		return nil, eris.Wrap(err, "open warehouse")
	}

	ret, err := retrieval.NewFromDir(cfg.Corpus.Dir)
	if err != nil {
		wh.Close()
		return nil, eris.Wrap(err, "load corpus")
	}

	st, err := initStore(ctx)
	if err != nil {
		wh.Close()
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		wh.Close()
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	client := anthropic.NewClient(cfg.Anthropic.Key)
	ag, err := agent.New(ctx, client, ret, wh, cfg)
	if err != nil {
		wh.Close()
		st.Close()
		return nil, err
	}

	return &agentEnv{
		Agent:     ag,
		Store:     st,
		Warehouse: wh,
		Retriever: ret,
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "copilot.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
