package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitecheck/internal/discover"
	"github.com/sells-group/sitecheck/internal/extract"
	"github.com/sells-group/sitecheck/internal/review"
	"github.com/sells-group/sitecheck/internal/runner"
	"github.com/sells-group/sitecheck/internal/store"
	"github.com/sells-group/sitecheck/internal/validator"
	"github.com/sells-group/sitecheck/internal/verdict"
	"github.com/sells-group/sitecheck/pkg/anthropic"
	"github.com/sells-group/sitecheck/pkg/browserless"
	"github.com/sells-group/sitecheck/pkg/jina"
	"github.com/sells-group/sitecheck/pkg/notion"
)

// pipelineEnv bundles everything a command needs to run validations.
type pipelineEnv struct {
	Store     store.Store
	Validator *validator.Validator
	Runner    *runner.Runner
}

func (e *pipelineEnv) Close() {
	_ = e.Store.Close()
}

// initStore opens the configured database backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "sqlite":
		return store.NewSQLite(ctx, cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline wires the full stack from config.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	browser := browserless.NewClient(cfg.Browserless.Key,
		browserless.WithBaseURL(cfg.Browserless.BaseURL))
	searcher := jina.NewClient(cfg.Jina.Key,
		jina.WithBaseURL(cfg.Jina.SearchBaseURL))
	llm := anthropic.NewClient(cfg.Anthropic.Key)

	prompts, err := verdict.LoadPrompts()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	ex := extract.New(browser, extract.Options{
		Timeout:           time.Duration(cfg.Validation.ExtractTimeoutSecs) * time.Second,
		CaptureScreenshot: cfg.Validation.CaptureScreenshot,
		MaxConcurrent:     cfg.Browserless.MaxConcurrent,
	})
	disc := discover.New(searcher, discover.Options{
		DirectoryBlocklist: cfg.Discovery.DirectoryBlocklist,
		MaxResults:         cfg.Discovery.MaxResults,
		SearchRateLimit:    cfg.Jina.RateLimit,
		ProbeTimeout:       time.Duration(cfg.Discovery.TimeoutSecs) * time.Second,
	})
	judge := verdict.New(llm, prompts, verdict.Options{
		Model:     cfg.Anthropic.JudgeModel,
		RateLimit: cfg.Anthropic.RateLimit,
	})

	v := validator.New(ex, disc, judge, validator.Options{
		VerdictTimeout: time.Duration(cfg.Validation.VerdictTimeoutSecs) * time.Second,
	})

	var sink review.Sink = review.NopSink{}
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		sink = review.NewNotionSink(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB)
	}

	r := runner.New(st, v, sink, runner.Options{
		MaxConcurrent: cfg.Runner.MaxConcurrent,
		MaxAttempts:   cfg.Runner.MaxAttempts,
	})

	return &pipelineEnv{Store: st, Validator: v, Runner: r}, nil
}
