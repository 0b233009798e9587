// Package runner drives validation over batches of businesses with bounded
// concurrency, per-business retries, and result persistence.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/resilience"
	"github.com/sells-group/sitecheck/internal/review"
	"github.com/sells-group/sitecheck/internal/store"
	"github.com/sells-group/sitecheck/internal/validator"
)

// Validator is the orchestrator surface the runner drives.
type Validator interface {
	Validate(ctx context.Context, b model.Business, log model.AttemptLog, opts validator.RunOptions) (*model.CompleteValidationResult, error)
}

// Options configures a Runner.
type Options struct {
	// MaxConcurrent bounds in-flight validations. Default: 5.
	MaxConcurrent int

	// MaxAttempts bounds pipeline retries per business on transient failure.
	// Default: 3.
	MaxAttempts int
}

// Stats summarizes a batch run.
type Stats struct {
	Processed int
	Valid     int
	Invalid   int
	Missing   int
	Errored   int
	Skipped   int
}

// Runner executes validations against the store.
type Runner struct {
	store     store.Store
	validator Validator
	sink      review.Sink
	opts      Options

	mu       sync.Mutex
	inflight map[string]bool
}

// New creates a Runner. A nil sink disables review notifications.
func New(st store.Store, v Validator, sink review.Sink, opts Options) *Runner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if sink == nil {
		sink = review.NopSink{}
	}
	return &Runner{
		store:     st,
		validator: v,
		sink:      sink,
		opts:      opts,
		inflight:  make(map[string]bool),
	}
}

// workStates are the states the pending queue draws from.
var workStates = []model.ValidationState{
	model.StatePending,
	model.StateNeedsDiscovery,
	model.StateDiscoveryQueued,
	model.StateInvalidTechnical,
}

// ProcessPending validates up to limit businesses that are waiting for work.
func (r *Runner) ProcessPending(ctx context.Context, limit int) (Stats, error) {
	businesses, err := r.store.ListByStatus(ctx, workStates, limit)
	if err != nil {
		return Stats{}, err
	}
	return r.ProcessBatch(ctx, businesses, validator.RunOptions{})
}

// ProcessBatch validates the given businesses with bounded concurrency. A
// business already being processed by another batch is skipped, never run
// twice at once. Per-business failures are recorded, not returned; the only
// error out of here is context cancellation.
func (r *Runner) ProcessBatch(ctx context.Context, businesses []model.Business, runOpts validator.RunOptions) (Stats, error) {
	var (
		statsMu sync.Mutex
		stats   Stats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrent)

	for _, b := range businesses {
		g.Go(func() error {
			outcome := r.processOne(ctx, b, runOpts)
			statsMu.Lock()
			stats.Processed++
			switch outcome {
			case model.VerdictValid:
				stats.Valid++
			case model.VerdictInvalid:
				stats.Invalid++
			case model.VerdictMissing:
				stats.Missing++
			case model.VerdictError:
				stats.Errored++
			default:
				stats.Skipped++
			}
			statsMu.Unlock()
			return ctx.Err()
		})
	}

	err := g.Wait()
	zap.L().Info("batch complete",
		zap.Int("processed", stats.Processed),
		zap.Int("valid", stats.Valid),
		zap.Int("invalid", stats.Invalid),
		zap.Int("missing", stats.Missing),
		zap.Int("errored", stats.Errored),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, err
}

// processOne runs the pipeline for one business and persists the outcome. The
// returned verdict is "" when the business was skipped.
func (r *Runner) processOne(ctx context.Context, b model.Business, runOpts validator.RunOptions) model.Verdict {
	if !r.tryLock(b.ID) {
		zap.L().Debug("business already in flight", zap.String("business_id", b.ID))
		return ""
	}
	defer r.unlock(b.ID)

	log, err := r.store.GetAttemptLog(ctx, b.ID)
	if err != nil {
		zap.L().Error("load attempt log failed", zap.String("business_id", b.ID), zap.Error(err))
		return model.VerdictError
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = r.opts.MaxAttempts
	cfg.OnRetry = resilience.RetryLogger("pipeline", "validate")

	res, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*model.CompleteValidationResult, error) {
		return r.validator.Validate(ctx, b, log, runOpts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		zap.L().Error("validation failed after retries",
			zap.String("business_id", b.ID),
			zap.Error(err),
		)
		res = deadLetterResult(b, err)
	}

	if err := r.store.ApplyResult(ctx, res); err != nil {
		zap.L().Error("persist result failed",
			zap.String("business_id", b.ID),
			zap.String("run_id", res.RunID),
			zap.Error(err),
		)
		return model.VerdictError
	}

	if res.NextState == model.StateManualReview && !res.Skipped {
		if err := r.sink.Notify(ctx, b, res); err != nil {
			zap.L().Warn("review notification failed",
				zap.String("business_id", b.ID),
				zap.Error(err),
			)
		}
	}

	if res.Skipped {
		return ""
	}
	return res.Verdict
}

// deadLetterResult parks a business in the error state when the pipeline
// itself keeps failing, so the batch moves on and an operator can look later.
func deadLetterResult(b model.Business, err error) *model.CompleteValidationResult {
	return &model.CompleteValidationResult{
		RunID:          uuid.NewString(),
		BusinessID:     b.ID,
		Verdict:        model.VerdictError,
		Reasoning:      "pipeline failure: " + err.Error(),
		Recommendation: model.RecommendationManualReview,
		NextState:      model.StateError,
		Metadata: model.ResultMetadata{
			Timestamp:       time.Now().UTC(),
			PipelineVersion: model.PipelineVersion,
		},
	}
}

func (r *Runner) tryLock(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[id] {
		return false
	}
	r.inflight[id] = true
	return true
}

func (r *Runner) unlock(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}
