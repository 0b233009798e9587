// Package validator orchestrates the validation pipeline: prescreen, browser
// extraction, discovery fallback, and semantic verdict, producing one
// append-only CompleteValidationResult per run.
package validator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/sitecheck/internal/discover"
	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/prescreen"
)

// Extractor renders a candidate URL and returns typed results.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*model.ExtractResult, error)
}

// Discoverer finds candidate URLs for businesses without one.
type Discoverer interface {
	Discover(ctx context.Context, b model.Business, log model.AttemptLog) (*discover.Outcome, error)
}

// Judger classifies an extracted page against the business record.
type Judger interface {
	Judge(ctx context.Context, b model.Business, candidateURL string, ex *model.ExtractResult) (*model.JudgeResult, error)
}

// Options configures the orchestrator.
type Options struct {
	// VerdictTimeout bounds the judge stage. Default: 45s.
	VerdictTimeout time.Duration
}

// RunOptions are per-run flags.
type RunOptions struct {
	// Force re-runs the pipeline even for businesses in a terminal or holding
	// state.
	Force bool
}

// Validator runs the full pipeline for one business.
type Validator struct {
	extract  Extractor
	discover Discoverer
	judge    Judger
	opts     Options
}

// New creates a Validator from its stage implementations.
func New(extract Extractor, disc Discoverer, judge Judger, opts Options) *Validator {
	if opts.VerdictTimeout <= 0 {
		opts.VerdictTimeout = 45 * time.Second
	}
	return &Validator{extract: extract, discover: disc, judge: judge, opts: opts}
}

// Validate runs the pipeline for b and returns a fresh result; it never
// mutates b. Businesses in a terminal or holding state are skipped unless
// opts.Force is set. At most one discovery pass happens per run, and a
// discovered URL gets exactly one re-validation before the run settles.
func (v *Validator) Validate(ctx context.Context, b model.Business, log model.AttemptLog, opts RunOptions) (*model.CompleteValidationResult, error) {
	start := time.Now()
	res := &model.CompleteValidationResult{
		RunID:      uuid.NewString(),
		BusinessID: b.ID,
	}

	if !opts.Force && (b.Status.IsTerminal() || b.Status.IsHolding()) {
		res.Skipped = true
		res.NextState = b.Status
		return v.finish(res, start), nil
	}

	run := &runState{
		business:  b,
		log:       log,
		candidate: b.URL,
		source:    b.URLSource,
	}
	if run.source == "" {
		run.source = model.URLSourceScraped
	}

	// No URL on record: discovery is the pipeline's entry point, not a
	// fallback.
	if run.candidate == "" {
		found, err := v.runDiscovery(ctx, res, run)
		if err != nil {
			return nil, err
		}
		if !found {
			v.concludeNotFound(res, run)
			return v.finish(res, start), nil
		}
	}

	for pass := 0; ; pass++ {
		pre := prescreen.Prescreen(run.candidate)
		res.Stages.Prescreen = &pre
		if !pre.ShouldValidate {
			// The URL points at something that cannot be a website (a PDF, a
			// cloud-storage share): the record is missing a real site.
			v.conclude(res, run, &model.JudgeResult{
				Verdict:        model.VerdictMissing,
				Confidence:     1,
				Reasoning:      "prescreen rejected url: " + pre.SkipReason,
				Recommendation: model.RecommendationClearAndMarkMissing,
			}, true)
			return v.finish(res, start), nil
		}

		ex, err := v.extract.Extract(ctx, run.candidate)
		if err != nil {
			return nil, err
		}
		res.Stages.Playwright = ex
		if !ex.Success {
			v.conclude(res, run, extractFailureVerdict(ex), false)
			return v.finish(res, start), nil
		}

		jctx, cancel := context.WithTimeout(ctx, v.opts.VerdictTimeout)
		jr, err := v.judge.Judge(jctx, b, run.candidate, ex)
		cancel()
		if err != nil {
			return nil, err
		}
		res.Stages.LLM = jr

		if jr.Recommendation == model.RecommendationTriggerDiscovery &&
			pass == 0 && !run.discoveryRan && !run.log.Exhausted() {
			found, derr := v.runDiscovery(ctx, res, run)
			if derr != nil {
				return nil, derr
			}
			if found {
				continue
			}
			v.concludeNotFound(res, run)
			return v.finish(res, start), nil
		}

		v.conclude(res, run, jr, false)
		return v.finish(res, start), nil
	}
}

// runState is the mutable state of one validation run.
type runState struct {
	business     model.Business
	log          model.AttemptLog
	candidate    string
	source       model.URLSource
	discoveryRan bool
}

// runDiscovery executes one discovery pass and swaps in the found candidate.
func (v *Validator) runDiscovery(ctx context.Context, res *model.CompleteValidationResult, run *runState) (bool, error) {
	out, err := v.discover.Discover(ctx, run.business, run.log)
	if err != nil {
		return false, err
	}
	run.discoveryRan = true
	run.log = append(run.log, out.Attempts...)
	res.Stages.Discovery = &out.Result
	res.NewAttempts = append(res.NewAttempts, out.Attempts...)

	if out.Result.CandidateURL == "" {
		return false, nil
	}

	zap.L().Info("discovery found candidate",
		zap.String("business_id", run.business.ID),
		zap.String("method", string(out.Result.Method)),
		zap.String("candidate_url", out.Result.CandidateURL),
	)
	run.candidate = out.Result.CandidateURL
	run.source = model.URLSourceDiscovered
	return true, nil
}

// conclude fills the top-level verdict fields and resolves the state
// transition.
func (v *Validator) conclude(res *model.CompleteValidationResult, run *runState, jr *model.JudgeResult, prescreenRejected bool) {
	res.Verdict = jr.Verdict
	res.Confidence = jr.Confidence
	res.Reasoning = jr.Reasoning
	res.Recommendation = jr.Recommendation
	res.IsValid = jr.Verdict == model.VerdictValid

	tc := transitionContext{
		URLSource:           run.source,
		PrescreenRejected:   prescreenRejected,
		DiscoveryExhausted:  run.log.Exhausted(),
		JudgedDirectoryPage: jr.Signals.IsDirectory || jr.Signals.IsAggregator,
	}
	res.NextState, res.ClearURL = resolveTransition(jr.Recommendation, tc)

	// A discovered URL is written back only on an unqualified keep; a valid
	// verdict parked for review must not mutate the record.
	if jr.Recommendation == model.RecommendationKeepURL && run.source == model.URLSourceDiscovered {
		res.NewURL = run.candidate
	}
}

// concludeNotFound settles a run where discovery came up empty.
func (v *Validator) concludeNotFound(res *model.CompleteValidationResult, run *runState) {
	v.conclude(res, run, &model.JudgeResult{
		Verdict:        model.VerdictMissing,
		Confidence:     1,
		Reasoning:      "no website found by any discovery method",
		Recommendation: model.RecommendationClearAndMarkMissing,
	}, false)
}

func (v *Validator) finish(res *model.CompleteValidationResult, start time.Time) *model.CompleteValidationResult {
	res.Metadata = model.ResultMetadata{
		Timestamp:       start.UTC(),
		TotalDurationMS: time.Since(start).Milliseconds(),
		PipelineVersion: model.PipelineVersion,
	}
	zap.L().Info("validation run complete",
		zap.String("run_id", res.RunID),
		zap.String("business_id", res.BusinessID),
		zap.String("verdict", string(res.Verdict)),
		zap.String("next_state", string(res.NextState)),
		zap.Bool("skipped", res.Skipped),
		zap.Int64("duration_ms", res.Metadata.TotalDurationMS),
	)
	return res
}

// extractFailureVerdict maps a typed extraction failure to its verdict. DNS
// failures and timeouts stay retryable; a bot block is something only a human
// can resolve.
func extractFailureVerdict(ex *model.ExtractResult) *model.JudgeResult {
	rec := model.RecommendationRetryValidation
	if ex.ErrorKind == model.ExtractErrorBlocked {
		rec = model.RecommendationManualReview
	}
	return &model.JudgeResult{
		Verdict:        model.VerdictError,
		Confidence:     0,
		Reasoning:      "extraction failed (" + string(ex.ErrorKind) + "): " + ex.Error,
		Recommendation: rec,
	}
}
