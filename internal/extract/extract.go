// Package extract renders candidate URLs in headless Chrome and pulls the
// structured signals the semantic judge needs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/resilience"
	"github.com/sells-group/sitecheck/pkg/browserless"
)

// Options configures an Extractor.
type Options struct {
	// Timeout is the hard per-extraction deadline. The stage never exceeds it
	// regardless of what the render service does. Default: 30s.
	Timeout time.Duration

	// CaptureScreenshot additionally captures a PNG of successful renders.
	CaptureScreenshot bool

	// MaxConcurrent caps in-flight renders across all runs, independent of
	// the task runner's pool size. Default: 4.
	MaxConcurrent int
}

// Extractor runs the browser extraction stage.
type Extractor struct {
	browser browserless.Client
	sem     *semaphore.Weighted
	opts    Options
}

// New creates an Extractor backed by the given render client.
func New(browser browserless.Client, opts Options) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Extractor{
		browser: browser,
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		opts:    opts,
	}
}

// Extract renders rawURL and returns structured content. A failed render is
// not an error: failures are typed on the result so the orchestrator can
// distinguish a dead domain from one that is unreachable right now. The
// returned error is non-nil only when ctx was cancelled by the caller.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*model.ExtractResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	// The render slot is acquired inside the deadline: time spent queueing
	// for a browser counts against the stage's budget.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		if parentErr := parentCancelled(ctx, err); parentErr != nil {
			return nil, parentErr
		}
		return failure(model.ExtractErrorTimeout, errors.New("timed out waiting for a render slot"), start), nil
	}
	defer e.sem.Release(1)

	res, err := e.browser.Render(ctx, browserless.RenderRequest{
		URL:       rawURL,
		WaitUntil: "networkidle2",
		Timeout:   e.opts.Timeout,
	})
	if err != nil {
		if parentErr := parentCancelled(ctx, err); parentErr != nil {
			return nil, parentErr
		}
		out := failure(classify(err), err, start)
		zap.L().Debug("extraction failed",
			zap.String("url", rawURL),
			zap.String("kind", string(out.ErrorKind)),
			zap.Error(err),
		)
		return out, nil
	}

	if res.StatusCode >= 400 {
		kind := model.ExtractErrorHTTP
		if res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusTooManyRequests {
			kind = model.ExtractErrorBlocked
		}
		return failure(kind, fmt.Errorf("page returned HTTP %d", res.StatusCode), start), nil
	}

	if detectBlock(res.HTML) {
		return failure(model.ExtractErrorBlocked, errors.New("bot challenge page detected"), start), nil
	}

	signals := parseContent(res.HTML)
	out := &model.ExtractResult{
		Success:  true,
		FinalURL: res.FinalURL,
		Content: &model.ExtractedContent{
			Title:  signals.title,
			Phones: signals.phones,
			Emails: signals.emails,
			Text:   signals.text,
		},
		QualityScore: qualityScore(signals),
		DurationMS:   time.Since(start).Milliseconds(),
	}

	if e.opts.CaptureScreenshot {
		// Best effort; a failed screenshot never fails the extraction.
		if png, shotErr := e.browser.Screenshot(ctx, rawURL); shotErr == nil {
			out.Screenshot = png
		} else {
			zap.L().Warn("screenshot capture failed",
				zap.String("url", rawURL),
				zap.Error(shotErr),
			)
		}
	}

	return out, nil
}

// parentCancelled returns the caller's context error when the failure came
// from the parent context rather than the stage's own deadline.
func parentCancelled(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}

// classify maps a render failure to its ExtractErrorKind.
func classify(err error) model.ExtractErrorKind {
	if resilience.IsDNSFailure(err) {
		return model.ExtractErrorDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ExtractErrorTimeout
	}

	var apiErr *browserless.APIError
	if errors.As(err, &apiErr) {
		// The render service surfaces upstream navigation failures as errors;
		// inspect the body for the underlying cause.
		body := strings.ToLower(apiErr.Body)
		switch {
		case strings.Contains(body, "err_name_not_resolved"):
			return model.ExtractErrorDNS
		case strings.Contains(body, "timeout"), strings.Contains(body, "err_timed_out"):
			return model.ExtractErrorTimeout
		case strings.Contains(body, "err_connection"):
			return model.ExtractErrorConnect
		}
		return model.ExtractErrorHTTP
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return model.ExtractErrorTimeout
	}
	return model.ExtractErrorConnect
}

func failure(kind model.ExtractErrorKind, err error, start time.Time) *model.ExtractResult {
	return &model.ExtractResult{
		Success:    false,
		ErrorKind:  kind,
		Error:      err.Error(),
		DurationMS: time.Since(start).Milliseconds(),
	}
}
