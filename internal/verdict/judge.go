// Package verdict asks a language model whether an extracted page is the
// business's own website, and fails closed when the model cannot be trusted.
package verdict

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/pkg/anthropic"
)

const (
	judgePromptName = "website_judge"
	judgeMaxTokens  = 1024

	// manualReviewFloor: a decisive verdict below this confidence is demoted
	// to manual_review rather than acted on.
	manualReviewFloor = 0.5
)

// Options configures a Judge.
type Options struct {
	// Model is the model identifier to use.
	Model string

	// RateLimit throttles LLM calls, in requests/sec.
	RateLimit float64
}

// Judge runs the semantic verdict stage.
type Judge struct {
	llm     anthropic.Client
	prompts *PromptStore
	limiter *rate.Limiter
	opts    Options
}

// New creates a Judge.
func New(llm anthropic.Client, prompts *PromptStore, opts Options) *Judge {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	return &Judge{
		llm:     llm,
		prompts: prompts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		opts:    opts,
	}
}

// promptData is the material interpolated into the judge's user prompt.
type promptData struct {
	Name         string
	Phone        string
	Location     string
	URL          string
	FinalURL     string
	Title        string
	Phones       []string
	Emails       []string
	QualityScore float64
	Text         string
}

// Judge classifies the extracted page against the business record. It never
// guesses: any model failure, malformed response, or out-of-range field
// produces verdict "error" with confidence 0, so a bad model day can never
// silently corrupt business records. The returned error is non-nil only on
// caller cancellation.
func (j *Judge) Judge(ctx context.Context, b model.Business, candidateURL string, ex *model.ExtractResult) (*model.JudgeResult, error) {
	if err := j.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	data := promptData{
		Name:     b.Name,
		Phone:    b.Phone,
		Location: b.Location(),
		URL:      candidateURL,
		FinalURL: ex.FinalURL,
	}
	if ex.Content != nil {
		data.Title = ex.Content.Title
		data.Phones = ex.Content.Phones
		data.Emails = ex.Content.Emails
		data.Text = ex.Content.Text
	}
	data.QualityScore = ex.QualityScore

	system, err := j.prompts.System(judgePromptName)
	if err != nil {
		return failClosed("prompt configuration: "+err.Error(), model.RecommendationManualReview), nil
	}
	user, err := j.prompts.RenderUser(judgePromptName, data)
	if err != nil {
		return failClosed("prompt rendering: "+err.Error(), model.RecommendationManualReview), nil
	}

	temp := 0.0
	resp, err := j.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       j.opts.Model,
		MaxTokens:   judgeMaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(system),
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		zap.L().Warn("judge call failed",
			zap.String("business_id", b.ID),
			zap.Error(err),
		)
		return failClosed("model call failed: "+err.Error(), model.RecommendationRetryValidation), nil
	}
	resp.Usage.LogCost(j.opts.Model, "verdict")

	result, parseErr := parseJudgeResponse(extractText(resp))
	if parseErr != nil {
		zap.L().Warn("judge response rejected",
			zap.String("business_id", b.ID),
			zap.Error(parseErr),
		)
		// A response that failed validation will likely fail it again on
		// retry; park it for a human instead of burning more calls.
		return failClosed("unparseable model response: "+parseErr.Error(), model.RecommendationManualReview), nil
	}

	if result.Confidence < manualReviewFloor && result.Recommendation != model.RecommendationManualReview {
		result.Reasoning += " (confidence below review threshold)"
		result.Recommendation = model.RecommendationManualReview
	}

	return result, nil
}

func failClosed(reason string, rec model.Recommendation) *model.JudgeResult {
	return &model.JudgeResult{
		Verdict:        model.VerdictError,
		Confidence:     0,
		Reasoning:      reason,
		Recommendation: rec,
	}
}

// extractText joins all text content blocks from the response.
func extractText(resp *anthropic.MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// cleanJSON strips markdown code fences and any prose around the first JSON
// object in the text.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}

// parseJudgeResponse strictly parses and validates the model's JSON output.
func parseJudgeResponse(text string) (*model.JudgeResult, error) {
	var result model.JudgeResult
	dec := json.NewDecoder(strings.NewReader(cleanJSON(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}

	switch result.Verdict {
	case model.VerdictValid, model.VerdictInvalid, model.VerdictMissing:
	default:
		return nil, errInvalidField("verdict", string(result.Verdict))
	}

	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, errInvalidField("confidence", "out of range")
	}

	switch result.Recommendation {
	case model.RecommendationKeepURL,
		model.RecommendationClearAndMarkMissing,
		model.RecommendationMarkInvalidKeepURL,
		model.RecommendationTriggerDiscovery,
		model.RecommendationManualReview:
	default:
		return nil, errInvalidField("recommendation", string(result.Recommendation))
	}

	// A valid verdict must recommend keeping the URL; anything else means the
	// model contradicted itself.
	if result.Verdict == model.VerdictValid && result.Recommendation != model.RecommendationKeepURL &&
		result.Recommendation != model.RecommendationManualReview {
		return nil, errInvalidField("recommendation", "inconsistent with valid verdict")
	}

	return &result, nil
}

type fieldError struct {
	field  string
	detail string
}

func (e fieldError) Error() string {
	return "invalid " + e.field + ": " + e.detail
}

func errInvalidField(field, detail string) error {
	return fieldError{field: field, detail: detail}
}
