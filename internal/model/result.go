package model

import "time"

// PipelineVersion is stamped into every result's metadata so persisted
// results can be interpreted after prompt or heuristic changes.
const PipelineVersion = "2.1.0"

// Verdict is the judge's final classification of a candidate URL.
type Verdict string

const (
	VerdictValid   Verdict = "valid"   // the business's own working website
	VerdictInvalid Verdict = "invalid" // a real page, but not this business
	VerdictMissing Verdict = "missing" // no usable site (directory, parked, none found)
	VerdictError   Verdict = "error"   // stage failure, surfaced for inspection
)

// Recommendation tells the caller how to mutate the business record.
type Recommendation string

const (
	RecommendationKeepURL             Recommendation = "keep_url"
	RecommendationClearAndMarkMissing Recommendation = "clear_url_and_mark_missing"
	RecommendationMarkInvalidKeepURL  Recommendation = "mark_invalid_keep_url"
	RecommendationRetryValidation     Recommendation = "retry_validation"
	RecommendationTriggerDiscovery    Recommendation = "trigger_discovery"
	RecommendationManualReview        Recommendation = "manual_review"
)

// PrescreenResult is the URL prescreener's output.
type PrescreenResult struct {
	ShouldValidate bool   `json:"should_validate"`
	SkipReason     string `json:"skip_reason,omitempty"`
	Recommendation string `json:"recommendation"` // skip_playwright | proceed | expand_url
}

// ExtractErrorKind types an extraction failure so the orchestrator can tell
// unreachable-now from gone.
type ExtractErrorKind string

const (
	ExtractErrorDNS     ExtractErrorKind = "dns"
	ExtractErrorTimeout ExtractErrorKind = "timeout"
	ExtractErrorConnect ExtractErrorKind = "connect"
	ExtractErrorHTTP    ExtractErrorKind = "http"
	ExtractErrorBlocked ExtractErrorKind = "blocked"
)

// ExtractedContent holds the structured signals pulled from a rendered page.
type ExtractedContent struct {
	Title  string   `json:"title"`
	Phones []string `json:"phones"`
	Emails []string `json:"emails"`
	Text   string   `json:"text"`
}

// ExtractResult is the browser extraction stage's output.
type ExtractResult struct {
	Success      bool              `json:"success"`
	FinalURL     string            `json:"final_url,omitempty"`
	Content      *ExtractedContent `json:"content,omitempty"`
	QualityScore float64           `json:"quality_score"`
	ErrorKind    ExtractErrorKind  `json:"error_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
	Screenshot   []byte            `json:"screenshot,omitempty"`
	DurationMS   int64             `json:"duration_ms"`
}

// DiscoveryResult records what a discovery pass found (or that it was skipped).
type DiscoveryResult struct {
	Attempted    bool            `json:"attempted"`
	Method       DiscoveryMethod `json:"method,omitempty"`
	CandidateURL string          `json:"candidate_url,omitempty"`
	Exhausted    bool            `json:"exhausted"`
	SkipReason   string          `json:"skip_reason,omitempty"`
}

// MatchSignals are the judge's cross-reference findings.
type MatchSignals struct {
	PhoneMatch   bool `json:"phone_match"`
	AddressMatch bool `json:"address_match"`
	NameMatch    bool `json:"name_match"`
	IsDirectory  bool `json:"is_directory"`
	IsAggregator bool `json:"is_aggregator"`
}

// JudgeResult is the semantic verdict stage's output.
type JudgeResult struct {
	Verdict        Verdict        `json:"verdict"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Recommendation Recommendation `json:"recommendation"`
	Signals        MatchSignals   `json:"match_signals"`
}

// StageResults groups the per-stage outputs retained for audit. The JSON keys
// prescreen/playwright/llm are the legacy persisted shape and must not change;
// discovery rides alongside.
type StageResults struct {
	Prescreen  *PrescreenResult `json:"prescreen,omitempty"`
	Playwright *ExtractResult   `json:"playwright,omitempty"`
	LLM        *JudgeResult     `json:"llm,omitempty"`
	Discovery  *DiscoveryResult `json:"discovery,omitempty"`
}

// ResultMetadata is the execution metadata on every result.
type ResultMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalDurationMS int64     `json:"total_duration_ms"`
	PipelineVersion string    `json:"pipeline_version"`
}

// CompleteValidationResult is the orchestrator's output and the only object
// callers persist. Append-only: a re-run produces a fresh result, never an
// edit of a prior one.
type CompleteValidationResult struct {
	RunID          string         `json:"run_id"`
	BusinessID     string         `json:"business_id"`
	IsValid        bool           `json:"is_valid"`
	Verdict        Verdict        `json:"verdict"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Recommendation Recommendation `json:"recommendation"`
	Stages         StageResults   `json:"stages"`
	Metadata       ResultMetadata `json:"metadata"`

	// NextState is the state the recommendation transitions the business to.
	// Derived, not persisted as part of the legacy shape.
	NextState ValidationState `json:"next_state,omitempty"`
	// ClearURL tells the host to drop the candidate URL when applying.
	ClearURL bool `json:"clear_url,omitempty"`
	// NewURL carries a discovered candidate the host should store.
	NewURL string `json:"new_url,omitempty"`
	// Skipped marks a terminal no-op run (no stages executed).
	Skipped bool `json:"skipped,omitempty"`

	// NewAttempts are discovery attempts made during this run, for the host to
	// append to the business's attempt log. Not part of the persisted result.
	NewAttempts []DiscoveryAttempt `json:"-"`
}
