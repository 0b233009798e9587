package model

// ValidationState tracks where a business sits in the website validation
// lifecycle. Exactly one state per business; transitions happen only through
// orchestrator recommendations (see internal/validator).
type ValidationState string

const (
	// Initial.
	StatePending ValidationState = "pending"

	// Success, tagged by where the URL came from.
	StateValidScraped    ValidationState = "valid_scraped"
	StateValidDiscovered ValidationState = "valid_discovered"
	StateValidManual     ValidationState = "valid_manual"

	// In-progress discovery.
	StateNeedsDiscovery      ValidationState = "needs_discovery"
	StateDiscoveryQueued     ValidationState = "discovery_queued"
	StateDiscoveryInProgress ValidationState = "discovery_in_progress"

	// Failure.
	StateInvalidTechnical ValidationState = "invalid_technical"
	StateInvalidType      ValidationState = "invalid_type"
	StateInvalidMismatch  ValidationState = "invalid_mismatch"

	// Terminal (besides the success states).
	StateNoWebsite   ValidationState = "confirmed_no_website"
	StateGeoMismatch ValidationState = "geo_mismatch"
	StateError       ValidationState = "error"

	// Holding: excluded from automation until explicitly cleared.
	StateManualReview ValidationState = "manual_review"
)

// AllStates lists every valid ValidationState.
func AllStates() []ValidationState {
	return []ValidationState{
		StatePending,
		StateValidScraped, StateValidDiscovered, StateValidManual,
		StateNeedsDiscovery, StateDiscoveryQueued, StateDiscoveryInProgress,
		StateInvalidTechnical, StateInvalidType, StateInvalidMismatch,
		StateNoWebsite, StateGeoMismatch, StateError,
		StateManualReview,
	}
}

// IsSuccess reports whether the state means the business has a confirmed
// working website.
func (s ValidationState) IsSuccess() bool {
	switch s {
	case StateValidScraped, StateValidDiscovered, StateValidManual:
		return true
	}
	return false
}

// IsTerminal reports whether automation is done with this business. Terminal
// businesses require force=true to re-enter the pipeline.
func (s ValidationState) IsTerminal() bool {
	if s.IsSuccess() {
		return true
	}
	switch s {
	case StateNoWebsite, StateGeoMismatch, StateError:
		return true
	}
	return false
}

// NeedsDiscovery reports whether the business is in the discovery sub-flow.
func (s ValidationState) NeedsDiscovery() bool {
	switch s {
	case StateNeedsDiscovery, StateDiscoveryQueued, StateDiscoveryInProgress:
		return true
	}
	return false
}

// IsHolding reports whether the business is parked for a human and excluded
// from automation without being terminal.
func (s ValidationState) IsHolding() bool {
	return s == StateManualReview
}

// IsFailure reports whether the state records a failed validation that keeps
// the URL around for inspection.
func (s ValidationState) IsFailure() bool {
	switch s {
	case StateInvalidTechnical, StateInvalidType, StateInvalidMismatch:
		return true
	}
	return false
}

// Valid reports whether s is a known state value.
func (s ValidationState) Valid() bool {
	for _, known := range AllStates() {
		if s == known {
			return true
		}
	}
	return false
}

// URLSource records where a business's candidate URL originated. It selects
// which success state a keep_url recommendation lands in.
type URLSource string

const (
	URLSourceScraped    URLSource = "scraped"
	URLSourceDiscovered URLSource = "discovered"
	URLSourceManual     URLSource = "manual"
)

// SuccessState maps a URL source to its success state.
func (src URLSource) SuccessState() ValidationState {
	switch src {
	case URLSourceDiscovered:
		return StateValidDiscovered
	case URLSourceManual:
		return StateValidManual
	default:
		return StateValidScraped
	}
}
