package model

import "time"

// Business is the pipeline's read view of a scraped business record. The
// reference fields (name, phone, address) are treated as ground truth for the
// semantic judge; the pipeline never mutates a Business directly — it returns a
// CompleteValidationResult and the host applies the transition.
type Business struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Address   string          `json:"address,omitempty"`
	City      string          `json:"city,omitempty"`
	State     string          `json:"state,omitempty"`
	Country   string          `json:"country,omitempty"`
	URL       string          `json:"url,omitempty"`
	URLSource URLSource       `json:"url_source,omitempty"`
	Status    ValidationState `json:"status"`

	// LastValidatedAt is set by the host when a result is applied.
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}

// Location joins the address components into a single display string.
func (b Business) Location() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{b.Address, b.City, b.State} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// DiscoveryMethod identifies one way of finding a candidate URL.
type DiscoveryMethod string

const (
	DiscoveryMethodDomainGuess DiscoveryMethod = "domain_guess"
	DiscoveryMethodWebSearch   DiscoveryMethod = "web_search"
)

// AllDiscoveryMethods lists methods in the order they are attempted.
func AllDiscoveryMethods() []DiscoveryMethod {
	return []DiscoveryMethod{DiscoveryMethodDomainGuess, DiscoveryMethodWebSearch}
}

// DiscoveryAttempt records one discovery method tried for a business. Kept
// per-method so paid searches are never repeated for the same business.
type DiscoveryAttempt struct {
	BusinessID   string          `json:"business_id"`
	Method       DiscoveryMethod `json:"method"`
	Found        bool            `json:"found"`
	CandidateURL string          `json:"candidate_url,omitempty"`
	AttemptedAt  time.Time       `json:"attempted_at"`
}

// AttemptLog is the set of discovery attempts already made for a business.
type AttemptLog []DiscoveryAttempt

// Tried reports whether the given method was already attempted.
func (l AttemptLog) Tried(method DiscoveryMethod) bool {
	for _, a := range l {
		if a.Method == method {
			return true
		}
	}
	return false
}

// Exhausted reports whether every known discovery method has been attempted.
func (l AttemptLog) Exhausted() bool {
	for _, m := range AllDiscoveryMethods() {
		if !l.Tried(m) {
			return false
		}
	}
	return true
}
