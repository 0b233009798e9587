package validator

import (
	"github.com/sells-group/sitecheck/internal/model"
)

// transitionContext carries what the recommendation alone cannot express:
// where the URL came from, whether the failure happened before the judge ran,
// and whether discovery has anything left to try.
type transitionContext struct {
	URLSource           model.URLSource
	PrescreenRejected   bool
	DiscoveryExhausted  bool
	JudgedDirectoryPage bool
}

// resolveTransition maps a recommendation to the state the business moves to,
// plus whether its candidate URL should be cleared. This is the only place
// recommendations become states; nothing else mutates business status.
func resolveTransition(rec model.Recommendation, tc transitionContext) (model.ValidationState, bool) {
	switch rec {
	case model.RecommendationKeepURL:
		return tc.URLSource.SuccessState(), false

	case model.RecommendationClearAndMarkMissing:
		if tc.PrescreenRejected {
			// Not a website at all (a document, a storage share): a hard
			// reject, not a record waiting on discovery.
			return model.StateInvalidType, true
		}
		if tc.DiscoveryExhausted {
			return model.StateNoWebsite, true
		}
		return model.StateNeedsDiscovery, true

	case model.RecommendationMarkInvalidKeepURL:
		return model.StateInvalidMismatch, false

	case model.RecommendationRetryValidation:
		return model.StateInvalidTechnical, false

	case model.RecommendationTriggerDiscovery:
		if tc.DiscoveryExhausted {
			// Nothing left to try; treat like a cleared missing site, but keep
			// a directory URL out of the record either way.
			return model.StateNoWebsite, tc.JudgedDirectoryPage
		}
		return model.StateNeedsDiscovery, false

	case model.RecommendationManualReview:
		return model.StateManualReview, false
	}

	// Unknown recommendations park the record rather than guessing.
	return model.StateManualReview, false
}
