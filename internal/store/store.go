// Package store persists businesses, validation results, and discovery
// attempt logs behind a driver-neutral interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sitecheck/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence port used by the runner and CLI.
type Store interface {
	// GetBusiness fetches one business by id.
	GetBusiness(ctx context.Context, id string) (*model.Business, error)

	// ListByStatus returns up to limit businesses whose status is one of the
	// given states, oldest-validated first.
	ListByStatus(ctx context.Context, statuses []model.ValidationState, limit int) ([]model.Business, error)

	// UpsertBusiness inserts or updates a business record by id.
	UpsertBusiness(ctx context.Context, b model.Business) error

	// GetAttemptLog returns all discovery attempts for a business.
	GetAttemptLog(ctx context.Context, businessID string) (model.AttemptLog, error)

	// ApplyResult atomically records a validation run: it appends the result,
	// appends any new discovery attempts, and moves the business to the
	// result's next state (clearing or replacing the URL as directed).
	// Skipped results are recorded without touching the business.
	ApplyResult(ctx context.Context, res *model.CompleteValidationResult) error

	// ListResults returns the persisted results for a business, newest first.
	ListResults(ctx context.Context, businessID string, limit int) ([]model.CompleteValidationResult, error)

	// Close releases the underlying connections.
	Close() error
}

// applyBusinessUpdate computes the business-row mutation for a result. Shared
// by the drivers so transition bookkeeping cannot drift between them.
func applyBusinessUpdate(b *model.Business, res *model.CompleteValidationResult) {
	b.Status = res.NextState
	if res.ClearURL {
		b.URL = ""
		b.URLSource = ""
	}
	if res.NewURL != "" {
		b.URL = res.NewURL
		b.URLSource = model.URLSourceDiscovered
	}
}
