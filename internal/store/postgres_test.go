package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitecheck/internal/model"
)

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresWithPool(mock), mock
}

var businessColumns = []string{
	"id", "name", "phone", "address", "city", "state", "country",
	"url", "url_source", "status", "last_validated_at",
}

func TestGetBusiness(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, phone").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows(businessColumns).AddRow(
			"b1", "Acme Plumbing", "(303) 555-0142", "123 Main St", "Denver", "CO", "US",
			"https://acmeplumbing.com", "scraped", "pending", (*time.Time)(nil)))

	b, err := s.GetBusiness(context.Background(), "b1")
	require.NoError(t, err)

	assert.Equal(t, "Acme Plumbing", b.Name)
	assert.Equal(t, model.URLSourceScraped, b.URLSource)
	assert.Equal(t, model.StatePending, b.Status)
	assert.Nil(t, b.LastValidatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBusinessNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, phone").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(businessColumns))

	_, err := s.GetBusiness(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyResultTransactional(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	res := &model.CompleteValidationResult{
		RunID:      "run-1",
		BusinessID: "b1",
		IsValid:    true,
		Verdict:    model.VerdictValid,
		NextState:  model.StateValidDiscovered,
		NewURL:     "https://acmeplumbing.com",
		NewAttempts: []model.DiscoveryAttempt{{
			BusinessID:   "b1",
			Method:       model.DiscoveryMethodDomainGuess,
			Found:        true,
			CandidateURL: "https://acmeplumbing.com",
			AttemptedAt:  now,
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_results").
		WithArgs("run-1", "b1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO discovery_attempts").
		WithArgs("b1", "domain_guess", true, "https://acmeplumbing.com", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE businesses SET").
		WithArgs("b1", "valid_discovered", pgxmock.AnyArg(), false, "https://acmeplumbing.com").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.ApplyResult(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyResultSkippedLeavesBusinessAlone(t *testing.T) {
	s, mock := newMockStore(t)

	res := &model.CompleteValidationResult{
		RunID:      "run-2",
		BusinessID: "b1",
		Skipped:    true,
		NextState:  model.StateValidScraped,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO validation_results").
		WithArgs("run-2", "b1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.ApplyResult(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAttemptLog(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT business_id, method, found").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"business_id", "method", "found", "candidate_url", "attempted_at"}).
			AddRow("b1", "domain_guess", false, "", now).
			AddRow("b1", "web_search", true, "https://acme.com", now))

	log, err := s.GetAttemptLog(context.Background(), "b1")
	require.NoError(t, err)

	require.Len(t, log, 2)
	assert.True(t, log.Tried(model.DiscoveryMethodDomainGuess))
	assert.True(t, log.Exhausted())
}

func TestUpsertBusinessDefaultsStatus(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO businesses").
		WithArgs("b1", "Acme", "", "", "", "", "", "", "", "pending", (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertBusiness(context.Background(), model.Business{ID: "b1", Name: "Acme"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBusinessUpdate(t *testing.T) {
	b := &model.Business{ID: "b1", URL: "https://old.com", URLSource: model.URLSourceScraped, Status: model.StatePending}

	applyBusinessUpdate(b, &model.CompleteValidationResult{NextState: model.StateNeedsDiscovery, ClearURL: true})
	assert.Empty(t, b.URL)
	assert.Empty(t, string(b.URLSource))
	assert.Equal(t, model.StateNeedsDiscovery, b.Status)

	applyBusinessUpdate(b, &model.CompleteValidationResult{NextState: model.StateValidDiscovered, NewURL: "https://new.com"})
	assert.Equal(t, "https://new.com", b.URL)
	assert.Equal(t, model.URLSourceDiscovered, b.URLSource)
}
