package runner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/internal/store"
	"github.com/sells-group/sitecheck/internal/validator"
)

type memStore struct {
	mu         sync.Mutex
	businesses map[string]model.Business
	attempts   map[string]model.AttemptLog
	results    []*model.CompleteValidationResult
}

func newMemStore() *memStore {
	return &memStore{
		businesses: make(map[string]model.Business),
		attempts:   make(map[string]model.AttemptLog),
	}
}

func (m *memStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.businesses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (m *memStore) ListByStatus(ctx context.Context, statuses []model.ValidationState, limit int) ([]model.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Business
	for _, b := range m.businesses {
		for _, st := range statuses {
			if b.Status == st {
				out = append(out, b)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) UpsertBusiness(ctx context.Context, b model.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[b.ID] = b
	return nil
}

func (m *memStore) GetAttemptLog(ctx context.Context, businessID string) (model.AttemptLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[businessID], nil
}

func (m *memStore) ApplyResult(ctx context.Context, res *model.CompleteValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	m.attempts[res.BusinessID] = append(m.attempts[res.BusinessID], res.NewAttempts...)
	if !res.Skipped {
		b := m.businesses[res.BusinessID]
		b.Status = res.NextState
		m.businesses[res.BusinessID] = b
	}
	return nil
}

func (m *memStore) ListResults(ctx context.Context, businessID string, limit int) ([]model.CompleteValidationResult, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

type fakeValidator struct {
	mu      sync.Mutex
	results map[string]*model.CompleteValidationResult
	err     error
	calls   map[string]int
}

func (f *fakeValidator) Validate(ctx context.Context, b model.Business, log model.AttemptLog, opts validator.RunOptions) (*model.CompleteValidationResult, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[b.ID]++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[b.ID]; ok {
		return r, nil
	}
	return &model.CompleteValidationResult{RunID: "run-" + b.ID, BusinessID: b.ID, Skipped: true, NextState: b.Status}, nil
}

type recordingSink struct {
	mu       sync.Mutex
	notified []string
}

func (r *recordingSink) Notify(ctx context.Context, b model.Business, res *model.CompleteValidationResult) error {
	r.mu.Lock()
	r.notified = append(r.notified, b.ID)
	r.mu.Unlock()
	return nil
}

func result(id string, verdict model.Verdict, next model.ValidationState) *model.CompleteValidationResult {
	return &model.CompleteValidationResult{
		RunID:      "run-" + id,
		BusinessID: id,
		IsValid:    verdict == model.VerdictValid,
		Verdict:    verdict,
		NextState:  next,
	}
}

func TestProcessBatchStats(t *testing.T) {
	st := newMemStore()
	for _, b := range []model.Business{
		{ID: "b1", Name: "One", Status: model.StatePending},
		{ID: "b2", Name: "Two", Status: model.StatePending},
		{ID: "b3", Name: "Three", Status: model.StatePending},
		{ID: "b4", Name: "Four", Status: model.StateValidScraped},
	} {
		require.NoError(t, st.UpsertBusiness(context.Background(), b))
	}

	v := &fakeValidator{results: map[string]*model.CompleteValidationResult{
		"b1": result("b1", model.VerdictValid, model.StateValidScraped),
		"b2": result("b2", model.VerdictInvalid, model.StateInvalidMismatch),
		"b3": result("b3", model.VerdictMissing, model.StateNeedsDiscovery),
	}}

	r := New(st, v, nil, Options{MaxConcurrent: 2})
	businesses, err := st.ListByStatus(context.Background(), []model.ValidationState{model.StatePending, model.StateValidScraped}, 10)
	require.NoError(t, err)

	stats, err := r.ProcessBatch(context.Background(), businesses, validator.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Processed)
	assert.Equal(t, 1, stats.Valid)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 1, stats.Missing)
	assert.Equal(t, 1, stats.Skipped)
	assert.Len(t, st.results, 4, "every run persists a result, skips included")

	b1, err := st.GetBusiness(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StateValidScraped, b1.Status)
}

func TestProcessPendingDrawsWorkStates(t *testing.T) {
	st := newMemStore()
	for _, b := range []model.Business{
		{ID: "b1", Status: model.StatePending},
		{ID: "b2", Status: model.StateNeedsDiscovery},
		{ID: "b3", Status: model.StateValidScraped},
		{ID: "b4", Status: model.StateManualReview},
	} {
		require.NoError(t, st.UpsertBusiness(context.Background(), b))
	}

	v := &fakeValidator{}
	r := New(st, v, nil, Options{})
	_, err := r.ProcessPending(context.Background(), 10)
	require.NoError(t, err)

	assert.Contains(t, v.calls, "b1")
	assert.Contains(t, v.calls, "b2")
	assert.NotContains(t, v.calls, "b3", "terminal businesses are not queued")
	assert.NotContains(t, v.calls, "b4", "holding businesses are not queued")
}

func TestProcessBatchDeadLetters(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.UpsertBusiness(context.Background(), model.Business{ID: "b1", Status: model.StatePending}))

	v := &fakeValidator{err: errors.New("boom")}
	r := New(st, v, nil, Options{MaxAttempts: 2})

	stats, err := r.ProcessBatch(context.Background(), []model.Business{{ID: "b1", Status: model.StatePending}}, validator.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Errored)
	require.Len(t, st.results, 1)
	assert.Equal(t, model.StateError, st.results[0].NextState)
	assert.Equal(t, model.VerdictError, st.results[0].Verdict)

	b1, err := st.GetBusiness(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StateError, b1.Status)
}

func TestProcessBatchNotifiesReview(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.UpsertBusiness(context.Background(), model.Business{ID: "b1", Status: model.StatePending}))

	v := &fakeValidator{results: map[string]*model.CompleteValidationResult{
		"b1": result("b1", model.VerdictError, model.StateManualReview),
	}}
	sink := &recordingSink{}
	r := New(st, v, sink, Options{})

	_, err := r.ProcessBatch(context.Background(), []model.Business{{ID: "b1", Status: model.StatePending}}, validator.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"b1"}, sink.notified)
}

func TestInFlightLock(t *testing.T) {
	r := New(newMemStore(), &fakeValidator{}, nil, Options{})

	require.True(t, r.tryLock("b1"))
	assert.False(t, r.tryLock("b1"), "second acquisition must fail while in flight")
	assert.True(t, r.tryLock("b2"), "other businesses are unaffected")

	r.unlock("b1")
	assert.True(t, r.tryLock("b1"), "lock is released after processing")
}

func TestProcessOneSkipsLockedBusiness(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.UpsertBusiness(context.Background(), model.Business{ID: "b1", Status: model.StatePending}))

	v := &fakeValidator{results: map[string]*model.CompleteValidationResult{
		"b1": result("b1", model.VerdictValid, model.StateValidScraped),
	}}
	r := New(st, v, nil, Options{})

	require.True(t, r.tryLock("b1"))
	verdict := r.processOne(context.Background(), model.Business{ID: "b1", Status: model.StatePending}, validator.RunOptions{})

	assert.Empty(t, string(verdict))
	assert.Zero(t, v.calls["b1"], "a locked business must not be validated again")
}
