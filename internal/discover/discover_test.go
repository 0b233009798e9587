package discover

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/pkg/jina"
)

type stubSearch struct {
	resp    *jina.SearchResponse
	err     error
	queries []string
}

func (s *stubSearch) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

var testBlocklist = []string{"yelp.com", "facebook.com", "yellowpages.com"}

func newTestDiscoverer(search jina.Client, reachable map[string]bool) *Discoverer {
	d := New(search, Options{
		DirectoryBlocklist: testBlocklist,
		SearchRateLimit:    1000,
	})
	d.reachableFn = func(ctx context.Context, rawURL string) bool {
		return reachable[rawURL]
	}
	return d
}

func TestDiscoverDomainGuessWins(t *testing.T) {
	search := &stubSearch{}
	d := newTestDiscoverer(search, map[string]bool{
		"https://acmeplumbing.com": true,
	})

	b := model.Business{ID: "b1", Name: "Acme Plumbing, LLC", City: "Denver"}
	out, err := d.Discover(context.Background(), b, nil)
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryMethodDomainGuess, out.Result.Method)
	assert.Equal(t, "https://acmeplumbing.com", out.Result.CandidateURL)
	require.Len(t, out.Attempts, 1)
	assert.True(t, out.Attempts[0].Found)
	assert.Empty(t, search.queries, "paid search must not run when a guess succeeds")
}

func TestDiscoverFallsBackToSearch(t *testing.T) {
	search := &stubSearch{resp: &jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{
			{Title: "Acme Plumbing - Yelp", URL: "https://www.yelp.com/biz/acme-plumbing-denver", Description: "Reviews of Acme Plumbing"},
			{Title: "Acme Plumbing | Denver's trusted plumbers", URL: "https://acme-plumbing-co.com", Description: "Acme Plumbing serves Denver"},
		},
	}}
	d := newTestDiscoverer(search, nil)

	b := model.Business{ID: "b1", Name: "Acme Plumbing", City: "Denver", State: "CO"}
	out, err := d.Discover(context.Background(), b, nil)
	require.NoError(t, err)

	assert.Equal(t, model.DiscoveryMethodWebSearch, out.Result.Method)
	assert.Equal(t, "https://acme-plumbing-co.com", out.Result.CandidateURL, "directory result must lose to the business's own site")
	require.Len(t, out.Attempts, 2)
	assert.False(t, out.Attempts[0].Found)
	assert.True(t, out.Attempts[1].Found)
	require.Len(t, search.queries, 1)
	assert.Contains(t, search.queries[0], "Denver")
}

func TestDiscoverSkipsTriedMethods(t *testing.T) {
	search := &stubSearch{resp: &jina.SearchResponse{Code: 200}}
	d := newTestDiscoverer(search, map[string]bool{
		"https://acmeplumbing.com": true,
	})

	log := model.AttemptLog{{
		BusinessID:  "b1",
		Method:      model.DiscoveryMethodDomainGuess,
		Found:       false,
		AttemptedAt: time.Now().Add(-24 * time.Hour),
	}}

	b := model.Business{ID: "b1", Name: "Acme Plumbing"}
	out, err := d.Discover(context.Background(), b, log)
	require.NoError(t, err)

	// domain_guess would have found a URL, but it was already tried.
	assert.Empty(t, out.Result.CandidateURL)
	require.Len(t, out.Attempts, 1)
	assert.Equal(t, model.DiscoveryMethodWebSearch, out.Attempts[0].Method)
	assert.True(t, out.Result.Exhausted)
}

func TestDiscoverAllMethodsExhausted(t *testing.T) {
	search := &stubSearch{}
	d := newTestDiscoverer(search, nil)

	now := time.Now()
	log := model.AttemptLog{
		{BusinessID: "b1", Method: model.DiscoveryMethodDomainGuess, AttemptedAt: now},
		{BusinessID: "b1", Method: model.DiscoveryMethodWebSearch, AttemptedAt: now},
	}

	out, err := d.Discover(context.Background(), model.Business{ID: "b1", Name: "Acme"}, log)
	require.NoError(t, err)

	assert.False(t, out.Result.Attempted)
	assert.True(t, out.Result.Exhausted)
	assert.Empty(t, out.Attempts)
	assert.Empty(t, search.queries)
}

func TestDiscoverLowScoreRejected(t *testing.T) {
	search := &stubSearch{resp: &jina.SearchResponse{
		Code: 200,
		Data: []jina.SearchResult{
			{Title: "Completely Unrelated Widgets", URL: "https://unrelated.example.com", Description: "widgets and gadgets"},
		},
	}}
	d := newTestDiscoverer(search, nil)

	out, err := d.Discover(context.Background(), model.Business{ID: "b1", Name: "Acme Plumbing"}, nil)
	require.NoError(t, err)

	assert.Empty(t, out.Result.CandidateURL)
	assert.True(t, out.Result.Exhausted)
}

func TestBlockedHostSuffixMatch(t *testing.T) {
	d := newTestDiscoverer(&stubSearch{}, nil)

	assert.True(t, d.blocked("yelp.com"))
	assert.True(t, d.blocked("www.yelp.com"))
	assert.True(t, d.blocked("m.yelp.com"))
	assert.False(t, d.blocked("notyelp.com"))
	assert.False(t, d.blocked("acmeplumbing.com"))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Plumbing, LLC", "acme plumbing"},
		{"Café Müller GmbH & Co", "cafe muller gmbh"},
		{"SMITH & SONS INC.", "smith sons"},
		{"Joe's Pizza Co.", "joe s pizza"},
		{"ABC Corp", "abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeName(tt.in), "input %q", tt.in)
	}
}

func TestDomainToken(t *testing.T) {
	assert.Equal(t, "acmeplumbing", domainToken("Acme Plumbing, LLC"))
	assert.Equal(t, "cafemuller", domainToken("Café Müller Ltd"))
}

func TestNameTokensMatch(t *testing.T) {
	assert.Equal(t, 1.0, nameTokensMatch("Acme Plumbing", "Acme Plumbing | Denver's best"))
	assert.Equal(t, 0.5, nameTokensMatch("Acme Plumbing", "Acme Widgets"))
	assert.Equal(t, 0.0, nameTokensMatch("Acme Plumbing", "totally different"))
}
