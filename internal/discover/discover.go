// Package discover finds candidate website URLs for businesses that have
// none, trying cheap methods before paid ones and never repeating a method
// already logged for the business.
package discover

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/pkg/jina"
)

// minSearchScore is the name-match threshold below which a search result is
// not trusted as the business's own site.
const minSearchScore = 0.5

// Options configures a Discoverer.
type Options struct {
	// DirectoryBlocklist lists hosts (matched by suffix) that are never
	// acceptable candidates: directories, aggregators, social profiles.
	DirectoryBlocklist []string

	// MaxResults caps how many search results are scored per query.
	MaxResults int

	// SearchRateLimit throttles paid search calls, in requests/sec.
	SearchRateLimit float64

	// ProbeTimeout bounds each reachability probe. Default: 5s.
	ProbeTimeout time.Duration
}

// Discoverer runs the URL discovery stage.
type Discoverer struct {
	search  jina.Client
	limiter *rate.Limiter
	probe   *http.Client
	opts    Options

	// reachableFn is swapped in tests to avoid live probes.
	reachableFn func(ctx context.Context, rawURL string) bool
}

// Outcome is one discovery pass: the stage result plus the attempts to append
// to the business's log.
type Outcome struct {
	Result   model.DiscoveryResult
	Attempts []model.DiscoveryAttempt
}

// New creates a Discoverer.
func New(search jina.Client, opts Options) *Discoverer {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.SearchRateLimit <= 0 {
		opts.SearchRateLimit = 2
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	d := &Discoverer{
		search:  search,
		limiter: rate.NewLimiter(rate.Limit(opts.SearchRateLimit), 1),
		probe: &http.Client{
			Timeout: opts.ProbeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		opts: opts,
	}
	d.reachableFn = d.reachable
	return d
}

// Discover tries each untried method in order and stops at the first
// candidate. Methods already present in log are skipped, so a paid search is
// never repeated for the same business. An error is returned only on caller
// cancellation; method failures are recorded as unsuccessful attempts.
func (d *Discoverer) Discover(ctx context.Context, b model.Business, log model.AttemptLog) (*Outcome, error) {
	out := &Outcome{Result: model.DiscoveryResult{Attempted: true}}

	for _, method := range model.AllDiscoveryMethods() {
		if log.Tried(method) {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		candidate, err := d.runMethod(ctx, method, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			zap.L().Warn("discovery method failed",
				zap.String("business_id", b.ID),
				zap.String("method", string(method)),
				zap.Error(err),
			)
		}

		attempt := model.DiscoveryAttempt{
			BusinessID:  b.ID,
			Method:      method,
			Found:       candidate != "",
			AttemptedAt: time.Now().UTC(),
		}
		if candidate != "" {
			attempt.CandidateURL = candidate
		}
		out.Attempts = append(out.Attempts, attempt)
		log = append(log, attempt)

		if candidate != "" {
			out.Result.Method = method
			out.Result.CandidateURL = candidate
			return out, nil
		}
	}

	out.Result.Exhausted = log.Exhausted()
	if len(out.Attempts) == 0 {
		out.Result.Attempted = false
		out.Result.SkipReason = "all discovery methods already attempted"
	}
	return out, nil
}

func (d *Discoverer) runMethod(ctx context.Context, method model.DiscoveryMethod, b model.Business) (string, error) {
	switch method {
	case model.DiscoveryMethodDomainGuess:
		return d.guessDomain(ctx, b)
	case model.DiscoveryMethodWebSearch:
		return d.webSearch(ctx, b)
	default:
		return "", eris.Errorf("discover: unknown method %q", method)
	}
}

// guessDomain probes obvious domains built from the business name. Free, so
// it always runs before search.
func (d *Discoverer) guessDomain(ctx context.Context, b model.Business) (string, error) {
	token := domainToken(b.Name)
	if len(token) < 3 {
		return "", nil
	}

	guesses := []string{
		token + ".com",
		token + ".net",
	}
	if city := domainToken(b.City); city != "" && len(token+city) <= 40 {
		guesses = append(guesses, token+city+".com")
	}

	for _, host := range guesses {
		if d.blocked(host) {
			continue
		}
		candidate := "https://" + host
		if d.reachableFn(ctx, candidate) {
			return candidate, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", nil
}

// webSearch queries the search API with the business name and location, then
// scores results by name-token overlap. Directory hosts are filtered before
// scoring so a strong Yelp result can never win.
func (d *Discoverer) webSearch(ctx context.Context, b model.Business) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	query := b.Name
	if loc := b.Location(); loc != "" {
		query = fmt.Sprintf("%s %s", b.Name, loc)
	}

	resp, err := d.search.Search(ctx, query)
	if err != nil {
		return "", eris.Wrap(err, "discover: web search")
	}

	bestURL := ""
	bestScore := 0.0
	for i, r := range resp.Data {
		if i >= d.opts.MaxResults {
			break
		}
		host := hostOf(r.URL)
		if host == "" || d.blocked(host) {
			continue
		}

		score := nameTokensMatch(b.Name, r.Title+" "+r.Description+" "+host)
		if score > bestScore {
			bestScore = score
			bestURL = r.URL
		}
	}

	if bestScore < minSearchScore {
		return "", nil
	}
	return bestURL, nil
}

// reachable does a HEAD probe, falling back to GET for servers that reject
// HEAD. Any response below 400 counts.
func (d *Discoverer) reachable(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := d.probe.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return false
		}
		resp, err = d.probe.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
	}

	return resp.StatusCode < 400
}

func (d *Discoverer) blocked(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for _, b := range d.opts.DirectoryBlocklist {
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
