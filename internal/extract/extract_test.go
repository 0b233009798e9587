package extract

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sitecheck/internal/model"
	"github.com/sells-group/sitecheck/pkg/browserless"
)

const samplePage = `<html><head><title>Acme Plumbing | Denver CO</title></head>
<body>
<h1>Acme Plumbing</h1>
<p>Family owned since 1984. Call us at (303) 555-0142 or email info@acmeplumbing.com.</p>
<p>We serve the greater Denver metro area with residential and commercial plumbing services.</p>
<script>var tracked = true;</script>
</body></html>`

func renderServer(t *testing.T, handler http.HandlerFunc) browserless.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return browserless.NewClient("", browserless.WithBaseURL(srv.URL))
}

func TestExtractSuccess(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Response-URL", "https://acmeplumbing.com/")
		w.Header().Set("X-Response-Code", "200")
		_, _ = w.Write([]byte(samplePage))
	})

	ex := New(client, Options{Timeout: 5 * time.Second})
	res, err := ex.Extract(context.Background(), "http://acmeplumbing.com")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "https://acmeplumbing.com/", res.FinalURL)
	require.NotNil(t, res.Content)
	assert.Equal(t, "Acme Plumbing | Denver CO", res.Content.Title)
	assert.Contains(t, res.Content.Phones, "(303) 555-0142")
	assert.Contains(t, res.Content.Emails, "info@acmeplumbing.com")
	assert.NotContains(t, res.Content.Text, "var tracked")
	assert.Greater(t, res.QualityScore, 0.3)
	assert.Empty(t, res.ErrorKind)
}

func TestExtractHTTPError(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Response-Code", "404")
		_, _ = w.Write([]byte("<html>not found</html>"))
	})

	ex := New(client, Options{Timeout: 5 * time.Second})
	res, err := ex.Extract(context.Background(), "http://example.com/gone")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, model.ExtractErrorHTTP, res.ErrorKind)
}

func TestExtractForbiddenIsBlocked(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Response-Code", "403")
		_, _ = w.Write([]byte("<html>forbidden</html>"))
	})

	ex := New(client, Options{Timeout: 5 * time.Second})
	res, err := ex.Extract(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, model.ExtractErrorBlocked, res.ErrorKind)
}

func TestExtractBotChallengeIsBlocked(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Checking your browser before accessing example.com</body></html>`))
	})

	ex := New(client, Options{Timeout: 5 * time.Second})
	res, err := ex.Extract(context.Background(), "http://example.com")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, model.ExtractErrorBlocked, res.ErrorKind)
}

func TestExtractTimeoutHardDeadline(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	timeout := 300 * time.Millisecond
	ex := New(client, Options{Timeout: timeout})

	start := time.Now()
	res, err := ex.Extract(context.Background(), "http://slow.example.com")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, model.ExtractErrorTimeout, res.ErrorKind)
	assert.Less(t, elapsed, timeout+2*time.Second, "stage must honor its own deadline")
}

func TestExtractConcurrencyCap(t *testing.T) {
	var inFlight, peak atomic.Int32
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(samplePage))
	})

	ex := New(client, Options{Timeout: 5 * time.Second, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ex.Extract(context.Background(), "http://example.com")
			assert.NoError(t, err)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2), "renders must never exceed the browser cap")
}

func TestExtractParentCancellation(t *testing.T) {
	client := renderServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	ex := New(client, Options{Timeout: 10 * time.Second})
	_, err := ex.Extract(ctx, "http://example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExtractErrorKind
	}{
		{
			name: "dns not found",
			err:  &net.DNSError{Err: "no such host", Name: "nope.example", IsNotFound: true},
			want: model.ExtractErrorDNS,
		},
		{
			name: "deadline exceeded",
			err:  context.DeadlineExceeded,
			want: model.ExtractErrorTimeout,
		},
		{
			name: "api error name not resolved",
			err:  &browserless.APIError{StatusCode: 500, Body: "net::ERR_NAME_NOT_RESOLVED at http://nope.example"},
			want: model.ExtractErrorDNS,
		},
		{
			name: "api error navigation timeout",
			err:  &browserless.APIError{StatusCode: 500, Body: "Navigation timeout of 30000 ms exceeded"},
			want: model.ExtractErrorTimeout,
		},
		{
			name: "api error connection refused",
			err:  &browserless.APIError{StatusCode: 500, Body: "net::ERR_CONNECTION_REFUSED"},
			want: model.ExtractErrorConnect,
		},
		{
			name: "api error other",
			err:  &browserless.APIError{StatusCode: 400, Body: "bad request"},
			want: model.ExtractErrorHTTP,
		},
		{
			name: "generic network error",
			err:  errors.New("dial tcp: connection refused"),
			want: model.ExtractErrorConnect,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestParseContentStripsMarkup(t *testing.T) {
	c := parseContent(`<html><head><title>  Test   Co </title><style>.x{color:red}</style></head>
<body><p>Hello <b>world</b></p><noscript>enable js</noscript></body></html>`)

	assert.Equal(t, "Test Co", c.title)
	assert.Equal(t, "Hello world", c.text)
	assert.NotContains(t, c.text, "color:red")
	assert.NotContains(t, c.text, "enable js")
}

func TestQualityScoreParkedPage(t *testing.T) {
	parked := parseContent(`<html><head><title>domain.com</title></head>
<body>This domain is for sale. Buy this domain today!</body></html>`)
	rich := parseContent(samplePage)

	assert.Less(t, qualityScore(parked), 0.2)
	assert.Greater(t, qualityScore(rich), qualityScore(parked))
}

func TestDetectBlock(t *testing.T) {
	assert.True(t, detectBlock(`<title>Attention Required! | Cloudflare</title>`))
	assert.True(t, detectBlock(`Verify you are a human by completing the action below`))
	assert.False(t, detectBlock(samplePage))
}
