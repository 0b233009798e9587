package browserless

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	var gotBody map[string]any
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/content", r.URL.Path)
		gotToken = r.URL.Query().Get("token")
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))

		w.Header().Set("X-Response-URL", "https://example.com/home")
		w.Header().Set("X-Response-Code", "200")
		_, _ = w.Write([]byte("<html>rendered</html>"))
	}))
	defer srv.Close()

	c := NewClient("secret", WithBaseURL(srv.URL))
	res, err := c.Render(context.Background(), RenderRequest{
		URL:       "http://example.com",
		WaitUntil: "networkidle2",
		Timeout:   10 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "http://example.com", gotBody["url"])
	gotoOpts, ok := gotBody["gotoOptions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "networkidle2", gotoOpts["waitUntil"])
	assert.Equal(t, float64(10000), gotoOpts["timeout"], "timeout is sent in milliseconds")

	assert.Equal(t, "<html>rendered</html>", res.HTML)
	assert.Equal(t, "https://example.com/home", res.FinalURL)
	assert.Equal(t, 200, res.StatusCode)
}

func TestRenderDefaultsFinalURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	res, err := c.Render(context.Background(), RenderRequest{URL: "http://example.com"})
	require.NoError(t, err)

	assert.Equal(t, "http://example.com", res.FinalURL)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestRenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("net::ERR_NAME_NOT_RESOLVED"))
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	_, err := c.Render(context.Background(), RenderRequest{URL: "http://nope.example"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "ERR_NAME_NOT_RESOLVED")
}

func TestScreenshot(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/screenshot", r.URL.Path)
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	data, err := c.Screenshot(context.Background(), "http://example.com")
	require.NoError(t, err)
	assert.Equal(t, png, data)
}

func TestEndpointWithoutKey(t *testing.T) {
	c := &httpClient{baseURL: "http://render.local"}
	assert.Equal(t, "http://render.local/content", c.endpoint("/content"))

	c.apiKey = "k"
	assert.Equal(t, "http://render.local/content?token=k", c.endpoint("/content"))
}
