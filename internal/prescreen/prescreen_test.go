package prescreen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrescreenRejects(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{"empty", "", "placeholder_url"},
		{"dash", "-", "placeholder_url"},
		{"na", "N/A", "placeholder_url"},
		{"none", "none", "placeholder_url"},
		{"bare scheme", "http://", "placeholder_url"},
		{"scraper none", "https://none", "placeholder_url"},
		{"no dot", "localhost", "malformed_url"},
		{"garbage", "ht tp://%%%", "malformed_url"},
		{"ftp", "ftp://files.example.com", "unsupported_scheme"},
		{"google drive", "https://drive.google.com/file/d/abc123/view", "cloud_storage_host"},
		{"dropbox", "https://www.dropbox.com/s/abc/menu.pdf", "cloud_storage_host"},
		{"s3", "https://mybucket.s3.amazonaws.com/brochure.pdf", "cloud_storage_host"},
		{"pdf", "https://example.com/menu.pdf", "file_extension"},
		{"image", "https://example.com/logo.PNG", "file_extension"},
		{"archive", "https://example.com/files/backup.zip", "file_extension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Prescreen(tt.url)
			assert.False(t, res.ShouldValidate)
			assert.Equal(t, tt.reason, res.SkipReason)
			assert.Equal(t, RecommendationSkip, res.Recommendation)
		})
	}
}

func TestPrescreenProceeds(t *testing.T) {
	urls := []string{
		"https://acmeplumbing.com",
		"http://www.example.com/about",
		"acmeplumbing.com", // scheme gets assumed
		"https://example.com/menu",
		// Directories pass through; the judge decides those.
		"https://www.yelp.com/biz/acme-plumbing-denver",
		"https://www.facebook.com/acmeplumbing",
	}

	for _, u := range urls {
		res := Prescreen(u)
		assert.True(t, res.ShouldValidate, "url %q", u)
		assert.Equal(t, RecommendationProceed, res.Recommendation, "url %q", u)
		assert.Empty(t, res.SkipReason)
	}
}

func TestPrescreenShortenersExpand(t *testing.T) {
	for _, u := range []string{"https://bit.ly/3abc", "http://tinyurl.com/xyz"} {
		res := Prescreen(u)
		assert.True(t, res.ShouldValidate, "url %q", u)
		assert.Equal(t, RecommendationExpand, res.Recommendation, "url %q", u)
	}
}

func TestHostMatches(t *testing.T) {
	list := []string{"dropbox.com"}
	assert.True(t, hostMatches("dropbox.com", list))
	assert.True(t, hostMatches("files.dropbox.com", list))
	assert.False(t, hostMatches("notdropbox.com", list))
}
