// Package prescreen applies fast, network-free heuristics to candidate URLs
// before the expensive browser and LLM stages run.
package prescreen

import (
	"net/url"
	"strings"

	"github.com/sells-group/sitecheck/internal/model"
)

// Prescreen recommendation values.
const (
	RecommendationSkip    = "skip_playwright"
	RecommendationProceed = "proceed"
	RecommendationExpand  = "expand_url"
)

// rejectedExtensions are file types that can never be a business homepage.
var rejectedExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
	".zip", ".rar", ".7z", ".gz", ".tar",
	".mp3", ".mp4", ".mov", ".avi", ".wmv",
	".csv", ".txt", ".xml", ".json",
}

// cloudStorageHosts are object-storage and file-sharing domains. A link into
// one of these is a document, not a website.
var cloudStorageHosts = []string{
	"drive.google.com",
	"docs.google.com",
	"dropbox.com",
	"box.com",
	"onedrive.live.com",
	"1drv.ms",
	"s3.amazonaws.com",
	"storage.googleapis.com",
	"blob.core.windows.net",
	"wetransfer.com",
	"mediafire.com",
}

// shortenerHosts are link redirectors. These aren't rejected — the real URL
// behind them might be fine — but the caller should expand before rendering.
var shortenerHosts = []string{
	"bit.ly",
	"tinyurl.com",
	"goo.gl",
	"t.co",
	"ow.ly",
	"buff.ly",
	"rebrand.ly",
	"is.gd",
	"cutt.ly",
	"lnkd.in",
}

// placeholderValues are strings scrapers leave behind when a source has no
// real website field.
var placeholderValues = []string{
	"", "-", "n/a", "na", "none", "null", "undefined", "no website",
	"http://", "https://", "http://none", "https://none",
}

// Prescreen classifies a URL without touching the network. Directory and
// aggregator domains deliberately pass through: some host legitimate verified
// subpages, so that call belongs to the semantic judge.
func Prescreen(rawURL string) model.PrescreenResult {
	trimmed := strings.TrimSpace(strings.ToLower(rawURL))
	for _, p := range placeholderValues {
		if trimmed == p {
			return reject("placeholder_url")
		}
	}

	u, err := url.Parse(normalizeScheme(strings.TrimSpace(rawURL)))
	if err != nil || u.Hostname() == "" {
		return reject("malformed_url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return reject("unsupported_scheme")
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !strings.Contains(host, ".") {
		return reject("malformed_url")
	}

	if hostMatches(host, cloudStorageHosts) {
		return reject("cloud_storage_host")
	}

	path := strings.ToLower(u.Path)
	for _, ext := range rejectedExtensions {
		if strings.HasSuffix(path, ext) {
			return reject("file_extension")
		}
	}

	if hostMatches(host, shortenerHosts) {
		return model.PrescreenResult{
			ShouldValidate: true,
			Recommendation: RecommendationExpand,
		}
	}

	return model.PrescreenResult{
		ShouldValidate: true,
		Recommendation: RecommendationProceed,
	}
}

func reject(reason string) model.PrescreenResult {
	return model.PrescreenResult{
		ShouldValidate: false,
		SkipReason:     reason,
		Recommendation: RecommendationSkip,
	}
}

// hostMatches checks host against a list, matching exact hosts and subdomains.
func hostMatches(host string, list []string) bool {
	for _, entry := range list {
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

func normalizeScheme(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}
