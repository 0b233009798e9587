package extract

import (
	"regexp"
	"strings"
)

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe   = regexp.MustCompile(`(?s)<[^>]+>`)
	dropRe  = regexp.MustCompile(`(?is)<(script|style|noscript|svg)[^>]*>.*?</(script|style|noscript|svg)>`)
	spaceRe = regexp.MustCompile(`\s+`)

	// US-centric phone formats: (555) 123-4567, 555-123-4567, +1 555 123 4567.
	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// maxTextLen caps extracted page text; enough for the judge, cheap to store.
const maxTextLen = 6000

// parseContent pulls structured signals out of rendered HTML.
func parseContent(html string) *contentSignals {
	title := ""
	if m := titleRe.FindStringSubmatch(html); len(m) > 1 {
		title = cleanWhitespace(m[1])
	}

	stripped := dropRe.ReplaceAllString(html, " ")
	text := cleanWhitespace(tagRe.ReplaceAllString(stripped, " "))
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}

	return &contentSignals{
		title:  title,
		phones: dedupe(phoneRe.FindAllString(text, 10)),
		emails: dedupe(lowercaseAll(emailRe.FindAllString(html, 10))),
		text:   text,
	}
}

type contentSignals struct {
	title  string
	phones []string
	emails []string
	text   string
}

// underConstructionMarkers flag parked or placeholder pages.
var underConstructionMarkers = []string{
	"under construction",
	"coming soon",
	"this domain is for sale",
	"buy this domain",
	"website expired",
	"account suspended",
	"default web page",
	"future home of",
	"parked free",
	"domain parking",
}

// qualityScore is a 0-1 heuristic over contact-info presence, text richness,
// and absence of parked-page markers. It feeds the judge as one signal among
// several and is never the sole basis for a verdict.
func qualityScore(c *contentSignals) float64 {
	score := 0.0

	if len(c.phones) > 0 {
		score += 0.25
	}
	if len(c.emails) > 0 {
		score += 0.15
	}
	if c.title != "" {
		score += 0.10
	}

	// Text richness, up to 0.5 at 2000+ chars of real content.
	richness := float64(len(c.text)) / 2000.0
	if richness > 1 {
		richness = 1
	}
	score += 0.5 * richness

	lower := strings.ToLower(c.text)
	for _, marker := range underConstructionMarkers {
		if strings.Contains(lower, marker) {
			score -= 0.4
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// blockMarkers identify bot-challenge interstitials in rendered HTML.
var blockMarkers = []string{
	"checking your browser before accessing",
	"cf-browser-verification",
	"attention required! | cloudflare",
	"verify you are a human",
	"enable javascript and cookies to continue",
	"access denied",
	"request unsuccessful. incapsula",
	"pardon our interruption",
}

// detectBlock reports whether the rendered HTML is a bot challenge rather
// than real page content.
func detectBlock(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func cleanWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func lowercaseAll(items []string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = strings.ToLower(it)
	}
	return out
}
