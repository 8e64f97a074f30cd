package discover

import (
	"net/url"
	"strings"
)

// FilterLinks normalizes raw href values against the page URL and applies
// the selected filtering policy, deduplicating within the batch while
// preserving first-seen order.
func FilterLinks(hrefs []string, pageURL, keyword string, mode Mode, marker string) []string {
	var base *url.URL
	if pageURL != "" {
		base, _ = url.Parse(pageURL)
	}

	tokens := keywordTokens(keyword)
	seen := make(map[string]bool)
	var out []string

	for _, href := range hrefs {
		if href == "" {
			continue
		}
		abs, ok := normalize(href, base)
		if !ok {
			continue
		}
		if strings.Contains(abs, "/profile/") {
			continue
		}
		switch mode {
		case ModeMarker:
			if !markerMatch(abs, marker) {
				continue
			}
		default:
			if !keywordMatch(abs, tokens) {
				continue
			}
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}

// normalize resolves href against base and keeps only http(s) URLs.
func normalize(href string, base *url.URL) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	return abs.String(), true
}

// keywordTokens splits the search keyword into lowercase words.
func keywordTokens(keyword string) []string {
	var tokens []string
	for _, t := range strings.Fields(keyword) {
		tokens = append(tokens, strings.ToLower(t))
	}
	return tokens
}

// keywordMatch keeps a URL whose lowercase form contains at least one token.
func keywordMatch(u string, tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	lower := strings.ToLower(u)
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// markerMatch keeps question URLs carrying the answer marker parameter,
// skipping search, profile, and settings pages.
func markerMatch(u, marker string) bool {
	for _, skip := range []string{"/search", "/profile", "/settings"} {
		if strings.Contains(u, skip) {
			return false
		}
	}
	return strings.Contains(u, "?"+marker+"=") || strings.Contains(u, "&"+marker+"=")
}
