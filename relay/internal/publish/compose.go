package publish

import "strings"

// ComposeMessage assembles the post text: title, body, and a source
// attribution line, separated by blank lines. The body is truncated to
// maxBodyChars runes with a trailing ellipsis when it overflows; title and
// attribution never count against the cap. Empty sections are omitted, the
// attribution line is always emitted.
func ComposeMessage(title, body, sourceURL string, maxBodyChars int) string {
	var b strings.Builder

	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	if body = strings.TrimSpace(body); body != "" {
		b.WriteString(truncateRunes(body, maxBodyChars))
		b.WriteString("\n\n")
	}
	b.WriteString("🔗 Source: ")
	b.WriteString(sourceURL)
	return b.String()
}

// truncateRunes cuts s to max runes and appends "..." when it was longer.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
