package scrape

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

// bodyConverter turns an extracted content block into publishable text:
// sanitize the markup, then convert to markdown. When conversion yields
// nothing, the block's plain innerText is used instead.
type bodyConverter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

func newBodyConverter() *bodyConverter {
	return &bodyConverter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Convert produces the body text for blockHTML, falling back to fallbackText
// when the HTML path produces nothing.
func (c *bodyConverter) Convert(blockHTML, sourceURL, fallbackText string) string {
	if strings.TrimSpace(blockHTML) == "" {
		return strings.TrimSpace(fallbackText)
	}
	sanitized := c.policy.Sanitize(blockHTML)
	text, err := c.md.ConvertString(sanitized, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(text) == "" {
		return strings.TrimSpace(fallbackText)
	}
	return strings.TrimSpace(text)
}
