// Package relay discovers question links on Quora, extracts their content
// with a stealth browser, and republishes it to a Facebook page.
//
// Link and keyword queues live in flat JSON files rewritten atomically;
// publish history goes to a local SQLite database. The recurring
// pick-extract-publish cycle runs on the scheduler; discovery is driven
// through the admin API.
package relay

import (
	"github.com/mahfuzr/reposter/relay/internal/browser"
	"github.com/mahfuzr/reposter/relay/internal/discover"
	"github.com/mahfuzr/reposter/relay/internal/history"
	"github.com/mahfuzr/reposter/relay/internal/publish"
	"github.com/mahfuzr/reposter/relay/internal/queue"
	"github.com/mahfuzr/reposter/relay/internal/scrape"
)

// Re-export the types the admin API serves.
type (
	Link            = queue.Link
	Keyword         = queue.Keyword
	LinkStats       = queue.Stats
	MergeResult     = queue.MergeResult
	DiscoverSummary = discover.Summary
	KeywordDetail   = discover.KeywordDetail
	ScrapeResult    = scrape.Result
	HistoryEntry    = history.Entry
)

// Re-export the dependency-injection surface so external consumers can
// supply fakes without reaching into internal packages.
type (
	Session        = browser.Session
	Opener         = browser.Opener
	BrowserConfig  = browser.Config
	FacebookConfig = publish.Config
)

// Filter modes for discovery.
const (
	ModeKeyword = string(discover.ModeKeyword)
	ModeMarker  = string(discover.ModeMarker)
)
