package relay

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mahfuzr/reposter/relay/internal/browser"
	"github.com/mahfuzr/reposter/relay/internal/discover"
	"github.com/mahfuzr/reposter/relay/internal/publish"
	"github.com/mahfuzr/reposter/relay/internal/scheduler"
	"github.com/mahfuzr/reposter/relay/internal/scrape"
)

// Config configures the relay service.
type Config struct {
	// LinksFile is the JSON link queue. Default: "scraped_links.json".
	LinksFile string `yaml:"links_file"`
	// KeywordsFile is the JSON keyword queue. Default: "keywords.json".
	KeywordsFile string `yaml:"keywords_file"`
	// HistoryFile is the SQLite publish-history database. Empty disables
	// history.
	HistoryFile string `yaml:"history_file"`
	// FilterMode selects the discovery filtering policy, "keyword" or
	// "marker". Default: "keyword".
	FilterMode string `yaml:"filter_mode"`

	Browser   browser.Config   `yaml:"browser"`
	Discover  discover.Config  `yaml:"discover"`
	Scrape    scrape.Config    `yaml:"scrape"`
	Facebook  publish.Config   `yaml:"facebook"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

func (c *Config) defaults() {
	if c.LinksFile == "" {
		c.LinksFile = "scraped_links.json"
	}
	if c.KeywordsFile == "" {
		c.KeywordsFile = "keywords.json"
	}
	if c.FilterMode == "" {
		c.FilterMode = string(discover.ModeKeyword)
	}
}

func (c *Config) validate() error {
	switch discover.Mode(c.FilterMode) {
	case discover.ModeKeyword, discover.ModeMarker:
		return nil
	default:
		return fmt.Errorf("%w: filter_mode %q", ErrInvalidInput, c.FilterMode)
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
