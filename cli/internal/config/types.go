package config

import (
	"time"

	"github.com/kiliankoe/threader/pkg/threads"
)

// Fetch mirrors the fetch-layer knobs of the reader service.
type Fetch struct {
	MinGap          time.Duration `yaml:"min_gap,omitempty"`
	CacheTTL        time.Duration `yaml:"cache_ttl,omitempty"`
	CacheMaxEntries int           `yaml:"cache_max_entries,omitempty"`
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	UserAgent       string        `yaml:"user_agent,omitempty"`
	BlueskyAPIBase  string        `yaml:"bluesky_api_base,omitempty"`
}

type Follow struct {
	MaxRounds int `yaml:"max_rounds"`
	// MaxWait caps how long follow mode sleeps for a single rate limit.
	MaxWait time.Duration `yaml:"max_wait"`
}

type Config struct {
	Output  string          `yaml:"output"` // text | json | markdown
	NoColor bool            `yaml:"no_color,omitempty"`
	Fetch   Fetch           `yaml:"fetch"`
	Options threads.Options `yaml:"options"`
	Follow  Follow          `yaml:"follow"`
}
