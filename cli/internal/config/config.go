package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kiliankoe/threader/pkg/clients"
	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	"github.com/kiliankoe/threader/pkg/threads"
	"github.com/kiliankoe/threader/pkg/threads/platforms"
	"github.com/kiliankoe/threader/pkg/version"
)

const (
	OutputText     = "text"
	OutputJSON     = "json"
	OutputMarkdown = "markdown"

	DefaultMaxRounds = 10
	DefaultMaxWait   = time.Minute
)

// Default is what `threader config init` writes.
func Default() Config {
	return Config{
		Output: OutputText,
		Fetch: Fetch{
			MinGap:          clients.DefaultMinGap,
			CacheTTL:        clients.DefaultCacheTTL,
			CacheMaxEntries: clients.DefaultCacheMaxEntries,
			Timeout:         clients.DefaultTimeout,
			BlueskyAPIBase:  bclient.DefaultBaseURL,
		},
		Options: threads.Options{}.WithDefaults(),
		Follow: Follow{
			MaxRounds: DefaultMaxRounds,
			MaxWait:   DefaultMaxWait,
		},
	}
}

// ConfigPath returns ~/.threader/config.yaml, creating the directory.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".threader")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path (ConfigPath when empty). A missing file yields Default();
// fields absent from the file keep their defaults.
func Load(path string) (Config, string, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return Config{}, "", err
		}
	}
	cfg := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, path, nil
	}
	if err != nil {
		return Config{}, path, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, path, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

func Save(cfg Config, path string) error {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return err
		}
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func (c Config) Validate() error {
	switch c.Output {
	case "", OutputText, OutputJSON, OutputMarkdown:
	default:
		return fmt.Errorf("output must be one of %q, %q, %q; got %q", OutputText, OutputJSON, OutputMarkdown, c.Output)
	}
	if c.Follow.MaxRounds < 0 {
		return fmt.Errorf("follow.max_rounds must not be negative")
	}
	return nil
}

// Platforms converts the fetch section into the registry builder's config.
func (c Config) Platforms() platforms.Config {
	ua := c.Fetch.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return platforms.Config{
		MinGap:          c.Fetch.MinGap,
		CacheTTL:        c.Fetch.CacheTTL,
		CacheMaxEntries: c.Fetch.CacheMaxEntries,
		UserAgent:       ua,
		HTTPTimeout:     c.Fetch.Timeout,
		BlueskyBaseURL:  c.Fetch.BlueskyAPIBase,
	}
}
