// Package platforms wires the fetch layer, API clients and adapters for every
// supported platform into one registry.
package platforms

import (
	"time"

	"github.com/kiliankoe/threader/pkg/clients"
	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	mclient "github.com/kiliankoe/threader/pkg/clients/mastodon"
	"github.com/kiliankoe/threader/pkg/config"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/threads"
	"github.com/kiliankoe/threader/pkg/threads/bluesky"
	"github.com/kiliankoe/threader/pkg/threads/mastodon"
	"github.com/kiliankoe/threader/pkg/version"
)

type Config struct {
	MinGap          time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	UserAgent       string
	HTTPTimeout     time.Duration
	BlueskyBaseURL  string
	// MastodonScheme is "https" outside tests.
	MastodonScheme        string
	DisableCircuitBreaker bool
}

// ConfigFromEnv reads FETCH_MIN_GAP, FETCH_CACHE_TTL, FETCH_CACHE_MAX_ENTRIES,
// FETCH_USER_AGENT, FETCH_TIMEOUT, FETCH_DISABLE_CIRCUIT_BREAKER and
// BLUESKY_API_BASE.
func ConfigFromEnv() Config {
	return Config{
		MinGap:          config.GetEnvDuration("FETCH_MIN_GAP", clients.DefaultMinGap),
		CacheTTL:        config.GetEnvDuration("FETCH_CACHE_TTL", clients.DefaultCacheTTL),
		CacheMaxEntries: config.GetEnvInt("FETCH_CACHE_MAX_ENTRIES", clients.DefaultCacheMaxEntries),
		UserAgent:       config.GetEnv("FETCH_USER_AGENT", version.UserAgent()),
		HTTPTimeout:     config.GetEnvDuration("FETCH_TIMEOUT", clients.DefaultTimeout),
		BlueskyBaseURL:  config.GetEnv("BLUESKY_API_BASE", bclient.DefaultBaseURL),

		DisableCircuitBreaker: config.GetEnvBool("FETCH_DISABLE_CIRCUIT_BREAKER", false),
	}
}

// Set is a ready registry plus the fetchers behind it.
type Set struct {
	Registry *threads.Registry
	Fetchers []*clients.Fetcher
}

// Breakers returns the enabled circuit breakers of all fetchers.
func (s *Set) Breakers() []*clients.CircuitBreaker {
	var out []*clients.CircuitBreaker
	for _, f := range s.Fetchers {
		if b := f.Breaker(); b != nil {
			out = append(out, b)
		}
	}
	return out
}

// New builds one fetcher per platform so throttles, caches and breakers never
// interfere across platforms. Bluesky is registered first since it only claims
// bsky.app, while Mastodon accepts any host with a status-shaped path.
func New(cfg Config, logger logging.Logger) *Set {
	logger = logging.OrDiscard(logger)
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = clients.DefaultTimeout
	}

	fetcher := func(name string) *clients.Fetcher {
		return clients.NewFetcher(clients.FetcherConfig{
			Name:                  name,
			MinGap:                cfg.MinGap,
			CacheTTL:              cfg.CacheTTL,
			CacheMaxEntries:       cfg.CacheMaxEntries,
			UserAgent:             cfg.UserAgent,
			HTTPClient:            clients.NewHTTPClient(cfg.HTTPTimeout),
			DisableCircuitBreaker: cfg.DisableCircuitBreaker,
			Logger:                logger,
		})
	}

	mastodonFetcher := fetcher("mastodon")
	blueskyFetcher := fetcher("bluesky")

	var mopts []mclient.Option
	if cfg.MastodonScheme != "" {
		mopts = append(mopts, mclient.WithScheme(cfg.MastodonScheme))
	}
	var bopts []bclient.Option
	if cfg.BlueskyBaseURL != "" {
		bopts = append(bopts, bclient.WithBaseURL(cfg.BlueskyBaseURL))
	}

	registry := threads.NewRegistry(logger,
		bluesky.New(bclient.NewClient(blueskyFetcher, bopts...), logger),
		mastodon.New(mclient.NewClient(mastodonFetcher, mopts...), logger),
	)
	return &Set{
		Registry: registry,
		Fetchers: []*clients.Fetcher{mastodonFetcher, blueskyFetcher},
	}
}
