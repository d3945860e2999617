package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/kiliankoe/threader/pkg/cache"
	"github.com/kiliankoe/threader/pkg/logging"
)

const (
	DefaultCacheTTL        = 2 * time.Minute
	DefaultCacheMaxEntries = 512
	DefaultUserAgent       = "threader/1.0 (+https://github.com/kiliankoe/threader)"

	maxBodyBytes = 8 << 20
)

// FetcherConfig configures a Fetcher. Zero values pick the defaults.
type FetcherConfig struct {
	// Name labels logs and metrics ("mastodon", "bluesky").
	Name string

	MinGap          time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	UserAgent       string

	HTTPClient *http.Client

	// Retry overrides DefaultHTTPExecutorConfig. Set MaxRetries to 0 to disable retries.
	Retry *HTTPExecutorConfig

	// DisableCircuitBreaker skips the per-fetcher breaker.
	DisableCircuitBreaker bool

	Logger logging.Logger
}

// Fetcher performs read-only JSON GETs against public APIs. Each instance owns
// its host throttle, response cache and in-flight map, so adapters and tests
// never share state by accident.
type Fetcher struct {
	name      string
	userAgent string
	client    *http.Client
	throttle  *HostThrottle
	cache     *cache.Cache[[]byte]
	executor  failsafe.Executor[*http.Response]
	retryable func(*http.Response, error) bool
	breaker   *CircuitBreaker
	logger    logging.Logger
	now       func() time.Time
}

// NewFetcher builds a fetcher from cfg.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Name == "" {
		cfg.Name = "fetcher"
	}
	if cfg.MinGap == 0 {
		cfg.MinGap = DefaultMinGap
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.CacheMaxEntries == 0 {
		cfg.CacheMaxEntries = DefaultCacheMaxEntries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(DefaultTimeout)
	}
	logger := logging.OrDiscard(cfg.Logger)

	retry := DefaultHTTPExecutorConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	f := &Fetcher{
		name:      cfg.Name,
		userAgent: cfg.UserAgent,
		client:    cfg.HTTPClient,
		throttle:  NewHostThrottle(cfg.MinGap),
		logger:    logger,
		now:       time.Now,
	}

	if !cfg.DisableCircuitBreaker {
		cbCfg := DefaultCircuitBreakerConfig(cfg.Name)
		cbCfg.Logger = logger
		f.breaker = NewCircuitBreaker(cbCfg)
		retry.CircuitBreaker = f.breaker
	}
	shouldRetry := retry.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}
	retry.ShouldRetry = shouldRetry
	f.retryable = shouldRetry
	f.executor = NewHTTPExecutor(retry)

	f.throttle.OnWait(func(_ string, waited time.Duration) {
		fetchThrottleWait.WithLabelValues(cfg.Name).Observe(waited.Seconds())
	})

	f.cache = cache.New(cache.Options[[]byte]{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
		Clone:      cache.CloneBytes,
	}, cache.MetricsHooks{
		OnHit:    cacheEventHook(cfg.Name, "hit"),
		OnMiss:   cacheEventHook(cfg.Name, "miss"),
		OnShared: cacheEventHook(cfg.Name, "shared"),
		OnStore:  cacheEventHook(cfg.Name, "store"),
		OnError:  cacheEventHook(cfg.Name, "error"),
	})

	return f
}

func (f *Fetcher) Name() string { return f.name }

// Breaker exposes the circuit breaker, or nil when disabled.
func (f *Fetcher) Breaker() *CircuitBreaker { return f.breaker }

// GetJSON fetches rawURL and decodes the body into out. Identical URLs share
// one upstream request while it is in flight and hit the response cache for
// the TTL afterwards; every caller decodes its own copy of the body.
func (f *Fetcher) GetJSON(ctx context.Context, rawURL string, out any) error {
	body, err := f.cache.Get(ctx, rawURL, f.load)
	fetchCacheEntries.WithLabelValues(f.name).Set(float64(f.cache.Len()))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (f *Fetcher) load(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("fetch %s: invalid url", rawURL)
	}
	host := u.Host

	start := f.now()
	defer func() {
		fetchRequestDuration.WithLabelValues(f.name).Observe(f.now().Sub(start).Seconds())
	}()

	//nolint:bodyclose // closed below once the final attempt is known
	resp, err := ExecuteHTTP(ctx, f.executor, func() (*http.Response, error) {
		return f.attempt(ctx, host, rawURL)
	})
	if resp == nil {
		fetchRequestsTotal.WithLabelValues(f.name, "error").Inc()
		if err == nil {
			err = errors.New("no response")
		}
		f.logger.WithFields(logging.Fields{
			"fetcher": f.name,
			"host":    host,
			"error":   err,
		}).Debug("upstream request failed")
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	fetchRequestsTotal.WithLabelValues(f.name, strconv.Itoa(resp.StatusCode)).Inc()

	body, readErr := readBody(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests {
		fetchRateLimited.WithLabelValues(f.name).Inc()
		rl := &RateLimitError{
			FetchError: FetchError{URL: rawURL, Status: resp.StatusCode, Detail: errorDetail(body)},
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), f.now()),
		}
		f.logger.WithFields(logging.Fields{
			"fetcher":     f.name,
			"host":        host,
			"retry_after": rl.RetryAfter.String(),
		}).Warn("upstream rate limited")
		return nil, rl
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fe := &FetchError{URL: rawURL, Status: resp.StatusCode, Detail: errorDetail(body)}
		f.logger.WithFields(logging.Fields{
			"fetcher": f.name,
			"host":    host,
			"status":  resp.StatusCode,
			"detail":  fe.Detail,
		}).Debug("upstream returned non-2xx")
		return nil, fe
	}
	if readErr != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, readErr)
	}
	return body, nil
}

// attempt is one try: wait for the host lane, dispatch, and buffer the body of
// responses that will be retried so the connection is released either way.
func (f *Fetcher) attempt(ctx context.Context, host, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	var resp *http.Response
	err = f.throttle.Do(ctx, host, func() error {
		var doErr error
		resp, doErr = f.client.Do(req)
		return doErr
	})
	if err != nil {
		return nil, err
	}
	if f.retryable(resp, nil) {
		body, _ := readBody(resp.Body)
		_ = resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
	}
	return resp, nil
}

func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return body, err
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}
