package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(retries int) *Fetcher {
	return NewFetcher(FetcherConfig{
		Name:                  "test",
		MinGap:                time.Millisecond,
		Retry:                 &HTTPExecutorConfig{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		DisableCircuitBreaker: true,
	})
}

type payload struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

func TestFetcherCoalescesConcurrentRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(50 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","tags":["a","b"]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	var wg sync.WaitGroup
	results := make([]payload, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.GetJSON(context.Background(), srv.URL+"/api/v1/statuses/1", &results[i]))
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
	results[0].Tags[0] = "mutated"
	require.Equal(t, "a", results[1].Tags[0])
}

func TestFetcherCachesSuccessfulResponses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"id":"1","tags":["a"]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	var first, second payload
	require.NoError(t, f.GetJSON(context.Background(), srv.URL+"/x", &first))
	first.Tags[0] = "changed"
	require.NoError(t, f.GetJSON(context.Background(), srv.URL+"/x", &second))

	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
	require.Equal(t, "a", second.Tags[0])
	require.Equal(t, 1, f.cache.Len())
}

func TestFetcherCancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	var hits int32
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		time.Sleep(150 * time.Millisecond)
		_, _ = w.Write([]byte(`{"id":"1","tags":["a"]}`))
	}))
	defer srv.Close()

	f := newTestFetcher(0)
	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		leaderErr <- f.GetJSON(leaderCtx, srv.URL+"/x", &payload{})
	}()
	<-arrived

	followerErr := make(chan error, 1)
	var out payload
	go func() {
		followerErr <- f.GetJSON(context.Background(), srv.URL+"/x", &out)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-leaderErr, context.Canceled)
	require.NoError(t, <-followerErr)
	require.Equal(t, "1", out.ID)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetcherRateLimitIsNotRetriedOrCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too many requests"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(2)
	var out payload
	err := f.GetJSON(context.Background(), srv.URL+"/limited", &out)

	rl, ok := IsRateLimited(err)
	require.True(t, ok, "expected rate limit error, got %v", err)
	require.Equal(t, int64(5000), rl.RetryAfterMs())
	require.Equal(t, "Too many requests", rl.Detail)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	_ = f.GetJSON(context.Background(), srv.URL+"/limited", &out)
	require.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetcherRateLimitDefaultsWithoutHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestFetcher(0).GetJSON(context.Background(), srv.URL, &payload{})
	rl, ok := IsRateLimited(err)
	require.True(t, ok)
	require.Equal(t, int64(2000), rl.RetryAfterMs())
}

func TestFetcherNotFoundCarriesDetail(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Record not found"}`))
	}))
	defer srv.Close()

	err := newTestFetcher(2).GetJSON(context.Background(), srv.URL+"/missing", &payload{})
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, StatusOf(err))

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, "Record not found", fe.Detail)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetcherRetriesGatewayErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ok"}`))
	}))
	defer srv.Close()

	var out payload
	require.NoError(t, newTestFetcher(2).GetJSON(context.Background(), srv.URL, &out))
	require.Equal(t, "ok", out.ID)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestFetcherReportsLastGatewayStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()

	err := newTestFetcher(1).GetJSON(context.Background(), srv.URL, &payload{})
	require.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestFetcherDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	err := newTestFetcher(0).GetJSON(context.Background(), srv.URL, &payload{})
	require.ErrorContains(t, err, "decode")
}
