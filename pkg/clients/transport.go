package clients

import (
	"net"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single upstream attempt. The host throttle already
// keeps one request per host in flight, so a hung connection would stall
// every request queued behind it.
const DefaultTimeout = 20 * time.Second

// DefaultTransport returns a transport sized for a handful of public API hosts.
// Requests per host are serialized by HostThrottle, so only a few idle
// connections per host are ever reused.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,

		MaxConnsPerHost:     4,
		MaxIdleConnsPerHost: 2,
		MaxIdleConns:        64,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient returns a client using DefaultTransport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: DefaultTransport(),
	}
}
