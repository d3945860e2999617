package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultRetryAfter = 2 * time.Second
	MaxRetryAfter     = 60 * time.Second

	maxDetailLength = 200
)

// FetchError is returned for any non-2xx upstream response.
type FetchError struct {
	URL    string
	Status int
	Detail string
}

func (e *FetchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.Status, e.Detail)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// RateLimitError is returned for HTTP 429. It wraps the FetchError so callers
// matching on *FetchError see it too.
type RateLimitError struct {
	FetchError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s (retry after %s)", e.FetchError.Error(), e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return &e.FetchError }

// RetryAfterMs is the backoff hint in milliseconds.
func (e *RateLimitError) RetryAfterMs() int64 {
	return e.RetryAfter.Milliseconds()
}

// ResumeAt is the earliest time a retry is worthwhile.
func (e *RateLimitError) ResumeAt(now time.Time) time.Time {
	return now.Add(e.RetryAfter)
}

// IsRateLimited unwraps err into a *RateLimitError.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Status
	}
	return 0
}

// ParseRetryAfter converts a Retry-After header value into a delay. Both the
// delay-seconds and HTTP-date forms are accepted; the result is clamped to
// [0, MaxRetryAfter] and falls back to DefaultRetryAfter when absent or invalid.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.ParseFloat(header, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return DefaultRetryAfter
		}
		// Checked before converting: large values overflow time.Duration.
		if secs >= MaxRetryAfter.Seconds() {
			return MaxRetryAfter
		}
		return clampRetryAfter(time.Duration(secs * float64(time.Second)))
	}
	if at, err := http.ParseTime(header); err == nil {
		return clampRetryAfter(at.Sub(now))
	}
	return DefaultRetryAfter
}

func clampRetryAfter(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxRetryAfter {
		return MaxRetryAfter
	}
	return d
}

// errorDetail pulls a human-readable message out of an error body. Mastodon
// uses {"error": "..."}; XRPC uses {"error": "Code", "message": "..."}.
func errorDetail(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var payload struct {
		Error            string `json:"error"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, candidate := range []string{payload.Message, payload.ErrorDescription, payload.Error} {
			if candidate = strings.TrimSpace(candidate); candidate != "" {
				return truncate(candidate)
			}
		}
		return ""
	}
	return truncate(trimmed)
}

func truncate(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
