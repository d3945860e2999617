package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiliankoe/threader/pkg/clients"
	"github.com/kiliankoe/threader/pkg/session"
	"github.com/kiliankoe/threader/pkg/threads"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error        string   `json:"error"`
	Kind         string   `json:"kind"`
	Details      []string `json:"details,omitempty"`
	RetryAfterMs int64    `json:"retryAfterMs,omitempty"`
}

// classify maps an error onto an HTTP status and a stable kind string.
// Rate limits are checked first: a 429 is also a *FetchError.
func classify(err error) (int, string) {
	if _, ok := clients.IsRateLimited(err); ok {
		return http.StatusTooManyRequests, "rate_limited"
	}
	switch {
	case threads.IsParseError(err):
		return http.StatusUnprocessableEntity, "parse"
	case threads.IsLinkageError(err):
		return http.StatusNotFound, "linkage"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case clients.StatusOf(err) != 0:
		return http.StatusBadGateway, "upstream"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) (int, string) {
	status, kind := classify(err)
	body := errorResponse{Error: err.Error(), Kind: kind}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	if rl, ok := clients.IsRateLimited(err); ok {
		setRetryAfter(c, rl.RetryAfter)
		body.RetryAfterMs = rl.RetryAfterMs()
	}
	_ = c.Error(err)
	c.JSON(status, body)
	return status, kind
}

// setRetryAfter writes whole seconds, rounded up.
func setRetryAfter(c *gin.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	secs := int64((d + time.Second - 1) / time.Second)
	c.Header("Retry-After", strconv.FormatInt(secs, 10))
}
