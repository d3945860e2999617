package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kiliankoe/threader/api_reader/internal/validation"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/middleware"
	"github.com/kiliankoe/threader/pkg/session"
)

const unknownPlatform = "unknown"

type ThreadHandler struct {
	sessions SessionService
	parser   URLParser
	logger   logging.Logger
	metrics  *ReaderMetrics
	now      func() time.Time
}

func NewThreadHandler(sessions SessionService, parser URLParser, logger logging.Logger, metrics *ReaderMetrics) *ThreadHandler {
	return &ThreadHandler{
		sessions: sessions,
		parser:   parser,
		logger:   logging.OrDiscard(logger),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Register mounts the thread routes on rg.
func (h *ThreadHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/threads", h.Create)
	rg.GET("/threads/:id", h.Get)
	rg.POST("/threads/:id/continue", h.Continue)
	rg.DELETE("/threads/:id", h.Delete)
	rg.GET("/parse", h.Parse)
}

// Create handles POST /threads.
func (h *ThreadHandler) Create(c *gin.Context) {
	var req validation.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.ObserveStart(unknownPlatform, "bad_request", nil)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request format", Kind: "bad_request"})
		return
	}
	if errs := validation.ValidateStart(&req); len(errs) > 0 {
		h.metrics.ObserveStart(unknownPlatform, "validation_failed", nil)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Request failed validation", Kind: "validation", Details: errs})
		return
	}

	platform := h.platformOf(req.URL)
	s, err := h.sessions.Start(c.Request.Context(), req.URL, req.Options())
	if err != nil {
		_, kind := respondError(c, err)
		h.metrics.ObserveStart(platform, kind, nil)
		middleware.GetContextLogger(c, h.logger).WithFields(logging.Fields{
			"url":   req.URL,
			"kind":  kind,
			"error": err.Error(),
		}).Warn("Failed to start thread session")
		return
	}

	h.metrics.ObserveStart(platform, "ok", s)
	h.writeSession(c, http.StatusCreated, s)
}

// Get handles GET /threads/:id.
func (h *ThreadHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.writeSession(c, http.StatusOK, s)
}

// Continue handles POST /threads/:id/continue. The body is optional.
func (h *ThreadHandler) Continue(c *gin.Context) {
	var req validation.ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request format", Kind: "bad_request"})
		return
	}
	if errs := validation.ValidateContinue(&req); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Request failed validation", Kind: "validation", Details: errs})
		return
	}

	id := c.Param("id")
	s, err := h.sessions.Continue(c.Request.Context(), id, req.Options())
	if err != nil {
		_, kind := respondError(c, err)
		h.metrics.ObserveContinue(unknownPlatform, kind, nil)
		middleware.GetContextLogger(c, h.logger).WithFields(logging.Fields{
			"session_id": id,
			"kind":       kind,
			"error":      err.Error(),
		}).Warn("Failed to continue thread session")
		return
	}

	h.metrics.ObserveContinue(string(s.Thread.Platform), "ok", s)
	h.writeSession(c, http.StatusOK, s)
}

// Delete handles DELETE /threads/:id.
func (h *ThreadHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Parse handles GET /parse?url=.
func (h *ThreadHandler) Parse(c *gin.Context) {
	raw := c.Query("url")
	if raw == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "url query parameter is required", Kind: "bad_request"})
		return
	}
	parsed, err := h.parser.Parse(raw)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, parsed)
}

// writeSession adds Retry-After while the session is backing off so clients
// can schedule the next continue.
func (h *ThreadHandler) writeSession(c *gin.Context, status int, s *session.Session) {
	if now := h.now(); s.RateLimitedAt(now) {
		setRetryAfter(c, s.RateLimitedUntil.Sub(now))
	}
	c.JSON(status, s)
}

func (h *ThreadHandler) platformOf(raw string) string {
	parsed, err := h.parser.Parse(raw)
	if err != nil || parsed == nil {
		return unknownPlatform
	}
	return string(parsed.Platform)
}
