package threads

import (
	"context"
	"fmt"

	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/models"
)

// Registry holds adapters in priority order.
type Registry struct {
	adapters []Adapter
	logger   logging.Logger
}

func NewRegistry(logger logging.Logger, adapters ...Adapter) *Registry {
	return &Registry{
		adapters: adapters,
		logger:   logging.OrDiscard(logger),
	}
}

func (r *Registry) Adapters() []Adapter {
	out := make([]Adapter, len(r.adapters))
	copy(out, r.adapters)
	return out
}

// AdapterForURL returns the first adapter that recognizes raw, or nil. A
// recognizer that panics is logged and skipped.
func (r *Registry) AdapterForURL(raw string) Adapter {
	for _, a := range r.adapters {
		if r.safeCanHandle(a, raw) {
			return a
		}
	}
	return nil
}

func (r *Registry) safeCanHandle(a Adapter, raw string) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"platform": a.Platform(),
				"url":      raw,
				"panic":    fmt.Sprint(rec),
			}).Warn("url recognizer panicked")
			ok = false
		}
	}()
	return a.CanHandleURL(raw)
}

// AdapterForPlatform returns the adapter registered for p, or nil.
func (r *Registry) AdapterForPlatform(p models.Platform) Adapter {
	for _, a := range r.adapters {
		if a.Platform() == p {
			return a
		}
	}
	return nil
}

// Parse parses raw with the adapter that recognizes it.
func (r *Registry) Parse(raw string) (*ParsedURL, error) {
	a := r.AdapterForURL(raw)
	if a == nil {
		return nil, &ParseError{URL: raw, Reason: ErrNoAdapter.Error(), Err: ErrNoAdapter}
	}
	return a.ParseURL(raw)
}

func (r *Registry) FetchThread(ctx context.Context, raw string, opts Options) (*models.FetchResult, error) {
	a := r.AdapterForURL(raw)
	if a == nil {
		return nil, &ParseError{URL: raw, Reason: ErrNoAdapter.Error(), Err: ErrNoAdapter}
	}
	return a.FetchThread(ctx, raw, opts)
}

func (r *Registry) ContinueThread(ctx context.Context, thread *models.Thread, opts Options) (*models.FetchResult, error) {
	if thread == nil {
		return nil, fmt.Errorf("thread is nil")
	}
	a := r.AdapterForPlatform(thread.Platform)
	if a == nil {
		return nil, fmt.Errorf("no adapter registered for platform %q", thread.Platform)
	}
	return a.ContinueThread(ctx, thread, opts)
}
