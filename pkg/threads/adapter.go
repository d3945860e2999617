// Package threads defines the platform adapter contract and the registry that
// picks an adapter for a post URL.
package threads

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kiliankoe/threader/pkg/models"
)

const (
	DefaultInitialContextRequests = 1
	DefaultMaxContextRequests     = 4
	DefaultMaxParentLookups       = 12

	minContextBudget   = 30
	maxContextBudget   = 1000
	contextBudgetScale = 120
)

// Adapter reconstructs threads for one platform.
type Adapter interface {
	Platform() models.Platform
	CanHandleURL(raw string) bool
	ParseURL(raw string) (*ParsedURL, error)
	FetchThread(ctx context.Context, raw string, opts Options) (*models.FetchResult, error)
	ContinueThread(ctx context.Context, thread *models.Thread, opts Options) (*models.FetchResult, error)
}

// ParsedURL is the platform-scoped reference extracted from a post URL.
// Instance is the host for Mastodon and "bsky.app" for Bluesky; Actor is the
// user segment (may be empty for /statuses/ URLs); ID is the status id or rkey.
type ParsedURL struct {
	Platform     models.Platform `json:"platform"`
	Instance     string          `json:"instance"`
	Actor        string          `json:"actor,omitempty"`
	ID           string          `json:"id"`
	CanonicalURL string          `json:"canonicalUrl"`
}

// Options are the fetch budgets a caller may tune. Non-positive values fall
// back to the defaults.
type Options struct {
	InitialContextRequests int `json:"initialContextRequests,omitempty" yaml:"initial_context_requests,omitempty"`
	MaxContextRequests     int `json:"maxContextRequests,omitempty" yaml:"max_context_requests,omitempty"`
	MaxParentLookups       int `json:"maxParentLookups,omitempty" yaml:"max_parent_lookups,omitempty"`
}

func (o Options) WithDefaults() Options {
	if o.InitialContextRequests <= 0 {
		o.InitialContextRequests = DefaultInitialContextRequests
	}
	if o.MaxContextRequests <= 0 {
		o.MaxContextRequests = DefaultMaxContextRequests
	}
	if o.MaxParentLookups <= 0 {
		o.MaxParentLookups = DefaultMaxParentLookups
	}
	return o
}

// ContextBudget turns a "context requests" hint into a request/depth budget:
// round(hint*120) clamped to [30, 1000].
func ContextBudget(hint int) int {
	budget := int(math.Round(float64(hint) * contextBudgetScale))
	if budget < minContextBudget {
		return minContextBudget
	}
	if budget > maxContextBudget {
		return maxContextBudget
	}
	return budget
}

// ValidateThread checks that thread can be continued by an adapter for platform.
func ValidateThread(thread *models.Thread, platform models.Platform) error {
	if thread == nil {
		return errors.New("thread is nil")
	}
	if thread.Platform != platform {
		return fmt.Errorf("thread platform %q cannot be continued by the %s adapter", thread.Platform, platform)
	}
	if len(thread.Posts) == 0 {
		return errors.New("thread has no posts")
	}
	return nil
}
