// Package session tracks thread reconstructions across continuation calls.
// Each session carries a generation counter; a continuation computed against
// an older generation is discarded instead of being written back.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

const DefaultTTL = 30 * time.Minute

var (
	ErrNotFound   = errors.New("session not found")
	ErrSuperseded = errors.New("session was superseded by a newer continuation")
	ErrExists     = errors.New("session already exists")
)

type Session struct {
	ID               string          `json:"id"`
	Generation       uint64          `json:"generation"`
	SourceURL        string          `json:"sourceUrl"`
	Options          threads.Options `json:"options"`
	Thread           *models.Thread  `json:"thread"`
	HasMore          bool            `json:"hasMore"`
	LastAddedCount   int             `json:"lastAddedCount"`
	RateLimitedUntil time.Time       `json:"rateLimitedUntil,omitzero"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// RateLimitedAt reports whether upstream asked us to back off past now.
func (s *Session) RateLimitedAt(now time.Time) bool {
	return s != nil && now.Before(s.RateLimitedUntil)
}

// Clone copies s including its thread's post slice.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Thread = s.Thread.Clone()
	return &out
}

// Store persists sessions. CompareAndSwap replaces the stored session only if
// its generation still equals expectedGeneration; otherwise ErrSuperseded.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	CompareAndSwap(ctx context.Context, s *Session, expectedGeneration uint64) error
	Delete(ctx context.Context, id string) error
}
