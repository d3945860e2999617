package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kiliankoe/threader/pkg/ctxkeys"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/threads"
)

// Manager runs fetches and continuations on behalf of sessions.
type Manager struct {
	store    Store
	registry *threads.Registry
	logger   logging.Logger
	locks    *keyedMutex
	now      func() time.Time
	newID    func() string
}

func NewManager(store Store, registry *threads.Registry, logger logging.Logger) *Manager {
	return &Manager{
		store:    store,
		registry: registry,
		logger:   logging.OrDiscard(logger),
		locks:    newKeyedMutex(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Start fetches the thread for raw and stores it as generation 1 of a new
// session. Registry errors are returned unchanged.
func (m *Manager) Start(ctx context.Context, raw string, opts threads.Options) (*Session, error) {
	res, err := m.registry.FetchThread(ctx, raw, opts)
	if err != nil {
		return nil, err
	}

	now := m.now()
	s := &Session{
		ID:               m.newID(),
		Generation:       1,
		SourceURL:        res.Thread.SourceURL,
		Options:          opts,
		Thread:           res.Thread,
		HasMore:          res.HasMore,
		LastAddedCount:   res.AddedCount,
		RateLimitedUntil: res.RateLimitedUntil,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}

	m.log(ctx, logging.Fields{
		"session_id": s.ID,
		"platform":   s.Thread.Platform,
		"posts":      len(s.Thread.Posts),
		"has_more":   s.HasMore,
	}).Info("Started thread session")
	return s, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Continue extends the session's thread. Calls for the same id are serialized
// within this process. While the session is rate limited the stored state is
// returned without contacting upstream. If another writer advanced the
// session while this continuation was running, the result is dropped and
// ErrSuperseded is returned.
func (m *Manager) Continue(ctx context.Context, id string, opts threads.Options) (*Session, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	current, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.RateLimitedAt(m.now()) {
		m.log(ctx, logging.Fields{
			"session_id":         id,
			"rate_limited_until": current.RateLimitedUntil,
		}).Debug("Session still rate limited; skipping upstream")
		current.LastAddedCount = 0
		return current, nil
	}

	res, err := m.registry.ContinueThread(ctx, current.Thread, mergeOptions(current.Options, opts))
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	next.Generation = current.Generation + 1
	next.Thread = res.Thread
	next.HasMore = res.HasMore
	next.LastAddedCount = res.AddedCount
	next.RateLimitedUntil = res.RateLimitedUntil
	next.UpdatedAt = m.now()

	if err := m.store.CompareAndSwap(ctx, next, current.Generation); err != nil {
		if errors.Is(err, ErrSuperseded) {
			m.log(ctx, logging.Fields{
				"session_id": id,
				"generation": current.Generation,
			}).Warn("Discarding continuation for superseded session")
		}
		return nil, err
	}

	m.log(ctx, logging.Fields{
		"session_id":   id,
		"generation":   next.Generation,
		"added":        res.AddedCount,
		"has_more":     next.HasMore,
		"rate_limited": res.RateLimited(),
	}).Info("Continued thread session")
	return next, nil
}

// log tags entries with the request id the HTTP layer put on ctx.
func (m *Manager) log(ctx context.Context, fields logging.Fields) *logrus.Entry {
	if id := ctxkeys.GetRequestID(ctx); id != "" {
		fields["request_id"] = id
	}
	if ip := ctxkeys.GetClientIP(ctx); ip != "" {
		fields["client_ip"] = ip
	}
	return m.logger.WithFields(fields)
}

// mergeOptions overrides base with every positive field of override.
func mergeOptions(base, override threads.Options) threads.Options {
	if override.InitialContextRequests > 0 {
		base.InitialContextRequests = override.InitialContextRequests
	}
	if override.MaxContextRequests > 0 {
		base.MaxContextRequests = override.MaxContextRequests
	}
	if override.MaxParentLookups > 0 {
		base.MaxParentLookups = override.MaxParentLookups
	}
	return base
}

type refMutex struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key and forgets it once nobody holds or
// waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
