package clients

import (
	"context"
	"sync"
	"time"
)

// DefaultMinGap is the spacing enforced between two requests to the same host.
const DefaultMinGap = 160 * time.Millisecond

// HostThrottle serializes requests per host into a FIFO queue. At most one
// request per host is in flight, and each dispatch happens at least MinGap
// after the previous dispatch to that host. Different hosts do not wait on
// each other.
type HostThrottle struct {
	minGap time.Duration
	now    func() time.Time
	onWait func(host string, waited time.Duration)

	mu    sync.Mutex
	lanes map[string]*hostLane
}

type hostLane struct {
	busy         bool
	waiters      []chan struct{}
	lastDispatch time.Time
}

// NewHostThrottle creates a throttle; a non-positive gap still serializes but never sleeps.
func NewHostThrottle(minGap time.Duration) *HostThrottle {
	if minGap < 0 {
		minGap = 0
	}
	return &HostThrottle{
		minGap: minGap,
		now:    time.Now,
		lanes:  make(map[string]*hostLane),
	}
}

// OnWait registers a callback invoked with the total time a request spent queued.
func (t *HostThrottle) OnWait(fn func(host string, waited time.Duration)) {
	t.onWait = fn
}

func (t *HostThrottle) MinGap() time.Duration { return t.minGap }

// Do runs fn once the host's lane is free and the gap has elapsed. The lane is
// released when fn returns, whatever its result, so one failing request never
// blocks the ones queued behind it.
func (t *HostThrottle) Do(ctx context.Context, host string, fn func() error) error {
	start := t.now()
	if err := t.acquire(ctx, host); err != nil {
		return err
	}
	defer t.release(host)

	t.mu.Lock()
	lane := t.lanes[host]
	wait := time.Duration(0)
	if !lane.lastDispatch.IsZero() {
		wait = lane.lastDispatch.Add(t.minGap).Sub(t.now())
	}
	t.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	t.mu.Lock()
	lane.lastDispatch = t.now()
	t.mu.Unlock()

	if t.onWait != nil {
		t.onWait(host, t.now().Sub(start))
	}
	return fn()
}

func (t *HostThrottle) acquire(ctx context.Context, host string) error {
	t.mu.Lock()
	lane, ok := t.lanes[host]
	if !ok {
		lane = &hostLane{}
		t.lanes[host] = lane
	}
	if !lane.busy {
		lane.busy = true
		t.mu.Unlock()
		return nil
	}
	ticket := make(chan struct{})
	lane.waiters = append(lane.waiters, ticket)
	t.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range lane.waiters {
			if w == ticket {
				lane.waiters = append(lane.waiters[:i], lane.waiters[i+1:]...)
				t.mu.Unlock()
				return ctx.Err()
			}
		}
		t.mu.Unlock()
		// The lane was handed to us while we were giving up; pass it on.
		t.release(host)
		return ctx.Err()
	}
}

func (t *HostThrottle) release(host string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lane := t.lanes[host]
	if len(lane.waiters) > 0 {
		next := lane.waiters[0]
		lane.waiters = lane.waiters[1:]
		close(next)
		return
	}
	lane.busy = false
}

// Pending returns how many requests are queued (not counting the one in flight) for host.
func (t *HostThrottle) Pending(host string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if lane, ok := t.lanes[host]; ok {
		return len(lane.waiters)
	}
	return 0
}
