package timer

import (
	"sync"
	"time"
)

// Registry owns the mapping from a session/chat id to its live countdown.
// One registry instance per process, injected into the managers so tests can
// use their own (and a faster tick).
type Registry struct {
	mu       sync.Mutex
	interval time.Duration
	active   map[string]chan struct{}
}

// New returns a registry ticking at 1-second resolution.
func New() *Registry {
	return NewWithInterval(time.Second)
}

// NewWithInterval returns a registry with a custom tick interval.
// Production code uses New; tests shrink the interval.
func NewWithInterval(interval time.Duration) *Registry {
	return &Registry{
		interval: interval,
		active:   make(map[string]chan struct{}),
	}
}

// Start begins a countdown for id. Each tick decrements the remaining count
// and invokes onTick(remaining); when remaining reaches zero, onExpire runs
// exactly once and the countdown stops. A live handle for the same id is
// replaced (callers are expected to Cancel first).
func (r *Registry) Start(id string, totalSeconds int, onTick func(remaining int), onExpire func()) {
	stop := make(chan struct{})

	r.mu.Lock()
	if prev, ok := r.active[id]; ok {
		close(prev)
	}
	r.active[id] = stop
	r.mu.Unlock()

	go r.run(id, stop, totalSeconds, onTick, onExpire)
}

// Cancel stops and removes the countdown for id if present.
// Safe to call when absent or already expired.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	if stop, ok := r.active[id]; ok {
		delete(r.active, id)
		close(stop)
	}
	r.mu.Unlock()
}

// CancelAll stops every live countdown. Used on shutdown and in test
// teardown.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	for id, stop := range r.active {
		delete(r.active, id)
		close(stop)
	}
	r.mu.Unlock()
}

// Active reports whether id currently has a live countdown.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Len returns the number of live countdowns.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Registry) run(id string, stop chan struct{}, totalSeconds int, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	remaining := totalSeconds
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			remaining--
			onTick(remaining)
			if remaining <= 0 {
				// remove our own handle before firing expiry so a concurrent
				// Cancel cannot race this into a second teardown
				if r.release(id, stop) {
					onExpire()
				}
				return
			}
		}
	}
}

// release removes the handle only if it is still ours. Returns false when a
// concurrent Cancel (or a replacing Start) already took it.
func (r *Registry) release(id string, stop chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[id]; ok && cur == stop {
		delete(r.active, id)
		return true
	}
	return false
}
