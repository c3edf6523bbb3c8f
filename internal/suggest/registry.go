package suggest

import (
	"sync"
	"time"
)

// Registry hands out one Selector per user so sessions stay independent.
// When the selector options carry WithIdleTTL, selectors unused for that long
// are discarded, at most once per TTL, on the next call to For.
type Registry struct {
	finder  ActivityFinder
	opts    []Option
	now     func() time.Time
	idleTTL time.Duration

	mu        sync.Mutex
	selectors map[string]*Selector
	lastSweep time.Time
}

// NewRegistry constructs a Registry; opts apply to every Selector it creates.
func NewRegistry(finder ActivityFinder, opts ...Option) *Registry {
	template := NewSelector(finder, opts...)
	return &Registry{
		finder:    finder,
		opts:      opts,
		now:       template.now,
		idleTTL:   template.idleTTL,
		selectors: make(map[string]*Selector),
		lastSweep: template.now(),
	}
}

// For returns the user's selector, creating it on first use or after the
// previous one went idle.
func (r *Registry) For(userID string) *Selector {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.idleTTL > 0 && now.Sub(r.lastSweep) >= r.idleTTL {
		r.evictIdle(now)
	}

	if s, ok := r.selectors[userID]; ok && !s.idle(now) {
		s.touch(now)
		return s
	}
	s := NewSelector(r.finder, r.opts...)
	r.selectors[userID] = s
	return s
}

// End discards the user's session state.
func (r *Registry) End(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.selectors, userID)
}

// Len returns how many sessions are held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.selectors)
}

// evictIdle drops idle selectors. Callers hold mu.
func (r *Registry) evictIdle(now time.Time) {
	for userID, s := range r.selectors {
		if s.idle(now) {
			delete(r.selectors, userID)
		}
	}
	r.lastSweep = now
}
