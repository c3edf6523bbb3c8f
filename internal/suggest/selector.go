// Package suggest picks activities to offer a user, avoiding repeats within a
// session and activities the user recently dismissed.
package suggest

import (
	"context"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/dailymenu/internal/domain"
	"example.com/dailymenu/internal/observability"
)

// DefaultCooldown is how long a dismissed activity stays out of rotation.
const DefaultCooldown = 60 * time.Minute

// ActivityFinder is the slice of domain.RecordStore the selector queries.
type ActivityFinder interface {
	FindActivities(ctx context.Context, query domain.ActivityQuery) ([]domain.Activity, error)
}

// Option configures optional behaviour for the Selector.
type Option func(*Selector)

// WithCooldown overrides the dismissal cooldown.
func WithCooldown(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Selector) {
		s.now = now
	}
}

// WithIdleTTL lets a Registry discard the selector once it has gone unused
// for d. Zero keeps it until the session is ended explicitly.
func WithIdleTTL(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithRand makes shuffling reproducible.
func WithRand(r *rand.Rand) Option {
	return func(s *Selector) {
		s.shuffle = r.Shuffle
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Selector) {
		s.logger = logger
	}
}

// Selector holds one session's exclusion state. It is safe for concurrent use;
// calls are serialized.
type Selector struct {
	finder   ActivityFinder
	cooldown time.Duration
	now      func() time.Time
	shuffle  func(n int, swap func(i, j int))
	logger   *log.Logger
	idleTTL  time.Duration

	mu          sync.Mutex
	sessionSeen domain.IDSet
	dismissed   map[uuid.UUID]time.Time
	lastServed  domain.IDSet
	lastUsed    time.Time
}

// NewSelector constructs a Selector over the given store.
func NewSelector(finder ActivityFinder, opts ...Option) *Selector {
	s := &Selector{
		finder:      finder,
		cooldown:    DefaultCooldown,
		now:         time.Now,
		shuffle:     rand.Shuffle,
		logger:      log.New(log.Writer(), "[suggest] ", log.LstdFlags),
		sessionSeen: domain.NewIDSet(),
		dismissed:   make(map[uuid.UUID]time.Time),
		lastServed:  domain.NewIDSet(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastUsed = s.now()
	return s
}

// Select returns up to c.Count matching activities in random order. Fewer are
// returned only when the eligible pool is smaller than requested.
func (s *Selector) Select(ctx context.Context, c Criteria) ([]domain.Activity, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = s.now()
	s.purgeExpired()

	dismissedIDs := domain.NewIDSet()
	for id := range s.dismissed {
		dismissedIDs.Add(id)
	}
	cooling := dismissedIDs.Union(c.Hidden)

	query := domain.ActivityQuery{
		MinMinutes: c.Window.Min,
		MaxMinutes: c.Window.Max,
		Energy:     c.Energy,
		Context:    c.Context,
		Exclude:    s.sessionSeen.Union(cooling),
	}
	pool, err := s.finder.FindActivities(ctx, query)
	if err != nil {
		return nil, err
	}

	exhausted := false
	if len(pool) == 0 {
		// Seen items may come back; dismissed ones stay out until they cool down.
		exhausted = true
		s.sessionSeen = domain.NewIDSet()
		query.Exclude = cooling
		pool, err = s.finder.FindActivities(ctx, query)
		if err != nil {
			return nil, err
		}
		observability.RecordPoolExhausted()
		s.logger.Printf("pool exhausted (window=%s energy=%s context=%s), session reset; %d eligible", c.Window, c.Energy, c.Context, len(pool))
	}

	s.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if exhausted && len(pool) > c.Count {
		last := s.lastServed
		sort.SliceStable(pool, func(i, j int) bool {
			return !last.Contains(pool[i].ID) && last.Contains(pool[j].ID)
		})
	}

	if len(pool) > c.Count {
		pool = pool[:c.Count]
	}

	s.lastServed = domain.NewIDSet()
	for _, a := range pool {
		s.sessionSeen.Add(a.ID)
		s.lastServed.Add(a.ID)
	}
	observability.RecordSuggestionsServed(len(pool))
	return pool, nil
}

// Dismiss keeps id out of suggestions for the cooldown window. Dismissing again
// restarts the window.
func (s *Selector) Dismiss(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUsed = s.now()
	s.dismissed[id] = s.lastUsed
	s.purgeExpired()
	observability.RecordDismissal()
}

// Reset starts a new session, forgetting seen and dismissed activities.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessionSeen = domain.NewIDSet()
	s.lastServed = domain.NewIDSet()
	s.dismissed = make(map[uuid.UUID]time.Time)
}

// Snapshot describes the selector's exclusion state.
type Snapshot struct {
	SessionSeen int
	Dismissed   int
}

// Snapshot reports the current exclusion state sizes after purging expired dismissals.
func (s *Selector) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpired()
	return Snapshot{SessionSeen: len(s.sessionSeen), Dismissed: len(s.dismissed)}
}

// idle reports whether the selector has gone unused for its idle TTL.
func (s *Selector) idle(now time.Time) bool {
	if s.idleTTL <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastUsed) >= s.idleTTL
}

func (s *Selector) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastUsed) {
		s.lastUsed = now
	}
}

// purgeExpired drops dismissals at least one cooldown old. Callers hold mu.
func (s *Selector) purgeExpired() {
	now := s.now()
	for id, at := range s.dismissed {
		if now.Sub(at) >= s.cooldown {
			delete(s.dismissed, id)
		}
	}
}
