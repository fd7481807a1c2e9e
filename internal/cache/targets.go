package cache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Target is one reachable payment destination for a given source.
type Target struct {
	PID  string
	Hops int
}

// TargetsFetch fetches the reachable payment targets for one
// (run, unit, source, maxHops) combination.
type TargetsFetch func(ctx context.Context, run, unit, source string, maxHops int) ([]Target, error)

// targetsLRUSize bounds the key space: the key varies per source
// participant and hop bound, so an operator browsing a large graph can
// touch many keys in one session.
const targetsLRUSize = 256

// Targets caches reachable-payment-target lookups.
//
// Failure policy differs from the other caches: a failed fetch is cached
// as a known-empty result so the consumer renders a deterministic "no
// targets" instead of retrying forever, but the entry still revalidates
// once its TTL lapses. The whole cache is invalidated when the snapshot
// generation changes - reachability is derived from the very state the
// snapshot replaced.
type Targets struct {
	mu    sync.Mutex
	clock Clock
	ttl   time.Duration
	fetch TargetsFetch
	slots *expirable.LRU[string, *slot[[]Target]]
}

// TargetsOption configures the cache.
type TargetsOption func(*Targets)

// WithTargetsTTL overrides the default TTL.
func WithTargetsTTL(ttl time.Duration) TargetsOption {
	return func(c *Targets) { c.ttl = ttl }
}

// WithTargetsClock injects a clock for tests.
func WithTargetsClock(clock Clock) TargetsOption {
	return func(c *Targets) { c.clock = clock }
}

// NewTargets creates the cache.
func NewTargets(fetch TargetsFetch, opts ...TargetsOption) *Targets {
	c := &Targets{
		clock: SystemClock,
		ttl:   DefaultTargetsTTL,
		fetch: fetch,
		// LRU bounds the key count; freshness is our own TTL check so a
		// stale entry can still serve as fallback data.
		slots: expirable.NewLRU[string, *slot[[]Target]](targetsLRUSize, nil, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func targetsKey(run, unit, source string, maxHops int) string {
	return strings.Join([]string{run, unit, source, strconv.Itoa(maxHops)}, "\x00")
}

// Get returns the reachable targets for the key, reusing cached data
// within the TTL and fetching otherwise.
func (c *Targets) Get(ctx context.Context, run, unit, source string, maxHops int) ([]Target, error) {
	key := targetsKey(run, unit, source, maxHops)

	c.mu.Lock()
	s, ok := c.slots.Get(key)
	if !ok {
		s = &slot[[]Target]{}
		c.slots.Add(key, s)
	}
	if s.fresh(c.clock.Now(), c.ttl) {
		data := s.data
		c.mu.Unlock()
		hit("targets")
		return data, nil
	}
	s.epoch++
	epoch := s.epoch
	s.loading++
	c.mu.Unlock()
	miss("targets")

	items, err := c.fetch(ctx, run, unit, source, maxHops)

	c.mu.Lock()
	defer c.mu.Unlock()
	s.loading--

	// The slot may have been purged by InvalidateAll while the fetch was
	// in flight; a purged slot's result must not be resurrected.
	if cur, ok := c.slots.Get(key); !ok || cur != s || epoch != s.epoch {
		stale("targets")
		return s.data, nil
	}

	if err != nil {
		// Cache the failure as known-empty: deterministic render now,
		// revalidation after the TTL.
		s.data = []Target{}
		s.hasData = true
		s.fetchedAt = c.clock.Now()
		s.lastErr = err.Error()
		fbk("targets")
		return s.data, nil
	}

	s.data = items
	s.hasData = true
	s.fetchedAt = c.clock.Now()
	s.lastErr = ""
	return items, nil
}

// Loading reports whether a fetch is in flight for the key.
func (c *Targets) Loading(run, unit, source string, maxHops int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots.Get(targetsKey(run, unit, source, maxHops))
	return ok && s.loading > 0
}

// LastError returns the key's most recent fetch diagnostic.
func (c *Targets) LastError(run, unit, source string, maxHops int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots.Get(targetsKey(run, unit, source, maxHops))
	if !ok {
		return ""
	}
	return s.lastErr
}

// InvalidateAll drops every cached entry. Called when the snapshot's
// generation marker changes.
func (c *Targets) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots.Purge()
}

// Len returns the number of cached keys. For tests and diagnostics.
func (c *Targets) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots.Len()
}
