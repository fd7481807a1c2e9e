package cache

import (
	"context"
	"sync"
	"time"

	"github.com/skeinlabs/skein/internal/graph"
)

// Participant is one directory entry from the participants lookup.
type Participant struct {
	PID    string
	Label  string
	Kind   string
	Status string
}

// ParticipantsFetch fetches the participant directory for the session's run.
type ParticipantsFetch func(ctx context.Context) ([]Participant, error)

// Participants caches the participant directory.
//
// Failure policy: an empty fetch result never overwrites a non-empty
// cached list - an empty directory mid-run is a transient backend glitch,
// not a real zero-participants state. When the directory has never been
// fetched successfully, reads fall back to snapshot-derived participants.
type Participants struct {
	mu       sync.Mutex
	clock    Clock
	ttl      time.Duration
	fetch    ParticipantsFetch
	fallback func() []*graph.Node
	slot     slot[[]Participant]
}

// ParticipantsOption configures the cache.
type ParticipantsOption func(*Participants)

// WithParticipantsTTL overrides the default TTL.
func WithParticipantsTTL(ttl time.Duration) ParticipantsOption {
	return func(c *Participants) { c.ttl = ttl }
}

// WithParticipantsClock injects a clock for tests.
func WithParticipantsClock(clock Clock) ParticipantsOption {
	return func(c *Participants) { c.clock = clock }
}

// NewParticipants creates the cache. fallback supplies the current snapshot
// nodes for the never-fetched case; it may be nil.
func NewParticipants(fetch ParticipantsFetch, fallback func() []*graph.Node, opts ...ParticipantsOption) *Participants {
	c := &Participants{
		clock:    SystemClock,
		ttl:      DefaultParticipantsTTL,
		fetch:    fetch,
		fallback: fallback,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the participant directory, reusing cached data within the
// TTL and fetching otherwise. Safe for concurrent use; concurrent stale
// reads each dispatch a fetch and the latest dispatch wins.
func (c *Participants) Get(ctx context.Context) ([]Participant, error) {
	c.mu.Lock()
	if c.slot.fresh(c.clock.Now(), c.ttl) {
		data := c.slot.data
		c.mu.Unlock()
		hit("participants")
		return data, nil
	}
	c.slot.epoch++
	epoch := c.slot.epoch
	c.slot.loading++
	c.mu.Unlock()
	miss("participants")

	items, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.loading--

	if epoch != c.slot.epoch {
		// A newer fetch was dispatched while this one was in flight.
		stale("participants")
		return c.current(), nil
	}

	if err != nil {
		c.slot.lastErr = err.Error()
		if c.slot.hasData {
			fbk("participants")
			return c.slot.data, nil
		}
		if c.fallback != nil {
			fbk("participants")
			return fromNodes(c.fallback()), nil
		}
		return nil, err
	}

	if len(items) == 0 && c.slot.hasData && len(c.slot.data) > 0 {
		// Keep the non-empty list; reuse it for another TTL window.
		c.slot.lastErr = "empty fetch result ignored"
		c.slot.fetchedAt = c.clock.Now()
		fbk("participants")
		return c.slot.data, nil
	}

	c.slot.data = items
	c.slot.hasData = true
	c.slot.fetchedAt = c.clock.Now()
	c.slot.lastErr = ""
	return items, nil
}

// Cached returns the cached directory without fetching.
func (c *Participants) Cached() ([]Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.data, c.slot.hasData
}

// Loading reports whether any fetch is in flight. Refcounted: true until
// the last concurrent fetch completes.
func (c *Participants) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.loading > 0
}

// LastError returns the most recent fetch diagnostic, empty after a
// successful fetch.
func (c *Participants) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.lastErr
}

// current returns the best data available under the lock.
func (c *Participants) current() []Participant {
	if c.slot.hasData {
		return c.slot.data
	}
	if c.fallback != nil {
		return fromNodes(c.fallback())
	}
	return nil
}

func fromNodes(nodes []*graph.Node) []Participant {
	out := make([]Participant, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Participant{
			PID:    n.ID,
			Label:  n.Label,
			Kind:   n.Kind,
			Status: n.Status,
		})
	}
	return out
}
