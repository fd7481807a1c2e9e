package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/graph"
)

// Trustline is one credit line as reported by the trustlines lookup.
type Trustline struct {
	Source string
	Target string

	Limit     decimal.Decimal
	Used      decimal.Decimal
	Available decimal.Decimal

	ReverseUsed    decimal.Decimal
	HasReverseUsed bool

	Status string
}

// Key returns the line's ordered-pair identity key.
func (t *Trustline) Key() string {
	return graph.PairKey(t.Source, t.Target)
}

// TrustlinesFetch fetches the credit lines for one currency unit.
type TrustlinesFetch func(ctx context.Context, unit string) ([]Trustline, error)

// Trustlines caches the credit-line lookup, keyed by currency unit.
//
// Switching units clears the old unit's entry synchronously, before any
// fetch for the new unit resolves, so a consumer can never render the old
// unit's lines under the new unit's label. Fetch failures are recorded as
// a diagnostic string and answered from stale data when available.
type Trustlines struct {
	mu    sync.Mutex
	clock Clock
	ttl   time.Duration
	fetch TrustlinesFetch
	unit  string
	slot  slot[[]Trustline]
}

// TrustlinesOption configures the cache.
type TrustlinesOption func(*Trustlines)

// WithTrustlinesTTL overrides the default TTL.
func WithTrustlinesTTL(ttl time.Duration) TrustlinesOption {
	return func(c *Trustlines) { c.ttl = ttl }
}

// WithTrustlinesClock injects a clock for tests.
func WithTrustlinesClock(clock Clock) TrustlinesOption {
	return func(c *Trustlines) { c.clock = clock }
}

// NewTrustlines creates the cache for an initial unit.
func NewTrustlines(unit string, fetch TrustlinesFetch, opts ...TrustlinesOption) *Trustlines {
	c := &Trustlines{
		clock: SystemClock,
		ttl:   DefaultTrustlinesTTL,
		fetch: fetch,
		unit:  unit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unit returns the active currency unit.
func (c *Trustlines) Unit() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unit
}

// SetUnit switches the active unit. The old unit's cached lines are
// dropped immediately and any in-flight fetch for it is invalidated by the
// epoch bump. A same-unit call is a no-op.
func (c *Trustlines) SetUnit(unit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if unit == c.unit {
		return
	}
	c.unit = unit
	c.slot.data = nil
	c.slot.hasData = false
	c.slot.lastErr = ""
	c.slot.epoch++
}

// Get returns the active unit's credit lines, reusing cached data within
// the TTL and fetching otherwise.
func (c *Trustlines) Get(ctx context.Context) ([]Trustline, error) {
	c.mu.Lock()
	if c.slot.fresh(c.clock.Now(), c.ttl) {
		data := c.slot.data
		c.mu.Unlock()
		hit("trustlines")
		return data, nil
	}
	unit := c.unit
	c.slot.epoch++
	epoch := c.slot.epoch
	c.slot.loading++
	c.mu.Unlock()
	miss("trustlines")

	items, err := c.fetch(ctx, unit)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.loading--

	if epoch != c.slot.epoch {
		// Superseded by a newer fetch or a unit switch.
		stale("trustlines")
		return c.slot.data, nil
	}

	if err != nil {
		c.slot.lastErr = err.Error()
		if c.slot.hasData {
			fbk("trustlines")
			return c.slot.data, nil
		}
		return nil, err
	}

	c.slot.data = items
	c.slot.hasData = true
	c.slot.fetchedAt = c.clock.Now()
	c.slot.lastErr = ""
	return items, nil
}

// Cached returns the cached lines without fetching.
func (c *Trustlines) Cached() ([]Trustline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.data, c.slot.hasData
}

// Loading reports whether any fetch is in flight.
func (c *Trustlines) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.loading > 0
}

// LastError returns the most recent fetch diagnostic.
func (c *Trustlines) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot.lastErr
}

// Expire marks the cached lines stale without discarding them. Reads keep
// serving the old data; the next Get refetches immediately.
func (c *Trustlines) Expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.fetchedAt = time.Time{}
}

// LineBetween returns the cached active line from `from` to `to`, in that
// orientation only.
func (c *Trustlines) LineBetween(from, to string) (Trustline, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slot.hasData {
		return Trustline{}, false
	}
	key := graph.PairKey(from, to)
	for i := range c.slot.data {
		if c.slot.data[i].Key() == key && c.slot.data[i].Status != "closed" {
			return c.slot.data[i], true
		}
	}
	return Trustline{}, false
}

// PatchLimit optimistically updates a cached line's limit after the
// backend accepted a limit change, recomputing availability, so the next
// render reflects the mutation without waiting out the TTL. No-op when the
// pair isn't cached for the active unit. Returns whether a line changed.
func (c *Trustlines) PatchLimit(source, target string, limit decimal.Decimal) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slot.hasData {
		return false
	}
	key := graph.PairKey(source, target)
	for i := range c.slot.data {
		if c.slot.data[i].Key() != key {
			continue
		}
		c.slot.data[i].Limit = limit
		c.slot.data[i].Available = limit.Sub(c.slot.data[i].Used)
		return true
	}
	return false
}
