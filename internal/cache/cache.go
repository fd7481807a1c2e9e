// Package cache implements the best-effort data caches that sit between
// the session and the engine's lookup endpoints.
//
// Three caches share one pattern: TTL-based reuse, a per-key fetch epoch
// that discards late stale responses, and a refcounted loading flag. They
// differ in key shape, TTL, and failure policy - see Participants,
// Trustlines, and Targets.
//
// Correctness rule common to all three: every fetch captures the key's
// epoch at dispatch. A result (success or failure) is applied only if the
// stored epoch still equals the captured one; otherwise a newer fetch for
// the same key has been dispatched in the meantime and the result is
// discarded. Staleness is detected after the fact - in-flight requests are
// never cancelled.
package cache

import (
	"time"

	"github.com/skeinlabs/skein/internal/metrics"
)

// Clock abstracts time.Now so TTL behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// Default TTLs. Each cache's staleness budget reflects how fast its data
// moves: participants barely change, trustlines change on every payment,
// reachable targets change with every limit adjustment anywhere on a path.
const (
	DefaultParticipantsTTL = 30 * time.Second
	DefaultTrustlinesTTL   = 15 * time.Second
	DefaultTargetsTTL      = 10 * time.Second
)

// slot is the shared per-key cache cell.
type slot[T any] struct {
	data      T
	hasData   bool
	fetchedAt time.Time
	epoch     uint64
	loading   int
	lastErr   string
}

// fresh reports whether the slot holds data fetched within ttl.
func (s *slot[T]) fresh(now time.Time, ttl time.Duration) bool {
	return s.hasData && now.Sub(s.fetchedAt) < ttl
}

func hit(cache string)   { metrics.CacheHits.WithLabelValues(cache).Inc() }
func miss(cache string)  { metrics.CacheMisses.WithLabelValues(cache).Inc() }
func stale(cache string) { metrics.CacheStaleDrops.WithLabelValues(cache).Inc() }
func fbk(cache string)   { metrics.CacheFallbacks.WithLabelValues(cache).Inc() }
