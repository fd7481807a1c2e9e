// Package metrics defines the process-wide prometheus instruments.
//
// Everything is registered on the default registry; the watch command
// exposes it via promhttp when a listen address is configured.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesParsed counts complete frames decoded off the event stream.
	FramesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "stream_frames_parsed_total",
		Help:      "Complete frames decoded from the engine event stream.",
	})

	// EventsNormalized counts accepted events by type tag.
	EventsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "events_normalized_total",
		Help:      "Stream events accepted by the normalizer, by type.",
	}, []string{"type"})

	// EventsDiscarded counts payloads the normalizer rejected.
	EventsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "events_discarded_total",
		Help:      "Stream payloads discarded as malformed.",
	})

	// CacheHits counts cache reads answered within TTL, by cache name.
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "cache_hits_total",
		Help:      "Cache reads served from fresh cached data.",
	}, []string{"cache"})

	// CacheMisses counts cache reads that dispatched a fetch.
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "cache_misses_total",
		Help:      "Cache reads that dispatched an underlying fetch.",
	}, []string{"cache"})

	// CacheStaleDrops counts fetch results discarded by epoch comparison.
	CacheStaleDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "cache_stale_drops_total",
		Help:      "Fetch results discarded because a newer fetch superseded them.",
	}, []string{"cache"})

	// CacheFallbacks counts reads answered from stale or snapshot-derived
	// data after a fetch failure.
	CacheFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "cache_fallbacks_total",
		Help:      "Cache reads answered from fallback data after a failed fetch.",
	}, []string{"cache"})

	// PatchesApplied counts node/link patches applied to the snapshot.
	PatchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "patches_applied_total",
		Help:      "Graph patches applied in place, by kind.",
	}, []string{"kind"})

	// PatchesIgnored counts patches targeting unknown ids/pairs.
	PatchesIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "patches_ignored_total",
		Help:      "Graph patches dropped because their target was unknown.",
	}, []string{"kind"})

	// Reconnects counts stream reconnect attempts.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skein",
		Name:      "stream_reconnects_total",
		Help:      "Event stream reconnect attempts.",
	})
)
