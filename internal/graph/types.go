// Package graph owns the canonical node/link snapshot of the trust graph
// and the patch applier that keeps it current.
//
// The snapshot is mutated in place: a patch changes fields on the existing
// object and never replaces it, so external holders of a *Node or *Link
// (the layout/render pass, a popup bound to a link) observe updates through
// the reference they already have. Lookups go through memoized indexes, not
// array positions.
//
// Single-writer: all mutations happen on the session dispatch goroutine.
// Callers receive live references and must not mutate them directly.
package graph

import "github.com/shopspring/decimal"

// Node is one participant in the trust graph.
type Node struct {
	ID     string
	Label  string
	Kind   string
	Status string

	// Balance is the participant's signed net position in the snapshot's
	// unit. Exact decimal - never float.
	Balance     decimal.Decimal
	BalanceSign int

	// Hints are renderer styling keys. Opaque to this package.
	Hints []string
}

// Link is a directed credit line from Source to Target.
//
// Identity is the ordered (Source, Target) pair; see PairKey. A link is
// looked up by that key, never by slice position.
type Link struct {
	Source string
	Target string

	Limit     decimal.Decimal
	Used      decimal.Decimal
	Available decimal.Decimal

	// ReverseUsed is the amount drawn in the opposite direction (debt owed
	// back to Source). Not every snapshot carries it; HasReverseUsed records
	// whether the value is known rather than defaulted.
	ReverseUsed    decimal.Decimal
	HasReverseUsed bool

	Status string
	Hints  []string
}

// Key returns the link's identity key.
func (l *Link) Key() string {
	return PairKey(l.Source, l.Target)
}

// PairKey builds the deterministic lookup key for an ordered
// (source, target) pair.
func PairKey(source, target string) string {
	return source + "\x00" + target
}

// PairRef names a link by its ordered endpoint pair without carrying data.
type PairRef struct {
	Source string
	Target string
}

// Snapshot is the full graph state for one (run, unit) combination.
type Snapshot struct {
	Unit string

	// GeneratedAt is the engine's generation marker for this snapshot.
	// Any observable change invalidates every derived cache.
	GeneratedAt int64

	Nodes []*Node
	Links []*Link
}

// NodePatch is a partial update to one node. Nil fields are absent and
// leave the target field untouched; Hints is absent when nil.
type NodePatch struct {
	ID          string
	Label       *string
	Kind        *string
	Status      *string
	Balance     *decimal.Decimal
	BalanceSign *int
	Hints       []string
}

// LinkPatch is a partial update to one link, keyed by the ordered pair.
type LinkPatch struct {
	Source      string
	Target      string
	Limit       *decimal.Decimal
	Used        *decimal.Decimal
	ReverseUsed *decimal.Decimal
	Available   *decimal.Decimal
	Status      *string
	Hints       []string
}
