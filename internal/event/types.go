// Package event validates raw stream payloads into a closed set of typed
// domain events.
//
// Every event shares a three-field envelope: event_id, ts, and type. A
// payload missing any envelope field is discarded outright. Beyond the
// envelope, each variant validates its own required fields; malformed
// optional fields are dropped individually rather than failing the event,
// and array-of-object fields are filtered element-wise. An unrecognized
// type with a valid envelope passes through as Unknown so newer engine
// versions stay routable.
package event

import (
	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/route"
)

// Envelope carries the fields required on every event.
type Envelope struct {
	EventID string
	TS      float64
	Type    string
}

// Event is the closed variant set produced by Normalize.
//
// Variants: *RunStatus, *TxUpdated, *TxFailed, *ClearingDone,
// *TopologyChanged, *Unknown.
type Event interface {
	Envelope() Envelope
}

// RunStatus reports a run lifecycle change ("running", "paused", "done").
type RunStatus struct {
	Env    Envelope
	Status string
	Tick   *int64
}

// TxUpdated reports progress of an in-flight payment along its route.
//
// Edges is the route's hop list oriented by the engine; it may legitimately
// be empty (a zero-hop self-payment or a not-yet-routed transaction) but is
// never nil.
type TxUpdated struct {
	Env    Envelope
	Unit   string
	Edges  []route.Hop
	TxID   string
	Amount *decimal.Decimal
	Done   *bool
}

// TxFailed reports a terminally failed payment.
type TxFailed struct {
	Env    Envelope
	TxID   string
	Reason string
}

// ClearingDone reports the outcome of a debt-clearing pass.
type ClearingDone struct {
	Env          Envelope
	ClearedTotal decimal.Decimal
	Cycles       int
	TxCount      *int
}

// TopologyChanged carries graph patches. Every slice is element-wise
// validated; a malformed element is skipped, not fatal.
type TopologyChanged struct {
	Env          Envelope
	Unit         string
	NodePatches  []graph.NodePatch
	LinkPatches  []graph.LinkPatch
	AddedNodes   []*graph.Node
	AddedLinks   []*graph.Link
	RemovedNodes []string
	RemovedLinks []graph.PairRef
}

// Unknown is the forward-compatibility passthrough: an event whose type tag
// is not in the closed set but whose envelope is valid. Raw is the original
// decoded payload, untouched.
type Unknown struct {
	Env Envelope
	Raw map[string]any
}

func (e *RunStatus) Envelope() Envelope       { return e.Env }
func (e *TxUpdated) Envelope() Envelope       { return e.Env }
func (e *TxFailed) Envelope() Envelope        { return e.Env }
func (e *ClearingDone) Envelope() Envelope    { return e.Env }
func (e *TopologyChanged) Envelope() Envelope { return e.Env }
func (e *Unknown) Envelope() Envelope         { return e.Env }

// Type tags of the closed variant set, as they appear on the wire.
const (
	TypeRunStatus       = "run_status"
	TypeTxUpdated       = "tx.updated"
	TypeTxFailed        = "tx.failed"
	TypeClearingDone    = "clearing.done"
	TypeTopologyChanged = "topology.changed"
)
