// Package intent sequences the operator's multi-step mutating actions.
//
// The machine owns the interaction state: which flow is underway, which
// endpoints are chosen, which edge is selected, the pending error, and the
// last clearing result. It decides when a submission is legal; it never
// touches the network itself. Illegal operations are no-ops, never panics.
//
// State machine:
//
//	idle → picking-payment-from → picking-payment-to → confirm-payment
//	idle → picking-trustline-from → picking-trustline-to → confirm-trustline-create
//	                                                     ↘ editing-trustline
//	idle → confirm-clearing → clearing-preview → clearing-running → idle
//
// Direct edge selection (a graph click) is the one path into
// editing-trustline that skips the picking phases. ResetToIdle is the only
// cancellation path and preserves LastClearing - it is history, not
// transient input.
package intent

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/graph"
)

// Phase is the machine's current position in a flow.
type Phase string

const (
	PhaseIdle                   Phase = "idle"
	PhasePickingPaymentFrom     Phase = "picking-payment-from"
	PhasePickingPaymentTo       Phase = "picking-payment-to"
	PhaseConfirmPayment         Phase = "confirm-payment"
	PhasePickingTrustlineFrom   Phase = "picking-trustline-from"
	PhasePickingTrustlineTo     Phase = "picking-trustline-to"
	PhaseConfirmTrustlineCreate Phase = "confirm-trustline-create"
	PhaseEditingTrustline       Phase = "editing-trustline"
	PhaseConfirmClearing        Phase = "confirm-clearing"
	PhaseClearingPreview        Phase = "clearing-preview"
	PhaseClearingRunning        Phase = "clearing-running"
)

// Anchor is a screen position for a contextual popup.
type Anchor struct {
	X float64
	Y float64
}

// ClearingResult is the outcome of a debt-clearing pass, kept for history
// display across resets.
type ClearingResult struct {
	ClearedTotal decimal.Decimal
	Cycles       int
	TxCount      int
}

// State is the interaction state. Rendering code reads it and must never
// mutate it; the Machine is the only writer.
type State struct {
	Phase           Phase
	FromPID         string
	ToPID           string
	SelectedEdgeKey string
	Anchor          *Anchor
	Err             string
	LastClearing    *ClearingResult
}

// LineLookup answers whether an active credit line exists between two
// endpoints, cache first with snapshot fallback.
type LineLookup interface {
	ActiveLineKey(from, to string) (string, bool)
}

// Machine is the single writer of the interaction state. Not safe for
// concurrent use; all calls happen on the session dispatch goroutine.
type Machine struct {
	state     State
	lines     LineLookup
	observers []func(State)
}

// NewMachine creates a machine in the idle phase.
func NewMachine(lines LineLookup) *Machine {
	return &Machine{state: State{Phase: PhaseIdle}, lines: lines}
}

// State returns a copy of the current interaction state.
func (m *Machine) State() State {
	return m.state
}

// Subscribe registers an observer invoked after every state change with a
// copy of the new state.
func (m *Machine) Subscribe(fn func(State)) {
	m.observers = append(m.observers, fn)
}

// StartPaymentFlow begins a payment: clears any pending error and prior
// selection, then waits for a source pick. Legal from any phase.
func (m *Machine) StartPaymentFlow() {
	m.beginFlow(PhasePickingPaymentFrom)
}

// StartTrustlineFlow begins creating or editing a credit line.
func (m *Machine) StartTrustlineFlow() {
	m.beginFlow(PhasePickingTrustlineFrom)
}

// StartClearingFlow jumps directly to the clearing confirmation. The
// previous clearing result is dropped so stale output is never shown
// alongside a new run.
func (m *Machine) StartClearingFlow() {
	m.state.LastClearing = nil
	m.beginFlow(PhaseConfirmClearing)
}

func (m *Machine) beginFlow(first Phase) {
	m.state.Phase = first
	m.state.FromPID = ""
	m.state.ToPID = ""
	m.state.SelectedEdgeKey = ""
	m.state.Err = ""
	m.notify()
}

// PickNode advances the active picking phase with the chosen participant.
// A no-op outside the picking phases or for an empty pid.
func (m *Machine) PickNode(pid string) {
	if pid == "" {
		return
	}
	switch m.state.Phase {
	case PhasePickingPaymentFrom:
		m.state.FromPID = pid
		m.state.Phase = PhasePickingPaymentTo
	case PhasePickingPaymentTo:
		if pid == m.state.FromPID {
			return
		}
		m.state.ToPID = pid
		m.state.Phase = PhaseConfirmPayment
	case PhasePickingTrustlineFrom:
		m.state.FromPID = pid
		m.state.Phase = PhasePickingTrustlineTo
	case PhasePickingTrustlineTo:
		if pid == m.state.FromPID {
			return
		}
		m.state.ToPID = pid
		m.resolveTrustlinePhase()
	default:
		slog.Debug("node pick ignored", "phase", m.state.Phase, "pid", pid)
		return
	}
	m.notify()
}

// PickEdge jumps straight to editing the clicked credit line, bypassing
// the picking phases. The anchor is left as previously set so the popup
// stays where the click landed. Ignored while a clearing run is active.
func (m *Machine) PickEdge(source, target string) {
	if source == "" || target == "" || m.state.Phase == PhaseClearingRunning {
		return
	}
	m.state.FromPID = source
	m.state.ToPID = target
	m.state.SelectedEdgeKey = graph.PairKey(source, target)
	m.state.Err = ""
	m.state.Phase = PhaseEditingTrustline
	m.notify()
}

// SetPaymentFromPID changes the payment source from a dropdown. The phase
// is re-derived from the resulting (from, to) pair rather than assuming a
// linear progression, so a mid-flow change cannot strand the machine.
// A no-op outside the payment flow.
func (m *Machine) SetPaymentFromPID(pid string) {
	if !m.inPaymentFlow() {
		return
	}
	m.state.FromPID = pid
	if pid != "" && pid == m.state.ToPID {
		m.state.ToPID = ""
	}
	m.derivePaymentPhase()
	m.notify()
}

// SetPaymentToPID changes the payment destination from a dropdown.
func (m *Machine) SetPaymentToPID(pid string) {
	if !m.inPaymentFlow() {
		return
	}
	m.state.ToPID = pid
	m.derivePaymentPhase()
	m.notify()
}

// SetTrustlineFromPID changes the credit-line source from a dropdown.
// A no-op outside the trustline flow.
func (m *Machine) SetTrustlineFromPID(pid string) {
	if !m.inTrustlineFlow() {
		return
	}
	m.state.FromPID = pid
	if pid != "" && pid == m.state.ToPID {
		m.state.ToPID = ""
	}
	m.deriveTrustlinePhase()
	m.notify()
}

// SetTrustlineToPID changes the credit-line destination from a dropdown.
// Clearing the destination during editing-trustline falls back to the
// picking phase, not to idle.
func (m *Machine) SetTrustlineToPID(pid string) {
	if !m.inTrustlineFlow() {
		return
	}
	m.state.ToPID = pid
	m.deriveTrustlinePhase()
	m.notify()
}

func (m *Machine) inPaymentFlow() bool {
	switch m.state.Phase {
	case PhasePickingPaymentFrom, PhasePickingPaymentTo, PhaseConfirmPayment:
		return true
	}
	return false
}

func (m *Machine) inTrustlineFlow() bool {
	switch m.state.Phase {
	case PhasePickingTrustlineFrom, PhasePickingTrustlineTo,
		PhaseConfirmTrustlineCreate, PhaseEditingTrustline:
		return true
	}
	return false
}

func (m *Machine) derivePaymentPhase() {
	switch {
	case m.state.FromPID == "":
		m.state.Phase = PhasePickingPaymentFrom
	case m.state.ToPID == "":
		m.state.Phase = PhasePickingPaymentTo
	default:
		m.state.Phase = PhaseConfirmPayment
	}
}

func (m *Machine) deriveTrustlinePhase() {
	switch {
	case m.state.FromPID == "":
		m.state.Phase = PhasePickingTrustlineFrom
		m.state.SelectedEdgeKey = ""
	case m.state.ToPID == "":
		m.state.Phase = PhasePickingTrustlineTo
		m.state.SelectedEdgeKey = ""
	default:
		m.resolveTrustlinePhase()
	}
}

// resolveTrustlinePhase decides, for a complete endpoint pair, between
// editing an existing line and confirming a new one.
func (m *Machine) resolveTrustlinePhase() {
	if m.lines != nil {
		if key, ok := m.lines.ActiveLineKey(m.state.FromPID, m.state.ToPID); ok {
			m.state.SelectedEdgeKey = key
			m.state.Phase = PhaseEditingTrustline
			return
		}
	}
	m.state.SelectedEdgeKey = ""
	m.state.Phase = PhaseConfirmTrustlineCreate
}

// SetAnchor records the screen position for the contextual popup.
func (m *Machine) SetAnchor(a *Anchor) {
	m.state.Anchor = a
	m.notify()
}

// SetError records a business-rule rejection verbatim. The phase does not
// change; the presenting layer must block the confirm action while Err is
// set.
func (m *Machine) SetError(msg string) {
	m.state.Err = msg
	m.notify()
}

// ClearError drops the pending error.
func (m *Machine) ClearError() {
	if m.state.Err == "" {
		return
	}
	m.state.Err = ""
	m.notify()
}

// ShowClearingPreview moves from the clearing confirmation to the preview.
// A no-op elsewhere.
func (m *Machine) ShowClearingPreview() {
	if m.state.Phase != PhaseConfirmClearing {
		return
	}
	m.state.Phase = PhaseClearingPreview
	m.notify()
}

// BeginClearingRun marks the clearing request as submitted. Legal from the
// confirmation or the preview.
func (m *Machine) BeginClearingRun() {
	if m.state.Phase != PhaseConfirmClearing && m.state.Phase != PhaseClearingPreview {
		return
	}
	m.state.Phase = PhaseClearingRunning
	m.notify()
}

// FinishClearing records the run's result and returns to idle. The result
// survives the reset for history display.
func (m *Machine) FinishClearing(result *ClearingResult) {
	if m.state.Phase != PhaseClearingRunning {
		return
	}
	m.state.LastClearing = result
	m.ResetToIdle()
}

// ResetToIdle is the only cancellation path. Every field clears except
// LastClearing.
func (m *Machine) ResetToIdle() {
	last := m.state.LastClearing
	m.state = State{Phase: PhaseIdle, LastClearing: last}
	m.notify()
}

func (m *Machine) notify() {
	for _, fn := range m.observers {
		fn(m.state)
	}
}
