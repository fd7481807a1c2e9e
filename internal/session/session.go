// Package session owns the client-side mirror of one engine run.
//
// A Session wires the graph store, the three lookup caches, the
// interaction machine, the timer registry, and the journal behind a
// single-writer dispatch loop. All mutations of the mirror happen on the
// Run goroutine: stream messages, fired timers, and posted closures are
// drained from one select so state transitions never race.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/cache"
	"github.com/skeinlabs/skein/internal/engineapi"
	"github.com/skeinlabs/skein/internal/event"
	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/intent"
	"github.com/skeinlabs/skein/internal/journal"
	"github.com/skeinlabs/skein/internal/metrics"
	"github.com/skeinlabs/skein/internal/route"
	"github.com/skeinlabs/skein/internal/timer"
)

// DefaultMaxHops bounds payment-target reachability queries.
const DefaultMaxHops = 4

// ActiveTx is an in-flight payment the stream has reported, with its route
// oriented source-to-destination.
type ActiveTx struct {
	TxID   string
	Unit   string
	From   string
	To     string
	Hops   []route.Hop
	Amount decimal.Decimal
}

// Session is the explicit context for one run: every piece of client-side
// state hangs off it, nothing is package-global.
type Session struct {
	run     string
	unit    string
	maxHops int

	client  *engineapi.Client
	store   *graph.Store
	parts   *cache.Participants
	lines   *cache.Trustlines
	targets *cache.Targets
	machine *intent.Machine
	timers  *timer.Registry
	journal *journal.Journal

	posted chan func()

	participantsTTL time.Duration
	trustlinesTTL   time.Duration
	targetsTTL      time.Duration

	// Mutated only on the Run goroutine.
	runStatus string
	activeTxs map[string]*ActiveTx
}

// Option configures a Session.
type Option func(*Session)

// WithMaxHops overrides the reachability bound for payment-target queries.
func WithMaxHops(n int) Option {
	return func(s *Session) { s.maxHops = n }
}

// WithCacheTTLs overrides the freshness windows of the three lookup
// caches. Zero values keep the cache defaults.
func WithCacheTTLs(participants, trustlines, targets time.Duration) Option {
	return func(s *Session) {
		s.participantsTTL = participants
		s.trustlinesTTL = trustlines
		s.targetsTTL = targets
	}
}

// New constructs a session for one run and unit. Run must be called to
// start the dispatch loop.
func New(client *engineapi.Client, run, unit string, opts ...Option) (*Session, error) {
	jnl, err := journal.Open()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	s := &Session{
		run:       run,
		unit:      unit,
		maxHops:   DefaultMaxHops,
		client:    client,
		store:     graph.NewStore(),
		timers:    timer.New(16),
		journal:   jnl,
		posted:    make(chan func(), 16),
		activeTxs: make(map[string]*ActiveTx),
	}
	for _, opt := range opts {
		opt(s)
	}

	var partOpts []cache.ParticipantsOption
	if s.participantsTTL > 0 {
		partOpts = append(partOpts, cache.WithParticipantsTTL(s.participantsTTL))
	}
	s.parts = cache.NewParticipants(
		func(ctx context.Context) ([]cache.Participant, error) {
			return client.FetchParticipants(ctx, s.run, s.unit)
		},
		func() []*graph.Node { return s.store.Snapshot().Nodes },
		partOpts...,
	)

	var lineOpts []cache.TrustlinesOption
	if s.trustlinesTTL > 0 {
		lineOpts = append(lineOpts, cache.WithTrustlinesTTL(s.trustlinesTTL))
	}
	s.lines = cache.NewTrustlines(unit, func(ctx context.Context, unit string) ([]cache.Trustline, error) {
		return client.FetchTrustlines(ctx, s.run, unit)
	}, lineOpts...)

	var targetOpts []cache.TargetsOption
	if s.targetsTTL > 0 {
		targetOpts = append(targetOpts, cache.WithTargetsTTL(s.targetsTTL))
	}
	s.targets = cache.NewTargets(client.FetchPaymentTargets, targetOpts...)
	s.machine = intent.NewMachine(s)

	return s, nil
}

// Store exposes the graph mirror for read access.
func (s *Session) Store() *graph.Store { return s.store }

// Machine exposes the interaction state machine.
func (s *Session) Machine() *intent.Machine { return s.machine }

// Participants exposes the participant directory cache.
func (s *Session) Participants() *cache.Participants { return s.parts }

// Trustlines exposes the credit-line cache.
func (s *Session) Trustlines() *cache.Trustlines { return s.lines }

// Targets exposes the payment-target cache.
func (s *Session) Targets() *cache.Targets { return s.targets }

// Timers exposes the timer registry. Fired callbacks run on the dispatch
// loop.
func (s *Session) Timers() *timer.Registry { return s.timers }

// Journal exposes the session journal.
func (s *Session) Journal() *journal.Journal { return s.journal }

// RunID returns the run identifier.
func (s *Session) RunID() string { return s.run }

// Unit returns the currently selected equivalence unit.
func (s *Session) Unit() string { return s.unit }

// RunStatus returns the engine's last reported run status.
func (s *Session) RunStatus() string { return s.runStatus }

// ActiveLineKey reports the key of the active credit line between two
// participants, cache first, graph mirror second. The mirror covers the
// window where the cache is cold or mid-refresh.
func (s *Session) ActiveLineKey(from, to string) (string, bool) {
	if tl, ok := s.lines.LineBetween(from, to); ok {
		return tl.Key(), true
	}
	if link, ok := s.store.ActiveLinkBetween(from, to); ok {
		return link.Key(), true
	}
	return "", false
}

// Post runs fn on the dispatch goroutine. Non-blocking for the caller
// unless the queue is full.
func (s *Session) Post(fn func()) {
	s.posted <- fn
}

// SwitchUnit changes the selected unit on the dispatch loop. The
// trustline cache resets synchronously and targets for the old unit are
// dropped; the graph mirror refreshes with the next snapshot.
func (s *Session) SwitchUnit(unit string) {
	s.Post(func() {
		if unit == s.unit {
			return
		}
		s.unit = unit
		s.lines.SetUnit(unit)
		s.targets.InvalidateAll()
	})
}

// Run drives the single-writer dispatch loop until ctx ends. On teardown
// non-critical timers are cleared and the journal is closed.
func (s *Session) Run(ctx context.Context) error {
	defer s.timers.ClearNonCritical()
	defer s.journal.Close()

	sub := s.client.Subscribe(s.run, s.unit)
	go sub.Run(ctx)

	slog.Info("session loop starting", "run", s.run, "unit", s.unit)

	for {
		select {
		case <-ctx.Done():
			slog.Info("session loop stopping", "run", s.run)
			return ctx.Err()
		case msg := <-sub.C():
			s.dispatch(ctx, msg)
		case fn := <-s.timers.C():
			fn()
		case fn := <-s.posted:
			fn()
		}
	}
}

// dispatch handles one subscription message on the loop goroutine.
func (s *Session) dispatch(ctx context.Context, msg engineapi.Msg) {
	if msg.Snapshot != nil {
		s.applySnapshot(msg.Snapshot)
		return
	}
	if msg.Event != nil {
		s.applyEvent(ctx, msg.Event)
	}
}

// applySnapshot replaces the mirror. Reachability answers computed
// against the previous generation are invalid, so the targets cache is
// dropped wholesale.
func (s *Session) applySnapshot(snap *graph.Snapshot) {
	s.store.Replace(snap)
	s.targets.InvalidateAll()
	slog.Info("snapshot applied",
		"run", s.run,
		"generation", s.store.Generation(),
		"nodes", len(snap.Nodes),
		"links", len(snap.Links))
}

func (s *Session) applyEvent(ctx context.Context, ev event.Event) {
	env := ev.Envelope()

	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte("{}")
	}
	fresh, err := s.journal.RecordEvent(ctx, env.EventID, int64(env.TS), env.Type, string(payload))
	if err != nil {
		slog.Warn("journal write failed", "event_id", env.EventID, "error", err)
	}
	if !fresh && err == nil {
		// Replayed after a reconnect; the snapshot already reflects it.
		return
	}

	switch ev := ev.(type) {
	case *event.RunStatus:
		s.runStatus = ev.Status
		slog.Info("run status", "run", s.run, "status", ev.Status)
	case *event.TxUpdated:
		s.handleTxUpdated(ev)
	case *event.TxFailed:
		delete(s.activeTxs, ev.TxID)
		s.machine.SetError(ev.Reason)
		slog.Warn("transaction failed", "tx_id", ev.TxID, "reason", ev.Reason)
	case *event.ClearingDone:
		result := &intent.ClearingResult{
			ClearedTotal: ev.ClearedTotal,
			Cycles:       ev.Cycles,
		}
		if ev.TxCount != nil {
			result.TxCount = *ev.TxCount
		}
		s.machine.FinishClearing(result)
		slog.Info("clearing finished",
			"cleared_total", ev.ClearedTotal, "cycles", ev.Cycles)
	case *event.TopologyChanged:
		s.applyTopology(ev)
	case *event.Unknown:
		slog.Debug("unknown event passed through", "type", env.Type, "event_id", env.EventID)
	}
}

// handleTxUpdated tracks the in-flight payment with its route oriented
// source-to-destination, and drops it once reported done. Credit-line
// usage changed along the route, so the line cache's next read refetches.
func (s *Session) handleTxUpdated(ev *event.TxUpdated) {
	if ev.Done != nil && *ev.Done {
		delete(s.activeTxs, ev.TxID)
		s.lines.Expire()
		return
	}

	tx := s.activeTxs[ev.TxID]
	if tx == nil {
		tx = &ActiveTx{TxID: ev.TxID}
		s.activeTxs[ev.TxID] = tx
	}
	tx.Unit = ev.Unit
	tx.From, tx.To, tx.Hops = route.Resolve(tx.From, tx.To, ev.Edges)
	if ev.Amount != nil {
		tx.Amount = *ev.Amount
	}
}

// ActiveTransactions returns the in-flight payments currently tracked.
func (s *Session) ActiveTransactions() []*ActiveTx {
	out := make([]*ActiveTx, 0, len(s.activeTxs))
	for _, tx := range s.activeTxs {
		out = append(out, tx)
	}
	return out
}

// applyTopology patches the mirror in place. Unknown ids and pairs are
// counted but otherwise ignored; the next full snapshot reconciles them.
func (s *Session) applyTopology(ev *event.TopologyChanged) {
	if ev.Unit != "" && ev.Unit != s.unit {
		return
	}

	if len(ev.NodePatches) > 0 {
		touched := s.store.ApplyNodePatches(ev.NodePatches)
		metrics.PatchesApplied.WithLabelValues("node").Add(float64(len(touched)))
		metrics.PatchesIgnored.WithLabelValues("node").Add(float64(len(ev.NodePatches) - len(touched)))
	}
	if len(ev.LinkPatches) > 0 {
		touched := s.store.ApplyLinkPatches(ev.LinkPatches)
		metrics.PatchesApplied.WithLabelValues("link").Add(float64(len(touched)))
		metrics.PatchesIgnored.WithLabelValues("link").Add(float64(len(ev.LinkPatches) - len(touched)))
	}
	s.store.AddNodes(ev.AddedNodes)
	s.store.AddLinks(ev.AddedLinks)
	s.store.RemoveNodes(ev.RemovedNodes)
	s.store.RemoveLinks(ev.RemovedLinks)

	// The reachable set may have changed shape.
	if len(ev.AddedLinks) > 0 || len(ev.RemovedLinks) > 0 || len(ev.RemovedNodes) > 0 {
		s.targets.InvalidateAll()
	}
}

// SubmitPayment sends a payment and journals the submission.
func (s *Session) SubmitPayment(ctx context.Context, from, to string, amount decimal.Decimal) (engineapi.ActionAck, error) {
	ack, err := s.client.SendPayment(ctx, s.run, engineapi.PaymentRequest{
		From: from, To: to, Unit: s.unit, Amount: amount,
	})
	if err != nil {
		s.surfaceConflict(err)
		return engineapi.ActionAck{}, err
	}
	s.recordAction(ctx, "payment", ack)
	return ack, nil
}

// SubmitTrustlineOpen opens a credit line and journals the submission.
func (s *Session) SubmitTrustlineOpen(ctx context.Context, source, target string, limit decimal.Decimal) (engineapi.ActionAck, error) {
	ack, err := s.client.OpenTrustline(ctx, s.run, engineapi.TrustlineRequest{
		Source: source, Target: target, Unit: s.unit, Limit: limit,
	})
	if err != nil {
		s.surfaceConflict(err)
		return engineapi.ActionAck{}, err
	}
	s.recordAction(ctx, "trustline.open", ack)
	return ack, nil
}

// SubmitTrustlineUpdate changes a line's limit. The cached line is
// patched optimistically so the operator sees the new limit before the
// stream confirms it.
func (s *Session) SubmitTrustlineUpdate(ctx context.Context, source, target string, limit decimal.Decimal) (engineapi.ActionAck, error) {
	ack, err := s.client.UpdateTrustline(ctx, s.run, engineapi.TrustlineRequest{
		Source: source, Target: target, Unit: s.unit, Limit: limit,
	})
	if err != nil {
		s.surfaceConflict(err)
		return engineapi.ActionAck{}, err
	}
	s.lines.PatchLimit(source, target, limit)
	s.recordAction(ctx, "trustline.update", ack)
	return ack, nil
}

// SubmitTrustlineClose closes a line. The local active-line check only
// pre-filters obviously dead requests; the engine remains the
// authoritative guard and refuses with a conflict when reverse usage is
// outstanding.
func (s *Session) SubmitTrustlineClose(ctx context.Context, source, target string) (engineapi.ActionAck, error) {
	if _, ok := s.ActiveLineKey(source, target); !ok {
		return engineapi.ActionAck{}, fmt.Errorf("no active credit line from %s to %s", source, target)
	}
	ack, err := s.client.CloseTrustline(ctx, s.run, engineapi.TrustlineCloseRequest{
		Source: source, Target: target, Unit: s.unit,
	})
	if err != nil {
		s.surfaceConflict(err)
		return engineapi.ActionAck{}, err
	}
	s.recordAction(ctx, "trustline.close", ack)
	return ack, nil
}

// SubmitClearing starts a debt-clearing pass and journals the submission.
func (s *Session) SubmitClearing(ctx context.Context) (engineapi.ActionAck, error) {
	ack, err := s.client.RunClearing(ctx, s.run, s.unit)
	if err != nil {
		s.surfaceConflict(err)
		return engineapi.ActionAck{}, err
	}
	s.recordAction(ctx, "clearing", ack)
	return ack, nil
}

// surfaceConflict puts a business-rule refusal on the interaction state,
// verbatim, details included, without changing phase. Transport failures
// stay off the machine; they are the caller's problem.
func (s *Session) surfaceConflict(err error) {
	var engErr *engineapi.EngineError
	if errors.As(err, &engErr) && engErr.Conflict() {
		msg := engErr.UserMessage()
		s.Post(func() { s.machine.SetError(msg) })
	}
}

func (s *Session) recordAction(ctx context.Context, kind string, ack engineapi.ActionAck) {
	err := s.journal.RecordAction(ctx, journal.ActionEntry{
		ActionID:    ack.ActionID,
		Kind:        kind,
		TxID:        ack.TxID,
		Status:      ack.Status,
		SubmittedAt: time.Now().Unix(),
	})
	if err != nil {
		slog.Warn("journal write failed", "action_id", ack.ActionID, "error", err)
	}
}
