package engineapi

import (
	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/cache"
	"github.com/skeinlabs/skein/internal/graph"
)

// Wire shapes mirror the engine's JSON exactly; mapping to domain types
// happens at the client boundary so the rest of the codebase never sees
// raw payload field names.

type snapshotWire struct {
	Equivalent  string     `json:"equivalent"`
	GeneratedAt int64      `json:"generated_at"`
	Nodes       []nodeWire `json:"nodes"`
	Links       []linkWire `json:"links"`
}

type nodeWire struct {
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	Balance     decimal.Decimal `json:"balance"`
	BalanceSign int             `json:"balance_sign"`
	Hints       []string        `json:"hints"`
}

type linkWire struct {
	Source string          `json:"source"`
	Target string          `json:"target"`
	Limit  decimal.Decimal `json:"trust_limit"`
	Used   decimal.Decimal `json:"used"`
	// Not every engine version reports reverse_used; absence means
	// unknown, not zero. The close guard stays two-tier because of this.
	ReverseUsed *decimal.Decimal `json:"reverse_used"`
	Available   decimal.Decimal  `json:"available"`
	Status      string           `json:"status"`
	Hints       []string         `json:"hints"`
}

func (w *snapshotWire) toDomain() *graph.Snapshot {
	snap := &graph.Snapshot{
		Unit:        w.Equivalent,
		GeneratedAt: w.GeneratedAt,
		Nodes:       make([]*graph.Node, 0, len(w.Nodes)),
		Links:       make([]*graph.Link, 0, len(w.Links)),
	}
	for _, n := range w.Nodes {
		snap.Nodes = append(snap.Nodes, &graph.Node{
			ID:          n.ID,
			Label:       n.Label,
			Kind:        n.Kind,
			Status:      n.Status,
			Balance:     n.Balance,
			BalanceSign: n.BalanceSign,
			Hints:       n.Hints,
		})
	}
	for _, l := range w.Links {
		link := &graph.Link{
			Source:    l.Source,
			Target:    l.Target,
			Limit:     l.Limit,
			Used:      l.Used,
			Available: l.Available,
			Status:    l.Status,
			Hints:     l.Hints,
		}
		if l.ReverseUsed != nil {
			link.ReverseUsed = *l.ReverseUsed
			link.HasReverseUsed = true
		}
		snap.Links = append(snap.Links, link)
	}
	return snap
}

type participantWire struct {
	PID    string `json:"pid"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

func (w participantWire) toDomain() cache.Participant {
	return cache.Participant(w)
}

type trustlineWire struct {
	Source      string           `json:"source"`
	Target      string           `json:"target"`
	Limit       decimal.Decimal  `json:"trust_limit"`
	Used        decimal.Decimal  `json:"used"`
	ReverseUsed *decimal.Decimal `json:"reverse_used"`
	Available   decimal.Decimal  `json:"available"`
	Status      string           `json:"status"`
}

func (w trustlineWire) toDomain() cache.Trustline {
	t := cache.Trustline{
		Source:    w.Source,
		Target:    w.Target,
		Limit:     w.Limit,
		Used:      w.Used,
		Available: w.Available,
		Status:    w.Status,
	}
	if w.ReverseUsed != nil {
		t.ReverseUsed = *w.ReverseUsed
		t.HasReverseUsed = true
	}
	return t
}

type targetWire struct {
	PID  string `json:"pid"`
	Hops int    `json:"hops"`
}

// ActionAck is the engine's acknowledgement of a mutating action. The
// echoed ActionID must match the one the client generated.
type ActionAck struct {
	ActionID string `json:"action_id"`
	Status   string `json:"status"`
	TxID     string `json:"tx_id,omitempty"`
}

// PaymentRequest describes a payment to submit.
type PaymentRequest struct {
	From   string
	To     string
	Unit   string
	Amount decimal.Decimal
}

// TrustlineRequest describes a credit-line open or update.
type TrustlineRequest struct {
	Source string
	Target string
	Unit   string
	Limit  decimal.Decimal
}

// TrustlineCloseRequest names the line to close.
type TrustlineCloseRequest struct {
	Source string
	Target string
	Unit   string
}
