package event

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/skeinlabs/skein/internal/graph"
	"github.com/skeinlabs/skein/internal/route"
)

// parseFunc validates one variant's payload. Returning false rejects the
// whole event.
type parseFunc func(env Envelope, raw map[string]any) (Event, bool)

var parsers = map[string]parseFunc{
	TypeRunStatus:       parseRunStatus,
	TypeTxUpdated:       parseTxUpdated,
	TypeTxFailed:        parseTxFailed,
	TypeClearingDone:    parseClearingDone,
	TypeTopologyChanged: parseTopologyChanged,
}

// NormalizeJSON decodes a frame's data payload and normalizes it. Numbers
// are decoded as json.Number so decimal amounts survive exactly.
func NormalizeJSON(data []byte) (Event, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		slog.Debug("event payload not a JSON object", "error", err)
		return nil, false
	}
	return Normalize(raw)
}

// Normalize validates a decoded payload into a typed event.
//
// The envelope is checked first: a payload missing event_id, ts, or type is
// discarded for every variant. Known types dispatch to their validator;
// unknown types pass through as *Unknown.
func Normalize(raw map[string]any) (Event, bool) {
	if raw == nil {
		return nil, false
	}

	id, ok := asString(raw["event_id"])
	if !ok || id == "" {
		return nil, false
	}
	ts, ok := asNumber(raw["ts"])
	if !ok {
		return nil, false
	}
	typ, ok := asString(raw["type"])
	if !ok || typ == "" {
		return nil, false
	}

	env := Envelope{EventID: id, TS: ts, Type: typ}

	parse, known := parsers[typ]
	if !known {
		return &Unknown{Env: env, Raw: raw}, true
	}
	ev, ok := parse(env, raw)
	if !ok {
		slog.Debug("event discarded: variant validation failed",
			"type", typ, "event_id", id)
	}
	return ev, ok
}

func parseRunStatus(env Envelope, raw map[string]any) (Event, bool) {
	status, ok := asString(raw["status"])
	if !ok || status == "" {
		return nil, false
	}
	ev := &RunStatus{Env: env, Status: status}
	if tick, ok := asNumber(raw["tick"]); ok {
		t := int64(tick)
		ev.Tick = &t
	}
	return ev, true
}

func parseTxUpdated(env Envelope, raw map[string]any) (Event, bool) {
	unit, ok := asString(raw["unit"])
	if !ok || unit == "" {
		return nil, false
	}

	// The edge list is required but may be empty: a null or absent list
	// defaults to an empty sequence. Any other non-list value rejects the
	// event - it signals a payload this version does not understand.
	edges, ok := asHops(raw["edges"])
	if !ok {
		return nil, false
	}

	ev := &TxUpdated{Env: env, Unit: unit, Edges: edges}
	if txID, ok := asString(raw["tx_id"]); ok {
		ev.TxID = txID
	}
	if d, ok := asDecimal(raw["amount"]); ok {
		ev.Amount = &d
	}
	if done, ok := raw["done"].(bool); ok {
		ev.Done = &done
	}
	return ev, true
}

func parseTxFailed(env Envelope, raw map[string]any) (Event, bool) {
	txID, ok := asString(raw["tx_id"])
	if !ok || txID == "" {
		return nil, false
	}
	ev := &TxFailed{Env: env, TxID: txID}
	if reason, ok := asString(raw["reason"]); ok {
		ev.Reason = reason
	}
	return ev, true
}

func parseClearingDone(env Envelope, raw map[string]any) (Event, bool) {
	total, ok := asDecimal(raw["cleared_total"])
	if !ok {
		return nil, false
	}
	cycles, ok := asNumber(raw["cycles"])
	if !ok {
		return nil, false
	}
	ev := &ClearingDone{Env: env, ClearedTotal: total, Cycles: int(cycles)}
	if n, ok := asNumber(raw["tx_count"]); ok {
		c := int(n)
		ev.TxCount = &c
	}
	return ev, true
}

func parseTopologyChanged(env Envelope, raw map[string]any) (Event, bool) {
	unit, ok := asString(raw["unit"])
	if !ok || unit == "" {
		return nil, false
	}

	ev := &TopologyChanged{Env: env, Unit: unit}
	for _, el := range asList(raw["node_patches"]) {
		if p, ok := asNodePatch(el); ok {
			ev.NodePatches = append(ev.NodePatches, p)
		}
	}
	for _, el := range asList(raw["link_patches"]) {
		if p, ok := asLinkPatch(el); ok {
			ev.LinkPatches = append(ev.LinkPatches, p)
		}
	}
	for _, el := range asList(raw["added_nodes"]) {
		if n, ok := asNode(el); ok {
			ev.AddedNodes = append(ev.AddedNodes, n)
		}
	}
	for _, el := range asList(raw["added_links"]) {
		if l, ok := asLink(el); ok {
			ev.AddedLinks = append(ev.AddedLinks, l)
		}
	}
	for _, el := range asList(raw["removed_nodes"]) {
		if id, ok := asString(el); ok && id != "" {
			ev.RemovedNodes = append(ev.RemovedNodes, id)
		}
	}
	for _, el := range asList(raw["removed_links"]) {
		if r, ok := asPairRef(el); ok {
			ev.RemovedLinks = append(ev.RemovedLinks, r)
		}
	}
	return ev, true
}

func asNodePatch(v any) (graph.NodePatch, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return graph.NodePatch{}, false
	}
	id, ok := asString(obj["id"])
	if !ok || id == "" {
		return graph.NodePatch{}, false
	}

	p := graph.NodePatch{ID: id}
	if s, ok := asString(obj["label"]); ok {
		p.Label = &s
	}
	if s, ok := asString(obj["kind"]); ok {
		p.Kind = &s
	}
	if s, ok := asString(obj["status"]); ok {
		p.Status = &s
	}
	if d, ok := asDecimal(obj["balance"]); ok {
		p.Balance = &d
	}
	if n, ok := asNumber(obj["balance_sign"]); ok {
		sign := int(n)
		p.BalanceSign = &sign
	}
	if hints, ok := asStringList(obj["hints"]); ok {
		p.Hints = hints
	}
	return p, true
}

func asLinkPatch(v any) (graph.LinkPatch, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return graph.LinkPatch{}, false
	}
	source, ok1 := asString(obj["source"])
	target, ok2 := asString(obj["target"])
	if !ok1 || !ok2 || source == "" || target == "" {
		return graph.LinkPatch{}, false
	}

	p := graph.LinkPatch{Source: source, Target: target}
	if d, ok := asDecimal(obj["trust_limit"]); ok {
		p.Limit = &d
	}
	if d, ok := asDecimal(obj["used"]); ok {
		p.Used = &d
	}
	if d, ok := asDecimal(obj["reverse_used"]); ok {
		p.ReverseUsed = &d
	}
	if d, ok := asDecimal(obj["available"]); ok {
		p.Available = &d
	}
	if s, ok := asString(obj["status"]); ok {
		p.Status = &s
	}
	if hints, ok := asStringList(obj["hints"]); ok {
		p.Hints = hints
	}
	return p, true
}

func asNode(v any) (*graph.Node, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	id, ok := asString(obj["id"])
	if !ok || id == "" {
		return nil, false
	}

	n := &graph.Node{ID: id}
	n.Label, _ = asString(obj["label"])
	n.Kind, _ = asString(obj["kind"])
	n.Status, _ = asString(obj["status"])
	if d, ok := asDecimal(obj["balance"]); ok {
		n.Balance = d
	}
	if s, ok := asNumber(obj["balance_sign"]); ok {
		n.BalanceSign = int(s)
	}
	n.Hints, _ = asStringList(obj["hints"])
	return n, true
}

func asLink(v any) (*graph.Link, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	source, ok1 := asString(obj["source"])
	target, ok2 := asString(obj["target"])
	if !ok1 || !ok2 || source == "" || target == "" {
		return nil, false
	}

	l := &graph.Link{Source: source, Target: target}
	if d, ok := asDecimal(obj["trust_limit"]); ok {
		l.Limit = d
	}
	if d, ok := asDecimal(obj["used"]); ok {
		l.Used = d
	}
	if d, ok := asDecimal(obj["reverse_used"]); ok {
		l.ReverseUsed = d
		l.HasReverseUsed = true
	}
	if d, ok := asDecimal(obj["available"]); ok {
		l.Available = d
	}
	l.Status, _ = asString(obj["status"])
	l.Hints, _ = asStringList(obj["hints"])
	return l, true
}

func asPairRef(v any) (graph.PairRef, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return graph.PairRef{}, false
	}
	source, ok1 := asString(obj["source"])
	target, ok2 := asString(obj["target"])
	if !ok1 || !ok2 || source == "" || target == "" {
		return graph.PairRef{}, false
	}
	return graph.PairRef{Source: source, Target: target}, true
}

// asHops validates the tx route edge list: a list of [from, to] string
// pairs. Null and absent both mean "empty list, present"; malformed pair
// elements are skipped; a non-list value fails entirely.
func asHops(v any) ([]route.Hop, bool) {
	if v == nil {
		return []route.Hop{}, true
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	hops := make([]route.Hop, 0, len(list))
	for _, el := range list {
		pair, ok := el.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		from, ok1 := asString(pair[0])
		to, ok2 := asString(pair[1])
		if !ok1 || !ok2 || from == "" || to == "" {
			continue
		}
		hops = append(hops, route.Hop{From: from, To: to})
	}
	return hops, true
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asNumber accepts json.Number (UseNumber decoding) and float64 (plain
// decoding); anything else, including NaN/Inf, is rejected.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// asDecimal accepts a JSON number or a numeric string and preserves it
// exactly.
func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Decimal{}, false
	}
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func asStringList(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, el := range list {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out, true
}
