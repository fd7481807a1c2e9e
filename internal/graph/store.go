package graph

import "log/slog"

// ChangeKind categorizes a store notification.
type ChangeKind int

const (
	// ChangeReplace signals a full snapshot replacement. Every derived
	// cache and index is invalid.
	ChangeReplace ChangeKind = iota + 1
	// ChangeNodes signals in-place node field updates.
	ChangeNodes
	// ChangeLinks signals in-place link field updates.
	ChangeLinks
	// ChangeTopology signals added or removed nodes/links.
	ChangeTopology
)

// Change describes what moved in one store mutation. Observers use it to
// update only what they depend on.
type Change struct {
	Kind     ChangeKind
	NodeIDs  []string
	LinkKeys []string
}

// Store owns the live snapshot.
//
// Single-writer: Replace, the patch appliers, and the topology mutators
// must only be called from the session dispatch goroutine. Observers run
// synchronously on that goroutine and never see a half-applied mutation.
type Store struct {
	snap       *Snapshot
	generation int64

	// Memoized lookup indexes. Rebuilt lazily when the backing slice's
	// identity or length no longer matches what was indexed.
	nodeIndex    map[string]*Node
	nodeIndexLen int
	linkIndex    map[string]*Link
	linkIndexLen int

	observers []func(Change)
}

// NewStore creates a store holding an empty snapshot at generation zero.
func NewStore() *Store {
	return &Store{snap: &Snapshot{}}
}

// Snapshot returns the live snapshot reference. Callers must treat it as
// read-only.
func (s *Store) Snapshot() *Snapshot {
	return s.snap
}

// Generation returns the cache-invalidation marker. It changes on every
// Replace and on nothing else.
func (s *Store) Generation() int64 {
	return s.generation
}

// Subscribe registers an observer for store changes. Observers are invoked
// synchronously, in registration order, after the mutation is complete.
func (s *Store) Subscribe(fn func(Change)) {
	s.observers = append(s.observers, fn)
}

// Replace installs a full snapshot, invalidating every derived index.
func (s *Store) Replace(snap *Snapshot) {
	if snap == nil {
		snap = &Snapshot{}
	}
	s.snap = snap
	s.generation++
	s.nodeIndex = nil
	s.linkIndex = nil

	slog.Info("snapshot replaced",
		"unit", snap.Unit,
		"generated_at", snap.GeneratedAt,
		"nodes", len(snap.Nodes),
		"links", len(snap.Links),
		"generation", s.generation,
	)

	s.notify(Change{Kind: ChangeReplace})
}

// Node looks up a node by identifier. Returns nil if unknown.
func (s *Store) Node(id string) *Node {
	s.ensureNodeIndex()
	return s.nodeIndex[id]
}

// Link looks up a link by its ordered endpoint pair. Returns nil if unknown.
func (s *Store) Link(source, target string) *Link {
	s.ensureLinkIndex()
	return s.linkIndex[PairKey(source, target)]
}

// ActiveLinkBetween reports whether an active credit line exists from
// `from` to `to`, in that orientation only.
func (s *Store) ActiveLinkBetween(from, to string) (*Link, bool) {
	l := s.Link(from, to)
	if l == nil || l.Status == "closed" {
		return nil, false
	}
	return l, true
}

// ApplyNodePatches mutates matching nodes in place. Only fields present on
// a patch change; a patch for an unknown identifier is a no-op, never an
// insert. Returns the ids that were actually touched.
func (s *Store) ApplyNodePatches(patches []NodePatch) []string {
	if len(patches) == 0 {
		return nil
	}
	s.ensureNodeIndex()

	var touched []string
	for _, p := range patches {
		n := s.nodeIndex[p.ID]
		if n == nil {
			slog.Debug("node patch ignored: unknown id", "id", p.ID)
			continue
		}
		if p.Label != nil {
			n.Label = *p.Label
		}
		if p.Kind != nil {
			n.Kind = *p.Kind
		}
		if p.Status != nil {
			n.Status = *p.Status
		}
		if p.Balance != nil {
			n.Balance = *p.Balance
		}
		if p.BalanceSign != nil {
			n.BalanceSign = *p.BalanceSign
		}
		if p.Hints != nil {
			n.Hints = p.Hints
		}
		touched = append(touched, p.ID)
	}

	if len(touched) > 0 {
		s.notify(Change{Kind: ChangeNodes, NodeIDs: touched})
	}
	return touched
}

// ApplyLinkPatches mutates matching links in place, keyed by the ordered
// (source, target) pair. Unknown pairs are no-ops. Returns the touched keys.
func (s *Store) ApplyLinkPatches(patches []LinkPatch) []string {
	if len(patches) == 0 {
		return nil
	}
	s.ensureLinkIndex()

	var touched []string
	for _, p := range patches {
		l := s.linkIndex[PairKey(p.Source, p.Target)]
		if l == nil {
			slog.Debug("link patch ignored: unknown pair",
				"source", p.Source, "target", p.Target)
			continue
		}
		if p.Limit != nil {
			l.Limit = *p.Limit
		}
		if p.Used != nil {
			l.Used = *p.Used
		}
		if p.ReverseUsed != nil {
			l.ReverseUsed = *p.ReverseUsed
			l.HasReverseUsed = true
		}
		if p.Available != nil {
			l.Available = *p.Available
		}
		if p.Status != nil {
			l.Status = *p.Status
		}
		if p.Hints != nil {
			l.Hints = p.Hints
		}
		touched = append(touched, l.Key())
	}

	if len(touched) > 0 {
		s.notify(Change{Kind: ChangeLinks, LinkKeys: touched})
	}
	return touched
}

// AddNodes appends nodes that are not already present. An id collision is
// ignored rather than duplicated.
func (s *Store) AddNodes(nodes []*Node) {
	s.ensureNodeIndex()

	var added []string
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		if _, exists := s.nodeIndex[n.ID]; exists {
			continue
		}
		s.snap.Nodes = append(s.snap.Nodes, n)
		s.nodeIndex[n.ID] = n
		s.nodeIndexLen++
		added = append(added, n.ID)
	}

	if len(added) > 0 {
		s.notify(Change{Kind: ChangeTopology, NodeIDs: added})
	}
}

// AddLinks appends links whose pair is not already present.
func (s *Store) AddLinks(links []*Link) {
	s.ensureLinkIndex()

	var added []string
	for _, l := range links {
		if l == nil || l.Source == "" || l.Target == "" {
			continue
		}
		key := l.Key()
		if _, exists := s.linkIndex[key]; exists {
			continue
		}
		s.snap.Links = append(s.snap.Links, l)
		s.linkIndex[key] = l
		s.linkIndexLen++
		added = append(added, key)
	}

	if len(added) > 0 {
		s.notify(Change{Kind: ChangeTopology, LinkKeys: added})
	}
}

// RemoveNodes drops the named nodes. Unknown ids are ignored.
func (s *Store) RemoveNodes(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var removed []string
	kept := s.snap.Nodes[:0]
	for _, n := range s.snap.Nodes {
		if drop[n.ID] {
			removed = append(removed, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	s.snap.Nodes = kept
	s.nodeIndex = nil

	if len(removed) > 0 {
		s.notify(Change{Kind: ChangeTopology, NodeIDs: removed})
	}
}

// RemoveLinks drops the named links. Unknown pairs are ignored.
func (s *Store) RemoveLinks(refs []PairRef) {
	if len(refs) == 0 {
		return
	}
	drop := make(map[string]bool, len(refs))
	for _, r := range refs {
		drop[PairKey(r.Source, r.Target)] = true
	}

	var removed []string
	kept := s.snap.Links[:0]
	for _, l := range s.snap.Links {
		if drop[l.Key()] {
			removed = append(removed, l.Key())
			continue
		}
		kept = append(kept, l)
	}
	s.snap.Links = kept
	s.linkIndex = nil

	if len(removed) > 0 {
		s.notify(Change{Kind: ChangeTopology, LinkKeys: removed})
	}
}

// ensureNodeIndex rebuilds the id index when the backing slice no longer
// matches what was indexed. Cheap to call on every lookup.
func (s *Store) ensureNodeIndex() {
	if s.nodeIndex != nil && s.nodeIndexLen == len(s.snap.Nodes) {
		return
	}
	idx := make(map[string]*Node, len(s.snap.Nodes))
	for _, n := range s.snap.Nodes {
		idx[n.ID] = n
	}
	s.nodeIndex = idx
	s.nodeIndexLen = len(s.snap.Nodes)
}

func (s *Store) ensureLinkIndex() {
	if s.linkIndex != nil && s.linkIndexLen == len(s.snap.Links) {
		return
	}
	idx := make(map[string]*Link, len(s.snap.Links))
	for _, l := range s.snap.Links {
		idx[l.Key()] = l
	}
	s.linkIndex = idx
	s.linkIndexLen = len(s.snap.Links)
}

func (s *Store) notify(c Change) {
	for _, fn := range s.observers {
		fn(c)
	}
}
