// Package route reconciles multi-hop route reports against their declared
// endpoints.
//
// The engine may legitimately report a path in either traversal order and
// with either per-hop orientation. Consumers require one canonical
// orientation, from the payment's source to its destination. Resolve is
// best-effort and never fails: an irreconcilable report is returned
// unchanged rather than dropped.
package route

// Hop is one directed edge of a multi-hop route.
type Hop struct {
	From string
	To   string
}

// Resolve orients hops from `from` to `to`.
//
// Candidates are tried in a fixed order: the hops as given, every hop's
// endpoints swapped, the hop order reversed, and the order reversed with
// endpoints swapped. The first candidate whose first hop originates at
// `from` and whose last hop terminates at `to` wins. If none matches, the
// original hops are returned alongside the declared endpoints.
//
// When from or to is empty it is inferred from the first hop's origin or
// the last hop's destination.
func Resolve(from, to string, hops []Hop) (string, string, []Hop) {
	if len(hops) == 0 {
		return from, to, hops
	}

	if from == "" {
		from = hops[0].From
	}
	if to == "" {
		to = hops[len(hops)-1].To
	}

	candidates := [][]Hop{
		hops,
		swapped(hops),
		reversed(hops),
		swapped(reversed(hops)),
	}
	for _, c := range candidates {
		if c[0].From == from && c[len(c)-1].To == to {
			return from, to, c
		}
	}

	return from, to, hops
}

func swapped(hops []Hop) []Hop {
	out := make([]Hop, len(hops))
	for i, h := range hops {
		out[i] = Hop{From: h.To, To: h.From}
	}
	return out
}

func reversed(hops []Hop) []Hop {
	out := make([]Hop, len(hops))
	for i, h := range hops {
		out[len(hops)-1-i] = h
	}
	return out
}
