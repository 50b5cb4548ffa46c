// Package merge maintains sets of pairwise non-overlapping networks. When two
// candidates overlap, the more general one is kept.
package merge

import (
	"asnwall/internal/cidr"
)

type Action uint8

const (
	// ActionAdded: the candidate overlapped nothing and was added.
	ActionAdded Action = iota
	// ActionReplaced: the candidate evicted one or more members it contains.
	ActionReplaced
	// ActionDuplicate: an identical member already existed.
	ActionDuplicate
	// ActionCovered: a more general member already covers the candidate.
	ActionCovered
	// ActionDegenerate: single-address candidates are never admitted.
	ActionDegenerate
)

func (a Action) String() string {
	switch a {
	case ActionAdded:
		return "added"
	case ActionReplaced:
		return "replaced"
	case ActionDuplicate:
		return "duplicate"
	case ActionCovered:
		return "covered"
	case ActionDegenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Outcome describes what Insert did with a candidate.
type Outcome struct {
	Action  Action
	Evicted []cidr.Network
	// CoveredBy is set for ActionCovered and ActionDuplicate.
	CoveredBy cidr.Network
}

// Accepted reports whether the candidate is a member after the insert.
func (o Outcome) Accepted() bool {
	return o.Action == ActionAdded || o.Action == ActionReplaced
}

// Stats counts insert outcomes.
type Stats struct {
	Added      int
	Replaced   int
	Evicted    int
	Duplicates int
	Covered    int
	Degenerate int
}

func (s *Stats) record(o Outcome) {
	switch o.Action {
	case ActionAdded:
		s.Added++
	case ActionReplaced:
		s.Replaced++
		s.Evicted += len(o.Evicted)
	case ActionDuplicate:
		s.Duplicates++
	case ActionCovered:
		s.Covered++
	case ActionDegenerate:
		s.Degenerate++
	}
}

func (s *Stats) Add(other Stats) {
	s.Added += other.Added
	s.Replaced += other.Replaced
	s.Evicted += other.Evicted
	s.Duplicates += other.Duplicates
	s.Covered += other.Covered
	s.Degenerate += other.Degenerate
}

// AcceptedSet holds networks no two of which overlap. It is not safe for
// concurrent mutation.
type AcceptedSet struct {
	members map[cidr.Network]struct{}
	idx     index
	kind    IndexKind
	stats   Stats
}

type Option func(*AcceptedSet)

func WithIndex(kind IndexKind) Option {
	return func(s *AcceptedSet) {
		s.kind = kind
	}
}

func NewAcceptedSet(opts ...Option) *AcceptedSet {
	s := &AcceptedSet{
		members: make(map[cidr.Network]struct{}),
		kind:    IndexTrie,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.kind == IndexLinear {
		s.idx = newLinearIndex()
	} else {
		s.idx = newTrieIndex()
	}
	return s
}

// Insert admits candidate under the prefer-more-general policy:
// a candidate covered by an existing member is dropped, a candidate that
// contains existing members replaces all of them, anything else is added.
func (s *AcceptedSet) Insert(candidate cidr.Network) Outcome {
	out := s.insert(candidate)
	s.stats.record(out)
	return out
}

func (s *AcceptedSet) insert(candidate cidr.Network) Outcome {
	if !candidate.IsValid() || candidate.IsHost() {
		return Outcome{Action: ActionDegenerate}
	}

	if s.Has(candidate) {
		return Outcome{Action: ActionDuplicate, CoveredBy: candidate}
	}

	// With the invariant intact at most one member can contain the candidate.
	if ancestors := s.idx.ancestors(candidate); len(ancestors) > 0 {
		return Outcome{Action: ActionCovered, CoveredBy: ancestors[0]}
	}

	evicted := s.idx.descendants(candidate)
	for _, e := range evicted {
		delete(s.members, e)
		s.idx.remove(e)
	}
	s.members[candidate] = struct{}{}
	s.idx.add(candidate)

	if len(evicted) == 0 {
		return Outcome{Action: ActionAdded}
	}
	cidr.Sort(evicted)
	return Outcome{Action: ActionReplaced, Evicted: evicted}
}

// InsertAll inserts candidates in order and returns the outcome counts for
// this call.
func (s *AcceptedSet) InsertAll(candidates []cidr.Network) Stats {
	var st Stats
	for _, c := range candidates {
		st.record(s.Insert(c))
	}
	return st
}

// Merge folds every member of other into s, in sorted order.
func (s *AcceptedSet) Merge(other *AcceptedSet) Stats {
	if other == nil {
		return Stats{}
	}
	return s.InsertAll(other.Members())
}

func (s *AcceptedSet) Len() int { return len(s.members) }

func (s *AcceptedSet) Has(n cidr.Network) bool {
	_, ok := s.members[n]
	return ok
}

// Members returns the networks sorted by cidr.Network.Compare.
func (s *AcceptedSet) Members() []cidr.Network {
	out := make([]cidr.Network, 0, len(s.members))
	for n := range s.members {
		out = append(out, n)
	}
	cidr.Sort(out)
	return out
}

// ByFamily returns the sorted members of one address family.
func (s *AcceptedSet) ByFamily(f cidr.Family) []cidr.Network {
	var out []cidr.Network
	for _, n := range s.Members() {
		if n.Family() == f {
			out = append(out, n)
		}
	}
	return out
}

// Stats returns the cumulative outcome counts since creation.
func (s *AcceptedSet) Stats() Stats { return s.stats }
