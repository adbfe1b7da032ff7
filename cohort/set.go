package cohort

import "sort"

// Set is a set of admission (or stay) identifiers, the currency of the
// criteria stages. Every stage consumes events and produces a Set; the final
// cohort is pure set algebra over stage results, so evaluation order never
// changes the outcome.
type Set map[int64]struct{}

func NewSet(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Add(id int64)           { s[id] = struct{}{} }
func (s Set) Contains(id int64) bool { _, ok := s[id]; return ok }
func (s Set) Len() int               { return len(s) }

// Sorted returns the members in ascending order, for deterministic output.
func (s Set) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Intersect returns the members common to all given sets. No sets yields an
// empty set; any empty operand yields an empty result.
func Intersect(sets ...Set) Set {
	if len(sets) == 0 {
		return make(Set)
	}
	// Scan the smallest set against the rest.
	smallest := sets[0]
	for _, s := range sets[1:] {
		if len(s) < len(smallest) {
			smallest = s
		}
	}
	out := make(Set, len(smallest))
outer:
	for id := range smallest {
		for _, s := range sets {
			if !s.Contains(id) {
				continue outer
			}
		}
		out.Add(id)
	}
	return out
}

// Union returns the members present in any of the given sets.
func Union(sets ...Set) Set {
	out := make(Set)
	for _, s := range sets {
		for id := range s {
			out.Add(id)
		}
	}
	return out
}

// Subtract returns the members of s not present in remove. An id present in
// several removal sets is removed exactly once; Subtract over the Union of
// all exclusion stages never double-subtracts.
func Subtract(s, remove Set) Set {
	out := make(Set, len(s))
	for id := range s {
		if !remove.Contains(id) {
			out.Add(id)
		}
	}
	return out
}
