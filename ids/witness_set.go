// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"fmt"
	"sort"
)

// WitnessSet is the unordered set of authorities participating in one
// consensus instance, together with the declared threshold k. Two witness
// sets compare equal iff they contain the same members and declare the same
// k (spec.md §3). Members may be passed in in any order; Sorted always
// returns them in canonical AuthorityID order so that every serialization
// and cryptographic binding over "the set of commitments" is deterministic
// across nodes (spec.md §9, "Canonical iteration").
type WitnessSet struct {
	k       int
	members map[AuthorityID]struct{}
	sorted  []AuthorityID
}

// NewWitnessSet builds a witness set of size N with threshold k. Duplicate
// members collapse; 1 <= k <= N is the caller's responsibility to enforce
// via Valid.
func NewWitnessSet(k int, members ...AuthorityID) WitnessSet {
	set := make(map[AuthorityID]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	sorted := make([]AuthorityID, 0, len(set))
	for m := range set {
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	return WitnessSet{k: k, members: set, sorted: sorted}
}

// K returns the declared threshold.
func (w WitnessSet) K() int { return w.k }

// N returns the number of distinct members.
func (w WitnessSet) N() int { return len(w.sorted) }

// Contains reports whether id is a member.
func (w WitnessSet) Contains(id AuthorityID) bool {
	_, ok := w.members[id]
	return ok
}

// Sorted returns members in canonical AuthorityID order. The returned slice
// must not be mutated by callers.
func (w WitnessSet) Sorted() []AuthorityID { return w.sorted }

// Valid checks 1 <= k <= N, the guard every Start transition requires
// (spec.md §4.2).
func (w WitnessSet) Valid() error {
	if w.k < 1 || w.k > w.N() {
		return fmt.Errorf("%w: k=%d n=%d", ErrInvalidThreshold, w.k, w.N())
	}
	return nil
}

// Equal reports whether two witness sets have the same members and the
// same declared k (spec.md §3).
func (w WitnessSet) Equal(o WitnessSet) bool {
	if w.k != o.k || len(w.members) != len(o.members) {
		return false
	}
	for m := range w.members {
		if _, ok := o.members[m]; !ok {
			return false
		}
	}
	return true
}
