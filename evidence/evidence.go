// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package evidence implements the equivocation detector and its CRDT-style
// evidence propagation discipline (spec.md §4.6). A witness equivocates by
// signing two different ResultIDs for the same (ConsensusID, PrestateHash).
package evidence

import (
	"sort"
	"sync"
	"time"

	lids "github.com/luxfi/singularity/ids"
)

// key identifies one (witness, instance, prestate) slot. Grow-only: once a
// first result is recorded for a key it never changes (spec.md §9,
// "first-writer-wins on the value").
type key struct {
	witness  lids.AuthorityID
	instance lids.ConsensusID
	prestate lids.PrestateHash
}

// Proof is cryptographic evidence that witness signed two different
// ResultIDs for the same (ConsensusID, PrestateHash).
type Proof struct {
	Context        lids.ContextID
	Witness        lids.AuthorityID
	Instance       lids.ConsensusID
	Prestate       lids.PrestateHash
	FirstResultID  lids.ResultID
	SecondResultID lids.ResultID
	Timestamp      time.Time
}

type record struct {
	firstResult lids.ResultID
	timestamp   time.Time
}

// Tracker holds the set of known proofs and, per (witness, instance,
// prestate) key, the first recorded result and its timestamp, shared
// read-mostly across instances (spec.md §5, "Shared resource policy"). It
// keeps no watermark of its own: DeltaSince takes the watermark from the
// caller.
type Tracker struct {
	mu      sync.RWMutex
	first   map[key]record
	proofs  map[key][]Proof
	context lids.ContextID
}

// NewTracker returns an empty tracker scoped to context. context is carried
// on every emitted Proof.
func NewTracker(context lids.ContextID) *Tracker {
	return &Tracker{
		first:   make(map[key]record),
		proofs:  make(map[key][]Proof),
		context: context,
	}
}

// CheckShare records witness's vote for resultID under (instance, prestate)
// and returns a Proof if it conflicts with a previously recorded vote
// (spec.md §4.6). The first recorded result always stays; later conflicts
// against it keep producing proofs (spec.md §4.6, last paragraph).
func (t *Tracker) CheckShare(witness lids.AuthorityID, instance lids.ConsensusID, prestate lids.PrestateHash, resultID lids.ResultID, timestamp time.Time) *Proof {
	k := key{witness: witness, instance: instance, prestate: prestate}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, ok := t.first[k]
	if !ok {
		t.first[k] = record{firstResult: resultID, timestamp: timestamp}
		return nil
	}
	if existing.firstResult == resultID {
		return nil // duplicate, not equivocation
	}

	proof := Proof{
		Context:        t.context,
		Witness:        witness,
		Instance:       instance,
		Prestate:       prestate,
		FirstResultID:  existing.firstResult,
		SecondResultID: resultID,
		Timestamp:      timestamp,
	}
	t.proofs[k] = append(t.proofs[k], proof)
	return &proof
}

// KnownEquivocator reports whether witness already has a recorded proof for
// (instance, prestate): further shares from it should be dropped silently
// (spec.md §4.5, validation rule 5).
func (t *Tracker) KnownEquivocator(witness lids.AuthorityID, instance lids.ConsensusID, prestate lids.PrestateHash) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.proofs[key{witness: witness, instance: instance, prestate: prestate}]) > 0
}

// ProofsFor returns all proofs recorded for one instance, sorted by
// timestamp (spec.md §3, "EquivocationProof ... ordered by timestamp").
func (t *Tracker) ProofsFor(instance lids.ConsensusID) []Proof {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Proof
	for k, proofs := range t.proofs {
		if k.instance != instance {
			continue
		}
		out = append(out, proofs...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Delta is the incremental set of proofs a sender believes the receiver
// does not yet have (spec.md §4.6, GLOSSARY).
type Delta struct {
	Proofs []Proof
}

// DeltaSince returns every proof with a timestamp strictly greater than
// watermark, for propagation on an outbound message (spec.md §4.6).
func (t *Tracker) DeltaSince(watermark time.Time) Delta {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Proof
	for _, proofs := range t.proofs {
		for _, p := range proofs {
			if p.Timestamp.After(watermark) {
				out = append(out, p)
			}
		}
	}
	return Delta{Proofs: out}
}

// Merge unions a received delta into the tracker. Merging is commutative,
// associative, and idempotent: duplicate (witness, instance, prestate,
// first, second) proofs collapse (spec.md §4.6, §9, §8 property 6).
func (t *Tracker) Merge(d Delta) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range d.Proofs {
		k := key{witness: p.Witness, instance: p.Instance, prestate: p.Prestate}
		if _, ok := t.first[k]; !ok {
			t.first[k] = record{firstResult: p.FirstResultID, timestamp: p.Timestamp}
		}
		if t.hasProofLocked(k, p) {
			continue
		}
		t.proofs[k] = append(t.proofs[k], p)
	}
}

func (t *Tracker) hasProofLocked(k key, p Proof) bool {
	for _, existing := range t.proofs[k] {
		if existing.FirstResultID == p.FirstResultID && existing.SecondResultID == p.SecondResultID {
			return true
		}
	}
	return false
}
