// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	lids "github.com/luxfi/singularity/ids"
)

func testWitness(t *testing.T, b byte) lids.AuthorityID {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	id, err := lids.ParseAuthorityID(raw)
	require.NoError(t, err)
	return id
}

func TestCheckShareNoConflict(t *testing.T) {
	tr := NewTracker(lids.ContextID{})
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var result lids.ResultID
	result[0] = 0xAA

	require.Nil(t, tr.CheckShare(w, instance, prestate, result, time.Now()))
	require.Nil(t, tr.CheckShare(w, instance, prestate, result, time.Now()), "duplicate vote is not equivocation")
}

func TestCheckShareConflictProducesProof(t *testing.T) {
	tr := NewTracker(lids.ContextID{})
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var first, second lids.ResultID
	first[0] = 0xAA
	second[0] = 0xBB

	require.Nil(t, tr.CheckShare(w, instance, prestate, first, time.Now()))
	proof := tr.CheckShare(w, instance, prestate, second, time.Now())
	require.NotNil(t, proof)
	require.Equal(t, first, proof.FirstResultID)
	require.Equal(t, second, proof.SecondResultID)
	require.True(t, tr.KnownEquivocator(w, instance, prestate))
}

func TestCheckShareRepeatedConflictKeepsProducingProofs(t *testing.T) {
	tr := NewTracker(lids.ContextID{})
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var first, second, third lids.ResultID
	first[0] = 0xAA
	second[0] = 0xBB
	third[0] = 0xCC

	require.Nil(t, tr.CheckShare(w, instance, prestate, first, time.Now()))
	p1 := tr.CheckShare(w, instance, prestate, second, time.Now())
	p2 := tr.CheckShare(w, instance, prestate, third, time.Now())
	require.NotNil(t, p1)
	require.NotNil(t, p2)
	require.Equal(t, first, p1.FirstResultID)
	require.Equal(t, first, p2.FirstResultID, "first recorded result stays fixed")
}

func TestHonestWitnessNeverAccused(t *testing.T) {
	tr := NewTracker(lids.ContextID{})
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var result lids.ResultID
	result[0] = 0xAA

	for i := 0; i < 5; i++ {
		require.Nil(t, tr.CheckShare(w, instance, prestate, result, time.Now()))
	}
	require.False(t, tr.KnownEquivocator(w, instance, prestate))
	require.Empty(t, tr.ProofsFor(instance))
}

func TestMergeIsIdempotentAndCommutative(t *testing.T) {
	base := time.Now()
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var first, second lids.ResultID
	first[0] = 0xAA
	second[0] = 0xBB

	p := Proof{
		Witness: w, Instance: instance, Prestate: prestate,
		FirstResultID: first, SecondResultID: second, Timestamp: base,
	}
	delta := Delta{Proofs: []Proof{p, p}} // duplicate within one delta too

	a := NewTracker(lids.ContextID{})
	a.Merge(delta)
	a.Merge(delta) // merge twice: idempotent
	require.Len(t, a.ProofsFor(instance), 1)

	b := NewTracker(lids.ContextID{})
	b.Merge(Delta{Proofs: []Proof{p}})
	b.Merge(Delta{Proofs: []Proof{p}})
	require.Equal(t, a.ProofsFor(instance), b.ProofsFor(instance), "merge order must not matter")
}

func TestDeltaSinceWatermark(t *testing.T) {
	tr := NewTracker(lids.ContextID{})
	w := testWitness(t, 1)
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	var first, second lids.ResultID
	first[0] = 0xAA
	second[0] = 0xBB

	watermark := time.Now()
	time.Sleep(time.Millisecond)
	require.Nil(t, tr.CheckShare(w, instance, prestate, first, time.Now()))
	tr.CheckShare(w, instance, prestate, second, time.Now())

	delta := tr.DeltaSince(watermark)
	require.Len(t, delta.Proofs, 1)
}
