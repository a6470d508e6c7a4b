// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
)

func witness(t *testing.T, b byte) lids.AuthorityID {
	t.Helper()
	raw := make([]byte, 20)
	raw[19] = b
	id, err := lids.ParseAuthorityID(raw)
	require.NoError(t, err)
	return id
}

func TestTryInsertRejectsNonMember(t *testing.T) {
	w1 := witness(t, 1)
	w2 := witness(t, 2)
	set := lids.NewWitnessSet(1, w1)

	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	res := c.TryInsert(w2, result, signer.SignatureShare{Signer: w2})
	require.Equal(t, RejectedKind, res.Kind)
	require.ErrorIs(t, res.Err, ErrNotAMember)
}

func TestTryInsertDuplicateIsIdempotent(t *testing.T) {
	w1 := witness(t, 1)
	w2 := witness(t, 2)
	set := lids.NewWitnessSet(2, w1, w2)

	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	first := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1})
	require.Equal(t, Inserted, first.Kind)
	require.Equal(t, 1, first.Count)

	dup := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1})
	require.Equal(t, DuplicateKind, dup.Kind)
	require.Equal(t, 1, c.Len(), "collector monotonicity: duplicate insert must not grow the set")
}

func TestTryInsertDifferentResultRejected(t *testing.T) {
	w1 := witness(t, 1)
	set := lids.NewWitnessSet(1, w1)

	var instance lids.ConsensusID
	var result, other lids.ResultID
	result[0] = 0xAA
	other[0] = 0xBB
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	res := c.TryInsert(w1, other, signer.SignatureShare{Signer: w1})
	require.Equal(t, RejectedKind, res.Kind)
	require.ErrorIs(t, res.Err, ErrResultMismatch)
}

func TestTryInsertReachesThresholdAndSeals(t *testing.T) {
	w1 := witness(t, 1)
	w2 := witness(t, 2)
	set := lids.NewWitnessSet(2, w1, w2)

	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	r1 := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1, Bytes: []byte{1}})
	require.Equal(t, Inserted, r1.Kind)

	r2 := c.TryInsert(w2, result, signer.SignatureShare{Signer: w2, Bytes: []byte{2}})
	require.Equal(t, ThresholdReachedKind, r2.Kind)
	require.NotNil(t, r2.Sealed)
	require.Len(t, r2.Sealed.Signers(), 2)
}

func TestSealedRefusesFurtherInserts(t *testing.T) {
	w1 := witness(t, 1)
	set := lids.NewWitnessSet(1, w1)

	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	r1 := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1})
	require.Equal(t, ThresholdReachedKind, r1.Kind)

	again := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1})
	require.Equal(t, RejectedKind, again.Kind)
	require.ErrorIs(t, again.Err, ErrSealed)
}

func TestCombineConsumesTheSealedSet(t *testing.T) {
	w1 := witness(t, 1)
	set := lids.NewWitnessSet(1, w1)

	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	c := NewLinearShareSet(instance, result, prestate, set)
	r1 := c.TryInsert(w1, result, signer.SignatureShare{Signer: w1, Bytes: []byte{9}})
	require.Equal(t, ThresholdReachedKind, r1.Kind)

	fake := signer.NewFake()
	_, err := r1.Sealed.Combine(context.Background(), fake, signer.GroupPublicKey{})
	require.NoError(t, err)

	_, err = r1.Sealed.Combine(context.Background(), fake, signer.GroupPublicKey{})
	require.ErrorIs(t, err, ErrAlreadyCombined)
}
