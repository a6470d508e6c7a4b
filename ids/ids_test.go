// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewConsensusIDDeterministic(t *testing.T) {
	var ctx ContextID
	ctx[0] = 0x01
	var digest ResultID
	digest[0] = 0xAA

	a := NewConsensusID(ctx, digest)
	b := NewConsensusID(ctx, digest)
	require.Equal(t, a, b)

	digest[0] = 0xBB
	c := NewConsensusID(ctx, digest)
	require.NotEqual(t, a, c)
}

func TestNewResultIDDeterministic(t *testing.T) {
	var prestate PrestateHash
	prestate[0] = 0x11
	proposal := []byte("proposal payload")

	a := NewResultID(prestate, proposal)
	b := NewResultID(prestate, proposal)
	require.Equal(t, a, b, "two honest witnesses given the same proposal and prestate must derive the same ResultID")
}

func TestWitnessSetEquality(t *testing.T) {
	w1, err := ParseAuthorityID(make([]byte, 20))
	require.NoError(t, err)

	a := NewWitnessSet(2, w1)
	b := NewWitnessSet(2, w1, w1)
	require.True(t, a.Equal(b), "duplicate members must collapse")

	c := NewWitnessSet(1, w1)
	require.False(t, a.Equal(c), "different k must not compare equal")
}

func TestWitnessSetValid(t *testing.T) {
	w1, _ := ParseAuthorityID(make([]byte, 20))
	w2, _ := ParseAuthorityID(append(make([]byte, 19), 0x01))

	set := NewWitnessSet(0, w1, w2)
	require.ErrorIs(t, set.Valid(), ErrInvalidThreshold)

	set = NewWitnessSet(3, w1, w2)
	require.ErrorIs(t, set.Valid(), ErrInvalidThreshold)

	set = NewWitnessSet(2, w1, w2)
	require.NoError(t, set.Valid())
}

func TestWitnessSetSortedIsCanonical(t *testing.T) {
	a, _ := ParseAuthorityID(append(make([]byte, 19), 0x02))
	b, _ := ParseAuthorityID(append(make([]byte, 19), 0x01))

	set := NewWitnessSet(1, a, b)
	sorted := set.Sorted()
	require.Len(t, sorted, 2)
	require.True(t, sorted[0].Compare(sorted[1]) < 0, "Sorted must yield canonical ascending order")
}
