// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	lids "github.com/luxfi/singularity/ids"
)

func TestFakeRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	var cid lids.ConsensusID
	cid[0] = 0x01
	self, err := lids.ParseAuthorityID(make([]byte, 20))
	require.NoError(t, err)

	commitment, secret, err := f.GenerateNonceCommitment(ctx, cid, 0, self)
	require.NoError(t, err)
	require.NotEmpty(t, commitment.Commitment)

	msg := []byte("hello")
	share, err := f.ProduceShare(ctx, secret, msg, self, GroupPublicKey{})
	require.NoError(t, err)
	require.Equal(t, self, share.Signer)
	require.Equal(t, commitment, share.Commitment, "the share must bind back to the exact commitment it was produced under")

	agg, err := f.Aggregate(ctx, []SignatureShare{share}, []NonceCommitment{commitment}, msg, GroupPublicKey{})
	require.NoError(t, err)
	require.True(t, f.Verify(ctx, agg, msg, GroupPublicKey{}))
}

func TestFakeNonceSingleUse(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	var cid lids.ConsensusID
	self, err := lids.ParseAuthorityID(make([]byte, 20))
	require.NoError(t, err)

	_, secret, err := f.GenerateNonceCommitment(ctx, cid, 0, self)
	require.NoError(t, err)

	_, err = f.ProduceShare(ctx, secret, []byte("m"), self, GroupPublicKey{})
	require.NoError(t, err)

	_, err = f.ProduceShare(ctx, secret, []byte("m"), self, GroupPublicKey{})
	require.ErrorIs(t, err, ErrNonceAlreadyConsumed)
}

func TestFakeAggregateEmptyFails(t *testing.T) {
	f := NewFake()
	_, err := f.Aggregate(context.Background(), nil, nil, []byte("m"), GroupPublicKey{})
	require.ErrorIs(t, err, ErrAggregationFailed)
}
