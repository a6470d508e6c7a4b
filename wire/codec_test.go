// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/singularity/evidence"
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

func TestExecuteRoundTrip(t *testing.T) {
	w1, w2 := witness(t, 1), witness(t, 2)
	ws := lids.NewWitnessSet(2, w1, w2)
	var instance lids.ConsensusID
	instance[0] = 0x01
	var ctxID lids.ContextID
	ctxID[0] = 0x07
	var prestate lids.PrestateHash
	prestate[0] = 0x11

	want := Execute{
		InstanceID:   instance,
		ContextID:    ctxID,
		PrestateHash: prestate,
		Proposal:     []byte("propose-something"),
		WitnessSet:   ws,
		Deadline:     time.Unix(1_700_000_000, 0).UTC(),
		EvidenceDelta: evidence.Delta{Proofs: []evidence.Proof{{
			Witness: w1, Instance: instance, Prestate: prestate,
			Timestamp: time.Unix(1_699_999_999, 0).UTC(),
		}}},
	}

	raw := Encode(want)
	require.Equal(t, EnvelopeVersion, raw[0])
	require.Equal(t, TagExecute, raw[1])

	decoded, err := Decode(raw)
	require.NoError(t, err)
	got, ok := decoded.(Execute)
	require.True(t, ok)
	require.Equal(t, want.InstanceID, got.InstanceID)
	require.Equal(t, want.ContextID, got.ContextID)
	require.Equal(t, want.PrestateHash, got.PrestateHash)
	require.Equal(t, want.Proposal, got.Proposal)
	require.True(t, want.WitnessSet.Equal(got.WitnessSet))
	require.True(t, want.Deadline.Equal(got.Deadline))
	require.Len(t, got.EvidenceDelta.Proofs, 1)
}

func TestNonceCommitRoundTrip(t *testing.T) {
	w1 := witness(t, 1)
	var instance lids.ConsensusID
	instance[0] = 0x02

	want := NonceCommit{
		InstanceID: instance,
		Commitment: signer.NonceCommitment{
			ConsensusID: instance,
			Epoch:       7,
			Authority:   w1,
			Commitment:  []byte{0xde, 0xad, 0xbe, 0xef},
		},
	}

	decoded, err := Decode(EncodeNonceCommit(want))
	require.NoError(t, err)
	got, ok := decoded.(NonceCommit)
	require.True(t, ok)
	require.Equal(t, want.InstanceID, got.InstanceID)
	require.Equal(t, want.Commitment.Epoch, got.Commitment.Epoch)
	require.Equal(t, want.Commitment.Authority, got.Commitment.Authority)
	require.Equal(t, want.Commitment.Commitment, got.Commitment.Commitment)
}

func TestSignRequestCommitmentsCanonicalOrder(t *testing.T) {
	w1, w2 := witness(t, 1), witness(t, 2)
	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	want := SignRequest{
		InstanceID:   instance,
		ResultID:     result,
		PrestateHash: prestate,
		Commitments: []signer.NonceCommitment{
			{Authority: w2, Commitment: []byte{2}},
			{Authority: w1, Commitment: []byte{1}},
		},
	}

	decoded, err := Decode(EncodeSignRequest(want))
	require.NoError(t, err)
	got, ok := decoded.(SignRequest)
	require.True(t, ok)
	require.Len(t, got.Commitments, 2)
	require.Equal(t, w1, got.Commitments[0].Authority, "commitments must decode in AuthorityID sort order")
	require.Equal(t, w2, got.Commitments[1].Authority)
}

func TestSignShareRoundTrip(t *testing.T) {
	w1 := witness(t, 1)
	var instance lids.ConsensusID
	var result lids.ResultID

	want := SignShare{
		InstanceID: instance,
		ResultID:   result,
		Share: signer.SignatureShare{
			Signer:  w1,
			Message: []byte("msg"),
			Bytes:   []byte("sig-bytes"),
		},
	}

	decoded, err := Decode(EncodeSignShare(want))
	require.NoError(t, err)
	got, ok := decoded.(SignShare)
	require.True(t, ok)
	require.Equal(t, want.Share.Signer, got.Share.Signer)
	require.Equal(t, want.Share.Message, got.Share.Message)
	require.Equal(t, want.Share.Bytes, got.Share.Bytes)
}

func TestConsensusResultRoundTrip(t *testing.T) {
	w1, w2 := witness(t, 1), witness(t, 2)
	var instance lids.ConsensusID
	var result lids.ResultID
	var prestate lids.PrestateHash

	want := ConsensusResult{
		InstanceID: instance,
		CommitFact: CommitFact{
			ConsensusID:  instance,
			ResultID:     result,
			PrestateHash: prestate,
			Signature:    signer.AggregatedSignature{Bytes: []byte{1, 2, 3}},
			SignerSet:    []lids.AuthorityID{w2, w1},
		},
	}

	decoded, err := Decode(EncodeConsensusResult(want))
	require.NoError(t, err)
	got, ok := decoded.(ConsensusResult)
	require.True(t, ok)
	require.Equal(t, want.CommitFact.Signature, got.CommitFact.Signature)
	require.Len(t, got.CommitFact.SignerSet, 2)
	require.Equal(t, w1, got.CommitFact.SignerSet[0], "signer set must decode in AuthorityID sort order")
	require.Equal(t, w2, got.CommitFact.SignerSet[1])
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	raw := []byte{0xFF, TagExecute}
	_, err := Decode(raw)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	raw := []byte{EnvelopeVersion, 0xEE}
	_, err := Decode(raw)
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestDecodeRejectsTruncatedBuffer(t *testing.T) {
	var instance lids.ConsensusID
	var prestate lids.PrestateHash
	want := Execute{InstanceID: instance, PrestateHash: prestate, WitnessSet: lids.NewWitnessSet(1, witness(t, 1))}
	raw := Encode(want)

	_, err := Decode(raw[:len(raw)-2])
	require.ErrorIs(t, err, ErrShortBuffer)
}
