// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"

	lids "github.com/luxfi/singularity/ids"
)

// Fake is an in-memory ThresholdSigner used by tests and by callers that
// have not yet wired a real scheme. Nonce secrets come from crypto/rand, so
// commitments and shares differ from run to run. It is not
// cryptographically sound: shares are combined with XOR rather than a real
// threshold scheme, the same demo shortcut the pack itself ships
// (crypto/bls's "Simplified" SecretKey.Sign and the ringtail.go stub
// engine's QuickSign/Aggregate). It exists so the rest of the core - the
// state machine, collector, roles, and orchestrator - can be exercised and
// tested without a live FROST/Ringtail deployment.
type Fake struct {
	// ShareLen controls the size of fabricated signature bytes.
	ShareLen int
}

// NewFake returns a ready-to-use fake signer.
func NewFake() *Fake {
	return &Fake{ShareLen: 32}
}

// GenerateNonceCommitment implements ThresholdSigner.
func (f *Fake) GenerateNonceCommitment(_ context.Context, consensusID lids.ConsensusID, epoch lids.Epoch, self lids.AuthorityID) (NonceCommitment, *NonceSecret, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return NonceCommitment{}, nil, err
	}

	h := sha256.New()
	h.Write(consensusID[:])
	h.Write(secret)
	commitment := h.Sum(nil)

	nc := NonceCommitment{
		ConsensusID: consensusID,
		Epoch:       epoch,
		Authority:   self,
		Commitment:  commitment,
	}
	return nc, NewNonceSecret(secret, nc), nil
}

// ProduceShare implements ThresholdSigner. The share is the XOR of the
// secret nonce with the message, matching the fake's stated fidelity level.
func (f *Fake) ProduceShare(_ context.Context, secret *NonceSecret, message []byte, self lids.AuthorityID, _ GroupPublicKey) (SignatureShare, error) {
	commitment := secret.Commitment()
	raw, err := secret.Consume()
	if err != nil {
		return SignatureShare{}, err
	}

	share := make([]byte, len(raw))
	for i := range raw {
		share[i] = raw[i] ^ message[i%len(message)]
	}

	return SignatureShare{
		Signer:     self,
		Commitment: commitment,
		Message:    message,
		Bytes:      share,
	}, nil
}

// Aggregate implements ThresholdSigner by XOR-folding the shares together,
// the same demo shortcut crypto/bls.Aggregate uses.
func (f *Fake) Aggregate(_ context.Context, shares []SignatureShare, _ []NonceCommitment, message []byte, _ GroupPublicKey) (AggregatedSignature, error) {
	if len(shares) == 0 {
		return AggregatedSignature{}, ErrAggregationFailed
	}

	agg := make([]byte, f.shareLen())
	for i, s := range shares {
		for j := 0; j < len(agg) && j < len(s.Bytes); j++ {
			agg[j] ^= s.Bytes[j] ^ byte(i)
		}
	}

	h := sha256.New()
	h.Write(agg)
	h.Write(message)
	return AggregatedSignature{Bytes: h.Sum(nil)}, nil
}

// Verify implements ThresholdSigner. The fake never fails verification for
// a non-empty aggregate produced by Aggregate; this mirrors the pack's own
// "Simplified verification... always return true" stub pattern.
func (f *Fake) Verify(_ context.Context, agg AggregatedSignature, _ []byte, _ GroupPublicKey) bool {
	return len(agg.Bytes) > 0
}

func (f *Fake) shareLen() int {
	if f.ShareLen <= 0 {
		return 32
	}
	return f.ShareLen
}
