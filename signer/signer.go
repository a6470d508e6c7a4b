// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package signer defines the abstract threshold-signature capability the
// agreement core depends on (spec.md §4.1). The core never implements a
// threshold signature scheme itself; it orchestrates one through this
// narrow interface, injected like every other effectful collaborator in
// the pack (compare protocol/quasar.Hybrid's thresholdScheme/Signers/
// Aggregator/Verifier fields).
package signer

import (
	"context"
	"errors"

	lids "github.com/luxfi/singularity/ids"
)

// ErrAggregationFailed is returned when the underlying scheme rejects a
// k-of-N share set. Fatal to the instance (spec.md §7).
var ErrAggregationFailed = errors.New("signer: aggregation failed")

// ErrVerificationFailed is returned when an aggregate fails to verify
// against the group public key. Treated as ErrAggregationFailed for
// instance purposes but kept distinct for operator diagnostics (spec.md §7).
var ErrVerificationFailed = errors.New("signer: aggregate failed verification")

// ErrNonceAlreadyConsumed is returned when a NonceSecret is used a second
// time. The secret is single-use (spec.md §4.1, §5).
var ErrNonceAlreadyConsumed = errors.New("signer: nonce secret already consumed")

// NonceCommitment is the public half of a per-round, per-witness nonce. It
// is bound to (ConsensusID, Epoch) and must never be reused across rounds
// or epochs.
type NonceCommitment struct {
	ConsensusID lids.ConsensusID
	Epoch       lids.Epoch
	Authority   lids.AuthorityID
	Commitment  []byte
}

// NonceSecret is the private half generated alongside a NonceCommitment.
// It never crosses a process boundary and Consume()s exactly once.
type NonceSecret struct {
	consumed   bool
	secret     []byte
	commitment NonceCommitment
}

// NewNonceSecret wraps raw secret bytes produced by a scheme, together with
// the NonceCommitment it was generated alongside. Exported so concrete
// signer implementations in other packages can construct one.
func NewNonceSecret(secret []byte, commitment NonceCommitment) *NonceSecret {
	return &NonceSecret{secret: secret, commitment: commitment}
}

// Commitment returns the NonceCommitment this secret was generated
// alongside, so ProduceShare can bind the resulting share to it regardless
// of whether the underlying scheme needs the secret bytes themselves.
func (n *NonceSecret) Commitment() NonceCommitment { return n.commitment }

// Consume returns the underlying secret bytes exactly once; every call
// after the first returns ErrNonceAlreadyConsumed. This is the linear-type
// discipline spec.md §4.1 and §5 require: "the store must refuse a second
// read."
func (n *NonceSecret) Consume() ([]byte, error) {
	if n.consumed {
		return nil, ErrNonceAlreadyConsumed
	}
	n.consumed = true
	return n.secret, nil
}

// SignatureShare carries the three bindings spec.md §3 requires: the
// signer's identity, the nonce commitment submitted for this round, and
// the canonicalized message being signed.
type SignatureShare struct {
	Signer     lids.AuthorityID
	Commitment NonceCommitment
	Message    []byte
	Bytes      []byte
}

// AggregatedSignature is the single verifiable artifact produced once a
// quorum of shares and matching commitments is aggregated.
type AggregatedSignature struct {
	Bytes []byte
}

// GroupPublicKey is the single public key corresponding to the
// threshold-shared private key material of a witness set (GLOSSARY).
type GroupPublicKey struct {
	Bytes []byte
}

// ThresholdSigner is the capability set spec.md §4.1 describes: generate a
// nonce commitment, produce a share from its matching secret, aggregate a
// quorum of shares, and verify the result. Deterministic given the same
// randomness stream.
type ThresholdSigner interface {
	// GenerateNonceCommitment produces a fresh, round-scoped commitment and
	// its matching single-use secret.
	GenerateNonceCommitment(ctx context.Context, consensusID lids.ConsensusID, epoch lids.Epoch, self lids.AuthorityID) (NonceCommitment, *NonceSecret, error)

	// ProduceShare consumes secret to sign message as self, binding the
	// share to groupKey.
	ProduceShare(ctx context.Context, secret *NonceSecret, message []byte, self lids.AuthorityID, groupKey GroupPublicKey) (SignatureShare, error)

	// Aggregate combines a quorum of shares and their matching commitments
	// into a single verifiable signature, or returns ErrAggregationFailed.
	Aggregate(ctx context.Context, shares []SignatureShare, commitments []NonceCommitment, message []byte, groupKey GroupPublicKey) (AggregatedSignature, error)

	// Verify checks an aggregate against message and groupKey.
	Verify(ctx context.Context, agg AggregatedSignature, message []byte, groupKey GroupPublicKey) bool
}
