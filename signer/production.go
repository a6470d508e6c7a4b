// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package signer

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	cryptothreshold "github.com/luxfi/crypto/threshold"
	_ "github.com/luxfi/crypto/threshold/bls" // registers the BLS threshold scheme
	lids "github.com/luxfi/singularity/ids"
)

// Production adapts github.com/luxfi/crypto/threshold's Scheme/Signer/
// Aggregator/Verifier quartet (the same quartet protocol/quasar.Hybrid
// wires up as thresholdScheme/thresholdSigners/thresholdAggregator/
// thresholdVerifier) to the core's ThresholdSigner capability.
//
// The real scheme signs in a single round (Signer.SignShare takes the
// message directly, not a previously generated secret nonce - see
// cryptothreshold.Signer.SignShare), so this adapter keeps a small
// correlation table mapping the NonceCommitment handed back out of
// GenerateNonceCommitment to the underlying signer that will actually be
// invoked in ProduceShare. The "secret" crossing through NonceSecret is a
// local correlation token, not cryptographic material; the real nonce
// handling lives inside the scheme's own signer.
type Production struct {
	mu      sync.Mutex
	scheme  cryptothreshold.Scheme
	signers map[lids.AuthorityID]cryptothreshold.Signer

	pending map[string]lids.AuthorityID
}

// NewProduction builds a Production signer from per-authority key shares
// and the scheme identifier to use (e.g. the BLS threshold scheme
// registered by this file's side-effect import).
func NewProduction(schemeID cryptothreshold.SchemeID, shares map[lids.AuthorityID]cryptothreshold.KeyShare) (*Production, error) {
	scheme, err := cryptothreshold.GetScheme(schemeID)
	if err != nil {
		return nil, fmt.Errorf("signer: get threshold scheme: %w", err)
	}

	signers := make(map[lids.AuthorityID]cryptothreshold.Signer, len(shares))
	for id, share := range shares {
		s, err := scheme.NewSigner(share)
		if err != nil {
			return nil, fmt.Errorf("signer: new signer for %s: %w", id, err)
		}
		signers[id] = s
	}

	return &Production{
		scheme:  scheme,
		signers: signers,
		pending: make(map[string]lids.AuthorityID),
	}, nil
}

// GenerateNonceCommitment implements ThresholdSigner.
func (p *Production) GenerateNonceCommitment(_ context.Context, consensusID lids.ConsensusID, epoch lids.Epoch, self lids.AuthorityID) (NonceCommitment, *NonceSecret, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.signers[self]; !ok {
		return NonceCommitment{}, nil, fmt.Errorf("signer: no threshold key share for authority %s", self)
	}

	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return NonceCommitment{}, nil, fmt.Errorf("signer: generate correlation token: %w", err)
	}

	h := sha256.New()
	h.Write(consensusID[:])
	h.Write(self[:])
	h.Write(token)
	commitment := h.Sum(nil)

	p.pending[string(token)] = self

	nc := NonceCommitment{
		ConsensusID: consensusID,
		Epoch:       epoch,
		Authority:   self,
		Commitment:  commitment,
	}
	return nc, NewNonceSecret(token, nc), nil
}

// ProduceShare implements ThresholdSigner by invoking the real scheme's
// single-round SignShare.
func (p *Production) ProduceShare(ctx context.Context, secret *NonceSecret, message []byte, self lids.AuthorityID, _ GroupPublicKey) (SignatureShare, error) {
	commitment := secret.Commitment()
	token, err := secret.Consume()
	if err != nil {
		return SignatureShare{}, err
	}

	p.mu.Lock()
	owner, ok := p.pending[string(token)]
	delete(p.pending, string(token))
	s, hasSigner := p.signers[self]
	indices := make([]int, 0, len(p.signers))
	for _, signer := range p.signers {
		indices = append(indices, signer.Index())
	}
	p.mu.Unlock()

	if !ok || owner != self {
		return SignatureShare{}, fmt.Errorf("signer: nonce commitment not owned by %s", self)
	}
	if !hasSigner {
		return SignatureShare{}, fmt.Errorf("signer: no threshold key share for authority %s", self)
	}

	raw, err := s.SignShare(ctx, message, indices, nil)
	if err != nil {
		return SignatureShare{}, fmt.Errorf("signer: produce share: %w", err)
	}

	return SignatureShare{
		Signer:     self,
		Commitment: commitment,
		Message:    message,
		Bytes:      raw,
	}, nil
}

// Aggregate implements ThresholdSigner.
func (p *Production) Aggregate(ctx context.Context, shares []SignatureShare, _ []NonceCommitment, message []byte, groupKey GroupPublicKey) (AggregatedSignature, error) {
	aggregator, err := p.scheme.NewAggregator(cryptothreshold.PublicKey(groupKey.Bytes))
	if err != nil {
		return AggregatedSignature{}, fmt.Errorf("%w: new aggregator: %v", ErrAggregationFailed, err)
	}

	raw := make([]cryptothreshold.SignatureShare, len(shares))
	for i, s := range shares {
		raw[i] = cryptothreshold.SignatureShare(s.Bytes)
	}

	sig, err := aggregator.Aggregate(ctx, message, raw, nil)
	if err != nil {
		return AggregatedSignature{}, fmt.Errorf("%w: %v", ErrAggregationFailed, err)
	}
	return AggregatedSignature{Bytes: sig}, nil
}

// Verify implements ThresholdSigner.
func (p *Production) Verify(_ context.Context, agg AggregatedSignature, message []byte, groupKey GroupPublicKey) bool {
	verifier, err := p.scheme.NewVerifier(cryptothreshold.PublicKey(groupKey.Bytes))
	if err != nil {
		return false
	}
	return verifier.VerifyBytes(message, agg.Bytes)
}
