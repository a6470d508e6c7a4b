// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package collector implements the sealed/unsealed typestate over the
// per-instance share map (spec.md §4.3). A LinearShareSet accepts shares
// until a quorum is reached, at which point TryInsert hands back a
// ThresholdShareSet: a distinct type whose only operation is Combine.
// There is no way to call Combine on a LinearShareSet - it simply has no
// such method - so "aggregate before threshold" is a compile error, not a
// runtime check (spec.md §4.3, §8 property 5).
//
// Per SPEC_FULL.md §9 decision 2, a set is scoped to exactly one ResultID,
// decided up front by the caller (the coordinator already knows the
// ResultID it asked witnesses to sign before it ever creates a collector).
// A share that targets a different ResultID is never held in a second
// parallel sealed set; TryInsert rejects it as equivocation and leaves
// routing the proof to evidence.Tracker up to the caller (role/coordinator,
// role/witness), matching spec.md §9's "disallow multi-ResultID inserts and
// route equivocations straight to the detector".
package collector

import (
	"context"
	"errors"
	"sort"

	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
)

// ErrNotAMember is returned when the submitting authority is not in the
// instance's witness set.
var ErrNotAMember = errors.New("collector: authority is not a member of the witness set")

// ErrSealed is returned when TryInsert is called after the set has already
// reached threshold.
var ErrSealed = errors.New("collector: share set is sealed")

// ErrResultMismatch is returned when a share targets a different ResultID
// than the one this collector was created for. The caller should treat
// this as equivocation evidence, not a transient validation failure.
var ErrResultMismatch = errors.New("collector: share targets a different result id than this collector's target")

// ErrAlreadyCombined is returned by a second call to Combine on a
// ThresholdShareSet.
var ErrAlreadyCombined = errors.New("collector: threshold share set already combined")

// Kind discriminates the outcome of a TryInsert call.
type Kind int

const (
	// Inserted means the share was accepted and threshold was not yet
	// reached.
	Inserted Kind = iota
	// ThresholdReachedKind means this insert was the one that reached k
	// distinct shares; Sealed now holds the produced ThresholdShareSet.
	ThresholdReachedKind
	// DuplicateKind means the same (result_id, witness) pair was already
	// present; the insert is a no-op (collector monotonicity, spec.md §8
	// property 4).
	DuplicateKind
	// RejectedKind means the share failed validation; Err explains why.
	RejectedKind
)

// InsertResult is the outcome of TryInsert. Exactly one interpretation
// applies per Kind: Count for Inserted, Sealed for ThresholdReachedKind,
// Err for RejectedKind.
type InsertResult struct {
	Kind   Kind
	Count  int
	Sealed *ThresholdShareSet
	Err    error
}

// LinearShareSet is the unsealed typestate: it accepts shares for a single
// target ResultID until k distinct witnesses have contributed.
type LinearShareSet struct {
	instance   lids.ConsensusID
	resultID   lids.ResultID
	prestate   lids.PrestateHash
	witnesses  lids.WitnessSet
	message    []byte
	shares     map[lids.AuthorityID]signer.SignatureShare
	sealed     bool
}

// NewLinearShareSet creates an unsealed collector scoped to one
// (instance, resultID, prestate) triple and the witness set's threshold k.
func NewLinearShareSet(instance lids.ConsensusID, resultID lids.ResultID, prestate lids.PrestateHash, witnesses lids.WitnessSet) *LinearShareSet {
	return &LinearShareSet{
		instance:  instance,
		resultID:  resultID,
		prestate:  prestate,
		witnesses: witnesses,
		message:   lids.BindingMessage(instance, resultID, prestate),
		shares:    make(map[lids.AuthorityID]signer.SignatureShare),
	}
}

// Len reports the number of distinct witnesses with an accepted share.
func (l *LinearShareSet) Len() int { return len(l.shares) }

// ResultID returns the ResultID this set is scoped to.
func (l *LinearShareSet) ResultID() lids.ResultID { return l.resultID }

// TryInsert validates and records one witness's share (spec.md §4.3).
// Rejects: duplicate (result_id, witness), witnesses outside the set, and
// shares targeting a different result_id (equivocation, left to the
// caller to route to the evidence tracker).
func (l *LinearShareSet) TryInsert(witness lids.AuthorityID, resultID lids.ResultID, share signer.SignatureShare) InsertResult {
	if l.sealed {
		return InsertResult{Kind: RejectedKind, Err: ErrSealed}
	}
	if !l.witnesses.Contains(witness) {
		return InsertResult{Kind: RejectedKind, Err: ErrNotAMember}
	}
	if resultID != l.resultID {
		return InsertResult{Kind: RejectedKind, Err: ErrResultMismatch}
	}
	if _, ok := l.shares[witness]; ok {
		return InsertResult{Kind: DuplicateKind, Count: len(l.shares)}
	}

	l.shares[witness] = share
	count := len(l.shares)

	if count < l.witnesses.K() {
		return InsertResult{Kind: Inserted, Count: count}
	}

	l.sealed = true
	return InsertResult{Kind: ThresholdReachedKind, Count: count, Sealed: l.seal()}
}

// seal snapshots the accumulated shares (and their commitments, sorted in
// canonical AuthorityID order per spec.md §9 "Canonical iteration") into a
// ThresholdShareSet. Only reachable once threshold has been hit.
func (l *LinearShareSet) seal() *ThresholdShareSet {
	signers := make([]lids.AuthorityID, 0, len(l.shares))
	for w := range l.shares {
		signers = append(signers, w)
	}
	sort.Slice(signers, func(i, j int) bool { return signers[i].Compare(signers[j]) < 0 })

	shares := make([]signer.SignatureShare, 0, len(signers))
	commitments := make([]signer.NonceCommitment, 0, len(signers))
	for _, w := range signers {
		s := l.shares[w]
		shares = append(shares, s)
		commitments = append(commitments, s.Commitment)
	}

	return &ThresholdShareSet{
		message:     l.message,
		signers:     signers,
		shares:      shares,
		commitments: commitments,
	}
}

// ThresholdShareSet is the sealed typestate: the only operation it exposes
// is Combine, and it consumes itself (a second Combine call fails). This is
// the type-level enforcement of "aggregate only after threshold reached".
type ThresholdShareSet struct {
	message     []byte
	signers     []lids.AuthorityID
	shares      []signer.SignatureShare
	commitments []signer.NonceCommitment
	combined    bool
}

// Signers returns, in canonical order, the authorities whose shares were
// sealed into this set.
func (t *ThresholdShareSet) Signers() []lids.AuthorityID { return t.signers }

// Combine aggregates the sealed shares into a verifiable signature via the
// injected crypto capability (spec.md §4.1, §4.3). Consumes the set: a
// second call returns ErrAlreadyCombined.
func (t *ThresholdShareSet) Combine(ctx context.Context, s signer.ThresholdSigner, groupKey signer.GroupPublicKey) (signer.AggregatedSignature, error) {
	if t.combined {
		return signer.AggregatedSignature{}, ErrAlreadyCombined
	}
	t.combined = true
	return s.Aggregate(ctx, t.shares, t.commitments, t.message, groupKey)
}
