// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fsm

// EffectKind names one side-effect descriptor emitted by Transition. The
// orchestrator (package session) interprets these; Transition itself never
// performs them (spec.md §4.2, "emit a list of side-effect descriptors for
// the orchestrator to dispatch").
type EffectKind int

const (
	// GenerateRoundNonces asks the role handler to obtain a fresh nonce
	// commitment from the crypto capability for this round.
	GenerateRoundNonces EffectKind = iota
	// DiscardCachedCommitments asks the caller to drop any cached
	// commitments it was holding for fast-path use.
	DiscardCachedCommitments
	// InsertShare asks the caller to hand the just-validated share to the
	// collector (the FSM does not touch the collector directly; it only
	// sequences when this must happen relative to the phase).
	InsertShare
	// AppendEquivocationProof asks the caller to record the equivocation
	// proof it already computed onto the evidence tracker/outbound delta.
	AppendEquivocationProof
	// Aggregate asks the caller to call ThresholdShareSet.Combine.
	Aggregate
	// EmitCommitFact asks the caller to publish the resulting CommitFact.
	EmitCommitFact
)

// Effect is one descriptor in the list Transition returns alongside the
// next State. Effects carry no payload of their own: the data they need
// (the sealed set, the proof, the aggregated signature) already lives in
// the caller's role handler, which is why Transition can stay pure.
type Effect struct {
	Kind EffectKind
}
