// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wire defines the five message types that cross the network
// boundary (spec.md §6) and their canonical binary encoding: big-endian
// fixed-width integers, length-prefixed byte strings, and witness/signer
// sets always serialized in AuthorityID sort order. Every message carries
// an evidence_delta, per spec.md §4.6's propagation discipline.
package wire

import (
	"time"

	"github.com/luxfi/singularity/evidence"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
)

// EnvelopeVersion is bumped whenever the wire format changes in a way that
// is not backward compatible (spec.md §6, "wire format changes bump an
// envelope version byte"). Compatibility across versions is not promised.
const EnvelopeVersion byte = 1

// Message tags identify the payload that follows the envelope version
// byte. Tags are part of the stable wire contract.
const (
	TagExecute byte = iota + 1
	TagNonceCommit
	TagSignRequest
	TagSignShare
	TagConsensusResult
)

// CommitFact is the sole proof of agreement (spec.md §3): an aggregated
// signature over (ConsensusID, ResultID, PrestateHash) together with the
// set of signers that produced it.
type CommitFact struct {
	ConsensusID  lids.ConsensusID
	ResultID     lids.ResultID
	PrestateHash lids.PrestateHash
	Signature    signer.AggregatedSignature
	SignerSet    []lids.AuthorityID // canonical AuthorityID order
}

// Execute is sent by the coordinator to every witness to open an instance
// (spec.md §6). ContextID is carried so a witness-side instance learns the
// same authorization scope the coordinator checked before sending it
// (spec.md §3, "ContextId scopes authorization and guards").
type Execute struct {
	InstanceID    lids.ConsensusID
	ContextID     lids.ContextID
	PrestateHash  lids.PrestateHash
	Proposal      []byte
	WitnessSet    lids.WitnessSet
	Deadline      time.Time
	EvidenceDelta evidence.Delta
}

// NonceCommit is a witness's response to Execute: its fresh round
// commitment.
type NonceCommit struct {
	InstanceID    lids.ConsensusID
	Commitment    signer.NonceCommitment
	EvidenceDelta evidence.Delta
}

// SignRequest is broadcast by the coordinator once every witness's
// commitment is in hand; commitments are always ordered by AuthorityID.
type SignRequest struct {
	InstanceID    lids.ConsensusID
	ResultID      lids.ResultID
	PrestateHash  lids.PrestateHash
	Commitments   []signer.NonceCommitment
	EvidenceDelta evidence.Delta
}

// SignShare is a witness's signature share over the result the coordinator
// requested.
type SignShare struct {
	InstanceID    lids.ConsensusID
	ResultID      lids.ResultID
	Share         signer.SignatureShare
	EvidenceDelta evidence.Delta
}

// ConsensusResult carries the terminal CommitFact from the coordinator to
// every witness.
type ConsensusResult struct {
	InstanceID    lids.ConsensusID
	CommitFact    CommitFact
	EvidenceDelta evidence.Delta
}
