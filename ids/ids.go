// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ids defines the stable, byte-comparable identifiers and
// fixed-width wire values the single-shot threshold agreement core is
// built on. Every type here is a value type: comparable with ==, safe as a
// map key, and sortable in canonical (byte) order.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/luxfi/ids"
)

const hashLen = 32

// ContextID scopes authorization and guards. Never reused across unrelated
// agreements.
type ContextID [hashLen]byte

// ConsensusID globally identifies one agreement instance. Derived from the
// context and the proposal's digest, so two coordinators that start the
// same proposal under the same context agree on the id without coordination.
type ConsensusID [hashLen]byte

// PrestateHash digests the proposal's input state.
type PrestateHash [hashLen]byte

// ResultID digests the value being voted on (the "operation hash").
type ResultID [hashLen]byte

// AuthorityID identifies one witness. Backed by ids.NodeID, the same stable
// participant identifier the rest of the pack uses for validators.
type AuthorityID = ids.NodeID

// Epoch is a monotonic key/material generation counter. Any change
// invalidates cached nonce commitments.
type Epoch uint64

func (c ContextID) String() string      { return hex.EncodeToString(c[:]) }
func (c ConsensusID) String() string    { return hex.EncodeToString(c[:]) }
func (p PrestateHash) String() string   { return hex.EncodeToString(p[:]) }
func (r ResultID) String() string       { return hex.EncodeToString(r[:]) }

// Compare orders two ConsensusIDs byte-lexicographically. Used wherever the
// spec requires canonical (sorted) iteration.
func (c ConsensusID) Compare(o ConsensusID) int {
	for i := range c {
		if c[i] != o[i] {
			if c[i] < o[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewConsensusID derives a ConsensusID from a context and a proposal
// digest: id = H(context || proposal_digest). Two honest nodes given the
// same context and proposal always derive the same id (spec.md §3,
// "ConsensusId ... derived from context + proposal digest").
func NewConsensusID(ctx ContextID, proposalDigest ResultID) ConsensusID {
	h := sha256.New()
	h.Write(ctx[:])
	h.Write(proposalDigest[:])
	var out ConsensusID
	copy(out[:], h.Sum(nil))
	return out
}

// NewResultID hashes a canonicalized proposal into the digest that is voted
// on. Two honest witnesses given the same proposal and prestate derive the
// same ResultID (spec.md §8, property 10).
func NewResultID(prestate PrestateHash, canonicalProposal []byte) ResultID {
	h := sha256.New()
	h.Write(prestate[:])
	h.Write(canonicalProposal)
	var out ResultID
	copy(out[:], h.Sum(nil))
	return out
}

// BindingMessage is the canonicalized message a signature share is bound
// to: (ConsensusID, ResultID, PrestateHash), per spec.md §3.
func BindingMessage(cid ConsensusID, rid ResultID, phash PrestateHash) []byte {
	out := make([]byte, 0, hashLen*3)
	out = append(out, cid[:]...)
	out = append(out, rid[:]...)
	out = append(out, phash[:]...)
	return out
}

// ParseAuthorityID wraps ids.ToNodeID so callers never need to import
// github.com/luxfi/ids directly just to build an AuthorityID from bytes.
func ParseAuthorityID(b []byte) (AuthorityID, error) {
	id, err := ids.ToNodeID(b)
	if err != nil {
		return ids.EmptyNodeID, fmt.Errorf("parse authority id: %w", err)
	}
	return id, nil
}
