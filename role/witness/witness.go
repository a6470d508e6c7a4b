// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package witness implements the witness side of one consensus instance
// (spec.md §4.5): it answers Execute with a fresh nonce commitment and
// answers SignRequest with a signature share, after checking membership,
// the prestate bound at execute time, its own commitment, and the ResultID
// it derived. Shares received from witnesses are validated by
// role/coordinator, not here.
package witness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/singularity/evidence"
	"github.com/luxfi/singularity/fsm"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
	"github.com/luxfi/singularity/wire"
)

// ErrNotAMember is returned when this witness is not part of the witness
// set an Execute or SignRequest declares.
var ErrNotAMember = errors.New("witness: not a member of the declared witness set")

// ErrPrestateMismatch is returned when a SignRequest's prestate disagrees
// with what Execute bound at instance creation.
var ErrPrestateMismatch = errors.New("witness: prestate hash does not match what was bound at execute time")

// ErrMissingOwnCommitment is returned when a SignRequest's commitment set
// does not carry this witness's own most recent commitment.
var ErrMissingOwnCommitment = errors.New("witness: coordinator's commitment set omits our commitment")

// ErrResultMismatch is returned when a SignRequest asks for a signature
// over a ResultID that does not match what this witness independently
// derived from Execute's proposal and prestate hash (spec.md §4.5
// "handle_execute": "derive ResultId from proposal... must match what
// coordinator will compute").
var ErrResultMismatch = errors.New("witness: sign request result does not match the result derived at execute time")

// Witness drives one consensus instance from the witness side.
type Witness struct {
	self         lids.AuthorityID
	id           lids.ConsensusID
	witnesses    lids.WitnessSet
	prestateHash lids.PrestateHash
	epoch        lids.Epoch

	state    fsm.State
	secret   *signer.NonceSecret
	commit   signer.NonceCommitment
	executed bool
	resultID lids.ResultID

	tracker    *evidence.Tracker
	watermark  time.Time
	signerImpl signer.ThresholdSigner
	groupKey   signer.GroupPublicKey

	log log.Logger
}

// New constructs a Witness instance bound to one ConsensusID. Callers
// create one the first time they see an Execute for that id.
func New(
	self lids.AuthorityID,
	id lids.ConsensusID,
	witnesses lids.WitnessSet,
	prestateHash lids.PrestateHash,
	epoch lids.Epoch,
	signerImpl signer.ThresholdSigner,
	groupKey signer.GroupPublicKey,
	tracker *evidence.Tracker,
	logger log.Logger,
) *Witness {
	return &Witness{
		self:         self,
		id:           id,
		witnesses:    witnesses,
		prestateHash: prestateHash,
		epoch:        epoch,
		state:        fsm.State{Phase: fsm.FallbackActive, Role: fsm.Witness},
		tracker:      tracker,
		signerImpl:   signerImpl,
		groupKey:     groupKey,
		log:          logger,
	}
}

func (w *Witness) delta() evidence.Delta {
	d := w.tracker.DeltaSince(w.watermark)
	w.watermark = time.Now()
	return d
}

// HandleExecute answers an Execute message with a fresh nonce commitment
// (spec.md §4.5 "handle_execute"). It also derives the ResultID the
// coordinator is expected to request a signature for - hash of the
// canonicalized proposal and prestate, computed the same way
// role/coordinator does - so the witness can check it independently once
// SignRequest arrives (spec.md §8 property 10).
//
// Idempotent: a retried Execute for the same prestate and witness set
// returns the commitment already produced rather than generating a new
// one, so a duplicate delivery never invalidates a commitment the
// coordinator has already locked in via first-wins (spec.md §4.7).
func (w *Witness) HandleExecute(ctx context.Context, msg wire.Execute) (wire.NonceCommit, error) {
	w.tracker.Merge(msg.EvidenceDelta)

	if !msg.WitnessSet.Contains(w.self) {
		return wire.NonceCommit{}, fmt.Errorf("witness: handle_execute: %w", ErrNotAMember)
	}

	if w.executed && msg.PrestateHash == w.prestateHash && msg.WitnessSet.Equal(w.witnesses) {
		return wire.NonceCommit{
			InstanceID:    w.id,
			Commitment:    w.commit,
			EvidenceDelta: w.delta(),
		}, nil
	}

	w.witnesses = msg.WitnessSet
	w.prestateHash = msg.PrestateHash
	w.resultID = lids.NewResultID(msg.PrestateHash, msg.Proposal)

	commitment, secret, err := w.signerImpl.GenerateNonceCommitment(ctx, w.id, w.epoch, w.self)
	if err != nil {
		return wire.NonceCommit{}, fmt.Errorf("witness: generate nonce commitment: %w", err)
	}
	w.commit = commitment
	w.secret = secret
	w.executed = true

	return wire.NonceCommit{
		InstanceID:    w.id,
		Commitment:    commitment,
		EvidenceDelta: w.delta(),
	}, nil
}

// HandleSignRequest answers a SignRequest with a signature share (spec.md
// §4.5 "handle_sign_request"), after checking local membership, that the
// coordinator's commitment set carries our own most-recent commitment, and
// that the declared prestate matches what Execute bound.
func (w *Witness) HandleSignRequest(ctx context.Context, msg wire.SignRequest) (wire.SignShare, error) {
	w.tracker.Merge(msg.EvidenceDelta)

	if !w.witnesses.Contains(w.self) {
		return wire.SignShare{}, fmt.Errorf("witness: handle_sign_request: %w", ErrNotAMember)
	}
	if msg.PrestateHash != w.prestateHash {
		return wire.SignShare{}, fmt.Errorf("witness: handle_sign_request: %w", ErrPrestateMismatch)
	}

	var ownCommitment *signer.NonceCommitment
	for i := range msg.Commitments {
		if msg.Commitments[i].Authority == w.self {
			ownCommitment = &msg.Commitments[i]
			break
		}
	}
	if ownCommitment == nil || !sameCommitment(*ownCommitment, w.commit) {
		return wire.SignShare{}, fmt.Errorf("witness: handle_sign_request: %w", ErrMissingOwnCommitment)
	}
	if msg.ResultID != w.resultID {
		return wire.SignShare{}, fmt.Errorf("witness: handle_sign_request: %w", ErrResultMismatch)
	}

	message := lids.BindingMessage(msg.InstanceID, msg.ResultID, msg.PrestateHash)
	share, err := w.signerImpl.ProduceShare(ctx, w.secret, message, w.self, w.groupKey)
	if err != nil {
		return wire.SignShare{}, fmt.Errorf("witness: produce share: %w", err)
	}

	return wire.SignShare{
		InstanceID:    msg.InstanceID,
		ResultID:      msg.ResultID,
		Share:         share,
		EvidenceDelta: w.delta(),
	}, nil
}

func sameCommitment(a, b signer.NonceCommitment) bool {
	return a.ConsensusID == b.ConsensusID && a.Epoch == b.Epoch && a.Authority == b.Authority && bytesEqual(a.Commitment, b.Commitment)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
