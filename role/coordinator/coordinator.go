// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package coordinator implements the coordinator side of one consensus
// instance (spec.md §4.4): it opens the instance, gathers nonce
// commitments, requests and collects signature shares, and finalizes a
// CommitFact. Every public method is driven by the session orchestrator
// under the instance's exclusive lock (spec.md §5); nothing here spawns
// goroutines or blocks.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/luxfi/log"
	"go.uber.org/zap"

	"github.com/luxfi/singularity/collector"
	"github.com/luxfi/singularity/evidence"
	"github.com/luxfi/singularity/fsm"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/signer"
	"github.com/luxfi/singularity/wire"
)

// Kind discriminates the outcome of a Coordinator operation.
type Kind int

const (
	// Continue means the instance is still active; Outbound may be empty.
	Continue Kind = iota
	// CommittedKind means the instance produced a CommitFact.
	CommittedKind
	// FailedKind means the instance transitioned to Failed.
	FailedKind
)

// Outbound is one message the orchestrator must deliver. Empty To means
// broadcast to every member of the witness set.
type Outbound struct {
	To      []lids.AuthorityID
	Message interface{}
}

// Result is returned by every Coordinator operation.
type Result struct {
	Kind       Kind
	Outbound   []Outbound
	CommitFact *wire.CommitFact
	Proofs     []evidence.Proof
	Err        error
}

// Coordinator drives one consensus instance from the coordinator side.
type Coordinator struct {
	id           lids.ConsensusID
	contextID    lids.ContextID
	witnesses    lids.WitnessSet
	prestateHash lids.PrestateHash
	proposal     []byte
	resultID     lids.ResultID
	deadline     time.Time
	epoch        lids.Epoch

	state State
	known map[lids.AuthorityID]signer.NonceCommitment
	coll  *collector.LinearShareSet

	tracker    *evidence.Tracker
	watermark  time.Time
	signerImpl signer.ThresholdSigner
	groupKey   signer.GroupPublicKey

	log log.Logger
}

// State is an alias kept local so callers of this package never need to
// import package fsm just to read a Coordinator's phase.
type State = fsm.State

// New constructs a Coordinator for one instance. resultID is derived here
// via lids.NewResultID(prestateHash, proposal) so both the coordinator and
// every honest witness compute the same value independently (spec.md §8,
// property 10).
//
// Per-instance progress (known commitments, collected shares) is not its
// own metric: a Coordinator is constructed fresh per instance, so a gauge
// registered here would either collide on re-registration across instances
// sharing one Registerer or be silently discarded on a throwaway one.
// Fleet-wide instance counts live on session.Orchestrator's long-lived
// activeGauge instead, registered once at orchestrator construction.
func New(
	id lids.ConsensusID,
	contextID lids.ContextID,
	witnesses lids.WitnessSet,
	prestateHash lids.PrestateHash,
	proposal []byte,
	deadline time.Time,
	epoch lids.Epoch,
	signerImpl signer.ThresholdSigner,
	groupKey signer.GroupPublicKey,
	tracker *evidence.Tracker,
	logger log.Logger,
) (*Coordinator, error) {
	return &Coordinator{
		id:           id,
		contextID:    contextID,
		witnesses:    witnesses,
		prestateHash: prestateHash,
		proposal:     proposal,
		resultID:     lids.NewResultID(prestateHash, proposal),
		deadline:     deadline,
		epoch:        epoch,
		state:        State{Phase: fsm.Pending, Role: fsm.Coordinator},
		known:        make(map[lids.AuthorityID]signer.NonceCommitment),
		tracker:      tracker,
		signerImpl:   signerImpl,
		groupKey:     groupKey,
		log:          logger,
	}, nil
}

// Phase reports the instance's current phase.
func (c *Coordinator) Phase() fsm.Phase { return c.state.Phase }

// ResultID returns the value this instance is seeking agreement on.
func (c *Coordinator) ResultID() lids.ResultID { return c.resultID }

// Witnesses returns the witness set this instance was opened with.
func (c *Coordinator) Witnesses() lids.WitnessSet { return c.witnesses }

// ContextID returns the authorization scope this instance was opened
// under (spec.md §3).
func (c *Coordinator) ContextID() lids.ContextID { return c.contextID }

func (c *Coordinator) delta() evidence.Delta {
	d := c.tracker.DeltaSince(c.watermark)
	c.watermark = time.Now()
	return d
}

// Begin opens the instance (spec.md §4.4 "begin"). cached, when non-nil,
// is the coordinator's view of each witness's most recent commitment;
// supplying it is what SPEC_FULL.md §9 decision 1 calls the fast-path gate.
func (c *Coordinator) Begin(cached map[lids.AuthorityID]signer.NonceCommitment) (Result, error) {
	if err := c.witnesses.Valid(); err != nil {
		c.log.Debug("witness set invalid at begin", zap.Stringer("instance", c.id), zap.Error(err))
	}

	hasAll := len(cached) == c.witnesses.N()
	epochCurrent := hasAll
	if hasAll {
		for _, nc := range cached {
			if nc.Epoch != c.epoch {
				epochCurrent = false
				break
			}
		}
	}

	next, _, err := fsm.Transition(c.state, fsm.StartEvent(fsm.Coordinator, c.witnesses.Valid() == nil, hasAll, epochCurrent))
	if err != nil {
		return Result{}, fmt.Errorf("coordinator: begin: %w", err)
	}
	c.state = next

	switch c.state.Phase {
	case fsm.Failed:
		c.log.Debug("instance failed at begin", zap.Stringer("instance", c.id))
		return Result{Kind: FailedKind}, nil
	case fsm.FastPathActive:
		for w, nc := range cached {
			c.known[w] = nc
		}
		c.coll = collector.NewLinearShareSet(c.id, c.resultID, c.prestateHash, c.witnesses)
		return Result{
			Kind: Continue,
			Outbound: []Outbound{
				{Message: c.buildExecute()},
				{Message: c.buildSignRequest()},
			},
		}, nil
	default: // FallbackActive
		return Result{Kind: Continue, Outbound: []Outbound{{Message: c.buildExecute()}}}, nil
	}
}

func (c *Coordinator) buildExecute() wire.Execute {
	return wire.Execute{
		InstanceID:    c.id,
		ContextID:     c.contextID,
		PrestateHash:  c.prestateHash,
		Proposal:      c.proposal,
		WitnessSet:    c.witnesses,
		Deadline:      c.deadline,
		EvidenceDelta: c.delta(),
	}
}

func (c *Coordinator) buildSignRequest() wire.SignRequest {
	commitments := make([]signer.NonceCommitment, 0, len(c.known))
	for _, nc := range c.known {
		commitments = append(commitments, nc)
	}
	sort.Slice(commitments, func(i, j int) bool {
		return commitments[i].Authority.Compare(commitments[j].Authority) < 0
	})
	return wire.SignRequest{
		InstanceID:    c.id,
		ResultID:      c.resultID,
		PrestateHash:  c.prestateHash,
		Commitments:   commitments,
		EvidenceDelta: c.delta(),
	}
}

// HandleNonceCommit processes one witness's commitment (spec.md §4.4
// "handle_nonce_commit"): accepted only from a member, first-wins on
// duplicates, and triggers SignRequest once every witness has responded.
func (c *Coordinator) HandleNonceCommit(from lids.AuthorityID, commitment signer.NonceCommitment, inbound evidence.Delta) Result {
	c.tracker.Merge(inbound)

	if c.state.Phase.Terminal() {
		return Result{Kind: Continue}
	}
	if !c.witnesses.Contains(from) {
		c.log.Debug("nonce commit from non-member", zap.Stringer("instance", c.id), zap.Stringer("from", from))
		return Result{Kind: Continue}
	}
	if _, seen := c.known[from]; seen {
		return Result{Kind: Continue} // first wins
	}

	c.known[from] = commitment

	if len(c.known) < c.witnesses.N() {
		return Result{Kind: Continue}
	}

	c.coll = collector.NewLinearShareSet(c.id, c.resultID, c.prestateHash, c.witnesses)
	return Result{Kind: Continue, Outbound: []Outbound{{Message: c.buildSignRequest()}}}
}

// HandleShare processes one witness's signature share (spec.md §4.4
// "handle_share"): validates per §4.5, inserts into the collector, and on
// ThresholdReached aggregates and finalizes.
func (c *Coordinator) HandleShare(from lids.AuthorityID, claimedResultID lids.ResultID, share signer.SignatureShare, timestamp time.Time, inbound evidence.Delta) Result {
	c.tracker.Merge(inbound)

	if c.state.Phase.Terminal() || c.coll == nil {
		return Result{Kind: Continue}
	}
	if c.tracker.KnownEquivocator(from, c.id, c.prestateHash) {
		return Result{Kind: Continue} // drop silently, spec.md §4.5 rule 5
	}
	if !c.witnesses.Contains(from) {
		return Result{Kind: Continue}
	}

	want := lids.BindingMessage(c.id, claimedResultID, c.prestateHash)
	if !bytesEqual(share.Message, want) {
		c.log.Debug("share message binding mismatch", zap.Stringer("instance", c.id), zap.Stringer("from", from))
		return Result{Kind: Continue}
	}
	known, ok := c.known[from]
	if !ok || !sameCommitment(known, share.Commitment) {
		c.log.Debug("share nonce binding mismatch", zap.Stringer("instance", c.id), zap.Stringer("from", from))
		return Result{Kind: Continue}
	}

	proof := c.tracker.CheckShare(from, c.id, c.prestateHash, claimedResultID, timestamp)
	ev := fsm.ShareEvent(proof != nil)
	next, _, err := fsm.Transition(c.state, ev)
	if err != nil {
		return Result{Kind: Continue}
	}
	c.state = next

	var proofs []evidence.Proof
	if proof != nil {
		proofs = append(proofs, *proof)
	}
	if claimedResultID != c.resultID {
		// Equivocation against the result this instance is collecting
		// toward; the proof above already records it. Per SPEC_FULL.md §9
		// decision 2, the share itself is never inserted.
		return Result{Kind: Continue, Proofs: proofs}
	}

	insert := c.coll.TryInsert(from, claimedResultID, share)

	if insert.Kind != collector.ThresholdReachedKind {
		return Result{Kind: Continue, Proofs: proofs}
	}

	return c.finalize(insert.Sealed, proofs)
}

func (c *Coordinator) finalize(sealed *collector.ThresholdShareSet, proofs []evidence.Proof) Result {
	next, _, err := fsm.Transition(c.state, fsm.ThresholdEvent())
	if err != nil {
		return Result{Kind: Continue, Proofs: proofs}
	}
	c.state = next

	agg, err := sealed.Combine(context.Background(), c.signerImpl, c.groupKey)
	if err != nil {
		c.state = fsm.State{Phase: fsm.Failed, Role: fsm.Coordinator}
		c.log.Debug("aggregation failed", zap.Stringer("instance", c.id), zap.Error(err))
		return Result{Kind: FailedKind, Err: fmt.Errorf("coordinator: %w", err), Proofs: proofs}
	}

	if !c.signerImpl.Verify(context.Background(), agg, lids.BindingMessage(c.id, c.resultID, c.prestateHash), c.groupKey) {
		c.state = fsm.State{Phase: fsm.Failed, Role: fsm.Coordinator}
		c.log.Debug("verification failed", zap.Stringer("instance", c.id))
		return Result{Kind: FailedKind, Err: fmt.Errorf("coordinator: %w", signer.ErrVerificationFailed), Proofs: proofs}
	}

	fact := wire.CommitFact{
		ConsensusID:  c.id,
		ResultID:     c.resultID,
		PrestateHash: c.prestateHash,
		Signature:    agg,
		SignerSet:    sealed.Signers(),
	}
	return Result{
		Kind:       CommittedKind,
		CommitFact: &fact,
		Proofs:     proofs,
		Outbound: []Outbound{{Message: wire.ConsensusResult{
			InstanceID:    c.id,
			CommitFact:    fact,
			EvidenceDelta: c.delta(),
		}}},
	}
}

// HandleTimerExpired applies a fired timer to the instance (spec.md §4.2).
func (c *Coordinator) HandleTimerExpired(kind fsm.TimerKind) Result {
	next, effects, err := fsm.Transition(c.state, fsm.TimerEvent(kind))
	if err != nil {
		return Result{Kind: Continue}
	}
	c.state = next

	for _, eff := range effects {
		if eff.Kind == fsm.DiscardCachedCommitments {
			c.known = make(map[lids.AuthorityID]signer.NonceCommitment)
			c.coll = nil
		}
	}

	if c.state.Phase == fsm.Failed {
		return Result{Kind: FailedKind}
	}
	if c.state.Phase == fsm.FallbackActive {
		return Result{Kind: Continue, Outbound: []Outbound{{Message: c.buildExecute()}}}
	}
	return Result{Kind: Continue}
}

// Cancel explicitly cancels the instance (spec.md §4.2, §5).
func (c *Coordinator) Cancel() Result {
	next, _, _ := fsm.Transition(c.state, fsm.CancelEvent())
	c.state = next
	return Result{Kind: FailedKind}
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
