// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/singularity/evidence"
	"github.com/luxfi/singularity/fsm"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/role/coordinator"
	"github.com/luxfi/singularity/role/witness"
	"github.com/luxfi/singularity/signer"
	"github.com/luxfi/singularity/wire"
)

var (
	errFailedActiveInstancesMetric = errors.New("session: failed to register active instances metric")
	// ErrUnknownInstance is returned when an operation names a ConsensusID
	// the orchestrator has never seen (or has already swept).
	ErrUnknownInstance = errors.New("session: unknown instance")
)

// Orchestrator owns a map ConsensusID -> instance and dispatches inbound
// wire messages to the owning role handler under that instance's lock
// (spec.md §4.7, §5). Handlers for different instances may run
// concurrently; the map itself is guarded separately from each instance.
type Orchestrator struct {
	self lids.AuthorityID
	cfg  Config

	transport  Transport
	clock      Clock
	guard      Guard
	sink       FactSink
	signerImpl signer.ThresholdSigner
	groupKey   signer.GroupPublicKey
	tracker    *evidence.Tracker

	log log.Logger

	instancesMu sync.RWMutex
	instances   map[lids.ConsensusID]*instance

	activeGauge prometheus.Gauge

	// epoch is the orchestrator's current notion of ids.Epoch, advanced by
	// AdvanceEpoch (e.g. on key rotation upstream). BeginCoordinator and
	// handleExecute stamp every instance they create with the value read
	// here, so a cached commitment map minted under an older epoch fails
	// coordinator.Begin's epoch-current check and falls back instead of
	// fast-pathing on stale nonces (spec.md §8 scenario 6).
	epoch atomic.Uint64
}

// New constructs an Orchestrator. self is this node's own AuthorityID,
// used when a witness-role instance must be created locally in response to
// an inbound Execute.
func New(
	self lids.AuthorityID,
	cfg Config,
	transport Transport,
	clock Clock,
	guard Guard,
	sink FactSink,
	signerImpl signer.ThresholdSigner,
	groupKey signer.GroupPublicKey,
	tracker *evidence.Tracker,
	logger log.Logger,
	reg prometheus.Registerer,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	activeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_active_instances",
		Help: "Number of consensus instances currently tracked by the orchestrator",
	})
	if err := reg.Register(activeGauge); err != nil {
		return nil, fmt.Errorf("%w: %w", errFailedActiveInstancesMetric, err)
	}

	o := &Orchestrator{
		self:        self,
		cfg:         cfg,
		transport:   transport,
		clock:       clock,
		guard:       guard,
		sink:        sink,
		signerImpl:  signerImpl,
		groupKey:    groupKey,
		tracker:     tracker,
		log:         logger,
		instances:   make(map[lids.ConsensusID]*instance),
		activeGauge: activeGauge,
	}
	o.epoch.Store(1)
	return o, nil
}

// Epoch returns the orchestrator's current epoch generation.
func (o *Orchestrator) Epoch() lids.Epoch {
	return lids.Epoch(o.epoch.Load())
}

// AdvanceEpoch bumps the orchestrator's epoch generation by one and returns
// the new value. Every instance created after this call - as coordinator via
// BeginCoordinator or as witness via handleExecute - is stamped with the new
// epoch, so cached commitments minted under the old one are stale on sight.
func (o *Orchestrator) AdvanceEpoch() lids.Epoch {
	return lids.Epoch(o.epoch.Add(1))
}

// BeginCoordinator opens a new instance as coordinator (spec.md §4.4
// "begin"). cached is ignored entirely unless Config.FastPathEnabled.
func (o *Orchestrator) BeginCoordinator(
	ctx context.Context,
	contextID lids.ContextID,
	witnesses lids.WitnessSet,
	prestateHash lids.PrestateHash,
	proposal []byte,
	cached map[lids.AuthorityID]signer.NonceCommitment,
) (lids.ConsensusID, error) {
	if err := o.guard.Check(ctx, contextID, "begin"); err != nil {
		return lids.ConsensusID{}, fmt.Errorf("session: begin denied: %w", err)
	}

	resultID := lids.NewResultID(prestateHash, proposal)
	id := lids.NewConsensusID(contextID, resultID)
	now := o.clock.Now()

	if !o.cfg.FastPathEnabled {
		cached = nil
	}

	coord, err := coordinator.New(
		id, contextID, witnesses, prestateHash, proposal, now.Add(o.cfg.InstanceDeadline), o.Epoch(),
		o.signerImpl, o.groupKey, o.tracker, o.log,
	)
	if err != nil {
		return lids.ConsensusID{}, fmt.Errorf("session: begin: %w", err)
	}

	inst := &instance{id: id, contextID: contextID, createdAt: now, deadline: now.Add(o.cfg.InstanceDeadline), coord: coord}
	o.putInstance(inst)

	inst.mu.Lock()
	res, err := coord.Begin(cached)
	inst.mu.Unlock()
	if err != nil {
		return lids.ConsensusID{}, fmt.Errorf("session: begin: %w", err)
	}
	o.dispatchCoordinatorResult(ctx, inst, res)
	return id, nil
}

func (o *Orchestrator) putInstance(inst *instance) {
	o.instancesMu.Lock()
	defer o.instancesMu.Unlock()
	o.instances[inst.id] = inst
	o.activeGauge.Set(float64(len(o.instances)))
}

func (o *Orchestrator) getInstance(id lids.ConsensusID) (*instance, bool) {
	o.instancesMu.RLock()
	defer o.instancesMu.RUnlock()
	inst, ok := o.instances[id]
	return inst, ok
}

// HandleInbound decodes raw and routes it to the owning instance's role
// handler (spec.md §4.7 "Route inbound messages to instance handlers").
func (o *Orchestrator) HandleInbound(ctx context.Context, from lids.AuthorityID, raw []byte) error {
	msg, err := wire.Decode(raw)
	if err != nil {
		return fmt.Errorf("session: decode inbound: %w", err)
	}

	switch m := msg.(type) {
	case wire.Execute:
		return o.handleExecute(ctx, from, m)
	case wire.NonceCommit:
		return o.handleNonceCommit(ctx, from, m)
	case wire.SignRequest:
		return o.handleSignRequest(ctx, from, m)
	case wire.SignShare:
		return o.handleSignShare(ctx, from, m)
	case wire.ConsensusResult:
		return o.handleConsensusResult(ctx, from, m)
	default:
		return fmt.Errorf("session: unrecognized inbound message type %T", msg)
	}
}

// handleExecute answers an Execute message as a witness. Most recipients
// have no instance yet and stand one up fresh; a recipient that is already
// running this instance as coordinator only needs a witness role of its own
// if it is itself a declared member of the witness set (a coordinator may
// also vote), in which case one is lazily attached to the same instance
// record rather than treating the message as a stray self-loop.
func (o *Orchestrator) handleExecute(ctx context.Context, from lids.AuthorityID, m wire.Execute) error {
	inst, ok := o.getInstance(m.InstanceID)
	if !ok {
		now := o.clock.Now()
		inst = &instance{id: m.InstanceID, contextID: m.ContextID, createdAt: now, deadline: m.Deadline}
		o.putInstance(inst)
	}

	inst.mu.Lock()
	if inst.wit == nil {
		if inst.coord != nil && !m.WitnessSet.Contains(o.self) {
			inst.mu.Unlock()
			return nil
		}
		inst.wit = witness.New(o.self, m.InstanceID, m.WitnessSet, m.PrestateHash, o.Epoch(), o.signerImpl, o.groupKey, o.tracker, o.log)
	}
	nc, err := inst.wit.HandleExecute(ctx, m)
	inst.mu.Unlock()
	if err != nil {
		o.log.Debug("handle execute failed", zap.Stringer("instance", m.InstanceID), zap.Error(err))
		return nil // invalid inbound messages are discarded locally, spec.md §7
	}
	// send may loop back into this same orchestrator (a self-voting
	// coordinator replying to its own Execute); inst.mu is already
	// released above so that reentry never contends with itself.
	return o.send(ctx, inst.contextID, from, wire.EncodeNonceCommit(nc))
}

func (o *Orchestrator) handleNonceCommit(ctx context.Context, from lids.AuthorityID, m wire.NonceCommit) error {
	inst, ok := o.getInstance(m.InstanceID)
	if !ok || inst.coord == nil {
		return nil
	}
	inst.mu.Lock()
	res := inst.coord.HandleNonceCommit(from, m.Commitment, m.EvidenceDelta)
	inst.mu.Unlock()
	o.dispatchCoordinatorResult(ctx, inst, res)
	return nil
}

func (o *Orchestrator) handleSignRequest(ctx context.Context, from lids.AuthorityID, m wire.SignRequest) error {
	inst, ok := o.getInstance(m.InstanceID)
	if !ok || inst.wit == nil {
		return nil
	}
	inst.mu.Lock()
	share, err := inst.wit.HandleSignRequest(ctx, m)
	inst.mu.Unlock()
	if err != nil {
		o.log.Debug("handle sign request failed", zap.Stringer("instance", m.InstanceID), zap.Error(err))
		return nil
	}
	return o.send(ctx, inst.contextID, from, wire.EncodeSignShare(share))
}

func (o *Orchestrator) handleSignShare(ctx context.Context, from lids.AuthorityID, m wire.SignShare) error {
	inst, ok := o.getInstance(m.InstanceID)
	if !ok || inst.coord == nil {
		return nil
	}
	inst.mu.Lock()
	res := inst.coord.HandleShare(from, m.ResultID, m.Share, o.clock.Now(), m.EvidenceDelta)
	inst.mu.Unlock()
	o.dispatchCoordinatorResult(ctx, inst, res)
	return nil
}

func (o *Orchestrator) handleConsensusResult(ctx context.Context, _ lids.AuthorityID, m wire.ConsensusResult) error {
	o.tracker.Merge(m.EvidenceDelta)
	inst, ok := o.getInstance(m.InstanceID)
	if !ok {
		return nil
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.terminal {
		return nil
	}
	o.finishTerminal(ctx, inst, TerminalResult{
		Kind:       TerminalCommitted,
		InstanceID: m.InstanceID,
		CommitFact: &m.CommitFact,
		ElapsedMS:  o.clock.Now().Sub(inst.createdAt).Milliseconds(),
	})
	return nil
}

// dispatchCoordinatorResult relays one Coordinator operation's effects:
// evidence proofs to the sink, outbound messages to the transport, and a
// terminal result once the instance reaches one. It is always called with
// inst.mu released - a broadcast may loop back into this same orchestrator
// (a self-voting coordinator is also one of its own witnesses) and reenter
// a handler that needs the lock, so it is only ever reacquired here, briefly,
// around the terminal-bookkeeping call (spec.md §5 "suspension points").
func (o *Orchestrator) dispatchCoordinatorResult(ctx context.Context, inst *instance, res coordinator.Result) {
	for _, proof := range res.Proofs {
		o.sink.PublishEvidenceProof(ctx, proof)
	}
	for _, out := range res.Outbound {
		o.broadcast(ctx, inst.contextID, inst.coord.Witnesses(), out)
	}

	switch res.Kind {
	case coordinator.CommittedKind:
		inst.mu.Lock()
		o.finishTerminal(ctx, inst, TerminalResult{
			Kind:       TerminalCommitted,
			InstanceID: inst.id,
			CommitFact: res.CommitFact,
			Proofs:     res.Proofs,
			ElapsedMS:  o.clock.Now().Sub(inst.createdAt).Milliseconds(),
		})
		inst.mu.Unlock()
		o.sink.PublishCommitFact(ctx, *res.CommitFact)
	case coordinator.FailedKind:
		inst.mu.Lock()
		o.finishTerminal(ctx, inst, TerminalResult{
			Kind:       TerminalFailed,
			InstanceID: inst.id,
			Proofs:     res.Proofs,
			Err:        res.Err,
			ElapsedMS:  o.clock.Now().Sub(inst.createdAt).Milliseconds(),
		})
		inst.mu.Unlock()
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, contextID lids.ContextID, witnesses lids.WitnessSet, out coordinator.Outbound) {
	targets := out.To
	if len(targets) == 0 {
		targets = witnesses.Sorted()
	}

	var raw []byte
	switch m := out.Message.(type) {
	case wire.Execute:
		raw = wire.Encode(m)
	case wire.SignRequest:
		raw = wire.EncodeSignRequest(m)
	case wire.ConsensusResult:
		raw = wire.EncodeConsensusResult(m)
	default:
		o.log.Debug("unrecognized outbound message type", zap.String("type", fmt.Sprintf("%T", m)))
		return
	}

	for _, to := range targets {
		if err := o.send(ctx, contextID, to, raw); err != nil {
			o.log.Debug("broadcast send failed", zap.Stringer("to", to), zap.Error(err))
		}
	}
}

// send is the sole funnel to transport.Send: every outbound message, from
// a broadcast fan-out or a unicast reply, passes through here, so this is
// where the guard is evaluated "before any outbound send" (spec.md §6).
// A deny aborts the send and is logged; it never alters instance state -
// the instance will likely time out, per the Guard doc comment.
func (o *Orchestrator) send(ctx context.Context, contextID lids.ContextID, to lids.AuthorityID, raw []byte) error {
	if err := o.guard.Check(ctx, contextID, "send"); err != nil {
		o.log.Debug("outbound send denied", zap.Stringer("to", to), zap.Error(err))
		return fmt.Errorf("session: send denied: %w", err)
	}
	if err := o.transport.Send(ctx, to, raw); err != nil {
		return fmt.Errorf("session: transport send: %w", err)
	}
	return nil
}

// finishTerminal records inst's terminal result for idempotent re-delivery.
// Must be called with inst.mu held.
func (o *Orchestrator) finishTerminal(_ context.Context, inst *instance, result TerminalResult) {
	if inst.terminal {
		return
	}
	inst.terminal = true
	inst.terminalResult = result
	inst.terminalAt = o.clock.Now()
}

// Result returns the terminal result for id, if the instance has reached
// one and is still within its retention window (spec.md §4.7).
func (o *Orchestrator) Result(id lids.ConsensusID) (TerminalResult, bool) {
	inst, ok := o.getInstance(id)
	if !ok {
		return TerminalResult{}, false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.terminal {
		return TerminalResult{}, false
	}
	return inst.terminalResult, true
}

// Cancel explicitly cancels a coordinator-owned instance (spec.md §4.2,
// §5 "Cancellation is cooperative").
func (o *Orchestrator) Cancel(ctx context.Context, id lids.ConsensusID) error {
	inst, ok := o.getInstance(id)
	if !ok {
		return ErrUnknownInstance
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.coord == nil || inst.terminal {
		return nil
	}
	res := inst.coord.Cancel()
	o.finishTerminal(ctx, inst, TerminalResult{
		Kind:       TerminalFailed,
		InstanceID: id,
		Err:        context.Canceled,
		ElapsedMS:  o.clock.Now().Sub(inst.createdAt).Milliseconds(),
	})
	_ = res
	return nil
}

// Tick drives timers: instance deadlines, fast-path nonce TTL, and the
// terminal-retention sweep (spec.md §4.7, §5). Callers run this
// periodically against their own clock source.
func (o *Orchestrator) Tick(ctx context.Context) {
	now := o.clock.Now()

	o.instancesMu.RLock()
	snapshot := make([]*instance, 0, len(o.instances))
	for _, inst := range o.instances {
		snapshot = append(snapshot, inst)
	}
	o.instancesMu.RUnlock()

	var expired []lids.ConsensusID
	for _, inst := range snapshot {
		inst.mu.Lock()
		if inst.terminal {
			if now.Sub(inst.terminalAt) > o.cfg.TerminalRetention {
				expired = append(expired, inst.id)
			}
			inst.mu.Unlock()
			continue
		}
		if inst.coord == nil {
			inst.mu.Unlock()
			continue
		}

		var (
			res   coordinator.Result
			fired bool
			kind  fsm.TimerKind
		)
		if now.After(inst.deadline) {
			res, fired, kind = inst.coord.HandleTimerExpired(fsm.InstanceDeadline), true, fsm.InstanceDeadline
		} else if inst.coord.Phase() == fsm.FastPathActive && now.Sub(inst.createdAt) > o.cfg.NonceTTL {
			res, fired, kind = inst.coord.HandleTimerExpired(fsm.NonceTTL), true, fsm.NonceTTL
		}
		inst.mu.Unlock()
		if !fired {
			continue
		}

		// A fired instance deadline is recorded as a timeout before the
		// coordinator's Failed result is dispatched; finishTerminal keeps
		// the first result it is given.
		if kind == fsm.InstanceDeadline {
			inst.mu.Lock()
			if !inst.terminal {
				o.finishTerminal(ctx, inst, TerminalResult{
					Kind:       TerminalTimeout,
					InstanceID: inst.id,
					ElapsedMS:  now.Sub(inst.createdAt).Milliseconds(),
				})
			}
			inst.mu.Unlock()
		}

		// dispatch runs lock-free: a fired timer's Execute/ConsensusResult
		// outbound may loop back into this same orchestrator when the
		// coordinator is also one of its own witnesses (see handleExecute).
		o.dispatchCoordinatorResult(ctx, inst, res)
	}

	if len(expired) > 0 {
		o.instancesMu.Lock()
		for _, id := range expired {
			delete(o.instances, id)
		}
		o.activeGauge.Set(float64(len(o.instances)))
		o.instancesMu.Unlock()
	}
}
