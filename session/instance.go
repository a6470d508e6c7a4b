// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"sync"
	"time"

	"github.com/luxfi/singularity/evidence"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/role/coordinator"
	"github.com/luxfi/singularity/role/witness"
	"github.com/luxfi/singularity/wire"
)

// TerminalKind discriminates the three terminal shapes spec.md §4.7
// defines: Committed, Conflicted (an aggregation or verification failure -
// folded into Failed here since the protocol's own phase enum has no
// separate Conflicted state, see DESIGN.md), and Timeout.
type TerminalKind int

const (
	TerminalCommitted TerminalKind = iota
	TerminalFailed
	TerminalTimeout
)

// TerminalResult is recorded once per instance, when it first reaches a
// terminal state, and Orchestrator.Result returns that same value on every
// call until the instance is swept after Config.TerminalRetention. It is not
// pushed to any sink; FactSink only receives commit facts and proofs.
type TerminalResult struct {
	Kind       TerminalKind
	InstanceID lids.ConsensusID
	CommitFact *wire.CommitFact
	Proofs     []evidence.Proof
	Err        error
	ElapsedMS  int64
}

// instance is the orchestrator's private bookkeeping for one ConsensusID.
// All mutation happens under mu, which the orchestrator acquires before
// calling into the owning role handler (spec.md §5).
type instance struct {
	mu sync.Mutex

	id        lids.ConsensusID
	contextID lids.ContextID
	createdAt time.Time
	deadline  time.Time

	coord *coordinator.Coordinator
	wit   *witness.Witness

	terminal       bool
	terminalResult TerminalResult
	terminalAt     time.Time
}
