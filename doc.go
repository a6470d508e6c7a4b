// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

/*
Package singularity implements a single-shot threshold-signature agreement
core: a fixed set of witnesses produces one aggregated signature over a
caller-supplied result, or the instance fails, within one bounded round.

# Overview

An instance begins when a coordinator opens one ConsensusID against a
known witness set and a prestate hash. Witnesses answer with a nonce
commitment, the coordinator requests signature shares once every
commitment is in hand, and the instance commits the moment enough shares
validate and aggregate - or fails on a bad aggregate, a witness set that
never completes, or a deadline. A parallel fast path skips the
commitment round entirely when the coordinator already holds every
witness's current-epoch commitment.

# Packages

  - ids        stable identifiers: ContextID, ConsensusID, PrestateHash,
    ResultID, the AuthorityID witness-identity alias, and WitnessSet.
  - signer     the abstract threshold-signature capability (nonce
    commitment, share production, aggregation, verification) plus a
    deterministic fake and a production adapter.
  - evidence   the equivocation detector and its CRDT-style evidence-delta
    propagation.
  - collector  the sealed/unsealed typestate share collector that makes
    "cannot aggregate before threshold" a compile-time property.
  - fsm        the pure phase/transition/effect state machine one instance
    moves through.
  - wire       the five wire message types and their canonical binary
    codec.
  - role/coordinator and role/witness   the two instance roles, each
    driven entirely by the packages above.
  - session    the orchestrator that multiplexes many concurrent
    instances over a shared transport, clock, guard, and fact sink.

Callers only ever talk to package session: construct an Orchestrator,
call BeginCoordinator to open an instance as coordinator, feed inbound
wire bytes to HandleInbound as they arrive, and call Tick periodically to
drive timers.
*/
package singularity
