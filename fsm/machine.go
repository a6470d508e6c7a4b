// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fsm

import "errors"

// ErrMalformedEvent is returned when Transition is called with an event
// that cannot apply to the given state under any guard - for example a
// second Start on an instance that already left Pending. Callers (the
// role handlers) are expected never to construct such a call; seeing this
// error means the caller, not the protocol, has a bug. It is distinct
// from the protocol's own Failed phase, which is a normal terminal value.
var ErrMalformedEvent = errors.New("fsm: event cannot apply to current state")

// Transition is the single pure function at the center of the protocol
// (spec.md §4.2). It is total over the inputs role handlers are allowed to
// construct, never suspends, and never panics: any input that falls
// outside the transition table is reported as ErrMalformedEvent rather
// than produce an arbitrary next state.
func Transition(state State, ev Event) (State, []Effect, error) {
	switch ev.kind {
	case evStart:
		return transitionStart(state, ev)
	case evTimerExpired:
		return transitionTimer(state, ev)
	case evShareReceived:
		return transitionShare(state, ev)
	case evCollectorReachedThreshold:
		return transitionThreshold(state, ev)
	case evExplicitCancel:
		return transitionCancel(state, ev)
	default:
		return state, nil, ErrMalformedEvent
	}
}

func transitionStart(state State, ev Event) (State, []Effect, error) {
	if state.Phase != Pending {
		return state, nil, ErrMalformedEvent
	}
	if ev.role != Coordinator || !ev.witnessSetValid {
		return State{Phase: Failed, Role: state.Role}, nil, nil
	}

	if ev.hasCachedCommitments && ev.cachedEpochCurrent {
		return State{Phase: FastPathActive, Role: state.Role}, nil, nil
	}

	var effects []Effect
	if ev.hasCachedCommitments && !ev.cachedEpochCurrent {
		effects = append(effects, Effect{Kind: DiscardCachedCommitments})
	}
	effects = append(effects, Effect{Kind: GenerateRoundNonces})
	return State{Phase: FallbackActive, Role: state.Role}, effects, nil
}

func transitionTimer(state State, ev Event) (State, []Effect, error) {
	if state.Phase.Terminal() {
		return state, nil, nil
	}

	switch ev.timer {
	case NonceTTL:
		if state.Phase != FastPathActive {
			return state, nil, nil
		}
		return State{Phase: FallbackActive, Role: state.Role},
			[]Effect{{Kind: DiscardCachedCommitments}, {Kind: GenerateRoundNonces}}, nil
	case InstanceDeadline:
		return State{Phase: Failed, Role: state.Role}, nil, nil
	default:
		return state, nil, ErrMalformedEvent
	}
}

func transitionShare(state State, ev Event) (State, []Effect, error) {
	if state.Phase != FastPathActive && state.Phase != FallbackActive {
		if state.Phase.Terminal() {
			return state, nil, nil
		}
		return state, nil, ErrMalformedEvent
	}

	effects := []Effect{{Kind: InsertShare}}
	if ev.equivocation {
		effects = append(effects, Effect{Kind: AppendEquivocationProof})
	}
	return state, effects, nil
}

func transitionThreshold(state State, _ Event) (State, []Effect, error) {
	if state.Phase.Terminal() {
		return state, nil, nil
	}
	if state.Phase != FastPathActive && state.Phase != FallbackActive {
		return state, nil, ErrMalformedEvent
	}
	return State{Phase: Committed, Role: state.Role},
		[]Effect{{Kind: Aggregate}, {Kind: EmitCommitFact}}, nil
}

func transitionCancel(state State, _ Event) (State, []Effect, error) {
	if state.Phase.Terminal() {
		return state, nil, nil
	}
	return State{Phase: Failed, Role: state.Role}, nil, nil
}
