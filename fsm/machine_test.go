// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStartFastPathWhenCommitmentsCurrent(t *testing.T) {
	state := State{Phase: Pending, Role: Coordinator}
	next, effects, err := Transition(state, StartEvent(Coordinator, true, true, true))
	require.NoError(t, err)
	require.Equal(t, FastPathActive, next.Phase)
	require.Empty(t, effects)
}

func TestStartFallbackWhenNoCachedCommitments(t *testing.T) {
	state := State{Phase: Pending, Role: Coordinator}
	next, effects, err := Transition(state, StartEvent(Coordinator, true, false, false))
	require.NoError(t, err)
	require.Equal(t, FallbackActive, next.Phase)
	require.Equal(t, []Effect{{Kind: GenerateRoundNonces}}, effects)
}

func TestStartFallbackWhenCachedCommitmentsStale(t *testing.T) {
	state := State{Phase: Pending, Role: Coordinator}
	next, effects, err := Transition(state, StartEvent(Coordinator, true, true, false))
	require.NoError(t, err)
	require.Equal(t, FallbackActive, next.Phase)
	require.Equal(t, []Effect{{Kind: DiscardCachedCommitments}, {Kind: GenerateRoundNonces}}, effects)
}

func TestStartFailsWhenWitnessSetInvalid(t *testing.T) {
	state := State{Phase: Pending, Role: Coordinator}
	next, effects, err := Transition(state, StartEvent(Coordinator, false, false, false))
	require.NoError(t, err)
	require.Equal(t, Failed, next.Phase)
	require.Empty(t, effects)
}

func TestStartRejectedForWitnessRole(t *testing.T) {
	state := State{Phase: Pending, Role: Witness}
	next, _, err := Transition(state, StartEvent(Witness, true, false, false))
	require.NoError(t, err)
	require.Equal(t, Failed, next.Phase)
}

func TestStartOnNonPendingIsMalformed(t *testing.T) {
	state := State{Phase: FallbackActive, Role: Coordinator}
	_, _, err := Transition(state, StartEvent(Coordinator, true, false, false))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestNonceTTLExpiryFallsBackFromFastPath(t *testing.T) {
	state := State{Phase: FastPathActive, Role: Coordinator}
	next, effects, err := Transition(state, TimerEvent(NonceTTL))
	require.NoError(t, err)
	require.Equal(t, FallbackActive, next.Phase)
	require.Equal(t, []Effect{{Kind: DiscardCachedCommitments}, {Kind: GenerateRoundNonces}}, effects)
}

func TestNonceTTLExpiryIsNoopInFallback(t *testing.T) {
	state := State{Phase: FallbackActive, Role: Coordinator}
	next, effects, err := Transition(state, TimerEvent(NonceTTL))
	require.NoError(t, err)
	require.Equal(t, FallbackActive, next.Phase)
	require.Empty(t, effects)
}

func TestInstanceDeadlineFromAnyNonTerminalPhaseFails(t *testing.T) {
	for _, p := range []Phase{Pending, FastPathActive, FallbackActive} {
		next, effects, err := Transition(State{Phase: p, Role: Coordinator}, TimerEvent(InstanceDeadline))
		require.NoError(t, err)
		require.Equal(t, Failed, next.Phase)
		require.Empty(t, effects)
	}
}

func TestShareReceivedInsertsWithoutPhaseChange(t *testing.T) {
	for _, p := range []Phase{FastPathActive, FallbackActive} {
		state := State{Phase: p, Role: Coordinator}
		next, effects, err := Transition(state, ShareEvent(false))
		require.NoError(t, err)
		require.Equal(t, p, next.Phase)
		require.Equal(t, []Effect{{Kind: InsertShare}}, effects)
	}
}

func TestShareReceivedWithEquivocationAppendsProofEffect(t *testing.T) {
	state := State{Phase: FallbackActive, Role: Coordinator}
	_, effects, err := Transition(state, ShareEvent(true))
	require.NoError(t, err)
	require.Equal(t, []Effect{{Kind: InsertShare}, {Kind: AppendEquivocationProof}}, effects)
}

func TestShareReceivedOutsideActivePhaseIsMalformed(t *testing.T) {
	_, _, err := Transition(State{Phase: Pending, Role: Coordinator}, ShareEvent(false))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestCollectorReachedThresholdCommits(t *testing.T) {
	for _, p := range []Phase{FastPathActive, FallbackActive} {
		next, effects, err := Transition(State{Phase: p, Role: Coordinator}, ThresholdEvent())
		require.NoError(t, err)
		require.Equal(t, Committed, next.Phase)
		require.Equal(t, []Effect{{Kind: Aggregate}, {Kind: EmitCommitFact}}, effects)
	}
}

func TestCollectorReachedThresholdFromPendingIsMalformed(t *testing.T) {
	_, _, err := Transition(State{Phase: Pending, Role: Coordinator}, ThresholdEvent())
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestExplicitCancelFromActivePhasesFails(t *testing.T) {
	for _, p := range []Phase{Pending, FastPathActive, FallbackActive} {
		next, effects, err := Transition(State{Phase: p, Role: Coordinator}, CancelEvent())
		require.NoError(t, err)
		require.Equal(t, Failed, next.Phase)
		require.Empty(t, effects)
	}
}

func TestTerminalPhasesAreSticky(t *testing.T) {
	for _, terminal := range []Phase{Committed, Failed} {
		state := State{Phase: terminal, Role: Coordinator}
		for _, ev := range []Event{TimerEvent(NonceTTL), TimerEvent(InstanceDeadline), ShareEvent(false), ThresholdEvent(), CancelEvent()} {
			next, effects, err := Transition(state, ev)
			require.NoError(t, err)
			require.Equal(t, terminal, next.Phase, "terminal phases must never move")
			require.Empty(t, effects)
		}
	}
}

func TestTransitionIsDeterministic(t *testing.T) {
	state := State{Phase: FallbackActive, Role: Coordinator}
	ev := ShareEvent(true)

	next1, effects1, err1 := Transition(state, ev)
	next2, effects2, err2 := Transition(state, ev)

	require.Equal(t, next1, next2)
	require.Equal(t, effects1, effects2)
	require.Equal(t, err1, err2)
}
