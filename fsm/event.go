// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fsm

// TimerKind distinguishes the two timers an instance carries (spec.md
// §4.2): the fast-path nonce TTL and the whole-instance deadline.
type TimerKind int

const (
	NonceTTL TimerKind = iota
	InstanceDeadline
)

// Event is the sum type the pure Transition function accepts. Exactly one
// of the typed fields on a constructed Event is meaningful; callers use
// the StartEvent/TimerEvent/ShareEvent/ThresholdEvent/CancelEvent
// constructors rather than building one by hand.
type Event struct {
	kind eventKind

	// Start
	role                Role
	witnessSetValid     bool
	hasCachedCommitments bool
	cachedEpochCurrent  bool

	// TimerExpired
	timer TimerKind

	// ShareReceived
	equivocation bool
}

type eventKind int

const (
	evStart eventKind = iota
	evTimerExpired
	evShareReceived
	evCollectorReachedThreshold
	evExplicitCancel
)

// StartEvent begins a Pending instance. witnessSetValid and role are
// guard inputs the caller has already evaluated (ids.WitnessSet.Valid(),
// and whether this side owns the Coordinator role); hasCachedCommitments
// and cachedEpochCurrent decide fast-path vs fallback (spec.md §4.2 row
// 1, §9 decision 1: the fast path is always implemented here, gated only
// by whether the caller ever supplies cached commitments).
func StartEvent(role Role, witnessSetValid, hasCachedCommitments, cachedEpochCurrent bool) Event {
	return Event{
		kind:                 evStart,
		role:                 role,
		witnessSetValid:      witnessSetValid,
		hasCachedCommitments: hasCachedCommitments,
		cachedEpochCurrent:   cachedEpochCurrent,
	}
}

// TimerEvent reports that one of the instance's timers has fired.
func TimerEvent(kind TimerKind) Event {
	return Event{kind: evTimerExpired, timer: kind}
}

// ShareEvent reports a share that has already passed §4.5 validation.
// equivocation is true when the caller's evidence.Tracker.CheckShare call
// returned a proof for this share.
func ShareEvent(equivocation bool) Event {
	return Event{kind: evShareReceived, equivocation: equivocation}
}

// ThresholdEvent reports that the collector sealed on this insert.
func ThresholdEvent() Event {
	return Event{kind: evCollectorReachedThreshold}
}

// CancelEvent reports an explicit cancellation request.
func CancelEvent() Event {
	return Event{kind: evExplicitCancel}
}
