// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package session implements the orchestrator that multiplexes many
// concurrent consensus instances over a shared transport, clock, guard,
// and fact sink (spec.md §4.7).
package session

import (
	"errors"
	"time"
)

var (
	// ErrInvalidInstanceDeadline is returned by Config.Validate.
	ErrInvalidInstanceDeadline = errors.New("session: instance deadline must be positive")
	// ErrInvalidNonceTTL is returned by Config.Validate.
	ErrInvalidNonceTTL = errors.New("session: nonce ttl must be positive")
	// ErrNonceTTLExceedsDeadline is returned when the fast-path nonce TTL
	// would outlive the whole instance.
	ErrNonceTTLExceedsDeadline = errors.New("session: nonce ttl must not exceed the instance deadline")
	// ErrInvalidRetention is returned by Config.Validate.
	ErrInvalidRetention = errors.New("session: terminal retention must not be negative")
)

// Config holds the orchestrator's deployment-level parameters (spec.md
// §4.7, §9 decision 1). Mirrors the teacher's Parameters/Validate shape.
type Config struct {
	// FastPathEnabled gates whether BeginCoordinator is ever called with a
	// non-empty cached-commitments map. The fast-path phase transitions
	// themselves are always implemented in package fsm regardless of this
	// flag (SPEC_FULL.md §9 decision 1); this only controls whether this
	// deployment ever attempts to use them.
	FastPathEnabled bool

	// InstanceDeadline bounds the whole lifetime of an instance.
	InstanceDeadline time.Duration

	// NonceTTL bounds how long cached commitments may be trusted before the
	// fast path falls back (spec.md §4.2, TimerExpired(nonce_ttl)).
	NonceTTL time.Duration

	// TerminalRetention is how long a terminal instance is kept around for
	// idempotent result re-delivery before being dropped (spec.md §4.7,
	// "On terminal, retain the instance briefly... then drop it").
	TerminalRetention time.Duration
}

// DefaultConfig returns reasonable defaults for interactive deployments.
func DefaultConfig() Config {
	return Config{
		FastPathEnabled:   true,
		InstanceDeadline:  10 * time.Second,
		NonceTTL:          2 * time.Second,
		TerminalRetention: 30 * time.Second,
	}
}

// Validate checks Config's invariants.
func (c Config) Validate() error {
	if c.InstanceDeadline <= 0 {
		return ErrInvalidInstanceDeadline
	}
	if c.NonceTTL <= 0 {
		return ErrInvalidNonceTTL
	}
	if c.NonceTTL > c.InstanceDeadline {
		return ErrNonceTTLExceedsDeadline
	}
	if c.TerminalRetention < 0 {
		return ErrInvalidRetention
	}
	return nil
}
