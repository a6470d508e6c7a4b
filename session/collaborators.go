// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package session

import (
	"context"
	"time"

	"github.com/luxfi/singularity/evidence"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/wire"
)

// Transport sends a single already-encoded wire message to one authority.
// No ordering or delivery guarantees are assumed (spec.md §6); transport
// errors are retried at the transport layer, outside the core.
type Transport interface {
	Send(ctx context.Context, to lids.AuthorityID, message []byte) error
}

// Clock is the orchestrator's single monotonic time source (spec.md §5).
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the real wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Guard is the authorization capability consulted before any outbound send
// (spec.md §6): a deny aborts the send and is logged, but does not alter
// instance state.
type Guard interface {
	Check(ctx context.Context, context lids.ContextID, operation string) error
}

// AllowAll is a Guard that never denies. Useful for tests and for
// deployments that enforce authorization entirely at the transport layer.
type AllowAll struct{}

// Check implements Guard.
func (AllowAll) Check(context.Context, lids.ContextID, string) error { return nil }

// FactSink publishes terminal artifacts. Both methods are best-effort and
// must be idempotent on the sink's side (spec.md §6).
type FactSink interface {
	PublishCommitFact(ctx context.Context, fact wire.CommitFact)
	PublishEvidenceProof(ctx context.Context, proof evidence.Proof)
}
