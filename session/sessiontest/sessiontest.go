// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sessiontest provides deterministic, hand-rolled fakes for the
// collaborator interfaces session.Orchestrator depends on
// (Transport, Clock, Guard, FactSink). They exist so orchestrator tests can
// drive multi-instance scenarios without a real network or wall clock.
package sessiontest

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/singularity/evidence"
	lids "github.com/luxfi/singularity/ids"
	"github.com/luxfi/singularity/wire"
)

// Router is an in-memory bus shared by every simulated node in a cluster:
// Send hands the message directly to whatever Deliver func is registered
// for the destination authority. Tests register one Deliver func per
// simulated node, typically orchestrator.HandleInbound bound to that node's
// own Orchestrator, and obtain each node's session.Transport via For, so
// that every node reports its own AuthorityID as the sender rather than
// sharing one fixed identity.
type Router struct {
	mu      sync.Mutex
	routes  map[lids.AuthorityID]func(ctx context.Context, from lids.AuthorityID, raw []byte) error
	dropped map[lids.AuthorityID]bool
}

// NewRouter constructs an empty Router with no registered routes.
func NewRouter() *Router {
	return &Router{
		routes:  make(map[lids.AuthorityID]func(context.Context, lids.AuthorityID, []byte) error),
		dropped: make(map[lids.AuthorityID]bool),
	}
}

// Register binds to to a handler, usually another node's Orchestrator.HandleInbound.
func (r *Router) Register(to lids.AuthorityID, handler func(ctx context.Context, from lids.AuthorityID, raw []byte) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[to] = handler
}

// Drop makes every future Send to the given destination silently fail to
// deliver, simulating a partitioned or silent witness.
func (r *Router) Drop(to lids.AuthorityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[to] = true
}

// deliver implements the shared dispatch logic used by every node's view of
// the router (see For): look up to's handler and invoke it with from as the
// reported sender, unless to has been dropped or never registered.
func (r *Router) deliver(ctx context.Context, from, to lids.AuthorityID, message []byte) error {
	r.mu.Lock()
	handler, ok := r.routes[to]
	blocked := r.dropped[to]
	r.mu.Unlock()
	if blocked || !ok {
		return nil
	}
	return handler(ctx, from, message)
}

// For returns the session.Transport one node with the given AuthorityID
// should use: every Send through it reports self as the sender, while
// sharing this Router's single route table and drop set with every other
// node's view.
func (r *Router) For(self lids.AuthorityID) *NodeTransport {
	return &NodeTransport{router: r, self: self}
}

// NodeTransport is one node's view of a shared Router: it implements
// session.Transport, stamping every outbound Send with the owning node's
// own AuthorityID as sender.
type NodeTransport struct {
	router *Router
	self   lids.AuthorityID
}

// Send implements session.Transport.
func (n *NodeTransport) Send(ctx context.Context, to lids.AuthorityID, message []byte) error {
	return n.router.deliver(ctx, n.self, to, message)
}

// Clock is a settable fake implementing session.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock constructs a Clock starting at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now implements session.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Guard is a fake implementing session.Guard that denies every operation
// named in its deny set and allows everything else.
type Guard struct {
	mu   sync.Mutex
	deny map[string]bool
}

// NewGuard constructs a Guard that allows everything until Deny is called.
func NewGuard() *Guard {
	return &Guard{deny: make(map[string]bool)}
}

// Deny makes future Check calls for operation fail.
func (g *Guard) Deny(operation string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deny[operation] = true
}

// Check implements session.Guard.
func (g *Guard) Check(_ context.Context, _ lids.ContextID, operation string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deny[operation] {
		return errDenied
	}
	return nil
}

var errDenied = &deniedError{}

type deniedError struct{}

func (*deniedError) Error() string { return "sessiontest: operation denied" }

// Sink is a fake implementing session.FactSink that records every
// published artifact for later assertions.
type Sink struct {
	mu     sync.Mutex
	facts  []wire.CommitFact
	proofs []evidence.Proof
}

// NewSink constructs an empty Sink.
func NewSink() *Sink {
	return &Sink{}
}

// PublishCommitFact implements session.FactSink.
func (s *Sink) PublishCommitFact(_ context.Context, fact wire.CommitFact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, fact)
}

// PublishEvidenceProof implements session.FactSink.
func (s *Sink) PublishEvidenceProof(_ context.Context, proof evidence.Proof) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proofs = append(s.proofs, proof)
}

// Facts returns every CommitFact published so far.
func (s *Sink) Facts() []wire.CommitFact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.CommitFact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Proofs returns every evidence.Proof published so far.
func (s *Sink) Proofs() []evidence.Proof {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]evidence.Proof, len(s.proofs))
	copy(out, s.proofs)
	return out
}
