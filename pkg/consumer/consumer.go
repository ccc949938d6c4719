// Package consumer builds delivery loops on top of a logstore.Store: a
// grouped Worker competing inside a consumer group with explicit acks, a
// SimpleConsumer tailing a log with a private in-memory cursor, and a
// Reclaimer sweeping stale pending entries back to a live consumer.
//
// Delivery is at-least-once. Handlers must tolerate redelivery; the
// envelope's correlation ID is the natural idempotency key.
package consumer

import (
	"context"
	"sync"

	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Handler processes one decoded event. Returning an error leaves the entry
// unacknowledged (grouped workers) so a later reclaim can redeliver it.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, env events.Envelope) error { return f(ctx, env) }

// Outcomes recorded by an AuditSink for dispatched entries.
const (
	// OutcomeProcessed marks an entry whose handler returned nil.
	OutcomeProcessed = "processed"
	// OutcomeIgnored marks an entry that was acknowledged without a handler
	// run: no handler registered for its type, or the envelope was
	// malformed.
	OutcomeIgnored = "ignored"
)

// AuditSink receives a record for every dispatched entry. Implementations
// must be idempotent on entry ID: at-least-once delivery re-records entries
// that were processed but not yet acknowledged when a worker died.
type AuditSink interface {
	// RecordProcessed records a completed dispatch with its outcome.
	RecordProcessed(ctx context.Context, entryID id.ID, eventType string, payload []byte, outcome string) error
	// RecordError records a handler failure for an entry left pending.
	RecordError(ctx context.Context, entryID id.ID, message string) error
}

// registry maps event types to handlers. Shared by Worker and
// SimpleConsumer, which embed it to promote Register.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// Register installs the handler for an event type, replacing any previous
// registration. Safe to call while the consumer is running.
func (r *registry) Register(eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]Handler)
	}
	r.handlers[eventType] = h
}

func (r *registry) lookup(eventType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[eventType]
}

// safeSink guards an optional AuditSink: a nil sink is a no-op and a failing
// sink is logged, never propagated. Audit is observability, not delivery
// state; the pending list alone decides redelivery.
type safeSink struct {
	sink   AuditSink
	logger logpkg.Logger
}

func (s safeSink) processed(ctx context.Context, entryID id.ID, eventType string, payload []byte, outcome string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordProcessed(ctx, entryID, eventType, payload, outcome); err != nil {
		s.logger.Warn("consumer.audit record failed",
			logpkg.Str("id", entryID.String()),
			logpkg.Err(err),
		)
	}
}

func (s safeSink) failed(ctx context.Context, entryID id.ID, message string) {
	if s.sink == nil {
		return
	}
	if err := s.sink.RecordError(ctx, entryID, message); err != nil {
		s.logger.Warn("consumer.audit record failed",
			logpkg.Str("id", entryID.String()),
			logpkg.Err(err),
		)
	}
}

// dispatchResult classifies one entry's dispatch, before any ack or cursor
// movement.
type dispatchResult int

const (
	// dispatchProcessed: handler ran and returned nil.
	dispatchProcessed dispatchResult = iota
	// dispatchIgnored: no handler will ever claim this entry; safe to
	// acknowledge so it stops redelivering.
	dispatchIgnored
	// dispatchFailed: handler returned an error.
	dispatchFailed
)

// dispatchEntry decodes one entry and runs its handler. The audit record is
// written before the caller acks; a crash between the two redelivers the
// entry and the sink's idempotency absorbs the duplicate record.
func dispatchEntry(ctx context.Context, reg *registry, sink safeSink, logger logpkg.Logger, e logstore.Entry) dispatchResult {
	env, err := events.FromFields(e.Fields)
	if err != nil {
		logger.Debug("consumer.skipping malformed entry",
			logpkg.Str("log", e.Log),
			logpkg.Str("id", e.ID.String()),
			logpkg.Err(err),
		)
		sink.processed(ctx, e.ID, "", nil, OutcomeIgnored)
		return dispatchIgnored
	}
	h := reg.lookup(env.EventType)
	if h == nil {
		logger.Debug("consumer.skipping unhandled event type",
			logpkg.Str("log", e.Log),
			logpkg.Str("id", e.ID.String()),
			logpkg.Str("type", env.EventType),
		)
		sink.processed(ctx, e.ID, env.EventType, env.Payload, OutcomeIgnored)
		return dispatchIgnored
	}
	if err := h.Handle(ctx, env); err != nil {
		logger.Warn("consumer.handler failed",
			logpkg.Str("log", e.Log),
			logpkg.Str("id", e.ID.String()),
			logpkg.Str("type", env.EventType),
			logpkg.Err(err),
		)
		sink.failed(ctx, e.ID, err.Error())
		return dispatchFailed
	}
	sink.processed(ctx, e.ID, env.EventType, env.Payload, OutcomeProcessed)
	return dispatchProcessed
}
