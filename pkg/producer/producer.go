// Package producer appends typed events to logs through any logstore.Store.
// It owns envelope construction (timestamps, correlation IDs) and the
// concurrent batch append; delivery guarantees live store-side.
package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Event is one element of a batch append.
type Event struct {
	Log       string
	EventType string
	Payload   any
}

// Result is the per-event outcome of AppendBatch. Partial failure is
// expected: inspect every element, never assume all-or-nothing.
type Result struct {
	ID  id.ID
	Err error
}

// Options configure a Producer.
type Options struct {
	// Concurrency bounds parallel appends in AppendBatch. Default 8.
	Concurrency int
	Logger      logpkg.Logger
}

// Producer appends enveloped events.
type Producer struct {
	store  logstore.Store
	opts   Options
	logger logpkg.Logger
}

// New returns a Producer over the store.
func New(store logstore.Store, opts Options) *Producer {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("producer"))
	}
	return &Producer{store: store, opts: opts, logger: logger}
}

func (p *Producer) concurrency() int {
	if p.opts.Concurrency > 0 {
		return p.opts.Concurrency
	}
	return 8
}

// Append envelopes one event and appends it, returning the assigned entry
// ID. Store connectivity failures surface as logstore.ErrUnavailable.
func (p *Producer) Append(ctx context.Context, log, eventType string, payload any) (id.ID, error) {
	if eventType == "" {
		return id.ID{}, fmt.Errorf("event type required")
	}
	raw, err := rawPayload(payload)
	if err != nil {
		return id.ID{}, fmt.Errorf("marshal payload: %w", err)
	}
	t0 := time.Now()
	env := events.New(eventType, raw)
	eid, err := p.store.Append(ctx, log, env.Marshal())
	if err != nil {
		return id.ID{}, err
	}
	p.logger.With(
		logpkg.Str("log", log),
		logpkg.Str("type", eventType),
		logpkg.Str("id", eid.String()),
		logpkg.Int64("dur_ms", time.Since(t0).Milliseconds()),
	).Debug("producer.append")
	return eid, nil
}

// AppendBatch appends every event concurrently and returns one Result per
// event, index-aligned with the input. A failed element never stops the
// others.
func (p *Producer) AppendBatch(ctx context.Context, evs []Event) []Result {
	results := make([]Result, len(evs))
	var g errgroup.Group
	g.SetLimit(p.concurrency())
	for i := range evs {
		i := i
		g.Go(func() error {
			eid, err := p.Append(ctx, evs[i].Log, evs[i].EventType, evs[i].Payload)
			results[i] = Result{ID: eid, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// rawPayload renders payload as JSON, passing through values that already
// are JSON bytes.
func rawPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
