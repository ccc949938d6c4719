package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// collector is a handler that records every envelope it sees.
type collector struct {
	mu  sync.Mutex
	got []events.Envelope
}

func (c *collector) Handle(_ context.Context, env events.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, env)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

// seedIndexes decodes the {"n": i} payloads recorded so far.
func (c *collector) seedIndexes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.got))
	for _, env := range c.got {
		var body struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(env.Payload, &body); err == nil {
			out = append(out, body.N)
		}
	}
	return out
}

type auditRecord struct {
	ID      id.ID
	Type    string
	Outcome string
}

// captureSink records audit calls for assertions.
type captureSink struct {
	mu      sync.Mutex
	records []auditRecord
	errs    []string
}

var _ AuditSink = (*captureSink)(nil)

func (c *captureSink) RecordProcessed(_ context.Context, entryID id.ID, eventType string, _ []byte, outcome string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, auditRecord{ID: entryID, Type: eventType, Outcome: outcome})
	return nil
}

func (c *captureSink) RecordError(_ context.Context, _ id.ID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, message)
	return nil
}

func (c *captureSink) withOutcome(outcome string) []auditRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []auditRecord
	for _, r := range c.records {
		if r.Outcome == outcome {
			out = append(out, r)
		}
	}
	return out
}

// pendingCount is polled inside Eventually conditions, so it reports errors
// as -1 instead of failing the test from a foreign goroutine.
func pendingCount(coord *Coordinator) int {
	pend, err := coord.Pending(context.Background(), 100)
	if err != nil {
		return -1
	}
	return len(pend)
}

func TestWorkerProcessesAndAcks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvents(t, store, "orders", "order.created", "order.created", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	col := &collector{}
	w := NewWorker(coord, "c1", WorkerConfig{ClaimBlock: 50 * time.Millisecond}, nil)
	w.Register("order.created", col)

	require.Equal(t, StateIdle, w.State())
	require.NoError(t, w.Start(ctx))
	require.Equal(t, StateRunning, w.State())

	require.Eventually(t, func() bool {
		return col.count() == 3 && pendingCount(coord) == 0
	}, 3*time.Second, 10*time.Millisecond)

	w.Stop()
	assert.Equal(t, StateStopped, w.State())

	assert.Equal(t, []int{0, 1, 2}, col.seedIndexes(), "entries dispatch in append order")
}

func TestWorkersCompeteWithoutOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	types := make([]string, 10)
	for i := range types {
		types[i] = "order.created"
	}
	seedEvents(t, store, "orders", types...)

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	cols := [2]*collector{{}, {}}
	workers := [2]*Worker{}
	for i := range workers {
		w := NewWorker(coord, fmt.Sprintf("c%d", i+1), WorkerConfig{
			BatchSize:  2,
			ClaimBlock: 50 * time.Millisecond,
		}, nil)
		w.Register("order.created", cols[i])
		workers[i] = w
		require.NoError(t, w.Start(ctx))
	}
	defer func() {
		for _, w := range workers {
			w.Stop()
		}
	}()

	require.Eventually(t, func() bool {
		return cols[0].count()+cols[1].count() == 10 && pendingCount(coord) == 0
	}, 5*time.Second, 10*time.Millisecond)

	seen := map[int]int{}
	for _, col := range cols {
		for _, n := range col.seedIndexes() {
			seen[n]++
		}
	}
	require.Len(t, seen, 10, "every event reaches exactly one worker")
	for n, times := range seen {
		assert.Equal(t, 1, times, "event %d delivered more than once", n)
	}
}

func TestWorkerLeavesFailedEntryPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedEvents(t, store, "orders", "order.created", "order.created", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	sink := &captureSink{}
	col := &collector{}
	w := NewWorker(coord, "c1", WorkerConfig{ClaimBlock: 50 * time.Millisecond, Audit: sink}, nil)
	w.Register("order.created", HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		var body struct {
			N int `json:"n"`
		}
		if err := json.Unmarshal(env.Payload, &body); err != nil {
			return err
		}
		if body.N == 1 {
			return fmt.Errorf("downstream rejected order")
		}
		return col.Handle(ctx, env)
	}))
	require.NoError(t, w.Start(ctx))

	require.Eventually(t, func() bool {
		return col.count() == 2 && pendingCount(coord) == 1
	}, 3*time.Second, 10*time.Millisecond)
	w.Stop()

	pend, err := coord.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pend, 1)
	assert.Equal(t, ids[1], pend[0].ID, "only the failed entry stays pending")
	assert.Equal(t, "c1", pend[0].Consumer)
	assert.Equal(t, 1, pend[0].DeliveryCount, "nothing redelivers on its own")
	require.NotEmpty(t, sink.errs)
	assert.Contains(t, sink.errs[0], "downstream rejected")

	// A second worker picks the entry up through an explicit reclaim.
	col2 := &collector{}
	w2 := NewWorker(coord, "c2", WorkerConfig{}, nil)
	w2.Register("order.created", col2)

	time.Sleep(5 * time.Millisecond)
	reclaimed, err := coord.ReclaimStale(ctx, "c2", time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	w2.Process(ctx, reclaimed)

	assert.Equal(t, []int{1}, col2.seedIndexes())
	assert.Equal(t, 0, pendingCount(coord))
}

func TestWorkerAcksUnknownAndMalformed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedEvents(t, store, "orders", "order.created", "order.mystery")
	// An entry that is not an event envelope at all.
	_, err := store.Append(ctx, "orders", logstore.Fields{{K: "raw", V: "data"}})
	require.NoError(t, err)

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	sink := &captureSink{}
	col := &collector{}
	w := NewWorker(coord, "c1", WorkerConfig{ClaimBlock: 50 * time.Millisecond, Audit: sink}, nil)
	w.Register("order.created", col)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return pendingCount(coord) == 0 && len(sink.withOutcome(OutcomeIgnored)) == 2
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, col.count(), "only the registered type runs a handler")

	ignored := sink.withOutcome(OutcomeIgnored)
	typesSeen := map[string]bool{}
	for _, r := range ignored {
		typesSeen[r.Type] = true
	}
	assert.True(t, typesSeen["order.mystery"], "unregistered type recorded as ignored")
	assert.True(t, typesSeen[""], "malformed envelope recorded as ignored")
}

// claimFlaker fails the first few claims to exercise the retry loop.
type claimFlaker struct {
	logstore.Store
	mu       sync.Mutex
	failures int
}

func (f *claimFlaker) GroupClaim(ctx context.Context, log, group, consumer string, count int, block time.Duration) ([]logstore.Entry, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, logstore.ErrUnavailable
	}
	f.mu.Unlock()
	return f.Store.GroupClaim(ctx, log, group, consumer, count, block)
}

func TestWorkerRetriesStoreErrors(t *testing.T) {
	base := newTestStore(t)
	ctx := context.Background()
	seedEvents(t, base, "orders", "order.created")

	coord := NewCoordinator(&claimFlaker{Store: base, failures: 2}, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	col := &collector{}
	w := NewWorker(coord, "c1", WorkerConfig{
		ClaimBlock: 50 * time.Millisecond,
		RetryMin:   5 * time.Millisecond,
		RetryMax:   20 * time.Millisecond,
	}, nil)
	w.Register("order.created", col)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return col.count() == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWorkerStopIsBounded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvents(t, store, "orders", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartNew))

	w := NewWorker(coord, "c1", WorkerConfig{ClaimBlock: 10 * time.Second}, nil)
	require.NoError(t, w.Start(ctx))
	time.Sleep(50 * time.Millisecond) // let it park in a blocked claim

	t0 := time.Now()
	w.Stop()
	assert.Less(t, time.Since(t0), 2*time.Second, "stop must interrupt a blocked claim")
	assert.Equal(t, StateStopped, w.State())

	require.Error(t, w.Start(ctx), "stopped is terminal")
}

func TestWorkerStopBeforeStart(t *testing.T) {
	store := newTestStore(t)
	coord := NewCoordinator(store, "orders", "billing", nil)
	w := NewWorker(coord, "c1", WorkerConfig{}, nil)
	w.Stop()
	w.Stop()
	assert.Equal(t, StateStopped, w.State())
	require.Error(t, w.Start(context.Background()))
}
