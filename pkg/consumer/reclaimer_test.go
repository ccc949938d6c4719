package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/evpipe/pkg/logstore"
)

func TestReclaimerSweepDeliversStaleEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ids := seedEvents(t, store, "orders", "order.created", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	// c1 claims and then goes silent.
	claimed, err := coord.ClaimNext(ctx, "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	time.Sleep(5 * time.Millisecond)

	var mu sync.Mutex
	var delivered []logstore.Entry
	rec := NewReclaimer(coord, "c2", ReclaimerConfig{
		MinIdle: time.Millisecond,
		Deliver: func(_ context.Context, entries []logstore.Entry) {
			mu.Lock()
			defer mu.Unlock()
			delivered = append(delivered, entries...)
		},
	}, nil)

	got, err := rec.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[0], got[0].ID)

	mu.Lock()
	assert.Len(t, delivered, 2)
	mu.Unlock()

	pend, err := coord.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pend, 2)
	for _, p := range pend {
		assert.Equal(t, "c2", p.Consumer)
	}
}

func TestReclaimerSweepEmptyWhenNothingStale(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvents(t, store, "orders", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	rec := NewReclaimer(coord, "c2", ReclaimerConfig{MinIdle: time.Millisecond}, nil)
	got, err := rec.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "unclaimed entries are not pending, nothing to reclaim")
}

func TestReclaimerPeriodicSweepFeedsWorker(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedEvents(t, store, "orders", "order.created")

	coord := NewCoordinator(store, "orders", "billing", nil)
	require.NoError(t, coord.EnsureGroup(ctx, logstore.StartBegin))

	// Simulate a consumer that claimed and died before acking.
	claimed, err := coord.ClaimNext(ctx, "dead", 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	col := &collector{}
	w := NewWorker(coord, "c2", WorkerConfig{}, nil)
	w.Register("order.created", col)

	rec := NewReclaimer(coord, "c2", ReclaimerConfig{
		Interval: 20 * time.Millisecond,
		MinIdle:  time.Millisecond,
		Deliver:  w.Process,
	}, nil)
	rec.Start()

	require.Eventually(t, func() bool {
		return col.count() == 1 && pendingCount(coord) == 0
	}, 3*time.Second, 10*time.Millisecond)

	t0 := time.Now()
	rec.Stop()
	rec.Stop()
	assert.Less(t, time.Since(t0), 2*time.Second)
}
