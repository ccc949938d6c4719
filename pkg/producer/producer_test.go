package producer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	"github.com/rzbill/evpipe/internal/runtime"
	"github.com/rzbill/evpipe/internal/service"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	"github.com/rzbill/evpipe/pkg/events"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

func newStore(t *testing.T) *service.Service {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return service.New(rt)
}

func TestAppendEnvelopesEvent(t *testing.T) {
	store := newStore(t)
	p := New(store, Options{})
	ctx := context.Background()

	eid, err := p.Append(ctx, "orders", "order.created", map[string]int{"n": 7})
	require.NoError(t, err)
	require.False(t, eid.IsZero())

	entries, err := store.Read(ctx, "orders", id.Zero, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	env, err := events.FromFields(entries[0].Fields)
	require.NoError(t, err)
	assert.Equal(t, "order.created", env.EventType)
	assert.JSONEq(t, `{"n":7}`, string(env.Payload))
	assert.NotZero(t, env.TimestampMs)
	assert.NotEmpty(t, env.CorrelationID)
}

func TestAppendRequiresType(t *testing.T) {
	p := New(newStore(t), Options{})
	_, err := p.Append(context.Background(), "orders", "", nil)
	require.Error(t, err)
}

func TestAppendPassesThroughRawJSON(t *testing.T) {
	store := newStore(t)
	p := New(store, Options{})
	ctx := context.Background()

	_, err := p.Append(ctx, "orders", "order.created", []byte(`{"already":"json"}`))
	require.NoError(t, err)

	entries, err := store.Read(ctx, "orders", id.Zero, 1)
	require.NoError(t, err)
	env, err := events.FromFields(entries[0].Fields)
	require.NoError(t, err)
	assert.Equal(t, `{"already":"json"}`, string(env.Payload))
}

// flakyStore fails appends to one log and delegates the rest.
type flakyStore struct {
	logstore.Store
	failLog string
}

func (f *flakyStore) Append(ctx context.Context, log string, fields logstore.Fields) (id.ID, error) {
	if log == f.failLog {
		return id.ID{}, logstore.ErrUnavailable
	}
	return f.Store.Append(ctx, log, fields)
}

func TestAppendBatchPartialFailure(t *testing.T) {
	store := &flakyStore{Store: newStore(t), failLog: "broken"}
	p := New(store, Options{Concurrency: 2})

	results := p.AppendBatch(context.Background(), []Event{
		{Log: "orders", EventType: "a", Payload: nil},
		{Log: "broken", EventType: "b", Payload: nil},
		{Log: "orders", EventType: "c", Payload: nil},
	})
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, logstore.ErrUnavailable)
	assert.NoError(t, results[2].Err)
	assert.False(t, results[0].ID.IsZero())
	assert.True(t, results[1].ID.IsZero())
}

func TestConcurrentBatchesNoDupNoGap(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	mkBatch := func(producer int) []Event {
		evs := make([]Event, 50)
		for i := range evs {
			evs[i] = Event{
				Log:       "orders",
				EventType: "order.created",
				Payload:   map[string]int{"producer": producer, "n": i},
			}
		}
		return evs
	}

	var wg sync.WaitGroup
	out := make([][]Result, 2)
	for pi := 0; pi < 2; pi++ {
		pi := pi
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := New(store, Options{Concurrency: 8})
			out[pi] = p.AppendBatch(ctx, mkBatch(pi))
		}()
	}
	wg.Wait()

	seen := map[id.ID]string{}
	for pi, results := range out {
		for i, r := range results {
			require.NoError(t, r.Err, "producer %d event %d", pi, i)
			key := fmt.Sprintf("%d/%d", pi, i)
			prev, dup := seen[r.ID]
			require.False(t, dup, "id %s assigned to both %s and %s", r.ID, prev, key)
			seen[r.ID] = key
		}
	}
	require.Len(t, seen, 100)

	entries, err := store.Read(ctx, "orders", id.Zero, 200)
	require.NoError(t, err)
	require.Len(t, entries, 100)
	for i := 1; i < len(entries); i++ {
		require.Equal(t, 1, entries[i].ID.Compare(entries[i-1].ID),
			"ids must be strictly increasing at %d", i)
	}

	st, err := store.Stats(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(100), st.Length)
}
