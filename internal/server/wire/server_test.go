package wireserver

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	"github.com/rzbill/evpipe/internal/runtime"
	"github.com/rzbill/evpipe/internal/service"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	"github.com/rzbill/evpipe/internal/wire"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	rt, err := runtime.Open(runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	srv := New(service.New(rt), nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		<-done
	})
	return srv
}

type testConn struct {
	t *testing.T
	c net.Conn
	r *bufio.Reader
}

func dialServer(t *testing.T, srv *Server) *testConn {
	t.Helper()
	c, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return &testConn{t: t, c: c, r: bufio.NewReader(c)}
}

// roundTrip sends one request frame and decodes the response into out.
// It returns the error body for FrameError responses.
func (tc *testConn) roundTrip(op byte, req, out any) *wire.ErrorBody {
	tc.t.Helper()
	var body []byte
	if req != nil {
		var err error
		body, err = json.Marshal(req)
		require.NoError(tc.t, err)
	}
	require.NoError(tc.t, wire.WriteFrame(tc.c, op, body))

	typ, respBody, err := wire.ReadFrame(tc.r)
	require.NoError(tc.t, err)
	if typ == wire.FrameError {
		var eb wire.ErrorBody
		require.NoError(tc.t, json.Unmarshal(respBody, &eb))
		return &eb
	}
	require.Equal(tc.t, wire.FrameResponse, typ)
	if out != nil && len(respBody) > 0 {
		require.NoError(tc.t, json.Unmarshal(respBody, out))
	}
	return nil
}

func TestAppendReadOverWire(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	var ar wire.AppendResponse
	eb := tc.roundTrip(wire.OpAppend, wire.AppendRequest{
		Log:    "orders",
		Fields: logstore.Fields{{K: "type", V: "created"}, {K: "n", V: "0"}},
	}, &ar)
	require.Nil(t, eb)
	assert.False(t, ar.ID.IsZero())

	var er wire.EntriesResponse
	eb = tc.roundTrip(wire.OpRead, wire.ReadRequest{Log: "orders", From: id.Zero, Count: 10}, &er)
	require.Nil(t, eb)
	require.Len(t, er.Entries, 1)
	assert.Equal(t, ar.ID, er.Entries[0].ID)
	v, ok := er.Entries[0].Fields.Get("type")
	assert.True(t, ok)
	assert.Equal(t, "created", v)
}

func TestAppendWithIDHint(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	hint := id.Make(5000, 1)
	var ar wire.AppendResponse
	eb := tc.roundTrip(wire.OpAppend, wire.AppendRequest{
		Log:    "orders",
		IDHint: hint,
		Fields: logstore.Fields{{K: "type", V: "imported"}},
	}, &ar)
	require.Nil(t, eb)
	assert.Equal(t, hint, ar.ID)

	// A hint at or before the last ID is rejected.
	eb = tc.roundTrip(wire.OpAppend, wire.AppendRequest{
		Log:    "orders",
		IDHint: hint,
		Fields: logstore.Fields{{K: "type", V: "imported"}},
	}, nil)
	require.NotNil(t, eb)
	assert.Equal(t, wire.CodeBadRequest, eb.Code)

	// Auto-assigned IDs continue after the hint.
	eb = tc.roundTrip(wire.OpAppend, wire.AppendRequest{
		Log:    "orders",
		Fields: logstore.Fields{{K: "type", V: "created"}},
	}, &ar)
	require.Nil(t, eb)
	assert.Equal(t, 1, ar.ID.Compare(hint))
}

func TestErrorCodesOverWire(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	eb := tc.roundTrip(wire.OpRead, wire.ReadRequest{Log: "missing", From: id.Zero, Count: 1}, nil)
	require.NotNil(t, eb)
	assert.Equal(t, wire.CodeNoLog, eb.Code)

	var ar wire.AppendResponse
	require.Nil(t, tc.roundTrip(wire.OpAppend, wire.AppendRequest{Log: "orders", Fields: logstore.Fields{{K: "a", V: "b"}}}, &ar))

	eb = tc.roundTrip(wire.OpClaim, wire.ClaimRequest{Log: "orders", Group: "nope", Consumer: "c1", Count: 1}, nil)
	require.NotNil(t, eb)
	assert.Equal(t, wire.CodeNoGroup, eb.Code)

	require.Nil(t, tc.roundTrip(wire.OpCreateGroup, wire.CreateGroupRequest{Log: "orders", Group: "g", Start: logstore.StartBegin}, nil))
	eb = tc.roundTrip(wire.OpCreateGroup, wire.CreateGroupRequest{Log: "orders", Group: "g", Start: logstore.StartBegin}, nil)
	require.NotNil(t, eb)
	assert.Equal(t, wire.CodeGroupExists, eb.Code)

	eb = tc.roundTrip(wire.OpCreateGroup, wire.CreateGroupRequest{Log: "orders", Group: "h", Start: "garbage"}, nil)
	require.NotNil(t, eb)
	assert.Equal(t, wire.CodeBadStart, eb.Code)
}

func TestBadFrameGetsBadRequest(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	require.NoError(t, wire.WriteFrame(tc.c, wire.OpAppend, []byte("{not json")))
	typ, body, err := wire.ReadFrame(tc.r)
	require.NoError(t, err)
	require.Equal(t, wire.FrameError, typ)
	var eb wire.ErrorBody
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, wire.CodeBadRequest, eb.Code)

	require.NoError(t, wire.WriteFrame(tc.c, 250, nil))
	typ, body, err = wire.ReadFrame(tc.r)
	require.NoError(t, err)
	require.Equal(t, wire.FrameError, typ)
	require.NoError(t, json.Unmarshal(body, &eb))
	assert.Equal(t, wire.CodeBadRequest, eb.Code)
}

func TestGroupFlowOverWire(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	ids := make([]id.ID, 0, 3)
	for i := 0; i < 3; i++ {
		var ar wire.AppendResponse
		require.Nil(t, tc.roundTrip(wire.OpAppend, wire.AppendRequest{
			Log:    "orders",
			Fields: logstore.Fields{{K: "type", V: "created"}},
		}, &ar))
		ids = append(ids, ar.ID)
	}
	require.Nil(t, tc.roundTrip(wire.OpCreateGroup, wire.CreateGroupRequest{Log: "orders", Group: "workers", Start: logstore.StartBegin}, nil))

	var er wire.EntriesResponse
	require.Nil(t, tc.roundTrip(wire.OpClaim, wire.ClaimRequest{Log: "orders", Group: "workers", Consumer: "c1", Count: 2}, &er))
	require.Len(t, er.Entries, 2)
	assert.Equal(t, ids[0], er.Entries[0].ID)
	assert.Equal(t, ids[1], er.Entries[1].ID)

	var ack wire.AckResponse
	require.Nil(t, tc.roundTrip(wire.OpAck, wire.AckRequest{Log: "orders", Group: "workers", ID: ids[0]}, &ack))
	assert.Equal(t, 1, ack.Acked)
	require.Nil(t, tc.roundTrip(wire.OpAck, wire.AckRequest{Log: "orders", Group: "workers", ID: ids[0]}, &ack))
	assert.Equal(t, 0, ack.Acked)

	var pend wire.PendingResponse
	require.Nil(t, tc.roundTrip(wire.OpPending, wire.PendingRequest{Log: "orders", Group: "workers", Count: 0}, &pend))
	require.Len(t, pend.Pending, 1)
	assert.Equal(t, ids[1], pend.Pending[0].ID)

	var recl wire.EntriesResponse
	require.Nil(t, tc.roundTrip(wire.OpReclaim, wire.ReclaimRequest{Log: "orders", Group: "workers", Consumer: "c2", MinIdleMs: 0, Count: 10}, &recl))
	require.Len(t, recl.Entries, 1)
	assert.Equal(t, ids[1], recl.Entries[0].ID)

	var st wire.StatsResponse
	require.Nil(t, tc.roundTrip(wire.OpStats, wire.StatsRequest{Log: "orders"}, &st))
	assert.Equal(t, int64(3), st.Stats.Length)
	require.Len(t, st.Stats.Groups, 1)
	assert.Equal(t, 1, st.Stats.Groups[0].Pending)

	var logs wire.LogsResponse
	require.Nil(t, tc.roundTrip(wire.OpLogs, nil, &logs))
	assert.Equal(t, []string{"orders"}, logs.Logs)
}

func TestBlockingClaimOverWire(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)
	producer := dialServer(t, srv)

	var ar wire.AppendResponse
	require.Nil(t, producer.roundTrip(wire.OpAppend, wire.AppendRequest{Log: "orders", Fields: logstore.Fields{{K: "a", V: "b"}}}, &ar))
	require.Nil(t, tc.roundTrip(wire.OpCreateGroup, wire.CreateGroupRequest{Log: "orders", Group: "workers", Start: logstore.StartNew}, nil))

	done := make(chan wire.EntriesResponse, 1)
	go func() {
		var er wire.EntriesResponse
		if eb := tc.roundTrip(wire.OpClaim, wire.ClaimRequest{
			Log: "orders", Group: "workers", Consumer: "c1", Count: 5, BlockMs: 2000,
		}, &er); eb != nil {
			t.Errorf("claim error: %+v", eb)
		}
		done <- er
	}()

	time.Sleep(30 * time.Millisecond)
	var late wire.AppendResponse
	require.Nil(t, producer.roundTrip(wire.OpAppend, wire.AppendRequest{Log: "orders", Fields: logstore.Fields{{K: "late", V: "1"}}}, &late))

	select {
	case er := <-done:
		require.Len(t, er.Entries, 1)
		assert.Equal(t, late.ID, er.Entries[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("blocking claim did not wake")
	}
}

func TestAdminOverWire(t *testing.T) {
	srv := startServer(t)
	tc := dialServer(t, srv)

	ids := make([]id.ID, 0, 3)
	for i := 0; i < 3; i++ {
		var ar wire.AppendResponse
		require.Nil(t, tc.roundTrip(wire.OpAppend, wire.AppendRequest{Log: "orders", Fields: logstore.Fields{{K: "a", V: "b"}}}, &ar))
		ids = append(ids, ar.ID)
	}

	var tr wire.TrimResponse
	require.Nil(t, tc.roundTrip(wire.OpTrim, wire.TrimRequest{Log: "orders", Before: ids[1]}, &tr))
	assert.Equal(t, 1, tr.Deleted)

	require.Nil(t, tc.roundTrip(wire.OpFlush, wire.FlushRequest{Log: "orders"}, nil))
	var st wire.StatsResponse
	require.Nil(t, tc.roundTrip(wire.OpStats, wire.StatsRequest{Log: "orders"}, &st))
	assert.Equal(t, int64(0), st.Stats.Length)
}
