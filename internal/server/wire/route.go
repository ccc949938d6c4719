package wireserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/evpipe/internal/eventlog"
	"github.com/rzbill/evpipe/internal/metrics"
	"github.com/rzbill/evpipe/internal/wire"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// badRequest marks malformed frames so they map to CodeBadRequest instead
// of CodeInternal.
type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func (s *Server) readRequest(r *bufio.Reader) (byte, []byte, error) {
	return wire.ReadFrame(r)
}

// respond routes one request and writes exactly one response frame.
func (s *Server) respond(ctx context.Context, w *bufio.Writer, op byte, body []byte) error {
	t0 := time.Now()
	resp, err := s.route(ctx, op, body)
	metrics.ObserveWireOp(wire.OpName(op), time.Since(t0), err != nil)
	if err != nil {
		code := wire.CodeForError(err)
		var br badRequest
		if errors.As(err, &br) {
			code = wire.CodeBadRequest
		}
		eb, _ := json.Marshal(wire.ErrorBody{Code: code, Message: err.Error()})
		if werr := wire.WriteFrame(w, wire.FrameError, eb); werr != nil {
			return werr
		}
		return w.Flush()
	}
	if werr := wire.WriteFrame(w, wire.FrameResponse, resp); werr != nil {
		return werr
	}
	return w.Flush()
}

func decode[T any](body []byte) (T, error) {
	var req T
	if err := json.Unmarshal(body, &req); err != nil {
		return req, badRequest{err}
	}
	return req, nil
}

func (s *Server) route(ctx context.Context, op byte, body []byte) ([]byte, error) {
	switch op {
	case wire.OpAppend:
		req, err := decode[wire.AppendRequest](body)
		if err != nil {
			return nil, err
		}
		if !req.IDHint.IsZero() {
			if err := s.svc.AppendWithID(ctx, req.Log, req.IDHint, req.Fields); err != nil {
				if errors.Is(err, eventlog.ErrPastID) {
					return nil, badRequest{err}
				}
				return nil, err
			}
			return json.Marshal(wire.AppendResponse{ID: req.IDHint})
		}
		eid, err := s.svc.Append(ctx, req.Log, req.Fields)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.AppendResponse{ID: eid})

	case wire.OpRead:
		req, err := decode[wire.ReadRequest](body)
		if err != nil {
			return nil, err
		}
		var entries []logstore.Entry
		if req.BlockMs > 0 {
			entries, err = s.svc.BlockingRead(ctx, req.Log, req.From, req.Count, time.Duration(req.BlockMs)*time.Millisecond)
		} else {
			entries, err = s.svc.Read(ctx, req.Log, req.From, req.Count)
		}
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.EntriesResponse{Entries: entries})

	case wire.OpCreateGroup:
		req, err := decode[wire.CreateGroupRequest](body)
		if err != nil {
			return nil, err
		}
		if err := s.svc.CreateGroup(ctx, req.Log, req.Group, req.Start); err != nil {
			return nil, err
		}
		return nil, nil

	case wire.OpClaim:
		req, err := decode[wire.ClaimRequest](body)
		if err != nil {
			return nil, err
		}
		entries, err := s.svc.GroupClaim(ctx, req.Log, req.Group, req.Consumer, req.Count, time.Duration(req.BlockMs)*time.Millisecond)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.EntriesResponse{Entries: entries})

	case wire.OpAck:
		req, err := decode[wire.AckRequest](body)
		if err != nil {
			return nil, err
		}
		n, err := s.svc.Ack(ctx, req.Log, req.Group, req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.AckResponse{Acked: n})

	case wire.OpReclaim:
		req, err := decode[wire.ReclaimRequest](body)
		if err != nil {
			return nil, err
		}
		entries, err := s.svc.Reclaim(ctx, req.Log, req.Group, req.Consumer, time.Duration(req.MinIdleMs)*time.Millisecond, req.Count)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.EntriesResponse{Entries: entries})

	case wire.OpPending:
		req, err := decode[wire.PendingRequest](body)
		if err != nil {
			return nil, err
		}
		pend, err := s.svc.Pending(ctx, req.Log, req.Group, req.Count)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.PendingResponse{Pending: pend})

	case wire.OpStats:
		req, err := decode[wire.StatsRequest](body)
		if err != nil {
			return nil, err
		}
		st, err := s.svc.Stats(ctx, req.Log)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.StatsResponse{Stats: *st})

	case wire.OpLogs:
		names, err := s.svc.Logs(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.LogsResponse{Logs: names})

	case wire.OpTrim:
		req, err := decode[wire.TrimRequest](body)
		if err != nil {
			return nil, err
		}
		n, err := s.svc.TrimBefore(ctx, req.Log, req.Before)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wire.TrimResponse{Deleted: n})

	case wire.OpFlush:
		req, err := decode[wire.FlushRequest](body)
		if err != nil {
			return nil, err
		}
		if err := s.svc.Flush(ctx, req.Log); err != nil {
			return nil, err
		}
		return nil, nil

	default:
		return nil, badRequest{fmt.Errorf("unknown opcode %d", op)}
	}
}
