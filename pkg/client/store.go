package client

import (
	"context"
	"time"

	"github.com/rzbill/evpipe/internal/wire"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Append adds an entry and returns its assigned ID.
func (c *Client) Append(ctx context.Context, log string, fields logstore.Fields) (id.ID, error) {
	var resp wire.AppendResponse
	if err := c.call(ctx, wire.OpAppend, wire.AppendRequest{Log: log, Fields: fields}, &resp, 0); err != nil {
		return id.ID{}, err
	}
	return resp.ID, nil
}

// AppendWithID adds an entry with a caller-chosen ID, which must be strictly
// greater than every existing ID of the log.
func (c *Client) AppendWithID(ctx context.Context, log string, eid id.ID, fields logstore.Fields) error {
	return c.call(ctx, wire.OpAppend, wire.AppendRequest{Log: log, IDHint: eid, Fields: fields}, nil, 0)
}

// Read returns up to count entries with ID >= from in ascending order.
func (c *Client) Read(ctx context.Context, log string, from id.ID, count int) ([]logstore.Entry, error) {
	var resp wire.EntriesResponse
	if err := c.call(ctx, wire.OpRead, wire.ReadRequest{Log: log, From: from, Count: count}, &resp, 0); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// BlockingRead behaves like Read but waits server-side up to block when
// nothing is available yet.
func (c *Client) BlockingRead(ctx context.Context, log string, from id.ID, count int, block time.Duration) ([]logstore.Entry, error) {
	var resp wire.EntriesResponse
	req := wire.ReadRequest{Log: log, From: from, Count: count, BlockMs: block.Milliseconds()}
	if err := c.call(ctx, wire.OpRead, req, &resp, block); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// CreateGroup registers a consumer group at the given start position.
func (c *Client) CreateGroup(ctx context.Context, log, group, start string) error {
	return c.call(ctx, wire.OpCreateGroup, wire.CreateGroupRequest{Log: log, Group: group, Start: start}, nil, 0)
}

// GroupClaim delivers up to count entries after the group cursor to
// consumer, waiting server-side up to block when the log is exhausted.
func (c *Client) GroupClaim(ctx context.Context, log, group, consumer string, count int, block time.Duration) ([]logstore.Entry, error) {
	var resp wire.EntriesResponse
	req := wire.ClaimRequest{Log: log, Group: group, Consumer: consumer, Count: count, BlockMs: block.Milliseconds()}
	if err := c.call(ctx, wire.OpClaim, req, &resp, block); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Ack removes an entry from the group's pending list.
func (c *Client) Ack(ctx context.Context, log, group string, entryID id.ID) (int, error) {
	var resp wire.AckResponse
	if err := c.call(ctx, wire.OpAck, wire.AckRequest{Log: log, Group: group, ID: entryID}, &resp, 0); err != nil {
		return 0, err
	}
	return resp.Acked, nil
}

// Reclaim reassigns pending entries idle for at least minIdle to consumer.
func (c *Client) Reclaim(ctx context.Context, log, group, consumer string, minIdle time.Duration, count int) ([]logstore.Entry, error) {
	var resp wire.EntriesResponse
	req := wire.ReclaimRequest{Log: log, Group: group, Consumer: consumer, MinIdleMs: minIdle.Milliseconds(), Count: count}
	if err := c.call(ctx, wire.OpReclaim, req, &resp, 0); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Pending lists up to count pending entries of the group.
func (c *Client) Pending(ctx context.Context, log, group string, count int) ([]logstore.PendingInfo, error) {
	var resp wire.PendingResponse
	if err := c.call(ctx, wire.OpPending, wire.PendingRequest{Log: log, Group: group, Count: count}, &resp, 0); err != nil {
		return nil, err
	}
	return resp.Pending, nil
}

// Stats reports the introspection snapshot of a log.
func (c *Client) Stats(ctx context.Context, log string) (*logstore.LogStats, error) {
	var resp wire.StatsResponse
	if err := c.call(ctx, wire.OpStats, wire.StatsRequest{Log: log}, &resp, 0); err != nil {
		return nil, err
	}
	return &resp.Stats, nil
}

// Logs returns the names of every registered log.
func (c *Client) Logs(ctx context.Context) ([]string, error) {
	var resp wire.LogsResponse
	if err := c.call(ctx, wire.OpLogs, nil, &resp, 0); err != nil {
		return nil, err
	}
	return resp.Logs, nil
}

// TrimBefore deletes entries with ID < before and returns how many were
// removed.
func (c *Client) TrimBefore(ctx context.Context, log string, before id.ID) (int, error) {
	var resp wire.TrimResponse
	if err := c.call(ctx, wire.OpTrim, wire.TrimRequest{Log: log, Before: before}, &resp, 0); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Flush deletes every entry of the log, keeping group registrations.
func (c *Client) Flush(ctx context.Context, log string) error {
	return c.call(ctx, wire.OpFlush, wire.FlushRequest{Log: log}, nil, 0)
}
