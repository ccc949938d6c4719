// Package logstore defines the log store capability consumed by producers
// and consumers: an append-only, per-log-ordered event store with consumer
// group claim/ack/reclaim semantics. The embedded pebble-backed service and
// the TCP wire client are the two implementations.
package logstore

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/evpipe/pkg/id"
)

// Start positions accepted by CreateGroup.
const (
	// StartBegin delivers the whole log from its first entry.
	StartBegin = "0"
	// StartNew delivers only entries appended after group creation.
	StartNew = "new"
)

// Sentinel errors shared by every Store implementation. Wire responses carry
// stable code strings that map 1:1 onto these.
var (
	// ErrUnavailable means the store cannot be reached or cannot accept the
	// operation right now. Producers surface it; workers retry it forever.
	ErrUnavailable = errors.New("log store unavailable")
	// ErrNoLog means the named log does not exist.
	ErrNoLog = errors.New("log not found")
	// ErrNoGroup means the named consumer group does not exist on the log.
	ErrNoGroup = errors.New("consumer group not found")
	// ErrGroupExists is returned by CreateGroup when the group already
	// exists. Callers ensuring a group treat it as success.
	ErrGroupExists = errors.New("consumer group already exists")
	// ErrBadStart is returned by CreateGroup for an unrecognized start
	// position.
	ErrBadStart = errors.New("invalid group start position")
)

// Field is one ordered key/value pair of an entry.
type Field struct {
	K string `json:"k"`
	V string `json:"v"`
}

// Fields is the ordered field list of an entry. Order is preserved through
// storage and the wire, which a JSON map would not guarantee.
type Fields []Field

// Get returns the value for key and whether it was present. First match
// wins when a key repeats.
func (f Fields) Get(key string) (string, bool) {
	for _, fd := range f {
		if fd.K == key {
			return fd.V, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the field list.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	copy(out, f)
	return out
}

// Entry is one stored log entry.
type Entry struct {
	Log    string `json:"log"`
	ID     id.ID  `json:"id"`
	Fields Fields `json:"fields"`
}

// PendingInfo describes one pending (delivered, unacknowledged) entry of a
// consumer group.
type PendingInfo struct {
	ID            id.ID  `json:"id"`
	Consumer      string `json:"consumer"`
	DeliveryCount int    `json:"delivery_count"`
	// LastDeliveryMs is the wall-clock ms of the most recent delivery;
	// idle time derives from it.
	LastDeliveryMs int64 `json:"last_delivery_ms"`
}

// Idle reports how long the pending entry has been idle as of now.
func (p PendingInfo) Idle(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.LastDeliveryMs))
}

// ConsumerInfo summarizes one consumer of a group.
type ConsumerInfo struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
	IdleMs  int64  `json:"idle_ms"`
}

// GroupInfo summarizes one consumer group of a log.
type GroupInfo struct {
	Name            string         `json:"name"`
	LastDeliveredID id.ID          `json:"last_delivered_id"`
	Pending         int            `json:"pending"`
	Delivered       uint64         `json:"delivered"`
	Acked           uint64         `json:"acked"`
	Consumers       []ConsumerInfo `json:"consumers,omitempty"`
}

// LogStats is the introspection snapshot of a log.
type LogStats struct {
	Log     string      `json:"log"`
	Length  int64       `json:"length"`
	FirstID id.ID       `json:"first_id"`
	LastID  id.ID       `json:"last_id"`
	Bytes   uint64      `json:"bytes,omitempty"`
	Groups  []GroupInfo `json:"groups,omitempty"`
}

// Store is the log store capability. Logs are created implicitly on first
// append. Every method honors ctx cancellation; blocking variants return
// early with whatever is available when ctx is done.
type Store interface {
	// Append adds an entry and returns its assigned ID, strictly greater
	// than every prior ID of the log.
	Append(ctx context.Context, log string, fields Fields) (id.ID, error)

	// Read returns up to count entries with ID >= from in ascending order.
	// Pass from.Succ() to read strictly after a cursor.
	Read(ctx context.Context, log string, from id.ID, count int) ([]Entry, error)

	// BlockingRead behaves like Read but, when nothing is available, waits
	// up to block for new entries before returning an empty slice.
	BlockingRead(ctx context.Context, log string, from id.ID, count int, block time.Duration) ([]Entry, error)

	// CreateGroup registers a consumer group at the given start position
	// (StartBegin, StartNew, or an explicit "<ms>-<seq>" ID). Returns
	// ErrGroupExists if the group is already registered.
	CreateGroup(ctx context.Context, log, group, start string) error

	// GroupClaim delivers up to count entries after the group cursor to
	// consumer, marking each pending, in ascending ID order. Claims for one
	// group are serialized store-side; two concurrent calls never return
	// overlapping entries. When the log is exhausted it waits up to block.
	GroupClaim(ctx context.Context, log, group, consumer string, count int, block time.Duration) ([]Entry, error)

	// Ack removes an entry from the group's pending list. Returns how many
	// entries were removed (0 or 1); unknown IDs are a no-op, not an error.
	Ack(ctx context.Context, log, group string, entryID id.ID) (int, error)

	// Reclaim reassigns up to count pending entries idle for at least
	// minIdle to consumer, incrementing their delivery count.
	Reclaim(ctx context.Context, log, group, consumer string, minIdle time.Duration, count int) ([]Entry, error)

	// Pending lists up to count pending entries of the group in ascending
	// ID order.
	Pending(ctx context.Context, log, group string, count int) ([]PendingInfo, error)

	// Stats reports the introspection snapshot of a log.
	Stats(ctx context.Context, log string) (*LogStats, error)
}

// Admin is the maintenance surface kept separate from Store so workers and
// producers cannot reach it by accident.
type Admin interface {
	// TrimBefore deletes entries with ID < before and returns how many were
	// removed.
	TrimBefore(ctx context.Context, log string, before id.ID) (int, error)
	// Flush deletes every entry of the log. Group registrations survive
	// with their cursors intact.
	Flush(ctx context.Context, log string) error
}
