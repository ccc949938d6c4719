package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// ErrPastID is returned when an explicit append ID is not strictly greater
// than the log's last assigned ID.
var ErrPastID = errors.New("entry id not greater than last id")

// Log provides append-only operations for one named log.
type Log struct {
	db   *pebblestore.DB
	name string

	mu       sync.Mutex
	gen      *id.Generator
	lastID   id.ID
	length   int64
	notifyCh chan struct{}
	archiver ArchiverHook
}

// OpenLog initializes a Log and loads last ID and length from metadata
// (if any), so IDs stay strictly increasing across restarts.
func OpenLog(db *pebblestore.DB, name string) (*Log, error) {
	if name == "" {
		return nil, fmt.Errorf("log name required")
	}
	l := &Log{db: db, name: name, notifyCh: make(chan struct{}), archiver: noopArchiver{}}
	meta, err := db.Get(KeyLogMeta(name))
	if err == nil {
		last, length, ok := decodeMeta(meta)
		if !ok {
			return nil, fmt.Errorf("log %s: corrupt metadata", name)
		}
		l.lastID = last
		l.length = length
	}
	l.gen = id.NewGeneratorFrom(l.lastID)
	return l, nil
}

// Name returns the log name.
func (l *Log) Name() string { return l.name }

// SetArchiver installs the trim-range hook. Must be called before use.
func (l *Log) SetArchiver(a ArchiverHook) {
	if a != nil {
		l.archiver = a
	}
}

// Meta value: [16B last id][8B length].
func encodeMeta(last id.ID, length int64) []byte {
	out := make([]byte, 24)
	copy(out[:16], last[:])
	binary.BigEndian.PutUint64(out[16:], uint64(length))
	return out
}

func decodeMeta(b []byte) (id.ID, int64, bool) {
	if len(b) < 24 {
		return id.ID{}, 0, false
	}
	last, _ := id.FromBytes(b[:16])
	return last, int64(binary.BigEndian.Uint64(b[16:24])), true
}

// Append stores fields as a new entry and returns its assigned ID, strictly
// greater than every prior ID of this log.
func (l *Log) Append(ctx context.Context, fields logstore.Fields) (id.ID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(ctx, l.gen.Next(), fields)
}

// AppendWithID stores fields under an explicit ID, which must be strictly
// greater than the last assigned ID. Used when callers supply their own
// position, e.g. replicating from another store.
func (l *Log) AppendWithID(ctx context.Context, eid id.ID, fields logstore.Fields) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if eid.Compare(l.lastID) <= 0 {
		return fmt.Errorf("log %s: id %s: %w (last %s)", l.name, eid, ErrPastID, l.lastID)
	}
	if _, err := l.appendLocked(ctx, eid, fields); err != nil {
		return err
	}
	// Keep the generator ahead of the explicit position.
	l.gen = id.NewGeneratorFrom(eid)
	return nil
}

func (l *Log) appendLocked(ctx context.Context, eid id.ID, fields logstore.Fields) (id.ID, error) {
	b := l.db.NewBatch()
	defer b.Close()

	if err := b.Set(KeyLogEntry(l.name, eid), EncodeRecord(fields), nil); err != nil {
		return id.ID{}, err
	}
	if err := b.Set(KeyLogMeta(l.name), encodeMeta(eid, l.length+1), nil); err != nil {
		return id.ID{}, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return id.ID{}, err
	}
	l.lastID = eid
	l.length++
	// notify waiters
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return eid, nil
}

// LastID returns the most recently assigned ID (zero if the log is empty
// and was never written).
func (l *Log) LastID() id.ID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastID
}

// Length returns the number of live entries.
func (l *Log) Length() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// DiskUsage estimates the on-disk bytes of the log's entry range.
func (l *Log) DiskUsage() uint64 {
	n, err := l.db.EstimateDiskUsage(KeyEntryPrefix(l.name), KeyEntryUpperBound(l.name))
	if err != nil {
		return 0
	}
	return n
}
