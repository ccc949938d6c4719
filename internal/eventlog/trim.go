package eventlog

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/evpipe/pkg/id"
)

// TrimBefore deletes entries with ID < before. Deletes are committed in
// batches of up to batchLimit keys with an optional throttle between
// commits, so large trims do not starve appends. Returns the number of
// deleted entries.
func (l *Log) TrimBefore(ctx context.Context, before id.ID, batchLimit int, throttle time.Duration) (int, error) {
	if batchLimit <= 0 {
		batchLimit = 1024
	}

	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: KeyEntryPrefix(l.name),
		UpperBound: KeyLogEntry(l.name, before),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	deleted := 0
	var first, last id.ID
	for ok := iter.First(); ok; {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		b := l.db.NewBatch()
		n := 0
		var batchFirst, batchLast id.ID
		for ok && n < batchLimit {
			eid, okID := EntryIDFromKey(iter.Key())
			if okID {
				if err := b.Delete(iter.Key(), nil); err != nil {
					b.Close()
					return deleted, err
				}
				if n == 0 {
					batchFirst = eid
				}
				batchLast = eid
				n++
			}
			ok = iter.Next()
		}
		if n == 0 {
			b.Close()
			continue
		}

		l.mu.Lock()
		newLen := l.length - int64(n)
		if newLen < 0 {
			newLen = 0
		}
		if err := b.Set(KeyLogMeta(l.name), encodeMeta(l.lastID, newLen), nil); err != nil {
			l.mu.Unlock()
			b.Close()
			return deleted, err
		}
		if err := l.db.CommitBatch(ctx, b); err != nil {
			l.mu.Unlock()
			b.Close()
			return deleted, err
		}
		l.length = newLen
		l.mu.Unlock()
		b.Close()

		if deleted == 0 {
			first = batchFirst
		}
		last = batchLast
		deleted += n
		if throttle > 0 {
			time.Sleep(throttle)
		}
	}
	if deleted > 0 {
		l.archiver.EmitTrimRange(l.name, first, last, deleted)
	}
	return deleted, nil
}

// TrimOlderThan deletes entries whose ID timestamp is older than the given
// age. The ID's ms half is the append time, so no record decoding is needed.
func (l *Log) TrimOlderThan(ctx context.Context, age time.Duration, batchLimit int, throttle time.Duration) (int, error) {
	cutoff := id.NowMs() - age.Milliseconds()
	if cutoff <= 0 {
		return 0, nil
	}
	return l.TrimBefore(ctx, id.Make(cutoff, 0), batchLimit, throttle)
}

// Flush deletes every entry of the log in one range tombstone and resets the
// length. The last assigned ID is preserved so later appends continue the
// monotonic sequence.
func (l *Log) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	first, okFirst, err := l.FirstID()
	if err != nil {
		return err
	}

	b := l.db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(KeyEntryPrefix(l.name), KeyEntryUpperBound(l.name), nil); err != nil {
		return err
	}
	if err := b.Set(KeyLogMeta(l.name), encodeMeta(l.lastID, 0), nil); err != nil {
		return err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return err
	}
	deleted := int(l.length)
	l.length = 0
	if okFirst && deleted > 0 {
		l.archiver.EmitTrimRange(l.name, first, l.lastID, deleted)
	}
	return nil
}
