package groups

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/evpipe/internal/eventlog"
	"github.com/rzbill/evpipe/pkg/id"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Claim delivers up to count entries strictly after the group cursor to
// consumer, in ascending ID order. Each claimed entry is marked pending with
// deliveryCount=1 and the cursor advances past it, all in one batch. An
// empty result means the log is exhausted; blocking is the caller's loop.
func (m *Manager) Claim(ctx context.Context, group, consumer string, count int) ([]eventlog.Item, error) {
	if err := validateName("consumer", consumer); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}

	lock := m.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	cursor, err := m.Cursor(group)
	if err != nil {
		return nil, err
	}

	items, _, err := m.log.Read(eventlog.ReadOptions{Start: cursor.Succ(), Limit: count})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	now := nowMs()
	b := m.db.NewBatch()
	defer b.Close()
	for _, it := range items {
		rec := encodePEL(pelRecord{Consumer: consumer, Deliveries: 1, LastMs: now})
		if err := b.Set(PendingKey(m.log.Name(), group, it.ID), rec, nil); err != nil {
			return nil, err
		}
	}
	last := items[len(items)-1].ID
	if err := b.Set(CursorKey(m.log.Name(), group), last.Bytes(), nil); err != nil {
		return nil, err
	}
	stats := m.stats(group)
	stats.Delivered += uint64(len(items))
	if err := b.Set(StatsKey(m.log.Name(), group), encodeStats(stats), nil); err != nil {
		return nil, err
	}
	if err := m.touchConsumer(b, group, consumer, now); err != nil {
		return nil, err
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return items, nil
}

// Ack removes an entry from the group's pending list and counts it as
// acknowledged. Acking an entry that is not pending is a no-op returning 0,
// so redeliveries and duplicate acks are safe.
func (m *Manager) Ack(ctx context.Context, group string, eid id.ID) (int, error) {
	lock := m.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	if !m.exists(group) {
		return 0, logstore.ErrNoGroup
	}

	key := PendingKey(m.log.Name(), group, eid)
	if _, err := m.db.Get(key); err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	b := m.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return 0, err
	}
	stats := m.stats(group)
	stats.Acked++
	if err := b.Set(StatsKey(m.log.Name(), group), encodeStats(stats), nil); err != nil {
		return 0, err
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return 0, err
	}
	return 1, nil
}

// Reclaim reassigns up to count pending entries idle for at least minIdle
// to consumer, incrementing each entry's delivery count and refreshing its
// delivery time. Pending records whose entries were trimmed from the log
// are dropped instead of redelivered.
func (m *Manager) Reclaim(ctx context.Context, group, consumer string, minIdle time.Duration, count int) ([]eventlog.Item, error) {
	if err := validateName("consumer", consumer); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}

	lock := m.lockFor(group)
	lock.Lock()
	defer lock.Unlock()

	if !m.exists(group) {
		return nil, logstore.ErrNoGroup
	}

	lower, upper := keyRange(PendingPrefix(m.log.Name(), group))
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	now := nowMs()
	minIdleMs := minIdle.Milliseconds()

	b := m.db.NewBatch()
	defer b.Close()
	var reclaimed []eventlog.Item
	dirty := false
	for ok := iter.First(); ok && len(reclaimed) < count; ok = iter.Next() {
		eid, okID := entryIDFromPendingKey(iter.Key())
		if !okID {
			continue
		}
		rec, okRec := decodePEL(iter.Value())
		if !okRec {
			continue
		}
		if now-rec.LastMs < minIdleMs {
			continue
		}

		entries, _, err := m.log.Read(eventlog.ReadOptions{Start: eid, Limit: 1})
		if err != nil {
			// A failed read says nothing about the entry; keep its pending
			// record so it stays reclaimable.
			return nil, err
		}
		if len(entries) == 0 || entries[0].ID != eid {
			// Affirmatively absent: trimmed away; retire the dangling record.
			if err := b.Delete(iter.Key(), nil); err != nil {
				return nil, err
			}
			dirty = true
			continue
		}

		rec.Consumer = consumer
		rec.Deliveries++
		rec.LastMs = now
		if err := b.Set(iter.Key(), encodePEL(rec), nil); err != nil {
			return nil, err
		}
		dirty = true
		reclaimed = append(reclaimed, entries[0])
	}

	if !dirty {
		return nil, nil
	}
	if len(reclaimed) > 0 {
		if err := m.touchConsumer(b, group, consumer, now); err != nil {
			return nil, err
		}
	}
	if err := m.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	return reclaimed, nil
}

// touchConsumer upserts the consumer activity record into the batch.
func (m *Manager) touchConsumer(b *pebble.Batch, group, consumer string, now int64) error {
	key := ConsumerKey(m.log.Name(), group, consumer)
	rec := consumerRecord{FirstSeenMs: now, LastSeenMs: now}
	if existing, err := m.db.Get(key); err == nil {
		if prev, ok := decodeConsumer(existing); ok {
			rec.FirstSeenMs = prev.FirstSeenMs
		}
	}
	return b.Set(key, encodeConsumer(rec), nil)
}
