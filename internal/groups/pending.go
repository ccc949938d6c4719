package groups

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/evpipe/pkg/logstore"
)

// Pending lists up to count pending entries of the group in ascending ID
// order. A count of 0 lists everything.
func (m *Manager) Pending(ctx context.Context, group string, count int) ([]logstore.PendingInfo, error) {
	if !m.exists(group) {
		return nil, logstore.ErrNoGroup
	}

	lower, upper := keyRange(PendingPrefix(m.log.Name(), group))
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var infos []logstore.PendingInfo
	for ok := iter.First(); ok; ok = iter.Next() {
		if count > 0 && len(infos) >= count {
			break
		}
		eid, okID := entryIDFromPendingKey(iter.Key())
		if !okID {
			continue
		}
		rec, okRec := decodePEL(iter.Value())
		if !okRec {
			continue
		}
		infos = append(infos, logstore.PendingInfo{
			ID:             eid,
			Consumer:       rec.Consumer,
			DeliveryCount:  rec.Deliveries,
			LastDeliveryMs: rec.LastMs,
		})
	}
	return infos, nil
}

// Info reports the group's cursor, counters, pending size, and per-consumer
// breakdown.
func (m *Manager) Info(ctx context.Context, group string) (logstore.GroupInfo, error) {
	cursor, err := m.Cursor(group)
	if err != nil {
		return logstore.GroupInfo{}, err
	}
	stats := m.stats(group)

	pending, err := m.Pending(ctx, group, 0)
	if err != nil {
		return logstore.GroupInfo{}, err
	}
	perConsumer := make(map[string]int)
	for _, p := range pending {
		perConsumer[p.Consumer]++
	}

	now := nowMs()
	consumers, err := m.consumerInfos(group, perConsumer, now)
	if err != nil {
		return logstore.GroupInfo{}, err
	}

	return logstore.GroupInfo{
		Name:            group,
		LastDeliveredID: cursor,
		Pending:         len(pending),
		Delivered:       stats.Delivered,
		Acked:           stats.Acked,
		Consumers:       consumers,
	}, nil
}

func (m *Manager) consumerInfos(group string, perConsumer map[string]int, now int64) ([]logstore.ConsumerInfo, error) {
	lower, upper := keyRange(ConsumerPrefix(m.log.Name(), group))
	iter, err := m.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var infos []logstore.ConsumerInfo
	for ok := iter.First(); ok; ok = iter.Next() {
		name := consumerFromKey(iter.Key(), m.log.Name(), group)
		if name == "" {
			continue
		}
		rec, okRec := decodeConsumer(iter.Value())
		if !okRec {
			continue
		}
		infos = append(infos, logstore.ConsumerInfo{
			Name:    name,
			Pending: perConsumer[name],
			IdleMs:  now - rec.LastSeenMs,
		})
	}
	return infos, nil
}
