package service

import (
	"context"
	"time"

	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// CreateGroup registers a consumer group on the log at the given start
// position. The log is created first when auto-create is enabled, so a
// group can be registered before the first append.
func (s *Service) CreateGroup(ctx context.Context, log, group, start string) error {
	ls, err := s.logSetForWrite(log)
	if err != nil {
		return err
	}
	if err := ls.Groups.Create(ctx, group, start); err != nil {
		return err
	}
	s.logger.With(
		logpkg.Str("log", log),
		logpkg.Str("group", group),
		logpkg.Str("start", start),
	).Debug("logstore.create_group")
	return nil
}

// GroupClaim delivers up to count entries after the group cursor to
// consumer. When the log is exhausted it waits up to block for appends.
func (s *Service) GroupClaim(ctx context.Context, log, group, consumer string, count int, block time.Duration) ([]logstore.Entry, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	items, err := ls.Groups.Claim(ctx, group, consumer, count)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 && block > 0 {
		deadline := time.Now().Add(block)
		for len(items) == 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 || ctx.Err() != nil {
				return nil, nil
			}
			ls.Log.WaitForAppend(ctx, remaining)
			items, err = ls.Groups.Claim(ctx, group, consumer, count)
			if err != nil {
				return nil, err
			}
		}
	}
	if len(items) > 0 {
		s.logger.With(
			logpkg.Str("log", log),
			logpkg.Str("group", group),
			logpkg.Str("consumer", consumer),
			logpkg.Int("entries", len(items)),
		).Debug("logstore.claim")
	}
	return entriesFromItems(log, items), nil
}

// Ack removes an entry from the group's pending list. Unknown IDs are a
// no-op.
func (s *Service) Ack(ctx context.Context, log, group string, entryID id.ID) (int, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return 0, err
	}
	return ls.Groups.Ack(ctx, group, entryID)
}

// Reclaim reassigns pending entries idle for at least minIdle to consumer.
func (s *Service) Reclaim(ctx context.Context, log, group, consumer string, minIdle time.Duration, count int) ([]logstore.Entry, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	items, err := ls.Groups.Reclaim(ctx, group, consumer, minIdle, count)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.logger.With(
			logpkg.Str("log", log),
			logpkg.Str("group", group),
			logpkg.Str("consumer", consumer),
			logpkg.Int("entries", len(items)),
		).Info("logstore.reclaim")
	}
	return entriesFromItems(log, items), nil
}

// Pending lists up to count pending entries of the group in ascending ID
// order.
func (s *Service) Pending(ctx context.Context, log, group string, count int) ([]logstore.PendingInfo, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	return ls.Groups.Pending(ctx, group, count)
}
