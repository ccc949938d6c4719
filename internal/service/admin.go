package service

import (
	"context"

	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
)

// trimBatchLimit bounds how many entries one trim batch deletes.
const trimBatchLimit = 2048

// TrimBefore deletes entries with ID < before and returns how many were
// removed.
func (s *Service) TrimBefore(ctx context.Context, log string, before id.ID) (int, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return 0, err
	}
	n, err := ls.Log.TrimBefore(ctx, before, trimBatchLimit, 0)
	if n > 0 {
		s.logger.With(
			logpkg.Str("log", log),
			logpkg.Str("before", before.String()),
			logpkg.Int("deleted", n),
		).Info("logstore.trim")
	}
	return n, err
}

// Flush deletes every entry of the log. Group registrations survive with
// their cursors intact.
func (s *Service) Flush(ctx context.Context, log string) error {
	ls, err := s.logSet(log)
	if err != nil {
		return err
	}
	if err := ls.Log.Flush(ctx); err != nil {
		return err
	}
	s.logger.With(logpkg.Str("log", log)).Info("logstore.flush")
	return nil
}
