package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/evpipe/internal/eventlog"
	"github.com/rzbill/evpipe/internal/runtime"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Service is the embedded log store: logstore.Store and logstore.Admin
// implemented directly over the runtime's pebble-backed logs and groups.
// Both servers (wire and HTTP) sit on top of it, and tests use it without
// any transport.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

var (
	_ logstore.Store = (*Service)(nil)
	_ logstore.Admin = (*Service)(nil)
)

// New returns a Service using a default logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, nil)
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("logstore"))
	}
	return &Service{rt: rt, logger: logger}
}

// CheckHealth reports whether the underlying store is usable.
func (s *Service) CheckHealth(ctx context.Context) error {
	return s.rt.CheckHealth(ctx)
}

// Logs returns the names of every registered log in ascending order.
func (s *Service) Logs(ctx context.Context) ([]string, error) {
	return s.rt.ListLogs()
}

// logSet resolves a log for read-side operations: the log must exist.
func (s *Service) logSet(log string) (*runtime.LogSet, error) {
	if log == "" {
		return nil, fmt.Errorf("log required")
	}
	return s.rt.GetLog(log)
}

// logSetForWrite resolves a log for append-side operations, creating it
// when auto-create is enabled.
func (s *Service) logSetForWrite(log string) (*runtime.LogSet, error) {
	if log == "" {
		return nil, fmt.Errorf("log required")
	}
	if s.rt.Config().AllowAutoCreateLogs {
		return s.rt.EnsureLog(log)
	}
	return s.rt.GetLog(log)
}

func (s *Service) validateFields(fields logstore.Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("at least one field required")
	}
	lim := s.rt.Config().Limits
	if lim.MaxFieldsPerEntry > 0 && len(fields) > lim.MaxFieldsPerEntry {
		return fmt.Errorf("too many fields: %d > %d", len(fields), lim.MaxFieldsPerEntry)
	}
	for _, f := range fields {
		if f.K == "" {
			return fmt.Errorf("field key required")
		}
		if lim.MaxKeyBytes > 0 && len(f.K) > lim.MaxKeyBytes {
			return fmt.Errorf("field key too large: %d > %d bytes", len(f.K), lim.MaxKeyBytes)
		}
		if lim.MaxValueBytes > 0 && len(f.V) > lim.MaxValueBytes {
			return fmt.Errorf("field %q value too large: %d > %d bytes", f.K, len(f.V), lim.MaxValueBytes)
		}
	}
	return nil
}

// Append adds an entry to the log and returns its assigned ID.
func (s *Service) Append(ctx context.Context, log string, fields logstore.Fields) (id.ID, error) {
	t0 := time.Now()
	if err := s.validateFields(fields); err != nil {
		return id.ID{}, err
	}
	ls, err := s.logSetForWrite(log)
	if err != nil {
		return id.ID{}, err
	}
	eid, err := ls.Log.Append(ctx, fields)
	if err != nil {
		return id.ID{}, err
	}
	s.logger.With(
		logpkg.Str("log", log),
		logpkg.Str("id", eid.String()),
		logpkg.Int("fields", len(fields)),
		logpkg.Int64("dur_ms", time.Since(t0).Milliseconds()),
	).Debug("logstore.append")
	return eid, nil
}

// AppendWithID adds an entry with a caller-chosen ID. The ID must be
// strictly greater than every existing ID of the log; IDs assigned later
// continue after it.
func (s *Service) AppendWithID(ctx context.Context, log string, eid id.ID, fields logstore.Fields) error {
	if err := s.validateFields(fields); err != nil {
		return err
	}
	ls, err := s.logSetForWrite(log)
	if err != nil {
		return err
	}
	return ls.Log.AppendWithID(ctx, eid, fields)
}

// Read returns up to count entries with ID >= from in ascending order.
func (s *Service) Read(ctx context.Context, log string, from id.ID, count int) ([]logstore.Entry, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	items, _, err := ls.Log.Read(eventlog.ReadOptions{Start: from, Limit: count})
	if err != nil {
		return nil, err
	}
	return entriesFromItems(log, items), nil
}

// BlockingRead behaves like Read but waits up to block for new entries when
// nothing is available yet.
func (s *Service) BlockingRead(ctx context.Context, log string, from id.ID, count int, block time.Duration) ([]logstore.Entry, error) {
	ls, err := s.logSet(log)
	if err != nil {
		return nil, err
	}
	items, _, err := ls.Log.Read(eventlog.ReadOptions{Start: from, Limit: count})
	if err != nil {
		return nil, err
	}
	if len(items) > 0 || block <= 0 {
		return entriesFromItems(log, items), nil
	}
	deadline := time.Now().Add(block)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || ctx.Err() != nil {
			return nil, nil
		}
		ls.Log.WaitForAppend(ctx, remaining)
		items, _, err = ls.Log.Read(eventlog.ReadOptions{Start: from, Limit: count})
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return entriesFromItems(log, items), nil
		}
	}
}

func entriesFromItems(log string, items []eventlog.Item) []logstore.Entry {
	if len(items) == 0 {
		return nil
	}
	out := make([]logstore.Entry, len(items))
	for i, it := range items {
		out[i] = logstore.Entry{Log: log, ID: it.ID, Fields: it.Fields}
	}
	return out
}
