package audit

import (
	"context"

	"github.com/rzbill/evpipe/pkg/consumer"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
)

// LogSink records audit events as structured log lines. Nothing survives a
// restart; use PostgresSink when the records matter.
type LogSink struct {
	logger logpkg.Logger
}

var _ consumer.AuditSink = (*LogSink)(nil)

// NewLogSink returns a sink logging through logger. A nil logger gets a
// default one.
func NewLogSink(logger logpkg.Logger) *LogSink {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &LogSink{logger: logger.With(logpkg.Component("audit"))}
}

func (s *LogSink) RecordProcessed(_ context.Context, entryID id.ID, eventType string, payload []byte, outcome string) error {
	s.logger.Info("audit.processed",
		logpkg.Str("id", entryID.String()),
		logpkg.Str("type", eventType),
		logpkg.Int("payload_bytes", len(payload)),
		logpkg.Str("outcome", outcome),
	)
	return nil
}

func (s *LogSink) RecordError(_ context.Context, entryID id.ID, message string) error {
	s.logger.Warn("audit.handler_error",
		logpkg.Str("id", entryID.String()),
		logpkg.Str("error", message),
	)
	return nil
}

// NopSink discards every record. It exists so "no audit" is an explicit
// wiring choice rather than a nil check at every call site.
type NopSink struct{}

var _ consumer.AuditSink = NopSink{}

func (NopSink) RecordProcessed(context.Context, id.ID, string, []byte, string) error { return nil }

func (NopSink) RecordError(context.Context, id.ID, string) error { return nil }
