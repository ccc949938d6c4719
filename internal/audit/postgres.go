// Package audit persists per-entry processing records for consumers. The
// postgres sink is the durable option; the log sink suits development and
// the nop sink turns auditing off explicitly. All sinks are idempotent on
// entry ID because at-least-once delivery re-records entries whose ack was
// lost.
package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rzbill/evpipe/pkg/consumer"
	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
)

// auditSchema keeps one row per entry. Upserts bump times_seen so redelivery
// is visible without breaking idempotency.
const auditSchema = `
CREATE TABLE IF NOT EXISTS processed_events (
	entry_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL DEFAULT '',
	payload      TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	times_seen   INT NOT NULL DEFAULT 1
)`

const upsertProcessed = `
INSERT INTO processed_events (entry_id, event_type, payload, outcome, error)
VALUES ($1, $2, $3, $4, '')
ON CONFLICT (entry_id) DO UPDATE SET
	event_type   = EXCLUDED.event_type,
	payload      = EXCLUDED.payload,
	outcome      = EXCLUDED.outcome,
	error        = '',
	processed_at = now(),
	times_seen   = processed_events.times_seen + 1`

const upsertError = `
INSERT INTO processed_events (entry_id, outcome, error)
VALUES ($1, 'error', $2)
ON CONFLICT (entry_id) DO UPDATE SET
	outcome      = 'error',
	error        = EXCLUDED.error,
	processed_at = now(),
	times_seen   = processed_events.times_seen + 1`

// PostgresSink writes audit rows through a pgx pool.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger logpkg.Logger
}

var _ consumer.AuditSink = (*PostgresSink)(nil)

// OpenPostgres connects to dsn, verifies the connection, and ensures the
// audit table exists. A nil logger gets a default one.
func OpenPostgres(ctx context.Context, dsn string, logger logpkg.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("audit"))
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pgx connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening first postgres connection: %w", err)
	}
	s := &PostgresSink{pool: pool, logger: logger}
	if _, err := pool.Exec(ctx, auditSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring audit table: %w", err)
	}
	logger.Info("audit.postgres ready", logpkg.Str("database", cfg.ConnConfig.Database))
	return s, nil
}

// RecordProcessed upserts the row for entryID with the given outcome.
func (s *PostgresSink) RecordProcessed(ctx context.Context, entryID id.ID, eventType string, payload []byte, outcome string) error {
	_, err := s.pool.Exec(ctx, upsertProcessed, entryID.String(), eventType, string(payload), outcome)
	if err != nil {
		return fmt.Errorf("recording processed entry %s: %w", entryID, err)
	}
	return nil
}

// RecordError upserts the row for entryID with the handler's failure text.
func (s *PostgresSink) RecordError(ctx context.Context, entryID id.ID, message string) error {
	_, err := s.pool.Exec(ctx, upsertError, entryID.String(), message)
	if err != nil {
		return fmt.Errorf("recording failed entry %s: %w", entryID, err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() { s.pool.Close() }
