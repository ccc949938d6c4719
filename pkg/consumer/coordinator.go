package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Coordinator binds a (log, group) pair over a Store and exposes the group
// operations workers need. It holds no local state: the store's cursor and
// pending list are authoritative, so any number of coordinators across
// processes can point at the same group.
type Coordinator struct {
	store  logstore.Store
	log    string
	group  string
	logger logpkg.Logger
}

// NewCoordinator returns a coordinator for group on log. A nil logger gets a
// default one.
func NewCoordinator(store logstore.Store, log, group string, logger logpkg.Logger) *Coordinator {
	if logger == nil {
		logger = logpkg.NewLogger().With(logpkg.Component("consumer"))
	}
	return &Coordinator{store: store, log: log, group: group, logger: logger}
}

// Log returns the log name the coordinator is bound to.
func (c *Coordinator) Log() string { return c.log }

// Group returns the group name the coordinator is bound to.
func (c *Coordinator) Group() string { return c.group }

// EnsureGroup registers the group at start (logstore.StartBegin,
// logstore.StartNew, or an explicit ID). Idempotent: an already existing
// group is success, whatever its original start position was.
func (c *Coordinator) EnsureGroup(ctx context.Context, start string) error {
	err := c.store.CreateGroup(ctx, c.log, c.group, start)
	if err == nil {
		c.logger.Debug("consumer.group created",
			logpkg.Str("log", c.log),
			logpkg.Str("group", c.group),
			logpkg.Str("start", start),
		)
		return nil
	}
	if errors.Is(err, logstore.ErrGroupExists) {
		return nil
	}
	return fmt.Errorf("ensure group %s/%s: %w", c.log, c.group, err)
}

// ClaimNext delivers up to maxCount entries past the group cursor to
// consumer, marking each pending. When the log is exhausted it waits up to
// block for new entries; an empty slice after that is not an error. The
// store serializes claims per group, so concurrent calls never overlap.
func (c *Coordinator) ClaimNext(ctx context.Context, consumer string, maxCount int, block time.Duration) ([]logstore.Entry, error) {
	if maxCount <= 0 {
		maxCount = 16
	}
	return c.store.GroupClaim(ctx, c.log, c.group, consumer, maxCount, block)
}

// Ack removes an entry from the group's pending list. Unknown IDs are a
// no-op, which makes acks safe to repeat.
func (c *Coordinator) Ack(ctx context.Context, entryID id.ID) error {
	_, err := c.store.Ack(ctx, c.log, c.group, entryID)
	return err
}

// ReclaimStale reassigns up to maxCount pending entries idle for at least
// minIdle to consumer and returns them for processing. Nothing redelivers on
// its own; this is the only path by which an abandoned entry moves again.
func (c *Coordinator) ReclaimStale(ctx context.Context, consumer string, minIdle time.Duration, maxCount int) ([]logstore.Entry, error) {
	if maxCount <= 0 {
		maxCount = 64
	}
	return c.store.Reclaim(ctx, c.log, c.group, consumer, minIdle, maxCount)
}

// Pending lists up to count pending entries of the group in ascending ID
// order.
func (c *Coordinator) Pending(ctx context.Context, count int) ([]logstore.PendingInfo, error) {
	if count <= 0 {
		count = 100
	}
	return c.store.Pending(ctx, c.log, c.group, count)
}
