package consumer

import (
	"context"
	"math/rand"
	"sync"
	"time"

	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// ReclaimerConfig configures a Reclaimer. Zero values get defaults.
type ReclaimerConfig struct {
	// Interval is the sweep period (default 5s). Each wait is jittered so
	// reclaimers started together drift apart.
	Interval time.Duration
	// MinIdle is how long an entry must sit pending before a sweep takes
	// it (default 30s). Keep it above the slowest expected handler run or
	// live consumers lose entries they are still working on.
	MinIdle time.Duration
	// MaxCount caps entries reassigned per sweep (default 64).
	MaxCount int
	// Deliver receives the reassigned entries, typically a Worker's
	// Process method. With a nil Deliver a sweep only reassigns ownership
	// and logs, leaving the entries pending for the target consumer.
	Deliver func(ctx context.Context, entries []logstore.Entry)
}

// Reclaimer periodically sweeps a group's pending list and reassigns entries
// idle past MinIdle to one consumer. The store never redelivers on its own,
// so without a reclaimer (or a manual reclaim) an entry claimed by a dead
// consumer is stuck forever. Start one per group from the process that hosts
// the workers; it is never started implicitly.
type Reclaimer struct {
	coord  *Coordinator
	name   string
	cfg    ReclaimerConfig
	logger logpkg.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReclaimer returns a reclaimer reassigning stale entries to
// consumerName through coord. A nil logger gets a default one.
func NewReclaimer(coord *Coordinator, consumerName string, cfg ReclaimerConfig, logger logpkg.Logger) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = 30 * time.Second
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = 64
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logger = logger.With(
		logpkg.Component("reclaimer"),
		logpkg.Str("log", coord.Log()),
		logpkg.Str("group", coord.Group()),
		logpkg.Str("consumer", consumerName),
	)
	return &Reclaimer{
		coord:  coord,
		name:   consumerName,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins sweeping in a background goroutine.
func (r *Reclaimer) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop halts sweeping and waits for the loop to exit. Safe to call
// repeatedly.
func (r *Reclaimer) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Reclaimer) run() {
	defer r.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.logger.Info("reclaimer started",
		logpkg.Dur("interval", r.cfg.Interval),
		logpkg.Dur("min_idle", r.cfg.MinIdle),
	)
	defer r.logger.Info("reclaimer stopped")

	for {
		t := time.NewTimer(r.jitteredInterval())
		select {
		case <-r.stopCh:
			t.Stop()
			return
		case <-t.C:
		}
		r.sweep(ctx)
	}
}

// jitteredInterval spreads sweeps over [Interval, Interval+10%).
func (r *Reclaimer) jitteredInterval() time.Duration {
	d := r.cfg.Interval
	if n := int64(d) / 10; n > 0 {
		d += time.Duration(rand.Int63n(n))
	}
	return d
}

// Sweep runs one reclaim pass immediately, outside the timer cadence, and
// returns the reassigned entries after handing them to Deliver. Useful for
// tests and manual kicks.
func (r *Reclaimer) Sweep(ctx context.Context) ([]logstore.Entry, error) {
	entries, err := r.coord.ReclaimStale(ctx, r.name, r.cfg.MinIdle, r.cfg.MaxCount)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	r.logger.Info("reclaimer.reassigned stale entries",
		logpkg.Int("count", len(entries)),
		logpkg.Str("first", entries[0].ID.String()),
	)
	if r.cfg.Deliver != nil {
		r.cfg.Deliver(ctx, entries)
	}
	return entries, nil
}

func (r *Reclaimer) sweep(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Warn("reclaimer.sweep failed", logpkg.Err(err))
	}
}
