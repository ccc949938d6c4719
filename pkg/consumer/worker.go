package consumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// State is the lifecycle position of a consumer loop.
type State int32

const (
	// StateIdle: constructed, not yet started.
	StateIdle State = iota
	// StateRunning: the loop goroutine is live.
	StateRunning
	// StateStopped: terminal; reached only through Stop or cancellation of
	// the Start context.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// loopControl owns the lifecycle plumbing shared by Worker and
// SimpleConsumer: the Idle→Running→Stopped machine and the stop channel that
// bounds every suspension point.
type loopControl struct {
	state    atomic.Int32
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func newLoopControl() loopControl {
	return loopControl{stopCh: make(chan struct{}), done: make(chan struct{})}
}

// begin transitions Idle→Running and returns a context cancelled by Stop as
// well as by the parent. The caller must run finish() when its loop exits.
func (lc *loopControl) begin(ctx context.Context) (context.Context, error) {
	if !lc.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("consumer already started or stopped (state %s)", lc.current())
	}
	runCtx, cancel := context.WithCancel(ctx)
	lc.cancel = cancel
	go func() {
		select {
		case <-lc.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()
	return runCtx, nil
}

func (lc *loopControl) finish() {
	lc.state.Store(int32(StateStopped))
	lc.cancel()
	close(lc.done)
}

// stop requests termination and waits for the loop to exit. Safe to call
// repeatedly and before start.
func (lc *loopControl) stop() {
	lc.stopOnce.Do(func() { close(lc.stopCh) })
	if lc.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		// Never started; there is no loop to wait for.
		close(lc.done)
	}
	<-lc.done
}

func (lc *loopControl) current() State { return State(lc.state.Load()) }

// stopping reports whether the loop must wind down now.
func (lc *loopControl) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-lc.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits d unless a stop arrives first; it reports whether the loop
// should keep going.
func (lc *loopControl) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !lc.stopping(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-lc.stopCh:
		return false
	case <-t.C:
		return true
	}
}

// WorkerConfig tunes a grouped worker. Zero values get defaults.
type WorkerConfig struct {
	// BatchSize caps entries per claim (default 16).
	BatchSize int
	// ClaimBlock is how long an exhausted claim waits for new entries
	// (default 5s). Negative means non-blocking claims paced by
	// PollInterval.
	ClaimBlock time.Duration
	// PollInterval is the sleep after an empty non-blocking claim
	// (default 200ms).
	PollInterval time.Duration
	// RetryMin/RetryMax bound the backoff applied when a store call fails
	// (defaults 100ms/5s). The worker retries store errors until stopped.
	RetryMin time.Duration
	RetryMax time.Duration
	// Audit receives a record per dispatched entry; nil disables auditing.
	Audit AuditSink
}

// Worker competes for entries inside a consumer group. Claimed entries are
// dispatched in ID order through the handler registry; successful and
// ignored entries are acknowledged, failed ones stay pending for a later
// reclaim. Run one Worker per consumer name; scale by running more workers
// with distinct names, in or across processes.
type Worker struct {
	registry
	lc loopControl

	coord  *Coordinator
	name   string
	cfg    WorkerConfig
	sink   safeSink
	logger logpkg.Logger
}

// NewWorker returns a worker consuming as consumerName through coord. A nil
// logger gets a default one.
func NewWorker(coord *Coordinator, consumerName string, cfg WorkerConfig, logger logpkg.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.ClaimBlock == 0 {
		cfg.ClaimBlock = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 100 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logger = logger.With(
		logpkg.Component("consumer"),
		logpkg.Str("log", coord.Log()),
		logpkg.Str("group", coord.Group()),
		logpkg.Str("consumer", consumerName),
	)
	return &Worker{
		lc:     newLoopControl(),
		coord:  coord,
		name:   consumerName,
		cfg:    cfg,
		sink:   safeSink{sink: cfg.Audit, logger: logger},
		logger: logger,
	}
}

// Name returns the consumer name the worker claims under.
func (w *Worker) Name() string { return w.name }

// State returns the worker's lifecycle state.
func (w *Worker) State() State { return w.lc.current() }

// Start launches the claim/dispatch loop. It returns an error if the worker
// was already started. The loop runs until Stop is called or ctx is
// cancelled; either way the state ends Stopped.
func (w *Worker) Start(ctx context.Context) error {
	runCtx, err := w.lc.begin(ctx)
	if err != nil {
		return err
	}
	go w.run(runCtx)
	return nil
}

// Stop terminates the loop and waits for it to exit. Entries claimed but not
// yet dispatched stay pending and reach another consumer via reclaim.
func (w *Worker) Stop() { w.lc.stop() }

func (w *Worker) run(ctx context.Context) {
	defer w.lc.finish()
	w.logger.Info("consumer.worker started")
	defer w.logger.Info("consumer.worker stopped")

	bo := newBackoff(w.cfg.RetryMin, w.cfg.RetryMax)
	block := w.cfg.ClaimBlock
	if block < 0 {
		block = 0
	}
	for {
		if w.lc.stopping(ctx) {
			return
		}
		entries, err := w.coord.ClaimNext(ctx, w.name, w.cfg.BatchSize, block)
		if err != nil {
			if w.lc.stopping(ctx) {
				return
			}
			wait := bo.duration()
			w.logger.Warn("consumer.claim failed; retrying",
				logpkg.Dur("retry_in", wait),
				logpkg.Err(err),
			)
			if !w.lc.sleep(ctx, wait) {
				return
			}
			continue
		}
		bo.reset()
		if len(entries) == 0 {
			if w.cfg.ClaimBlock < 0 && !w.lc.sleep(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}
		w.Process(ctx, entries)
	}
}

// Process dispatches entries already claimed for this worker, in order, and
// acknowledges each processed or ignored one. The normal loop runs it per
// claim; a Reclaimer delivering reassigned entries calls it directly. A stop
// mid-batch leaves the remainder pending.
func (w *Worker) Process(ctx context.Context, entries []logstore.Entry) {
	for _, e := range entries {
		if w.lc.stopping(ctx) {
			return
		}
		switch dispatchEntry(ctx, &w.registry, w.sink, w.logger, e) {
		case dispatchProcessed, dispatchIgnored:
			w.ackWithRetry(ctx, e.ID)
		case dispatchFailed:
			// Stays pending; redelivered by a reclaim once it goes stale.
		}
	}
}

// ackWithRetry keeps trying the ack until it lands or the worker stops. An
// unacked entry is merely redelivered later, so giving up on stop is safe.
func (w *Worker) ackWithRetry(ctx context.Context, entryID id.ID) {
	bo := newBackoff(w.cfg.RetryMin, w.cfg.RetryMax)
	for {
		err := w.coord.Ack(ctx, entryID)
		if err == nil {
			return
		}
		if w.lc.stopping(ctx) {
			return
		}
		wait := bo.duration()
		w.logger.Warn("consumer.ack failed; retrying",
			logpkg.Str("id", entryID.String()),
			logpkg.Dur("retry_in", wait),
			logpkg.Err(err),
		)
		if !w.lc.sleep(ctx, wait) {
			return
		}
	}
}
