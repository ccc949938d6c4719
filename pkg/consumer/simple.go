package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/rzbill/evpipe/pkg/id"
	logpkg "github.com/rzbill/evpipe/pkg/log"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// SimpleConfig tunes a SimpleConsumer. Zero values get defaults.
type SimpleConfig struct {
	// Start is the resume position: entries strictly after it are read.
	// Zero reads the log from its first entry.
	Start id.ID
	// BatchSize caps entries per read (default 16).
	BatchSize int
	// Block is how long an exhausted read waits for new entries
	// (default 5s). Negative means non-blocking reads paced by
	// PollInterval.
	Block time.Duration
	// PollInterval is the sleep after an empty non-blocking read
	// (default 200ms).
	PollInterval time.Duration
	// RetryMin/RetryMax bound the backoff applied when a store call fails
	// (defaults 100ms/5s).
	RetryMin time.Duration
	RetryMax time.Duration
	// Audit receives a record per dispatched entry; nil disables auditing.
	Audit AuditSink
}

// SimpleConsumer tails a log with a private in-memory cursor and no group
// state. The cursor advances past every dispatched entry, including ones
// whose handler failed, and it dies with the process: there is no pending
// list, no redelivery, and a restart re-reads from whatever Start it is
// given. Use a grouped Worker when losing entries matters.
type SimpleConsumer struct {
	registry
	lc loopControl

	store  logstore.Store
	log    string
	cfg    SimpleConfig
	sink   safeSink
	logger logpkg.Logger

	mu     sync.Mutex
	cursor id.ID
}

// NewSimpleConsumer returns a consumer tailing log over store. A nil logger
// gets a default one.
func NewSimpleConsumer(store logstore.Store, log string, cfg SimpleConfig, logger logpkg.Logger) *SimpleConsumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
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
	logger = logger.With(logpkg.Component("consumer"), logpkg.Str("log", log))
	return &SimpleConsumer{
		lc:     newLoopControl(),
		store:  store,
		log:    log,
		cfg:    cfg,
		sink:   safeSink{sink: cfg.Audit, logger: logger},
		logger: logger,
		cursor: cfg.Start,
	}
}

// Cursor returns the ID of the last dispatched entry. Callers wanting a
// durable position must persist it themselves and feed it back as Start.
func (s *SimpleConsumer) Cursor() id.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// State returns the consumer's lifecycle state.
func (s *SimpleConsumer) State() State { return s.lc.current() }

// Start launches the tail loop. It returns an error if the consumer was
// already started.
func (s *SimpleConsumer) Start(ctx context.Context) error {
	runCtx, err := s.lc.begin(ctx)
	if err != nil {
		return err
	}
	go s.run(runCtx)
	return nil
}

// Stop terminates the loop and waits for it to exit.
func (s *SimpleConsumer) Stop() { s.lc.stop() }

func (s *SimpleConsumer) run(ctx context.Context) {
	defer s.lc.finish()
	s.logger.Info("consumer.simple started")
	defer s.logger.Info("consumer.simple stopped")

	bo := newBackoff(s.cfg.RetryMin, s.cfg.RetryMax)
	block := s.cfg.Block
	if block < 0 {
		block = 0
	}
	for {
		if s.lc.stopping(ctx) {
			return
		}
		from := s.Cursor()
		if !from.IsZero() {
			from = from.Succ()
		}
		entries, err := s.store.BlockingRead(ctx, s.log, from, s.cfg.BatchSize, block)
		if err != nil {
			if s.lc.stopping(ctx) {
				return
			}
			wait := bo.duration()
			s.logger.Warn("consumer.read failed; retrying",
				logpkg.Dur("retry_in", wait),
				logpkg.Err(err),
			)
			if !s.lc.sleep(ctx, wait) {
				return
			}
			continue
		}
		bo.reset()
		if len(entries) == 0 {
			if s.cfg.Block < 0 && !s.lc.sleep(ctx, s.cfg.PollInterval) {
				return
			}
			continue
		}
		for _, e := range entries {
			if s.lc.stopping(ctx) {
				return
			}
			// Handler failures advance the cursor too: without a pending
			// list the entry cannot be redelivered, only skipped.
			dispatchEntry(ctx, &s.registry, s.sink, s.logger, e)
			s.advance(e.ID)
		}
	}
}

func (s *SimpleConsumer) advance(to id.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Compare(to) < 0 {
		s.cursor = to
	}
}
