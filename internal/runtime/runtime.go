package runtime

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	"github.com/rzbill/evpipe/internal/eventlog"
	"github.com/rzbill/evpipe/internal/groups"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	"github.com/rzbill/evpipe/pkg/logstore"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Metrics observes storage latencies and sizes. Optional.
	Metrics pebblestore.MetricsHook
	// Archiver observes trim/flush deletions on every opened log. Optional.
	Archiver eventlog.ArchiverHook
}

// Runtime wires storage, config, and per-log handles for a single-node
// instance.
type Runtime struct {
	db       *pebblestore.DB
	config   cfgpkg.Config
	archiver eventlog.ArchiverHook
	nameRe   *regexp.Regexp

	mu   sync.Mutex
	logs map[string]*LogSet
}

// LogSet bundles the handles of one log: the append-only log itself and its
// consumer-group manager. Handles are cached per name because Log carries
// in-memory state (append notifications, the ID generator) that every reader
// and writer of the same log must share.
type LogSet struct {
	Log    *eventlog.Log
	Groups *groups.Manager
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	re, err := compileNameRe(opts.Config.LogNameRegex)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("log name regex: %w", err)
	}
	rt := &Runtime{
		db:       db,
		config:   opts.Config,
		archiver: opts.Archiver,
		nameRe:   re,
		logs:     map[string]*LogSet{},
	}
	return rt, nil
}

func compileNameRe(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = cfgpkg.Default().LogNameRegex
	}
	return regexp.Compile("^(?:" + expr + ")$")
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	it.Close()
	return nil
}

// EnsureLog registers the named log if absent and returns its handles.
// Idempotent: an existing log is returned as-is.
func (r *Runtime) EnsureLog(name string) (*LogSet, error) {
	if !r.nameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid log name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.logs[name]; ok {
		return ls, nil
	}
	if !logMetaExists(r.db, name) {
		if max := r.config.MaxLogs; max > 0 {
			names, err := listLogMeta(r.db)
			if err != nil {
				return nil, err
			}
			if len(names) >= max {
				return nil, fmt.Errorf("log limit reached (%d)", max)
			}
		}
		if _, err := ensureLogMeta(r.db, name); err != nil {
			return nil, err
		}
	}
	return r.openLocked(name)
}

// GetLog returns the handles of a registered log, or ErrNoLog when the name
// was never registered.
func (r *Runtime) GetLog(name string) (*LogSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ls, ok := r.logs[name]; ok {
		return ls, nil
	}
	if !logMetaExists(r.db, name) {
		return nil, fmt.Errorf("%w: %q", logstore.ErrNoLog, name)
	}
	return r.openLocked(name)
}

func (r *Runtime) openLocked(name string) (*LogSet, error) {
	lg, err := eventlog.OpenLog(r.db, name)
	if err != nil {
		return nil, err
	}
	if r.archiver != nil {
		lg.SetArchiver(r.archiver)
	}
	ls := &LogSet{Log: lg, Groups: groups.NewManager(r.db, lg)}
	r.logs[name] = ls
	return ls, nil
}

// ListLogs returns the names of every registered log in ascending order.
func (r *Runtime) ListLogs() ([]string, error) {
	return listLogMeta(r.db)
}

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
