package serverrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	"github.com/rzbill/evpipe/internal/metrics"
	"github.com/rzbill/evpipe/internal/runtime"
	httpserver "github.com/rzbill/evpipe/internal/server/http"
	wireserver "github.com/rzbill/evpipe/internal/server/wire"
	"github.com/rzbill/evpipe/internal/service"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	logpkg "github.com/rzbill/evpipe/pkg/log"
)

func getenvDefault(key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

// small wrapper to allow testing; replaced by os.Getenv at build time
var getenv = func(key string) string { return os.Getenv(key) }

type Options struct {
	DataDir       string
	WireAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// Run starts the wire and HTTP servers over one embedded store and blocks
// until ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Layer a local signal context over the provided one so callers that
	// don't pass a signal-aware context still shut down cleanly.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.DataDir == "" {
		opts.DataDir = cfgpkg.DefaultDataDir()
	}
	storeDir := filepath.Join(opts.DataDir, "store")
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Metrics:       metrics.StorageHook{},
		Archiver:      metrics.TrimArchiver{},
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Build the process-wide logger from env; defaults: level=info, format=text
	cfg := &logpkg.Config{
		Level:  getenvDefault("EVPIPE_LOG_LEVEL", "info"),
		Format: getenvDefault("EVPIPE_LOG_FORMAT", "text"),
	}
	procLogger, err := logpkg.ApplyConfig(cfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(cfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	procLogger.Info("Starting evpipe server",
		logpkg.Str("wire", opts.WireAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str("level", cfg.Level),
		logpkg.Str("format", cfg.Format),
	)

	svc := service.NewWithLogger(rt, procLogger.With(logpkg.Component("service")))
	wsrv := wireserver.New(svc, procLogger.With(logpkg.Component("wire")))
	hsrv := httpserver.NewWithLogger(svc, procLogger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := wsrv.ListenAndServe(gctx, opts.WireAddr); err != nil && gctx.Err() == nil {
			return fmt.Errorf("wire server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, opts.HTTPAddr); err != nil && gctx.Err() == nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	err = g.Wait()
	// Release listeners before the deferred runtime close so no connection
	// races the DB teardown.
	wsrv.Close()
	hsrv.Close()
	return err
}
