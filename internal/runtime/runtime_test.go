package runtime

import (
	"context"
	"errors"
	"testing"

	cfgpkg "github.com/rzbill/evpipe/internal/config"
	pebblestore "github.com/rzbill/evpipe/internal/storage/pebble"
	"github.com/rzbill/evpipe/pkg/logstore"
)

func openTestRuntime(t *testing.T, dir string, cfg cfgpkg.Config) *Runtime {
	t.Helper()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestOpenCloseHealth(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir(), cfgpkg.Default())
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestEnsureGetList(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir(), cfgpkg.Default())

	ls, err := rt.EnsureLog("orders")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	again, err := rt.EnsureLog("orders")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again != ls {
		t.Fatalf("expected cached handle")
	}
	got, err := rt.GetLog("orders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != ls {
		t.Fatalf("get should return the cached handle")
	}
	if ls.Log == nil || ls.Groups == nil {
		t.Fatalf("handle not fully wired")
	}

	if _, err := rt.GetLog("missing"); !errors.Is(err, logstore.ErrNoLog) {
		t.Fatalf("expected ErrNoLog, got %v", err)
	}

	if _, err := rt.EnsureLog("billing"); err != nil {
		t.Fatalf("ensure billing: %v", err)
	}
	names, err := rt.ListLogs()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "billing" || names[1] != "orders" {
		t.Fatalf("unexpected list: %v", names)
	}
}

func TestEnsureRejectsInvalidName(t *testing.T) {
	rt := openTestRuntime(t, t.TempDir(), cfgpkg.Default())
	if _, err := rt.EnsureLog("Bad Name!"); err == nil {
		t.Fatalf("expected invalid name error")
	}
}

func TestMaxLogsEnforced(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.MaxLogs = 1
	rt := openTestRuntime(t, t.TempDir(), cfg)
	if _, err := rt.EnsureLog("one"); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if _, err := rt.EnsureLog("two"); err == nil {
		t.Fatalf("expected log limit error")
	}
	// Re-ensuring an existing log is not limited.
	if _, err := rt.EnsureLog("one"); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
}

func TestRegistrySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	rt, err := Open(Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := rt.EnsureLog("orders"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rt2 := openTestRuntime(t, dir, cfgpkg.Default())
	if _, err := rt2.GetLog("orders"); err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
}
