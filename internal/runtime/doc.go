// Package runtime wires storage, config, and per-log handles into a
// single-node evpipe instance. It exposes Open/Close, basic health checks,
// a durable log registry, and cached handles used by higher-level services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	// Health
//	_ = rt.CheckHealth(context.Background())
//	// Register a log and append
//	ls, _ := rt.EnsureLog("orders")
//	_, _ = ls.Log.Append(context.Background(), logstore.Fields{{K: "type", V: "created"}})
package runtime
