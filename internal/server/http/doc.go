// Package httpserver provides the producer-facing REST gateway: JSON
// endpoints for appending events and inspecting logs, plus an SSE live
// tail with optional CEL filtering.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(service.New(rt))
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
