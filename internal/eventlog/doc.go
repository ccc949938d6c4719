// Package eventlog implements evpipe's internal append-only event log.
//
// # Overview
//
// Each named log is persisted in Pebble. Keys are lexicographically ordered
// for efficient range scans:
//   - log/{name}/m           (log metadata: last assigned ID, live length)
//   - log/{name}/e/{id_be16} (entries)
//
// Entry IDs are 16-byte big-endian (ms, seq) monotonic identifiers assigned
// at append, so key order equals append order. Records are stored as:
// varint fieldCount | (varint kLen | k | varint vLen | v)* | crc32c(body).
//
// API surface (internal)
//
//	l, _ := OpenLog(db, "orders")
//	// Append one entry; the store assigns a strictly increasing ID
//	eid, _ := l.Append(ctx, fields)
//
//	// Read forward/reverse with an optional start ID and limit
//	items, next, _ := l.Read(ReadOptions{Start: eid, Limit: 100})
//	_ = next // resume position
//
//	// Blocking wait/notify for tail reads
//	woke := l.WaitForAppend(ctx, 200*time.Millisecond)
//	_ = woke
//
//	// Retention is caller-driven: trims batch and throttle deletes and
//	// emit archiver ranges via ArchiverHook
//	_, _ = l.TrimBefore(ctx, before, 1024, 0)
//	_, _ = l.TrimOlderThan(ctx, 24*time.Hour, 1024, 0)
//	_ = l.Flush(ctx)
//
// # Archiver integration
//
// A minimal ArchiverHook seam is provided. When trims delete entries, the
// hook is called with the deleted {first, last} range. The default
// implementation is a no-op; the metrics layer installs a counting hook.
package eventlog
