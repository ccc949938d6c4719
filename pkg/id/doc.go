// Package id provides the monotonic entry identifier assigned by the log
// store at append time.
//
// # Format
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence].
// Byte-wise comparison preserves chronological order, and IDs generated
// within the same millisecond remain strictly increasing by sequence. The
// textual form is "<ms>-<seq>", e.g. "1726833600000-4".
//
// # Monotonicity
//
// The Generator ensures per-log monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next ID.
//   - NewGeneratorFrom seeds the generator with the last ID persisted by a
//     log, so ordering survives restarts.
//
// Usage
//
//	g := id.NewGenerator()
//	newID := g.Next()
//	b := newID.Bytes()   // 16-byte representation
//	s := newID.String()  // "<ms>-<seq>"
package id
