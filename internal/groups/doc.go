// Package groups persists consumer group state for event logs: the per-group
// delivery cursor, the pending entries list (PEL), delivered/acked counters,
// and per-consumer activity records.
//
// # Model
//
// A group tracks one cursor per log: the last delivered ID. Claiming reads
// entries strictly after the cursor, marks each pending for the claiming
// consumer, and advances the cursor — all in one Pebble batch under a
// manager-held per-group lock. Because claims advance the cursor, the PEL
// only ever contains entries at or below it, and concurrent claims can never
// overlap.
//
// An entry is therefore in exactly one of three states: undelivered (above
// the cursor), pending (in the PEL), or acknowledged (below the cursor and
// absent from the PEL). Ack is idempotent; acking an unknown entry is a
// no-op. Nothing redelivers on its own: callers reclaim pending entries
// whose idle time exceeds a threshold, which reassigns them and increments
// their delivery count.
//
// Key layout is documented in keys.go.
package groups
