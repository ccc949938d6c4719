// Package service implements the embedded log store over the runtime:
// appends, range and blocking reads, consumer-group claim/ack/reclaim, and
// the trim/flush maintenance surface. It is the single implementation both
// servers expose and the one tests drive directly.
//
// Blocking variants (BlockingRead, GroupClaim with a block duration) wait
// on the log's append notification instead of polling, re-checking until
// the deadline or ctx expires.
package service
