// Package client provides the `evpipe` command-line client.
//
// The CLI talks to the evpipe wire endpoint to publish events, inspect
// logs, and run consumers from a terminal. It is primarily intended for
// developers and operators.
//
// # Address configuration
//
// The wire address is read from the EVPIPE_ADDR environment variable
// (default 127.0.0.1:7070).
//
// Usage
//
//	evpipe publish --log orders --type order.created --data '{"amount":42}'
//
//	evpipe log append --log orders --field eventType=order.created --field payload='{"n":1}'
//	evpipe log entries --log orders --from 0-0 --count 20
//	evpipe log stats --log orders
//
//	# Follow a log without a group (no acks, no cursor persistence)
//	evpipe log tail --log orders
//	evpipe log tail --log orders --from 0-0 --filter 'event_type == "order.created"'
//
//	evpipe group create --log orders --group billing --start 0
//	evpipe group claim --log orders --group billing --consumer c1 --count 10
//	evpipe group ack --log orders --group billing --id 1726833600000-0
//	evpipe group pending --log orders --group billing
//	evpipe group reclaim --log orders --group billing --consumer c2 --min-idle-ms 30000
//
//	# Run a competing consumer: claim, print, ack, with periodic reclaim
//	evpipe consume --log orders --group billing --consumer c1
//	evpipe consume --log orders --group billing --no-ack --limit 5
//
//	# Destructive operations require --confirm
//	evpipe log trim --log orders --before 1726833600000-0 --confirm
//	evpipe log flush --log orders --confirm
//
// Notes
//
//   - consume claims through the group cursor, prints each event as a JSON
//     line, and acks unless --no-ack is set. A --filter expression controls
//     printing only; filtered entries are still acked.
//   - tail reads outside any group: nothing is acked and a restart re-reads
//     from the given --from position.
package client
