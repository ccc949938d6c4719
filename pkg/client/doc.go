// Package client is the TCP wire implementation of logstore.Store and
// logstore.Admin. Consumers and producers embed it interchangeably with the
// in-process store.
//
// The protocol is lockstep: one frame out, one frame back. The client
// serializes concurrent callers on a single connection, redials lazily
// after connectivity failures, and maps wire error codes back onto the
// logstore sentinels (connectivity itself surfaces as ErrUnavailable).
package client
