// Package wireserver serves the framed TCP protocol from internal/wire over
// the embedded service. Connections are request/response in lockstep; the
// serve context cancels in-flight blocking reads and claims on shutdown.
package wireserver
