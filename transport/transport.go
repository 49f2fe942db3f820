// Package transport models the unordered best-effort at-most-once channel
// between pipeline nodes. Senders are fire-and-forget: once Send reports
// true the caller observes nothing further about the packet's fate.
package transport

import "github.com/juju/errors"

// ErrClosed marks operations attempted after Close. Fail fast, never block.
var ErrClosed = errors.New("transport: closed")

// Handler consumes one inbound payload. The transport invokes it
// synchronously per arrival; the payload must not be retained.
type Handler func(payload []byte)

// Sender transmits payloads toward one destination.
// Send returns whether the transport accepted the packet. No retries,
// no acknowledgments; a false result means the packet is gone.
type Sender interface {
	Send(payload []byte) bool
	Close() error
}

// Binding is an active inbound registration.
type Binding interface {
	Close() error
}

// Net binds receive handlers and opens senders by destination address.
type Net interface {
	Bind(addr string, h Handler) (Binding, error)
	Open(addr string) (Sender, error)
}
