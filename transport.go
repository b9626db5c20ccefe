package jsonrpc

import (
	"context"
	"errors"
	"iter"
)

// ErrConnectionClosed is returned by Transport.Receive once the peer closed the connection or the
// transport was closed locally. The dispatcher treats it as the end of a connection, not a
// failure.
var ErrConnectionClosed = errors.New("connection closed")

// Transport moves whole JSON-RPC messages, as text, between two peers.
type Transport interface {
	// Receive blocks until the next message arrives. It returns ErrConnectionClosed, possibly
	// wrapped, when no more messages will arrive.
	Receive(ctx context.Context) (string, error)

	// Send transmits one message to the peer.
	Send(ctx context.Context, message string) error

	// Close releases the transport. Pending and later Receive calls return ErrConnectionClosed.
	Close() error
}

// Connection is a Transport to one client of a ServerTransport.
type Connection interface {
	Transport

	// ID returns the identifier of the connection, unique among the connections produced by the
	// same ServerTransport.
	ID() string
}

// ServerTransport accepts client connections for a Server.
type ServerTransport interface {
	// Connections returns an iterator that yields connections as clients arrive. The iteration
	// ends when the transport is shut down.
	Connections() iter.Seq[Connection]

	// Shutdown stops accepting connections and releases the transport. Connections it already
	// yielded are closed by the caller. The caller calls Shutdown only once.
	Shutdown(ctx context.Context) error
}
