// Package jsonrpc implements a JSON-RPC 2.0 adapter that exposes a registry of named capabilities
// over pluggable transports, following https://www.jsonrpc.org/specification.
//
// A Dispatcher reads one message at a time from a Transport, validates it, invokes the matching
// Capability from a shared Registry and writes back the Response. Failures are carried as tagged
// errors and mapped onto the standard error codes by MapError. A Server runs one Dispatcher per
// connection accepted by a ServerTransport: StdIO, NetListener (TCP or Unix sockets) or SSEServer.
package jsonrpc
