// Package transport provides the opaque byte-stream client/server
// abstraction that the framing and listener layers build on: connect, bind,
// accept, read, write, close. It knows nothing about DNS semantics; it
// hands the listener whole request buffers and accepts whole response
// buffers in return.
package transport

import (
	"context"
	"net"
)

// DialFunc establishes an outbound connection to address over network
// ("udp" or "tcp"). Lifted from the upstream resolver's dial hook so tests
// can substitute an in-memory pipe instead of a real socket.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// DefaultDial is the production DialFunc, a plain net.Dialer.
var DefaultDial DialFunc = (&net.Dialer{}).DialContext

// Responder answers one request buffer. ok is false when the caller should
// drop the request silently (parse failure, no candidate upstreams, or the
// race timed out) rather than write anything back.
type Responder func(ctx context.Context, request []byte) (response []byte, ok bool)

// ServerTransport binds a client-facing address, frames incoming requests,
// and hands each one to a Responder. UDP and TCP provide the same contract;
// the listener package stays oblivious to which one is in play.
type ServerTransport interface {
	// Start binds the configured address and begins dispatching requests
	// to handler in the background. Start returns once bound.
	Start(ctx context.Context, handler Responder) error

	// Stop shuts the transport down by closing its listening socket.
	// Idempotent. The TCP transport does not close connections it has
	// already accepted; they keep being served until the peer closes them.
	Stop() error

	// Address returns the network address the transport is bound to.
	Address() string
}
