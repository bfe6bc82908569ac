// Package listener wires the forwarder engine to the client-facing
// transports. Grounded on the teacher's Application.Run in cmd/rr-dnsd: bind
// a transport, hand it a responder, and close it within a shutdown budget
// when told to stop. In-flight requests are not waited for.
package listener

import (
	"context"
	"fmt"
	"time"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/forwarder"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/transport"
)

// defaultShutdownTimeout bounds how long Stop waits for the underlying
// transports to close before giving up and returning an error.
const defaultShutdownTimeout = 10 * time.Second

// Server binds a UDP and a TCP forwarder to their respective client-facing
// transports. UDP and TCP each get an independently configured forwarder,
// since the wire protocol spoken to the client also governs the protocol
// spoken to upstreams.
type Server struct {
	udpTransport transport.ServerTransport
	tcpTransport transport.ServerTransport
	udpForwarder *forwarder.Forwarder
	tcpForwarder *forwarder.Forwarder
	logger       log.Logger
}

// New constructs a Server. Either transport may be nil to disable that
// protocol entirely, in which case its forwarder is unused. Start hands each
// non-nil transport its forwarder's Answer, so a non-nil transport paired
// with a nil forwarder fails on its first request.
func New(udpTransport, tcpTransport transport.ServerTransport, udpForwarder, tcpForwarder *forwarder.Forwarder, logger log.Logger) *Server {
	return &Server{
		udpTransport: udpTransport,
		tcpTransport: tcpTransport,
		udpForwarder: udpForwarder,
		tcpForwarder: tcpForwarder,
		logger:       logger,
	}
}

// Start binds and begins serving both transports. If either transport is
// nil, that protocol is skipped.
func (s *Server) Start(ctx context.Context) error {
	if s.udpTransport != nil {
		if err := s.udpTransport.Start(ctx, s.udpForwarder.Answer); err != nil {
			return fmt.Errorf("start udp listener: %w", err)
		}
		s.logger.Info(map[string]any{"address": s.udpTransport.Address(), "protocol": "udp"}, "listener started")
	}
	if s.tcpTransport != nil {
		if err := s.tcpTransport.Start(ctx, s.tcpForwarder.Answer); err != nil {
			if s.udpTransport != nil {
				_ = s.udpTransport.Stop()
			}
			return fmt.Errorf("start tcp listener: %w", err)
		}
		s.logger.Info(map[string]any{"address": s.tcpTransport.Address(), "protocol": "tcp"}, "listener started")
	}
	return nil
}

// Stop closes both transports, waiting up to defaultShutdownTimeout.
func (s *Server) Stop() error {
	done := make(chan error, 2)
	pending := 0

	if s.udpTransport != nil {
		pending++
		go func() { done <- s.udpTransport.Stop() }()
	}
	if s.tcpTransport != nil {
		pending++
		go func() { done <- s.tcpTransport.Stop() }()
	}

	timeout := time.NewTimer(defaultShutdownTimeout)
	defer timeout.Stop()

	var firstErr error
	for i := 0; i < pending; i++ {
		select {
		case err := <-done:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-timeout.C:
			return fmt.Errorf("listener: shutdown timed out after %s", defaultShutdownTimeout)
		}
	}
	return firstErr
}
