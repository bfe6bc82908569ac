package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/framing"
)

// TCPTransport implements ServerTransport for DNS over TCP (RFC 1035
// §4.2.2). Connections are long-lived; each accepted connection is read in
// a loop until it closes or a framing error occurs, which terminates only
// that connection.
type TCPTransport struct {
	addr   string
	logger log.Logger

	mu       sync.RWMutex
	listener net.Listener
	running  bool
}

// NewTCPTransport constructs a TCP transport bound to addr once Start runs.
func NewTCPTransport(addr string, logger log.Logger) *TCPTransport {
	return &TCPTransport{addr: addr, logger: logger}
}

func (t *TCPTransport) Start(ctx context.Context, handler Responder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("tcp transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return derr.Wrap(derr.KindIO, "please supply a free port number", err)
	}

	t.listener = ln
	t.running = true

	t.logger.Info(map[string]any{"transport": "tcp", "address": t.addr}, "transport started")
	go t.acceptLoop(ctx, handler)
	return nil
}

func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	err := t.listener.Close()
	t.running = false
	t.logger.Info(map[string]any{"transport": "tcp", "address": t.addr}, "transport stopped")
	return err
}

func (t *TCPTransport) Address() string {
	return t.addr
}

func (t *TCPTransport) acceptLoop(ctx context.Context, handler Responder) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to accept tcp connection")
			continue
		}
		go t.serveConn(ctx, conn, handler)
	}
}

// serveConn reads framed requests from conn serially until the connection
// closes or a framing error occurs; a framing error here never propagates
// beyond this one connection.
func (t *TCPTransport) serveConn(ctx context.Context, conn net.Conn, handler Responder) {
	defer conn.Close()
	framed := framing.NewTCP(conn)

	for {
		request, err := framed.ReadMessage()
		if err != nil {
			if derr.Is(err, derr.KindFraming) {
				t.logger.Debug(map[string]any{
					"remote": conn.RemoteAddr().String(),
					"error":  err.Error(),
				}, "tcp connection closed on framing error")
			}
			return
		}

		response, ok := handler(ctx, request)
		if !ok {
			continue
		}
		if err := framed.WriteMessage(response); err != nil {
			t.logger.Warn(map[string]any{
				"remote": conn.RemoteAddr().String(),
				"error":  err.Error(),
			}, "failed to write tcp response")
			return
		}
	}
}
