package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
)

// UDPTransport implements ServerTransport for standard DNS over UDP
// (RFC 1035). Each datagram is one request; the response, if any, is
// written back to the same source address.
type UDPTransport struct {
	addr   string
	logger log.Logger

	mu      sync.RWMutex
	conn    *net.UDPConn
	running bool
	stopCh  chan struct{}
}

// NewUDPTransport constructs a UDP transport bound to addr once Start runs.
func NewUDPTransport(addr string, logger log.Logger) *UDPTransport {
	return &UDPTransport{addr: addr, logger: logger}
}

func (t *UDPTransport) Start(ctx context.Context, handler Responder) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("udp transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("resolve udp address %s: %w", t.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return derr.Wrap(derr.KindIO, "please supply a free port number", err)
	}

	t.conn = conn
	t.stopCh = make(chan struct{})
	t.running = true

	t.logger.Info(map[string]any{"transport": "udp", "address": t.addr}, "transport started")
	go t.listenLoop(ctx, handler)
	return nil
}

func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopCh)
	err := t.conn.Close()
	t.running = false
	t.logger.Info(map[string]any{"transport": "udp", "address": t.addr}, "transport stopped")
	return err
}

func (t *UDPTransport) Address() string {
	return t.addr
}

// maxUDPQuery is large enough for any realistic downstream DNS query over
// UDP, including EDNS0-extended ones.
const maxUDPQuery = 65527

func (t *UDPTransport) listenLoop(ctx context.Context, handler Responder) {
	buffer := make([]byte, maxUDPQuery)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		n, clientAddr, err := t.conn.ReadFromUDP(buffer)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to read udp datagram")
			continue
		}

		request := make([]byte, n)
		copy(request, buffer[:n])
		go t.handleDatagram(ctx, request, clientAddr, handler)
	}
}

func (t *UDPTransport) handleDatagram(ctx context.Context, request []byte, clientAddr *net.UDPAddr, handler Responder) {
	response, ok := handler(ctx, request)
	if !ok {
		return
	}

	t.mu.RLock()
	conn := t.conn
	running := t.running
	t.mu.RUnlock()
	if !running {
		return
	}

	if _, err := conn.WriteToUDP(response, clientAddr); err != nil {
		t.logger.Error(map[string]any{
			"client": clientAddr.String(),
			"error":  err.Error(),
		}, "failed to write udp response")
	}
}
