// Package upstream implements the per-upstream persistent connection:
// connection pooling, transaction-id remapping, a dispatcher task that
// demultiplexes responses back to waiting callers, and an idle-disconnect
// timer.
package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/clock"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/domain"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/framing"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/ids"
	"github.com/kordlabs/dnsrelay/internal/dnsrelay/transport"
)

// idleTimeout is how long a connection may sit unused before Client tears
// it down.
const idleTimeout = 30 * time.Second

// rpcResult is delivered to a waiting rpc caller by either the dispatcher
// (success) or disconnect/idle-expiry (failure).
type rpcResult struct {
	buf []byte
	err error
}

// Client is a persistent connection to a single upstream nameserver. The
// zero value is not usable; construct with New.
type Client struct {
	address domain.Address
	network string // "udp" or "tcp"
	dial    transport.DialFunc
	clock   clock.Clock
	logger  log.Logger

	freeIDs *ids.Allocator

	mu        sync.Mutex
	conn      framing.FramedConn
	idleTimer clock.Timer

	pendingMu sync.Mutex
	pending   map[uint16]chan rpcResult
}

// New constructs a Client bound to address. Connecting is lazy: this does
// not open a socket, the first RPC call does.
func New(address domain.Address, network string, dial transport.DialFunc, clk clock.Clock, logger log.Logger) *Client {
	return &Client{
		address: address,
		network: network,
		dial:    dial,
		clock:   clk,
		logger:  logger,
		freeIDs: ids.New(),
		pending: make(map[uint16]chan rpcResult),
	}
}

// Address returns the upstream address this client is bound to.
func (c *Client) Address() domain.Address {
	return c.address
}

// RPC sends exactly one query and returns exactly one response. It blocks
// while the connection is being established, while ids are exhausted, or
// while the response is outstanding.
func (c *Client) RPC(ctx context.Context, buf []byte) ([]byte, error) {
	clientID, err := domain.MessageID(buf)
	if err != nil {
		return nil, derr.Wrap(derr.KindParse, "upstream: failed to parse request", err)
	}
	if _, err := domain.ParseQuestion(buf); err != nil {
		return nil, derr.Wrap(derr.KindParse, "upstream: failed to parse request", err)
	}

	upstreamID, err := c.freeIDs.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.SetMessageID(buf, upstreamID); err != nil {
		c.freeIDs.Put(upstreamID)
		return nil, derr.Wrap(derr.KindParse, "upstream: failed to parse request", err)
	}

	resultCh := c.register(upstreamID)

	framed, err := c.getConn(ctx)
	if err != nil {
		c.unregister(upstreamID)
		c.freeIDs.Put(upstreamID)
		return nil, err
	}

	if writeErr := framed.WriteMessage(buf); writeErr != nil {
		var newCh chan rpcResult
		upstreamID, newCh, framed, err = c.retryAfterWriteFailure(ctx, buf, upstreamID)
		if err != nil {
			return nil, err
		}
		// A nil newCh means a concurrent disconnect already claimed and
		// resolved the original pending entry (it raced our failed write);
		// resultCh already has that outcome buffered, so fall through to
		// the select below unchanged instead of retrying.
		if newCh != nil {
			resultCh = newCh
		}
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		if err := domain.SetMessageID(res.buf, clientID); err != nil {
			return nil, derr.Wrap(derr.KindParse, "upstream: failed to parse response", err)
		}
		return res.buf, nil
	case <-ctx.Done():
		if c.unregister(upstreamID) {
			c.freeIDs.Put(upstreamID)
		}
		return nil, ctx.Err()
	}
}

// retryAfterWriteFailure performs the one retry a failed write gets:
// disconnect, acquire a fresh id and connection, and write once more. The
// caller's original pending entry is removed first so disconnect's fail-all
// does not resolve it with a spurious "connection closed" error.
func (c *Client) retryAfterWriteFailure(ctx context.Context, buf []byte, oldID uint16) (uint16, chan rpcResult, framing.FramedConn, error) {
	if !c.unregister(oldID) {
		// A concurrent disconnect (idle timeout, or another rpc's failed
		// write) already popped and resolved this id; nothing to retry.
		return oldID, nil, nil, nil
	}
	c.freeIDs.Put(oldID)
	c.disconnect()

	newID, err := c.freeIDs.Get(ctx)
	if err != nil {
		return 0, nil, nil, err
	}
	if err := domain.SetMessageID(buf, newID); err != nil {
		c.freeIDs.Put(newID)
		return 0, nil, nil, derr.Wrap(derr.KindParse, "upstream: failed to parse request", err)
	}

	resultCh := c.register(newID)

	framed, err := c.getConn(ctx)
	if err != nil {
		c.unregister(newID)
		c.freeIDs.Put(newID)
		return 0, nil, nil, err
	}

	if err := framed.WriteMessage(buf); err != nil {
		c.unregister(newID)
		c.freeIDs.Put(newID)
		return 0, nil, nil, err
	}

	return newID, resultCh, framed, nil
}

func (c *Client) register(id uint16) chan rpcResult {
	ch := make(chan rpcResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

// unregister removes id from pending if still present, reporting whether it
// did so. false means the dispatcher (or a disconnect) already claimed it.
func (c *Client) unregister(id uint16) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Client) popPending(id uint16) (chan rpcResult, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return ch, ok
}

// getConn reuses a live connection or dials a new one, spawning its
// dispatcher, and re-arms the idle timer whenever it returns a connection.
// A failed dial leaves the idle timer stopped.
func (c *Client) getConn(ctx context.Context) (framing.FramedConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}

	if c.conn != nil {
		c.armIdleTimerLocked()
		return c.conn, nil
	}

	netConn, err := c.dial(ctx, c.network, c.address.String())
	if err != nil {
		return nil, derr.Wrap(derr.KindIO, "upstream: connect failed", err)
	}

	var framed framing.FramedConn
	if c.network == "tcp" {
		framed = framing.NewTCP(netConn)
	} else {
		framed = framing.NewUDP(netConn)
	}
	c.conn = framed
	go c.dispatch(framed)

	c.armIdleTimerLocked()
	return framed, nil
}

// armIdleTimerLocked must be called with c.mu held. It reuses a single
// long-lived Timer (and its watcher goroutine) across the client's
// lifetime, rescheduling via Reset rather than allocating a new Timer per
// connection, since a Timer's channel identity never changes.
func (c *Client) armIdleTimerLocked() {
	if c.idleTimer == nil {
		c.idleTimer = c.clock.NewTimer(idleTimeout)
		go c.watchIdleTimer(c.idleTimer)
		return
	}
	c.idleTimer.Reset(idleTimeout)
}

func (c *Client) watchIdleTimer(timer clock.Timer) {
	for range timer.C() {
		c.logger.Debug(map[string]any{"address": c.address.String()}, "upstream idle timeout, disconnecting")
		c.disconnect()
	}
}

// Disconnect terminates the connection if any and fails all pending
// waiters. Idempotent.
func (c *Client) Disconnect() {
	c.disconnect()
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}

	c.pendingMu.Lock()
	snapshot := c.pending
	c.pending = make(map[uint16]chan rpcResult)
	c.pendingMu.Unlock()

	for id, ch := range snapshot {
		c.freeIDs.Put(id)
		select {
		case ch <- rpcResult{err: derr.ErrConnectionClosed}:
		default:
		}
	}

	if err := conn.Close(); err != nil {
		c.logger.Debug(map[string]any{
			"address": c.address.String(),
			"error":   err.Error(),
		}, "error closing upstream connection")
	}
}

// dispatch is the long-lived per-connection task: read framed responses,
// remap ids back to waiting callers, drop strays.
func (c *Client) dispatch(framed framing.FramedConn) {
	for {
		buf, err := framed.ReadMessage()
		if err != nil {
			// A connection that disconnect already replaced must not tear
			// down its successor.
			c.mu.Lock()
			current := c.conn == framed
			c.mu.Unlock()
			if current {
				c.disconnect()
			}
			return
		}

		id, err := domain.MessageID(buf)
		if err != nil {
			c.logger.Error(map[string]any{
				"address": c.address.String(),
				"error":   err.Error(),
			}, "dispatcher: unparseable response, terminating connection")
			c.disconnect()
			return
		}

		ch, ok := c.popPending(id)
		if !ok {
			c.logger.Debug(map[string]any{
				"address": c.address.String(),
				"id":      id,
			}, "dispatcher: stray response, dropping")
			continue
		}
		c.freeIDs.Put(id)
		select {
		case ch <- rpcResult{buf: buf}:
		default:
		}
	}
}
