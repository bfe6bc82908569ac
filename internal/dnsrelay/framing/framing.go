// Package framing turns an opaque byte stream into DNS message boundaries.
// UDP frames are a passthrough (one datagram, one message); TCP frames carry
// a 2-byte big-endian length prefix per RFC 1035 §4.2.2.
package framing

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
)

// maxUDPMessage is the largest DNS message that may cross the wire on a
// single UDP datagram write (spec: oversize above this is a permanent error).
const maxUDPMessage = 65527

// FramedConn delivers and accepts whole DNS messages over an underlying
// byte-stream or datagram connection. Read is serialised by a connection-
// local read lock; Write is serialised by a connection-local write lock so
// that concurrent callers never interleave frames.
type FramedConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(buf []byte) error
	Close() error
}

// udpFramedConn treats each datagram as exactly one message.
type udpFramedConn struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewUDP wraps a connected UDP socket (as returned by a DialFunc or accepted
// server-side) in the FramedConn contract.
func NewUDP(conn net.Conn) FramedConn {
	return &udpFramedConn{conn: conn}
}

func (c *udpFramedConn) ReadMessage() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	buf := make([]byte, maxUDPMessage)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, derr.Wrap(derr.KindIO, "framing: udp read", err)
	}
	return buf[:n], nil
}

func (c *udpFramedConn) WriteMessage(buf []byte) error {
	if len(buf) > maxUDPMessage {
		return derr.New(derr.KindFraming, "framing: message too large for a single datagram")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(buf); err != nil {
		return derr.Wrap(derr.KindIO, "framing: udp write", err)
	}
	return nil
}

func (c *udpFramedConn) Close() error {
	return c.conn.Close()
}

// tcpFramedConn prefixes every message with its big-endian 16-bit length.
type tcpFramedConn struct {
	conn net.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewTCP wraps a stream connection (client-dialed or server-accepted) in the
// FramedConn contract, applying RFC 1035 §4.2.2 length-prefix framing.
func NewTCP(conn net.Conn) FramedConn {
	return &tcpFramedConn{conn: conn}
}

func (c *tcpFramedConn) ReadMessage() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var header [2]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, shortReadErr(err)
	}

	length := binary.BigEndian.Uint16(header[:])
	buf := make([]byte, length)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, derr.New(derr.KindFraming, "framing: short read")
	}
	return buf, nil
}

func (c *tcpFramedConn) WriteMessage(buf []byte) error {
	if len(buf) > 0xFFFF {
		return derr.New(derr.KindFraming, "framing: message too large for a 16-bit length prefix")
	}

	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(buf)))

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.conn.Write(header[:]); err != nil {
		return derr.Wrap(derr.KindIO, "framing: tcp write header", err)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return derr.Wrap(derr.KindIO, "framing: tcp write payload", err)
	}
	return nil
}

func (c *tcpFramedConn) Close() error {
	return c.conn.Close()
}

// shortReadErr distinguishes a clean EOF (no bytes read at all, i.e. the
// peer closed between messages) from a genuine short read mid-frame, which
// the spec calls out by name.
func shortReadErr(err error) error {
	if err == io.EOF {
		return derr.Wrap(derr.KindIO, "framing: eof", err)
	}
	return derr.New(derr.KindFraming, "framing: short read")
}
