package transport

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/common/log"
)

func writeFramed(t *testing.T, conn net.Conn, msg []byte) {
	t.Helper()
	var header [2]byte
	binary.BigEndian.PutUint16(header[:], uint16(len(msg)))
	_, err := conn.Write(header[:])
	require.NoError(t, err)
	_, err = conn.Write(msg)
	require.NoError(t, err)
}

func readFramed(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	var header [2]byte
	_, err := conn.Read(header[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint16(header[:])
	buf := make([]byte, length)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	return buf
}

func TestTCPTransportEchoesMultipleRequestsOnOneConnection(t *testing.T) {
	tt := NewTCPTransport("127.0.0.1:0", log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := func(ctx context.Context, req []byte) ([]byte, bool) {
		resp := make([]byte, len(req))
		copy(resp, req)
		return resp, true
	}
	require.NoError(t, tt.Start(ctx, echo))
	defer tt.Stop()

	conn, err := net.DialTimeout("tcp", tt.listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 3; i++ {
		msg := []byte{byte(i), 0xFF}
		writeFramed(t, conn, msg)
		got := readFramed(t, conn)
		assert.Equal(t, msg, got)
	}
}

func TestTCPTransportDropsSkipWritingResponse(t *testing.T) {
	tt := NewTCPTransport("127.0.0.1:0", log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	handler := func(ctx context.Context, req []byte) ([]byte, bool) {
		calls++
		if calls == 1 {
			return nil, false
		}
		return req, true
	}
	require.NoError(t, tt.Start(ctx, handler))
	defer tt.Stop()

	conn, err := net.DialTimeout("tcp", tt.listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	writeFramed(t, conn, []byte{0x01})
	writeFramed(t, conn, []byte{0x02})

	// Only the second request produces a response; it should be the only
	// frame that arrives.
	got := readFramed(t, conn)
	assert.Equal(t, []byte{0x02}, got)
}

func TestTCPTransportFramingErrorClosesOnlyThatConnection(t *testing.T) {
	tt := NewTCPTransport("127.0.0.1:0", log.NewNoopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	echo := func(ctx context.Context, req []byte) ([]byte, bool) { return req, true }
	require.NoError(t, tt.Start(ctx, echo))
	defer tt.Stop()

	bad, err := net.DialTimeout("tcp", tt.listener.Addr().String(), time.Second)
	require.NoError(t, err)
	// Claim a 10-byte message, send only 2, then close: a short read.
	bad.Write([]byte{0x00, 0x0A, 0x01, 0x02})
	bad.Close()

	good, err := net.DialTimeout("tcp", tt.listener.Addr().String(), time.Second)
	require.NoError(t, err)
	defer good.Close()
	writeFramed(t, good, []byte{0xAB})
	got := readFramed(t, good)
	assert.Equal(t, []byte{0xAB}, got)
}

func TestTCPTransportDoubleStartFails(t *testing.T) {
	tt := NewTCPTransport("127.0.0.1:0", log.NewNoopLogger())
	ctx := context.Background()
	echo := func(ctx context.Context, req []byte) ([]byte, bool) { return req, true }
	require.NoError(t, tt.Start(ctx, echo))
	defer tt.Stop()
	assert.Error(t, tt.Start(ctx, echo))
}
