package framing

import (
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kordlabs/dnsrelay/internal/dnsrelay/derr"
)

func TestUDPRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewUDP(a)
	server := NewUDP(b)

	msg := []byte{0x12, 0x34, 0x01, 0x00, 0x00, 0x01}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, client.WriteMessage(msg))
	}()

	got, err := server.ReadMessage()
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestUDPWriteRejectsOversize(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewUDP(a)
	err := client.WriteMessage(make([]byte, maxUDPMessage+1))
	require.Error(t, err)
	assert.True(t, derr.Is(err, derr.KindFraming))
}

func TestTCPRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewTCP(a)
	server := NewTCP(b)

	msg := []byte{0xAB, 0xCD, 0x01, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, client.WriteMessage(msg))
	}()

	got, err := server.ReadMessage()
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestTCPMultipleMessagesSerially(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewTCP(a)
	server := NewTCP(b)

	msgs := [][]byte{
		{0x00, 0x01},
		{0x00, 0x02, 0x03, 0x04},
		{0x00, 0x05, 0x06},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, m := range msgs {
			require.NoError(t, client.WriteMessage(m))
		}
	}()

	for _, want := range msgs {
		got, err := server.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	<-done
}

func TestTCPShortReadOnPartialHeader(t *testing.T) {
	a, b := net.Pipe()
	server := NewTCP(b)

	go func() {
		a.Write([]byte{0x00})
		a.Close()
	}()

	_, err := server.ReadMessage()
	require.Error(t, err)
	assert.True(t, derr.Is(err, derr.KindFraming))
}

func TestTCPShortReadOnTruncatedPayload(t *testing.T) {
	a, b := net.Pipe()
	server := NewTCP(b)

	go func() {
		a.Write([]byte{0x00, 0x04, 0xAA})
		a.Close()
	}()

	_, err := server.ReadMessage()
	require.Error(t, err)
	assert.True(t, derr.Is(err, derr.KindFraming))
}

func TestTCPWriteRejectsOversize(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewTCP(a)
	err := client.WriteMessage(make([]byte, 0x10000))
	require.Error(t, err)
	assert.True(t, derr.Is(err, derr.KindFraming))
}

func TestTCPConcurrentWritesDoNotInterleave(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	client := NewTCP(a)
	server := NewTCP(b)

	const n = 20
	msgA := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	msgB := []byte{0xBB, 0xBB, 0xBB}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, client.WriteMessage(msgA))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			require.NoError(t, client.WriteMessage(msgB))
		}
	}()

	counts := map[int]int{len(msgA): 0, len(msgB): 0}
	for i := 0; i < 2*n; i++ {
		got, err := server.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, []byte{msgA[0], msgB[0]}, got[0], "frame must not be corrupted by interleaving")
		counts[len(got)]++
	}
	wg.Wait()
	assert.Equal(t, n, counts[len(msgA)])
	assert.Equal(t, n, counts[len(msgB)])
}
