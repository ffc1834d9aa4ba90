package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPDialer_Dial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		b, _ := io.ReadAll(conn)
		received <- b
	}()

	conn, err := TCPDialer{}.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, WriteAll(conn, []byte("telemetry")))
	require.NoError(t, conn.Close())

	select {
	case b := <-received:
		assert.Equal(t, []byte("telemetry"), b)
	case <-time.After(2 * time.Second):
		t.Fatal("peer received nothing")
	}
}

func TestTCPDialer_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = TCPDialer{Timeout: time.Second}.Dial(context.Background(), addr)
	assert.True(t, errors.Is(err, persistence.ErrTransport))
}

func TestIsTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	_, err := a.Read(make([]byte, 1))
	assert.True(t, IsTimeout(err))
	assert.False(t, IsTimeout(io.EOF))
	assert.False(t, IsTimeout(nil))
}
