package main

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/mavlink"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/persistence/boltstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) string {
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(append([]string{"blackbox", "--log-level", "warn"}, args...)))
	return out.String()
}

func encode(t *testing.T, f mavlink.Frame) []byte {
	raw, err := codec.Encode(f)
	require.NoError(t, err)
	return raw
}

func telemetry(t *testing.T) []byte {
	hdr := mavlink.Header{SystemID: 1, ComponentID: 1}
	var stream []byte
	stream = append(stream, encode(t, mavlink.HeartbeatFrame(hdr, mavlink.Heartbeat{Type: 2, SystemStatus: 3, MavlinkVersion: 3}))...)
	stream = append(stream, encode(t, mavlink.Frame{Header: hdr, MessageID: 30, Payload: []byte{1, 2, 3, 4}})...)
	stream = append(stream, encode(t, mavlink.HeartbeatFrame(hdr, mavlink.Heartbeat{Type: 2, SystemStatus: mavlink.StateActive, MavlinkVersion: 3}))...)
	for i := 0; i < 3; i++ {
		hdr.Sequence = uint8(10 + i)
		stream = append(stream, encode(t, mavlink.Frame{Header: hdr, MessageID: 24, Payload: []byte{byte(i + 1), 9, 9}})...)
	}
	return stream
}

// serveOnce accepts one connection, sends payload and hangs up.
func serveOnce(t *testing.T, payload []byte) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write(payload)
		_ = conn.Close()
	}()
	return ln.Addr().String()
}

func TestCaptureThenInspect(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "flight.bbin")
	catalog := filepath.Join(dir, "catalog.db")
	addr := serveOnce(t, telemetry(t))

	runApp(t, "capture", "--armed-only", "--out", logPath, "--catalog", catalog, addr)

	r, err := bbin.Open(logPath)
	require.NoError(t, err)
	records, err := bbin.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, uint8(10+i), rec.Sequence)
	}

	keeper, err := boltstore.Open(catalog)
	require.NoError(t, err)
	sessions, err := keeper.FindSessions(persistence.Pattern("*flight.bbin"))
	require.NoError(t, err)
	require.NoError(t, keeper.Close())
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Finished())
	assert.Equal(t, persistence.SessionStats{Records: 3, Transitions: 1, Dropped: 1}, sessions[0].SessionStats)

	out := runApp(t, "read", "--filter", "GPS", logPath)
	assert.Contains(t, out, "GPS_RAW_INT seq=10")
	assert.Contains(t, out, "3 messages")

	out = runApp(t, "index", logPath)
	assert.Contains(t, out, "3 entries")
	assert.Contains(t, out, "GPS_RAW_INT")

	out = runApp(t, "sessions", "--catalog", catalog)
	assert.Contains(t, out, sessions[0].ID)
	assert.Contains(t, out, logPath)
}

// serveUntil accepts one connection, sends payload and holds the
// connection open until release is closed.
func serveUntil(t *testing.T, payload []byte, release <-chan struct{}) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write(payload)
		<-release
	}()
	return ln.Addr().String()
}

func TestSessionsDuringCapture(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "live.bbin")
	catalog := filepath.Join(dir, "catalog.db")
	release := make(chan struct{})
	addr := serveUntil(t, telemetry(t), release)

	captured := make(chan error, 1)
	go func() {
		app := newApp()
		app.Writer = &bytes.Buffer{}
		captured <- app.Run([]string{"blackbox", "--log-level", "warn", "capture", "--out", logPath, "--catalog", catalog, addr})
	}()

	// listing must not wait for the capture to release the catalog
	listed := func() bool {
		var buf bytes.Buffer
		app := newApp()
		app.Writer = &buf
		err := app.Run([]string{"blackbox", "--log-level", "warn", "sessions", "--catalog", catalog})
		return err == nil && strings.Contains(buf.String(), logPath) && strings.Contains(buf.String(), "running")
	}
	assert.Eventually(t, listed, 5*time.Second, 20*time.Millisecond)

	close(release)
	select {
	case err := <-captured:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("capture did not stop")
	}
	out := runApp(t, "sessions", "--catalog", catalog)
	assert.Contains(t, out, logPath)
	assert.NotContains(t, out, "running")
}

func TestCaptureRejectsUnwritableOutputBeforeDialing(t *testing.T) {
	dir := t.TempDir()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	accepted := make(chan struct{}, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			accepted <- struct{}{}
			conn.Close()
		}
	}()

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err = app.Run([]string{"blackbox", "--log-level", "warn", "capture",
		"--out", filepath.Join(dir, "missing", "flight.bbin"),
		"--catalog", filepath.Join(dir, "catalog.db"),
		ln.Addr().String(),
	})
	assert.True(t, errors.Is(err, persistence.ErrConfig))
	select {
	case <-accepted:
		t.Error("capture dialed before checking the output path")
	case <-time.After(100 * time.Millisecond):
	}
	_, err = os.Stat(filepath.Join(dir, "catalog.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestReplayRejectsBadSpeed(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run([]string{"blackbox", "replay", "--speed", "0", "missing.bbin", "127.0.0.1:1"})
	assert.True(t, errors.Is(err, persistence.ErrConfig))
}
