package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/snowflk/blackbox/internal/capture"
	"github.com/snowflk/blackbox/internal/mavlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captured(msgType string, id uint32, seq uint8) capture.LoggedMessage {
	return capture.LoggedMessage{
		At:     time.Now(),
		Offset: int64(seq) * 50,
		Type:   msgType,
		Frame: mavlink.Frame{
			Header:    mavlink.Header{Sequence: seq, SystemID: 1, ComponentID: 1},
			MessageID: id,
			Payload:   []byte{seq},
		},
		Armed: true,
	}
}

func TestMonitor_TracksLatestPerType(t *testing.T) {
	m := New(Options{})
	m.ArmStateChanged(capture.Armed, time.Now())
	m.MessageCaptured(captured("ATTITUDE", 30, 1))
	m.MessageCaptured(captured("VFR_HUD", 74, 2))
	m.MessageCaptured(captured("ATTITUDE", 30, 3))

	latest, ok := m.Latest("ATTITUDE")
	require.True(t, ok)
	assert.Equal(t, uint8(3), latest.Sequence)
	assert.Equal(t, uint64(2), latest.Count)

	status := m.Status()
	assert.True(t, status.Armed)
	assert.Equal(t, uint64(1), status.Transitions)
	assert.Equal(t, uint64(3), status.Messages)
	assert.Equal(t, 2, status.ActiveTypes)

	messages := m.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "ATTITUDE", messages[0].Type)
	assert.Equal(t, "VFR_HUD", messages[1].Type)
}

func TestMonitor_StaleTypesExpire(t *testing.T) {
	m := New(Options{TTL: 20 * time.Millisecond})
	m.MessageCaptured(captured("ATTITUDE", 30, 1))
	_, ok := m.Latest("ATTITUDE")
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)
	_, ok = m.Latest("ATTITUDE")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), m.Status().Messages)
}

func TestMonitor_HTTP(t *testing.T) {
	m := New(Options{})
	m.ArmStateChanged(capture.Armed, time.Now())
	m.ArmStateChanged(capture.Disarmed, time.Now())
	m.MessageCaptured(captured("GPS_RAW_INT", 24, 7))

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	get := func(path string, v interface{}) int {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		return resp.StatusCode
	}

	var status Status
	assert.Equal(t, http.StatusOK, get("/status", &status))
	assert.False(t, status.Armed)
	assert.Equal(t, uint64(2), status.Transitions)

	var messages []Snapshot
	assert.Equal(t, http.StatusOK, get("/messages", &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, uint32(24), messages[0].MessageID)

	var snapshot Snapshot
	assert.Equal(t, http.StatusOK, get("/messages/GPS_RAW_INT", &snapshot))
	assert.Equal(t, uint8(7), snapshot.Sequence)
	assert.Equal(t, []byte{7}, snapshot.Payload)

	var failure map[string]string
	assert.Equal(t, http.StatusNotFound, get("/messages/ATTITUDE", &failure))
	assert.Contains(t, failure["error"], "ATTITUDE")

	resp, err := http.Post(server.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
