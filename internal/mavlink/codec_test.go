package mavlink

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC_MCRF4XX(t *testing.T) {
	// CRC-16/MCRF4XX check value
	assert.Equal(t, uint16(0x6F91), crcCalculate([]byte("123456789"), crcInit))
}

func newTestCodec() *Codec {
	return NewCodec(ArduPilotMega)
}

func attitudeFrame(seq uint8) Frame {
	payload := make([]byte, 28)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	return Frame{
		Header:    Header{Sequence: seq, SystemID: 1, ComponentID: 1},
		MessageID: 30,
		Payload:   payload,
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec()
	want := attitudeFrame(42)
	raw, err := c.Encode(want)
	require.NoError(t, err)
	assert.Equal(t, MagicV2, raw[0])
	assert.Len(t, raw, headerLen+28+checksumLen)

	got, n, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, want.Header, got.Header)
	assert.Equal(t, want.MessageID, got.MessageID)
	assert.Equal(t, want.Payload, got.Payload)
	assert.Equal(t, "ATTITUDE", c.Name(got))
}

func TestCodec_HeartbeatTrailingZeros(t *testing.T) {
	c := newTestCodec()
	hb := Heartbeat{CustomMode: 0, Type: 2, Autopilot: 3, BaseMode: 81, SystemStatus: 3, MavlinkVersion: 0}
	raw, err := c.Encode(HeartbeatFrame(Header{SystemID: 1, ComponentID: 1}, hb))
	require.NoError(t, err)
	// mavlink_version 0 is trimmed from the wire
	assert.Equal(t, byte(8), raw[1])

	f, _, err := c.Decode(raw)
	require.NoError(t, err)
	got, ok := f.Heartbeat()
	require.True(t, ok)
	assert.Equal(t, hb, got)
	assert.False(t, got.Active())

	hb.SystemStatus = StateActive
	assert.True(t, hb.Active())

	_, ok = attitudeFrame(0).Heartbeat()
	assert.False(t, ok)
}

func TestCodec_DecodeStream(t *testing.T) {
	c := newTestCodec()
	var stream []byte
	stream = append(stream, 0x00, 0x13, 0x37) // garbage before the first marker
	for i := 0; i < 3; i++ {
		raw, err := c.Encode(attitudeFrame(uint8(i)))
		require.NoError(t, err)
		stream = append(stream, raw...)
	}

	seqs := make([]uint8, 0)
	for len(stream) > 0 {
		f, n, err := c.Decode(stream)
		stream = stream[n:]
		if errors.Is(err, ErrIncomplete) {
			break
		}
		require.NoError(t, err)
		seqs = append(seqs, f.Sequence)
	}
	assert.Equal(t, []uint8{0, 1, 2}, seqs)
	assert.Empty(t, stream)
}

func TestCodec_DecodeIncomplete(t *testing.T) {
	c := newTestCodec()
	raw, err := c.Encode(attitudeFrame(7))
	require.NoError(t, err)

	for cut := 1; cut < len(raw); cut++ {
		_, n, err := c.Decode(raw[:cut])
		assert.Equal(t, ErrIncomplete, err, "cut at %d", cut)
		assert.Equal(t, 0, n, "cut at %d", cut)
	}

	_, n, err := c.Decode([]byte{1, 2, 3})
	assert.Equal(t, ErrIncomplete, err)
	assert.Equal(t, 3, n)
}

func TestCodec_DecodeErrors(t *testing.T) {
	c := newTestCodec()
	raw, err := c.Encode(attitudeFrame(1))
	require.NoError(t, err)

	corrupt := append([]byte(nil), raw...)
	corrupt[headerLen+3] ^= 0xFF
	_, n, err := c.Decode(corrupt)
	assert.True(t, errors.Is(err, ErrChecksum))
	assert.Equal(t, 1, n)

	unknown := append([]byte(nil), raw...)
	unknown[7] = 0xEE
	unknown[8] = 0xEE
	_, n, err = c.Decode(unknown)
	assert.True(t, errors.Is(err, ErrUnknownMessage))
	assert.Equal(t, 1, n)

	flags := append([]byte(nil), raw...)
	flags[2] = 0x80
	_, _, err = c.Decode(flags)
	assert.True(t, errors.Is(err, ErrBadFlags))

	_, err = c.Encode(Frame{MessageID: 0xFFFF})
	assert.True(t, errors.Is(err, ErrUnknownMessage))
	long := make([]byte, 300)
	for i := range long {
		long[i] = 0xAA
	}
	_, err = c.Encode(Frame{MessageID: 30, Payload: long})
	assert.True(t, errors.Is(err, ErrPayloadLength))
}

func TestCodec_DecodeSigned(t *testing.T) {
	c := newTestCodec()
	raw, err := c.Encode(attitudeFrame(3))
	require.NoError(t, err)

	// The signature is not part of the checksum.
	signed := append([]byte(nil), raw...)
	signed[2] = IncompatFlagSigned
	crc := crcCalculate(signed[1:len(signed)-checksumLen], crcInit)
	crc = crcAccumulate(ArduPilotMega[30].CRCExtra, crc)
	byteOrder.PutUint16(signed[len(signed)-checksumLen:], crc)
	sig := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}
	signed = append(signed, sig...)

	f, n, err := c.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, len(signed), n)
	assert.Equal(t, sig, f.Signature)

	// re-encoding drops the signature
	out, err := c.Encode(f)
	require.NoError(t, err)
	assert.Equal(t, byte(0), out[2])
	assert.Len(t, out, len(raw))
}

func TestDialect_Name(t *testing.T) {
	assert.Equal(t, "HEARTBEAT", ArduPilotMega.Name(0))
	assert.Equal(t, "GPS_RAW_INT", ArduPilotMega.Name(24))
	assert.Equal(t, "MSG_9999", ArduPilotMega.Name(9999))
}

func TestDialect_ArduPilotStreams(t *testing.T) {
	for id, want := range map[uint32]MessageInfo{
		87:    {"POSITION_TARGET_GLOBAL_INT", 150},
		132:   {"DISTANCE_SENSOR", 85},
		136:   {"TERRAIN_REPORT", 1},
		158:   {"MOUNT_STATUS", 134},
		173:   {"RANGEFINDER", 83},
		181:   {"BATTERY2", 174},
		11030: {"ESC_TELEMETRY_1_TO_4", 144},
	} {
		assert.Equal(t, want, ArduPilotMega[id], "message %d", id)
	}

	ids := make(map[uint32]bool)
	for _, list := range [][]message{commonMessages, ardupilotMessages} {
		for _, m := range list {
			assert.False(t, ids[m.id], "id %d listed twice", m.id)
			ids[m.id] = true
		}
	}
	assert.Len(t, ArduPilotMega, len(ids))

	names := make(map[string]uint32)
	for id, info := range ArduPilotMega {
		if other, ok := names[info.Name]; ok {
			t.Errorf("%s used by %d and %d", info.Name, other, id)
		}
		names[info.Name] = id
	}
}

func TestCodec_DecodeExtendedIDs(t *testing.T) {
	c := newTestCodec()
	frame := Frame{
		Header:    Header{Sequence: 5, SystemID: 1, ComponentID: 1},
		MessageID: 11030,
		Payload:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	raw, err := c.Encode(frame)
	require.NoError(t, err)

	got, used, err := c.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, len(raw), used)
	assert.Equal(t, uint32(11030), got.MessageID)
	assert.Equal(t, "ESC_TELEMETRY_1_TO_4", c.Name(got))
}
