package mavlink

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	MagicV2 byte = 0xFD

	headerLen    = 10
	checksumLen  = 2
	signatureLen = 13

	MaxPayloadLen = 255
	MaxFrameLen   = headerLen + MaxPayloadLen + checksumLen + signatureLen

	IncompatFlagSigned uint8 = 0x01
)

var byteOrder = binary.LittleEndian

var (
	// ErrIncomplete means the buffer ends inside a frame. Keep the
	// remaining bytes and retry once more data arrives.
	ErrIncomplete = errors.New("incomplete frame")

	ErrChecksum       = errors.New("frame checksum mismatch")
	ErrUnknownMessage = errors.New("unknown message id")
	ErrBadFlags       = errors.New("unsupported incompatibility flags")
	ErrPayloadLength  = errors.New("payload longer than 255 bytes")
)

// Header identifies the sender of a frame.
type Header struct {
	Sequence    uint8
	SystemID    uint8
	ComponentID uint8
}

type Frame struct {
	Header
	IncompatFlags uint8
	CompatFlags   uint8
	MessageID     uint32
	// Payload as received. Trailing zeros may be missing.
	Payload   []byte
	Signature []byte
}

// Codec frames and unframes MAVLink v2 packets of one dialect.
type Codec struct {
	dialect Dialect
}

func NewCodec(dialect Dialect) *Codec {
	return &Codec{dialect: dialect}
}

// Name returns the message name of the frame.
func (c *Codec) Name(f Frame) string {
	return c.dialect.Name(f.MessageID)
}

// Decode parses the first frame found in b. Bytes before the start marker
// are skipped. It returns the number of bytes consumed; the caller drops
// them whether or not an error is returned. With ErrIncomplete the
// unconsumed rest is the beginning of a frame.
func (c *Codec) Decode(b []byte) (Frame, int, error) {
	start := bytes.IndexByte(b, MagicV2)
	if start < 0 {
		return Frame{}, len(b), ErrIncomplete
	}
	raw := b[start:]
	if len(raw) < headerLen {
		return Frame{}, start, ErrIncomplete
	}
	payloadLen := int(raw[1])
	incompat := raw[2]
	if incompat&^IncompatFlagSigned != 0 {
		return Frame{}, start + 1, errors.Wrapf(ErrBadFlags, "0x%02x", incompat)
	}
	total := headerLen + payloadLen + checksumLen
	if incompat&IncompatFlagSigned != 0 {
		total += signatureLen
	}
	if len(raw) < total {
		return Frame{}, start, ErrIncomplete
	}

	msgID := uint32(raw[7]) | uint32(raw[8])<<8 | uint32(raw[9])<<16
	def, ok := c.dialect[msgID]
	if !ok {
		// Without CRC_EXTRA the frame cannot be told apart from a stray
		// marker, so only the marker is skipped.
		return Frame{}, start + 1, errors.Wrapf(ErrUnknownMessage, "%d", msgID)
	}
	crc := crcCalculate(raw[1:headerLen+payloadLen], crcInit)
	crc = crcAccumulate(def.CRCExtra, crc)
	if got := byteOrder.Uint16(raw[headerLen+payloadLen:]); got != crc {
		return Frame{}, start + 1, errors.Wrapf(ErrChecksum, "%s: got 0x%04x want 0x%04x", def.Name, got, crc)
	}

	f := Frame{
		Header: Header{
			Sequence:    raw[4],
			SystemID:    raw[5],
			ComponentID: raw[6],
		},
		IncompatFlags: incompat,
		CompatFlags:   raw[3],
		MessageID:     msgID,
		Payload:       append([]byte(nil), raw[headerLen:headerLen+payloadLen]...),
	}
	if incompat&IncompatFlagSigned != 0 {
		sigStart := headerLen + payloadLen + checksumLen
		f.Signature = append([]byte(nil), raw[sigStart:sigStart+signatureLen]...)
	}
	return f, start + total, nil
}

// Encode writes f as an unsigned frame. Trailing zeros of the payload are
// trimmed, keeping at least one byte.
func (c *Codec) Encode(f Frame) ([]byte, error) {
	def, ok := c.dialect[f.MessageID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "%d", f.MessageID)
	}
	payload := f.Payload
	for len(payload) > 1 && payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	if len(payload) > MaxPayloadLen {
		return nil, errors.Wrapf(ErrPayloadLength, "%s: %d bytes", def.Name, len(payload))
	}

	out := make([]byte, headerLen+len(payload)+checksumLen)
	out[0] = MagicV2
	out[1] = byte(len(payload))
	out[2] = 0
	out[3] = f.CompatFlags
	out[4] = f.Sequence
	out[5] = f.SystemID
	out[6] = f.ComponentID
	out[7] = byte(f.MessageID)
	out[8] = byte(f.MessageID >> 8)
	out[9] = byte(f.MessageID >> 16)
	copy(out[headerLen:], payload)

	crc := crcCalculate(out[1:headerLen+len(payload)], crcInit)
	crc = crcAccumulate(def.CRCExtra, crc)
	byteOrder.PutUint16(out[headerLen+len(payload):], crc)
	return out, nil
}

// Heartbeat extracts the HEARTBEAT fields when f carries one.
func (f Frame) Heartbeat() (Heartbeat, bool) {
	if f.MessageID != MsgIDHeartbeat {
		return Heartbeat{}, false
	}
	b := make([]byte, heartbeatLen)
	copy(b, f.Payload)
	return Heartbeat{
		CustomMode:     byteOrder.Uint32(b[0:4]),
		Type:           b[4],
		Autopilot:      b[5],
		BaseMode:       b[6],
		SystemStatus:   b[7],
		MavlinkVersion: b[8],
	}, true
}
