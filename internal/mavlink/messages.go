package mavlink

import "fmt"

// MessageInfo is what the framing layer needs to know about a message id.
type MessageInfo struct {
	Name     string
	CRCExtra byte
}

// Dialect maps message ids to their name and CRC_EXTRA.
type Dialect map[uint32]MessageInfo

const (
	MsgIDHeartbeat uint32 = 0

	// StateActive is MAV_STATE_ACTIVE: the vehicle is armed and operating.
	StateActive uint8 = 4

	heartbeatLen = 9
)

// Name returns the message name, or MSG_<id> when the dialect lacks it.
func (d Dialect) Name(id uint32) string {
	if def, ok := d[id]; ok {
		return def.Name
	}
	return fmt.Sprintf("MSG_%d", id)
}

// Heartbeat is the HEARTBEAT message (#0).
type Heartbeat struct {
	CustomMode     uint32
	Type           uint8
	Autopilot      uint8
	BaseMode       uint8
	SystemStatus   uint8
	MavlinkVersion uint8
}

// Active reports whether the system status is MAV_STATE_ACTIVE.
func (h Heartbeat) Active() bool {
	return h.SystemStatus == StateActive
}

func (h Heartbeat) payload() []byte {
	b := make([]byte, heartbeatLen)
	byteOrder.PutUint32(b[0:4], h.CustomMode)
	b[4] = h.Type
	b[5] = h.Autopilot
	b[6] = h.BaseMode
	b[7] = h.SystemStatus
	b[8] = h.MavlinkVersion
	return b
}

// HeartbeatFrame builds a HEARTBEAT frame.
func HeartbeatFrame(hdr Header, h Heartbeat) Frame {
	return Frame{Header: hdr, MessageID: MsgIDHeartbeat, Payload: h.payload()}
}
