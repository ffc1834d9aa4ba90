// Package mavlink frames and unframes MAVLink v2 packets.
//
// Only the framing is handled: start marker, header, payload, checksum and
// the optional signature. Payload fields stay opaque except for HEARTBEAT,
// whose system status drives arming detection.
//
//	frame := 0xFD len:u8 incompat:u8 compat:u8 seq:u8 sysid:u8 compid:u8 msgid:u24
//	         payload[len] checksum:u16 signature[13]?
//
// The checksum is CRC-16/MCRF4XX over everything after the start marker up
// to the end of the payload, followed by the message's CRC_EXTRA byte.
// Trailing zero bytes of a payload are dropped on the wire; field decoders
// pad the payload back with zeros.
package mavlink
