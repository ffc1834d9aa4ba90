package bbin

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
)

// File layout, all integers little-endian and fixed width:
//
//	file        := logHeader record* index footer
//	logHeader   := magic[4] version:u16 startTimestamp:i64
//	record      := timestamp:i64 sequence:u8 systemID:u8 componentID:u8 payloadLen:u16 payload[payloadLen]
//	index       := count:u64 indexEntry[count]
//	indexEntry  := labelLen:u64 label[labelLen] offset:u64 timestamp:i64
//	footer      := indexOffset:u64
//
// Records are self-delimiting, so index and footer are optional for
// sequential reads. A capture killed mid-write leaves a file without them.
const (
	FormatVersion uint16 = 10 // 1.0

	SizeLogHeader     = 4 + 2 + 8
	SizeRecordHeader  = 8 + 1 + 1 + 1 + 2
	SizeFooter        = 8
	sizeIndexCount    = 8
	minSizeIndexEntry = 8 + 8 + 8

	MaxPayloadSize = 1<<16 - 1
	// MaxLabelLen bounds the message type label of an index entry.
	MaxLabelLen = 255
)

var (
	Magic        = [4]byte{'B', 'B', 'I', 'N'}
	ByteOrdering = binary.LittleEndian
)

type LogHeader struct {
	Magic          [4]byte
	Version        uint16
	StartTimestamp int64 // unix ms
}

// RecordHeader precedes every payload in the file.
type RecordHeader struct {
	Timestamp   int64 // unix ms at capture
	Sequence    uint8
	SystemID    uint8
	ComponentID uint8
	PayloadLen  uint16
}

type Record struct {
	RecordHeader
	Payload []byte
}

type IndexEntry struct {
	MessageType string
	Offset      uint64
	Timestamp   int64
}

func (h LogHeader) bytes() []byte {
	b := make([]byte, SizeLogHeader)
	copy(b[0:4], h.Magic[:])
	ByteOrdering.PutUint16(b[4:6], h.Version)
	ByteOrdering.PutUint64(b[6:14], uint64(h.StartTimestamp))
	return b
}

// readLogHeader fails with ErrInvalidFormat on a short header or a magic mismatch.
func readLogHeader(r io.Reader) (LogHeader, error) {
	var b [SizeLogHeader]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return LogHeader{}, errors.Wrapf(persistence.ErrInvalidFormat, "read log header: %v", err)
	}
	h := LogHeader{
		Version:        ByteOrdering.Uint16(b[4:6]),
		StartTimestamp: int64(ByteOrdering.Uint64(b[6:14])),
	}
	copy(h.Magic[:], b[0:4])
	if h.Magic != Magic {
		return h, errors.Wrapf(persistence.ErrInvalidFormat, "bad magic %q", h.Magic[:])
	}
	return h, nil
}

func (h RecordHeader) putBytes(b []byte) {
	ByteOrdering.PutUint64(b[0:8], uint64(h.Timestamp))
	b[8] = h.Sequence
	b[9] = h.SystemID
	b[10] = h.ComponentID
	ByteOrdering.PutUint16(b[11:13], h.PayloadLen)
}

// readRecordHeader returns io.EOF untouched when no byte at all is left,
// and ErrTruncated when the header is cut short.
func readRecordHeader(r io.Reader) (RecordHeader, error) {
	var b [SizeRecordHeader]byte
	n, err := io.ReadFull(r, b[:])
	if err == io.EOF {
		return RecordHeader{}, io.EOF
	} else if err != nil {
		return RecordHeader{}, errors.Wrapf(persistence.ErrTruncated, "record header: got %d of %d bytes", n, SizeRecordHeader)
	}
	return RecordHeader{
		Timestamp:   int64(ByteOrdering.Uint64(b[0:8])),
		Sequence:    b[8],
		SystemID:    b[9],
		ComponentID: b[10],
		PayloadLen:  ByteOrdering.Uint16(b[11:13]),
	}, nil
}

func (e IndexEntry) size() int {
	return minSizeIndexEntry + len(e.MessageType)
}

// encodeTrailer serializes the index followed by the footer.
func encodeTrailer(entries []IndexEntry, indexOffset int64) []byte {
	size := sizeIndexCount + SizeFooter
	for _, e := range entries {
		size += e.size()
	}
	b := make([]byte, size)
	ByteOrdering.PutUint64(b[0:8], uint64(len(entries)))
	pos := sizeIndexCount
	for _, e := range entries {
		ByteOrdering.PutUint64(b[pos:], uint64(len(e.MessageType)))
		pos += 8
		pos += copy(b[pos:], e.MessageType)
		ByteOrdering.PutUint64(b[pos:], e.Offset)
		pos += 8
		ByteOrdering.PutUint64(b[pos:], uint64(e.Timestamp))
		pos += 8
	}
	ByteOrdering.PutUint64(b[pos:], uint64(indexOffset))
	return b
}
