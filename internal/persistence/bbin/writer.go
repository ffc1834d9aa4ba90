package bbin

import (
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/persistence"
)

// Writer appends records to a log file.
//
// Every Append goes straight to the file as a single write of header and
// payload, so an abrupt stop loses at most the record being written. The
// index is kept in memory and only reaches the file on Finalize.
type Writer struct {
	mu sync.Mutex

	f      *os.File
	path   string
	header LogHeader

	// position is the byte offset the next record will be written at
	position int64
	index    []IndexEntry

	finalized bool

	// err is the first write failure; the file grammar cannot be trusted after it
	err error
}

// Create truncates or creates the file at path and writes the log header
// stamped with the current time.
func Create(path string) (*Writer, error) {
	return create(path, time.Now())
}

func create(path string, start time.Time) (*Writer, error) {
	if path == "" {
		return nil, errors.Wrap(persistence.ErrConfig, "log path cannot be empty")
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(persistence.ErrConfig, "cannot create log file: %v", err)
	}
	header := LogHeader{
		Magic:          Magic,
		Version:        FormatVersion,
		StartTimestamp: start.UnixMilli(),
	}
	if _, err := file.Write(header.bytes()); err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to write log header")
	}
	log.Infof("open log writer at %s", path)
	return &Writer{
		f:        file,
		path:     path,
		header:   header,
		position: SizeLogHeader,
		index:    make([]IndexEntry, 0),
	}, nil
}

// Append writes one record and remembers its offset for the index.
// PayloadLen of hdr is ignored and derived from payload.
// Returns the offset the record was written at.
func (w *Writer) Append(hdr RecordHeader, messageType string, payload []byte) (int64, error) {
	if len(payload) > MaxPayloadSize {
		return 0, errors.Wrapf(persistence.ErrPayloadTooLarge, "%d bytes", len(payload))
	}
	if len(messageType) > MaxLabelLen {
		return 0, errors.Wrapf(persistence.ErrPayloadTooLarge, "message type label of %d bytes", len(messageType))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return 0, persistence.ErrWriterFinalized
	}
	if w.err != nil {
		return 0, w.err
	}

	hdr.PayloadLen = uint16(len(payload))
	buf := make([]byte, SizeRecordHeader+len(payload))
	hdr.putBytes(buf)
	copy(buf[SizeRecordHeader:], payload)

	offset := w.position
	if _, err := w.f.Write(buf); err != nil {
		w.err = errors.Wrapf(err, "failed to append record at offset %d", offset)
		return 0, w.err
	}
	w.index = append(w.index, IndexEntry{
		MessageType: messageType,
		Offset:      uint64(offset),
		Timestamp:   hdr.Timestamp,
	})
	w.position += int64(len(buf))
	return offset, nil
}

// Finalize writes the index and the footer after the last record, syncs and
// closes the file. It must be called exactly once.
func (w *Writer) Finalize() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finalized {
		return persistence.ErrWriterFinalized
	}
	w.finalized = true
	defer w.f.Close()

	if w.err != nil {
		return errors.Wrap(w.err, "log left without index")
	}
	if _, err := w.f.Write(encodeTrailer(w.index, w.position)); err != nil {
		return errors.Wrap(err, "failed to write index")
	}
	if err := w.f.Sync(); err != nil {
		return errors.Wrap(err, "failed to sync log")
	}
	log.Infof("finalized %s: %d records, index at offset %d", w.path, len(w.index), w.position)
	return nil
}

func (w *Writer) Header() LogHeader {
	return w.header
}

func (w *Writer) Path() string {
	return w.path
}

// Offset is the running byte offset of the next record.
func (w *Writer) Offset() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.position
}

// Count is the number of records appended so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.index)
}
