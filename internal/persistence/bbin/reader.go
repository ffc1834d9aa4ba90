package bbin

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
)

const readBufferSize = 64 * 1024

// Reader iterates the records of a log file from the start, the way a
// stream iterator walks a stream:
//
//	for r.Next() {
//	    rec := r.Record()
//	}
//	if err := r.Err(); err != nil { ... }
//
// Err is nil after a clean end of file. A file cut in the middle of a record
// ends the iteration with ErrTruncated; every record before the cut has
// been returned.
type Reader struct {
	f      *os.File
	header LogHeader

	// end is where the record region stops: the index offset when the
	// trailer checks out, the file size otherwise
	end     int64
	trailer *Trailer

	br     *bufio.Reader
	next   int64
	offset int64
	value  Record
	err    error
	done   bool
}

// Open validates the log header and positions the reader on the first record.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open log file")
	}
	header, err := readLogHeader(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrapf(err, "open %s", path)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, "failed to stat log file")
	}

	r := &Reader{
		f:      file,
		header: header,
		end:    info.Size(),
		next:   SizeLogHeader,
	}
	// The trailer only narrows the record region. A missing or damaged one
	// means the capture never finalized, and records run to the end of the file.
	if trailer, err := ReadIndex(file, info.Size()); err == nil {
		r.trailer = &trailer
		r.end = trailer.IndexOffset
	}
	r.br = bufio.NewReaderSize(io.NewSectionReader(file, SizeLogHeader, r.end-SizeLogHeader), readBufferSize)
	return r, nil
}

func (r *Reader) Header() LogHeader {
	return r.header
}

// Trailer returns the index when the file was finalized.
func (r *Reader) Trailer() (Trailer, bool) {
	if r.trailer == nil {
		return Trailer{}, false
	}
	return *r.trailer, true
}

func (r *Reader) Next() bool {
	if r.done {
		return false
	}
	hdr, err := readRecordHeader(r.br)
	if err == io.EOF {
		r.done = true
		return false
	} else if err != nil {
		r.fail(err)
		return false
	}
	payload := make([]byte, hdr.PayloadLen)
	if n, err := io.ReadFull(r.br, payload); err != nil {
		r.fail(errors.Wrapf(persistence.ErrTruncated, "record payload: got %d of %d bytes", n, hdr.PayloadLen))
		return false
	}
	r.value = Record{RecordHeader: hdr, Payload: payload}
	r.offset = r.next
	r.next += SizeRecordHeader + int64(hdr.PayloadLen)
	return true
}

func (r *Reader) fail(err error) {
	r.err = err
	r.done = true
	r.value = Record{}
}

func (r *Reader) Record() Record {
	return r.value
}

// Offset is the file offset of the current record, as stored in the index.
func (r *Reader) Offset() int64 {
	return r.offset
}

func (r *Reader) Err() error {
	return r.err
}

// Reset rewinds the reader to the first record.
func (r *Reader) Reset() {
	r.br.Reset(io.NewSectionReader(r.f, SizeLogHeader, r.end-SizeLogHeader))
	r.next = SizeLogHeader
	r.offset = 0
	r.value = Record{}
	r.err = nil
	r.done = false
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadAll drains the reader. The records read before a truncation are
// returned together with the error.
func ReadAll(r *Reader) ([]Record, error) {
	records := make([]Record, 0)
	for r.Next() {
		records = append(records, r.Record())
	}
	return records, r.Err()
}
