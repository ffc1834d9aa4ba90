package bbin

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/tysontate/gommap"
)

const (
	indexReadBufferSize = 4 * 1024
	maxIndexPrealloc    = 4096
)

// Trailer is the index written by Finalize and the footer pointing at it.
type Trailer struct {
	IndexOffset int64
	Entries     []IndexEntry
}

// ReadIndex locates the index through the footer in the last 8 bytes and
// parses it. Any inconsistency is reported as ErrInvalidFormat: the footer
// pointing outside the record region, an index not ending exactly at the
// footer, or offsets that are out of range or not increasing.
func ReadIndex(r io.ReaderAt, size int64) (Trailer, error) {
	minSize := int64(SizeLogHeader + sizeIndexCount + SizeFooter)
	if size < minSize {
		return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "file too small for an index (%d bytes)", size)
	}
	var footer [SizeFooter]byte
	if _, err := r.ReadAt(footer[:], size-SizeFooter); err != nil {
		return Trailer{}, errors.Wrap(err, "read footer")
	}
	indexOffset := int64(ByteOrdering.Uint64(footer[:]))
	indexEnd := size - SizeFooter
	if indexOffset < SizeLogHeader || indexOffset > indexEnd-sizeIndexCount {
		return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "footer offset %d out of range", indexOffset)
	}

	// The index is parsed as a stream: on a file that was never finalized the
	// footer is just payload bytes, and the region it names can be most of
	// the file.
	remaining := indexEnd - indexOffset
	br := bufio.NewReaderSize(io.NewSectionReader(r, indexOffset, remaining), indexReadBufferSize)
	var word [8]byte
	readWord := func() (uint64, error) {
		if _, err := io.ReadFull(br, word[:]); err != nil {
			return 0, errors.Wrap(err, "read index")
		}
		remaining -= 8
		return ByteOrdering.Uint64(word[:]), nil
	}

	count, err := readWord()
	if err != nil {
		return Trailer{}, err
	}
	if count > uint64(remaining)/minSizeIndexEntry {
		return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "index claims %d entries", count)
	}

	capacity := count
	if capacity > maxIndexPrealloc {
		capacity = maxIndexPrealloc
	}
	entries := make([]IndexEntry, 0, capacity)
	prev := int64(-1)
	for i := uint64(0); i < count; i++ {
		if remaining < minSizeIndexEntry {
			return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "index entry %d cut short", i)
		}
		labelLen, err := readWord()
		if err != nil {
			return Trailer{}, err
		}
		if labelLen > MaxLabelLen || int64(labelLen) > remaining-16 {
			return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "index entry %d label length %d", i, labelLen)
		}
		label := make([]byte, labelLen)
		if _, err := io.ReadFull(br, label); err != nil {
			return Trailer{}, errors.Wrap(err, "read index")
		}
		remaining -= int64(labelLen)
		entry := IndexEntry{MessageType: string(label)}
		if entry.Offset, err = readWord(); err != nil {
			return Trailer{}, err
		}
		ts, err := readWord()
		if err != nil {
			return Trailer{}, err
		}
		entry.Timestamp = int64(ts)

		offset := int64(entry.Offset)
		if offset < SizeLogHeader || offset+SizeRecordHeader > indexOffset || offset <= prev {
			return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "index entry %d offset %d", i, entry.Offset)
		}
		prev = offset
		entries = append(entries, entry)
	}
	if remaining != 0 {
		return Trailer{}, errors.Wrapf(persistence.ErrInvalidFormat, "%d stray bytes after index", remaining)
	}
	return Trailer{IndexOffset: indexOffset, Entries: entries}, nil
}

// OpenIndex memory-maps the log at path and returns its trailer.
// The log header is validated first.
func OpenIndex(path string) (Trailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Trailer{}, errors.Wrap(err, "failed to open log file")
	}
	defer f.Close()
	if _, err := readLogHeader(f); err != nil {
		return Trailer{}, err
	}

	mm, err := gommap.Map(f.Fd(), gommap.PROT_READ, gommap.MAP_SHARED)
	if err != nil {
		return Trailer{}, errors.Wrap(err, "failed to mmap")
	}
	defer mm.UnsafeUnmap()
	return ReadIndex(bytes.NewReader(mm), int64(len(mm)))
}
