package bbin

import (
	"encoding/binary"
	"io"
)

func readLE(r io.Reader, v interface{}) error {
	return binary.Read(r, ByteOrdering, v)
}
