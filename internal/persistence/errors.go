package persistence

import "github.com/pkg/errors"

var (
	// ErrInvalidFormat marks a log whose header or record encoding cannot be trusted.
	ErrInvalidFormat = errors.New("invalid log format")

	// ErrTruncated marks a log that ends in the middle of a record.
	// Everything read before it is valid.
	ErrTruncated = errors.New("log truncated mid-record")

	// ErrDecode marks bytes the frame codec refused.
	ErrDecode = errors.New("frame decode failed")

	// ErrTransport marks a broken connection. It ends the session.
	ErrTransport = errors.New("transport failure")

	// ErrConfig marks options rejected before any I/O.
	ErrConfig = errors.New("invalid configuration")

	ErrPayloadTooLarge = errors.New("payload exceeds record length field")
	ErrWriterFinalized = errors.New("log writer already finalized")

	ErrSessionIDEmpty  = errors.New("session id cannot be empty")
	ErrSessionInvalid  = errors.New("session id should contain only digits, letters, underscore and dash symbol")
	ErrSessionNotExist = errors.New("session does not exist")
	ErrSessionExists   = errors.New("session already exists")
	ErrDataEmpty       = errors.New("data cannot be empty")
)
