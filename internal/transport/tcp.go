// Package transport dials the byte streams telemetry travels over.
package transport

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/persistence"
)

const DefaultDialTimeout = 5 * time.Second

// TCPDialer opens TCP connections to a telemetry endpoint such as a SITL
// instance or a MAVLink router.
type TCPDialer struct {
	// Timeout bounds connection setup. Zero means DefaultDialTimeout.
	Timeout time.Duration
}

// Dial connects to address. Failures are wrapped in ErrTransport.
func (d TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	timeout := d.Timeout
	if timeout == 0 {
		timeout = DefaultDialTimeout
	}
	log.Infof("connecting to %s", address)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, errors.Wrapf(persistence.ErrTransport, "dial %s: %v", address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	log.Infof("TCP connection established with %s", address)
	return conn, nil
}

// WriteAll writes b completely. A stalled peer blocks it indefinitely.
func WriteAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return errors.Wrapf(persistence.ErrTransport, "write: %v", err)
		}
		b = b[n:]
	}
	return nil
}

// IsTimeout reports whether err is a deadline expiry rather than a failure.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
