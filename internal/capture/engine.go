// Package capture records a live MAVLink stream into a log file.
package capture

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/mavlink"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/transport"
)

const (
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultReadBufferSize = 512
	DefaultMaxResidual    = 4 * mavlink.MaxFrameLen
)

type Config struct {
	// ArmedOnly drops every non-heartbeat message while the vehicle is disarmed.
	ArmedOnly bool
	// PollInterval bounds a single wait for data, and with it the latency
	// of a stop request.
	PollInterval time.Duration
	// ReadBufferSize is the size of one transport read.
	ReadBufferSize int
	// MaxResidual caps the bytes kept between reads while a frame is
	// incomplete. It must hold at least one maximum-size frame.
	MaxResidual int
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.MaxResidual == 0 {
		c.MaxResidual = DefaultMaxResidual
	}
}

func (c Config) Validate() error {
	if c.PollInterval < 0 {
		return errors.Wrapf(persistence.ErrConfig, "poll interval %s", c.PollInterval)
	}
	if c.ReadBufferSize < 0 {
		return errors.Wrapf(persistence.ErrConfig, "read buffer size %d", c.ReadBufferSize)
	}
	if c.MaxResidual != 0 && c.MaxResidual < mavlink.MaxFrameLen {
		return errors.Wrapf(persistence.ErrConfig, "max residual %d is smaller than one frame", c.MaxResidual)
	}
	return nil
}

// Conn is the receiving side of the telemetry transport.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Codec frames and unframes messages.
type Codec interface {
	Decode(b []byte) (mavlink.Frame, int, error)
	Encode(f mavlink.Frame) ([]byte, error)
	Name(f mavlink.Frame) string
}

// RecordWriter is the log the engine appends to.
type RecordWriter interface {
	Append(hdr bbin.RecordHeader, messageType string, payload []byte) (int64, error)
	Finalize() error
}

// Engine reads frames from a connection, tracks the arm state and appends
// the accepted frames to a log. An Engine runs once.
type Engine struct {
	// updated atomically; must stay 64-bit aligned
	records      uint64
	transitions  uint64
	dropped      uint64
	decodeErrors uint64

	cfg      Config
	conn     Conn
	codec    Codec
	writer   RecordWriter
	observer Observer

	arm      ArmMachine
	residual []byte

	now func() time.Time
}

// New builds an engine. observer may be nil.
func New(conn Conn, codec Codec, writer RecordWriter, observer Observer, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &Engine{
		cfg:      cfg,
		conn:     conn,
		codec:    codec,
		writer:   writer,
		observer: observer,
		residual: make([]byte, 0, cfg.MaxResidual),
		now:      time.Now,
	}, nil
}

// Run captures until ctx is cancelled, the peer closes the stream, or the
// transport fails. The writer is finalized on every exit path. A stop
// request or a closed stream is a clean end and returns nil.
func (e *Engine) Run(ctx context.Context) (err error) {
	defer func() {
		if ferr := e.writer.Finalize(); ferr != nil && err == nil {
			err = ferr
		}
		stats := e.Stats()
		log.WithFields(log.Fields{
			"records":       stats.Records,
			"transitions":   stats.Transitions,
			"dropped":       stats.Dropped,
			"decode_errors": stats.DecodeErrors,
		}).Info("capture finished")
	}()

	log.Infof("monitoring for arm/disarm events (armed only: %v)", e.cfg.ArmedOnly)
	buf := make([]byte, e.cfg.ReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			log.Info("capture stop requested")
			return nil
		default:
		}

		if err := e.conn.SetReadDeadline(e.now().Add(e.cfg.PollInterval)); err != nil {
			// the read below reports why the connection is unusable
			log.Debugf("set read deadline: %v", err)
		}
		n, rerr := e.conn.Read(buf)
		if n > 0 {
			if err := e.consume(buf[:n]); err != nil {
				return err
			}
		}

		switch {
		case rerr == nil:
			if n == 0 {
				e.backoff(ctx)
			}
		case transport.IsTimeout(rerr):
		case errors.Is(rerr, io.EOF):
			log.Info("telemetry stream closed by peer")
			return nil
		default:
			log.Errorf("TCP read error: %v", rerr)
			return errors.Wrapf(persistence.ErrTransport, "read: %v", rerr)
		}
	}
}

func (e *Engine) backoff(ctx context.Context) {
	t := time.NewTimer(e.cfg.PollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// consume decodes every complete frame in the residual buffer plus chunk.
// A partial frame at the end stays buffered for the next read.
func (e *Engine) consume(chunk []byte) error {
	e.residual = append(e.residual, chunk...)
	pending := e.residual
	for len(pending) > 0 {
		frame, used, err := e.codec.Decode(pending)
		pending = pending[used:]
		if err == mavlink.ErrIncomplete {
			break
		}
		if err != nil {
			atomic.AddUint64(&e.decodeErrors, 1)
			log.Warnf("failed to parse MAVLink message: %v", err)
			continue
		}
		if err := e.handle(frame); err != nil {
			return err
		}
	}

	if len(pending) > e.cfg.MaxResidual {
		atomic.AddUint64(&e.decodeErrors, 1)
		log.Warnf("discarding %d buffered bytes that never formed a frame", len(pending))
		pending = pending[:0]
	}
	e.residual = append(e.residual[:0], pending...)
	return nil
}

func (e *Engine) handle(frame mavlink.Frame) error {
	now := e.now()
	if hb, ok := frame.Heartbeat(); ok {
		if state, changed := e.arm.Observe(hb.Active()); changed {
			atomic.AddUint64(&e.transitions, 1)
			if e.observer != nil {
				e.observer.ArmStateChanged(state, now)
			}
		}
		return nil
	}
	if e.cfg.ArmedOnly && !e.arm.Armed() {
		atomic.AddUint64(&e.dropped, 1)
		return nil
	}

	raw, err := e.codec.Encode(frame)
	if err != nil {
		atomic.AddUint64(&e.decodeErrors, 1)
		log.Warnf("failed to encode MAVLink message %d: %v", frame.MessageID, err)
		return nil
	}
	msgType := e.codec.Name(frame)
	offset, err := e.writer.Append(bbin.RecordHeader{
		Timestamp:   now.UnixMilli(),
		Sequence:    frame.Sequence,
		SystemID:    frame.SystemID,
		ComponentID: frame.ComponentID,
	}, msgType, raw)
	if err != nil {
		return err
	}
	atomic.AddUint64(&e.records, 1)

	if e.observer != nil {
		e.observer.MessageCaptured(LoggedMessage{
			At:     now,
			Offset: offset,
			Type:   msgType,
			Frame:  frame,
			Armed:  e.arm.Armed(),
		})
	}
	return nil
}

// Stats is safe to call while Run is in progress.
func (e *Engine) Stats() persistence.SessionStats {
	return persistence.SessionStats{
		Records:      atomic.LoadUint64(&e.records),
		Transitions:  atomic.LoadUint64(&e.transitions),
		Dropped:      atomic.LoadUint64(&e.dropped),
		DecodeErrors: atomic.LoadUint64(&e.decodeErrors),
	}
}
