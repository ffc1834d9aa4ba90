// Package replay sends a recorded log back onto a transport, optionally
// reproducing the original timing.
package replay

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/mavlink"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/transport"
)

type Codec interface {
	Decode(b []byte) (mavlink.Frame, int, error)
	Encode(f mavlink.Frame) ([]byte, error)
	Name(f mavlink.Frame) string
}

type Options struct {
	// Filter keeps only messages whose type name contains it. Empty keeps all.
	Filter string
	// Realtime reproduces the recorded gaps between messages.
	Realtime bool
	// Speed divides every gap. 2.0 replays twice as fast.
	Speed float64
	// OnReplay is called after each message was written.
	OnReplay func(Message)
}

func (o Options) Validate() error {
	if o.Speed <= 0 {
		return errors.Wrapf(persistence.ErrConfig, "speed must be a positive value, got %v", o.Speed)
	}
	return nil
}

// Message is one decoded record of a log.
type Message struct {
	Offset int64
	Record bbin.RecordHeader
	Type   string
	Frame  mavlink.Frame
}

// Summary aggregates replay statistics.
type Summary struct {
	Total        int           `json:"total"`
	Replayed     int           `json:"replayed"`
	Filtered     int           `json:"filtered"`
	DecodeErrors int           `json:"decode_errors"`
	Truncated    bool          `json:"truncated"`
	WallDuration time.Duration `json:"wall_duration"`
}

// Replayer owns a log reader and the connection records are written to.
type Replayer struct {
	reader *bbin.Reader
	out    io.Writer
	codec  Codec

	sleep func(ctx context.Context, d time.Duration) error
}

// Open opens the log at path for replay onto out.
func Open(path string, out io.Writer, codec Codec) (*Replayer, error) {
	reader, err := bbin.Open(path)
	if err != nil {
		return nil, err
	}
	return New(reader, out, codec), nil
}

func New(reader *bbin.Reader, out io.Writer, codec Codec) *Replayer {
	return &Replayer{
		reader: reader,
		out:    out,
		codec:  codec,
		sleep:  sleepContext,
	}
}

// Run replays the log from its first record. The end of the log, including
// a truncated last record, ends the replay normally. A write failure stops
// it with ErrTransport.
func (r *Replayer) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r.reader.Reset()
	summary := &Summary{}
	wallStart := time.Now()
	defer func() {
		summary.WallDuration = time.Since(wallStart)
	}()

	var prev int64
	havePrev := false
	for r.reader.Next() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec := r.reader.Record()
		summary.Total++

		frame, _, err := r.codec.Decode(rec.Payload)
		if err != nil {
			summary.DecodeErrors++
			log.Warnf("failed to decode record at offset %d: %v", r.reader.Offset(), err)
			continue
		}
		msgType := r.codec.Name(frame)
		if opts.Filter != "" && !strings.Contains(msgType, opts.Filter) {
			summary.Filtered++
			continue
		}

		if opts.Realtime {
			if havePrev {
				if delta := rec.Timestamp - prev; delta > 0 {
					if err := r.sleep(ctx, scale(delta, opts.Speed)); err != nil {
						return summary, err
					}
				}
			}
			prev, havePrev = rec.Timestamp, true
		}

		frame.Header = mavlink.Header{
			Sequence:    rec.Sequence,
			SystemID:    rec.SystemID,
			ComponentID: rec.ComponentID,
		}
		raw, err := r.codec.Encode(frame)
		if err != nil {
			summary.DecodeErrors++
			log.Warnf("failed to encode %s: %v", msgType, err)
			continue
		}
		if err := transport.WriteAll(r.out, raw); err != nil {
			return summary, err
		}
		summary.Replayed++

		msg := Message{Offset: r.reader.Offset(), Record: rec.RecordHeader, Type: msgType, Frame: frame}
		log.WithFields(log.Fields{
			"type": msgType,
			"seq":  rec.Sequence,
			"ts":   rec.Timestamp,
		}).Debug("replayed message")
		if opts.OnReplay != nil {
			opts.OnReplay(msg)
		}
	}
	if err := r.reader.Err(); err != nil {
		summary.Truncated = true
		log.Warnf("replay stopped at a damaged record: %v", err)
	}
	log.Infof("replay complete: %d of %d messages sent", summary.Replayed, summary.Total)
	return summary, nil
}

// Close closes the log. The output connection belongs to the caller.
func (r *Replayer) Close() error {
	return r.reader.Close()
}

// scale turns a recorded gap in milliseconds into a wait at the given speed.
func scale(deltaMillis int64, speed float64) time.Duration {
	return time.Duration(float64(deltaMillis) * float64(time.Millisecond) / speed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Collect decodes every record of reader whose type contains filter.
// Records the codec rejects are skipped. The error is the reader's, so a
// truncated log returns the messages before the damage with ErrTruncated.
func Collect(reader *bbin.Reader, codec Codec, filter string) ([]Message, error) {
	messages := make([]Message, 0)
	for reader.Next() {
		rec := reader.Record()
		frame, _, err := codec.Decode(rec.Payload)
		if err != nil {
			log.Warnf("failed to decode record at offset %d: %v", reader.Offset(), err)
			continue
		}
		msgType := codec.Name(frame)
		if filter != "" && !strings.Contains(msgType, filter) {
			continue
		}
		messages = append(messages, Message{
			Offset: reader.Offset(),
			Record: rec.RecordHeader,
			Type:   msgType,
			Frame:  frame,
		})
	}
	return messages, reader.Err()
}
