package capture

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/mavlink"
)

// Observer receives notifications from a running capture.
// Calls come from the capture loop and must not block it.
type Observer interface {
	ArmStateChanged(state ArmState, at time.Time)
	MessageCaptured(msg LoggedMessage)
}

// LoggedMessage is one message that made it into the log.
type LoggedMessage struct {
	At     time.Time
	Offset int64
	Type   string
	Frame  mavlink.Frame
	Armed  bool
}

// MultiObserver fans every notification out to all of its members in order.
type MultiObserver []Observer

func (m MultiObserver) ArmStateChanged(state ArmState, at time.Time) {
	for _, o := range m {
		o.ArmStateChanged(state, at)
	}
}

func (m MultiObserver) MessageCaptured(msg LoggedMessage) {
	for _, o := range m {
		o.MessageCaptured(msg)
	}
}

type EventKind int

const (
	EventArmState EventKind = iota
	EventMessage
)

// Event is what travels through a Queue.
type Event struct {
	Kind    EventKind
	State   ArmState
	At      time.Time
	Message LoggedMessage
}

// Queue decouples a slow consumer from the capture loop.
// It is meant for exactly one producer (the capture loop) and one consumer
// (Forward). When the buffer is full, message events are dropped and
// counted. Arm state events are never dropped: one that finds the buffer
// full waits in a backlog, and messages are dropped until the consumer has
// caught up with it, so events are delivered in the order they happened.
type Queue struct {
	dropped   uint64
	events    chan Event
	closeOnce sync.Once

	mu      sync.Mutex
	backlog []Event
	wake    chan struct{}
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		events: make(chan Event, capacity),
		wake:   make(chan struct{}, 1),
	}
}

func (q *Queue) ArmStateChanged(state ArmState, at time.Time) {
	ev := Event{Kind: EventArmState, State: state, At: at}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) == 0 {
		select {
		case q.events <- ev:
			return
		default:
		}
	}
	q.backlog = append(q.backlog, ev)
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) MessageCaptured(msg LoggedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.backlog) > 0 {
		atomic.AddUint64(&q.dropped, 1)
		return
	}
	select {
	case q.events <- Event{Kind: EventMessage, At: msg.At, Message: msg}:
	default:
		atomic.AddUint64(&q.dropped, 1)
	}
}

// Dropped returns how many message events did not fit in the buffer.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close ends the queue. The producer must have stopped.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.events)
	})
}

// Forward delivers queued events to o until the queue is closed and drained.
func (q *Queue) Forward(o Observer) {
	for {
		select {
		case ev, ok := <-q.events:
			if !ok {
				q.flushBacklog(o)
				return
			}
			deliver(o, ev)
		case <-q.wake:
		}
		q.flushBacklog(o)
	}
}

// flushBacklog delivers the backlog once everything buffered before it is out.
func (q *Queue) flushBacklog(o Observer) {
	q.mu.Lock()
	if len(q.events) > 0 {
		q.mu.Unlock()
		return
	}
	pending := q.backlog
	q.backlog = nil
	q.mu.Unlock()
	for _, ev := range pending {
		deliver(o, ev)
	}
}

func deliver(o Observer, ev Event) {
	switch ev.Kind {
	case EventArmState:
		o.ArmStateChanged(ev.State, ev.At)
	case EventMessage:
		o.MessageCaptured(ev.Message)
	}
}

// ConsoleObserver prints capture progress through the logger.
type ConsoleObserver struct {
	// Verbose logs every captured message at info level instead of debug.
	Verbose bool
}

func (c ConsoleObserver) ArmStateChanged(state ArmState, at time.Time) {
	log.WithField("at", at.Format(time.RFC3339Nano)).Infof("Vehicle %s", state)
}

func (c ConsoleObserver) MessageCaptured(msg LoggedMessage) {
	entry := log.WithFields(log.Fields{
		"type":   msg.Type,
		"seq":    msg.Frame.Sequence,
		"sysid":  msg.Frame.SystemID,
		"compid": msg.Frame.ComponentID,
		"offset": msg.Offset,
		"armed":  msg.Armed,
	})
	if c.Verbose {
		entry.Info("captured message")
		return
	}
	entry.Debug("captured message")
}
