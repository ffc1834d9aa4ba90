// Package monitor keeps a live picture of a running capture and serves it
// over HTTP.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/snowflk/blackbox/internal/capture"
)

const (
	DefaultTTL = 10 * time.Second
	keyPrefix  = "msg:"
)

type Options struct {
	// TTL is how long a message type stays visible after its last update.
	TTL time.Duration
}

// Snapshot is the latest message seen for one type.
type Snapshot struct {
	Type        string    `json:"type"`
	At          time.Time `json:"at"`
	Offset      int64     `json:"offset"`
	Sequence    uint8     `json:"seq"`
	SystemID    uint8     `json:"sysid"`
	ComponentID uint8     `json:"compid"`
	MessageID   uint32    `json:"msgid"`
	Payload     []byte    `json:"payload"`
	Count       uint64    `json:"count"`
}

// Status summarizes the capture.
type Status struct {
	Armed        bool      `json:"armed"`
	LastChange   time.Time `json:"last_change,omitempty"`
	Transitions  uint64    `json:"transitions"`
	Messages     uint64    `json:"messages"`
	ActiveTypes  int       `json:"active_types"`
	LastMessage  time.Time `json:"last_message,omitempty"`
	MonitorSince time.Time `json:"monitor_since"`
}

// Monitor is a capture.Observer. It is safe for concurrent use.
type Monitor struct {
	mem *cache.Cache
	ttl time.Duration

	mu     sync.RWMutex
	status Status
	counts map[string]uint64
}

func New(opts Options) *Monitor {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Monitor{
		mem:    cache.New(opts.TTL, opts.TTL),
		ttl:    opts.TTL,
		status: Status{MonitorSince: time.Now()},
		counts: make(map[string]uint64),
	}
}

func (m *Monitor) ArmStateChanged(state capture.ArmState, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.Armed = state == capture.Armed
	m.status.LastChange = at
	m.status.Transitions++
}

func (m *Monitor) MessageCaptured(msg capture.LoggedMessage) {
	m.mu.Lock()
	m.status.Messages++
	m.status.LastMessage = msg.At
	m.counts[msg.Type]++
	count := m.counts[msg.Type]
	m.mu.Unlock()

	m.mem.Set(keyPrefix+msg.Type, Snapshot{
		Type:        msg.Type,
		At:          msg.At,
		Offset:      msg.Offset,
		Sequence:    msg.Frame.Sequence,
		SystemID:    msg.Frame.SystemID,
		ComponentID: msg.Frame.ComponentID,
		MessageID:   msg.Frame.MessageID,
		Payload:     msg.Frame.Payload,
		Count:       count,
	}, m.ttl)
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	status := m.status
	m.mu.RUnlock()
	status.ActiveTypes = len(m.mem.Items())
	return status
}

// Latest returns the most recent message of a type, unless it went stale.
func (m *Monitor) Latest(msgType string) (Snapshot, bool) {
	v, ok := m.mem.Get(keyPrefix + msgType)
	if !ok {
		return Snapshot{}, false
	}
	return v.(Snapshot), true
}

// Messages returns the latest message of every live type, sorted by type.
func (m *Monitor) Messages() []Snapshot {
	items := m.mem.Items()
	snapshots := make([]Snapshot, 0, len(items))
	for _, item := range items {
		snapshots = append(snapshots, item.Object.(Snapshot))
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Type < snapshots[j].Type
	})
	return snapshots
}
