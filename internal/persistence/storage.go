package persistence

import "time"

// SessionKeeper keeps the catalog of capture sessions.
// Every implementation must pass the suite in package "testsuite", so that
// the bolt catalog and the SQL catalogs behave the same way.
type SessionKeeper interface {
	// CreateSession registers a new session.
	// Returns ErrSessionExists if the id is already known.
	CreateSession(session Session) error

	// FinishSession stamps the end time and the final counters of a session.
	// Returns ErrSessionNotExist if the id is unknown.
	FinishSession(id string, stats SessionStats) error

	GetSession(id string) (Session, error)

	// FindSessions returns every session whose log path matches the pattern,
	// ordered by start time.
	FindSessions(pattern SearchPattern) ([]Session, error)

	Close() error
}

// Session describes one capture run and the log file it produced.
type Session struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Address    string    `json:"address"`
	ArmedOnly  bool      `json:"armed_only"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	SessionStats
}

// SessionStats are the counters known once capture has stopped.
type SessionStats struct {
	Records      uint64 `json:"records"`
	Transitions  uint64 `json:"transitions"`
	Dropped      uint64 `json:"dropped"`
	DecodeErrors uint64 `json:"decode_errors"`
}

// Finished reports whether FinishSession has been called for the session.
func (s Session) Finished() bool {
	return !s.FinishedAt.IsZero()
}

// RawRecord is one persisted record as it is exported out of a log file.
type RawRecord struct {
	Offset      int64
	Timestamp   int64
	Sequence    uint8
	SystemID    uint8
	ComponentID uint8
	MessageType string
	Payload     []byte
}
