package testsuite

import (
	"fmt"
	"time"

	"github.com/snowflk/blackbox/internal/persistence"
)

var baseTime = time.Date(2026, 5, 17, 9, 30, 0, 0, time.UTC)

// makeSession builds the n-th test session. Start times grow with n and are
// whole seconds so every backend stores them exactly.
func makeSession(n int) persistence.Session {
	return persistence.Session{
		ID:        fmt.Sprintf("session-%03d", n),
		Path:      fmt.Sprintf("logs/flight_%03d.bbin", n),
		Address:   "127.0.0.1:14552",
		ArmedOnly: n%2 == 0,
		StartedAt: baseTime.Add(time.Duration(n) * time.Minute),
	}
}

func sessionIDs(sessions []persistence.Session) []string {
	ids := make([]string, len(sessions))
	for i, session := range sessions {
		ids[i] = session.ID
	}
	return ids
}
