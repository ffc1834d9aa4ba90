package testsuite

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
)

// Sessions are created concurrently, read back one by one, and cannot be
// created a second time.
func (s *persistenceModuleTestSuite) TestSessionKeeper_Create() {
	nSessions := 50

	var wg sync.WaitGroup
	wg.Add(nSessions)
	for i := 1; i <= nSessions; i++ {
		go func(i int) {
			defer wg.Done()
			err := s.keeper.CreateSession(makeSession(i))
			s.Assert().Nil(err, fmt.Sprintf("session %d cannot be created", i))
		}(i)
	}
	wg.Wait()

	for i := 1; i <= nSessions; i++ {
		want := makeSession(i)
		got, err := s.keeper.GetSession(want.ID)
		if err != nil {
			s.T().Fatal(err)
		}
		s.assertSameSession(want, got)
		s.Assert().False(got.Finished())
	}

	for i := 1; i <= nSessions; i++ {
		err := s.keeper.CreateSession(makeSession(i))
		s.Assert().True(errors.Is(err, persistence.ErrSessionExists), "session %d should not be recreated", i)
	}
}

func (s *persistenceModuleTestSuite) TestSessionKeeper_Get() {
	_, err := s.keeper.GetSession("session-404")
	s.Assert().True(errors.Is(err, persistence.ErrSessionNotExist))

	_, err = s.keeper.GetSession("")
	s.Assert().True(errors.Is(err, persistence.ErrSessionIDEmpty))

	_, err = s.keeper.GetSession("../etc/passwd")
	s.Assert().True(errors.Is(err, persistence.ErrSessionInvalid))
}

func (s *persistenceModuleTestSuite) TestSessionKeeper_CreateInvalid() {
	invalid := makeSession(1)
	invalid.ID = "bad id"
	s.Assert().True(errors.Is(s.keeper.CreateSession(invalid), persistence.ErrSessionInvalid))

	invalid.ID = ""
	s.Assert().True(errors.Is(s.keeper.CreateSession(invalid), persistence.ErrSessionIDEmpty))

	noPath := makeSession(2)
	noPath.Path = ""
	s.Assert().True(errors.Is(s.keeper.CreateSession(noPath), persistence.ErrDataEmpty))
}

func (s *persistenceModuleTestSuite) TestSessionKeeper_Finish() {
	session := makeSession(7)
	s.Require().NoError(s.keeper.CreateSession(session))

	stats := persistence.SessionStats{Records: 1200, Transitions: 2, Dropped: 310, DecodeErrors: 4}
	before := time.Now().Add(-time.Second)
	s.Require().NoError(s.keeper.FinishSession(session.ID, stats))

	got, err := s.keeper.GetSession(session.ID)
	s.Require().NoError(err)
	s.Assert().True(got.Finished())
	s.Assert().True(got.FinishedAt.After(before), "finished at %s", got.FinishedAt)
	s.Assert().Equal(stats, got.SessionStats)
	s.Assert().Equal(session.Path, got.Path)

	err = s.keeper.FinishSession("session-404", stats)
	s.Assert().True(errors.Is(err, persistence.ErrSessionNotExist))
}

func (s *persistenceModuleTestSuite) TestSessionKeeper_Find() {
	// created out of order on purpose
	for _, i := range []int{5, 1, 4, 2, 3} {
		s.Require().NoError(s.keeper.CreateSession(makeSession(i)))
	}
	other := makeSession(6)
	other.Path = "archive/flight_006.bbin"
	s.Require().NoError(s.keeper.CreateSession(other))

	all, err := s.keeper.FindSessions(persistence.Pattern("*"))
	s.Require().NoError(err)
	s.Assert().Equal([]string{"session-001", "session-002", "session-003", "session-004", "session-005", "session-006"}, sessionIDs(all))

	logs, err := s.keeper.FindSessions(persistence.Pattern("logs/*"))
	s.Require().NoError(err)
	s.Assert().Equal([]string{"session-001", "session-002", "session-003", "session-004", "session-005"}, sessionIDs(logs))

	one, err := s.keeper.FindSessions(persistence.Pattern("*_003.bbin"))
	s.Require().NoError(err)
	s.Assert().Equal([]string{"session-003"}, sessionIDs(one))

	// "_" is a literal, not a single-character wildcard
	none, err := s.keeper.FindSessions(persistence.Pattern("logs/flight_0_1.bbin"))
	s.Require().NoError(err)
	s.Assert().Empty(none)
}

func (s *persistenceModuleTestSuite) assertSameSession(want, got persistence.Session) {
	s.Assert().Equal(want.ID, got.ID)
	s.Assert().Equal(want.Path, got.Path)
	s.Assert().Equal(want.Address, got.Address)
	s.Assert().Equal(want.ArmedOnly, got.ArmedOnly)
	s.Assert().True(want.StartedAt.Equal(got.StartedAt), "started at %s, want %s", got.StartedAt, want.StartedAt)
	s.Assert().Equal(want.SessionStats, got.SessionStats)
}
