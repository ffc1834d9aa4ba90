package testsuite

import (
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/stretchr/testify/suite"
)

type persistenceModuleTestSuite struct {
	suite.Suite
	keeper   persistence.SessionKeeper
	provider SessionKeeperProvider
}

// SessionKeeperProvider returns an empty keeper for every test.
type SessionKeeperProvider func() persistence.SessionKeeper

func NewTestSuite(provider SessionKeeperProvider) *persistenceModuleTestSuite {
	return &persistenceModuleTestSuite{
		provider: provider,
	}
}

func (s *persistenceModuleTestSuite) SetupTest() {
	s.keeper = s.provider()
}

func (s *persistenceModuleTestSuite) TearDownTest() {
	defer s.keeper.Close()
	log.Info("Tear down")
}
