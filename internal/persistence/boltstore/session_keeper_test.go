package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/testsuite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestSessionKeeper(t *testing.T) {
	provider := func() persistence.SessionKeeper {
		keeper, err := Open(filepath.Join(t.TempDir(), DefaultFileName))
		if err != nil {
			t.Fatal(err)
		}
		return keeper
	}
	suite.Run(t, testsuite.NewTestSuite(provider))
}

func TestSessionKeeper_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.db")
	keeper, err := Open(path)
	require.NoError(t, err)
	session := persistence.Session{ID: "a1", Path: "x.bbin"}
	require.NoError(t, keeper.CreateSession(session))
	require.NoError(t, keeper.FinishSession("a1", persistence.SessionStats{Records: 3}))
	require.NoError(t, keeper.Close())

	keeper, err = Open(path)
	require.NoError(t, err)
	defer keeper.Close()
	got, err := keeper.GetSession("a1")
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.Equal(t, uint64(3), got.Records)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(" ")
	assert.True(t, errors.Is(err, persistence.ErrConfig))
}
