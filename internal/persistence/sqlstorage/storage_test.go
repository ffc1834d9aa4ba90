package sqlstorage

import (
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	p "github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/testsuite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// The SQL backends need a live server. Point BLACKBOX_TEST_POSTGRES or
// BLACKBOX_TEST_MYSQL at a host ("db" or "db:3306") with a "blackbox"
// database, user and password.
func testOptions(t *testing.T, driver string) Options {
	env, port := "BLACKBOX_TEST_POSTGRES", 5432
	if driver == DriverMySQL {
		env, port = "BLACKBOX_TEST_MYSQL", 3306
	}
	host := os.Getenv(env)
	if host == "" {
		t.Skipf("%s not set", env)
	}
	if h, portStr, err := net.SplitHostPort(host); err == nil {
		n, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		host, port = h, n
	}
	return Options{
		Driver:   driver,
		Host:     host,
		Port:     port,
		User:     "blackbox",
		Password: "blackbox",
		Database: "blackbox",
	}
}

// mustInitStorage connects and starts from empty tables.
func mustInitStorage(t *testing.T, opts Options) *storage {
	s, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, s.db.dropAllTables())
	require.NoError(t, s.initTables())
	return s
}

func TestStorage_SessionKeeper(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverMySQL} {
		t.Run(driver, func(t *testing.T) {
			opts := testOptions(t, driver)
			suite.Run(t, testsuite.NewTestSuite(func() p.SessionKeeper {
				return mustInitStorage(t, opts)
			}))
		})
	}
}

func TestStorage_ExportRecords(t *testing.T) {
	for _, driver := range []string{DriverPostgres, DriverMySQL} {
		t.Run(driver, func(t *testing.T) {
			s := mustInitStorage(t, testOptions(t, driver))
			defer s.Close()

			err := s.ExportRecords("flight-1", []p.RawRecord{{Offset: 14}})
			assert.True(t, errors.Is(err, p.ErrSessionNotExist))

			require.NoError(t, s.CreateSession(p.Session{
				ID:        "flight-1",
				Path:      "mavlink_log_20260517_093000.bbin",
				StartedAt: time.Now(),
			}))
			assert.True(t, errors.Is(s.ExportRecords("flight-1", nil), p.ErrDataEmpty))

			records := make([]p.RawRecord, exportBatchSize+25)
			offset := int64(14)
			for i := range records {
				msgType := "ATTITUDE"
				if i%4 == 0 {
					msgType = "GPS_RAW_INT"
				}
				records[i] = p.RawRecord{
					Offset:      offset,
					Timestamp:   1779010200000 + int64(i)*20,
					Sequence:    uint8(i),
					SystemID:    1,
					ComponentID: 1,
					MessageType: msgType,
					Payload:     []byte{0xFD, byte(i), byte(i >> 8)},
				}
				offset += 13 + 3
			}
			require.NoError(t, s.ExportRecords("flight-1", records))

			all, err := s.GetRecords("flight-1", 0, 0)
			require.NoError(t, err)
			assert.Equal(t, records, all)

			page, err := s.GetRecords("flight-1", 10, 5)
			require.NoError(t, err)
			assert.Equal(t, records[10:15], page)

			tail, err := s.GetRecords("flight-1", uint64(len(records)-3), 0)
			require.NoError(t, err)
			assert.Equal(t, records[len(records)-3:], tail)

			// same offsets twice violate the primary key and roll back
			assert.Error(t, s.ExportRecords("flight-1", records[:2]))
		})
	}
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{Driver: DriverPostgres, Host: "localhost"}.Validate())
	assert.True(t, errors.Is(Options{Driver: "sqlite", Host: "localhost"}.Validate(), p.ErrConfig))
	assert.True(t, errors.Is(Options{Driver: DriverMySQL}.Validate(), p.ErrConfig))

	_, err := New(Options{Driver: "oracle"})
	assert.True(t, errors.Is(err, p.ErrConfig))
}

func TestMakeQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1;", makeQuery("SELECT 1;"))
	assert.Equal(t, "SELECT * FROM sessions WHERE id = $1;", makeQuery("SELECT * FROM sessions WHERE id = ?;"))
	assert.Equal(t,
		"INSERT INTO t(a, b) VALUES ($1, $2),($3, $4)",
		makeQuery("INSERT INTO t(a, b) VALUES (?, ?),(?, ?)"))
}
