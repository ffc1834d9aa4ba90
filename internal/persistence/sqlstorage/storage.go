// Package sqlstorage keeps the session catalog and exported log records in
// Postgres or MySQL.
package sqlstorage

import (
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	p "github.com/snowflk/blackbox/internal/persistence"
)

const MaxOpenConnections = 20
const MaxIdleConnections = 0

// exportBatchSize keeps a multi-row insert below the placeholder limits of
// both drivers.
const exportBatchSize = 500

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type storage struct {
	db dbConn
}

type Options struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (o Options) Validate() error {
	if o.Driver != DriverPostgres && o.Driver != DriverMySQL {
		return errors.Wrapf(p.ErrConfig, "unknown sql driver %q", o.Driver)
	}
	if p.CheckStringEmpty(o.Host) {
		return errors.Wrap(p.ErrConfig, "sql host cannot be empty")
	}
	return nil
}

// New connects and creates the tables when they are missing.
func New(options Options) (*storage, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	var db dbConn
	var err error
	switch options.Driver {
	case DriverPostgres:
		db, err = newPostgresConnection(options)
	case DriverMySQL:
		db, err = newMySQLConnection(options)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", options.Driver)
	}

	s := &storage{db: db}
	if err := s.initTables(); err != nil {
		_ = db.close()
		return nil, err
	}
	log.Infof("sql catalog ready on %s %s:%d/%s", options.Driver, options.Host, options.Port, options.Database)
	return s, nil
}

func (s *storage) initTables() error {
	if err := s.db.initSessionTbl(); err != nil {
		return errors.Wrap(err, "failed to create sessions table")
	}
	if err := s.db.initRecordTbl(); err != nil {
		return errors.Wrap(err, "failed to create records table")
	}
	return nil
}

func (s *storage) CreateSession(session p.Session) error {
	if err := p.ValidateSessionID(session.ID); err != nil {
		return err
	}
	if p.CheckStringEmpty(session.Path) {
		return errors.Wrap(p.ErrDataEmpty, "session log path")
	}
	exists, err := s.sessionExists(session.ID)
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrap(p.ErrSessionExists, session.ID)
	}
	return s.db.exec(`
			INSERT INTO sessions(id, path, address, armed_only, started_at)
			VALUES (?, ?, ?, ?, ?);`,
		session.ID, session.Path, session.Address, session.ArmedOnly, session.StartedAt.UTC())
}

func (s *storage) FinishSession(id string, stats p.SessionStats) error {
	if err := p.ValidateSessionID(id); err != nil {
		return err
	}
	exists, err := s.sessionExists(id)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrap(p.ErrSessionNotExist, id)
	}
	return s.db.exec(`
			UPDATE sessions
			SET finished_at = ?, records = ?, transitions = ?, dropped = ?, decode_errors = ?
			WHERE id = ?;`,
		time.Now().UTC(), stats.Records, stats.Transitions, stats.Dropped, stats.DecodeErrors, id)
}

func (s *storage) GetSession(id string) (p.Session, error) {
	if err := p.ValidateSessionID(id); err != nil {
		return p.Session{}, err
	}
	row := s.db.queryOne(selectSessions+" WHERE id = ?;", id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return session, errors.Wrap(p.ErrSessionNotExist, id)
	}
	return session, err
}

func (s *storage) FindSessions(pattern p.SearchPattern) ([]p.Session, error) {
	rows, err := s.db.query(selectSessions+" WHERE path LIKE ? ORDER BY started_at, id;", pattern.SQLLike())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]p.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ExportRecords stores the records of a session's log. The session must
// exist. Records are inserted in batches inside one transaction.
func (s *storage) ExportRecords(sessionID string, records []p.RawRecord) error {
	if err := p.ValidateSessionID(sessionID); err != nil {
		return err
	}
	if len(records) == 0 {
		return p.ErrDataEmpty
	}
	exists, err := s.sessionExists(sessionID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrap(p.ErrSessionNotExist, sessionID)
	}

	return s.db.inTx(func(exec func(q string, args ...interface{}) error) error {
		for start := 0; start < len(records); start += exportBatchSize {
			end := start + exportBatchSize
			if end > len(records) {
				end = len(records)
			}
			batch := records[start:end]
			queryPlaceholders := make([]string, len(batch))
			queryArgs := make([]interface{}, 0, 8*len(batch))
			for i, rec := range batch {
				queryPlaceholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
				queryArgs = append(queryArgs, sessionID, rec.Offset, rec.Timestamp,
					rec.Sequence, rec.SystemID, rec.ComponentID, rec.MessageType, rec.Payload)
			}
			err := exec(fmt.Sprintf(`
					INSERT INTO records(session_id, file_offset, ts, seq, sysid, compid, msg_type, payload)
					VALUES %s;`, strings.Join(queryPlaceholders, ",")), queryArgs...)
			if err != nil {
				return errors.Wrapf(err, "export records %d..%d", start, end)
			}
		}
		log.Infof("exported %d records of session %s", len(records), sessionID)
		return nil
	})
}

// GetRecords reads exported records in file order. A limit of 0 reads all
// records from offset.
func (s *storage) GetRecords(sessionID string, offset, limit uint64) ([]p.RawRecord, error) {
	if err := p.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	query := `
			SELECT file_offset, ts, seq, sysid, compid, msg_type, payload
			FROM records
			WHERE session_id = ?
			ORDER BY file_offset`
	if limit == 0 || limit > math.MaxInt64 {
		// MySQL has no OFFSET without LIMIT
		limit = math.MaxInt64
	}
	rows, err := s.db.query(query+" LIMIT ? OFFSET ?;", sessionID, int64(limit), int64(offset))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := make([]p.RawRecord, 0)
	for rows.Next() {
		var rec p.RawRecord
		var seq, sysid, compid int16
		if err := rows.Scan(&rec.Offset, &rec.Timestamp, &seq, &sysid, &compid, &rec.MessageType, &rec.Payload); err != nil {
			return nil, err
		}
		rec.Sequence, rec.SystemID, rec.ComponentID = uint8(seq), uint8(sysid), uint8(compid)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *storage) Close() error {
	return s.db.close()
}

func (s *storage) sessionExists(id string) (bool, error) {
	row := s.db.queryOne("SELECT COUNT(*) FROM sessions WHERE id = ?;", id)
	var counter = 0
	if err := row.Scan(&counter); err != nil {
		return false, err
	}
	return counter > 0, nil
}

const selectSessions = `
			SELECT id, path, address, armed_only, started_at, finished_at,
				records, transitions, dropped, decode_errors
			FROM sessions`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (p.Session, error) {
	var session p.Session
	var finishedAt sql.NullTime
	err := row.Scan(&session.ID, &session.Path, &session.Address, &session.ArmedOnly,
		&session.StartedAt, &finishedAt,
		&session.Records, &session.Transitions, &session.Dropped, &session.DecodeErrors)
	if err != nil {
		return session, err
	}
	if finishedAt.Valid {
		session.FinishedAt = finishedAt.Time
	}
	return session, nil
}
