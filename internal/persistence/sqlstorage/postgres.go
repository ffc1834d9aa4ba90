package sqlstorage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

type postgresConn struct {
	conn *sql.DB
}

func (c *postgresConn) initSessionTbl() error {
	return c.exec(`
			CREATE TABLE IF NOT EXISTS sessions
			(
				id              VARCHAR(64)     PRIMARY KEY,
				path            VARCHAR(1024)   NOT NULL,
				address         VARCHAR(255)    NOT NULL DEFAULT '',
				armed_only      BOOLEAN         NOT NULL DEFAULT FALSE,
				started_at      TIMESTAMP WITHOUT TIME ZONE NOT NULL,
				finished_at     TIMESTAMP WITHOUT TIME ZONE,
				records         BIGINT          NOT NULL DEFAULT 0,
				transitions     BIGINT          NOT NULL DEFAULT 0,
				dropped         BIGINT          NOT NULL DEFAULT 0,
				decode_errors   BIGINT          NOT NULL DEFAULT 0
			);
	`)
}

func (c *postgresConn) initRecordTbl() error {
	err := c.exec(`
			CREATE TABLE IF NOT EXISTS records
			(
				session_id      VARCHAR(64)     NOT NULL REFERENCES sessions(id),
				file_offset     BIGINT          NOT NULL,
				ts              BIGINT          NOT NULL,
				seq             SMALLINT        NOT NULL,
				sysid           SMALLINT        NOT NULL,
				compid          SMALLINT        NOT NULL,
				msg_type        VARCHAR(64)     NOT NULL,
				payload         BYTEA           NOT NULL,
				PRIMARY KEY (session_id, file_offset)
			);
	`)
	if err != nil {
		return err
	}
	return c.exec(`CREATE INDEX IF NOT EXISTS index_records_type ON records(session_id, msg_type);`)
}

func (c *postgresConn) dropAllTables() error {
	if err := c.exec("DROP TABLE IF EXISTS records CASCADE;"); err != nil {
		return err
	}
	return c.exec("DROP TABLE IF EXISTS sessions CASCADE;")
}

func (c *postgresConn) query(q string, args ...interface{}) (*sql.Rows, error) {
	return c.conn.Query(makeQuery(q), args...)
}

func (c *postgresConn) queryOne(q string, args ...interface{}) *sql.Row {
	return c.conn.QueryRow(makeQuery(q), args...)
}

func (c *postgresConn) exec(q string, args ...interface{}) error {
	_, err := c.conn.Exec(makeQuery(q), args...)
	return err
}

func (c *postgresConn) inTx(fn func(exec func(q string, args ...interface{}) error) error) error {
	return runInTx(c.conn, makeQuery, fn)
}

func (c *postgresConn) close() error {
	return c.conn.Close()
}

func newPostgresConnection(opts Options) (dbConn, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		opts.Host, opts.Port, opts.User, opts.Password, opts.Database)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(MaxOpenConnections)
	db.SetMaxIdleConns(MaxIdleConnections)

	return &postgresConn{conn: db}, nil
}

// makeQuery rewrites '?' placeholders to the $n form Postgres expects.
func makeQuery(q string) string {
	var b strings.Builder
	counter := 1
	for {
		i := strings.IndexByte(q, '?')
		if i < 0 {
			b.WriteString(q)
			return b.String()
		}
		b.WriteString(q[:i])
		fmt.Fprintf(&b, "$%d", counter)
		counter++
		q = q[i+1:]
	}
}
