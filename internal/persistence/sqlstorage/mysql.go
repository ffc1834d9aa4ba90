package sqlstorage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

type mysqlConn struct {
	conn *sql.DB
}

func (c *mysqlConn) initSessionTbl() error {
	return c.exec(`
			CREATE TABLE IF NOT EXISTS sessions
			(
				id              VARCHAR(64)     PRIMARY KEY,
				path            VARCHAR(1024)   NOT NULL,
				address         VARCHAR(255)    NOT NULL DEFAULT '',
				armed_only      BOOLEAN         NOT NULL DEFAULT FALSE,
				started_at      DATETIME(6)     NOT NULL,
				finished_at     DATETIME(6)     NULL,
				records         BIGINT UNSIGNED NOT NULL DEFAULT 0,
				transitions     BIGINT UNSIGNED NOT NULL DEFAULT 0,
				dropped         BIGINT UNSIGNED NOT NULL DEFAULT 0,
				decode_errors   BIGINT UNSIGNED NOT NULL DEFAULT 0
			);
	`)
}

func (c *mysqlConn) initRecordTbl() error {
	err := c.exec(`
			CREATE TABLE IF NOT EXISTS records
			(
				session_id      VARCHAR(64)     NOT NULL,
				file_offset     BIGINT          NOT NULL,
				ts              BIGINT          NOT NULL,
				seq             SMALLINT        NOT NULL,
				sysid           SMALLINT        NOT NULL,
				compid          SMALLINT        NOT NULL,
				msg_type        VARCHAR(64)     NOT NULL,
				payload         BLOB            NOT NULL,
				PRIMARY KEY (session_id, file_offset),
				FOREIGN KEY (session_id) REFERENCES sessions(id)
			);
	`)
	if err != nil {
		return err
	}
	return c.createIndex("records", "index_records_type", []string{"session_id", "msg_type"})
}

func (c *mysqlConn) dropAllTables() error {
	if err := c.exec("DROP TABLE IF EXISTS records;"); err != nil {
		return err
	}
	return c.exec("DROP TABLE IF EXISTS sessions;")
}

func (c *mysqlConn) query(q string, args ...interface{}) (*sql.Rows, error) {
	return c.conn.Query(q, args...)
}

func (c *mysqlConn) queryOne(q string, args ...interface{}) *sql.Row {
	return c.conn.QueryRow(q, args...)
}

func (c *mysqlConn) exec(q string, args ...interface{}) error {
	_, err := c.conn.Exec(q, args...)
	return err
}

func (c *mysqlConn) inTx(fn func(exec func(q string, args ...interface{}) error) error) error {
	return runInTx(c.conn, func(q string) string { return q }, fn)
}

func (c *mysqlConn) close() error {
	return c.conn.Close()
}

func (c *mysqlConn) createIndex(tableName, indexName string, columns []string) error {
	existed, err := c.isIndexExisted(tableName, indexName)
	if err != nil {
		return err
	}
	if !existed {
		return c.exec(fmt.Sprintf("CREATE INDEX %s ON %s(%s);", indexName, tableName, strings.Join(columns, ",")))
	}
	return nil
}

func (c *mysqlConn) isIndexExisted(tableName, indexName string) (bool, error) {
	row := c.queryOne(`
						SELECT COUNT(*)
						FROM information_schema.statistics
						WHERE TABLE_SCHEMA = DATABASE()
							AND TABLE_NAME = ?
							AND INDEX_NAME = ?;`, tableName, indexName)
	var counter uint64
	if err := row.Scan(&counter); err != nil {
		return false, err
	}
	return counter >= 1, nil
}

func newMySQLConnection(opts Options) (dbConn, error) {
	connStr := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		opts.User, opts.Password, opts.Host, opts.Port, opts.Database)
	db, err := sql.Open("mysql", connStr)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(MaxOpenConnections)
	db.SetMaxIdleConns(MaxIdleConnections)
	return &mysqlConn{conn: db}, nil
}
