package sqlstorage

import "database/sql"

type dbConn interface {
	initSessionTbl() error
	initRecordTbl() error
	dropAllTables() error
	query(q string, args ...interface{}) (*sql.Rows, error)
	queryOne(q string, args ...interface{}) *sql.Row
	exec(q string, args ...interface{}) error
	// inTx runs fn in a transaction. Statements passed to the exec function
	// use '?' placeholders like every other query here.
	inTx(fn func(exec func(q string, args ...interface{}) error) error) error
	close() error
}

func runInTx(db *sql.DB, rebind func(string) string, fn func(exec func(q string, args ...interface{}) error) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	err = fn(func(q string, args ...interface{}) error {
		_, err := tx.Exec(rebind(q), args...)
		return err
	})
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
