package store

import "database/sql"

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx. Stores
// normally run against the DB; the rotation engine rebinds them onto a
// transaction with WithTx so a whole cycle-close commits or rolls back as
// one unit.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}
