// Package db holds the relational plumbing shared by the SQLite post
// repository: the connection lifecycle and context-carried transactions.
package db

import (
	"database/sql"
)

// Database is a connection handle whose schema is ready once Connect returns.
type Database interface {
	// Connect opens the pool and applies pending schema migrations.
	Connect() error
	// Close releases the pool. It is safe to call on an unconnected handle.
	Close() error
	// DB returns the pool, or nil when not connected.
	DB() *sql.DB
}
