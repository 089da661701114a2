// Package adapter defines the contract database drivers implement to run
// rewritten SQL.
//
// Concrete adapters live in pkg/adapters/ subdirectories and register
// themselves by name from init().
package adapter

import (
	"context"
	"database/sql"
)

// Config holds connection settings for an adapter.
type Config struct {
	Type     string
	DSN      string // used verbatim when set
	Database string
	Host     string
	Port     int
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// Querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Adapter defines the interface that all database adapters must implement.
type Adapter interface {
	// Name returns the registered adapter name.
	Name() string

	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Begin starts a transaction.
	Begin(ctx context.Context) (*sql.Tx, error)

	// Exec runs sql with named parameters and shapes the result by rt.
	// A nil tx runs on the connection pool.
	Exec(ctx context.Context, tx *sql.Tx, rt ReturnType, sql string, params []Param) (*Result, error)

	// SplitBatch splits a script into statements the driver can run one
	// at a time.
	SplitBatch(sql string) []string

	// ScriptReturnType is the return type scripts are run with.
	ScriptReturnType() ReturnType
}
