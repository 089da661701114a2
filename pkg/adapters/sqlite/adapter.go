// Package sqlite provides a SQLite database adapter backed by the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/sqlext/pkg/adapter"

	_ "modernc.org/sqlite" // SQLite driver (pure Go)
)

// Name is the registered adapter name.
const Name = "sqlite"

const memory = ":memory:"

// Adapter implements the adapter.Adapter interface for SQLite.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new SQLite adapter instance.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Name returns the registered adapter name.
func (a *Adapter) Name() string {
	return Name
}

// Connect opens the database file named by the DSN or database setting.
// An empty path opens an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	path := cfg.DSN
	if path == "" {
		path = cfg.Database
	}
	if path == "" {
		path = memory
	}

	a.Logger.Debug("connecting to sqlite", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite connection: %w", err)
	}
	// Every pooled connection to :memory: would see its own database.
	if path == memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping sqlite: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// ScriptReturnType runs each script statement as a multi-recordset.
func (a *Adapter) ScriptReturnType() adapter.ReturnType {
	return adapter.ReturnMultiRecordset
}

var _ adapter.Adapter = (*Adapter)(nil)
