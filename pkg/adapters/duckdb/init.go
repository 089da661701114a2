package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
)

func newAdapter(logger *slog.Logger) adapter.Adapter { return New(logger) }

func init() {
	adapter.Register(Name, newAdapter)
}
