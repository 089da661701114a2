package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
)

func init() {
	adapter.Register(Name, func(logger *slog.Logger) adapter.Adapter { return New(logger) }, "sqlite3")
}
