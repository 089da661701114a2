package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotConnected is returned when an adapter is used before Connect.
var ErrNotConnected = errors.New("database connection not established")

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, Begin and Exec implementations.
type BaseSQLAdapter struct {
	DB           *sql.DB
	Cfg          Config
	Logger       *slog.Logger
	Placeholders PlaceholderStyle
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Begin starts a transaction.
func (b *BaseSQLAdapter) Begin(ctx context.Context) (*sql.Tx, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// SplitBatch splits a script into statements.
func (b *BaseSQLAdapter) SplitBatch(sqlText string) []string {
	return SplitStatements(sqlText)
}

// ScriptReturnType runs scripts as scalars.
func (b *BaseSQLAdapter) ScriptReturnType() ReturnType {
	return ReturnScalar
}

// Exec runs sqlText and shapes the result by rt. A nil tx runs on the pool.
func (b *BaseSQLAdapter) Exec(ctx context.Context, tx *sql.Tx, rt ReturnType, sqlText string, params []Param) (*Result, error) {
	if b.DB == nil {
		return nil, ErrNotConnected
	}

	var q Querier = b.DB
	if tx != nil {
		q = tx
	}

	b.logger().Debug("executing statement",
		slog.String("return", rt.String()),
		slog.Int("params", len(params)),
		slog.Bool("transaction", tx != nil))

	result := &Result{ReturnType: rt}
	switch rt {
	case ReturnCommand:
		query, args, err := Bind(sqlText, params, b.Placeholders)
		if err != nil {
			return nil, err
		}
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute SQL: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.RowsAffected = n
		}

	case ReturnMultiRecordset:
		for _, stmt := range SplitStatements(sqlText) {
			set, err := b.query(ctx, q, stmt, params)
			if err != nil {
				return nil, err
			}
			result.Sets = append(result.Sets, set)
		}

	default:
		set, err := b.query(ctx, q, sqlText, params)
		if err != nil {
			return nil, err
		}
		result.Sets = []Recordset{set}
	}
	return result, nil
}

func (b *BaseSQLAdapter) query(ctx context.Context, q Querier, sqlText string, params []Param) (Recordset, error) {
	query, args, err := Bind(sqlText, params, b.Placeholders)
	if err != nil {
		return Recordset{}, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return Recordset{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return ScanRecordset(rows)
}

// ScanRecordset reads every row of rows. []byte values become strings.
func ScanRecordset(rows *sql.Rows) (Recordset, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Recordset{}, fmt.Errorf("failed to read columns: %w", err)
	}

	set := Recordset{Columns: columns, Rows: []map[string]any{}}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return Recordset{}, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		set.Rows = append(set.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Recordset{}, fmt.Errorf("error iterating rows: %w", err)
	}
	return set, nil
}
