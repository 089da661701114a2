// Package db runs rewritten SQL through a database adapter.
//
// Every statement passes through the rewriter before it reaches the
// driver. Helpers shape results by return type, and task groups run
// statements in bounded parallel batches or inside one transaction.
package db

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/leapstack-labs/sqlext/pkg/rewrite"
)

// Config configures a DB.
type Config struct {
	Adapter  adapter.Adapter
	Rewriter *rewrite.Rewriter
	Logger   *slog.Logger

	// LogRequests logs every statement with its parameters.
	LogRequests bool
}

// DB executes rewritten SQL on one adapter.
type DB struct {
	adapter     adapter.Adapter
	rewriter    *rewrite.Rewriter
	logger      *slog.Logger
	logRequests bool
}

// New creates a DB. A nil Rewriter rewrites nothing but escape envelopes.
func New(cfg Config) (*DB, error) {
	if cfg.Adapter == nil {
		return nil, errors.New("no database adapter configured")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rw := cfg.Rewriter
	if rw == nil {
		var err error
		if rw, err = rewrite.New(rewrite.Config{Logger: logger}); err != nil {
			return nil, err
		}
	}

	return &DB{
		adapter:     cfg.Adapter,
		rewriter:    rw,
		logger:      logger,
		logRequests: cfg.LogRequests,
	}, nil
}

// Adapter returns the underlying adapter.
func (d *DB) Adapter() adapter.Adapter { return d.adapter }

// Rewriter returns the rewriter statements pass through.
func (d *DB) Rewriter() *rewrite.Rewriter { return d.rewriter }

// ParseSQL rewrites sql without running it.
func (d *DB) ParseSQL(sqlText string) (string, error) {
	return d.rewriter.ParseSQL(sqlText)
}

// Exec rewrites sqlText and runs it, in tx when tx is non-nil.
func (d *DB) Exec(ctx context.Context, tx *sql.Tx, rt adapter.ReturnType, sqlText string, params ...adapter.Param) (*adapter.Result, error) {
	parsed, err := d.rewriter.ParseSQL(sqlText)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, tx, rt, parsed, params)
}

// run executes already rewritten SQL.
func (d *DB) run(ctx context.Context, tx *sql.Tx, rt adapter.ReturnType, sqlText string, params []adapter.Param) (*adapter.Result, error) {
	if d.logRequests {
		attrs := []any{slog.String("sql", sqlText), slog.String("return", rt.String())}
		for _, p := range params {
			attrs = append(attrs, slog.Any("@"+p.Name, p.Value))
		}
		d.logger.Info("db request", attrs...)
	}
	return d.adapter.Exec(ctx, tx, rt, sqlText, params)
}

// Recordset returns the rows of the first result set.
func (d *DB) Recordset(ctx context.Context, sqlText string, params ...adapter.Param) ([]map[string]any, error) {
	res, err := d.Exec(ctx, nil, adapter.ReturnRecordset, sqlText, params...)
	if err != nil {
		return nil, err
	}
	return res.Recordset(), nil
}

// MultiRecordset returns the rows of every statement in sqlText.
func (d *DB) MultiRecordset(ctx context.Context, sqlText string, params ...adapter.Param) ([][]map[string]any, error) {
	res, err := d.Exec(ctx, nil, adapter.ReturnMultiRecordset, sqlText, params...)
	if err != nil {
		return nil, err
	}
	return res.Recordsets(), nil
}

// Row returns the first row, or nil when there is none.
func (d *DB) Row(ctx context.Context, sqlText string, params ...adapter.Param) (map[string]any, error) {
	res, err := d.Exec(ctx, nil, adapter.ReturnRow, sqlText, params...)
	if err != nil {
		return nil, err
	}
	return res.Row(), nil
}

// Command returns the number of rows affected.
func (d *DB) Command(ctx context.Context, sqlText string, params ...adapter.Param) (int64, error) {
	res, err := d.Exec(ctx, nil, adapter.ReturnCommand, sqlText, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Scalar returns the first column of the first row, or nil.
func (d *DB) Scalar(ctx context.Context, sqlText string, params ...adapter.Param) (any, error) {
	res, err := d.Exec(ctx, nil, adapter.ReturnScalar, sqlText, params...)
	if err != nil {
		return nil, err
	}
	return res.Scalar(), nil
}

// Close closes the adapter.
func (d *DB) Close() error {
	return d.adapter.Close()
}
