package duckdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, cfg adapter.Config) *Adapter {
	t.Helper()
	adp := New(nil)
	require.NoError(t, adp.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = adp.Close() })
	return adp
}

func TestAdapter_Connect(t *testing.T) {
	tests := []struct {
		name      string
		setupPath func(t *testing.T) string
		verify    func(t *testing.T, path string)
	}{
		{
			name: "in-memory",
			setupPath: func(_ *testing.T) string {
				return ""
			},
		},
		{
			name: "file-based",
			setupPath: func(t *testing.T) string {
				tmpDir := t.TempDir()
				return filepath.Join(tmpDir, "test.duckdb")
			},
			verify: func(t *testing.T, path string) {
				_, err := os.Stat(path)
				assert.False(t, os.IsNotExist(err), "database file was not created")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := tt.setupPath(t)
			adp := connect(t, adapter.Config{Database: dbPath})
			assert.True(t, adp.IsConnected())

			if tt.verify != nil {
				tt.verify(t, dbPath)
			}
		})
	}
}

func TestAdapter_NotConnected(t *testing.T) {
	adp := New(nil)
	_, err := adp.Exec(context.Background(), nil, adapter.ReturnScalar, "SELECT 1", nil)
	assert.ErrorIs(t, err, adapter.ErrNotConnected)
}

func TestAdapter_Close(t *testing.T) {
	tests := []struct {
		name    string
		connect bool
	}{
		{"close without connect", false},
		{"close after connect", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adp := New(nil)
			if tt.connect {
				require.NoError(t, adp.Connect(context.Background(), adapter.Config{}))
			}
			assert.NoError(t, adp.Close())
		})
	}
}

func TestAdapter_Exec(t *testing.T) {
	ctx := context.Background()
	adp := connect(t, adapter.Config{})

	_, err := adp.Exec(ctx, nil, adapter.ReturnCommand, `
		CREATE TABLE orders (
			order_id INTEGER,
			customer VARCHAR,
			amount DOUBLE
		)`, nil)
	require.NoError(t, err)

	res, err := adp.Exec(ctx, nil, adapter.ReturnCommand,
		"INSERT INTO orders VALUES (1, 'Alice', 100.0), (2, 'Alice', 150.0), (3, 'Bob', 200.0)", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsAffected)

	res, err = adp.Exec(ctx, nil, adapter.ReturnScalar, "SELECT COUNT(*) FROM orders WHERE customer = @who",
		[]adapter.Param{{Name: "who", Value: "Alice"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Scalar())

	res, err = adp.Exec(ctx, nil, adapter.ReturnRecordset, `
		SELECT customer, SUM(amount) AS total
		FROM orders
		GROUP BY customer
		ORDER BY total DESC`, nil)
	require.NoError(t, err)
	rows := res.Recordset()
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0]["customer"])
	assert.InEpsilon(t, 250.0, rows[0]["total"], 0.001)
	assert.Equal(t, []string{"customer", "total"}, res.Sets[0].Columns)
}

func TestConnect_WithSettings(t *testing.T) {
	adp := connect(t, adapter.Config{
		Params: map[string]any{
			"settings": map[string]any{
				"threads": 2,
			},
		},
	})

	res, err := adp.Exec(context.Background(), nil, adapter.ReturnScalar, "SELECT current_setting('threads')", nil)
	require.NoError(t, err)
	assert.Equal(t, "2", fmt.Sprint(res.Scalar()))
}

func TestConnect_InvalidParams(t *testing.T) {
	adp := New(nil)
	err := adp.Connect(context.Background(), adapter.Config{Params: map[string]any{"bogus": true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duckdb params")
	assert.False(t, adp.IsConnected())
}

func TestAdapter_Registry(t *testing.T) {
	factory, ok := adapter.Get(Name)
	require.True(t, ok)
	_, ok = factory(nil).(*Adapter)
	assert.True(t, ok)
}
