package db

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecTasks(t *testing.T) {
	d := newTestDB(t, nil)

	scalar := func(q string) Task {
		return func(ctx context.Context, _ Results) (any, error) {
			return d.Scalar(ctx, q)
		}
	}

	var sawCount any
	results, err := d.ExecTasks(context.Background(),
		Group{
			"count": scalar("select count(*) from item"),
			"max":   scalar("select max(qty) from item"),
		},
		Group{
			"check": func(_ context.Context, prev Results) (any, error) {
				sawCount = prev["count"].(TaskResult).Value
				return "ok", nil
			},
		},
	)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.EqualValues(t, 2, results["count"].(TaskResult).Value)
	assert.EqualValues(t, 25, results["max"].(TaskResult).Value)
	assert.EqualValues(t, 2, sawCount)
	assert.Equal(t, "ok", results["check"].(TaskResult).Value)
}

func TestExecTasks_DuplicateKey(t *testing.T) {
	d := newTestDB(t, nil)
	noop := func(context.Context, Results) (any, error) { return nil, nil }

	_, err := d.ExecTasks(context.Background(), Group{"a": noop}, Group{"a": noop})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a" defined multiple times`)
}

func TestExecTasks_Limit(t *testing.T) {
	d := newTestDB(t, nil)

	var running, peak atomic.Int32
	task := func(context.Context, Results) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	g := Group{}
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		g[k] = task
	}
	_, err := d.ExecTasks(context.Background(), g)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(TaskParallelism))
}

func TestExecTasks_Error(t *testing.T) {
	d := newTestDB(t, nil)
	boom := errors.New("boom")

	ran := false
	_, err := d.ExecTasks(context.Background(),
		Group{"fail": func(context.Context, Results) (any, error) { return nil, boom }},
		Group{"later": func(context.Context, Results) (any, error) {
			ran = true
			return nil, nil
		}},
	)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "task fail")
	assert.False(t, ran)
}

func TestExecTransTasks(t *testing.T) {
	d := newTestDB(t, nil)
	ctx := context.Background()

	results, err := d.ExecTransTasks(ctx,
		TransTask{Key: "insert", Run: func(ctx context.Context, tx *sql.Tx, _ Results) (any, error) {
			res, err := d.Exec(ctx, tx, adapter.ReturnCommand, "insert into item (id, name, qty) values (3, 'washer', 5)")
			if err != nil {
				return nil, err
			}
			return res.RowsAffected, nil
		}},
		TransTask{Key: "count", Run: func(ctx context.Context, tx *sql.Tx, prev Results) (any, error) {
			if prev["insert"] != int64(1) {
				return nil, errors.New("insert result missing")
			}
			res, err := d.Exec(ctx, tx, adapter.ReturnScalar, "select count(*) from item")
			if err != nil {
				return nil, err
			}
			return res.Scalar(), nil
		}},
	)
	require.NoError(t, err)
	assert.EqualValues(t, 3, results["count"])
}

func TestExecTransTasks_Rollback(t *testing.T) {
	d := newTestDB(t, nil)
	ctx := context.Background()

	_, err := d.ExecTransTasks(ctx,
		TransTask{Key: "delete", Run: func(ctx context.Context, tx *sql.Tx, _ Results) (any, error) {
			return d.Exec(ctx, tx, adapter.ReturnCommand, "delete from item")
		}},
		TransTask{Key: "fail", Run: func(context.Context, *sql.Tx, Results) (any, error) {
			return nil, errors.New("stop")
		}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task fail")

	v, err := d.Scalar(ctx, "select count(*) from item")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestExecTransTasks_DuplicateKey(t *testing.T) {
	d := newTestDB(t, nil)
	run := func(context.Context, *sql.Tx, Results) (any, error) { return nil, nil }

	_, err := d.ExecTransTasks(context.Background(), TransTask{Key: "x", Run: run}, TransTask{Key: "x", Run: run})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined multiple times")
}
