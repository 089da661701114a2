package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptNames(scripts []Script) []string {
	names := make([]string, len(scripts))
	for i, s := range scripts {
		names[i] = s.Name
	}
	return names
}

func TestFindAndFlattenScripts(t *testing.T) {
	tree := ScriptTree{
		"init": map[string]any{
			"tables": "create table a (x int)",
			"data":   "insert into a values (1)",
			StartKey: "select 1",
		},
		"demo": map[string]any{
			"data": "insert into a values (2)",
		},
		"drop": "drop table a",
	}

	tests := []struct {
		name string
		path []string
		want []string
	}{
		{"whole tree", nil, []string{"init.__START__", "demo.data", "drop", "init.data", "init.tables"}},
		{"subtree", []string{"init"}, []string{"init.__START__", "init.data", "init.tables"}},
		{"leaf", []string{"init", "tables"}, []string{"init.tables"}},
		{"wildcard", []string{"*", "data"}, []string{"demo.data", "init.data"}},
		{"missing", []string{"nope"}, nil},
		{"too deep", []string{"drop", "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlattenScripts(FindScripts(tree, tt.path)...)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, scriptNames(got))
		})
	}
}

func TestFlattenScripts_Merge(t *testing.T) {
	got := FlattenScripts(
		ScriptTree{"a": map[string]any{"b": "one"}},
		ScriptTree{"a": ScriptTree{"b": "two"}},
	)
	require.Len(t, got, 1)
	assert.Equal(t, "one\r\ntwo", got[0].SQL)
}

func TestRunScripts(t *testing.T) {
	d := newTestDB(t, nil)
	ctx := context.Background()

	tree := ScriptTree{
		"setup": map[string]any{
			"1_table": "create table log (msg text); insert into log values ('a')",
			"2_more":  "insert into log values ($pad('b'))",
		},
	}

	var batches []string
	opts := ScriptOptions{
		Funcs: []macro.Entry{{Name: "$pad", Func: &macro.Function{Params: []string{"v"}, SQL: "'-' || %%%v%%%"}}},
		OnSQL: func(script string, _ int, _ string) bool {
			batches = append(batches, script)
			return true
		},
	}
	results, err := d.RunScripts(ctx, tree, []string{"setup"}, opts)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"setup.1_table", "setup.1_table", "setup.2_more"}, batches)
	for _, r := range results {
		assert.Equal(t, adapter.ReturnMultiRecordset, r.ReturnType)
	}

	rows, err := d.Recordset(ctx, "select msg from log order by msg")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "-b", rows[0]["msg"])
}

func TestRunScripts_Skip(t *testing.T) {
	d := newTestDB(t, nil)

	var seen []error
	results, err := d.RunScripts(context.Background(), ScriptTree{"s": "delete from item; select 1"}, nil, ScriptOptions{
		OnSQL:       func(_ string, batch int, _ string) bool { return batch != 1 },
		OnSQLResult: func(err error, _ *adapter.Result, _ string) { seen = append(seen, err) },
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []error{nil}, seen)

	v, err := d.Scalar(context.Background(), "select count(*) from item")
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestRunScripts_Errors(t *testing.T) {
	d := newTestDB(t, nil)
	ctx := context.Background()

	_, err := d.RunScripts(ctx, ScriptTree{"a": "select 1"}, []string{"a", "b"}, ScriptOptions{})
	require.Error(t, err)
	assert.Equal(t, "no scripts found for script ID: a.b", err.Error())

	var hookErr error
	_, err = d.RunScripts(ctx, ScriptTree{"bad": "select * from missing_table"}, nil, ScriptOptions{
		OnSQLResult: func(err error, _ *adapter.Result, _ string) { hookErr = err },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script bad")
	assert.Error(t, hookErr)
}

func TestRunScriptsInFolder(t *testing.T) {
	d := newTestDB(t, nil)
	dir := t.TempDir()

	files := map[string]string{
		"init_02.sql": "insert into item (id, name, qty) values (4, 'pin', 1)",
		"init_01.sql": "insert into item (id, name, qty) values (3, 'cap', 1)",
		"other.sql":   "delete from item",
		"init_03.txt": "delete from item",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	var order []string
	results, err := d.RunScriptsInFolder(context.Background(), dir, "init_", ScriptOptions{
		OnSQL: func(script string, _ int, _ string) bool {
			order = append(order, script)
			return true
		},
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"init_01.sql", "init_02.sql"}, order)

	v, err := d.Scalar(context.Background(), "select count(*) from item")
	require.NoError(t, err)
	assert.EqualValues(t, 4, v)

	_, err = d.RunScriptsInFolder(context.Background(), filepath.Join(dir, "missing"), "", ScriptOptions{})
	require.Error(t, err)
}
