package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/leapstack-labs/sqlext/pkg/rewrite"
)

// StartKey marks scripts that run before their siblings.
const StartKey = "__START__"

// ScriptTree is a nested set of named scripts. Values are either SQL text
// or another tree, as map[string]any or ScriptTree.
type ScriptTree map[string]any

// Script is one named script after flattening.
type Script struct {
	Name string
	SQL  string
}

// ScriptOptions controls RunScripts.
type ScriptOptions struct {
	// Funcs are SQL functions visible only to these scripts.
	Funcs []macro.Entry

	// OnSQL is called before each batch runs. Returning false skips it.
	OnSQL func(script string, batch int, sql string) bool

	// OnSQLResult is called after each batch.
	OnSQLResult func(err error, res *adapter.Result, sql string)
}

// FindScripts returns the subtrees of tree addressed by path.
// A "*" segment matches every key at that level.
func FindScripts(tree ScriptTree, path []string) []ScriptTree {
	if len(path) == 0 {
		return []ScriptTree{tree}
	}

	var matched []ScriptTree
	for _, key := range sortedKeys(tree) {
		if path[0] != "*" && path[0] != key {
			continue
		}
		switch v := tree[key].(type) {
		case string:
			if len(path) == 1 {
				matched = append(matched, ScriptTree{key: v})
			}
		default:
			if sub, ok := asTree(v); ok {
				for _, m := range FindScripts(sub, path[1:]) {
					matched = append(matched, ScriptTree{key: map[string]any(m)})
				}
			}
		}
	}
	return matched
}

// FlattenScripts turns trees into dotted script names in run order.
// Keys sort at every level, StartKey entries go first, and scripts that
// share a name are joined.
func FlattenScripts(trees ...ScriptTree) []Script {
	var scripts []Script
	index := make(map[string]int)
	var walk func(prefix string, t ScriptTree)
	walk = func(prefix string, t ScriptTree) {
		for _, key := range sortedKeys(t) {
			name := key
			if prefix != "" {
				name = prefix + "." + key
			}
			switch v := t[key].(type) {
			case string:
				if i, ok := index[name]; ok {
					scripts[i].SQL += "\r\n" + v
					continue
				}
				index[name] = len(scripts)
				scripts = append(scripts, Script{Name: name, SQL: v})
			default:
				if sub, ok := asTree(v); ok {
					walk(name, sub)
				}
			}
		}
	}
	for _, t := range trees {
		walk("", t)
	}

	sort.SliceStable(scripts, func(i, j int) bool {
		return isStart(scripts[i].Name) && !isStart(scripts[j].Name)
	})
	return scripts
}

func isStart(name string) bool {
	return slices.Contains(strings.Split(name, "."), StartKey)
}

func sortedKeys(t ScriptTree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asTree(v any) (ScriptTree, bool) {
	switch t := v.(type) {
	case ScriptTree:
		return t, true
	case map[string]any:
		return ScriptTree(t), true
	default:
		return nil, false
	}
}

// RunScripts runs every script under path in tree.
func (d *DB) RunScripts(ctx context.Context, tree ScriptTree, path []string, opts ScriptOptions) ([]*adapter.Result, error) {
	found := FindScripts(tree, path)
	scripts := FlattenScripts(found...)
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no scripts found for script ID: %s", strings.Join(path, "."))
	}
	return d.RunScriptList(ctx, scripts, opts)
}

// RunScriptList runs scripts in order. Each script is rewritten, split
// into batches by the adapter and run batch by batch.
func (d *DB) RunScriptList(ctx context.Context, scripts []Script, opts ScriptOptions) ([]*adapter.Result, error) {
	rw := d.rewriter
	if len(opts.Funcs) > 0 {
		var err error
		if rw, err = rw.WithFuncs(opts.Funcs...); err != nil {
			return nil, err
		}
	}

	var results []*adapter.Result
	for _, s := range scripts {
		res, err := d.runScript(ctx, rw, s, opts)
		results = append(results, res...)
		if err != nil {
			return results, fmt.Errorf("script %s: %w", s.Name, err)
		}
	}
	return results, nil
}

func (d *DB) runScript(ctx context.Context, rw *rewrite.Rewriter, s Script, opts ScriptOptions) ([]*adapter.Result, error) {
	parsed, err := rw.ParseSQL(s.SQL)
	if err != nil {
		return nil, err
	}

	rt := d.adapter.ScriptReturnType()
	var results []*adapter.Result
	for bi, batch := range d.adapter.SplitBatch(parsed) {
		if strings.TrimSpace(batch) == "" {
			continue
		}
		if opts.OnSQL != nil && !opts.OnSQL(s.Name, bi+1, batch) {
			d.logger.Debug("batch skipped", slog.String("script", s.Name), slog.Int("batch", bi+1))
			continue
		}

		res, err := d.run(ctx, nil, rt, batch, nil)
		if opts.OnSQLResult != nil {
			opts.OnSQLResult(err, res, batch)
		}
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// RunScriptsInFolder runs the .sql files in dir whose names start with
// prefix, in name order.
func (d *DB) RunScriptsInFolder(ctx context.Context, dir, prefix string, opts ScriptOptions) ([]*adapter.Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading script folder: %w", err)
	}

	var scripts []Script
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".sql") || !strings.HasPrefix(name, prefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading script %s: %w", name, err)
		}
		scripts = append(scripts, Script{Name: name, SQL: string(data)})
	}
	if len(scripts) == 0 {
		return nil, nil
	}
	return d.RunScriptList(ctx, scripts, opts)
}
