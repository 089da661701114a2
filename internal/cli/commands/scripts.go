package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/sqlext/internal/db"
	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ScriptsOptions holds options for the scripts command.
type ScriptsOptions struct {
	Prefix string
	DryRun bool
}

// ScriptBatch is one executed batch in the JSON output.
type ScriptBatch struct {
	Script string `json:"script"`
	Batch  int    `json:"batch"`
	SQL    string `json:"sql"`
	Error  string `json:"error,omitempty"`
}

// NewScriptsCommand creates the scripts command.
func NewScriptsCommand() *cobra.Command {
	opts := &ScriptsOptions{}

	cmd := &cobra.Command{
		Use:   "scripts <dir|file.yaml> [script.id]",
		Short: "Run SQL scripts against the target database",
		Long: `Run SQL scripts against the target database.

Given a directory, every .sql file in it runs in name order; --prefix limits
the files. Given a YAML file, the file holds a tree of named scripts and the
optional script ID selects part of it, with "*" matching any key at one
level. Scripts under a __START__ key run first.

Each script is rewritten, split into batches and run batch by batch.`,
		Example: `  # Run every .sql file in a folder
  sqlext scripts migrations

  # Only files starting with 001_
  sqlext scripts migrations --prefix 001_

  # Run the init scripts of every module in a script tree
  sqlext scripts scripts.yaml "*.init"

  # Print the batches without running them
  sqlext scripts scripts.yaml demo --dry-run`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 1 {
				id = args[1]
			}
			return runScripts(cmd, args[0], id, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "Only run files whose names start with this prefix")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the batches without running them")

	return cmd
}

func runScripts(cmd *cobra.Command, source, id string, opts *ScriptsOptions) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("failed to read scripts: %w", err)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmdCtx.Cfg.RequireTarget(); err != nil {
		return err
	}

	ctx := commandCtx(cmd)
	database, err := cmdCtx.Engine.DB(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	jsonOut := cmdCtx.Cfg.OutputFormat == formatJSON
	var batches []ScriptBatch

	scriptOpts := db.ScriptOptions{
		OnSQL: func(script string, batch int, sql string) bool {
			batches = append(batches, ScriptBatch{Script: script, Batch: batch, SQL: sql})
			if !jsonOut && (opts.DryRun || cmdCtx.Cfg.Verbose) {
				_, _ = fmt.Fprintf(w, "-- %s [%d]\n%s\n", script, batch, strings.TrimSpace(sql))
			}
			return !opts.DryRun
		},
		OnSQLResult: func(err error, _ *adapter.Result, _ string) {
			if err != nil && len(batches) > 0 {
				batches[len(batches)-1].Error = err.Error()
			}
		},
	}

	var results []*adapter.Result
	if info.IsDir() {
		results, err = database.RunScriptsInFolder(ctx, source, opts.Prefix, scriptOpts)
	} else {
		var tree db.ScriptTree
		if tree, err = loadScriptTree(source); err != nil {
			return err
		}
		var path []string
		if id != "" {
			path = strings.Split(id, ".")
		}
		results, err = database.RunScripts(ctx, tree, path, scriptOpts)
	}

	if jsonOut {
		if jerr := renderJSON(w, batches); jerr != nil {
			return jerr
		}
		return err
	}
	if err != nil {
		return err
	}
	if !opts.DryRun {
		_, _ = fmt.Fprintf(w, "Ran %d batch(es)\n", len(results))
	}
	return nil
}

// loadScriptTree reads a YAML file of nested named scripts.
func loadScriptTree(path string) (db.ScriptTree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return db.ScriptTree(tree), nil
}
