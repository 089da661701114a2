package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlext/internal/db"
	"github.com/leapstack-labs/sqlext/pkg/adapter"
	"github.com/spf13/cobra"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	File   string
	Return string
	Params []string
	Types  string
	DryRun bool
}

// returnTypes maps --return values to adapter return types.
var returnTypes = map[string]adapter.ReturnType{
	"recordset":      adapter.ReturnRecordset,
	"multirecordset": adapter.ReturnMultiRecordset,
	"row":            adapter.ReturnRow,
	"command":        adapter.ReturnCommand,
	"scalar":         adapter.ReturnScalar,
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [SQL]",
		Short: "Rewrite SQL and run it against the target database",
		Long: `Rewrite SQL and run it against the target database.

The SQL is taken from the argument, from --file, or from stdin. Parameters
are referenced as @name and passed with --param name=value. --types gives
one type character per parameter: s (varchar), i (bigint) or d (decimal).`,
		Example: `  # Query rows
  sqlext exec "select * from %%%orders%%% where id = @id" --param id=7

  # Typed parameters
  sqlext exec "select @a + @b" --param a=1 --param b=2.5 --types id --return scalar

  # Run a file as a command
  sqlext exec --file cleanup.sql --return command

  # Show the rewritten SQL only
  sqlext exec --file report.sql --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read SQL from file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Return, "return", "r", "recordset", "Result shape: recordset, multirecordset, row, command, scalar")
	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "Statement parameter as name=value (repeatable)")
	cmd.Flags().StringVar(&opts.Types, "types", "", "Parameter types, one of s/i/d per --param")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Print the rewritten SQL without running it")

	_ = cmd.RegisterFlagCompletionFunc("return", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"recordset", "multirecordset", "row", "command", "scalar"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runExec(cmd *cobra.Command, args []string, opts *ExecOptions) error {
	rt, ok := returnTypes[strings.ToLower(opts.Return)]
	if !ok {
		return fmt.Errorf("unknown return type %q", opts.Return)
	}

	var sqlText string
	switch {
	case len(args) > 0 && opts.File != "":
		return fmt.Errorf("give SQL as an argument or with --file, not both")
	case len(args) > 0:
		sqlText = args[0]
	default:
		var err error
		if sqlText, err = readInput(cmd.InOrStdin(), opts.File); err != nil {
			return err
		}
	}

	params, err := parseParams(opts.Params, opts.Types)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.DryRun {
		sql, err := cmdCtx.Engine.Render(sqlText, nil)
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		return writeRendered(cmd.OutOrStdout(), cmdCtx.Cfg.OutputFormat, opts.File, sql)
	}

	if err := cmdCtx.Cfg.RequireTarget(); err != nil {
		return err
	}

	ctx := commandCtx(cmd)
	database, err := cmdCtx.Engine.DB(ctx)
	if err != nil {
		return err
	}

	res, err := database.Exec(ctx, nil, rt, sqlText, params...)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), res, cmdCtx.Cfg.OutputFormat)
}

// parseParams builds statement parameters from name=value pairs. Without
// types every value is a string.
func parseParams(pairs []string, types string) ([]adapter.Param, error) {
	names := make([]string, 0, len(pairs))
	raw := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "@")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid param %q: want name=value", pair)
		}
		if _, dup := raw[name]; dup {
			return nil, fmt.Errorf("param %q given more than once", name)
		}
		names = append(names, name)
		raw[name] = value
	}

	if types == "" {
		params := make([]adapter.Param, len(names))
		for i, name := range names {
			params[i] = db.P(name, raw[name])
		}
		return params, nil
	}

	values := make(map[string]any, len(raw))
	for i, name := range names {
		if i >= len(types) {
			break
		}
		v, err := convertParam(types[i], raw[name])
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		values[name] = v
	}
	return db.ShortcutParams(types, names, values)
}

func convertParam(typ byte, value string) (any, error) {
	switch typ {
	case 'i':
		return strconv.ParseInt(value, 10, 64)
	case 'd':
		return strconv.ParseFloat(value, 64)
	default:
		return value, nil
	}
}
