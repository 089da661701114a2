package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/leapstack-labs/sqlext/internal/engine"
	"github.com/spf13/cobra"
)

// RenderOptions holds options for the render command.
type RenderOptions struct {
	Vars  []string
	Watch bool
}

// RenderOutput is the JSON output of the render command.
type RenderOutput struct {
	File string `json:"file,omitempty"`
	SQL  string `json:"sql"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand() *cobra.Command {
	opts := &RenderOptions{}

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render SQL with macros, functions and schema rules applied",
		Long: `Render SQL text with every macro, SQL function and schema replacement
rule applied, without running it.

The SQL is read from the given file, or from stdin when no file or "-" is
given. Use --watch to render again whenever the macro library changes.`,
		Example: `  # Render a file
  sqlext render queries/orders.sql

  # Render from stdin
  echo "select %%%now%%%" | sqlext render

  # Pass vars to exec functions
  sqlext render queries/orders.sql --var tenant=acme

  # Render as JSON
  sqlext render queries/orders.sql --output json

  # Re-render on macro changes
  sqlext render queries/orders.sql --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) > 0 {
				file = args[0]
			}
			return runRender(cmd, file, opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Vars, "var", nil, "Set a var as key=value (repeatable)")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Render again when the macro library changes")

	return cmd
}

func runRender(cmd *cobra.Command, file string, opts *RenderOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	vars, err := parseVars(cmdCtx.Cfg.Vars, opts.Vars)
	if err != nil {
		return err
	}

	input, err := readInput(cmd.InOrStdin(), file)
	if err != nil {
		return err
	}
	if file == "-" {
		file = ""
	}

	render := func() error {
		sql, err := cmdCtx.Engine.Render(input, vars)
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		return writeRendered(cmd.OutOrStdout(), cmdCtx.Cfg.OutputFormat, file, sql)
	}

	if err := render(); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	if file != "" {
		return watchRender(cmd, cmdCtx.Engine, func() error {
			// Pick up edits to the rendered file too.
			if input, err = readInput(nil, file); err != nil {
				return err
			}
			return render()
		})
	}
	return watchRender(cmd, cmdCtx.Engine, render)
}

func watchRender(cmd *cobra.Command, eng *engine.Engine, render func() error) error {
	ctx, stop := signal.NotifyContext(commandCtx(cmd), os.Interrupt)
	defer stop()

	errOut := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(errOut, "Watching %s for changes (Ctrl+C to stop)\n", eng.MacrosDir())

	return eng.Watch(ctx, func(changed []string, err error) {
		if err != nil {
			_, _ = fmt.Fprintf(errOut, "Reload failed: %v\n", err)
			return
		}
		_, _ = fmt.Fprintf(errOut, "-- reloaded after %d change(s)\n", len(changed))
		if err := render(); err != nil {
			_, _ = fmt.Fprintf(errOut, "Error: %v\n", err)
		}
	})
}

func writeRendered(w io.Writer, format, file, sql string) error {
	if format == formatJSON {
		return renderJSON(w, RenderOutput{File: file, SQL: sql})
	}
	_, err := fmt.Fprintln(w, strings.TrimRight(sql, "\n"))
	return err
}

// readInput reads file, or r when file is empty or "-".
func readInput(r io.Reader, file string) (string, error) {
	if file == "" || file == "-" {
		if r == nil {
			return "", errors.New("no input")
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

// parseVars merges key=value pairs over the configured vars.
// It returns nil when there is nothing to override.
func parseVars(base map[string]any, pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	vars := make(map[string]any, len(base)+len(pairs))
	for k, v := range base {
		vars[k] = v
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid var %q: want key=value", pair)
		}
		vars[strings.TrimSpace(key)] = value
	}
	return vars, nil
}
