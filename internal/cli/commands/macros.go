package commands

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/spf13/cobra"
)

// MacroInfo describes one registry entry in command output.
type MacroInfo struct {
	Name   string   `json:"name"`
	Kind   string   `json:"kind"`
	Params []string `json:"params,omitempty"`
	Body   string   `json:"body"`
	Doc    string   `json:"doc,omitempty"`
	Source string   `json:"source,omitempty"`
}

// NewMacrosCommand creates the macros command.
func NewMacrosCommand() *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:     "macros",
		Aliases: []string{"functions"},
		Short:   "List the loaded macros and SQL functions",
		Long: `List every macro and SQL function loaded from the macros directory.

Plain macros are used as %%%name%%%. Functions are called either as
%%%name(args)%%% or with ordinary SQL call syntax, name(args).`,
		Example: `  # List everything
  sqlext macros

  # Only entries whose name contains "date"
  sqlext macros --filter date

  # As JSON
  sqlext macros --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMacros(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "Only list entries whose name contains this text")

	return cmd
}

func runMacros(cmd *cobra.Command, filter string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	infos := macroInfos(cmdCtx.Engine.Registry().Entries(), filter)

	w := cmd.OutOrStdout()
	if cmdCtx.Cfg.OutputFormat == formatJSON {
		return renderJSON(w, infos)
	}
	renderMacroTable(w, infos, cmdCtx.Engine.Namespaces())
	return nil
}

func macroInfos(entries []macro.Entry, filter string) []MacroInfo {
	filter = strings.ToLower(filter)
	infos := make([]MacroInfo, 0, len(entries))
	for _, e := range entries {
		if filter != "" && !strings.Contains(strings.ToLower(e.Name), filter) {
			continue
		}
		info := MacroInfo{Name: e.Name, Kind: "value", Body: e.Value}
		if fn := e.Func; fn != nil {
			info.Kind = fn.Kind()
			info.Params = fn.Params
			info.Doc = fn.Doc
			info.Source = fn.Source
			info.Body = fn.SQL
			if fn.Exec != "" {
				info.Body = fn.Exec
			}
		}
		infos = append(infos, info)
	}
	return infos
}

func renderMacroTable(w io.Writer, infos []MacroInfo, namespaces []string) {
	if len(infos) == 0 {
		_, _ = fmt.Fprintln(w, "No macros loaded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Name", "Kind", "Params", "Body", "Source"})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: 60}})

	for _, info := range infos {
		source := ""
		if info.Source != "" {
			source = filepath.Base(info.Source)
		}
		t.AppendRow(table.Row{info.Name, info.Kind, strings.Join(info.Params, ", "), oneLine(info.Body), source})
	}
	t.Render()

	_, _ = fmt.Fprintf(w, "(%d entries", len(infos))
	if len(namespaces) > 0 {
		_, _ = fmt.Fprintf(w, ", namespaces: %s", strings.Join(namespaces, ", "))
	}
	_, _ = fmt.Fprintln(w, ")")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
