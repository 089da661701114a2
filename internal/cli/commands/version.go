package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(info BuildInfo) *cobra.Command {
	var short bool
	if info.Go == "" {
		info.Go = runtime.Version()
	}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Print the sqlext version with the commit and date it was built from.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if short {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), info.Version)
				return nil
			}
			if outputFormat() == formatJSON {
				return renderJSON(cmd.OutOrStdout(), info)
			}
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "sqlext v%s\n", info.Version)
			_, _ = fmt.Fprintln(w, "SQL macro and schema rewriting engine")
			_, _ = fmt.Fprintf(w, "  commit: %s\n  built:  %s\n  go:     %s\n", info.Commit, info.Date, info.Go)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
