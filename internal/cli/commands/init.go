package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	intconfig "github.com/leapstack-labs/sqlext/internal/config"
	"github.com/spf13/cobra"
)

//go:embed all:templates/minimal
var starterFS embed.FS

// scaffoldFile is one file of the starter project.
type scaffoldFile struct {
	Rel    string // slash path inside the project
	src    string // path inside starterFS
	Exists bool
}

// starterFiles lists the starter project as it would land in dir.
// Template names without a leading dot ("gitignore") become dotfiles.
func starterFiles(dir string) ([]scaffoldFile, error) {
	const root = "templates/minimal"
	var files []scaffoldFile
	err := fs.WalkDir(starterFS, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel := strings.TrimPrefix(name, root+"/")
		if base := path.Base(rel); base == "gitignore" {
			rel = path.Join(path.Dir(rel), "."+base)
		}
		f := scaffoldFile{Rel: rel, src: name}
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err == nil {
			f.Exists = true
		}
		files = append(files, f)
		return nil
	})
	return files, err
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force, dryRun bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new sqlext project",
		Long: `Write a starter project: sqlext.yaml, a macros/ directory with a macro,
SQL functions and a Starlark library, and a query using them.

Existing files are left alone unless --force is given.`,
		Example: `  sqlext init
  sqlext init my-project
  sqlext init --dry-run
  sqlext init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force, dryRun)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the files without writing them")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force, dryRun bool) error {
	files, err := starterFiles(dir)
	if err != nil {
		return fmt.Errorf("failed to read starter project: %w", err)
	}
	if !force && !dryRun {
		if _, err := os.Stat(filepath.Join(dir, intconfig.ConfigFileName)); err == nil {
			return fmt.Errorf("%s already exists in %s\nHint: use --force to overwrite", intconfig.ConfigFileName, dir)
		}
	}

	w := cmd.OutOrStdout()
	for _, f := range files {
		action := "create"
		switch {
		case f.Exists && !force:
			action = "skip"
		case f.Exists:
			action = "overwrite"
		}
		_, _ = fmt.Fprintf(w, "  %-9s %s\n", action, f.Rel)
		if dryRun || action == "skip" {
			continue
		}
		if err := writeStarterFile(dir, f); err != nil {
			return fmt.Errorf("failed to initialize project: %w", err)
		}
	}

	if dryRun {
		return nil
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "sqlext project initialized!")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Next steps:")
	_, _ = fmt.Fprintln(w, "  sqlext macros                        List the loaded macros")
	_, _ = fmt.Fprintln(w, "  sqlext render queries/example.sql    Show the rewritten SQL")
	_, _ = fmt.Fprintln(w, "  sqlext doctor                        Check the configuration")
	return nil
}

func writeStarterFile(dir string, f scaffoldFile) error {
	content, err := starterFS.ReadFile(f.src)
	if err != nil {
		return err
	}
	target := filepath.Join(dir, filepath.FromSlash(f.Rel))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	return os.WriteFile(target, content, 0o600)
}
