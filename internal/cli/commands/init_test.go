package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	intconfig "github.com/leapstack-labs/sqlext/internal/config"
	"github.com/leapstack-labs/sqlext/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/sqlext/pkg/adapters/sqlite"
)

func TestNewInitCommand(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T, dir string) // setup before running
		args      []string
		wantErr   bool
		wantFiles []string
	}{
		{
			name:    "init empty directory",
			args:    []string{},
			wantErr: false,
			wantFiles: []string{
				"sqlext.yaml",
				".gitignore",
				"macros/defs.yaml",
				"macros/text.star",
				"queries/example.sql",
			},
		},
		{
			name: "init existing config without force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "sqlext.yaml"), []byte("existing"), 0600)
			},
			args:    []string{},
			wantErr: true,
		},
		{
			name: "init existing config with force",
			setupDir: func(_ *testing.T, dir string) {
				_ = os.WriteFile(filepath.Join(dir, "sqlext.yaml"), []byte("existing"), 0600)
			},
			args:      []string{"--force"},
			wantErr:   false,
			wantFiles: []string{"sqlext.yaml", "macros"},
		},
		{
			name:      "init into new directory",
			args:      []string{"sub/project"},
			wantFiles: []string{"sub/project/sqlext.yaml", "sub/project/macros/defs.yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Chdir(tmpDir)

			if tt.setupDir != nil {
				tt.setupDir(t, tmpDir)
			}

			cmd := NewInitCommand()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "sqlext project initialized")

			for _, f := range tt.wantFiles {
				_, err := os.Stat(filepath.Join(tmpDir, filepath.FromSlash(f)))
				assert.NoError(t, err, "expected file/dir %q to exist", f)
			}
		})
	}
}

func TestInitCommandMetadata(t *testing.T) {
	cmd := NewInitCommand()

	assert.Equal(t, "init [directory]", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotNil(t, cmd.Flags().Lookup("force"))
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
}

func TestInitCreatesWorkingProject(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cmd := NewInitCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	require.NoError(t, cmd.Execute())

	p, err := intconfig.LoadFromDir(tmpDir)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NoError(t, p.Target.Validate())
	p.MacrosDir = filepath.Join(tmpDir, p.MacrosDir)

	eng, err := engine.New(engine.FromProject(p, nil))
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	got, err := eng.RenderFile(filepath.Join(tmpDir, "queries", "example.sql"), nil)
	require.NoError(t, err)
	assert.Equal(t, `select
    upper(name) as name,
    coalesce(note, 'none') as note,
    current_timestamp as rendered_at
from main.items
where tenant = 'demo'
`, got)
}

func TestStarterFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("x\n"), 0o600))

	files, err := starterFiles(dir)
	require.NoError(t, err)

	exists := make(map[string]bool)
	for _, f := range files {
		exists[f.Rel] = f.Exists
	}
	assert.Equal(t, map[string]bool{
		".gitignore":          true,
		"sqlext.yaml":         false,
		"macros/defs.yaml":    false,
		"macros/text.star":    false,
		"queries/example.sql": false,
	}, exists)
}

func TestInitCommand_DryRunAndSkip(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(".gitignore", []byte("mine\n"), 0o600))

	run := func(args ...string) string {
		cmd := NewInitCommand()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())
		return buf.String()
	}

	out := run("--dry-run")
	assert.Contains(t, out, "create    sqlext.yaml")
	assert.Contains(t, out, "skip      .gitignore")
	assert.NotContains(t, out, "initialized")
	assert.NoFileExists(t, "sqlext.yaml")

	out = run()
	assert.Contains(t, out, "skip      .gitignore")
	assert.FileExists(t, "sqlext.yaml")
	content, err := os.ReadFile(".gitignore")
	require.NoError(t, err)
	assert.Equal(t, "mine\n", string(content))

	out = run("--force")
	assert.Contains(t, out, "overwrite .gitignore")
}
