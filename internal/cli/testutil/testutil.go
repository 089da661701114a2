// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/leapstack-labs/sqlext/internal/cli/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// ProjectConfig is the sqlext.yaml written by SetupTestProject. The target
// is a sqlite database inside the project directory.
const ProjectConfig = `macros_dir: macros
env: dev
vars:
  tenant: demo
schema_replacement:
  - search_schema: app
    replace: main
target:
  type: sqlite
  database: test.db
environments:
  prod:
    vars:
      tenant: acme
`

var projectFiles = map[string]string{
	"macros/defs.yaml": `now: current_timestamp
nvl:
  params: [a, b]
  sql: "coalesce(%%%a%%%, %%%b%%%)"
tenant:
  exec: quote(vars["tenant"])
`,
	"macros/text.star": `def upper(s):
    return "upper(" + s + ")"
`,
	"queries/items.sql": `select text.upper(name) as name, nvl(qty, 0) as qty
from app.items
where tenant = tenant()
`,
	"scripts/001_create.sql": `create table items (name text, qty integer, tenant text);
insert into items values ('bolt', 10, 'demo');
`,
	"scripts/002_seed.sql": `insert into items values ('nut', null, 'demo');
`,
	"scripts.yaml": `demo:
  __START__: create table if not exists log (msg text)
  init: insert into log values (tenant())
  cleanup: delete from log where msg is null
`,
}

// SetupTestProject creates a temporary project with a config file, macros,
// queries and scripts. It returns the project directory.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	files := map[string]string{"sqlext.yaml": ProjectConfig}
	for name, content := range projectFiles {
		files[name] = content
	}

	for name, content := range files {
		path := filepath.Join(tmpDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return tmpDir
}

// ExecuteCommand runs cmd with args and returns its stdout and stderr.
// Tracked configuration is reset before and after the run.
func ExecuteCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()

	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
