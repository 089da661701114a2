package macro

import (
	"os"
	"path/filepath"
	"testing"

	starctx "github.com/leapstack-labs/sqlext/internal/starlark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

// writeFiles creates a macros directory holding files.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "macros")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestLoader_Load(t *testing.T) {
	tests := []struct {
		name           string
		files          map[string]string
		dir            string
		wantModules    int
		wantErr        bool
		wantNamespaces []string
		checkExports   map[string][]string
	}{
		{
			name:  "empty directory",
			files: map[string]string{},
		},
		{
			name: "non-existent directory",
			dir:  "/nonexistent/path/to/macros",
		},
		{
			name: "single module with multiple functions",
			files: map[string]string{
				"utils.star": `
def greet(name):
    return "Hello, " + name + "!"

def add(a, b):
    return a + b

_private = "should not be exported"
`,
			},
			wantModules:    1,
			wantNamespaces: []string{"utils"},
			checkExports:   map[string][]string{"utils": {"greet", "add"}},
		},
		{
			name: "multiple module files",
			files: map[string]string{
				"datetime.star": "def now():\n    return \"2024-01-01\"\n",
				"math.star":     "def square(x):\n    return x * x\n",
			},
			wantModules:    2,
			wantNamespaces: []string{"datetime", "math"},
		},
		{
			name:    "syntax error",
			files:   map[string]string{"broken.star": "def broken(:\n    return 1\n"},
			wantErr: true,
		},
		{
			name:    "invalid namespace",
			files:   map[string]string{"123invalid.star": "x = 1"},
			wantErr: true,
		},
		{
			name:  "yaml files are not modules",
			files: map[string]string{"defs.yaml": "a: b\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := tt.dir
			if dir == "" {
				dir = writeFiles(t, tt.files)
			}

			modules, err := NewLoader(dir).Load()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, modules, tt.wantModules)

			byNamespace := make(map[string]*LoadedModule)
			for _, m := range modules {
				byNamespace[m.Namespace] = m
			}
			for _, ns := range tt.wantNamespaces {
				assert.Contains(t, byNamespace, ns)
			}
			for ns, exports := range tt.checkExports {
				for _, name := range exports {
					assert.Contains(t, byNamespace[ns].Exports, name)
				}
				assert.NotContains(t, byNamespace[ns].Exports, "_private")
			}
		})
	}
}

func TestLoader_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "macros")
	require.NoError(t, os.WriteFile(path, []byte("not a dir"), 0o644))

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestLoader_Load_SyntaxErrorDetails(t *testing.T) {
	dir := writeFiles(t, map[string]string{"broken.star": "\ndef broken(:\n    return 1\n"})

	_, err := NewLoader(dir).Load()
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, filepath.Join(dir, "broken.star"), loadErr.File)
	assert.Contains(t, err.Error(), "macros/broken.star")
}

func TestLoader_Functions(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"fmt.star": `
def pad(x, n = 2):
    """Left pads x."""
    return "lpad(%s, %s, '0')" % (x, n)

def both(a, b):
    return a + b

def concat(*parts):
    return " || ".join(parts)

def shadow(fmt):
    return fmt

def _hidden():
    return 1
`,
	})

	modules, err := NewLoader(dir).Load()
	require.NoError(t, err)
	require.Len(t, modules, 1)

	fns := make(map[string][2]string)
	for _, fn := range modules[0].Functions {
		fns[fn.Name] = [2]string{fn.Signature(), fn.Exec}
	}

	assert.Equal(t, map[string][2]string{
		"fmt.pad":    {"fmt.pad(x, ...)", "fmt.pad(x, *args)"},
		"fmt.both":   {"fmt.both(a, b)", "fmt.both(a, b)"},
		"fmt.concat": {"fmt.concat(...)", "fmt.concat(*args)"},
	}, fns, "shadow hides its namespace and _hidden is private")

	for _, fn := range modules[0].Functions {
		if fn.Name == "fmt.pad" {
			assert.Equal(t, "Left pads x.", fn.Doc)
			assert.Equal(t, filepath.Join(dir, "fmt.star"), fn.Source)
		}
	}
}

func TestLoader_Predeclared(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"q.star": "PREFIX = env + \"_\"\n\ndef lit(x):\n    return quote(x)\n",
	})

	modules, err := NewLoader(dir, WithPredeclared(starctx.Predeclared("dev", nil))).Load()
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, starlark.String("dev_"), modules[0].Exports["PREFIX"])

	_, err = NewLoader(dir).Load()
	require.Error(t, err, "builtins are undefined without predeclared globals")
}

func TestLoader_ExecuteFunction(t *testing.T) {
	dir := writeFiles(t, map[string]string{"math.star": "def double(x):\n    return x * 2\n"})

	modules, err := NewLoader(dir).Load()
	require.NoError(t, err)

	double := modules[0].Exports["double"]
	require.NotNil(t, double)

	result, err := starlark.Call(&starlark.Thread{Name: "test"}, double, starlark.Tuple{starlark.MakeInt(5)}, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(10), result)
}

func TestLoader_LoadDefinitions(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.yaml": `
timestamp: current_timestamp
user: "%%%jsh.user%%%"
schema.pad:
  params: [a]
  sql: "lpad(%%%a%%%,2,'0')"
  doc: Left pads a.
tenant:
  exec: quote(vars["tenant"])
`,
		"b.yml": "jsh.user: current_user\n",
	})

	entries, err := NewLoader(dir).LoadDefinitions()
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"timestamp", "user", "schema.pad", "tenant", "jsh.user"}, names)

	assert.Equal(t, "current_timestamp", entries[0].Value)
	assert.False(t, entries[0].IsFunction())

	pad := entries[2].Func
	require.NotNil(t, pad)
	assert.Equal(t, []string{"a"}, pad.Params)
	assert.Equal(t, "lpad(%%%a%%%,2,'0')", pad.SQL)
	assert.Equal(t, "Left pads a.", pad.Doc)
	assert.Equal(t, filepath.Join(dir, "a.yaml"), pad.Source)

	assert.Equal(t, `quote(vars["tenant"])`, entries[3].Func.Exec)
}

func TestLoader_LoadDefinitions_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"not a mapping", "- a\n- b\n", "expected a mapping"},
		{"sequence value", "a: [1, 2]\n", "expected a string or a function definition"},
		{"sql and exec", "f:\n  sql: x\n  exec: y\n", "f"},
		{"invalid yaml", "a: [\n", "yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"bad.yaml": tt.content})
			_, err := NewLoader(dir).LoadDefinitions()

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid lowercase", "datetime", false},
		{"valid with underscore", "date_time", false},
		{"valid start with underscore", "_private", false},
		{"valid with numbers", "utils2", false},
		{"empty", "", true},
		{"starts with number", "123abc", true},
		{"contains hyphen", "date-time", true},
		{"contains space", "date time", true},
		{"contains dot", "date.time", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateNamespace(tt.input)
			assert.Equal(t, tt.wantErr, err != nil, "validateNamespace(%q) error = %v", tt.input, err)
		})
	}
}
