package macro

import (
	"testing"

	sqlmacro "github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanStarFile(t *testing.T) {
	src := []byte(`
def greet(name, greeting = "Hello", *rest, **opts):
    """Greets someone.
    """
    return greeting + name

def offset(n = -1, *, strict = False):
    return n

def _private():
    pass

CONST = -1
`)

	defs, err := ScanStarFile("/lib/text.star", src)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	greet := defs[0]
	assert.Equal(t, "greet", greet.Name)
	assert.Equal(t, 2, greet.Line)
	assert.Equal(t, "Greets someone.", greet.Doc)
	assert.Equal(t, []StarParam{
		{Name: "name", Kind: ParamRequired},
		{Name: "greeting", Default: `"Hello"`, Kind: ParamOptional},
		{Name: "rest", Kind: ParamStar},
		{Name: "opts", Kind: ParamKwargs},
	}, greet.Params)
	assert.Equal(t, `greet(name, greeting="Hello", *rest, **opts)`, greet.Signature())

	offset := defs[1]
	assert.Empty(t, offset.Doc)
	assert.Equal(t, "offset(n=-1, *, strict=False)", offset.Signature())
}

func TestScanStarFile_SyntaxError(t *testing.T) {
	_, err := ScanStarFile("/lib/bad.star", []byte("def broken(:\n"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, err.Error(), "macros/bad.star")
	assert.Contains(t, err.Error(), "syntax error")
}

func TestStarDef_SQLFunction(t *testing.T) {
	req := func(n string) StarParam { return StarParam{Name: n, Kind: ParamRequired} }

	tests := []struct {
		name       string
		params     []StarParam
		wantParams []string
		wantExec   string
		wantErr    string
	}{
		{name: "fixed", params: []StarParam{req("a"), req("b")}, wantParams: []string{"a", "b"}, wantExec: "ns.f(a, b)"},
		{name: "no params", wantExec: "ns.f()"},
		{
			name:       "optional becomes variadic",
			params:     []StarParam{req("a"), {Name: "n", Default: "2", Kind: ParamOptional}},
			wantParams: []string{"a", sqlmacro.Variadic},
			wantExec:   "ns.f(a, *args)",
		},
		{
			name:       "star args",
			params:     []StarParam{{Name: "rest", Kind: ParamStar}},
			wantParams: []string{sqlmacro.Variadic},
			wantExec:   "ns.f(*args)",
		},
		{
			name:       "kwargs ignored",
			params:     []StarParam{req("a"), {Name: "kw", Kind: ParamKwargs}},
			wantParams: []string{"a"},
			wantExec:   "ns.f(a)",
		},
		{
			name:       "keyword only ignored",
			params:     []StarParam{req("a"), {Kind: ParamStar}, req("b")},
			wantParams: []string{"a"},
			wantExec:   "ns.f(a)",
		},
		{name: "shadows namespace", params: []StarParam{req("ns")}, wantErr: `"ns" shadows`},
		{name: "shadows args", params: []StarParam{req("args")}, wantErr: `"args" shadows`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := &StarDef{Name: "f", Params: tt.params, Doc: "doc"}
			fn, err := def.SQLFunction("ns", "/lib/ns.star")
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ns.f", fn.Name)
			assert.Equal(t, tt.wantParams, fn.Params)
			assert.Equal(t, tt.wantExec, fn.Exec)
			assert.Equal(t, "doc", fn.Doc)
			assert.Equal(t, "/lib/ns.star", fn.Source)
		})
	}
}
