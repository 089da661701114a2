package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CaseInsensitive(t *testing.T) {
	r := NewRegistry()
	r.Set("Sample", "select 1")

	for _, name := range []string{"sample", "SAMPLE", "sAmPlE"} {
		e, ok := r.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "select 1", e.Value)
		assert.Equal(t, "Sample", e.Name)
	}
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	r.Set("b", "1")
	require.NoError(t, r.Define(&Function{Name: "a", Params: []string{"x"}, SQL: "%%%x%%%"}))
	r.Set("c", "3")
	r.Set("B", "2") // replaces b in place

	var names []string
	for _, e := range r.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"B", "a", "c"}, names)

	fns := r.Functions()
	require.Len(t, fns, 1)
	assert.Equal(t, "a", fns[0].Name)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Set("a", "1")
	r.Set("b", "2")
	v := r.Version()

	assert.True(t, r.Remove("A"))
	assert.False(t, r.Remove("a"))
	assert.False(t, r.Has("a"))
	assert.Equal(t, 1, r.Len())
	assert.Greater(t, r.Version(), v)
}

func TestRegistry_Replace(t *testing.T) {
	r := NewRegistry()
	r.Set("old", "1")

	next := NewRegistry()
	next.Set("new", "2")
	r.Replace(next)

	assert.False(t, r.Has("old"))
	assert.True(t, r.Has("new"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Overlay(t *testing.T) {
	r := NewRegistry()
	r.Set("a", "1")
	r.Set("b", "2")

	o, err := r.Overlay(
		Entry{Name: "b", Value: "overridden"},
		Entry{Name: "$ifnull", Func: &Function{Params: []string{"a", "b"}, SQL: "ifnull(%%%a%%%,%%%b%%%)"}},
	)
	require.NoError(t, err)

	e, _ := o.Lookup("b")
	assert.Equal(t, "overridden", e.Value)
	e, _ = o.Lookup("$IFNULL")
	require.True(t, e.IsFunction())
	assert.Equal(t, "$ifnull", e.Func.Name)

	// Base registry is untouched.
	e, _ = r.Lookup("b")
	assert.Equal(t, "2", e.Value)
	assert.False(t, r.Has("$ifnull"))
}

func TestFunction_Validate(t *testing.T) {
	tests := []struct {
		name    string
		fn      Function
		wantErr string
	}{
		{"valid", Function{Name: "f", Params: []string{"a", "..."}, SQL: "x"}, ""},
		{"no name", Function{SQL: "x"}, "name cannot be empty"},
		{"both bodies", Function{Name: "f", SQL: "x", Exec: "y"}, "mutually exclusive"},
		{"variadic not last", Function{Name: "f", Params: []string{"...", "a"}}, "must be the last parameter"},
		{"duplicate", Function{Name: "f", Params: []string{"a", "a"}}, "duplicate parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFunction_Params(t *testing.T) {
	fn := &Function{Name: "f", Params: []string{"a", "b", Variadic}}
	assert.True(t, fn.IsVariadic())
	assert.Equal(t, []string{"a", "b"}, fn.Fixed())
	assert.Equal(t, "f(a, b, ...)", fn.Signature())

	bare := &Function{Name: "g"}
	assert.True(t, bare.IsVariadic(), "no declared params takes raw text")
	assert.Empty(t, bare.Fixed())

	fixed := &Function{Name: "h", Params: []string{"x"}}
	assert.False(t, fixed.IsVariadic())
}
