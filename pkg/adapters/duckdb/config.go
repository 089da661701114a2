package duckdb

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Params are the duckdb entries of a target's params map:
//
//	params:
//	  extensions: [httpfs, json]
//	  settings: {memory_limit: 4GB, threads: 4}
type Params struct {
	Extensions []string          `mapstructure:"extensions"`
	Settings   map[string]string `mapstructure:"settings"`
}

var setupName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseParams decodes raw target params. Scalar settings are converted to
// strings and unknown keys are rejected.
func ParseParams(raw map[string]any) (*Params, error) {
	var p Params
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &p,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("invalid duckdb params: %w", err)
		}
	}

	for _, ext := range p.Extensions {
		if !setupName.MatchString(ext) {
			return nil, fmt.Errorf("invalid duckdb extension name %q", ext)
		}
	}
	for name := range p.Settings {
		if !setupName.MatchString(name) {
			return nil, fmt.Errorf("invalid duckdb setting name %q", name)
		}
	}
	return &p, nil
}

// Statements returns the session setup to run after connecting: each
// extension is installed then loaded, and settings follow by name.
func (p *Params) Statements() []string {
	stmts := make([]string, 0, 2*len(p.Extensions)+len(p.Settings))
	for _, ext := range p.Extensions {
		stmts = append(stmts, "INSTALL "+ext, "LOAD "+ext)
	}
	for _, name := range slices.Sorted(maps.Keys(p.Settings)) {
		stmts = append(stmts, fmt.Sprintf("SET %s = '%s'", name, strings.ReplaceAll(p.Settings[name], "'", "''")))
	}
	return stmts
}
