package schema

import (
	"testing"

	"github.com/leapstack-labs/sqlext/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacer_Replace(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		input string
		want  string
		count int
	}{
		{
			name:  "schema rename",
			rules: []Rule{{SearchSchema: "old_schema", Replace: "new_schema"}},
			input: "select * from old_schema.orders join OLD_SCHEMA.items using (id)",
			want:  "select * from new_schema.orders join new_schema.items using (id)",
			count: 2,
		},
		{
			name: "longer pattern wins",
			rules: []Rule{
				{SearchSchema: "old_schema", Replace: "new_schema"},
				{SearchSchema: "old_schema.specific_table", Replace: "archive.specific_table"},
			},
			input: "select * from old_schema.specific_table, old_schema.other",
			want:  "select * from archive.specific_table, new_schema.other",
			count: 2,
		},
		{
			name:  "member of a longer name",
			rules: []Rule{{SearchSchema: "old_schema", Replace: "new_schema"}},
			input: "select t.old_schema from t",
			want:  "select t.old_schema from t",
		},
		{
			name:  "strings and comments untouched",
			rules: []Rule{{SearchSchema: "old_schema", Replace: "new_schema"}},
			input: "select 'old_schema.t' from old_schema.t -- old_schema.t\n",
			want:  "select 'old_schema.t' from new_schema.t -- old_schema.t\n",
			count: 1,
		},
		{
			name:  "wildcard with table",
			rules: []Rule{{SearchSchema: "stage.*", Replace: "prod.{table}"}},
			input: "insert into stage.orders select * from stage.orders_raw",
			want:  "insert into prod.orders select * from prod.orders_raw",
			count: 2,
		},
		{
			name: "regexp replacement",
			rules: []Rule{{
				SearchSchema:  "jsharmony",
				ReplaceSchema: []Replacement{{Search: "^jsharmony$", Replace: "jsh"}},
			}},
			input: "select * from jsharmony.cust",
			want:  "select * from jsh.cust",
			count: 1,
		},
		{
			name: "regexp captures",
			rules: []Rule{{
				SearchSchema:  "*.audit",
				ReplaceSchema: []Replacement{{Search: `^(\w+)\.audit$`, Replace: "${1}_log.{table}"}},
			}},
			input: "select * from sales.audit",
			want:  "select * from sales_log.audit",
			count: 1,
		},
		{
			name:  "identity replacement",
			rules: []Rule{{SearchSchema: "dbo", Replace: "dbo"}},
			input: "select * from dbo.t",
			want:  "select * from dbo.t",
		},
		{
			name:  "empty pattern skipped",
			rules: []Rule{{SearchSchema: "  ", Replace: "x"}},
			input: "select * from t",
			want:  "select * from t",
		},
		{
			name:  "unscannable input",
			rules: []Rule{{SearchSchema: "old_schema", Replace: "new_schema"}},
			input: "select * from old_schema.t where a = 'open",
			want:  "select * from old_schema.t where a = 'open",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReplacer(tt.rules, testutil.NewTestLogger(t))
			require.NoError(t, err)

			got, n, err := r.Replace(tt.input, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.count, n)
		})
	}
}

func TestReplacer_Stable(t *testing.T) {
	r, err := NewReplacer([]Rule{{SearchSchema: "a", Replace: "A"}}, nil)
	require.NoError(t, err)

	once, n, err := r.Replace("select * from a.t", "")
	require.NoError(t, err)
	assert.Equal(t, "select * from A.t", once)
	assert.Equal(t, 1, n)

	twice, n, err := r.Replace(once, "")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Zero(t, n)
}

func TestNewReplacer_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"bad regexp", Rule{SearchSchema: "a", ReplaceSchema: []Replacement{{Search: "(", Replace: ""}}}},
		{"double dot", Rule{SearchSchema: "a..b"}},
		{"trailing dot", Rule{SearchSchema: "a."}},
		{"operator", Rule{SearchSchema: "a+b"}},
		{"unterminated", Rule{SearchSchema: "'a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReplacer([]Rule{tt.rule}, nil)
			require.Error(t, err)
		})
	}
}
