package scanner

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/sqlext/pkg/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokSpec struct {
	kind  token.Kind
	value string
}

func kinds(tokens []token.Token) []tokSpec {
	out := make([]tokSpec, len(tokens))
	for i, t := range tokens {
		out[i] = tokSpec{kind: t.Kind}
		if t.Kind.HasValue() {
			out[i].value = t.Value
		}
	}
	return out
}

// rebuild reassembles the input from the token stream.
func rebuild(text string, tokens []token.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Pre)
		sb.WriteString(text[t.StrPos():t.EndPos()])
	}
	return sb.String()
}

func TestScan_Empty(t *testing.T) {
	tokens, err := Scan("", "")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestScan_Tokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []tokSpec
	}{
		{
			name:  "qualified name",
			input: "SELECT a.b FROM t",
			want: []tokSpec{
				{token.IDENT, "SELECT"}, {token.IDENT, "a"}, {token.DOT, ""}, {token.IDENT, "b"},
				{token.IDENT, "FROM"}, {token.IDENT, "t"}, {token.EOF, ""},
			},
		},
		{
			name:  "function call",
			input: "lpad(x,2,'0')",
			want: []tokSpec{
				{token.IDENT, "lpad"}, {token.LPAREN, ""}, {token.IDENT, "x"}, {token.COMMA, ""},
				{token.NUMBER, "2"}, {token.COMMA, ""}, {token.STRING, "0"}, {token.RPAREN, ""},
				{token.EOF, ""},
			},
		},
		{
			name:  "two char operators",
			input: "a <= b <> c || d >> 1",
			want: []tokSpec{
				{token.IDENT, "a"}, {token.LE, ""}, {token.IDENT, "b"}, {token.NE, ""},
				{token.IDENT, "c"}, {token.CONCAT, ""}, {token.IDENT, "d"}, {token.RSHIFT, ""},
				{token.NUMBER, "1"}, {token.EOF, ""},
			},
		},
		{
			name:  "minus is an operator unless a digit follows",
			input: "x - y -3",
			want: []tokSpec{
				{token.IDENT, "x"}, {token.MINUS, ""}, {token.IDENT, "y"}, {token.NUMBER, "-3"},
				{token.EOF, ""},
			},
		},
		{
			name:  "macro delimiters",
			input: "%%%foo(1)%%%",
			want: []tokSpec{
				{token.PERCENT, ""}, {token.PERCENT, ""}, {token.PERCENT, ""}, {token.IDENT, "foo"},
				{token.LPAREN, ""}, {token.NUMBER, "1"}, {token.RPAREN, ""},
				{token.PERCENT, ""}, {token.PERCENT, ""}, {token.PERCENT, ""}, {token.EOF, ""},
			},
		},
		{
			name:  "quoted identifiers",
			input: `"My Col", ` + "`b`" + `, [order id]`,
			want: []tokSpec{
				{token.IDENT, "My Col"}, {token.COMMA, ""}, {token.IDENT, "b"}, {token.COMMA, ""},
				{token.IDENT, "order id"}, {token.EOF, ""},
			},
		},
		{
			name:  "doubled quote escape",
			input: "'it''s'",
			want:  []tokSpec{{token.STRING, "it's"}, {token.EOF, ""}},
		},
		{
			name:  "leading dot number",
			input: ".5",
			want:  []tokSpec{{token.NUMBER, "0.5"}, {token.EOF, ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Scan(tt.input, "test.sql")
			require.NoError(t, err)
			assert.Equal(t, tt.want, kinds(tokens))
		})
	}
}

func TestScan_Numbers(t *testing.T) {
	tests := []struct {
		input      string
		value      string
		hex        bool
		scientific bool
	}{
		{"0xFF", "FF", true, false},
		{"0x", "0", true, false},
		{"1.5e-3", "1.5e-3", false, true},
		{"2E10", "2E10", false, true},
		{"-0.25", "-0.25", false, false},
		{"42", "42", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := Scan(tt.input, "")
			require.NoError(t, err)
			require.Len(t, tokens, 2)
			assert.Equal(t, token.NUMBER, tokens[0].Kind)
			assert.Equal(t, tt.value, tokens[0].Value)
			assert.Equal(t, tt.hex, tokens[0].Hex)
			assert.Equal(t, tt.scientific, tokens[0].Scientific)
		})
	}
}

func TestScan_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		column  int
		message string
	}{
		{"leading zero", "select -01", 1, 8, "invalid number format: -01"},
		{"bad exponent", "select 1e", 1, 8, "invalid mantissa: 1e"},
		{"unterminated string", "select\n  'abc", 2, 3, "unclosed 'string': abc"},
		{"unterminated identifier", `select "abc`, 1, 8, `unclosed "identifier": abc`},
		{"unterminated bracket", "select [abc", 1, 8, "unclosed [identifier]: abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan(tt.input, "q.sql")
			require.Error(t, err)

			var scanErr *ScanError
			require.ErrorAs(t, err, &scanErr)
			assert.Equal(t, "q.sql", scanErr.File)
			assert.Equal(t, tt.line, scanErr.Start.Line)
			assert.Equal(t, tt.column, scanErr.Start.Column)
			assert.Equal(t, tt.message, scanErr.Message)
		})
	}
}

func TestScanError_Format(t *testing.T) {
	_, err := Scan("x 'abc", "q.sql")
	require.Error(t, err)
	assert.Equal(t, "q.sql:1:3: unclosed 'string': abc", err.Error())

	_, err = Scan("x 'abc", "")
	require.Error(t, err)
	assert.Equal(t, "1:3: unclosed 'string': abc", err.Error())
}

func TestScan_Comments(t *testing.T) {
	input := "select -- note\n 1 /* tail */"
	tokens, err := Scan(input, "")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, " -- note\n ", tokens[1].Pre)
	assert.Equal(t, token.EOF, tokens[2].Kind)
	assert.Equal(t, " /* tail */", tokens[2].Pre)
}

func TestScan_EscapeEnvelope(t *testing.T) {
	input := "select %%%JSEXEC_ESCAPE(a'b %%%foo%%%)%%% x"
	tokens, err := Scan(input, "")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	assert.Equal(t, "select", tokens[0].Value)
	assert.Equal(t, "x", tokens[1].Value)
	assert.Equal(t, " %%%JSEXEC_ESCAPE(a'b %%%foo%%%)%%% ", tokens[1].Pre)
}

func TestScan_Positions(t *testing.T) {
	tokens, err := Scan("a\n  bc", "")
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	bc := tokens[1]
	assert.Equal(t, token.Position{Line: 2, Column: 3, Offset: 4}, bc.Span.Start)
	assert.Equal(t, token.Position{Line: 2, Column: 5, Offset: 6}, bc.Span.End)

	eof := tokens[2]
	assert.Equal(t, 6, eof.StrPos())
	assert.Equal(t, 6, eof.EndPos())
}

func TestScan_RoundTrip(t *testing.T) {
	inputs := []string{
		"select * from t where a = 'x''y' -- done\n",
		"  %%%foo(1, 2)%%% || [a b]  ",
		"select %%%JSEXEC_ESCAPE(raw)%%% from \"T\" /* c */ ;",
		"insert into t values (0x1F, -2.5e+3, .5)\n",
	}

	for _, input := range inputs {
		tokens, err := Scan(input, "")
		require.NoError(t, err, input)
		assert.Equal(t, input, rebuild(input, tokens))
	}
}

func TestUnescape(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"select 1", "select 1"},
		{"select " + Escape("%%%raw%%%") + " from t", "select %%%raw%%% from t"},
		{Escape("a") + Escape("b"), "ab"},
		{"x %%%JSEXEC_ESCAPE(open", "x %%%JSEXEC_ESCAPE(open"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Unescape(tt.input))
	}
}
