// Package token defines the tokens produced by the SQL scanner.
//
// The token set is deliberately small: it only has to locate macros,
// function calls and qualified names, not to parse statements.
package token

import (
	"fmt"
	"strings"
)

// Kind identifies the lexical class of a token.
type Kind int

//nolint:revive // ALL_CAPS names follow SQL token conventions
const (
	EOF Kind = iota

	// Punctuation
	LPAREN    // (
	RPAREN    // )
	COMMA     // ,
	DOT       // .
	SEMICOLON // ;

	// Operators
	PLUS     // +
	MINUS    // -
	STAR     // *
	SLASH    // /
	PERCENT  // %
	LT       // <
	GT       // >
	EQ       // =
	AMP      // &
	PIPE     // |
	NOT      // !
	AT       // @
	DOLLAR   // $
	QUESTION // ?
	COLON    // :
	TILDE    // ~
	HASH     // #
	LSHIFT   // <<
	RSHIFT   // >>
	CONCAT   // ||
	LE       // <=
	GE       // >=
	EQEQ     // ==
	NE       // != or <>

	// Literals
	STRING // 'text'
	IDENT  // name, "name", `name`, [name]
	NUMBER // 12, 1.5e-3, 0xFF

	// FUNCTION is synthetic: the function-call matcher produces it for a
	// resolved call site, the scanner never does.
	FUNCTION
)

var kindNames = map[Kind]string{
	EOF:       "EOF",
	LPAREN:    "(",
	RPAREN:    ")",
	COMMA:     ",",
	DOT:       ".",
	SEMICOLON: ";",
	PLUS:      "+",
	MINUS:     "-",
	STAR:      "*",
	SLASH:     "/",
	PERCENT:   "%",
	LT:        "<",
	GT:        ">",
	EQ:        "=",
	AMP:       "&",
	PIPE:      "|",
	NOT:       "!",
	AT:        "@",
	DOLLAR:    "$",
	QUESTION:  "?",
	COLON:     ":",
	TILDE:     "~",
	HASH:      "#",
	LSHIFT:    "<<",
	RSHIFT:    ">>",
	CONCAT:    "||",
	LE:        "<=",
	GE:        ">=",
	EQEQ:      "==",
	NE:        "!=",
	STRING:    "STRING",
	IDENT:     "IDENT",
	NUMBER:    "NUMBER",
	FUNCTION:  "FUNCTION",
}

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KIND(%d)", int(k))
}

// IsOperator returns true for punctuation and operator kinds.
func (k Kind) IsOperator() bool {
	return k >= LPAREN && k <= NE
}

// HasValue returns true for kinds whose Value carries literal text.
func (k Kind) HasValue() bool {
	return k == STRING || k == IDENT || k == NUMBER || k == FUNCTION
}

// CallInfo is attached to FUNCTION tokens by the function-call matcher.
type CallInfo struct {
	ArgPos   []int // start offset of each argument
	EndIndex int   // index of the closing ) in the token stream
	EndPos   int   // offset just past the closing )
}

// Token is a lexical token with its source position.
//
// Tokens are values; the scanner never hands out shared pointers, so a
// token slice can be copied and spliced freely.
type Token struct {
	Kind  Kind
	Value string
	Pre   string // whitespace and comments immediately before the token; on EOF, the trailing text
	Span  Span

	Quoted     bool // quoted or bracketed identifier
	Multiline  bool // string literal spanning lines
	Scientific bool // number with exponent
	Hex        bool // 0x number; Value holds the digits only

	Call *CallInfo // FUNCTION only
}

// StrPos returns the offset where the token starts in the working text.
func (t Token) StrPos() int {
	return t.Span.Start.Offset
}

// EndPos returns the offset just past the token.
func (t Token) EndPos() int {
	return t.Span.End.Offset
}

// Equal reports whether two tokens have the same kind and value.
// Identifier-like values are compared case-insensitively.
func (t Token) Equal(o Token) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case IDENT, FUNCTION:
		return strings.EqualFold(t.Value, o.Value)
	case STRING, NUMBER:
		return t.Value == o.Value
	default:
		return true
	}
}

func (t Token) String() string {
	if t.Kind.HasValue() {
		return fmt.Sprintf("%s(%q)@%d", t.Kind, t.Value, t.StrPos())
	}
	return fmt.Sprintf("%s@%d", t.Kind, t.StrPos())
}
