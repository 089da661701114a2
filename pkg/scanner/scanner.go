// Package scanner converts SQL text into the token stream used by the
// rewrite passes.
//
// It recognizes just enough lexical structure (strings, quoted identifiers,
// numbers, operators, comments) to locate macros, function calls and
// qualified names reliably. It is not a SQL parser.
package scanner

import (
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/token"
)

// Escape envelope. Text between these markers is skipped without being
// tokenized, so already expanded foreign text cannot be rewritten again.
const (
	EscapeStart = "%%%JSEXEC_ESCAPE("
	EscapeEnd   = ")%%%"
)

// Scanner tokenizes SQL input.
type Scanner struct {
	input string
	file  string

	pos  int // offset of the next byte to read
	line int // line of the last byte read (1-based)
	col  int // column of the last byte read (1-based, 0 before the first byte of a line)

	skipped string // escape envelopes jumped over by the last next() call

	start token.Position // start of the token being scanned
}

// New creates a scanner for input. file labels errors.
func New(input, file string) *Scanner {
	return &Scanner{input: input, file: file, line: 1}
}

// Scan tokenizes text and returns the full token stream, terminated by an
// EOF token. Empty input yields no tokens at all.
func Scan(text, file string) ([]token.Token, error) {
	if text == "" {
		return nil, nil
	}
	return New(text, file).Scan()
}

// Func returns a token.ScanFunc that scans with the given file label.
func Func(file string) token.ScanFunc {
	return func(text string) ([]token.Token, error) {
		return Scan(text, file)
	}
}

// Scan tokenizes the scanner's input.
func (s *Scanner) Scan() ([]token.Token, error) {
	var tokens []token.Token
	var ws strings.Builder

	for {
		c, ok := s.next()
		ws.WriteString(s.skipped)
		if !ok {
			break
		}
		s.start = token.Position{Line: s.line, Column: s.col, Offset: s.pos - 1}

		if isWhitespace(c) {
			ws.WriteByte(c)
			continue
		}

		if c == '-' && s.peek() == '-' {
			ws.WriteByte(c)
			s.readLineComment(&ws)
			continue
		}

		if c == '/' && s.peek() == '*' {
			ws.WriteByte(c)
			s.readBlockComment(&ws)
			continue
		}

		pre := ws.String()
		ws.Reset()

		tok, err := s.scanToken(c)
		if err != nil {
			return nil, err
		}
		tok.Pre = pre
		tok.Span = token.Span{Start: s.start, End: s.current()}
		tokens = append(tokens, tok)
	}

	end := s.current()
	tokens = append(tokens, token.Token{
		Kind: token.EOF,
		Pre:  ws.String(),
		Span: token.Span{Start: end, End: end},
	})
	return tokens, nil
}

// scanToken scans a single token whose first byte c has been consumed.
func (s *Scanner) scanToken(c byte) (token.Token, error) {
	switch {
	case c == '\'' || c == '"' || c == '`':
		return s.readQuoted(c)
	case c == '[':
		return s.readBracketIdent()
	case c == '0' && (s.peek() == 'x' || s.peek() == 'X'):
		return s.readHex(), nil
	case isDigit(c), c == '-' && isDigit(s.peek()), c == '.' && isDigit(s.peek()):
		return s.readNumber(c)
	}

	if kind, ok := s.readOperator(c); ok {
		return token.Token{Kind: kind}, nil
	}

	if isIdentChar(c) {
		return s.readIdent(c), nil
	}

	return token.Token{}, s.errorf("invalid token: %q", c)
}

// next consumes and returns the next byte. Escape envelopes are jumped over
// and recorded in s.skipped.
func (s *Scanner) next() (byte, bool) {
	s.skipped = ""
	for s.pos < len(s.input) && s.input[s.pos] == '%' && strings.HasPrefix(s.input[s.pos:], EscapeStart) {
		idx := strings.Index(s.input[s.pos:], EscapeEnd)
		if idx < 0 {
			break
		}
		envelope := s.input[s.pos : s.pos+idx+len(EscapeEnd)]
		s.skipped += envelope
		for i := 0; i < len(envelope); i++ {
			s.advance(envelope[i])
		}
		s.pos += len(envelope)
	}

	if s.pos >= len(s.input) {
		return 0, false
	}
	c := s.input[s.pos]
	s.pos++
	s.advance(c)
	return c, true
}

// advance updates line and column for a consumed byte.
func (s *Scanner) advance(c byte) {
	if c == '\n' {
		s.line++
		s.col = 0
		return
	}
	s.col++
}

// peek returns the next byte without consuming it.
func (s *Scanner) peek() byte {
	if s.pos >= len(s.input) {
		return 0
	}
	return s.input[s.pos]
}

// current returns the position just past the last consumed byte.
func (s *Scanner) current() token.Position {
	return token.Position{Line: s.line, Column: s.col + 1, Offset: s.pos}
}

func (s *Scanner) readLineComment(ws *strings.Builder) {
	for {
		c, ok := s.next()
		ws.WriteString(s.skipped)
		if !ok {
			return
		}
		ws.WriteByte(c)
		if c == '\n' {
			return
		}
	}
}

// readBlockComment consumes a /* */ comment; an unterminated comment runs to
// the end of input.
func (s *Scanner) readBlockComment(ws *strings.Builder) {
	c, _ := s.next() // '*'
	ws.WriteByte(c)
	for {
		c, ok := s.next()
		ws.WriteString(s.skipped)
		if !ok {
			return
		}
		ws.WriteByte(c)
		if c == '*' && s.peek() == '/' {
			c, _ = s.next()
			ws.WriteByte(c)
			return
		}
	}
}

// readQuoted reads a quoted string or identifier. A doubled quote character
// is an escaped quote.
func (s *Scanner) readQuoted(quote byte) (token.Token, error) {
	var val strings.Builder
	multiline := false
	for {
		c, ok := s.next()
		if !ok {
			return token.Token{}, s.errorf("unclosed %c%s%c: %s", quote, quoteName(quote), quote, val.String())
		}
		if c == quote {
			if s.peek() != quote {
				break
			}
			s.next()
		}
		if c == '\n' {
			multiline = true
		}
		val.WriteByte(c)
	}

	if quote == '\'' {
		return token.Token{Kind: token.STRING, Value: val.String(), Multiline: multiline}, nil
	}
	return token.Token{Kind: token.IDENT, Value: val.String(), Quoted: true}, nil
}

func (s *Scanner) readBracketIdent() (token.Token, error) {
	var val strings.Builder
	for {
		c, ok := s.next()
		if !ok {
			return token.Token{}, s.errorf("unclosed [identifier]: %s", val.String())
		}
		if c == ']' {
			break
		}
		val.WriteByte(c)
	}
	return token.Token{Kind: token.IDENT, Value: val.String(), Quoted: true}, nil
}

// readHex reads a 0x literal; the leading 0 has been consumed.
func (s *Scanner) readHex() token.Token {
	s.next() // x
	var val strings.Builder
	for isHexDigit(s.peek()) {
		c, _ := s.next()
		val.WriteByte(c)
	}
	v := val.String()
	if v == "" {
		v = "0"
	}
	return token.Token{Kind: token.NUMBER, Value: v, Hex: true}
}

// readNumber reads a decimal literal with optional fraction and exponent.
func (s *Scanner) readNumber(first byte) (token.Token, error) {
	var val strings.Builder
	if first == '.' {
		val.WriteString("0.")
	} else {
		val.WriteByte(first)
	}
	s.readDigits(&val)

	if v := val.String(); strings.HasPrefix(v, "-0") && len(v) > 2 {
		return token.Token{}, s.errorf("invalid number format: %s", v)
	}

	if first != '.' && s.peek() == '.' {
		c, _ := s.next()
		val.WriteByte(c)
		s.readDigits(&val)
	}

	scientific := false
	if p := s.peek(); p == 'e' || p == 'E' {
		scientific = true
		c, _ := s.next()
		val.WriteByte(c)
		p = s.peek()
		if p != '-' && p != '+' && !isDigit(p) {
			return token.Token{}, s.errorf("invalid mantissa: %s", val.String())
		}
		c, _ = s.next()
		val.WriteByte(c)
		s.readDigits(&val)
	}

	return token.Token{Kind: token.NUMBER, Value: val.String(), Scientific: scientific}, nil
}

func (s *Scanner) readDigits(val *strings.Builder) {
	for isDigit(s.peek()) {
		c, _ := s.next()
		val.WriteByte(c)
	}
}

// readOperator matches two-character operators before one-character ones.
func (s *Scanner) readOperator(c byte) (token.Kind, bool) {
	if kind, ok := twoCharOps[string([]byte{c, s.peek()})]; ok {
		s.next()
		return kind, true
	}
	kind, ok := oneCharOps[c]
	return kind, ok
}

func (s *Scanner) readIdent(first byte) token.Token {
	start := s.pos - 1
	for isIdentChar(s.peek()) {
		s.next()
	}
	return token.Token{Kind: token.IDENT, Value: s.input[start:s.pos]}
}

func (s *Scanner) errorf(format string, args ...any) *ScanError {
	return newScanError(s.file, s.start, s.current(), format, args...)
}

var twoCharOps = map[string]token.Kind{
	"<<": token.LSHIFT,
	"<=": token.LE,
	"<>": token.NE,
	">>": token.RSHIFT,
	">=": token.GE,
	"==": token.EQEQ,
	"!=": token.NE,
	"||": token.CONCAT,
}

var oneCharOps = map[byte]token.Kind{
	'(': token.LPAREN,
	')': token.RPAREN,
	',': token.COMMA,
	'.': token.DOT,
	';': token.SEMICOLON,
	'+': token.PLUS,
	'-': token.MINUS,
	'*': token.STAR,
	'/': token.SLASH,
	'%': token.PERCENT,
	'<': token.LT,
	'>': token.GT,
	'=': token.EQ,
	'&': token.AMP,
	'|': token.PIPE,
	'!': token.NOT,
	'@': token.AT,
	'$': token.DOLLAR,
	'?': token.QUESTION,
	':': token.COLON,
	'~': token.TILDE,
	'#': token.HASH,
}

func quoteName(quote byte) string {
	if quote == '\'' {
		return "string"
	}
	return "identifier"
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// isIdentChar reports whether c can be part of a bare identifier: anything
// that is not whitespace, punctuation, an operator or a quote.
func isIdentChar(c byte) bool {
	if c == 0 || isWhitespace(c) {
		return false
	}
	if _, ok := oneCharOps[c]; ok {
		return false
	}
	switch c {
	case '\'', '"', '`', '[':
		return false
	}
	return true
}
