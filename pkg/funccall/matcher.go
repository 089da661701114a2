// Package funccall finds and rewrites calls to registered functions that
// appear in ordinary SQL call syntax, such as schema.pad(x).
package funccall

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/sqlext/pkg/macro"
	"github.com/leapstack-labs/sqlext/pkg/scanner"
	"github.com/leapstack-labs/sqlext/pkg/token"
)

// DefaultMaxCalls bounds the number of substitutions in one Rewrite.
const DefaultMaxCalls = 10000

// ErrCallLimit is returned when Rewrite keeps finding calls after MaxCalls
// substitutions, usually because a function expands to a call of itself.
var ErrCallLimit = errors.New("function call limit exceeded")

// Options configures a Matcher.
type Options struct {
	Logger   *slog.Logger
	MaxCalls int
}

// signature is a function name pre-scanned into the tokens that must
// precede the opening parenthesis of a call.
type signature struct {
	fn     *macro.Function
	tokens []token.Token
}

// Matcher locates call sites of a fixed set of functions.
type Matcher struct {
	sigs     []signature
	logger   *slog.Logger
	maxCalls int
}

// Call is a located call site.
type Call struct {
	Func  *macro.Function
	Token token.Token // synthetic FUNCTION token covering name through ")"
	Start int         // index of the first name token
	End   int         // index just past the closing ")"
	Args  []string    // argument text, trimmed of surrounding whitespace
	Raw   string      // text between the parentheses, trimmed
}

// NewMatcher pre-scans the function names. Longer names are tried first;
// names of equal length keep their registration order.
func NewMatcher(funcs []*macro.Function, opts Options) (*Matcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxCalls := opts.MaxCalls
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}

	m := &Matcher{logger: logger, maxCalls: maxCalls}
	for _, fn := range funcs {
		tokens, err := scanner.Scan(fn.Name, fn.Source)
		if err != nil {
			return nil, fmt.Errorf("function %s: invalid name: %w", fn.Name, err)
		}
		if len(tokens) <= 1 {
			continue
		}
		m.sigs = append(m.sigs, signature{fn: fn, tokens: tokens[:len(tokens)-1]})
	}

	sort.SliceStable(m.sigs, func(i, j int) bool {
		return len(m.sigs[i].fn.Name) > len(m.sigs[j].fn.Name)
	})
	return m, nil
}

// Len returns the number of signatures.
func (m *Matcher) Len() int { return len(m.sigs) }

// Find returns the right-most call site in buf, or nil if there is none.
// Since nested calls open to the right of their enclosing call, the
// innermost call is always found first.
func (m *Matcher) Find(buf *token.Buffer) (*Call, error) {
	toks := buf.Tokens()
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].Kind != token.LPAREN {
			continue
		}
		for _, sig := range m.sigs {
			start, ok := matchBefore(toks, i, sig.tokens)
			if !ok {
				continue
			}
			return m.parseCall(buf, sig.fn, start, i)
		}
	}
	return nil, nil
}

// matchBefore compares pattern against the tokens ending just before index
// end, walking backward. The match must not continue a longer qualified
// name or sit inside a %%%name(...)%%% reference.
func matchBefore(toks []token.Token, end int, pattern []token.Token) (int, bool) {
	start := end - len(pattern)
	if start < 0 {
		return 0, false
	}
	for k := len(pattern) - 1; k >= 0; k-- {
		tok := toks[start+k]
		if tok.Quoted || !tok.Equal(pattern[k]) {
			return 0, false
		}
	}
	if start > 0 && toks[start-1].Kind == token.DOT {
		return 0, false
	}
	if afterDelimiter(toks, start) {
		return 0, false
	}
	return start, true
}

// afterDelimiter reports whether toks[i] directly follows a %%% delimiter.
// A lone % before it is the modulo operator.
func afterDelimiter(toks []token.Token, i int) bool {
	if i < 3 {
		return false
	}
	for k := i - 3; k < i; k++ {
		if toks[k].Kind != token.PERCENT {
			return false
		}
	}
	return toks[i-2].Pre == "" && toks[i-1].Pre == ""
}

// parseCall collects the arguments of the call whose "(" is at open.
func (m *Matcher) parseCall(buf *token.Buffer, fn *macro.Function, start, open int) (*Call, error) {
	toks := buf.Tokens()

	var (
		args   []string
		argPos []int
		depth  = 0
		argBeg = open + 1
		closed = -1
	)

	for j := open + 1; j < len(toks) && closed < 0; j++ {
		switch toks[j].Kind {
		case token.LPAREN:
			depth++
		case token.RPAREN:
			if depth > 0 {
				depth--
				continue
			}
			if j > open+1 || len(args) > 0 {
				args = append(args, buf.Source(argBeg, j))
				argPos = append(argPos, toks[argBeg].StrPos())
			}
			closed = j
		case token.COMMA:
			if depth == 0 {
				args = append(args, buf.Source(argBeg, j))
				argPos = append(argPos, toks[argBeg].StrPos())
				argBeg = j + 1
			}
		}
	}

	if closed < 0 {
		last := toks[len(toks)-1]
		return nil, &UnclosedCallError{
			Name:   fn.Name,
			Span:   token.Span{Start: toks[start].Span.Start, End: last.Span.End},
			Source: buf.Source(start, len(toks)-1),
		}
	}

	end := closed + 1
	call := &Call{
		Func:  fn,
		Start: start,
		End:   end,
		Args:  args,
		Raw:   buf.Source(open+1, closed),
		Token: token.Token{
			Kind:  token.FUNCTION,
			Value: fn.Name,
			Pre:   toks[start].Pre,
			Span:  token.Span{Start: toks[start].Span.Start, End: toks[closed].Span.End},
			Call: &token.CallInfo{
				ArgPos:   argPos,
				EndIndex: closed,
				EndPos:   toks[closed].EndPos(),
			},
		},
	}
	return call, nil
}

// ExpandFunc produces the replacement text for a call.
type ExpandFunc func(call *Call) (string, error)

// Rewrite replaces every call site in sql with the text produced by expand,
// one call at a time, until none is left. Text that cannot be scanned is
// returned unchanged. The returned count is the number of substitutions.
func (m *Matcher) Rewrite(sql, file string, expand ExpandFunc) (string, int, error) {
	if len(m.sigs) == 0 || sql == "" {
		return sql, 0, nil
	}

	tokens, err := scanner.Scan(sql, file)
	if err != nil {
		m.logger.Debug("skipping function rewrite", "error", err)
		return sql, 0, nil
	}

	buf := token.NewBuffer(sql, tokens)
	scan := scanner.Func(file)
	count := 0
	for {
		call, err := m.Find(buf)
		if err != nil {
			return "", count, err
		}
		if call == nil {
			return buf.Text(), count, nil
		}
		if count >= m.maxCalls {
			return "", count, fmt.Errorf("%w: %d substitutions, last at %s", ErrCallLimit, count, call.Token.Span.Start)
		}

		text, err := expand(call)
		if err != nil {
			return "", count, err
		}
		if _, err := buf.Replace(call.Start, call.End, text, scan); err != nil {
			return "", count, fmt.Errorf("function %s at %s: cannot scan replacement: %w",
				call.Func.Name, call.Token.Span.Start, err)
		}
		m.logger.Debug("rewrote function call", "function", call.Func.Name, "at", call.Token.Span.Start.String())
		count++
	}
}

// CallArgs returns the argument list to pass to the function. Functions
// without declared parameters receive the raw text between the parentheses.
func (c *Call) CallArgs() []string {
	if len(c.Func.Params) == 0 {
		if c.Raw == "" {
			return nil
		}
		return []string{c.Raw}
	}
	return c.Args
}
