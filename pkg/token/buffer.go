package token

import "fmt"

// ScanFunc tokenizes text. The returned slice must end with an EOF token,
// or be empty for empty input.
type ScanFunc func(text string) ([]Token, error)

// Buffer holds a working SQL string together with its token stream.
//
// Replace is the only mutating operation. It splices the tokens of the
// replacement text into the stream and rebases every trailing offset, so the
// stream stays consistent with the text without rescanning the whole string.
type Buffer struct {
	text   string
	tokens []Token
}

// NewBuffer creates a buffer over text and its already scanned tokens.
func NewBuffer(text string, tokens []Token) *Buffer {
	return &Buffer{text: text, tokens: tokens}
}

// Text returns the current working text.
func (b *Buffer) Text() string { return b.text }

// Tokens returns the current token stream. The slice is owned by the buffer.
func (b *Buffer) Tokens() []Token { return b.tokens }

// Len returns the number of tokens, including the trailing EOF.
func (b *Buffer) Len() int { return len(b.tokens) }

// At returns the token at index i.
func (b *Buffer) At(i int) Token { return b.tokens[i] }

// Source returns the text covered by tokens [i,j).
func (b *Buffer) Source(i, j int) string {
	if i >= j {
		return ""
	}
	return b.text[b.tokens[i].StrPos():b.tokens[j-1].EndPos()]
}

// Replace substitutes the text covered by tokens [i,j) with text and splices
// the tokens produced by scan in place of the old ones. Tokens from j onward
// move by the change in length; their lines move by the change in line
// count, and tokens on the line where the old range ended get new columns.
// The returned delta is the change in length.
//
// The EOF token can never be replaced.
func (b *Buffer) Replace(i, j int, text string, scan ScanFunc) (int, error) {
	if i < 0 || j <= i || j >= len(b.tokens) {
		return 0, fmt.Errorf("token range [%d,%d) out of bounds (%d tokens)", i, j, len(b.tokens))
	}

	first := b.tokens[i]
	start := first.StrPos()
	end := b.tokens[j-1].EndPos()

	scanned, err := scan(text)
	if err != nil {
		return 0, err
	}

	var post string
	if n := len(scanned); n > 0 && scanned[n-1].Kind == EOF {
		post = scanned[n-1].Pre
		scanned = scanned[:n-1]
	}

	for k := range scanned {
		scanned[k].Span = rebaseSpan(scanned[k].Span, first.Span.Start)
	}

	// Text that preceded the replaced range stays in front of the new tokens;
	// trailing text of the replacement moves in front of the next old token.
	next := b.tokens[j]
	if len(scanned) > 0 {
		scanned[0].Pre = first.Pre + scanned[0].Pre
		next.Pre = post + next.Pre
	} else {
		next.Pre = first.Pre + post + next.Pre
	}

	delta := len(text) - (end - start)
	edit := Edit{
		Delta:  delta,
		OldEnd: b.tokens[j-1].Span.End,
		NewEnd: EndOf(first.Span.Start, text),
	}

	tail := make([]Token, 0, len(b.tokens)-j)
	tail = append(tail, next)
	tail = append(tail, b.tokens[j+1:]...)
	for k := range tail {
		tail[k].Span = tail[k].Span.Apply(edit)
		if tail[k].Call != nil {
			tail[k].Call = shiftCall(tail[k].Call, delta, len(scanned)-(j-i))
		}
	}

	tokens := make([]Token, 0, i+len(scanned)+len(tail))
	tokens = append(tokens, b.tokens[:i]...)
	tokens = append(tokens, scanned...)
	tokens = append(tokens, tail...)

	b.tokens = tokens
	b.text = b.text[:start] + text + b.text[end:]
	return delta, nil
}

// rebaseSpan maps a span scanned from a standalone replacement string onto
// the position where the replacement was inserted.
func rebaseSpan(s Span, at Position) Span {
	return Span{Start: rebasePos(s.Start, at), End: rebasePos(s.End, at)}
}

func rebasePos(p, at Position) Position {
	if p.Line <= 1 {
		p.Column += at.Column - 1
	}
	p.Line += at.Line - 1
	p.Offset += at.Offset
	return p
}

func shiftCall(c *CallInfo, delta, indexDelta int) *CallInfo {
	shifted := &CallInfo{
		ArgPos:   make([]int, len(c.ArgPos)),
		EndIndex: c.EndIndex + indexDelta,
		EndPos:   c.EndPos + delta,
	}
	for k, p := range c.ArgPos {
		shifted.ArgPos[k] = p + delta
	}
	return shifted
}
