package token

import (
	"fmt"
	"strings"
)

// Position represents a location in the working SQL text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based byte column
	Offset int // 0-based byte offset
}

// IsValid returns true if the position is valid (line > 0).
func (p Position) IsValid() bool {
	return p.Line > 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Edit describes a splice that replaced source text ending at OldEnd with
// text ending at NewEnd. Delta is the change in length.
type Edit struct {
	Delta  int
	OldEnd Position
	NewEnd Position
}

// Apply maps a position at or after OldEnd to where it sits after the
// edit. The offset moves by Delta and the line by the change in line count;
// the column only changes for positions on OldEnd's line.
func (e Edit) Apply(p Position) Position {
	if p.Line == e.OldEnd.Line {
		p.Column += e.NewEnd.Column - e.OldEnd.Column
	}
	p.Line += e.NewEnd.Line - e.OldEnd.Line
	p.Offset += e.Delta
	return p
}

// EndOf returns the position just past text when text starts at start.
func EndOf(start Position, text string) Position {
	end := start
	end.Offset += len(text)
	if nl := strings.LastIndexByte(text, '\n'); nl >= 0 {
		end.Line += strings.Count(text, "\n")
		end.Column = len(text) - nl
	} else {
		end.Column += len(text)
	}
	return end
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Contains returns true if the span contains the given offset.
func (s Span) Contains(offset int) bool {
	return offset >= s.Start.Offset && offset < s.End.Offset
}

// IsValid returns true if both start and end positions are valid.
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid()
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End.Offset - s.Start.Offset
}

// Apply moves both ends of the span through the edit.
func (s Span) Apply(e Edit) Span {
	return Span{Start: e.Apply(s.Start), End: e.Apply(s.End)}
}
