package scanner

import (
	"fmt"

	"github.com/leapstack-labs/sqlext/pkg/token"
)

// ScanError reports malformed input such as an unterminated string or an
// invalid number literal.
type ScanError struct {
	File    string
	Message string
	Start   token.Position
	End     token.Position
}

func newScanError(file string, start, end token.Position, format string, args ...any) *ScanError {
	return &ScanError{
		File:    file,
		Message: fmt.Sprintf(format, args...),
		Start:   start,
		End:     end,
	}
}

func (e *ScanError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Start.Line, e.Start.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Start.Line, e.Start.Column, e.Message)
}
