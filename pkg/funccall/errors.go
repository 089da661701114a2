package funccall

import (
	"fmt"

	"github.com/leapstack-labs/sqlext/pkg/token"
)

// UnclosedCallError is returned when a call site has no closing parenthesis.
type UnclosedCallError struct {
	Name   string
	Span   token.Span
	Source string
}

func (e *UnclosedCallError) Error() string {
	return fmt.Sprintf("%s: unclosed call to function %s: %s", e.Span.Start, e.Name, e.Source)
}
