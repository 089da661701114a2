package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/scanner"
	"github.com/leapstack-labs/sqlext/pkg/token"
)

// PlaceholderStyle is the positional parameter syntax of a driver.
type PlaceholderStyle int

const (
	// PlaceholderQuestion binds every reference as "?".
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar binds each distinct parameter as "$n".
	PlaceholderDollar
)

// Bind replaces @name references to params with positional placeholders
// and returns the matching driver arguments. Names match case-insensitively.
// References to unknown names, such as @@ROWCOUNT, are left alone.
func Bind(sqlText string, params []Param, style PlaceholderStyle) (string, []any, error) {
	if len(params) == 0 {
		return sqlText, nil, nil
	}

	index := make(map[string]int, len(params))
	for i, p := range params {
		key := strings.ToLower(p.Name)
		if _, dup := index[key]; dup {
			return "", nil, fmt.Errorf("parameter @%s defined multiple times", p.Name)
		}
		index[key] = i
	}

	tokens, err := scanner.Scan(sqlText, "")
	if err != nil {
		return "", nil, err
	}

	var (
		sb       strings.Builder
		args     []any
		position = make(map[int]int)
	)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		sb.WriteString(tok.Pre)

		if tok.Kind == token.AT && i+1 < len(tokens) && (i == 0 || tokens[i-1].Kind != token.AT) {
			next := tokens[i+1]
			if p, ok := index[strings.ToLower(next.Value)]; ok && next.Kind == token.IDENT && next.Pre == "" && !next.Quoted {
				switch style {
				case PlaceholderDollar:
					n, seen := position[p]
					if !seen {
						args = append(args, params[p].Value)
						n = len(args)
						position[p] = n
					}
					sb.WriteString("$" + strconv.Itoa(n))
				default:
					args = append(args, params[p].Value)
					sb.WriteString("?")
				}
				i++
				continue
			}
		}

		sb.WriteString(sqlText[tok.StrPos():tok.EndPos()])
	}
	return sb.String(), args, nil
}

// SplitStatements splits a script at top-level semicolons. Semicolons
// inside strings, comments and CREATE TRIGGER bodies do not split.
// Empty statements are dropped. Unscannable input is returned whole.
func SplitStatements(sqlText string) []string {
	tokens, err := scanner.Scan(sqlText, "")
	if err != nil {
		if s := strings.TrimSpace(sqlText); s != "" {
			return []string{s}
		}
		return nil
	}

	var (
		out     []string
		start   int
		count   int
		trigger bool
		prev    token.Token
	)
	flush := func(end int) {
		if count > 0 {
			out = append(out, strings.TrimSpace(sqlText[start:end]))
		}
		count = 0
		trigger = false
	}

	for _, tok := range tokens {
		switch {
		case tok.Kind == token.EOF:
			flush(len(sqlText))
		case tok.Kind == token.SEMICOLON:
			if trigger && !(prev.Kind == token.IDENT && strings.EqualFold(prev.Value, "end")) {
				count++
				break
			}
			flush(tok.StrPos())
			start = tok.EndPos()
		default:
			if count == 0 {
				start = tok.StrPos()
			}
			if count < 4 && tok.Kind == token.IDENT && strings.EqualFold(tok.Value, "trigger") {
				trigger = true
			}
			count++
		}
		prev = tok
	}
	return out
}
