// Package schema rewrites qualified object names according to configured
// replacement rules, so statements written against one schema layout can
// run against another.
package schema

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/sqlext/pkg/scanner"
	"github.com/leapstack-labs/sqlext/pkg/token"
)

// Replacement is a regular expression applied to matched text.
type Replacement struct {
	Search  string `koanf:"search" yaml:"search"`
	Replace string `koanf:"replace" yaml:"replace"`
}

// Rule rewrites occurrences of a qualified name.
//
// SearchSchema is a dotted name pattern such as "old_schema" or
// "old_schema.orders"; "*" stands for any single name segment. Matches are
// case-insensitive. The matched text is first replaced by Replace, when set,
// and then run through every ReplaceSchema expression in order. Templates
// may use {table} for the last name segment of the match and $1-style regexp
// captures.
type Rule struct {
	SearchSchema  string        `koanf:"search_schema" yaml:"search_schema"`
	Replace       string        `koanf:"replace" yaml:"replace"`
	ReplaceSchema []Replacement `koanf:"replace_schema" yaml:"replace_schema"`
}

type compiledRule struct {
	rule    Rule
	pattern []token.Token
	regexps []*regexp.Regexp
}

// Replacer applies a fixed rule set.
type Replacer struct {
	rules  []compiledRule
	logger *slog.Logger
}

// NewReplacer compiles rules. Rules without a search pattern are skipped.
// Longer patterns are tried first.
func NewReplacer(rules []Rule, logger *slog.Logger) (*Replacer, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Replacer{logger: logger}
	for i, rule := range rules {
		search := strings.TrimSpace(rule.SearchSchema)
		if search == "" {
			continue
		}

		tokens, err := scanner.Scan(search, "")
		if err != nil {
			return nil, fmt.Errorf("schema rule %d: invalid search_schema %q: %w", i+1, search, err)
		}
		pattern := tokens[:len(tokens)-1]
		if err := validatePattern(pattern); err != nil {
			return nil, fmt.Errorf("schema rule %d: invalid search_schema %q: %w", i+1, search, err)
		}

		cr := compiledRule{rule: rule, pattern: pattern}
		for _, rep := range rule.ReplaceSchema {
			re, err := regexp.Compile("(?i)" + rep.Search)
			if err != nil {
				return nil, fmt.Errorf("schema rule %d: invalid replace_schema search %q: %w", i+1, rep.Search, err)
			}
			cr.regexps = append(cr.regexps, re)
		}
		r.rules = append(r.rules, cr)
	}

	sort.SliceStable(r.rules, func(i, j int) bool {
		return len(r.rules[i].rule.SearchSchema) > len(r.rules[j].rule.SearchSchema)
	})
	return r, nil
}

// validatePattern accepts name segments separated by dots.
func validatePattern(pattern []token.Token) error {
	for k, tok := range pattern {
		wantName := k%2 == 0
		switch {
		case wantName && (tok.Kind == token.IDENT || tok.Kind == token.STAR):
		case !wantName && tok.Kind == token.DOT:
		default:
			return fmt.Errorf("unexpected %s", tok.Kind)
		}
	}
	if len(pattern)%2 == 0 {
		return fmt.Errorf("pattern ends with a dot")
	}
	return nil
}

// Len returns the number of active rules.
func (r *Replacer) Len() int { return len(r.rules) }

// Replace rewrites every qualified name in sql matched by a rule. Text that
// cannot be scanned is returned unchanged. The count covers replacements
// that changed the text.
func (r *Replacer) Replace(sql, file string) (string, int, error) {
	if len(r.rules) == 0 || sql == "" {
		return sql, 0, nil
	}

	tokens, err := scanner.Scan(sql, file)
	if err != nil {
		r.logger.Debug("skipping schema replacement", "error", err)
		return sql, 0, nil
	}

	buf := token.NewBuffer(sql, tokens)
	scan := scanner.Func(file)
	count := 0

	for i := buf.Len() - 2; i >= 0; i-- {
		if k := buf.At(i).Kind; k != token.IDENT && k != token.STAR {
			continue
		}
		for _, cr := range r.rules {
			start, ok := matchBefore(buf.Tokens(), i+1, cr.pattern)
			if !ok {
				continue
			}

			matched := buf.Source(start, i+1)
			out := cr.apply(matched, buf.At(i).Value)
			if out != matched {
				if _, err := buf.Replace(start, i+1, out, scan); err != nil {
					return "", count, fmt.Errorf("schema rule %q at %s: cannot scan replacement %q: %w",
						cr.rule.SearchSchema, buf.At(start).Span.Start, out, err)
				}
				count++
			}
			i = start
			break
		}
	}
	return buf.Text(), count, nil
}

// matchBefore compares pattern with the tokens ending just before end.
// The match must not continue a longer qualified name.
func matchBefore(toks []token.Token, end int, pattern []token.Token) (int, bool) {
	start := end - len(pattern)
	if start < 0 {
		return 0, false
	}
	for k := len(pattern) - 1; k >= 0; k-- {
		tok, want := toks[start+k], pattern[k]
		if want.Kind == token.STAR && (tok.Kind == token.IDENT || tok.Kind == token.STAR) {
			continue
		}
		if !tok.Equal(want) {
			return 0, false
		}
	}
	if start > 0 && toks[start-1].Kind == token.DOT {
		return 0, false
	}
	return start, true
}

func (cr compiledRule) apply(matched, table string) string {
	out := matched
	if cr.rule.Replace != "" {
		out = expandTable(cr.rule.Replace, table)
	}
	for k, re := range cr.regexps {
		out = re.ReplaceAllString(out, expandTable(cr.rule.ReplaceSchema[k].Replace, table))
	}
	return out
}

func expandTable(tmpl, table string) string {
	return strings.ReplaceAll(tmpl, "{table}", table)
}
