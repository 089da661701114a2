package scanner

import "strings"

// Escape wraps text in an escape envelope so later passes leave it alone.
func Escape(text string) string {
	return EscapeStart + text + EscapeEnd
}

// Unescape removes escape envelopes, keeping their contents.
// An envelope without an end marker is left as is.
func Unescape(sql string) string {
	if !strings.Contains(sql, EscapeStart) {
		return sql
	}

	var sb strings.Builder
	sb.Grow(len(sql))
	for {
		start := strings.Index(sql, EscapeStart)
		if start < 0 {
			break
		}
		body := sql[start+len(EscapeStart):]
		end := strings.Index(body, EscapeEnd)
		if end < 0 {
			break
		}
		sb.WriteString(sql[:start])
		sb.WriteString(body[:end])
		sql = body[end+len(EscapeEnd):]
	}
	sb.WriteString(sql)
	return sb.String()
}
