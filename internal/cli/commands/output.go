package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/sqlext/pkg/adapter"
)

// Output formats accepted by --output.
const (
	formatText  = "text"
	formatJSON  = "json"
	formatTable = "table"
)

func renderResult(w io.Writer, res *adapter.Result, format string) error {
	if format == formatJSON {
		return renderJSON(w, res.Value())
	}

	switch res.ReturnType {
	case adapter.ReturnCommand:
		_, _ = fmt.Fprintf(w, "(%d rows affected)\n", res.RowsAffected)
		return nil
	case adapter.ReturnScalar:
		_, _ = fmt.Fprintln(w, formatValue(res.Scalar()))
		return nil
	case adapter.ReturnRow:
		if len(res.Sets) > 0 && len(res.Sets[0].Rows) > 1 {
			set := res.Sets[0]
			set.Rows = set.Rows[:1]
			return renderTable(w, set.Columns, set.Rows)
		}
	}

	for i, set := range res.Sets {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		if err := renderTable(w, set.Columns, set.Rows); err != nil {
			return err
		}
	}
	return nil
}

func renderTable(w io.Writer, cols []string, results []map[string]any) error {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	// Header
	headerRow := make(table.Row, len(cols))
	for i, col := range cols {
		headerRow[i] = col
	}
	t.AppendHeader(headerRow)

	// Rows
	for _, result := range results {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(result[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(results))
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", v)
	}
}
