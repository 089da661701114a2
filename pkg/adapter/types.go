package adapter

import (
	"fmt"
	"math"
	"time"
)

// MaxLength marks a VarChar or VarBinary without a length limit.
const MaxLength = -1

// DBType describes the declared type of a parameter.
type DBType struct {
	Name             string
	Length           int
	Precision        int
	Scale            int
	PreserveTimezone bool
}

func (t DBType) String() string {
	switch {
	case t.Name == "":
		return "unknown"
	case t.Length == MaxLength:
		return t.Name + "(max)"
	case t.Length > 0:
		return fmt.Sprintf("%s(%d)", t.Name, t.Length)
	case t.Precision > 0 && t.Scale > 0:
		return fmt.Sprintf("%s(%d,%d)", t.Name, t.Precision, t.Scale)
	case t.Precision > 0:
		return fmt.Sprintf("%s(%d)", t.Name, t.Precision)
	default:
		return t.Name
	}
}

// Type names.
const (
	TypeChar      = "Char"
	TypeVarChar   = "VarChar"
	TypeBigInt    = "BigInt"
	TypeInt       = "Int"
	TypeSmallInt  = "SmallInt"
	TypeTinyInt   = "TinyInt"
	TypeBoolean   = "Boolean"
	TypeDecimal   = "Decimal"
	TypeFloat     = "Float"
	TypeDate      = "Date"
	TypeTime      = "Time"
	TypeDateTime  = "DateTime"
	TypeVarBinary = "VarBinary"
)

// TypeFromValue infers a parameter type from a Go value.
func TypeFromValue(v any) DBType {
	switch val := v.(type) {
	case string:
		return DBType{Name: TypeVarChar, Length: MaxLength}
	case int, int8, int16, int32, uint8, uint16:
		return DBType{Name: TypeInt}
	case int64:
		if val >= math.MinInt32 && val <= math.MaxInt32 {
			return DBType{Name: TypeInt}
		}
		return DBType{Name: TypeBigInt}
	case uint, uint32, uint64:
		return DBType{Name: TypeBigInt}
	case float32, float64:
		return DBType{Name: TypeFloat, Precision: 53}
	case bool:
		return DBType{Name: TypeBoolean}
	case time.Time:
		return DBType{Name: TypeDateTime, Precision: 7}
	case []byte:
		return DBType{Name: TypeVarBinary, Length: MaxLength}
	default:
		return DBType{Name: TypeVarChar, Length: MaxLength}
	}
}

// Param is a named statement parameter, referenced in SQL as @Name.
type Param struct {
	Name  string
	Type  DBType
	Value any
}

// ReturnType selects how Exec shapes its result.
type ReturnType int

const (
	ReturnRecordset ReturnType = iota
	ReturnMultiRecordset
	ReturnRow
	ReturnCommand
	ReturnScalar
)

func (r ReturnType) String() string {
	switch r {
	case ReturnRecordset:
		return "recordset"
	case ReturnMultiRecordset:
		return "multirecordset"
	case ReturnRow:
		return "row"
	case ReturnCommand:
		return "command"
	case ReturnScalar:
		return "scalar"
	default:
		return fmt.Sprintf("ReturnType(%d)", int(r))
	}
}

// Recordset is the rows of one result set.
type Recordset struct {
	Columns []string
	Rows    []map[string]any
}

// Result is the outcome of Exec.
type Result struct {
	ReturnType   ReturnType
	Sets         []Recordset
	RowsAffected int64
}

// Recordset returns the first result set.
func (r *Result) Recordset() []map[string]any {
	if len(r.Sets) == 0 {
		return nil
	}
	return r.Sets[0].Rows
}

// Recordsets returns the rows of every result set, in statement order.
func (r *Result) Recordsets() [][]map[string]any {
	sets := make([][]map[string]any, len(r.Sets))
	for i, s := range r.Sets {
		sets[i] = s.Rows
	}
	return sets
}

// Row returns the first row of the first result set, or nil.
func (r *Result) Row() map[string]any {
	rows := r.Recordset()
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// Scalar returns the first column of the first row, or nil.
func (r *Result) Scalar() any {
	if len(r.Sets) == 0 || len(r.Sets[0].Rows) == 0 || len(r.Sets[0].Columns) == 0 {
		return nil
	}
	return r.Sets[0].Rows[0][r.Sets[0].Columns[0]]
}

// Value returns the result in the shape its return type describes:
// []map[string]any, [][]map[string]any, map[string]any, int64 or any.
func (r *Result) Value() any {
	switch r.ReturnType {
	case ReturnMultiRecordset:
		return r.Recordsets()
	case ReturnRow:
		return r.Row()
	case ReturnCommand:
		return r.RowsAffected
	case ReturnScalar:
		return r.Scalar()
	default:
		return r.Recordset()
	}
}
