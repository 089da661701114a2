package db

import (
	"fmt"

	"github.com/leapstack-labs/sqlext/pkg/adapter"
)

// MaxLength marks a VarChar or VarBinary without a length limit.
const MaxLength = adapter.MaxLength

// Fixed parameter types.
var (
	BigInt   = adapter.DBType{Name: adapter.TypeBigInt}
	Int      = adapter.DBType{Name: adapter.TypeInt}
	SmallInt = adapter.DBType{Name: adapter.TypeSmallInt}
	TinyInt  = adapter.DBType{Name: adapter.TypeTinyInt}
	Boolean  = adapter.DBType{Name: adapter.TypeBoolean}
	Date     = adapter.DBType{Name: adapter.TypeDate}
)

func Char(length int) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeChar, Length: length}
}

func VarChar(length int) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeVarChar, Length: length}
}

// NVarChar is an alias of VarChar.
func NVarChar(length int) adapter.DBType { return VarChar(length) }

func Decimal(precision, scale int) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeDecimal, Precision: precision, Scale: scale}
}

func Float(precision int) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeFloat, Precision: precision}
}

func Time(precision int, preserveTimezone bool) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeTime, Precision: precision, PreserveTimezone: preserveTimezone}
}

func DateTime(precision int, preserveTimezone bool) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeDateTime, Precision: precision, PreserveTimezone: preserveTimezone}
}

func VarBinary(length int) adapter.DBType {
	return adapter.DBType{Name: adapter.TypeVarBinary, Length: length}
}

// TypeFromValue infers a parameter type from a Go value.
func TypeFromValue(v any) adapter.DBType { return adapter.TypeFromValue(v) }

// P builds a parameter whose type is inferred from value.
func P(name string, value any) adapter.Param {
	return adapter.Param{Name: name, Type: TypeFromValue(value), Value: value}
}

// ShortcutParams builds parameters from a type string with one character
// per name: s is a VarChar, i a BigInt and d a Decimal(10,4).
func ShortcutParams(types string, names []string, values map[string]any) ([]adapter.Param, error) {
	if len(types) != len(names) {
		return nil, fmt.Errorf("number of parameters (%d) does not match number of parameter types (%d)", len(names), len(types))
	}

	params := make([]adapter.Param, len(names))
	for i, name := range names {
		var typ adapter.DBType
		switch types[i] {
		case 's':
			typ = VarChar(MaxLength)
		case 'i':
			typ = BigInt
		case 'd':
			typ = Decimal(10, 4)
		default:
			return nil, fmt.Errorf("invalid type %q for parameter @%s", types[i], name)
		}
		params[i] = adapter.Param{Name: name, Type: typ, Value: values[name]}
	}
	return params, nil
}
