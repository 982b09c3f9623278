// Package sqltype maps SQL column types onto the semantic types used by the
// resource layer, and converts values between their wire and storage forms.
// Filter compilation, deserialization and serialization all go through this
// package so that a datetime means the same thing in every direction.
package sqltype

import (
	"fmt"
	"strings"
)

// Type is the semantic type of a model field.
type Type int

const (
	// TypeString is the default type for text and unknown SQL types.
	TypeString Type = iota
	// TypeInteger represents integer numeric types.
	TypeInteger
	// TypeFloat represents floating-point and fixed-point numeric types.
	TypeFloat
	// TypeBoolean represents boolean types.
	TypeBoolean
	// TypeDate represents calendar dates without a time component.
	TypeDate
	// TypeDateTime represents timestamps.
	TypeDateTime
	// TypeDuration represents time spans, stored as a number of seconds.
	TypeDuration
)

// FromSQL converts a SQL data type string to its semantic type.
// The input is case-insensitive. Size specifiers like (10,2) or (255) are stripped before matching.
func FromSQL(sqlType string) Type {
	if idx := strings.Index(sqlType, "("); idx != -1 {
		sqlType = sqlType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(sqlType)) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT",
		"INTEGER", "BIGINT", "SERIAL", "BIGSERIAL", "BIT":
		return TypeInteger
	case "FLOAT", "DOUBLE", "REAL", "DOUBLE PRECISION",
		"DECIMAL", "NUMERIC":
		return TypeFloat
	case "BOOL", "BOOLEAN":
		return TypeBoolean
	case "DATE":
		return TypeDate
	case "DATETIME", "TIMESTAMP", "TIMESTAMPTZ":
		return TypeDateTime
	case "INTERVAL":
		return TypeDuration
	default:
		return TypeString
	}
}

// Parse resolves a type name as written in a model definition. Semantic
// names (string, integer, ...) are accepted as well as SQL column types.
func Parse(name string) (Type, error) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	switch trimmed {
	case "":
		return TypeString, fmt.Errorf("empty type name")
	case "string":
		return TypeString, nil
	case "integer", "int":
		return TypeInteger, nil
	case "float", "number":
		return TypeFloat, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	case "date":
		return TypeDate, nil
	case "datetime", "timestamp":
		return TypeDateTime, nil
	case "duration", "interval":
		return TypeDuration, nil
	}
	return FromSQL(name), nil
}

// String returns the semantic type name.
func (t Type) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	case TypeDuration:
		return "duration"
	default:
		return "string"
	}
}

// IsTemporal reports whether string arguments for this type are parsed as
// dates, datetimes or durations before they reach the database.
func (t Type) IsTemporal() bool {
	return t == TypeDate || t == TypeDateTime || t == TypeDuration
}

// IsNumeric reports whether the type is an integer or float type.
func (t Type) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat
}
