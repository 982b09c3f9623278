package sqltype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the wire format of date values.
	DateLayout = "2006-01-02"
	// DateTimeLayout is the wire format of datetime values. Rendered values are
	// always UTC.
	DateTimeLayout = time.RFC3339
)

// Layouts accepted when parsing datetime strings, tried in order.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

// NowMarker is a literal that stands for the database's current time.
type NowMarker string

const (
	CurrentTimestamp NowMarker = "CURRENT_TIMESTAMP"
	CurrentDate      NowMarker = "CURRENT_DATE"
	LocalTimestamp   NowMarker = "LOCALTIMESTAMP"
)

// ParseNowMarker reports whether s is one of the now markers.
func ParseNowMarker(s string) (NowMarker, bool) {
	switch NowMarker(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrentTimestamp:
		return CurrentTimestamp, true
	case CurrentDate:
		return CurrentDate, true
	case LocalTimestamp:
		return LocalTimestamp, true
	}
	return "", false
}

// ParseDateTime parses s with the fixed set of accepted layouts.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q: expected ISO-8601 (e.g. 2006-01-02T15:04:05Z)", s)
}

// ParseDuration parses a number of seconds or a Go duration string ("1h30m").
func ParseDuration(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return secs, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d.Seconds(), nil
}

// Coerce converts an inbound value (decoded JSON or a filter argument) into
// the storage representation for t. nil passes through.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if n, ok := v.(json.Number); ok {
		v = string(n)
	}
	switch t {
	case TypeInteger:
		return coerceInteger(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeBoolean:
		return coerceBoolean(v)
	case TypeDate:
		ts, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
	case TypeDateTime:
		return coerceTime(v)
	case TypeDuration:
		switch val := v.(type) {
		case string:
			return ParseDuration(val)
		case time.Duration:
			return val.Seconds(), nil
		}
		return coerceFloat(v)
	default:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		case bool, float64, float32, int, int64, int32:
			return fmt.Sprint(val), nil
		}
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
}

func coerceInteger(v any) (any, error) {
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", val)
		}
		return int64(val), nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("%v is not an integer", val)
		}
		return int64(val), nil
	case float32:
		return coerceInteger(float64(val))
	case []byte:
		return coerceInteger(string(val))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", val)
		}
		return n, nil
	}
	return nil, fmt.Errorf("cannot use %T as integer", v)
}

func coerceFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case []byte:
		return coerceFloat(string(val))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	}
	n, err := coerceInteger(v)
	if err != nil {
		return 0, fmt.Errorf("cannot use %T as float", v)
	}
	return float64(n.(int64)), nil
}

func coerceBoolean(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case []byte:
		return coerceBoolean(string(val))
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return false, fmt.Errorf("invalid boolean %q", val)
		}
		return b, nil
	}
	n, err := coerceInteger(v)
	if err != nil {
		return false, fmt.Errorf("cannot use %T as boolean", v)
	}
	return n.(int64) != 0, nil
}

func coerceTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case []byte:
		return ParseDateTime(string(val))
	case string:
		return ParseDateTime(val)
	}
	return time.Time{}, fmt.Errorf("cannot use %T as datetime", v)
}

// Render converts a stored value into its wire representation: datetimes as
// UTC RFC 3339, dates as YYYY-MM-DD, durations as total seconds. A value
// whose runtime type does not fit t is an error.
func Render(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInteger:
		return coerceInteger(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeBoolean:
		return coerceBoolean(v)
	case TypeDate:
		ts, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		return ts.Format(DateLayout), nil
	case TypeDateTime:
		ts, err := coerceTime(v)
		if err != nil {
			return nil, err
		}
		return ts.Format(DateTimeLayout), nil
	case TypeDuration:
		if d, ok := v.(time.Duration); ok {
			return d.Seconds(), nil
		}
		return coerceFloat(v)
	default:
		switch val := v.(type) {
		case string:
			return val, nil
		case []byte:
			return string(val), nil
		case fmt.Stringer:
			return val.String(), nil
		}
		return nil, fmt.Errorf("unexpected %T for string field", v)
	}
}
