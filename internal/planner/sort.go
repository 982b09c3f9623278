package planner

import (
	"strings"

	"resourcegraph/internal/apierr"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// SortKey orders results by a field path ("age" or "author.name").
type SortKey struct {
	Direction Direction
	Field     string
}

// String renders the key in the form ParseSort accepts.
func (k SortKey) String() string {
	if k.Direction == Desc {
		return "-" + k.Field
	}
	return k.Field
}

// ParseSort parses a comma-separated sort list such as "-age,created_at".
// A leading '-' sorts descending and a leading '+' ascending. Key order is
// preserved.
func ParseSort(raw string) ([]SortKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]SortKey, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		key := SortKey{Direction: Asc, Field: part}
		switch {
		case strings.HasPrefix(part, "-"):
			key = SortKey{Direction: Desc, Field: part[1:]}
		case strings.HasPrefix(part, "+"):
			key.Field = part[1:]
		}
		if key.Field == "" {
			return nil, apierr.NewParseError("invalid sort %q: empty sort key", raw).WithField("sort")
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// FormatSort is the inverse of ParseSort.
func FormatSort(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ",")
}

// ParseGroup parses a comma-separated list of group field paths.
func ParseGroup(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, apierr.NewParseError("invalid group %q: empty group key", raw).WithField("group")
		}
		out = append(out, part)
	}
	return out, nil
}
