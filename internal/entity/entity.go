// Package entity defines the in-memory form of a row: an Instance of a model
// with field values and relation values.
package entity

import (
	"context"
	"fmt"
	"strings"

	"resourcegraph/internal/pagination"
	"resourcegraph/internal/schema"
)

// Callable is a field value computed on demand. The serializer invokes it
// when the field is rendered.
type Callable func() (any, error)

// Instance is one entity of a model.
type Instance struct {
	Model *schema.Model
	// Values maps field name to value. A value may be a Callable.
	Values map[string]any
	// Relations maps relation name to a loaded relation value. Relations
	// that were never loaded are absent.
	Relations map[string]RelationValue

	// Group is set for a row of a grouped query. Values then holds one value
	// per group key, keyed by its path, Count is the number of rows in the
	// group, and the instance has no identity.
	Group bool
	Count int64
}

// New creates an empty instance of m.
func New(m *schema.Model) *Instance {
	return &Instance{
		Model:     m,
		Values:    make(map[string]any),
		Relations: make(map[string]RelationValue),
	}
}

// Get returns the raw value of a field, invoking it if it is a Callable.
func (i *Instance) Get(field string) (any, error) {
	v := i.Values[field]
	if fn, ok := v.(Callable); ok {
		return fn()
	}
	return v, nil
}

// PrimaryKeyValues returns the raw primary key values in key order.
func (i *Instance) PrimaryKeyValues() ([]any, error) {
	pk := i.Model.PrimaryKey()
	out := make([]any, len(pk))
	for n, name := range pk {
		v, err := i.Get(name)
		if err != nil {
			return nil, err
		}
		out[n] = v
	}
	return out, nil
}

// ID returns the resource identifier: the primary key values joined with ",".
func (i *Instance) ID() (string, error) {
	values, err := i.PrimaryKeyValues()
	if err != nil {
		return "", err
	}
	return FormatID(values), nil
}

// FormatID renders primary key values as a resource identifier.
func FormatID(values []any) string {
	parts := make([]string, len(values))
	for n, v := range values {
		switch val := v.(type) {
		case []byte:
			parts[n] = string(val)
		case nil:
			parts[n] = ""
		default:
			parts[n] = fmt.Sprint(val)
		}
	}
	return strings.Join(parts, ",")
}

// SplitID splits a resource identifier into one raw string per primary key
// field of m.
func SplitID(m *schema.Model, id string) ([]string, error) {
	pk := m.PrimaryKey()
	if len(pk) == 1 {
		return []string{id}, nil
	}
	parts := strings.Split(id, ",")
	if len(parts) != len(pk) {
		return nil, fmt.Errorf("id %q of %s must have %d comma-separated parts", id, m.Collection, len(pk))
	}
	return parts, nil
}

// RelationValue is the loaded value of a relation: One, Many or Lazy.
type RelationValue interface {
	relationValue()
}

// One is a to-one relation value. A nil Instance means the relation is empty.
type One struct {
	Instance *Instance
}

// Many is a materialized to-many relation value.
type Many struct {
	Items []*Instance
}

// Lazy is a to-many relation value that is only read one page at a time.
type Lazy struct {
	Source pagination.Source[*Instance]
}

// Paginate reads one page of the relation.
func (l Lazy) Paginate(ctx context.Context, req pagination.Request, links *pagination.LinkBuilder) (*pagination.Page[*Instance], error) {
	return pagination.Paginate(ctx, l.Source, req, links)
}

func (One) relationValue()  {}
func (Many) relationValue() {}
func (Lazy) relationValue() {}
