// Package schema holds the entity model registry and answers metadata
// questions about it: field types, relations, primary keys and dotted paths.
//
// Models are declared up front (see Load) and linked once into an immutable
// Registry. Nothing here is modified after construction, so a Registry can be
// shared across goroutines without locking.
package schema

import (
	"strings"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/sqltype"
)

// Field is a scalar attribute backed by a column.
type Field struct {
	Name     string
	Column   string
	Type     sqltype.Type
	Nullable bool
	// ForeignKey is set for the local key of a belongs_to relation that is not
	// part of the primary key. Foreign-key fields are not rendered as attributes.
	ForeignKey bool
}

// Model is a relational entity type.
type Model struct {
	Name       string
	Collection string
	Table      string

	primaryKey []string
	fields     []*Field
	fieldIndex map[string]*Field
	relations  []*Relation
	relIndex   map[string]*Relation
}

// PrimaryKey returns the primary key field names in declaration order.
func (m *Model) PrimaryKey() []string {
	return m.primaryKey
}

// PrimaryKeyFields returns the primary key fields in declaration order.
func (m *Model) PrimaryKeyFields() []*Field {
	out := make([]*Field, 0, len(m.primaryKey))
	for _, name := range m.primaryKey {
		out = append(out, m.fieldIndex[name])
	}
	return out
}

// IsPrimaryKey reports whether name is part of the primary key.
func (m *Model) IsPrimaryKey(name string) bool {
	for _, pk := range m.primaryKey {
		if pk == name {
			return true
		}
	}
	return false
}

// Fields returns every field, foreign keys included.
func (m *Model) Fields() []*Field {
	return m.fields
}

// ScalarFields returns the fields rendered as attributes: every field except
// foreign-key columns.
func (m *Model) ScalarFields() []*Field {
	out := make([]*Field, 0, len(m.fields))
	for _, f := range m.fields {
		if !f.ForeignKey {
			out = append(out, f)
		}
	}
	return out
}

// Relations returns the model's relations in declaration order.
func (m *Model) Relations() []*Relation {
	return m.relations
}

// Field looks up a field by name.
func (m *Model) Field(name string) (*Field, error) {
	if f, ok := m.fieldIndex[name]; ok {
		return f, nil
	}
	return nil, apierr.NewUnknownField(m.Name, name)
}

// FieldType returns the semantic type of a field.
func (m *Model) FieldType(name string) (sqltype.Type, error) {
	f, err := m.Field(name)
	if err != nil {
		return sqltype.TypeString, err
	}
	return f.Type, nil
}

// HasField reports whether the model has a field with that name.
func (m *Model) HasField(name string) bool {
	_, ok := m.fieldIndex[name]
	return ok
}

// Relation looks up a relation by name.
func (m *Model) Relation(name string) (*Relation, error) {
	if r, ok := m.relIndex[name]; ok {
		return r, nil
	}
	return nil, apierr.NewUnknownRelation(m.Name, name)
}

// HasRelation reports whether the model has a relation with that name.
func (m *Model) HasRelation(name string) bool {
	_, ok := m.relIndex[name]
	return ok
}

// Path is a dotted reference resolved against a model: zero or more relation
// hops followed by a field.
type Path struct {
	Hops  []*Relation
	Field *Field
}

// Model returns the model that owns the terminal field.
func (p Path) Model(root *Model) *Model {
	if len(p.Hops) == 0 {
		return root
	}
	return p.Hops[len(p.Hops)-1].Target
}

// RelationPath returns the hop names joined with dots ("" for a bare field).
func (p Path) RelationPath() string {
	names := make([]string, len(p.Hops))
	for i, hop := range p.Hops {
		names[i] = hop.Name
	}
	return strings.Join(names, ".")
}

// String returns the path in dotted form.
func (p Path) String() string {
	if len(p.Hops) == 0 {
		return p.Field.Name
	}
	return p.RelationPath() + "." + p.Field.Name
}

// ResolvePath resolves "a.b.c" into relation hops a and b ending in field c.
// An unresolvable segment fails with UnknownField; a middle segment that names
// a field rather than a relation fails with UnknownRelation.
func (m *Model) ResolvePath(path string) (Path, error) {
	segments := strings.Split(path, ".")
	current := m
	var hops []*Relation
	for i, segment := range segments {
		if i == len(segments)-1 {
			f, err := current.Field(segment)
			if err != nil {
				return Path{}, apierr.NewUnknownField(current.Name, path)
			}
			return Path{Hops: hops, Field: f}, nil
		}
		rel, ok := current.relIndex[segment]
		if !ok {
			if current.HasField(segment) {
				return Path{}, apierr.NewUnknownRelation(current.Name, segment)
			}
			return Path{}, apierr.NewUnknownField(current.Name, path)
		}
		hops = append(hops, rel)
		current = rel.Target
	}
	return Path{}, apierr.NewUnknownField(m.Name, path)
}

// ResolveRelationPath resolves "a.b" into a chain of relations.
func (m *Model) ResolveRelationPath(path string) ([]*Relation, error) {
	current := m
	var hops []*Relation
	for _, segment := range strings.Split(path, ".") {
		rel, err := current.Relation(segment)
		if err != nil {
			return nil, err
		}
		hops = append(hops, rel)
		current = rel.Target
	}
	return hops, nil
}
