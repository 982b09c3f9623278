package schema

// RelationKind is the ownership direction of a relation.
type RelationKind string

const (
	// BelongsTo is a to-one relation whose foreign key lives on this model.
	BelongsTo RelationKind = "belongs_to"
	// HasOne is a to-one relation whose foreign key lives on the target.
	HasOne RelationKind = "has_one"
	// HasMany is a to-many relation whose foreign key lives on the target.
	HasMany RelationKind = "has_many"
	// ManyToMany is a to-many relation through a junction table.
	ManyToMany RelationKind = "many_to_many"
)

// Cardinality is the number of related instances.
type Cardinality string

const (
	ToOne  Cardinality = "TO_ONE"
	ToMany Cardinality = "TO_MANY"
)

// Loading controls whether a to-many relation is materialized when loaded
// or handed out as a paginated handle.
type Loading string

const (
	Eager Loading = "EAGER"
	Lazy  Loading = "LAZY"
)

// Relation links a model to a target model.
//
// LocalKey and RemoteKey are field names: for belongs_to the local key is the
// foreign key on Model and the remote key is on Target; for has_one/has_many
// the remote key is the foreign key on Target. For many_to_many both keys are
// the referenced fields and ThroughLocalKey/ThroughRemoteKey are the junction
// table columns pointing at them.
type Relation struct {
	Name    string
	Kind    RelationKind
	Model   *Model
	Target  *Model
	Loading Loading

	LocalKey  string
	RemoteKey string

	Through          string
	ThroughLocalKey  string
	ThroughRemoteKey string
}

// Cardinality reports whether the relation is to-one or to-many.
func (r *Relation) Cardinality() Cardinality {
	if r.Kind == HasMany || r.Kind == ManyToMany {
		return ToMany
	}
	return ToOne
}

// IsToMany is shorthand for Cardinality() == ToMany.
func (r *Relation) IsToMany() bool {
	return r.Cardinality() == ToMany
}

// LocalField returns the field on Model used by the join.
func (r *Relation) LocalField() *Field {
	return r.Model.fieldIndex[r.LocalKey]
}

// RemoteField returns the field on Target used by the join.
func (r *Relation) RemoteField() *Field {
	return r.Target.fieldIndex[r.RemoteKey]
}
