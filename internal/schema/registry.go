package schema

import (
	"fmt"
	"strings"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/naming"
	"resourcegraph/internal/sqltype"
)

// Registry is the immutable set of linked models.
type Registry struct {
	models       []*Model
	byName       map[string]*Model
	byCollection map[string]*Model
	namer        *naming.Namer
}

// Models returns every model in declaration order.
func (r *Registry) Models() []*Model {
	return r.models
}

// Model looks up a model by name.
func (r *Registry) Model(name string) (*Model, error) {
	if m, ok := r.byName[name]; ok {
		return m, nil
	}
	return nil, apierr.New(apierr.ResourceNotFound, "unknown model %q", name)
}

// Collection looks up a model by its collection name. A miss that names a
// model in singular form suggests the model's collection.
func (r *Registry) Collection(name string) (*Model, error) {
	if m, ok := r.byCollection[name]; ok {
		return m, nil
	}
	if m, ok := r.byName[r.namer.ModelName(name)]; ok {
		return nil, apierr.New(apierr.ResourceNotFound, "unknown collection %q (did you mean %q?)", name, m.Collection)
	}
	return nil, apierr.New(apierr.ResourceNotFound, "unknown collection %q", name)
}

// Build validates and links model definitions into a Registry.
func Build(defs []ModelDef, namer *naming.Namer) (*Registry, error) {
	if namer == nil {
		namer = naming.Default()
	}
	reg := &Registry{
		byName:       make(map[string]*Model, len(defs)),
		byCollection: make(map[string]*Model, len(defs)),
		namer:        namer,
	}

	for _, def := range defs {
		m, err := buildModel(def, namer)
		if err != nil {
			return nil, err
		}
		if _, dup := reg.byName[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %q", m.Name)
		}
		if other, dup := reg.byCollection[m.Collection]; dup {
			return nil, fmt.Errorf("models %q and %q share collection %q", other.Name, m.Name, m.Collection)
		}
		reg.models = append(reg.models, m)
		reg.byName[m.Name] = m
		reg.byCollection[m.Collection] = m
	}

	for i, def := range defs {
		if err := reg.linkRelations(reg.models[i], def); err != nil {
			return nil, err
		}
	}
	for _, m := range reg.models {
		for _, rel := range m.relations {
			if rel.Kind != BelongsTo {
				continue
			}
			if f := m.fieldIndex[rel.LocalKey]; !m.IsPrimaryKey(f.Name) {
				f.ForeignKey = true
			}
		}
	}
	return reg, nil
}

func buildModel(def ModelDef, namer *naming.Namer) (*Model, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("model without a name")
	}
	m := &Model{
		Name:       def.Name,
		Collection: def.Collection,
		Table:      def.Table,
		fieldIndex: make(map[string]*Field, len(def.Fields)),
		relIndex:   make(map[string]*Relation, len(def.Relations)),
	}
	if m.Collection == "" {
		m.Collection = namer.CollectionName(def.Name)
	}
	if m.Table == "" {
		m.Table = namer.TableName(def.Name)
	}

	for _, fd := range def.Fields {
		if fd.Name == "" {
			return nil, fmt.Errorf("model %s: field without a name", m.Name)
		}
		if strings.Contains(fd.Name, ".") {
			return nil, fmt.Errorf("model %s: field name %q must not contain '.'", m.Name, fd.Name)
		}
		if _, dup := m.fieldIndex[fd.Name]; dup {
			return nil, fmt.Errorf("model %s: duplicate field %q", m.Name, fd.Name)
		}
		typ := sqltype.TypeString
		if fd.Type != "" {
			var err error
			if typ, err = sqltype.Parse(fd.Type); err != nil {
				return nil, fmt.Errorf("model %s: field %s: %w", m.Name, fd.Name, err)
			}
		}
		column := fd.Column
		if column == "" {
			column = fd.Name
		}
		f := &Field{Name: fd.Name, Column: column, Type: typ, Nullable: fd.Nullable}
		m.fields = append(m.fields, f)
		m.fieldIndex[f.Name] = f
	}
	if len(m.fields) == 0 {
		return nil, fmt.Errorf("model %s: no fields", m.Name)
	}

	m.primaryKey = def.PrimaryKey
	if len(m.primaryKey) == 0 {
		m.primaryKey = []string{"id"}
	}
	for _, pk := range m.primaryKey {
		if !m.HasField(pk) {
			return nil, fmt.Errorf("model %s: primary key field %q is not declared", m.Name, pk)
		}
	}
	return m, nil
}

func (r *Registry) linkRelations(m *Model, def ModelDef) error {
	for _, rd := range def.Relations {
		if rd.Name == "" {
			return fmt.Errorf("model %s: relation without a name", m.Name)
		}
		if m.HasField(rd.Name) || m.HasRelation(rd.Name) {
			return fmt.Errorf("model %s: relation %q collides with an existing field or relation", m.Name, rd.Name)
		}
		target, ok := r.byName[rd.Target]
		if !ok {
			return fmt.Errorf("model %s: relation %s targets unknown model %q", m.Name, rd.Name, rd.Target)
		}
		rel := &Relation{
			Name:             rd.Name,
			Kind:             RelationKind(rd.Kind),
			Model:            m,
			Target:           target,
			Loading:          Eager,
			LocalKey:         rd.LocalKey,
			RemoteKey:        rd.RemoteKey,
			Through:          rd.Through,
			ThroughLocalKey:  rd.ThroughLocalKey,
			ThroughRemoteKey: rd.ThroughRemoteKey,
		}
		switch strings.ToLower(rd.Loading) {
		case "", "eager":
		case "lazy":
			rel.Loading = Lazy
		default:
			return fmt.Errorf("model %s: relation %s: unknown loading %q", m.Name, rd.Name, rd.Loading)
		}

		if err := applyKeyDefaults(rel); err != nil {
			return fmt.Errorf("model %s: relation %s: %w", m.Name, rd.Name, err)
		}
		if rel.Loading == Lazy && !rel.IsToMany() {
			return fmt.Errorf("model %s: relation %s: only to-many relations can be lazy", m.Name, rd.Name)
		}
		if rel.LocalField() == nil {
			return fmt.Errorf("model %s: relation %s: key %q is not a field of %s", m.Name, rd.Name, rel.LocalKey, m.Name)
		}
		if rel.RemoteField() == nil {
			return fmt.Errorf("model %s: relation %s: key %q is not a field of %s", m.Name, rd.Name, rel.RemoteKey, target.Name)
		}

		m.relations = append(m.relations, rel)
		m.relIndex[rel.Name] = rel
	}
	return nil
}

func applyKeyDefaults(rel *Relation) error {
	singlePK := func(m *Model) (string, error) {
		if len(m.primaryKey) != 1 {
			return "", fmt.Errorf("%s has a composite primary key; keys must be set explicitly", m.Name)
		}
		return m.primaryKey[0], nil
	}
	var err error
	switch rel.Kind {
	case BelongsTo:
		if rel.LocalKey == "" {
			rel.LocalKey = rel.Name + "_id"
		}
		if rel.RemoteKey == "" {
			rel.RemoteKey, err = singlePK(rel.Target)
		}
	case HasOne, HasMany:
		if rel.LocalKey == "" {
			rel.LocalKey, err = singlePK(rel.Model)
		}
		if rel.RemoteKey == "" {
			rel.RemoteKey = naming.ToSnakeCase(rel.Model.Name) + "_id"
		}
	case ManyToMany:
		if rel.Through == "" {
			return fmt.Errorf("many_to_many requires a through table")
		}
		if rel.LocalKey == "" {
			if rel.LocalKey, err = singlePK(rel.Model); err != nil {
				return err
			}
		}
		if rel.RemoteKey == "" {
			if rel.RemoteKey, err = singlePK(rel.Target); err != nil {
				return err
			}
		}
		if rel.ThroughLocalKey == "" {
			rel.ThroughLocalKey = naming.ToSnakeCase(rel.Model.Name) + "_id"
		}
		if rel.ThroughRemoteKey == "" {
			rel.ThroughRemoteKey = naming.ToSnakeCase(rel.Target.Name) + "_id"
		}
	default:
		return fmt.Errorf("unknown relation kind %q (expected belongs_to, has_one, has_many or many_to_many)", rel.Kind)
	}
	return err
}
