// Package serializer renders entity instances as resource documents.
//
// Only the top-level call renders relationships. Expanded relations are
// rendered one level down as nested documents without relationships, which
// bounds recursion through back-references.
package serializer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/pagination"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
)

// DefaultLazyWindow is the page size used for expanded lazy relations.
const DefaultLazyWindow = 10

// Options configures a Serializer.
type Options struct {
	// BaseURL prefixes every link, e.g. "https://api.example.com/v1".
	BaseURL string
	// LazyWindow is the page size of expanded lazy relations.
	LazyWindow int
}

// Serializer renders instances. It holds no per-request state.
type Serializer struct {
	base   string
	window int
}

// New creates a serializer.
func New(opts Options) *Serializer {
	window := opts.LazyWindow
	if window <= 0 {
		window = DefaultLazyWindow
	}
	return &Serializer{base: strings.TrimRight(opts.BaseURL, "/"), window: window}
}

// depth marks whether a document may carry relationships.
type depth int

const (
	depthTop depth = iota
	depthNested
)

// Serialize renders one instance.
func (s *Serializer) Serialize(ctx context.Context, inst *entity.Instance, dir Directive) (*Document, error) {
	docs, err := s.SerializeMany(ctx, []*entity.Instance{inst}, dir)
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// SerializeMany renders a batch. Failures are collected across the whole
// batch and returned together as one SerializationException; no documents
// are returned when any instance fails.
func (s *Serializer) SerializeMany(ctx context.Context, instances []*entity.Instance, dir Directive) ([]*Document, error) {
	docs := make([]*Document, 0, len(instances))
	var errs error
	for _, inst := range instances {
		doc, err := s.document(ctx, inst, dir, depthTop)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if errs != nil {
		n := len(multierr.Errors(errs))
		return nil, apierr.Wrap(apierr.SerializationException, errs, "%d serialization failure(s)", n)
	}
	return docs, nil
}

// SelfLink returns the link of one resource.
func (s *Serializer) SelfLink(model *schema.Model, id string) string {
	return fmt.Sprintf("%s/%s/%s", s.base, model.Collection, id)
}

// CollectionLink returns the link of a collection.
func (s *Serializer) CollectionLink(model *schema.Model) string {
	return fmt.Sprintf("%s/%s", s.base, model.Collection)
}

// RelationLink returns the link of one relation of one resource.
func (s *Serializer) RelationLink(model *schema.Model, id, relation string) string {
	return fmt.Sprintf("%s/%s/%s/%s", s.base, model.Collection, id, relation)
}

func (s *Serializer) document(ctx context.Context, inst *entity.Instance, dir Directive, d depth) (*Document, error) {
	model := inst.Model
	if inst.Group {
		return s.groupDocument(inst)
	}

	var errs error
	id, err := inst.ID()
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%s id: %w", model.Name, err))
	}
	doc := &Document{
		Type:       model.Collection,
		ID:         id,
		Attributes: make(map[string]any),
		Links:      &DocumentLinks{Self: s.SelfLink(model, id)},
	}

	for _, f := range dir.fields(model) {
		v, err := attribute(inst, f)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", model.Name, id, err))
			continue
		}
		doc.Attributes[f.Name] = v
	}

	if d == depthTop {
		doc.Relationships = make(map[string]*Relationship, len(model.Relations()))
		for _, rel := range model.Relations() {
			env, err := s.relationship(ctx, inst, id, rel, dir.Expand)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s %s relation %s: %w", model.Name, id, rel.Name, err))
				continue
			}
			doc.Relationships[rel.Name] = env
		}
	}

	if errs != nil {
		return nil, errs
	}
	return doc, nil
}

func attribute(inst *entity.Instance, f *schema.Field) (any, error) {
	raw, err := inst.Get(f.Name)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	v, err := sqltype.Render(f.Type, raw)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", f.Name, err)
	}
	return v, nil
}

// groupDocument renders a grouped row: its group keys and the row count.
func (s *Serializer) groupDocument(inst *entity.Instance) (*Document, error) {
	doc := &Document{
		Type:       inst.Model.Collection,
		Attributes: make(map[string]any, len(inst.Values)),
		Meta:       map[string]any{"count": inst.Count},
	}
	var errs error
	for key, raw := range inst.Values {
		path, err := inst.Model.ResolvePath(key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		v, err := sqltype.Render(path.Field.Type, raw)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("group key %s: %w", key, err))
			continue
		}
		doc.Attributes[key] = v
	}
	if errs != nil {
		return nil, errs
	}
	return doc, nil
}

func (s *Serializer) relationship(ctx context.Context, inst *entity.Instance, id string, rel *schema.Relation, expand ExpandSpec) (*Relationship, error) {
	value, loaded := inst.Relations[rel.Name]
	env := &Relationship{
		Type:       rel.Cardinality(),
		Evaluation: schema.Eager,
		Links:      pagination.Links{Self: s.RelationLink(inst.Model, id, rel.Name)},
	}
	if _, lazy := value.(entity.Lazy); lazy || (!loaded && rel.IsToMany() && rel.Loading == schema.Lazy) {
		env.Evaluation = schema.Lazy
	}

	expanded, fields := expand.Expanded(rel.Name)
	if !expanded {
		return env, nil
	}
	if !loaded {
		return nil, fmt.Errorf("relation is expanded but not loaded")
	}
	env.Expanded = true
	nested := Directive{Include: fields}

	switch v := value.(type) {
	case entity.One:
		if v.Instance != nil {
			doc, err := s.document(ctx, v.Instance, nested, depthNested)
			if err != nil {
				return nil, err
			}
			env.Data = doc
		}
	case entity.Many:
		docs, err := s.nestedMany(ctx, v.Items, nested)
		if err != nil {
			return nil, err
		}
		env.Data = docs
	case entity.Lazy:
		links := pagination.NewLinkBuilder(env.Links.Self, nil)
		page, err := v.Paginate(ctx, pagination.Request{PageNumber: 1, PageSize: s.window}, links)
		if err != nil {
			return nil, err
		}
		docs, err := s.nestedMany(ctx, page.Items, nested)
		if err != nil {
			return nil, err
		}
		env.Data = docs
		env.Meta = &page.Cursor
		if page.Links != nil {
			env.Links.First = page.Links.First
			env.Links.Last = page.Links.Last
			env.Links.Prev = page.Links.Prev
			env.Links.Next = page.Links.Next
		}
	default:
		return nil, fmt.Errorf("unexpected relation value %T", value)
	}
	return env, nil
}

func (s *Serializer) nestedMany(ctx context.Context, items []*entity.Instance, dir Directive) ([]*Document, error) {
	docs := make([]*Document, 0, len(items))
	var errs error
	for _, item := range items {
		doc, err := s.document(ctx, item, dir, depthNested)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if errs != nil {
		return nil, errs
	}
	return docs, nil
}
