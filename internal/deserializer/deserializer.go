// Package deserializer validates inbound resource documents and turns them
// into entity instances ready to be written.
//
// Validation runs to completion before anything is assigned: a document that
// fails any check produces no instance at all.
package deserializer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
)

// Finder resolves relationship linkage to stored instances.
type Finder interface {
	FindByID(ctx context.Context, model *schema.Model, id string) (*entity.Instance, error)
}

// Options configures a Deserializer.
type Options struct {
	// AllowClientIDs permits create documents that carry their own id.
	AllowClientIDs bool
}

// Deserializer converts documents into instances.
type Deserializer struct {
	allowClientIDs bool
}

// New creates a deserializer.
func New(opts Options) *Deserializer {
	return &Deserializer{allowClientIDs: opts.AllowClientIDs}
}

// Decode parses a JSON document, keeping numbers as json.Number so integer
// values are not rounded through float64.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, apierr.Wrap(apierr.ParseException, err, "invalid JSON document")
	}
	if doc == nil {
		return nil, apierr.New(apierr.MissingData, "document has no data")
	}
	return doc, nil
}

// DeserializeCreate validates a create document for model and returns the
// instance to insert. Relation values hold the resolved linked instances.
func (d *Deserializer) DeserializeCreate(ctx context.Context, finder Finder, model *schema.Model, doc map[string]any) (*entity.Instance, error) {
	data, err := d.resource(model, doc)
	if err != nil {
		return nil, err
	}

	var key []any
	if rawID, ok := data["id"]; ok {
		if !d.allowClientIDs {
			return nil, apierr.New(apierr.ClientGeneratedIDNotAllowed, "client-generated ids are not allowed for %s", model.Collection).WithField("id")
		}
		if key, err = parseKey(model, rawID); err != nil {
			return nil, err
		}
	}

	values, err := d.attributes(model, data, !d.allowClientIDs)
	if err != nil {
		return nil, err
	}
	relations, err := d.relationships(ctx, finder, model, data)
	if err != nil {
		return nil, err
	}

	if key != nil {
		for i, name := range model.PrimaryKey() {
			values[name] = key[i]
		}
	}
	inst := entity.New(model)
	inst.Values = values
	inst.Relations = relations
	return inst, nil
}

// DeserializeUpdate validates an update document for the resource id and
// returns a change set: an instance holding only the supplied attributes and
// relations. The document's id must equal id.
func (d *Deserializer) DeserializeUpdate(ctx context.Context, finder Finder, model *schema.Model, id string, doc map[string]any) (*entity.Instance, error) {
	data, err := d.resource(model, doc)
	if err != nil {
		return nil, err
	}
	rawID, ok := data["id"]
	if !ok || rawID == nil {
		return nil, apierr.New(apierr.MissingID, "update of %s requires data.id", model.Collection).WithField("id")
	}
	given, err := idString(rawID)
	if err != nil {
		return nil, err
	}
	if given != id {
		return nil, apierr.New(apierr.ConflictingID, "data.id %q does not match %q", given, id).
			WithField("id").
			WithDetail("expected", id).
			WithDetail("given", given)
	}

	values, err := d.attributes(model, data, false)
	if err != nil {
		return nil, err
	}
	relations, err := d.relationships(ctx, finder, model, data)
	if err != nil {
		return nil, err
	}

	inst := entity.New(model)
	inst.Values = values
	inst.Relations = relations
	return inst, nil
}

// resource checks the document envelope and returns data.
func (d *Deserializer) resource(model *schema.Model, doc map[string]any) (map[string]any, error) {
	raw, ok := doc["data"]
	if !ok || raw == nil {
		return nil, apierr.New(apierr.MissingData, "document has no data")
	}
	data, ok := raw.(map[string]any)
	if !ok {
		return nil, apierr.NewParseError("data must be an object, got %s", describe(raw)).WithField("data")
	}
	if err := checkType(model, data, "data"); err != nil {
		return nil, err
	}
	return data, nil
}

func checkType(model *schema.Model, obj map[string]any, at string) error {
	raw, ok := obj["type"]
	if !ok || raw == nil {
		return apierr.New(apierr.MissingType, "%s has no type", at).WithField(at)
	}
	given, ok := raw.(string)
	if !ok || given != model.Collection {
		return apierr.NewConflictingType(model.Collection, fmt.Sprint(raw)).WithField(at)
	}
	return nil
}

// attributes validates and coerces data.attributes. With rejectKey set, a
// primary key attribute counts as a client-generated id.
func (d *Deserializer) attributes(model *schema.Model, data map[string]any, rejectKey bool) (map[string]any, error) {
	values := make(map[string]any)
	raw, ok := data["attributes"]
	if !ok || raw == nil {
		return values, nil
	}
	attrs, ok := raw.(map[string]any)
	if !ok {
		return nil, apierr.NewParseError("attributes must be an object, got %s", describe(raw)).WithField("attributes")
	}
	for _, name := range sortedKeys(attrs) {
		v := attrs[name]
		f, err := model.Field(name)
		if err != nil {
			return nil, apierr.New(apierr.UnknownAttribute, "%s has no attribute %q", model.Collection, name).WithField(name)
		}
		if rejectKey && model.IsPrimaryKey(name) {
			return nil, apierr.New(apierr.ClientGeneratedIDNotAllowed, "client-generated ids are not allowed for %s", model.Collection).WithField(name)
		}
		coerced, err := sqltype.Coerce(f.Type, v)
		if err != nil {
			return nil, apierr.Wrap(apierr.ValidationException, err, "invalid value for %s", name).WithField(name)
		}
		values[name] = coerced
	}
	return values, nil
}

// relationships validates data.relationships and resolves every linkage.
func (d *Deserializer) relationships(ctx context.Context, finder Finder, model *schema.Model, data map[string]any) (map[string]entity.RelationValue, error) {
	out := make(map[string]entity.RelationValue)
	raw, ok := data["relationships"]
	if !ok || raw == nil {
		return out, nil
	}
	rels, ok := raw.(map[string]any)
	if !ok {
		return nil, apierr.NewParseError("relationships must be an object, got %s", describe(raw)).WithField("relationships")
	}

	// Every name and linkage shape is checked before any lookup runs.
	type pending struct {
		rel     *schema.Relation
		linkage any
	}
	names := sortedKeys(rels)
	checked := make([]pending, 0, len(names))
	for _, name := range names {
		rel, err := model.Relation(name)
		if err != nil {
			return nil, apierr.New(apierr.UnknownRelationship, "%s has no relationship %q", model.Collection, name).WithField(name)
		}
		checked = append(checked, pending{rel: rel})
	}
	for i, name := range names {
		link, ok := rels[name].(map[string]any)
		if !ok {
			return nil, apierr.NewParseError("relationship %s must be an object, got %s", name, describe(rels[name])).WithField(name)
		}
		linkage, ok := link["data"]
		if !ok {
			return nil, apierr.New(apierr.MissingData, "relationship %s has no data", name).WithField(name)
		}
		if checked[i].rel.IsToMany() {
			if _, ok := linkage.([]any); !ok {
				return nil, apierr.NewParseError("relationship %s is to-many, data must be an array", name).WithField(name)
			}
		}
		checked[i].linkage = linkage
	}

	for _, p := range checked {
		name := p.rel.Name
		if !p.rel.IsToMany() {
			if p.linkage == nil {
				out[name] = entity.One{}
				continue
			}
			target, err := resolve(ctx, finder, p.rel, p.linkage, name)
			if err != nil {
				return nil, err
			}
			out[name] = entity.One{Instance: target}
			continue
		}

		list := p.linkage.([]any)
		items := make([]*entity.Instance, 0, len(list))
		for i, element := range list {
			target, err := resolve(ctx, finder, p.rel, element, fmt.Sprintf("%s[%d]", name, i))
			if err != nil {
				return nil, err
			}
			items = append(items, target)
		}
		out[name] = entity.Many{Items: items}
	}
	return out, nil
}

// resolve looks up one {type, id} linkage object.
func resolve(ctx context.Context, finder Finder, rel *schema.Relation, raw any, at string) (*entity.Instance, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, apierr.NewParseError("linkage %s must be an object, got %s", at, describe(raw)).WithField(at)
	}
	rawID, ok := obj["id"]
	if !ok || rawID == nil {
		return nil, apierr.New(apierr.MissingID, "linkage %s has no id", at).WithField(at)
	}
	if err := checkType(rel.Target, obj, at); err != nil {
		return nil, err
	}
	id, err := idString(rawID)
	if err != nil {
		return nil, err
	}
	return finder.FindByID(ctx, rel.Target, id)
}

func parseKey(model *schema.Model, raw any) ([]any, error) {
	id, err := idString(raw)
	if err != nil {
		return nil, err
	}
	parts, err := entity.SplitID(model, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.ValidationException, err, "invalid id %q", id).WithField("id")
	}
	pk := model.PrimaryKeyFields()
	key := make([]any, len(parts))
	for i, part := range parts {
		if key[i], err = sqltype.Coerce(pk[i].Type, part); err != nil {
			return nil, apierr.Wrap(apierr.ValidationException, err, "invalid id %q", id).WithField("id")
		}
	}
	return key, nil
}

// idString accepts string and numeric ids.
func idString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case float64:
		return fmt.Sprint(v), nil
	}
	return "", apierr.NewParseError("id must be a string or number, got %s", describe(raw)).WithField("id")
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	}
	return "a number"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
