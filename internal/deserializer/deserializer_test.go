package deserializer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/testutil/fixture"
)

// fakeFinder knows a fixed set of collection/id pairs.
type fakeFinder struct {
	known   map[string]bool
	lookups []string
}

func (f *fakeFinder) FindByID(ctx context.Context, model *schema.Model, id string) (*entity.Instance, error) {
	f.lookups = append(f.lookups, model.Collection+"/"+id)
	if !f.known[model.Collection+"/"+id] {
		return nil, apierr.New(apierr.ResourceNotFound, "no %s with id %q", model.Collection, id)
	}
	inst := entity.New(model)
	inst.Values["id"] = id
	return inst, nil
}

func newFinder() *fakeFinder {
	return &fakeFinder{known: map[string]bool{"users/1": true, "users/2": true, "tags/1": true, "tags/2": true}}
}

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	doc, err := Decode([]byte(raw))
	require.NoError(t, err)
	return doc
}

func postModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := fixture.Registry(t).Model("Post")
	require.NoError(t, err)
	return m
}

func TestDeserializeCreate(t *testing.T) {
	posts := postModel(t)
	finder := newFinder()
	doc := decode(t, `{"data": {
		"type": "posts",
		"attributes": {"title": "hello", "reading_time": "1m30s", "published_at": "2024-02-03T04:05:06Z", "body": null},
		"relationships": {
			"author": {"data": {"type": "users", "id": "2"}},
			"tags": {"data": [{"type": "tags", "id": 1}, {"type": "tags", "id": "2"}]}
		}
	}}`)

	inst, err := New(Options{}).DeserializeCreate(context.Background(), finder, posts, doc)
	require.NoError(t, err)

	assert.Equal(t, "hello", inst.Values["title"])
	assert.Equal(t, float64(90), inst.Values["reading_time"])
	assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), inst.Values["published_at"])
	assert.Contains(t, inst.Values, "body")
	assert.Nil(t, inst.Values["body"])
	assert.NotContains(t, inst.Values, "id")

	author := inst.Relations["author"].(entity.One)
	assert.Equal(t, "2", author.Instance.Values["id"])
	assert.Len(t, inst.Relations["tags"].(entity.Many).Items, 2)
	assert.Equal(t, []string{"users/2", "tags/1", "tags/2"}, finder.lookups)
}

func TestDeserializeCreate_IntegerAttributesAreNarrowed(t *testing.T) {
	users, err := fixture.Registry(t).Model("User")
	require.NoError(t, err)
	doc := decode(t, `{"data": {"type": "users", "attributes": {"name": "x", "age": 42, "flags": "7"}}}`)

	inst, err := New(Options{}).DeserializeCreate(context.Background(), newFinder(), users, doc)
	require.NoError(t, err)
	assert.Equal(t, int64(42), inst.Values["age"])
	assert.Equal(t, int64(7), inst.Values["flags"])
}

func TestDeserializeCreate_ClientIDs(t *testing.T) {
	posts := postModel(t)
	doc := decode(t, `{"data": {"type": "posts", "id": "77", "attributes": {"title": "x"}}}`)

	_, err := New(Options{}).DeserializeCreate(context.Background(), newFinder(), posts, doc)
	assert.Equal(t, apierr.ClientGeneratedIDNotAllowed, apierr.KindOf(err))

	inst, err := New(Options{AllowClientIDs: true}).DeserializeCreate(context.Background(), newFinder(), posts, doc)
	require.NoError(t, err)
	assert.Equal(t, int64(77), inst.Values["id"])

	viaAttribute := decode(t, `{"data": {"type": "posts", "attributes": {"id": 5, "title": "x"}}}`)
	_, err = New(Options{}).DeserializeCreate(context.Background(), newFinder(), posts, viaAttribute)
	assert.Equal(t, apierr.ClientGeneratedIDNotAllowed, apierr.KindOf(err))
}

func TestDeserializeCreate_Errors(t *testing.T) {
	posts := postModel(t)

	tests := []struct {
		name string
		doc  string
		want apierr.Kind
	}{
		{"no data", `{}`, apierr.MissingData},
		{"null data", `{"data": null}`, apierr.MissingData},
		{"data not an object", `{"data": []}`, apierr.ParseException},
		{"no type", `{"data": {"attributes": {"title": "x"}}}`, apierr.MissingType},
		{"wrong type", `{"data": {"type": "users"}}`, apierr.ConflictingType},
		{"unknown attribute", `{"data": {"type": "posts", "attributes": {"subtitle": "x"}}}`, apierr.UnknownAttribute},
		{"bad value", `{"data": {"type": "posts", "attributes": {"published_at": "yesterday"}}}`, apierr.ValidationException},
		{"unknown relationship", `{"data": {"type": "posts", "relationships": {"editor": {"data": null}}}}`, apierr.UnknownRelationship},
		{"linkage without data", `{"data": {"type": "posts", "relationships": {"author": {}}}}`, apierr.MissingData},
		{"linkage without id", `{"data": {"type": "posts", "relationships": {"author": {"data": {"type": "users"}}}}}`, apierr.MissingID},
		{"linkage without type", `{"data": {"type": "posts", "relationships": {"author": {"data": {"id": "1"}}}}}`, apierr.MissingType},
		{"linkage of wrong type", `{"data": {"type": "posts", "relationships": {"author": {"data": {"type": "tags", "id": "1"}}}}}`, apierr.ConflictingType},
		{"linkage not found", `{"data": {"type": "posts", "relationships": {"author": {"data": {"type": "users", "id": "9"}}}}}`, apierr.ResourceNotFound},
		{"to-many not an array", `{"data": {"type": "posts", "relationships": {"tags": {"data": {"type": "tags", "id": "1"}}}}}`, apierr.ParseException},
		{"bad to-many element", `{"data": {"type": "posts", "relationships": {"tags": {"data": [{"type": "tags", "id": "1"}, {"type": "tags"}]}}}}`, apierr.MissingID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(Options{}).DeserializeCreate(context.Background(), newFinder(), posts, decode(t, tt.doc))
			assert.Nil(t, inst)
			assert.Equal(t, tt.want, apierr.KindOf(err), "error: %v", err)
		})
	}
}

func TestDeserializeCreate_NamesAreCheckedBeforeLookups(t *testing.T) {
	finder := newFinder()
	doc := decode(t, `{"data": {"type": "posts", "relationships": {
		"author": {"data": {"type": "users", "id": "99"}},
		"zzz": {"data": null}
	}}}`)

	_, err := New(Options{}).DeserializeCreate(context.Background(), finder, postModel(t), doc)
	require.Error(t, err)
	assert.Equal(t, apierr.UnknownRelationship, apierr.KindOf(err))
	assert.Contains(t, err.Error(), "zzz")
	assert.Empty(t, finder.lookups)

	malformed := decode(t, `{"data": {"type": "posts", "relationships": {
		"author": {"data": {"type": "users", "id": "1"}},
		"tags": {"data": {"type": "tags", "id": "1"}}
	}}}`)
	_, err = New(Options{}).DeserializeCreate(context.Background(), finder, postModel(t), malformed)
	assert.Equal(t, apierr.ParseException, apierr.KindOf(err))
	assert.Empty(t, finder.lookups)
}

func TestDeserializeCreate_ConflictingTypeNamesBothTypes(t *testing.T) {
	_, err := New(Options{}).DeserializeCreate(context.Background(), newFinder(), postModel(t), decode(t, `{"data": {"type": "users"}}`))

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "posts", apiErr.Detail["expected"])
	assert.Equal(t, "users", apiErr.Detail["given"])
}

func TestDeserializeUpdate(t *testing.T) {
	posts := postModel(t)
	d := New(Options{})

	patch, err := d.DeserializeUpdate(context.Background(), newFinder(), posts, "3",
		decode(t, `{"data": {"type": "posts", "id": "3", "attributes": {"title": "renamed"}, "relationships": {"tags": {"data": []}}}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "renamed"}, patch.Values)
	assert.Equal(t, entity.Many{Items: []*entity.Instance{}}, patch.Relations["tags"])
	assert.NotContains(t, patch.Relations, "author")

	numeric, err := d.DeserializeUpdate(context.Background(), newFinder(), posts, "3",
		decode(t, `{"data": {"type": "posts", "id": 3, "relationships": {"author": {"data": null}}}}`))
	require.NoError(t, err)
	assert.Equal(t, entity.One{}, numeric.Relations["author"])

	_, err = d.DeserializeUpdate(context.Background(), newFinder(), posts, "3", decode(t, `{"data": {"type": "posts", "id": "4"}}`))
	assert.Equal(t, apierr.ConflictingID, apierr.KindOf(err))

	_, err = d.DeserializeUpdate(context.Background(), newFinder(), posts, "3", decode(t, `{"data": {"type": "posts"}}`))
	assert.Equal(t, apierr.MissingID, apierr.KindOf(err))
}

func TestDecode(t *testing.T) {
	_, err := Decode([]byte(`{"data":`))
	assert.Equal(t, apierr.ParseException, apierr.KindOf(err))

	_, err = Decode([]byte(`null`))
	assert.Equal(t, apierr.MissingData, apierr.KindOf(err))
}
