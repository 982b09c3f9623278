package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/sqltype"
)

const blogYAML = `
naming:
  plural_overrides:
    person: people
models:
  - name: Person
    fields:
      - {name: id, type: integer}
      - {name: name, type: varchar(64)}
      - {name: born_on, type: date, nullable: true}
      - {name: mentor_id, type: bigint, nullable: true}
    relations:
      - {name: articles, kind: has_many, target: Article, remote_key: author_id, loading: lazy}
      - {name: mentor, kind: belongs_to, target: Person}
  - name: Article
    table: blog_articles
    fields:
      - {name: id, type: integer}
      - {name: title}
      - {name: author_id, type: integer}
    relations:
      - {name: author, kind: belongs_to, target: Person}
      - {name: labels, kind: many_to_many, target: Label, through: article_labels}
  - name: Label
    primary_key: code
    fields:
      - {name: code, type: string}
`

func buildBlog(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blogYAML), 0o600))
	reg, err := Load(path)
	require.NoError(t, err)
	return reg
}

func TestLoad_DerivesNamesAndKeys(t *testing.T) {
	reg := buildBlog(t)

	person, err := reg.Model("Person")
	require.NoError(t, err)
	assert.Equal(t, "people", person.Collection)
	assert.Equal(t, "people", person.Table)
	assert.Equal(t, []string{"id"}, person.PrimaryKey())

	byCollection, err := reg.Collection("people")
	require.NoError(t, err)
	assert.Same(t, person, byCollection)

	_, err = reg.Collection("person")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "people"`)
	_, err = reg.Collection("widgets")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")

	article, err := reg.Model("Article")
	require.NoError(t, err)
	assert.Equal(t, "blog_articles", article.Table)
	assert.Equal(t, "articles", article.Collection)

	label, err := reg.Model("Label")
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, label.PrimaryKey())

	labels, err := article.Relation("labels")
	require.NoError(t, err)
	assert.Equal(t, ManyToMany, labels.Kind)
	assert.Equal(t, "id", labels.LocalKey)
	assert.Equal(t, "code", labels.RemoteKey)
	assert.Equal(t, "article_id", labels.ThroughLocalKey)
	assert.Equal(t, "label_id", labels.ThroughRemoteKey)
	assert.Equal(t, ToMany, labels.Cardinality())
	assert.Equal(t, Eager, labels.Loading)

	mentor, err := person.Relation("mentor")
	require.NoError(t, err)
	assert.Equal(t, "mentor_id", mentor.LocalKey)
	assert.Equal(t, "id", mentor.RemoteKey)
	assert.Equal(t, ToOne, mentor.Cardinality())

	articles, err := person.Relation("articles")
	require.NoError(t, err)
	assert.Equal(t, Lazy, articles.Loading)
	assert.Equal(t, "author_id", articles.RemoteField().Name)
}

func TestModel_FieldTypesAndForeignKeys(t *testing.T) {
	reg := buildBlog(t)
	person, err := reg.Model("Person")
	require.NoError(t, err)

	typ, err := person.FieldType("name")
	require.NoError(t, err)
	assert.Equal(t, sqltype.TypeString, typ)

	typ, err = person.FieldType("born_on")
	require.NoError(t, err)
	assert.Equal(t, sqltype.TypeDate, typ)

	mentorID, err := person.Field("mentor_id")
	require.NoError(t, err)
	assert.True(t, mentorID.ForeignKey)
	assert.Equal(t, sqltype.TypeInteger, mentorID.Type)

	var scalars []string
	for _, f := range person.ScalarFields() {
		scalars = append(scalars, f.Name)
	}
	assert.Equal(t, []string{"id", "name", "born_on"}, scalars)
	assert.Len(t, person.Fields(), 4)

	_, err = person.FieldType("shoe_size")
	assert.True(t, errors.Is(err, apierr.UnknownField))
	_, err = person.Relation("friends")
	assert.True(t, errors.Is(err, apierr.UnknownRelation))
	_, err = reg.Model("Nobody")
	assert.True(t, errors.Is(err, apierr.ResourceNotFound))
}

func TestModel_ResolvePath(t *testing.T) {
	reg := buildBlog(t)
	article, err := reg.Model("Article")
	require.NoError(t, err)

	path, err := article.ResolvePath("author.mentor.name")
	require.NoError(t, err)
	assert.Equal(t, "author.mentor", path.RelationPath())
	assert.Equal(t, "name", path.Field.Name)
	assert.Equal(t, "Person", path.Model(article).Name)
	assert.Equal(t, "author.mentor.name", path.String())

	path, err = article.ResolvePath("title")
	require.NoError(t, err)
	assert.Empty(t, path.Hops)
	assert.Same(t, article, path.Model(article))

	_, err = article.ResolvePath("author.shoe_size")
	assert.True(t, errors.Is(err, apierr.UnknownField))

	_, err = article.ResolvePath("editor.name")
	assert.True(t, errors.Is(err, apierr.UnknownField))

	_, err = article.ResolvePath("title.length")
	assert.True(t, errors.Is(err, apierr.UnknownRelation))

	hops, err := article.ResolveRelationPath("author.articles")
	require.NoError(t, err)
	require.Len(t, hops, 2)
	assert.Equal(t, "articles", hops[1].Name)
}

func TestBuild_RejectsInvalidDefinitions(t *testing.T) {
	tests := map[string]string{
		"unknown target": `
models:
  - name: A
    fields: [{name: id}]
    relations: [{name: b, kind: belongs_to, target: B}]`,
		"missing key field": `
models:
  - name: A
    fields: [{name: id}]
    relations: [{name: parent, kind: belongs_to, target: A}]`,
		"lazy to-one": `
models:
  - name: A
    fields: [{name: id}, {name: parent_id}]
    relations: [{name: parent, kind: belongs_to, target: A, loading: lazy}]`,
		"m2m without through": `
models:
  - name: A
    fields: [{name: id}]
    relations: [{name: peers, kind: many_to_many, target: A}]`,
		"unknown kind": `
models:
  - name: A
    fields: [{name: id}]
    relations: [{name: peers, kind: graph, target: A}]`,
		"undeclared primary key": `
models:
  - name: A
    primary_key: [a, b]
    fields: [{name: a}]`,
		"duplicate field": `
models:
  - name: A
    fields: [{name: id}, {name: id}]`,
		"relation shadows field": `
models:
  - name: A
    fields: [{name: id}, {name: parent}, {name: parent_id}]
    relations: [{name: parent, kind: belongs_to, target: A}]`,
		"duplicate model": `
models:
  - name: A
    fields: [{name: id}]
  - name: A
    fields: [{name: id}]`,
		"no fields": `
models:
  - name: A`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			parsed, err := Parse([]byte(doc))
			require.NoError(t, err)
			_, err = Build(parsed.Models, nil)
			assert.Error(t, err)
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("models:\n  - name: A\n    colour: blue\n"))
	assert.Error(t, err)

	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Models)
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
models:
  - name: Owner
    fields: [{name: id, type: integer}]
    relations: [{name: pets, kind: has_many, target: Pet}]
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(`
models:
  - name: Pet
    fields: [{name: id, type: integer}, {name: owner_id, type: integer}]
`), 0o600))

	reg, err := Load(dir)
	require.NoError(t, err)
	require.Len(t, reg.Models(), 2)

	owner, err := reg.Model("Owner")
	require.NoError(t, err)
	pets, err := owner.Relation("pets")
	require.NoError(t, err)
	assert.Equal(t, "owner_id", pets.RemoteKey)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}
