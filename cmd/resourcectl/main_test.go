package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/testutil/fixture"
)

// testEnv holds the global flags pointing at a seeded sqlite file.
type testEnv struct {
	flags []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	modelsPath := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(modelsPath, []byte(fixture.ModelsYAML), 0o600))

	dbPath := filepath.Join(dir, "blog.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	fixture.Seed(t, db)
	require.NoError(t, db.Close())

	return &testEnv{flags: []string{
		"--database.driver", "sqlite",
		"--database.dsn", "file:" + dbPath,
		"--database.pool.max_open", "1",
		"--models.path", modelsPath,
		"--api.base_url", "/api",
		"--observability.logging.level", "error",
	}}
}

type result struct {
	code   int
	stdout string
	stderr string
}

func (e *testEnv) run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), append(args, e.flags...), strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (r result) json(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &out), "stdout: %s\nstderr: %s", r.stdout, r.stderr)
	return out
}

func TestList(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "list", "posts", "--filter", "author_id eq 2", "--sort", "-id", "--page-size", "2", "--fields", "title")
	require.Equal(t, exitOK, res.code, res.stderr)

	out := res.json(t)
	data := out["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	assert.Equal(t, "12", first["id"])
	assert.Equal(t, map[string]any{"id": float64(12), "title": "post 12"}, first["attributes"])

	meta := out["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["total_count"])
	assert.Equal(t, float64(2), meta["last_page"])
	links := out["links"].(map[string]any)
	assert.Contains(t, links["next"], "/api/posts?")
}

func TestList_JSONFilter(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "list", "users", "--filter", `[{"name":"age","op":"lt","val":20}]`, "--sort", "age")
	require.Equal(t, exitOK, res.code, res.stderr)

	data := res.json(t)["data"].([]any)
	ids := make([]string, len(data))
	for i, d := range data {
		ids[i] = d.(map[string]any)["id"].(string)
	}
	assert.Equal(t, []string{"4", "1"}, ids)
}

func TestGet_ExpandAndRelated(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "get", "posts", "1", "--expand", "author.name")
	require.Equal(t, exitOK, res.code, res.stderr)
	author := res.json(t)["data"].(map[string]any)["relationships"].(map[string]any)["author"].(map[string]any)
	assert.Equal(t, map[string]any{"id": float64(1), "name": "alice"}, author["data"].(map[string]any)["attributes"])

	res = env.run(t, "", "related", "users", "3", "profile")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "2", res.json(t)["data"].(map[string]any)["id"])

	res = env.run(t, "", "related", "users", "2", "profile")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Nil(t, res.json(t)["data"])
}

func TestCreateUpdateDelete(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, `{"data": {"type": "tags", "attributes": {"label": "rust"}}}`, "create", "tags")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "4", res.json(t)["data"].(map[string]any)["id"])

	docPath := filepath.Join(t.TempDir(), "update.json")
	require.NoError(t, os.WriteFile(docPath, []byte(`{"data": {"type": "tags", "id": "4", "attributes": {"label": "zig"}}}`), 0o600))
	res = env.run(t, "", "update", "tags", "4", "-f", docPath)
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Equal(t, "zig", res.json(t)["data"].(map[string]any)["attributes"].(map[string]any)["label"])

	res = env.run(t, "", "delete", "tags", "4")
	require.Equal(t, exitOK, res.code, res.stderr)

	res = env.run(t, "", "get", "tags", "4")
	assert.Equal(t, exitNotFound, res.code)
}

func TestErrorDocuments(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		in   string
		args []string
		code int
		kind string
	}{
		{"unknown collection", "", []string{"list", "widgets"}, exitNotFound, "resource_not_found"},
		{"unknown field in filter", "", []string{"list", "users", "--filter", "height gt 2"}, exitBadRequest, "unknown_field"},
		{"oversized page", "", []string{"list", "users", "--page-size", "1000"}, exitBadRequest, "pagination_error"},
		{"missing type", `{"data": {"attributes": {"label": "x"}}}`, []string{"create", "tags"}, exitBadRequest, "missing_type"},
		{"client id", `{"data": {"type": "tags", "id": "8"}}`, []string{"create", "tags"}, exitForbidden, "client_generated_id_not_allowed"},
		{"conflicting id", `{"data": {"type": "tags", "id": "2"}}`, []string{"update", "tags", "1"}, exitConflict, "conflicting_id"},
		{"unique violation", `{"data": {"type": "tags", "attributes": {"label": "go"}}}`, []string{"create", "tags"}, exitConflict, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.run(t, tt.in, tt.args...)
			assert.Equal(t, tt.code, res.code, "stdout: %s\nstderr: %s", res.stdout, res.stderr)
			errs := res.json(t)["errors"].([]any)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.kind, errs[0].(map[string]any)["kind"])
		})
	}
}

func TestUsageErrors(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "list")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "accepts 1 arg")

	res = env.run(t, "", "list", "users", "--page-size", "many")
	assert.Equal(t, exitUsage, res.code)

	res = env.run(t, "", "models", "--format", "yaml")
	assert.Equal(t, exitUsage, res.code)

	res = env.run(t, "", "list", "users", "--api.default_page_size", "0")
	assert.Equal(t, exitUsage, res.code)
	assert.Contains(t, res.stderr, "default_page_size")
}

func TestModels(t *testing.T) {
	env := newTestEnv(t)

	res := env.run(t, "", "models")
	require.Equal(t, exitOK, res.code, res.stderr)
	var models []modelInfo
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &models))
	require.Len(t, models, 5)
	assert.Equal(t, "users", models[0].Collection)

	res = env.run(t, "", "models", "--format", "table")
	require.Equal(t, exitOK, res.code, res.stderr)
	assert.Contains(t, res.stdout, "many_to_many -> Tag")
}

func TestReportError_SerializationCauses(t *testing.T) {
	cause := multierr.Combine(errors.New("user 1: bad"), errors.New("user 2: bad"))
	err := apierr.Wrap(apierr.SerializationException, cause, "2 serialization failure(s)")

	var stdout, stderr bytes.Buffer
	code := reportError(&stdout, &stderr, err)
	assert.Equal(t, exitInternal, code)

	var doc struct {
		Errors []errorObject `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	require.Len(t, doc.Errors, 1)
	assert.Equal(t, "2 serialization failure(s)", doc.Errors[0].Message)
	assert.Equal(t, []string{"user 1: bad", "user 2: bad"}, doc.Errors[0].Causes)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitNotFound, exitCode(apierr.New(apierr.ResourceNotFound, "gone")))
	assert.Equal(t, exitUnprocessable, exitCode(apierr.New(apierr.ValidationException, "bad")))
	assert.Equal(t, exitUsage, exitCode(usageError{errors.New("flag")}))
	assert.Equal(t, exitInternal, exitCode(errors.New("boom")))
}
