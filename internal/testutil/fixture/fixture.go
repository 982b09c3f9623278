// Package fixture provides the blog schema and an in-memory SQLite database
// seeded with it, for tests across the module.
package fixture

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"resourcegraph/internal/schema"
)

// ModelsYAML declares the blog schema used by tests.
const ModelsYAML = `
models:
  - name: User
    fields:
      - {name: id, type: integer}
      - {name: name, type: string}
      - {name: email, type: string, nullable: true}
      - {name: age, type: integer, nullable: true}
      - {name: flags, type: integer}
      - {name: created_at, type: datetime}
      - {name: manager_id, type: integer, nullable: true}
    relations:
      - {name: posts, kind: has_many, target: Post, remote_key: author_id, loading: lazy}
      - {name: profile, kind: has_one, target: Profile}
      - {name: manager, kind: belongs_to, target: User}
  - name: Profile
    fields:
      - {name: id, type: integer}
      - {name: user_id, type: integer}
      - {name: bio, type: string, nullable: true}
    relations:
      - {name: user, kind: belongs_to, target: User}
  - name: Post
    fields:
      - {name: id, type: integer}
      - {name: title, type: string}
      - {name: body, type: string, nullable: true}
      - {name: author_id, type: integer}
      - {name: published_at, type: datetime, nullable: true}
      - {name: reading_time, type: duration}
    relations:
      - {name: author, kind: belongs_to, target: User}
      - {name: comments, kind: has_many, target: Comment}
      - {name: tags, kind: many_to_many, target: Tag, through: post_tags}
  - name: Comment
    fields:
      - {name: id, type: integer}
      - {name: post_id, type: integer}
      - {name: body, type: string}
    relations:
      - {name: post, kind: belongs_to, target: Post}
  - name: Tag
    fields:
      - {name: id, type: integer}
      - {name: label, type: string}
    relations:
      - {name: posts, kind: many_to_many, target: Post, through: post_tags}
`

var ddl = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE,
		age INTEGER,
		flags INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		manager_id INTEGER REFERENCES users(id)
	)`,
	`CREATE TABLE profiles (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		bio TEXT
	)`,
	`CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT,
		author_id INTEGER NOT NULL REFERENCES users(id),
		published_at DATETIME,
		reading_time REAL NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE comments (
		id INTEGER PRIMARY KEY,
		post_id INTEGER NOT NULL REFERENCES posts(id),
		body TEXT NOT NULL
	)`,
	`CREATE TABLE tags (
		id INTEGER PRIMARY KEY,
		label TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE post_tags (
		post_id INTEGER NOT NULL REFERENCES posts(id),
		tag_id INTEGER NOT NULL REFERENCES tags(id),
		PRIMARY KEY (post_id, tag_id)
	)`,
}

// Epoch is the creation time of user 1; user n is created n-1 days later.
var Epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// Users seeded by NewTestDB, in primary-key order.
var Users = []struct {
	ID    int64
	Name  string
	Email string
	Age   int64
	Flags int64
}{
	{1, "alice", "alice@example.com", 19, 1},
	{2, "bob", "bob@example.com", 20, 2},
	{3, "carol", "carol@example.com", 50, 3},
	{4, "dave", "dave@example.com", 12, 4},
	{5, "erin", "erin@example.com", 23, 0},
}

// Registry builds the blog registry.
func Registry(t testing.TB) *schema.Registry {
	t.Helper()
	doc, err := schema.Parse([]byte(ModelsYAML))
	if err != nil {
		t.Fatalf("parse fixture models: %v", err)
	}
	reg, err := schema.Build(doc.Models, nil)
	if err != nil {
		t.Fatalf("build fixture registry: %v", err)
	}
	return reg
}

// NewTestDB opens an in-memory SQLite database with the blog tables and
// seed data. The pool is limited to one connection so every query sees the
// same in-memory database.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database connection: %v", err)
		}
	})

	Seed(t, db)
	return db
}

// Seed creates the blog tables in db and inserts the seed data.
func Seed(t testing.TB, db *sql.DB) {
	t.Helper()
	mustExec(t, db, "PRAGMA foreign_keys = ON")
	for _, stmt := range ddl {
		mustExec(t, db, stmt)
	}

	for i, u := range Users {
		mustExec(t, db,
			"INSERT INTO users (id, name, email, age, flags, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			u.ID, u.Name, u.Email, u.Age, u.Flags, Epoch.AddDate(0, 0, i))
	}
	mustExec(t, db, "UPDATE users SET manager_id = 3 WHERE id IN (1, 2)")
	mustExec(t, db, "INSERT INTO profiles (id, user_id, bio) VALUES (1, 1, 'likes go'), (2, 3, NULL)")

	for i := 1; i <= 12; i++ {
		author := 1
		if i > 9 {
			author = 2
		}
		var published any
		if i%3 != 0 {
			published = Epoch.AddDate(0, 1, i)
		}
		mustExec(t, db,
			"INSERT INTO posts (id, title, body, author_id, published_at, reading_time) VALUES (?, ?, ?, ?, ?, ?)",
			i, fmt.Sprintf("post %02d", i), fmt.Sprintf("body of post %d", i), author, published, float64(60*i))
	}
	mustExec(t, db, "INSERT INTO comments (id, post_id, body) VALUES (1, 1, 'first'), (2, 1, 'second'), (3, 10, 'nice')")
	mustExec(t, db, "INSERT INTO tags (id, label) VALUES (1, 'go'), (2, 'sql'), (3, 'misc')")
	mustExec(t, db, "INSERT INTO post_tags (post_id, tag_id) VALUES (1, 1), (1, 2), (2, 1), (10, 2)")
}

func mustExec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
