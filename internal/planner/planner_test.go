package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/filter"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqlutil"
	"resourcegraph/internal/testutil/fixture"
)

func mustModel(t *testing.T, reg *schema.Registry, name string) *schema.Model {
	t.Helper()
	m, err := reg.Model(name)
	require.NoError(t, err)
	return m
}

func mustSort(t *testing.T, raw string) []SortKey {
	t.Helper()
	keys, err := ParseSort(raw)
	require.NoError(t, err)
	return keys
}

func TestPlan_DefaultOrderIsPrimaryKey(t *testing.T) {
	users := mustModel(t, fixture.Registry(t), "User")

	q, err := New(sqlutil.SQLite).Plan(users, Request{})
	require.NoError(t, err)

	planned, err := q.SelectSQL(25, 50)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `users`.`id`, `users`.`name`, `users`.`email`, `users`.`age`, `users`.`flags`, `users`.`created_at`, `users`.`manager_id` "+
			"FROM `users` ORDER BY `users`.`id` ASC LIMIT 25 OFFSET 50",
		planned.SQL)
	assert.Empty(t, planned.Args)

	all, err := q.SelectSQL(-1, 0)
	require.NoError(t, err)
	assert.NotContains(t, all.SQL, "LIMIT")

	count, err := q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM `users`", count.SQL)
	assert.Len(t, q.Columns(), 7)
	assert.False(t, q.Grouped())
}

func TestPlan_SortKeysKeepOrderAndAddTieBreak(t *testing.T) {
	users := mustModel(t, fixture.Registry(t), "User")

	q, err := New(sqlutil.SQLite).Plan(users, Request{Sort: mustSort(t, "-age,created_at")})
	require.NoError(t, err)
	planned, err := q.SelectSQL(-1, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(planned.SQL,
		"ORDER BY `users`.`age` DESC, `users`.`created_at` ASC, `users`.`id` ASC"), planned.SQL)

	q, err = New(sqlutil.SQLite).Plan(users, Request{Sort: mustSort(t, "-id,name")})
	require.NoError(t, err)
	planned, err = q.SelectSQL(-1, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(planned.SQL, "ORDER BY `users`.`id` DESC, `users`.`name` ASC"), planned.SQL)
}

func TestPlan_RelationSortJoinsOncePerPath(t *testing.T) {
	posts := mustModel(t, fixture.Registry(t), "Post")

	q, err := New(sqlutil.SQLite).Plan(posts, Request{Sort: mustSort(t, "author.name,-author.age,author.manager.name")})
	require.NoError(t, err)
	planned, err := q.SelectSQL(10, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, strings.Count(planned.SQL, "LEFT JOIN"), planned.SQL)
	assert.Contains(t, planned.SQL, "LEFT JOIN `users` AS `__join_author` ON `__join_author`.`id` = `posts`.`author_id`")
	assert.Contains(t, planned.SQL,
		"LEFT JOIN `users` AS `__join_author__manager` ON `__join_author__manager`.`id` = `__join_author`.`manager_id`")
	assert.Contains(t, planned.SQL,
		"ORDER BY `__join_author`.`name` ASC, `__join_author`.`age` DESC, `__join_author__manager`.`name` ASC, `posts`.`id` ASC")

	count, err := q.CountSQL()
	require.NoError(t, err)
	assert.NotContains(t, count.SQL, "JOIN")
}

func TestPlan_RejectsBadSortKeys(t *testing.T) {
	reg := fixture.Registry(t)
	users := mustModel(t, reg, "User")
	p := New(sqlutil.SQLite)

	_, err := p.Plan(users, Request{Sort: mustSort(t, "shoe_size")})
	assert.True(t, errors.Is(err, apierr.UnknownField))

	_, err = p.Plan(users, Request{Sort: mustSort(t, "posts.title")})
	assert.True(t, errors.Is(err, apierr.ParseException))

	_, err = ParseSort("age,,name")
	assert.True(t, errors.Is(err, apierr.ParseException))
}

func TestPlan_Group(t *testing.T) {
	posts := mustModel(t, fixture.Registry(t), "Post")
	p := New(sqlutil.SQLite)

	q, err := p.Plan(posts, Request{Group: []string{"author_id"}})
	require.NoError(t, err)
	assert.True(t, q.Grouped())
	require.Len(t, q.Columns(), 1)
	assert.Equal(t, "author_id", q.Columns()[0].Key)

	planned, err := q.SelectSQL(-1, 0)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `posts`.`author_id`, COUNT(*) AS `__group_count` FROM `posts` GROUP BY `posts`.`author_id` ORDER BY `posts`.`author_id` ASC",
		planned.SQL)

	count, err := q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT COUNT(*) FROM (SELECT `posts`.`author_id`, COUNT(*) AS `__group_count` FROM `posts` GROUP BY `posts`.`author_id`) AS __groups",
		count.SQL)

	q, err = p.Plan(posts, Request{Group: []string{"author.name", "author_id"}, Sort: mustSort(t, "-author_id")})
	require.NoError(t, err)
	planned, err = q.SelectSQL(-1, 0)
	require.NoError(t, err)
	assert.Contains(t, planned.SQL, "GROUP BY `__join_author`.`name`, `posts`.`author_id`")
	assert.Contains(t, planned.SQL, "ORDER BY `posts`.`author_id` DESC, `__join_author`.`name` ASC")

	_, err = p.Plan(posts, Request{Group: []string{"author_id"}, Sort: mustSort(t, "title")})
	assert.True(t, errors.Is(err, apierr.ParseException))
}

func TestPlan_RelationScope(t *testing.T) {
	reg := fixture.Registry(t)
	users := mustModel(t, reg, "User")
	posts := mustModel(t, reg, "Post")
	tags := mustModel(t, reg, "Tag")
	p := New(sqlutil.SQLite)

	q, err := p.Plan(posts, Request{Scope: &RelationScope{Model: users, Key: []interface{}{int64(1)}, Relation: "posts"}})
	require.NoError(t, err)
	count, err := q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT COUNT(*) FROM `posts` WHERE `posts`.`author_id` IN (SELECT `__scope`.`id` FROM `users` AS `__scope` WHERE `__scope`.`id` = ?)",
		count.SQL)
	assert.Equal(t, []interface{}{int64(1)}, count.Args)

	q, err = p.Plan(tags, Request{Scope: &RelationScope{Model: posts, Key: []interface{}{int64(1)}, Relation: "tags"}})
	require.NoError(t, err)
	count, err = q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT COUNT(*) FROM `tags` WHERE `tags`.`id` IN (SELECT `__scope_through`.`tag_id` FROM `post_tags` AS `__scope_through` "+
			"WHERE `__scope_through`.`post_id` IN (SELECT `__scope`.`id` FROM `posts` AS `__scope` WHERE `__scope`.`id` = ?))",
		count.SQL)

	_, err = p.Plan(posts, Request{Scope: &RelationScope{Model: users, Key: []interface{}{int64(1)}, Relation: "articles"}})
	assert.True(t, errors.Is(err, apierr.UnknownRelation))

	_, err = p.Plan(tags, Request{Scope: &RelationScope{Model: users, Key: []interface{}{int64(1)}, Relation: "posts"}})
	assert.Error(t, err)
}

func TestPlan_PostgresPlaceholders(t *testing.T) {
	reg := fixture.Registry(t)
	users := mustModel(t, reg, "User")
	posts := mustModel(t, reg, "Post")

	nodes, err := filter.ParseJSON([]byte(`[{"name":"title","op":"like","val":"post 1%"}]`))
	require.NoError(t, err)
	q, err := New(sqlutil.Postgres).Plan(posts, Request{
		Filters: nodes,
		Scope:   &RelationScope{Model: users, Key: []interface{}{int64(1)}, Relation: "posts"},
	})
	require.NoError(t, err)

	count, err := q.CountSQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT COUNT(*) FROM "posts" WHERE ("posts"."author_id" IN (SELECT "__scope"."id" FROM "users" AS "__scope" WHERE "__scope"."id" = $1) AND "posts"."title" LIKE $2)`,
		count.SQL)
	assert.Equal(t, []interface{}{int64(1), "post 1%"}, count.Args)
}

func TestQuery_LinkParams(t *testing.T) {
	users := mustModel(t, fixture.Registry(t), "User")
	nodes, err := filter.ParseText(`age in [19, 20]`)
	require.NoError(t, err)

	q, err := New(sqlutil.SQLite).Plan(users, Request{Filters: nodes, Sort: mustSort(t, "-age,+name")})
	require.NoError(t, err)

	params, err := q.LinkParams()
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"age","op":"in","val":[19,20]}]`, params.Get(FilterParam))
	assert.Equal(t, "-age,name", params.Get(SortParam))
	assert.Empty(t, params.Get(GroupParam))
}

func TestPlan_ExecutesAgainstFixture(t *testing.T) {
	reg := fixture.Registry(t)
	db := fixture.NewTestDB(t)
	p := New(sqlutil.SQLite)

	ids := func(t *testing.T, q *Query, limit, offset int) []int64 {
		t.Helper()
		planned, err := q.SelectSQL(limit, offset)
		require.NoError(t, err)
		rows, err := db.QueryContext(context.Background(), planned.SQL, planned.Args...)
		require.NoError(t, err)
		defer rows.Close()

		var out []int64
		for rows.Next() {
			dest := make([]interface{}, len(q.Columns()))
			ptrs := make([]interface{}, len(dest))
			for i := range dest {
				ptrs[i] = &dest[i]
			}
			require.NoError(t, rows.Scan(ptrs...))
			out = append(out, dest[0].(int64))
		}
		require.NoError(t, rows.Err())
		return out
	}

	users := mustModel(t, reg, "User")
	q, err := p.Plan(users, Request{Sort: mustSort(t, "-age,created_at")})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 5, 2, 1, 4}, ids(t, q, -1, 0))
	assert.Equal(t, []int64{2, 1}, ids(t, q, 2, 2))

	posts := mustModel(t, reg, "Post")
	q, err = p.Plan(posts, Request{
		Scope: &RelationScope{Model: users, Key: []interface{}{int64(2)}, Relation: "posts"},
		Sort:  mustSort(t, "-title"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 11, 10}, ids(t, q, -1, 0))

	tags := mustModel(t, reg, "Tag")
	q, err = p.Plan(tags, Request{Scope: &RelationScope{Model: posts, Key: []interface{}{int64(1)}, Relation: "tags"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(t, q, -1, 0))

	q, err = p.Plan(posts, Request{Sort: mustSort(t, "author.name,-id")})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 8, 7}, ids(t, q, 3, 0))

	count, err := q.CountSQL()
	require.NoError(t, err)
	var total int
	require.NoError(t, db.QueryRowContext(context.Background(), count.SQL, count.Args...).Scan(&total))
	assert.Equal(t, 12, total)

	q, err = p.Plan(posts, Request{Group: []string{"author_id"}})
	require.NoError(t, err)
	count, err = q.CountSQL()
	require.NoError(t, err)
	require.NoError(t, db.QueryRowContext(context.Background(), count.SQL, count.Args...).Scan(&total))
	assert.Equal(t, 2, total)
}
