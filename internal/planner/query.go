package planner

import (
	"net/url"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/filter"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqlutil"
)

// Query parameter names used when a query is rendered back into links.
const (
	FilterParam = "filter"
	SortParam   = "sort"
	GroupParam  = "group"
)

// GroupCountColumn is the alias of the per-group row count projected by
// grouped queries.
const GroupCountColumn = "__group_count"

// Column is one projected column of a Query.
type Column struct {
	// Key is the field name, or the dotted path of a relation-qualified
	// group key.
	Key   string
	Field *schema.Field
	expr  string
}

// Query is a planned, not yet executed, list query.
type Query struct {
	Model *schema.Model

	dialect sqlutil.Dialect
	alias   string
	request Request
	joins   *joinSet
	where   sq.And
	columns []Column
	groupBy []string
	orderBy []string
	grouped bool
}

// Columns returns the projected columns in select order. A grouped query
// projects its group keys followed by GroupCountColumn, which is not listed.
func (q *Query) Columns() []Column {
	return q.columns
}

// Grouped reports whether the query has group keys.
func (q *Query) Grouped() bool {
	return q.grouped
}

// Request returns the request the query was planned from.
func (q *Query) Request() Request {
	return q.request
}

// SelectSQL renders the query for one window. A negative limit selects every
// row.
func (q *Query) SelectSQL(limit, offset int) (SQLQuery, error) {
	b := q.selectBuilder().OrderBy(q.orderBy...)
	if limit >= 0 {
		b = b.Limit(uint64(limit))
		if offset > 0 {
			b = b.Offset(uint64(offset))
		}
	}
	query, args, err := b.PlaceholderFormat(q.dialect.Placeholders).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// CountSQL renders a count of the rows (or groups) the unpaginated query
// returns.
func (q *Query) CountSQL() (SQLQuery, error) {
	var b sq.SelectBuilder
	if q.grouped {
		b = sq.Select("COUNT(*)").FromSelect(q.selectBuilder(), "__groups")
	} else {
		b = sq.Select("COUNT(*)").From(q.dialect.Table(q.Model.Table, q.alias))
		if cond := q.condition(); cond != nil {
			b = b.Where(cond)
		}
	}
	query, args, err := b.PlaceholderFormat(q.dialect.Placeholders).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// LinkParams returns the filter, sort and group parameters of the request in
// their wire form, for building pagination links.
func (q *Query) LinkParams() (url.Values, error) {
	params := url.Values{}
	if len(q.request.Filters) > 0 {
		encoded, err := filter.Encode(q.request.Filters)
		if err != nil {
			return nil, err
		}
		params.Set(FilterParam, encoded)
	}
	if len(q.request.Sort) > 0 {
		params.Set(SortParam, FormatSort(q.request.Sort))
	}
	if len(q.request.Group) > 0 {
		params.Set(GroupParam, strings.Join(q.request.Group, ","))
	}
	return params, nil
}

func (q *Query) condition() sq.Sqlizer {
	switch len(q.where) {
	case 0:
		return nil
	case 1:
		return q.where[0]
	}
	return q.where
}

func (q *Query) selectBuilder() sq.SelectBuilder {
	exprs := make([]string, 0, len(q.columns)+1)
	for _, c := range q.columns {
		exprs = append(exprs, c.expr)
	}
	if q.grouped {
		exprs = append(exprs, "COUNT(*) AS "+q.dialect.Quote(GroupCountColumn))
	}

	b := sq.Select(exprs...).From(q.dialect.Table(q.Model.Table, q.alias))
	for _, join := range q.joins.clauses {
		b = b.LeftJoin(join)
	}
	if cond := q.condition(); cond != nil {
		b = b.Where(cond)
	}
	if q.grouped {
		b = b.GroupBy(q.groupBy...)
	}
	return b
}

func (q *Query) planColumns() {
	for _, f := range q.Model.Fields() {
		q.columns = append(q.columns, Column{Key: f.Name, Field: f, expr: q.dialect.Column(q.alias, f.Column)})
	}
}

func (q *Query) planGroup(group []string) error {
	q.grouped = true
	seen := make(map[string]bool, len(group))
	for _, raw := range group {
		path, err := q.Model.ResolvePath(raw)
		if err != nil {
			return err
		}
		key := path.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		alias, err := q.joins.aliasFor(path)
		if err != nil {
			return err
		}
		expr := q.dialect.Column(alias, path.Field.Column)
		q.columns = append(q.columns, Column{Key: key, Field: path.Field, expr: expr})
		q.groupBy = append(q.groupBy, expr)
	}
	return nil
}

// planOrder applies the sort keys in the order given, then a tie-break:
// the primary key for plain queries, the remaining group keys for grouped
// ones. Either way the order is total, so pages are stable.
func (q *Query) planOrder(keys []SortKey) error {
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		path, err := q.Model.ResolvePath(k.Field)
		if err != nil {
			return err
		}
		key := path.String()
		if seen[key] {
			continue
		}
		if q.grouped && !q.isGroupKey(key) {
			return apierr.NewParseError("cannot sort a grouped query by %q: it is not a group key", key).WithField("sort")
		}
		alias, err := q.joins.aliasFor(path)
		if err != nil {
			return err
		}
		dir := Asc
		if k.Direction == Desc {
			dir = Desc
		}
		q.orderBy = append(q.orderBy, q.dialect.Column(alias, path.Field.Column)+" "+string(dir))
		seen[key] = true
	}

	if q.grouped {
		for _, c := range q.columns {
			if !seen[c.Key] {
				q.orderBy = append(q.orderBy, c.expr+" "+string(Asc))
			}
		}
		return nil
	}
	for _, f := range q.Model.PrimaryKeyFields() {
		if !seen[f.Name] {
			q.orderBy = append(q.orderBy, q.dialect.Column(q.alias, f.Column)+" "+string(Asc))
		}
	}
	return nil
}

func (q *Query) isGroupKey(key string) bool {
	for _, c := range q.columns {
		if c.Key == key {
			return true
		}
	}
	return false
}
