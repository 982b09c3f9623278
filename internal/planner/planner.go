// Package planner converts list requests (filters, sort keys, group keys and
// an optional relation scope) into parameterized SQL, and builds the
// statements used by the write path.
//
// Planning is pure: a Query is an unexecuted handle that renders its SELECT
// and COUNT statements on demand, so the pagination engine can ask for any
// window of it.
package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/filter"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqlutil"
)

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []interface{}
}

// Request is the already-parsed input of a list query.
type Request struct {
	Filters []filter.Node
	Sort    []SortKey
	Group   []string
	Scope   *RelationScope
}

// RelationScope restricts a query to the members of one relation of one
// owning instance, identified by its primary key values.
type RelationScope struct {
	Model    *schema.Model
	Key      []interface{}
	Relation string
}

// Planner plans queries for one SQL dialect.
type Planner struct {
	dialect  sqlutil.Dialect
	compiler *filter.Compiler
}

// New creates a planner for the given dialect.
func New(dialect sqlutil.Dialect) *Planner {
	return &Planner{dialect: dialect, compiler: filter.NewCompiler(dialect)}
}

// Dialect returns the planner's SQL dialect.
func (p *Planner) Dialect() sqlutil.Dialect {
	return p.dialect
}

// Plan builds the query for req against model.
func (p *Planner) Plan(model *schema.Model, req Request) (*Query, error) {
	q := &Query{
		Model:   model,
		dialect: p.dialect,
		alias:   model.Table,
		request: req,
		joins:   newJoinSet(p.dialect, model.Table),
	}

	if req.Scope != nil {
		cond, err := p.scopeCondition(model, q.alias, req.Scope)
		if err != nil {
			return nil, err
		}
		q.where = append(q.where, cond)
	}
	if len(req.Filters) > 0 {
		cond, err := p.compiler.Compile(model, q.alias, req.Filters)
		if err != nil {
			return nil, err
		}
		q.where = append(q.where, cond)
	}

	if len(req.Group) > 0 {
		if err := q.planGroup(req.Group); err != nil {
			return nil, err
		}
	} else {
		q.planColumns()
	}
	if err := q.planOrder(req.Sort); err != nil {
		return nil, err
	}
	return q, nil
}

// scopeCondition restricts model rows to the members of scope's relation:
//
//	target.remote IN (SELECT owner.local FROM owner WHERE owner.pk = ?)
//
// with the junction table in between for many-to-many relations.
func (p *Planner) scopeCondition(model *schema.Model, alias string, scope *RelationScope) (sq.Sqlizer, error) {
	rel, err := scope.Model.Relation(scope.Relation)
	if err != nil {
		return nil, err
	}
	if rel.Target != model {
		return nil, fmt.Errorf("relation %s.%s targets %s, not %s", scope.Model.Name, rel.Name, rel.Target.Name, model.Name)
	}
	pkFields := scope.Model.PrimaryKeyFields()
	if len(scope.Key) != len(pkFields) {
		return nil, fmt.Errorf("scope key has %d values, %s has %d primary key fields", len(scope.Key), scope.Model.Name, len(pkFields))
	}

	d := p.dialect
	const ownerAlias = "__scope"
	ownerWhere := sq.Eq{}
	for i, f := range pkFields {
		ownerWhere[d.Column(ownerAlias, f.Column)] = scope.Key[i]
	}
	owner := sq.Select(d.Column(ownerAlias, rel.LocalField().Column)).
		From(d.Table(scope.Model.Table, ownerAlias)).
		Where(ownerWhere)

	members := owner
	if rel.Kind == schema.ManyToMany {
		ownerSQL, ownerArgs, err := owner.PlaceholderFormat(sq.Question).ToSql()
		if err != nil {
			return nil, err
		}
		const junctionAlias = "__scope_through"
		members = sq.Select(d.Column(junctionAlias, rel.ThroughRemoteKey)).
			From(d.Table(rel.Through, junctionAlias)).
			Where(sq.Expr(d.Column(junctionAlias, rel.ThroughLocalKey)+" IN ("+ownerSQL+")", ownerArgs...))
	}

	sql, args, err := members.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr(d.Column(alias, rel.RemoteField().Column)+" IN ("+sql+")", args...), nil
}

// joinSet holds the LEFT JOINs needed by relation-qualified sort and group
// keys, one per distinct relation path.
type joinSet struct {
	dialect sqlutil.Dialect
	root    string
	aliases map[string]string
	clauses []string
}

func newJoinSet(d sqlutil.Dialect, rootAlias string) *joinSet {
	return &joinSet{dialect: d, root: rootAlias, aliases: make(map[string]string)}
}

// aliasFor returns the alias of the last hop of path, adding joins for any
// prefix that is not joined yet. Only to-one hops can be joined.
func (j *joinSet) aliasFor(path schema.Path) (string, error) {
	parent := j.root
	names := make([]string, 0, len(path.Hops))
	for _, hop := range path.Hops {
		names = append(names, hop.Name)
		if hop.IsToMany() {
			return "", apierr.NewParseError("cannot sort or group by %q: %s is a to-many relation", path.String(), hop.Name).
				WithField(path.String())
		}
		key := strings.Join(names, ".")
		alias, ok := j.aliases[key]
		if !ok {
			alias = "__join_" + strings.Join(names, "__")
			d := j.dialect
			j.clauses = append(j.clauses, fmt.Sprintf("%s ON %s = %s",
				d.Table(hop.Target.Table, alias),
				d.Column(alias, hop.RemoteField().Column),
				d.Column(parent, hop.LocalField().Column)))
			j.aliases[key] = alias
		}
		parent = alias
	}
	return parent, nil
}
