package filter

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
	"resourcegraph/internal/sqlutil"
)

// Compiler turns filter trees into squirrel predicates for one SQL dialect.
type Compiler struct {
	dialect sqlutil.Dialect
}

// NewCompiler creates a compiler for the given dialect.
func NewCompiler(dialect sqlutil.Dialect) *Compiler {
	return &Compiler{dialect: dialect}
}

// Compile compiles nodes against model, whose rows are addressed through
// alias in the enclosing query. Multiple nodes are combined with AND. A nil
// predicate is returned when nodes is empty.
func (c *Compiler) Compile(model *schema.Model, alias string, nodes []Node) (sq.Sqlizer, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	state := &compileState{}
	conds := make(sq.And, 0, len(nodes))
	for _, n := range nodes {
		cond, err := c.compileNode(model, alias, n, state)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return conds, nil
}

// compileState tracks the aliases used by correlated subqueries.
type compileState struct {
	aliasCounter int
}

func (s *compileState) nextAlias(table string) string {
	s.aliasCounter++
	return fmt.Sprintf("__%s_%d", table, s.aliasCounter)
}

func (c *Compiler) compileNode(model *schema.Model, alias string, n Node, state *compileState) (sq.Sqlizer, error) {
	switch node := n.(type) {
	case *Junction:
		return c.compileJunction(model, alias, node, state)
	case *Leaf:
		return c.compileLeaf(model, alias, node, state)
	case nil:
		return nil, apierr.NewParseError("empty filter node")
	}
	return nil, apierr.NewParseError("unsupported filter node %T", n)
}

func (c *Compiler) compileJunction(model *schema.Model, alias string, j *Junction, state *compileState) (sq.Sqlizer, error) {
	if len(j.Children) == 0 {
		return nil, apierr.NewParseError("%s junction has no children", j.Kind)
	}
	conds := make([]sq.Sqlizer, 0, len(j.Children))
	for _, child := range j.Children {
		cond, err := c.compileNode(model, alias, child, state)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	switch j.Kind {
	case And:
		return sq.And(conds), nil
	case Or:
		return sq.Or(conds), nil
	}
	return nil, apierr.NewParseError("unknown junction %q (expected and/or)", j.Kind)
}

func (c *Compiler) compileLeaf(model *schema.Model, alias string, leaf *Leaf, state *compileState) (sq.Sqlizer, error) {
	op, ok := lookupOperator(leaf.Op)
	if !ok {
		return nil, apierr.NewParseError("unknown operator %q", leaf.Op).WithField(leaf.Field)
	}
	if op.arity == aritySubExpression {
		return c.compileRelationLeaf(model, alias, leaf, op, state)
	}

	path, err := model.ResolvePath(leaf.Field)
	if err != nil {
		return nil, err
	}
	if len(path.Hops) > 0 {
		// author.name eq x  ==  author has (name eq x)
		inner := *leaf
		inner.Field = path.Field.Name
		if inner.OtherField != "" {
			return nil, apierr.NewParseError("field comparisons are only supported between fields of the same model").WithField(leaf.Field)
		}
		return c.existsChain(model, alias, path.Hops, state, func(target *schema.Model, targetAlias string) (sq.Sqlizer, error) {
			return c.compileLeaf(target, targetAlias, &inner, state)
		})
	}

	col := c.dialect.Column(alias, path.Field.Column)
	if leaf.OtherField != "" {
		return c.compileFieldComparison(model, alias, col, leaf, op)
	}

	switch op.arity {
	case arityNone:
		return op.build(c.dialect, col, nil), nil
	case arityOne:
		if !leaf.HasArg || leaf.Arg == nil {
			if op.comparison {
				return nil, apierr.New(apierr.ComparisonToNull,
					"cannot compare %q to null with %s; use is_null or is_not_null", leaf.Field, op.name).WithField(leaf.Field)
			}
			return nil, apierr.NewParseError("operator %s on %q requires an argument", op.name, leaf.Field).WithField(leaf.Field)
		}
		if op.comparison {
			if marker, ok := nowMarker(path.Field, leaf.Arg); ok {
				return sq.Expr(col + " " + op.symbol + " " + c.dialect.Now(marker)), nil
			}
		}
		arg, err := c.coerceArg(path.Field, op, leaf.Arg)
		if err != nil {
			return nil, err
		}
		return op.build(c.dialect, col, arg), nil
	}
	return nil, apierr.NewParseError("operator %s is not valid here", op.name)
}

func (c *Compiler) compileFieldComparison(model *schema.Model, alias, col string, leaf *Leaf, op *operator) (sq.Sqlizer, error) {
	if !op.comparison {
		return nil, apierr.NewParseError("operator %s cannot compare two fields", op.name).WithField(leaf.Field)
	}
	if leaf.HasArg {
		return nil, apierr.NewParseError("%q sets both an argument and a field", leaf.Field).WithField(leaf.Field)
	}
	other, err := model.Field(leaf.OtherField)
	if err != nil {
		return nil, err
	}
	return sq.Expr(col + " " + op.symbol + " " + c.dialect.Column(alias, other.Column)), nil
}

func (c *Compiler) compileRelationLeaf(model *schema.Model, alias string, leaf *Leaf, op *operator, state *compileState) (sq.Sqlizer, error) {
	hops, err := model.ResolveRelationPath(leaf.Field)
	if err != nil {
		if _, fieldErr := model.ResolvePath(leaf.Field); fieldErr == nil {
			return nil, apierr.NewParseError("%s requires a relation, %q is a field", op.name, leaf.Field).WithField(leaf.Field)
		}
		return nil, apierr.NewUnknownField(model.Name, leaf.Field)
	}
	last := hops[len(hops)-1]
	switch {
	case op.name == "has" && last.IsToMany():
		return nil, apierr.NewParseError("%q is a to-many relation; use any instead of has", leaf.Field).WithField(leaf.Field)
	case op.name == "any" && !last.IsToMany():
		return nil, apierr.NewParseError("%q is a to-one relation; use has instead of any", leaf.Field).WithField(leaf.Field)
	}
	if leaf.Sub == nil {
		return nil, apierr.NewParseError("%s on %q requires a nested filter", op.name, leaf.Field).WithField(leaf.Field)
	}
	return c.existsChain(model, alias, hops, state, func(target *schema.Model, targetAlias string) (sq.Sqlizer, error) {
		return c.compileNode(target, targetAlias, leaf.Sub, state)
	})
}

// existsChain wraps the predicate built by inner in one correlated EXISTS
// subquery per relation hop.
func (c *Compiler) existsChain(
	model *schema.Model,
	alias string,
	hops []*schema.Relation,
	state *compileState,
	inner func(target *schema.Model, targetAlias string) (sq.Sqlizer, error),
) (sq.Sqlizer, error) {
	rel := hops[0]
	targetAlias := state.nextAlias(rel.Target.Table)

	var cond sq.Sqlizer
	var err error
	if len(hops) > 1 {
		cond, err = c.existsChain(rel.Target, targetAlias, hops[1:], state, inner)
	} else {
		cond, err = inner(rel.Target, targetAlias)
	}
	if err != nil {
		return nil, err
	}
	return c.exists(rel, alias, targetAlias, state, cond)
}

// exists builds EXISTS (SELECT 1 ...) selecting the targets of rel that
// belong to the parent row addressed by parentAlias, restricted by cond.
func (c *Compiler) exists(rel *schema.Relation, parentAlias, targetAlias string, state *compileState, cond sq.Sqlizer) (sq.Sqlizer, error) {
	d := c.dialect
	parentCol := d.Column(parentAlias, rel.LocalField().Column)
	targetCol := d.Column(targetAlias, rel.RemoteField().Column)

	sub := sq.Select("1").From(d.Table(rel.Target.Table, targetAlias))
	if rel.Kind == schema.ManyToMany {
		junctionAlias := state.nextAlias(rel.Through)
		sub = sq.Select("1").
			From(d.Table(rel.Through, junctionAlias)).
			Join(d.Table(rel.Target.Table, targetAlias) + " ON " + targetCol + " = " + d.Column(junctionAlias, rel.ThroughRemoteKey)).
			Where(sq.Expr(d.Column(junctionAlias, rel.ThroughLocalKey) + " = " + parentCol))
	} else {
		sub = sub.Where(sq.Expr(targetCol + " = " + parentCol))
	}
	if cond != nil {
		sub = sub.Where(cond)
	}

	sql, args, err := sub.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build relation subquery: %w", err)
	}
	return sq.Expr("EXISTS ("+sql+")", args...), nil
}

func nowMarker(field *schema.Field, arg any) (sqltype.NowMarker, bool) {
	if !field.Type.IsTemporal() || field.Type == sqltype.TypeDuration {
		return "", false
	}
	s, ok := arg.(string)
	if !ok {
		return "", false
	}
	return sqltype.ParseNowMarker(s)
}

func (c *Compiler) coerceArg(field *schema.Field, op *operator, arg any) (any, error) {
	if op.list {
		items, ok := arg.([]any)
		if !ok {
			return nil, apierr.NewParseError("operator %s on %q requires an array", op.name, field.Name).WithField(field.Name)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := coerce(field, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	if op.pattern {
		s, ok := arg.(string)
		if !ok {
			return nil, apierr.NewParseError("operator %s on %q requires a string pattern", op.name, field.Name).WithField(field.Name)
		}
		return s, nil
	}
	if op.name == "bitwise_and" || op.name == "bitwise_all" {
		v, err := sqltype.Coerce(sqltype.TypeInteger, arg)
		if err != nil {
			return nil, apierr.Wrap(apierr.ParseException, err, "invalid argument for %s on %q", op.name, field.Name).WithField(field.Name)
		}
		return v, nil
	}
	if _, isList := arg.([]any); isList {
		return nil, apierr.NewParseError("operator %s on %q does not take an array", op.name, field.Name).WithField(field.Name)
	}
	return coerce(field, arg)
}

func coerce(field *schema.Field, arg any) (any, error) {
	v, err := sqltype.Coerce(field.Type, arg)
	if err != nil {
		return nil, apierr.Wrap(apierr.ParseException, err, "invalid value for %q", field.Name).WithField(field.Name)
	}
	return v, nil
}
