package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/schema"
)

// PlanByPrimaryKey builds the SQL for a primary key lookup. Every field is
// selected, in declaration order.
func (p *Planner) PlanByPrimaryKey(model *schema.Model, key []interface{}) (SQLQuery, error) {
	where, err := p.primaryKeyWhere(model, key)
	if err != nil {
		return SQLQuery{}, err
	}
	columns := make([]string, 0, len(model.Fields()))
	for _, f := range model.Fields() {
		columns = append(columns, p.dialect.Quote(f.Column))
	}
	return p.build(sq.Select(columns...).From(p.dialect.Quote(model.Table)).Where(where))
}

// PlanInsert builds SQL for inserting a single row. values maps field names
// to storage values. On dialects with RETURNING the primary key is returned.
func (p *Planner) PlanInsert(model *schema.Model, values map[string]interface{}) (SQLQuery, error) {
	d := p.dialect
	table := d.Quote(model.Table)
	if err := checkFields(model, values); err != nil {
		return SQLQuery{}, err
	}

	var columns []string
	var args []interface{}
	for _, f := range model.Fields() {
		if v, ok := values[f.Name]; ok {
			columns = append(columns, d.Quote(f.Column))
			args = append(args, v)
		}
	}

	returning := ""
	if d.Returning {
		pk := model.PrimaryKeyFields()
		quoted := make([]string, len(pk))
		for i, f := range pk {
			quoted[i] = d.Quote(f.Column)
		}
		returning = " RETURNING " + strings.Join(quoted, ", ")
	}

	if len(columns) == 0 {
		if d.Name == "mysql" {
			return SQLQuery{SQL: fmt.Sprintf("INSERT INTO %s () VALUES ()", table)}, nil
		}
		return SQLQuery{SQL: fmt.Sprintf("INSERT INTO %s DEFAULT VALUES%s", table, returning)}, nil
	}

	builder := sq.Insert(table).Columns(columns...).Values(args...)
	if returning != "" {
		builder = builder.Suffix(returning[1:])
	}
	query, qargs, err := builder.PlaceholderFormat(d.Placeholders).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: qargs}, nil
}

// PlanUpdate builds SQL for updating a single row by primary key.
func (p *Planner) PlanUpdate(model *schema.Model, set map[string]interface{}, key []interface{}) (SQLQuery, error) {
	if len(set) == 0 {
		return SQLQuery{}, fmt.Errorf("update set cannot be empty")
	}
	if err := checkFields(model, set); err != nil {
		return SQLQuery{}, err
	}
	where, err := p.primaryKeyWhere(model, key)
	if err != nil {
		return SQLQuery{}, err
	}

	update := sq.Update(p.dialect.Quote(model.Table))
	for _, f := range model.Fields() {
		if v, ok := set[f.Name]; ok {
			update = update.Set(p.dialect.Quote(f.Column), v)
		}
	}
	query, args, err := update.Where(where).PlaceholderFormat(p.dialect.Placeholders).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanDelete builds SQL for deleting a single row by primary key.
func (p *Planner) PlanDelete(model *schema.Model, key []interface{}) (SQLQuery, error) {
	where, err := p.primaryKeyWhere(model, key)
	if err != nil {
		return SQLQuery{}, err
	}
	query, args, err := sq.Delete(p.dialect.Quote(model.Table)).
		Where(where).
		PlaceholderFormat(p.dialect.Placeholders).
		ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

// PlanJunctionReplace builds the statements that make the junction rows of a
// many-to-many relation for ownerKey exactly targetKeys: a delete of the
// current rows followed by one multi-row insert.
func (p *Planner) PlanJunctionReplace(rel *schema.Relation, ownerKey interface{}, targetKeys []interface{}) ([]SQLQuery, error) {
	if rel.Kind != schema.ManyToMany {
		return nil, fmt.Errorf("relation %s is not many_to_many", rel.Name)
	}
	d := p.dialect
	junction := d.Quote(rel.Through)
	local := d.Quote(rel.ThroughLocalKey)

	del, args, err := sq.Delete(junction).
		Where(sq.Eq{local: ownerKey}).
		PlaceholderFormat(d.Placeholders).
		ToSql()
	if err != nil {
		return nil, err
	}
	plans := []SQLQuery{{SQL: del, Args: args}}
	if len(targetKeys) == 0 {
		return plans, nil
	}

	insert := sq.Insert(junction).Columns(local, d.Quote(rel.ThroughRemoteKey))
	for _, target := range targetKeys {
		insert = insert.Values(ownerKey, target)
	}
	ins, args, err := insert.PlaceholderFormat(d.Placeholders).ToSql()
	if err != nil {
		return nil, err
	}
	return append(plans, SQLQuery{SQL: ins, Args: args}), nil
}

// PlanReassign builds the statements that make the targets of a has_one or
// has_many relation for ownerKey exactly the rows identified by targetKeys
// (primary key tuples of the target model). Current targets that are not
// kept have their foreign key cleared.
func (p *Planner) PlanReassign(rel *schema.Relation, ownerKey interface{}, targetKeys [][]interface{}) ([]SQLQuery, error) {
	if rel.Kind != schema.HasOne && rel.Kind != schema.HasMany {
		return nil, fmt.Errorf("relation %s is not has_one or has_many", rel.Name)
	}
	d := p.dialect
	target := rel.Target
	table := d.Quote(target.Table)
	fk := d.Quote(rel.RemoteField().Column)

	detach := sq.Update(table).Set(fk, nil).Where(sq.Eq{fk: ownerKey})
	if len(targetKeys) > 0 {
		keep, err := p.keyTuplesCondition(target, targetKeys)
		if err != nil {
			return nil, err
		}
		keepSQL, keepArgs, err := keep.ToSql()
		if err != nil {
			return nil, err
		}
		detach = detach.Where(sq.Expr("NOT ("+keepSQL+")", keepArgs...))
	}
	query, args, err := detach.PlaceholderFormat(d.Placeholders).ToSql()
	if err != nil {
		return nil, err
	}
	plans := []SQLQuery{{SQL: query, Args: args}}
	if len(targetKeys) == 0 {
		return plans, nil
	}

	attachWhere, err := p.keyTuplesCondition(target, targetKeys)
	if err != nil {
		return nil, err
	}
	query, args, err = sq.Update(table).Set(fk, ownerKey).Where(attachWhere).
		PlaceholderFormat(d.Placeholders).
		ToSql()
	if err != nil {
		return nil, err
	}
	return append(plans, SQLQuery{SQL: query, Args: args}), nil
}

func (p *Planner) build(b sq.SelectBuilder) (SQLQuery, error) {
	query, args, err := b.PlaceholderFormat(p.dialect.Placeholders).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: query, Args: args}, nil
}

func (p *Planner) primaryKeyWhere(model *schema.Model, key []interface{}) (sq.Eq, error) {
	pk := model.PrimaryKeyFields()
	if len(key) != len(pk) {
		return nil, fmt.Errorf("primary key of %s has %d fields, got %d values", model.Name, len(pk), len(key))
	}
	where := sq.Eq{}
	for i, f := range pk {
		where[p.dialect.Quote(f.Column)] = key[i]
	}
	return where, nil
}

// keyTuplesCondition matches rows whose primary key is one of keys.
func (p *Planner) keyTuplesCondition(model *schema.Model, keys [][]interface{}) (sq.Sqlizer, error) {
	pk := model.PrimaryKeyFields()
	if len(pk) == 1 {
		flat := make([]interface{}, len(keys))
		for i, key := range keys {
			if len(key) != 1 {
				return nil, fmt.Errorf("primary key of %s has 1 field, got %d values", model.Name, len(key))
			}
			flat[i] = key[0]
		}
		return sq.Eq{p.dialect.Quote(pk[0].Column): flat}, nil
	}
	or := make(sq.Or, 0, len(keys))
	for _, key := range keys {
		where, err := p.primaryKeyWhere(model, key)
		if err != nil {
			return nil, err
		}
		or = append(or, where)
	}
	return or, nil
}

func checkFields(model *schema.Model, values map[string]interface{}) error {
	for name := range values {
		if !model.HasField(name) {
			return fmt.Errorf("model %s has no field %q", model.Name, name)
		}
	}
	return nil
}
