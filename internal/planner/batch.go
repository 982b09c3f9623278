package planner

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"resourcegraph/internal/schema"
)

// BatchParentAlias is the column alias used to return the owner key in
// many-to-many batch queries.
const BatchParentAlias = "__batch_parent_id"

// PlanRelationBatch builds one query that loads the targets of rel for every
// owner key in keys, ordered by the target primary key.
//
// keys are values of the relation's local field. For belongs_to, has_one and
// has_many the targets are matched on the remote field, which the caller
// reads back from the selected row. For many_to_many the owner key is
// selected as BatchParentAlias after the target fields.
func (p *Planner) PlanRelationBatch(rel *schema.Relation, keys []interface{}) (SQLQuery, error) {
	if len(keys) == 0 {
		return SQLQuery{}, nil
	}
	d := p.dialect
	target := rel.Target
	alias := target.Table

	columns := make([]string, 0, len(target.Fields())+1)
	for _, f := range target.Fields() {
		columns = append(columns, d.Column(alias, f.Column))
	}
	order := make([]string, 0, len(target.PrimaryKey()))
	for _, f := range target.PrimaryKeyFields() {
		order = append(order, d.Column(alias, f.Column)+" ASC")
	}

	var b sq.SelectBuilder
	switch rel.Kind {
	case schema.ManyToMany:
		const junctionAlias = "__through"
		parent := d.Column(junctionAlias, rel.ThroughLocalKey)
		columns = append(columns, fmt.Sprintf("%s AS %s", parent, d.Quote(BatchParentAlias)))
		b = sq.Select(columns...).
			From(d.Table(target.Table, alias)).
			Join(fmt.Sprintf("%s ON %s = %s",
				d.Table(rel.Through, junctionAlias),
				d.Column(junctionAlias, rel.ThroughRemoteKey),
				d.Column(alias, rel.RemoteField().Column))).
			Where(sq.Eq{parent: keys}).
			OrderBy(append([]string{parent + " ASC"}, order...)...)
	default:
		b = sq.Select(columns...).
			From(d.Table(target.Table, alias)).
			Where(sq.Eq{d.Column(alias, rel.RemoteField().Column): keys}).
			OrderBy(order...)
	}
	return p.build(b)
}
