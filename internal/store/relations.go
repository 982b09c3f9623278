package store

import (
	"context"
	"fmt"

	"resourcegraph/internal/entity"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
)

// LoadRelations loads rels on every instance. Eager relations are
// materialized with one batch query per relation; lazy relations get a
// paginated handle scoped to each owner.
func (s *Session) LoadRelations(ctx context.Context, instances []*entity.Instance, rels []*schema.Relation) error {
	if len(instances) == 0 {
		return nil
	}
	for _, rel := range rels {
		if rel.Loading == schema.Lazy && rel.IsToMany() {
			if err := s.attachLazy(instances, rel); err != nil {
				return err
			}
			continue
		}
		if err := s.loadEager(ctx, instances, rel); err != nil {
			return err
		}
	}
	return nil
}

// RelatedQuery plans the members of owner's relation rel as a query of the
// target model.
func (s *Session) RelatedQuery(owner *entity.Instance, rel *schema.Relation, req planner.Request) (*planner.Query, error) {
	key, err := owner.PrimaryKeyValues()
	if err != nil {
		return nil, err
	}
	req.Scope = &planner.RelationScope{Model: owner.Model, Key: key, Relation: rel.Name}
	return s.store.planner.Plan(rel.Target, req)
}

func (s *Session) attachLazy(instances []*entity.Instance, rel *schema.Relation) error {
	for _, inst := range instances {
		q, err := s.RelatedQuery(inst, rel, planner.Request{})
		if err != nil {
			return err
		}
		inst.Relations[rel.Name] = entity.Lazy{Source: s.Source(q)}
	}
	return nil
}

func (s *Session) loadEager(ctx context.Context, instances []*entity.Instance, rel *schema.Relation) error {
	var keys []any
	seen := make(map[string]bool)
	for _, inst := range instances {
		v, err := inst.Get(rel.LocalKey)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		id := entity.FormatID([]any{v})
		if !seen[id] {
			seen[id] = true
			keys = append(keys, v)
		}
	}

	byOwner := make(map[string][]*entity.Instance)
	if len(keys) > 0 {
		planned, err := s.store.planner.PlanRelationBatch(rel, keys)
		if err != nil {
			return err
		}
		extra := 0
		if rel.Kind == schema.ManyToMany {
			extra = 1
		}
		targets, extras, err := s.queryInstances(ctx, rel.Target, planned, extra)
		if err != nil {
			return err
		}
		for i, target := range targets {
			var owner any
			if rel.Kind == schema.ManyToMany {
				owner, err = sqltype.Coerce(rel.LocalField().Type, extras[i][0])
				if err != nil {
					return fmt.Errorf("load %s.%s: %w", rel.Model.Name, rel.Name, err)
				}
			} else {
				owner = target.Values[rel.RemoteKey]
			}
			id := entity.FormatID([]any{owner})
			byOwner[id] = append(byOwner[id], target)
		}
	}

	for _, inst := range instances {
		v, err := inst.Get(rel.LocalKey)
		if err != nil {
			return err
		}
		var related []*entity.Instance
		if v != nil {
			related = byOwner[entity.FormatID([]any{v})]
		}
		if rel.IsToMany() {
			items := make([]*entity.Instance, len(related))
			copy(items, related)
			inst.Relations[rel.Name] = entity.Many{Items: items}
			continue
		}
		var one *entity.Instance
		if len(related) > 0 {
			one = related[0]
		}
		inst.Relations[rel.Name] = entity.One{Instance: one}
	}
	return nil
}
