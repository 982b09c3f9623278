package store

import (
	"context"
	"fmt"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
)

// Insert stores inst and returns the stored row. Relation values on inst are
// applied: belongs_to sets the foreign key before the insert, has_one and
// has_many move the targets' foreign keys, many_to_many replaces the
// junction rows.
func (s *Session) Insert(ctx context.Context, inst *entity.Instance) (*entity.Instance, error) {
	model := inst.Model
	values, err := s.columnValues(inst)
	if err != nil {
		return nil, err
	}

	planned, err := s.store.planner.PlanInsert(model, values)
	if err != nil {
		return nil, err
	}
	key, err := s.insertRow(ctx, model, values, planned)
	if err != nil {
		return nil, err
	}

	stored, err := s.FindByKey(ctx, model, key)
	if err != nil {
		return nil, err
	}
	if err := s.applyRelations(ctx, stored, inst.Relations); err != nil {
		return nil, err
	}
	return stored, nil
}

// Update applies patch to the row identified by key. Only the values and
// relations present on patch change.
func (s *Session) Update(ctx context.Context, key []any, patch *entity.Instance) (*entity.Instance, error) {
	model := patch.Model
	current, err := s.FindByKey(ctx, model, key)
	if err != nil {
		return nil, err
	}

	values, err := s.columnValues(patch)
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		planned, err := s.store.planner.PlanUpdate(model, values, key)
		if err != nil {
			return nil, err
		}
		if _, err := s.runner.ExecContext(ctx, planned.SQL, planned.Args...); err != nil {
			return nil, classify(err)
		}
		// The primary key itself may have changed.
		key = append([]any(nil), key...)
		for i, name := range model.PrimaryKey() {
			if v, ok := values[name]; ok {
				key[i] = v
			}
		}
		if current, err = s.FindByKey(ctx, model, key); err != nil {
			return nil, err
		}
	}

	if err := s.applyRelations(ctx, current, patch.Relations); err != nil {
		return nil, err
	}
	return current, nil
}

// Delete removes the row identified by key.
func (s *Session) Delete(ctx context.Context, model *schema.Model, key []any) error {
	planned, err := s.store.planner.PlanDelete(model, key)
	if err != nil {
		return err
	}
	res, err := s.runner.ExecContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apierr.New(apierr.ResourceNotFound, "no %s with id %q", model.Collection, entity.FormatID(key))
	}
	return nil
}

// columnValues returns the column values of inst, including foreign keys
// taken from its belongs_to relation values.
func (s *Session) columnValues(inst *entity.Instance) (map[string]any, error) {
	values := make(map[string]any, len(inst.Values))
	for name := range inst.Values {
		v, err := inst.Get(name)
		if err != nil {
			return nil, err
		}
		values[name] = v
	}
	for _, rel := range inst.Model.Relations() {
		if rel.Kind != schema.BelongsTo {
			continue
		}
		rv, ok := inst.Relations[rel.Name]
		if !ok {
			continue
		}
		one, ok := rv.(entity.One)
		if !ok {
			return nil, apierr.New(apierr.ValidationException, "relation %s is to-one", rel.Name).WithField(rel.Name)
		}
		if one.Instance == nil {
			values[rel.LocalKey] = nil
			continue
		}
		v, err := one.Instance.Get(rel.RemoteKey)
		if err != nil {
			return nil, err
		}
		values[rel.LocalKey] = v
	}
	return values, nil
}

// insertRow executes an insert and works out the new row's primary key:
// supplied values first, then RETURNING, then the driver's last insert id.
func (s *Session) insertRow(ctx context.Context, model *schema.Model, values map[string]any, planned planner.SQLQuery) ([]any, error) {
	pk := model.PrimaryKeyFields()
	key := make([]any, len(pk))
	supplied := true
	for i, f := range pk {
		v, ok := values[f.Name]
		if !ok || v == nil {
			supplied = false
			break
		}
		key[i] = v
	}

	if s.store.planner.Dialect().Returning {
		rows, err := s.runner.QueryContext(ctx, planned.SQL, planned.Args...)
		if err != nil {
			return nil, classify(err)
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return nil, classify(err)
			}
			return nil, fmt.Errorf("insert into %s returned no key", model.Table)
		}
		raw := make([]any, len(pk))
		ptrs := make([]any, len(pk))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, f := range pk {
			if key[i], err = sqltype.Coerce(f.Type, raw[i]); err != nil {
				return nil, err
			}
		}
		return key, rows.Err()
	}

	res, err := s.runner.ExecContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, classify(err)
	}
	if supplied {
		return key, nil
	}
	if len(pk) != 1 || pk[0].Type != sqltype.TypeInteger {
		return nil, fmt.Errorf("cannot determine the generated key of %s", model.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return []any{id}, nil
}

// applyRelations writes the to-many and has_one relation values of owner.
// belongs_to values are already part of the row.
func (s *Session) applyRelations(ctx context.Context, owner *entity.Instance, relations map[string]entity.RelationValue) error {
	for _, rel := range owner.Model.Relations() {
		rv, ok := relations[rel.Name]
		if !ok || rel.Kind == schema.BelongsTo {
			continue
		}
		targets, err := linkedTargets(rel, rv)
		if err != nil {
			return err
		}
		ownerKey, err := owner.Get(rel.LocalKey)
		if err != nil {
			return err
		}

		var plans []planner.SQLQuery
		if rel.Kind == schema.ManyToMany {
			keys := make([]any, 0, len(targets))
			for _, t := range targets {
				v, err := t.Get(rel.RemoteKey)
				if err != nil {
					return err
				}
				keys = append(keys, v)
			}
			plans, err = s.store.planner.PlanJunctionReplace(rel, ownerKey, keys)
		} else {
			keys := make([][]any, 0, len(targets))
			for _, t := range targets {
				k, err := t.PrimaryKeyValues()
				if err != nil {
					return err
				}
				keys = append(keys, k)
			}
			plans, err = s.store.planner.PlanReassign(rel, ownerKey, keys)
		}
		if err != nil {
			return err
		}
		for _, p := range plans {
			if _, err := s.runner.ExecContext(ctx, p.SQL, p.Args...); err != nil {
				return classify(err)
			}
		}
	}
	return nil
}

func linkedTargets(rel *schema.Relation, rv entity.RelationValue) ([]*entity.Instance, error) {
	switch v := rv.(type) {
	case entity.One:
		if rel.IsToMany() {
			return nil, apierr.New(apierr.ValidationException, "relation %s is to-many", rel.Name).WithField(rel.Name)
		}
		if v.Instance == nil {
			return nil, nil
		}
		return []*entity.Instance{v.Instance}, nil
	case entity.Many:
		if !rel.IsToMany() {
			return nil, apierr.New(apierr.ValidationException, "relation %s is to-one", rel.Name).WithField(rel.Name)
		}
		return v.Items, nil
	}
	return nil, fmt.Errorf("relation %s cannot be written from %T", rel.Name, rv)
}
