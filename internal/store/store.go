// Package store is the entity-mapping layer: it executes planned queries,
// scans rows into entity instances, loads relations and applies writes.
//
// A Store is shared; a Session binds it to one request's runner (the pool
// for reads, a transaction for writes).
package store

import (
	"context"
	"fmt"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/dbexec"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/pagination"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/sqltype"
)

// Store executes plans built by a planner.
type Store struct {
	planner *planner.Planner
}

// New creates a store.
func New(p *planner.Planner) *Store {
	return &Store{planner: p}
}

// Planner returns the store's planner.
func (s *Store) Planner() *planner.Planner {
	return s.planner
}

// Session binds the store to a runner for the duration of one request.
func (s *Store) Session(r dbexec.Runner) *Session {
	return &Session{store: s, runner: r}
}

// Session runs statements for one request.
type Session struct {
	store  *Store
	runner dbexec.Runner
}

// Source returns q as a pagination source of instances.
func (s *Session) Source(q *planner.Query) pagination.Source[*entity.Instance] {
	return &querySource{session: s, query: q}
}

type querySource struct {
	session *Session
	query   *planner.Query
}

func (src *querySource) Count(ctx context.Context) (int, error) {
	planned, err := src.query.CountSQL()
	if err != nil {
		return 0, err
	}
	rows, err := src.session.runner.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return 0, classify(err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, err
		}
	}
	return int(total), rows.Err()
}

func (src *querySource) Fetch(ctx context.Context, limit, offset int) ([]*entity.Instance, error) {
	planned, err := src.query.SelectSQL(limit, offset)
	if err != nil {
		return nil, err
	}
	if src.query.Grouped() {
		return src.session.queryGroups(ctx, src.query, planned)
	}
	instances, _, err := src.session.queryInstances(ctx, src.query.Model, planned, 0)
	return instances, err
}

// FindByID loads one instance by its resource identifier.
func (s *Session) FindByID(ctx context.Context, model *schema.Model, id string) (*entity.Instance, error) {
	key, err := ParseID(model, id)
	if err != nil {
		return nil, err
	}
	inst, err := s.FindByKey(ctx, model, key)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// FindByKey loads one instance by its primary key values.
func (s *Session) FindByKey(ctx context.Context, model *schema.Model, key []any) (*entity.Instance, error) {
	planned, err := s.store.planner.PlanByPrimaryKey(model, key)
	if err != nil {
		return nil, err
	}
	instances, _, err := s.queryInstances(ctx, model, planned, 0)
	if err != nil {
		return nil, err
	}
	switch len(instances) {
	case 0:
		return nil, apierr.New(apierr.ResourceNotFound, "no %s with id %q", model.Collection, entity.FormatID(key))
	case 1:
		return instances[0], nil
	}
	return nil, apierr.New(apierr.MultipleResultsFound, "%d %s rows share id %q", len(instances), model.Collection, entity.FormatID(key))
}

// ParseID splits and coerces a resource identifier into primary key values.
// A malformed identifier cannot name a row, so it is reported as
// ResourceNotFound.
func ParseID(model *schema.Model, id string) ([]any, error) {
	parts, err := entity.SplitID(model, id)
	if err != nil {
		return nil, apierr.Wrap(apierr.ResourceNotFound, err, "no %s with id %q", model.Collection, id)
	}
	fields := model.PrimaryKeyFields()
	key := make([]any, len(parts))
	for i, part := range parts {
		v, err := sqltype.Coerce(fields[i].Type, part)
		if err != nil {
			return nil, apierr.Wrap(apierr.ResourceNotFound, err, "no %s with id %q", model.Collection, id)
		}
		key[i] = v
	}
	return key, nil
}

// queryInstances runs planned and scans each row into an instance of model.
// The row holds every field in declaration order followed by extra columns,
// which are returned separately, one slice per row.
func (s *Session) queryInstances(ctx context.Context, model *schema.Model, planned planner.SQLQuery, extra int) ([]*entity.Instance, [][]any, error) {
	rows, err := s.runner.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, nil, classify(err)
	}
	defer rows.Close()

	fields := model.Fields()
	instances := []*entity.Instance{}
	var extras [][]any
	for rows.Next() {
		values := make([]any, len(fields)+extra)
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		inst := entity.New(model)
		for i, f := range fields {
			v, err := sqltype.Coerce(f.Type, values[i])
			if err != nil {
				return nil, nil, fmt.Errorf("scan %s.%s: %w", model.Name, f.Name, err)
			}
			inst.Values[f.Name] = v
		}
		instances = append(instances, inst)
		if extra > 0 {
			extras = append(extras, values[len(fields):])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return instances, extras, nil
}

func (s *Session) queryGroups(ctx context.Context, q *planner.Query, planned planner.SQLQuery) ([]*entity.Instance, error) {
	rows, err := s.runner.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	columns := q.Columns()
	groups := []*entity.Instance{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns)+1)
		for i := range values {
			ptrs[i] = &values[i]
		}
		var count int64
		ptrs[len(columns)] = &count
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		inst := entity.New(q.Model)
		inst.Group = true
		inst.Count = count
		for i, c := range columns {
			v, err := sqltype.Coerce(c.Field.Type, values[i])
			if err != nil {
				return nil, fmt.Errorf("scan group key %s: %w", c.Key, err)
			}
			inst.Values[c.Key] = v
		}
		groups = append(groups, inst)
	}
	return groups, rows.Err()
}
