package resource

import (
	"context"

	"go.uber.org/multierr"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/entity"
	"resourcegraph/internal/pagination"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/serializer"
	"resourcegraph/internal/store"
)

// List returns one page of a collection.
func (s *Service) List(ctx context.Context, collection string, q Query) (*Response, error) {
	var resp *Response
	err := s.observe(ctx, "list", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		if err := checkQuery(model, q); err != nil {
			return err
		}
		sess := s.store.Session(s.executor)
		planned, err := s.planner.Plan(model, q.planRequest())
		if err != nil {
			return err
		}
		resp, err = s.page(ctx, sess, planned, s.serializer.CollectionLink(model), q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get returns one resource by id.
func (s *Service) Get(ctx context.Context, collection, id string, dir serializer.Directive) (*Response, error) {
	var resp *Response
	err := s.observe(ctx, "get", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		if err := dir.Check(model); err != nil {
			return err
		}
		sess := s.store.Session(s.executor)
		inst, err := sess.FindByID(ctx, model, id)
		if err != nil {
			return err
		}
		doc, err := s.render(ctx, sess, inst, dir)
		if err != nil {
			return err
		}
		resp = &Response{Data: doc}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Related returns the members of one relation of one resource. To-many
// relations are paginated and accept filters, sorting and grouping against
// the target model; to-one relations return a single document or null.
func (s *Service) Related(ctx context.Context, collection, id, relation string, q Query) (*Response, error) {
	var resp *Response
	err := s.observe(ctx, "related", collection, func(ctx context.Context) error {
		model, err := s.collection(collection)
		if err != nil {
			return err
		}
		rel, err := model.Relation(relation)
		if err != nil {
			return err
		}
		if err := checkQuery(rel.Target, q); err != nil {
			return err
		}
		sess := s.store.Session(s.executor)
		owner, err := sess.FindByID(ctx, model, id)
		if err != nil {
			return err
		}

		if rel.IsToMany() {
			planned, err := sess.RelatedQuery(owner, rel, q.planRequest())
			if err != nil {
				return err
			}
			resp, err = s.page(ctx, sess, planned, s.serializer.RelationLink(model, id, rel.Name), q)
			return err
		}

		if len(q.Filters) > 0 || len(q.Sort) > 0 || len(q.Group) > 0 || q.paged() {
			return apierr.NewParseError("relation %s is to-one; filter, sort, group and page do not apply", rel.Name).WithField(rel.Name)
		}
		if err := sess.LoadRelations(ctx, []*entity.Instance{owner}, []*schema.Relation{rel}); err != nil {
			return err
		}
		one, _ := owner.Relations[rel.Name].(entity.One)
		resp = &Response{Links: &pagination.Links{Self: s.serializer.RelationLink(model, id, rel.Name)}}
		if one.Instance == nil {
			return nil
		}
		doc, err := s.render(ctx, sess, one.Instance, q.Directive)
		if err != nil {
			return err
		}
		resp.Data = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// checkQuery validates the directive and rejects expansion of grouped
// results, which carry no relationships.
func checkQuery(model *schema.Model, q Query) error {
	if err := q.Directive.Check(model); err != nil {
		return err
	}
	if len(q.Group) > 0 && len(q.Directive.Expand.Relations()) > 0 {
		return apierr.NewParseError("expand cannot be combined with group").WithField(ExpandParam)
	}
	return nil
}

// page paginates planned, loads the expanded relations of the page and
// renders it. Links preserve the filter, sort, group and directive
// parameters.
func (s *Service) page(ctx context.Context, sess *store.Session, planned *planner.Query, base string, q Query) (*Response, error) {
	params, err := planned.LinkParams()
	if err != nil {
		return nil, err
	}
	for key, values := range directiveParams(q.Directive) {
		params[key] = values
	}

	req := s.pageRequest(q)
	page, err := pagination.Paginate(ctx, sess.Source(planned), req, pagination.NewLinkBuilder(base, params))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordRows(ctx, planned.Model.Collection, len(page.Items), req.PageSize)

	if !planned.Grouped() {
		rels, err := expanded(planned.Model, q.Directive)
		if err != nil {
			return nil, err
		}
		if err := sess.LoadRelations(ctx, page.Items, rels); err != nil {
			return nil, err
		}
	}
	docs, err := s.serializer.SerializeMany(ctx, page.Items, q.Directive)
	if err != nil {
		s.recordSerialization(ctx, planned.Model.Collection, err)
		return nil, err
	}
	return &Response{Data: docs, Meta: &page.Cursor, Links: page.Links}, nil
}

// render loads the expanded relations of inst and serializes it.
func (s *Service) render(ctx context.Context, sess *store.Session, inst *entity.Instance, dir serializer.Directive) (*serializer.Document, error) {
	rels, err := expanded(inst.Model, dir)
	if err != nil {
		return nil, err
	}
	if err := sess.LoadRelations(ctx, []*entity.Instance{inst}, rels); err != nil {
		return nil, err
	}
	doc, err := s.serializer.Serialize(ctx, inst, dir)
	if err != nil {
		s.recordSerialization(ctx, inst.Model.Collection, err)
		return nil, err
	}
	return doc, nil
}

func serializationFailures(err *apierr.Error) int {
	return len(multierr.Errors(err.Cause))
}
