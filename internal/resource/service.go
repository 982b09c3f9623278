// Package resource composes the registry, planner, store, serializer and
// deserializer into the list, get, related, create, update and delete
// operations of the resource API.
package resource

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"resourcegraph/internal/apierr"
	"resourcegraph/internal/dbexec"
	"resourcegraph/internal/deserializer"
	"resourcegraph/internal/filter"
	"resourcegraph/internal/logging"
	"resourcegraph/internal/observability"
	"resourcegraph/internal/pagination"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/schema"
	"resourcegraph/internal/serializer"
	"resourcegraph/internal/sqlutil"
	"resourcegraph/internal/store"
)

// Directive query parameters, preserved on pagination links.
const (
	IncludeParam = "fields"
	ExcludeParam = "exclude"
	ExpandParam  = "expand"
)

// Options configures a Service.
type Options struct {
	BaseURL         string
	DefaultPageSize int
	// MaxPageSize rejects larger page sizes; 0 disables the check.
	MaxPageSize    int
	LazyWindow     int
	AllowClientIDs bool
}

// Service runs resource operations. It is safe for concurrent use; every
// call gets its own store session.
type Service struct {
	registry     *schema.Registry
	planner      *planner.Planner
	store        *store.Store
	serializer   *serializer.Serializer
	deserializer *deserializer.Deserializer
	executor     dbexec.QueryExecutor
	metrics      *observability.OperationMetrics
	logger       *logging.Logger
	opts         Options
}

// New creates a service over registry, running statements through executor
// in the given SQL dialect. metrics and logger may be nil.
func New(registry *schema.Registry, executor dbexec.QueryExecutor, dialect sqlutil.Dialect, opts Options, metrics *observability.OperationMetrics, logger *logging.Logger) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = pagination.DefaultPageSize
	}
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	p := planner.New(dialect)
	return &Service{
		registry:     registry,
		planner:      p,
		store:        store.New(p),
		serializer:   serializer.New(serializer.Options{BaseURL: opts.BaseURL, LazyWindow: opts.LazyWindow}),
		deserializer: deserializer.New(deserializer.Options{AllowClientIDs: opts.AllowClientIDs}),
		executor:     executor,
		metrics:      metrics,
		logger:       logger,
		opts:         opts,
	}
}

// Registry returns the model registry the service serves.
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Query selects and shapes the members of a collection or relation.
type Query struct {
	Filters []filter.Node
	Sort    []planner.SortKey
	Group   []string
	// PageNumber and PageSize default to 1 and the configured default page
	// size when nil.
	PageNumber *int
	PageSize   *int
	Directive  serializer.Directive
}

func (q Query) planRequest() planner.Request {
	return planner.Request{Filters: q.Filters, Sort: q.Sort, Group: q.Group}
}

func (q Query) paged() bool {
	return q.PageNumber != nil || q.PageSize != nil
}

// Response is the envelope of every read and write. Data holds a
// []*serializer.Document for collections and a *serializer.Document (nil
// for an empty to-one relation) otherwise.
type Response struct {
	Data  any                `json:"data"`
	Meta  *pagination.Cursor `json:"meta,omitempty"`
	Links *pagination.Links  `json:"links,omitempty"`
}

func (s *Service) collection(name string) (*schema.Model, error) {
	model, err := s.registry.Collection(name)
	if err != nil {
		return nil, apierr.Wrap(apierr.ResourceNotFound, err, "no collection %q", name)
	}
	return model, nil
}

func (s *Service) pageRequest(q Query) pagination.Request {
	req := pagination.Request{PageNumber: 1, PageSize: s.opts.DefaultPageSize, MaxPageSize: s.opts.MaxPageSize}
	if q.PageNumber != nil {
		req.PageNumber = *q.PageNumber
	}
	if q.PageSize != nil {
		req.PageSize = *q.PageSize
	}
	return req
}

// expanded returns the relations of model named by dir's expansion.
func expanded(model *schema.Model, dir serializer.Directive) ([]*schema.Relation, error) {
	names := dir.Expand.Relations()
	rels := make([]*schema.Relation, 0, len(names))
	for _, name := range names {
		rel, err := model.Relation(name)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// directiveParams renders dir as query parameters.
func directiveParams(dir serializer.Directive) url.Values {
	params := url.Values{}
	if len(dir.Include) > 0 {
		params.Set(IncludeParam, strings.Join(dir.Include, ","))
	}
	if len(dir.Exclude) > 0 {
		params.Set(ExcludeParam, strings.Join(dir.Exclude, ","))
	}
	if raw := dir.Expand.String(); raw != "" {
		params.Set(ExpandParam, raw)
	}
	return params
}

// observe wraps one operation with a span, a log line and the operation
// metrics.
func (s *Service) observe(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, operation, collection)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	observability.EndSpan(span, err)

	outcome := "ok"
	if err != nil {
		outcome = string(apierr.KindOf(err))
		if outcome == "" {
			outcome = "internal_error"
		}
	}
	s.metrics.RecordOperation(ctx, operation, collection, outcome, duration)

	logger := s.logger
	if ctxLogger := logging.FromContext(ctx); ctxLogger.Logger != slog.Default() {
		logger = ctxLogger
	}
	attrs := []any{
		slog.String("operation", operation),
		slog.String("collection", collection),
		slog.Duration("duration", duration),
	}
	switch {
	case err == nil:
		logger.Debug("resource operation", attrs...)
	case apierr.Status(err) >= 500:
		logger.Error("resource operation failed", append(attrs, slog.String("error", err.Error()))...)
	default:
		logger.Info("resource operation rejected", append(attrs, slog.String("kind", outcome), slog.String("error", err.Error()))...)
	}
	return err
}

// recordSerialization counts the instances behind a SerializationException.
func (s *Service) recordSerialization(ctx context.Context, collection string, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Kind == apierr.SerializationException {
		s.metrics.RecordSerializationFailures(ctx, collection, serializationFailures(apiErr))
	}
}
