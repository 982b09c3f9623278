package main

import (
	"strings"

	"github.com/spf13/cobra"

	"resourcegraph/internal/filter"
	"resourcegraph/internal/planner"
	"resourcegraph/internal/resource"
	"resourcegraph/internal/serializer"
)

// directiveFlags select the attributes and expansions of rendered documents.
type directiveFlags struct {
	fields  []string
	exclude []string
	expand  string
}

func (f *directiveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.fields, resource.IncludeParam, nil, "Attributes to include (comma-separated); the id is always kept")
	cmd.Flags().StringSliceVar(&f.exclude, resource.ExcludeParam, nil, "Attributes to leave out (comma-separated)")
	cmd.Flags().StringVar(&f.expand, resource.ExpandParam, "", "Relations to expand, e.g. author,comments.body")
}

func (f *directiveFlags) directive() (serializer.Directive, error) {
	expand, err := serializer.ParseExpand(f.expand)
	if err != nil {
		return serializer.Directive{}, err
	}
	return serializer.Directive{Include: f.fields, Exclude: f.exclude, Expand: expand}, nil
}

// queryFlags select, order and page the members of a collection or relation.
type queryFlags struct {
	directiveFlags
	filter     string
	sort       string
	group      string
	pageNumber int
	pageSize   int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	f.directiveFlags.register(cmd)
	cmd.Flags().StringVar(&f.filter, planner.FilterParam, "", "Filter as JSON or text, e.g. 'age gte 18 and name like \"a%\"'")
	cmd.Flags().StringVar(&f.sort, planner.SortParam, "", "Sort keys, e.g. -created_at,name")
	cmd.Flags().StringVar(&f.group, planner.GroupParam, "", "Group keys; each result counts the rows of one group")
	cmd.Flags().IntVar(&f.pageNumber, "page-number", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", 0, "Page size (default api.default_page_size); 0 returns every row")
}

// query builds the service query. Page fields are only set when the flags
// were given.
func (f *queryFlags) query(cmd *cobra.Command) (resource.Query, error) {
	var q resource.Query
	var err error

	if raw := strings.TrimSpace(f.filter); raw != "" {
		if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
			q.Filters, err = filter.ParseJSON([]byte(raw))
		} else {
			q.Filters, err = filter.ParseText(raw)
		}
		if err != nil {
			return q, err
		}
	}
	if q.Sort, err = planner.ParseSort(f.sort); err != nil {
		return q, err
	}
	if q.Group, err = planner.ParseGroup(f.group); err != nil {
		return q, err
	}
	if cmd.Flags().Changed("page-number") {
		q.PageNumber = &f.pageNumber
	}
	if cmd.Flags().Changed("page-size") {
		q.PageSize = &f.pageSize
	}
	if q.Directive, err = f.directive(); err != nil {
		return q, err
	}
	return q, nil
}
