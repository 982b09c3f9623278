// Package pagination executes a planned query one page at a time and derives
// the page cursor and navigation links.
package pagination

import (
	"context"
	"fmt"
	"math"

	"resourcegraph/internal/apierr"
)

const (
	// DefaultPageSize is the page size used when a request does not set one.
	DefaultPageSize = 25
	// MaxPageSize is the default upper bound for a requested page size.
	MaxPageSize = 100
)

// Request is a requested page window.
type Request struct {
	PageNumber int
	// PageSize 0 means "everything, unpaginated".
	PageSize    int
	MaxPageSize int
}

// Validate rejects out-of-range windows. Oversized pages are rejected, never clamped.
func (r Request) Validate() error {
	if r.PageSize < 0 {
		return paginationError("page size must not be negative, got %d", r.PageSize)
	}
	if r.PageNumber < 0 {
		return paginationError("page number must not be negative, got %d", r.PageNumber)
	}
	if r.MaxPageSize > 0 && r.PageSize > r.MaxPageSize {
		return paginationError("page size %d exceeds the maximum of %d", r.PageSize, r.MaxPageSize).
			WithDetail("max_page_size", r.MaxPageSize)
	}
	if r.PageSize > 0 && r.PageNumber == 0 {
		return paginationError("page number must be at least 1")
	}
	// The row offset (PageNumber-1)*PageSize must fit in an int.
	if r.PageSize > 0 && r.PageNumber-1 > math.MaxInt/r.PageSize {
		return paginationError("page number %d is out of range for page size %d", r.PageNumber, r.PageSize)
	}
	return nil
}

// Source is an executable query that can be counted and read in windows.
type Source[T any] interface {
	// Count returns the number of rows of the unpaginated query.
	Count(ctx context.Context) (int, error)
	// Fetch reads up to limit rows starting at offset. A negative limit reads
	// every row.
	Fetch(ctx context.Context, limit, offset int) ([]T, error)
}

// Cursor describes where a page sits in the full result.
type Cursor struct {
	PageNumber int  `json:"page_number"`
	PageSize   int  `json:"page_size"`
	TotalCount int  `json:"total_count"`
	LastPage   int  `json:"last_page"`
	PrevPage   *int `json:"prev_page"`
	NextPage   *int `json:"next_page"`
}

// NewCursor derives the page boundaries for a page of a result of total rows.
func NewCursor(pageNumber, pageSize, total int) Cursor {
	c := Cursor{PageNumber: pageNumber, PageSize: pageSize, TotalCount: total, LastPage: 1}
	if pageSize > 0 && total > 0 {
		c.LastPage = (total + pageSize - 1) / pageSize
	}
	if pageNumber > 1 {
		prev := pageNumber - 1
		c.PrevPage = &prev
	}
	if pageNumber < c.LastPage {
		next := pageNumber + 1
		c.NextPage = &next
	}
	return c
}

// Page is one window of results.
type Page[T any] struct {
	Items  []T
	Cursor Cursor
	// Links is nil for unpaginated results.
	Links *Links
}

// Paginate executes src over the requested window. A page size of 0 returns
// every row with no links; otherwise the total is counted first and the
// page is read with limit/offset.
func Paginate[T any](ctx context.Context, src Source[T], req Request, links *LinkBuilder) (*Page[T], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.PageSize == 0 {
		items, err := src.Fetch(ctx, -1, 0)
		if err != nil {
			return nil, err
		}
		return &Page[T]{
			Items:  items,
			Cursor: Cursor{PageNumber: 1, PageSize: 0, TotalCount: len(items), LastPage: 1},
		}, nil
	}

	total, err := src.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	cursor := NewCursor(req.PageNumber, req.PageSize, total)

	items := []T{}
	offset := (req.PageNumber - 1) * req.PageSize
	if offset < total {
		if items, err = src.Fetch(ctx, req.PageSize, offset); err != nil {
			return nil, err
		}
	}

	page := &Page[T]{Items: items, Cursor: cursor}
	if links != nil {
		page.Links = links.Build(cursor)
	}
	return page, nil
}

func paginationError(format string, args ...any) *apierr.Error {
	return apierr.NewPaginationError(format, args...).WithField("page")
}
