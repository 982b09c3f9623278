package pagination

import (
	"context"
	"errors"
	"math"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcegraph/internal/apierr"
)

type sliceSource struct {
	rows       []int
	countCalls int
	fetches    [][2]int
}

func (s *sliceSource) Count(ctx context.Context) (int, error) {
	s.countCalls++
	return len(s.rows), nil
}

func (s *sliceSource) Fetch(ctx context.Context, limit, offset int) ([]int, error) {
	s.fetches = append(s.fetches, [2]int{limit, offset})
	if limit < 0 {
		return append([]int(nil), s.rows...), nil
	}
	end := offset + limit
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return append([]int(nil), s.rows[offset:end]...), nil
}

func rows(n int) *sliceSource {
	s := &sliceSource{}
	for i := 1; i <= n; i++ {
		s.rows = append(s.rows, i)
	}
	return s
}

func TestPaginate_FirstPageOfMany(t *testing.T) {
	src := rows(120)
	page, err := Paginate[int](context.Background(), src, Request{PageNumber: 1, PageSize: 20, MaxPageSize: 100}, NewLinkBuilder("/users", nil))
	require.NoError(t, err)

	assert.Equal(t, 6, page.Cursor.LastPage)
	assert.Equal(t, 120, page.Cursor.TotalCount)
	require.NotNil(t, page.Cursor.NextPage)
	assert.Equal(t, 2, *page.Cursor.NextPage)
	assert.Nil(t, page.Cursor.PrevPage)
	assert.Len(t, page.Items, 20)
	assert.Equal(t, [][2]int{{20, 0}}, src.fetches)

	require.NotNil(t, page.Links)
	assert.Equal(t, "/users?page%5Bnumber%5D=2&page%5Bsize%5D=20", page.Links.Next)
	assert.Equal(t, "/users?page%5Bnumber%5D=6&page%5Bsize%5D=20", page.Links.Last)
	assert.Empty(t, page.Links.Prev)
}

func TestPaginate_MiddleAndLastPage(t *testing.T) {
	src := rows(45)

	page, err := Paginate[int](context.Background(), src, Request{PageNumber: 2, PageSize: 20}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Cursor.LastPage)
	assert.Equal(t, 1, *page.Cursor.PrevPage)
	assert.Equal(t, 3, *page.Cursor.NextPage)
	assert.Equal(t, 21, page.Items[0])
	assert.Nil(t, page.Links)

	page, err = Paginate[int](context.Background(), src, Request{PageNumber: 3, PageSize: 20}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{41, 42, 43, 44, 45}, page.Items)
	assert.Nil(t, page.Cursor.NextPage)
}

func TestPaginate_PagesConcatenateToFullResult(t *testing.T) {
	src := rows(23)
	var all []int
	for n := 1; ; n++ {
		page, err := Paginate[int](context.Background(), src, Request{PageNumber: n, PageSize: 5}, nil)
		require.NoError(t, err)
		all = append(all, page.Items...)
		if page.Cursor.NextPage == nil {
			assert.Equal(t, 5, n)
			break
		}
	}
	assert.Equal(t, src.rows, all)
}

func TestPaginate_BeyondLastPageIsEmpty(t *testing.T) {
	src := rows(3)
	page, err := Paginate[int](context.Background(), src, Request{PageNumber: 4, PageSize: 2}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, src.fetches)
	assert.Equal(t, 2, page.Cursor.LastPage)
}

func TestPaginate_LargestValidPageIsEmpty(t *testing.T) {
	src := rows(10)
	page, err := Paginate[int](context.Background(), src, Request{PageNumber: math.MaxInt/4 + 1, PageSize: 4}, nil)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Empty(t, src.fetches)
	assert.Equal(t, 3, page.Cursor.LastPage)
	assert.Nil(t, page.Cursor.NextPage)
}

func TestPaginate_ZeroPageSizeReturnsEverything(t *testing.T) {
	src := rows(7)
	page, err := Paginate[int](context.Background(), src, Request{PageNumber: 3, PageSize: 0, MaxPageSize: 5}, NewLinkBuilder("/users", nil))
	require.NoError(t, err)
	assert.Len(t, page.Items, 7)
	assert.Equal(t, 7, page.Cursor.TotalCount)
	assert.Nil(t, page.Links)
	assert.Zero(t, src.countCalls)
}

func TestPaginate_EmptyResult(t *testing.T) {
	page, err := Paginate[int](context.Background(), rows(0), Request{PageNumber: 1, PageSize: 10}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Cursor.LastPage)
	assert.Nil(t, page.Cursor.NextPage)
	assert.Empty(t, page.Items)
}

func TestPaginate_RejectsInvalidWindows(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"negative size", Request{PageNumber: 1, PageSize: -1}},
		{"negative number", Request{PageNumber: -1, PageSize: 10}},
		{"size over max", Request{PageNumber: 1, PageSize: 101, MaxPageSize: 100}},
		{"page zero", Request{PageNumber: 0, PageSize: 10}},
		{"offset overflows", Request{PageNumber: math.MaxInt/4 + 2, PageSize: 4}},
		{"max page number", Request{PageNumber: math.MaxInt, PageSize: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := rows(10)
			_, err := Paginate[int](context.Background(), src, tt.req, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apierr.PaginationError))
			assert.Empty(t, src.fetches)
		})
	}
}

func TestPaginate_OversizedPageNamesMaximum(t *testing.T) {
	_, err := Paginate[int](context.Background(), rows(10), Request{PageNumber: 1, PageSize: 500, MaxPageSize: 100}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum of 100")
}

func TestLinkBuilder_PreservesParams(t *testing.T) {
	params := url.Values{}
	params.Set("sort", "-age,created_at")
	params.Set("filter[objects]", `[{"name":"age","op":"gt","val":18}]`)
	params.Set(PageNumberParam, "9")

	b := NewLinkBuilder("https://api.example.com/users?include=posts", params)
	links := b.Build(NewCursor(2, 10, 35))

	u, err := url.Parse(links.Next)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "3", q.Get(PageNumberParam))
	assert.Equal(t, "10", q.Get(PageSizeParam))
	assert.Equal(t, "-age,created_at", q.Get("sort"))
	assert.Equal(t, `[{"name":"age","op":"gt","val":18}]`, q.Get("filter[objects]"))
	assert.Equal(t, "posts", q.Get("include"))
	assert.Equal(t, "/users", u.Path)

	prev, err := url.Parse(links.Prev)
	require.NoError(t, err)
	assert.Equal(t, "1", prev.Query().Get(PageNumberParam))
}

func TestNewCursor(t *testing.T) {
	c := NewCursor(1, 20, 0)
	assert.Equal(t, 1, c.LastPage)
	assert.Nil(t, c.PrevPage)
	assert.Nil(t, c.NextPage)

	c = NewCursor(6, 20, 120)
	assert.Equal(t, 6, c.LastPage)
	assert.Equal(t, 5, *c.PrevPage)
	assert.Nil(t, c.NextPage)
}
