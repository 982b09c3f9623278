package pagination

import (
	"net/url"
	"strconv"
)

const (
	// PageNumberParam and PageSizeParam are the query parameters rewritten in
	// navigation links.
	PageNumberParam = "page[number]"
	PageSizeParam   = "page[size]"
)

// Links are the navigation links of a page. Prev and Next are empty when
// there is no such page.
type Links struct {
	Self  string `json:"self"`
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
}

// LinkBuilder regenerates request URLs with a different page window.
type LinkBuilder struct {
	// Base is the URL path (and optional scheme/host) of the collection.
	Base string
	// Params are the original request parameters: filters, sort, group and
	// anything else the adapter passes through.
	Params url.Values
}

// NewLinkBuilder creates a builder for base with a copy of params.
func NewLinkBuilder(base string, params url.Values) *LinkBuilder {
	copied := make(url.Values, len(params))
	for k, v := range params {
		copied[k] = append([]string(nil), v...)
	}
	return &LinkBuilder{Base: base, Params: copied}
}

// URL returns the link for one page.
func (b *LinkBuilder) URL(pageNumber, pageSize int) string {
	q := make(url.Values, len(b.Params)+2)
	for k, v := range b.Params {
		q[k] = v
	}
	q.Set(PageNumberParam, strconv.Itoa(pageNumber))
	q.Set(PageSizeParam, strconv.Itoa(pageSize))

	u, err := url.Parse(b.Base)
	if err != nil {
		return b.Base + "?" + q.Encode()
	}
	for k, v := range u.Query() {
		if _, ok := q[k]; !ok {
			q[k] = v
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Build derives the navigation links for a cursor.
func (b *LinkBuilder) Build(c Cursor) *Links {
	links := &Links{
		Self:  b.URL(c.PageNumber, c.PageSize),
		First: b.URL(1, c.PageSize),
		Last:  b.URL(c.LastPage, c.PageSize),
	}
	if c.PrevPage != nil {
		links.Prev = b.URL(*c.PrevPage, c.PageSize)
	}
	if c.NextPage != nil {
		links.Next = b.URL(*c.NextPage, c.PageSize)
	}
	return links
}
