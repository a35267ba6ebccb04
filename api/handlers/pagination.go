package handlers

import (
	"fmt"
	"net/http"
	"strconv"
)

const (
	DefaultLimit uint64 = 20
	MaxLimit     uint64 = 100
)

// Page is a window over an owner's envelopes, counted back from the newest.
type Page struct {
	Limit  uint64
	Offset uint64
}

type PaginatedResponse[T any] struct {
	Items   []T    `json:"items"`
	Total   uint64 `json:"total"`
	Limit   uint64 `json:"limit"`
	Offset  uint64 `json:"offset"`
	HasMore bool   `json:"has_more"`
}

// NewPaginatedResponse fills HasMore from the page bounds and total.
func NewPaginatedResponse[T any](items []T, total uint64, page Page) PaginatedResponse[T] {
	return PaginatedResponse[T]{
		Items:   items,
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset < total && total-page.Offset > uint64(len(items)),
	}
}

// ParsePage reads limit and offset from the query string. A limit above
// MaxLimit is clamped; a malformed value or a zero limit is rejected.
func ParsePage(r *http.Request) (Page, error) {
	page := Page{Limit: DefaultLimit}
	q := r.URL.Query()

	if l := q.Get("limit"); l != "" {
		limit, err := strconv.ParseUint(l, 10, 64)
		if err != nil || limit == 0 {
			return Page{}, fmt.Errorf("invalid limit %q: must be a positive integer", l)
		}
		page.Limit = min(limit, MaxLimit)
	}
	if o := q.Get("offset"); o != "" {
		offset, err := strconv.ParseUint(o, 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("invalid offset %q: must be a non-negative integer", o)
		}
		page.Offset = offset
	}
	return page, nil
}
