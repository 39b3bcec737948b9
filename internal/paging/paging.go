// Package paging carries page requests from the HTTP layer to the stores and
// page envelopes back.
package paging

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultSize = 20
	MaxSize     = 100
	// MaxPage keeps Page*Size within int for every accepted size.
	MaxPage = math.MaxInt32 / MaxSize
)

// Request is a zero-based page request.
type Request struct {
	Page int
	Size int
}

// Offset is the number of rows to skip.
func (r Request) Offset() int { return r.Page * r.Size }

// Normalize clamps the request into the supported range.
func (r Request) Normalize() Request {
	if r.Page < 0 {
		r.Page = 0
	}
	if r.Page > MaxPage {
		r.Page = MaxPage
	}
	if r.Size <= 0 {
		r.Size = DefaultSize
	}
	if r.Size > MaxSize {
		r.Size = MaxSize
	}
	return r
}

// FromQuery reads page and size query parameters; malformed values fall back to defaults.
func FromQuery(q url.Values) Request {
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	return Request{Page: page, Size: size}.Normalize()
}

// Page is the list envelope returned by every list endpoint.
type Page[T any] struct {
	Content       []T `json:"content"`
	Page          int `json:"page"`
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// New builds the envelope for one page of items out of total.
func New[T any](items []T, req Request, total int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if req.Size > 0 {
		pages = (total + req.Size - 1) / req.Size
	}
	return Page[T]{
		Content:       items,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
	}
}

// Slice returns the window of items selected by req, used by in-memory stores.
func Slice[T any](items []T, req Request) []T {
	start := req.Offset()
	if start < 0 || start >= len(items) {
		return nil
	}
	end := start + req.Size
	if end > len(items) || end < start {
		end = len(items)
	}
	return items[start:end]
}
