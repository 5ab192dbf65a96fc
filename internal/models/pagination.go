package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Pagination bounds
const (
	DefaultPage     = 1
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// PageRequest is a validated page selection
type PageRequest struct {
	Page     int
	PageSize int
}

// NewPagination validates page and pageSize. page below 1 is raised to 1
// and pageSize above MaxPageSize is lowered to it; pageSize below 1 is an
// error.
func NewPagination(page, pageSize int) (PageRequest, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return PageRequest{}, invalidParameter("pageSize", strconv.Itoa(pageSize), "pageSize must be >= 1")
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return PageRequest{Page: page, PageSize: pageSize}, nil
}

// ParsePageRequest builds a PageRequest from query-string values. Empty
// values fall back to the defaults.
func ParsePageRequest(pageStr, pageSizeStr string) (PageRequest, error) {
	page, err := optionalInt("page", pageStr, DefaultPage)
	if err != nil {
		return PageRequest{}, err
	}
	pageSize, err := optionalInt("pageSize", pageSizeStr, DefaultPageSize)
	if err != nil {
		return PageRequest{}, err
	}
	return NewPagination(page, pageSize)
}

// ParseOptionalInt parses an integer query parameter; empty means nil
func ParseOptionalInt(name, raw string) (*int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	v, err := optionalInt(name, raw, 0)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func optionalInt(name, raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParameter(name, raw, fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

// maxOffset leaves room for LIMIT + OFFSET without overflowing
const maxOffset = math.MaxInt - MaxPageSize

// Offset returns the number of rows to skip. It saturates at maxOffset
// instead of overflowing, so absurd page numbers land past the last row.
func (p PageRequest) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > maxOffset/p.PageSize {
		return maxOffset
	}
	return (p.Page - 1) * p.PageSize
}

// PageInfo is the pagination block of a query response
type PageInfo struct {
	Page         int `json:"page"`
	PageSize     int `json:"pageSize"`
	TotalPages   int `json:"totalPages"`
	TotalRecords int `json:"totalRecords"`
}

// NewPageInfo computes page metadata for total matching rows
func NewPageInfo(req PageRequest, total int) PageInfo {
	totalPages := 0
	if total > 0 && req.PageSize > 0 {
		totalPages = (total + req.PageSize - 1) / req.PageSize
	}
	return PageInfo{
		Page:         req.Page,
		PageSize:     req.PageSize,
		TotalPages:   totalPages,
		TotalRecords: total,
	}
}

// Page is one page of query results
type Page[T any] struct {
	Data       []T       `json:"data"`
	Pagination PageInfo  `json:"pagination"`
	QueryTime  time.Time `json:"query_time"`
}

// NewPage assembles a page; Data is never nil so it encodes as [].
func NewPage[T any](data []T, req PageRequest, total int, queryTime time.Time) *Page[T] {
	if data == nil {
		data = []T{}
	}
	return &Page[T]{
		Data:       data,
		Pagination: NewPageInfo(req, total),
		QueryTime:  queryTime.UTC(),
	}
}
