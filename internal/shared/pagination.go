package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	page, perPage = clampPage(page, perPage)
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// PageFromQuery reads page and per_page, clamping to sane bounds.
func PageFromQuery(q url.Values) (page, perPage int) {
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	return clampPage(page, perPage)
}

// Offset returns the row offset of a page.
func Offset(page, perPage int) int {
	page, perPage = clampPage(page, perPage)
	return (page - 1) * perPage
}

func clampPage(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return page, perPage
}
