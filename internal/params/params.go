package params

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// URL: /films/7/reviews?page=2 with a configured page size of 10
// → ParsePage() → 2
// → ForPage(2, 10) → Pagination{Limit:10, Page:2, Offset:10}
// → SQL: SELECT ... LIMIT 10 OFFSET 10, plus the film's total count
// → ComputeMeta(total) → fills TotalPages, HasNext, etc.
// Pagination holds pagination info and computed metadata.
type Pagination struct {
	Limit      int  `json:"limit"`       // items per page
	Offset     int  `json:"offset"`      // SQL OFFSET value
	Page       int  `json:"page"`        // Current Page number
	Total      int  `json:"total"`       //Total item in database
	TotalPages int  `json:"total_pages"` //Total pages available
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// ParsePage reads ?page=... and falls back to 1 when it is missing or not a
// positive number. Page size is never taken from the query.
func ParsePage(q url.Values) int {
	if pageStr := strings.TrimSpace(q.Get("page")); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			return page
		}
	}
	return 1
}

// ForPage builds the pagination window for page with a fixed page size.
// Pages whose offset would overflow get the largest offset that still leaves
// room for one page, which lies past any real result set.
func ForPage(page, size int) Pagination {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}

	maxOffset := math.MaxInt - size
	offset := maxOffset
	if page-1 <= maxOffset/size {
		offset = size * (page - 1)
	}

	return Pagination{
		Limit:  size,
		Page:   page,
		Offset: offset,
	}
}

// ComputeMeta updates pagination after fetching total count.
func (p *Pagination) ComputeMeta(total int) {
	p.Total = total
	if p.Limit > 0 {
		p.TotalPages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	p.HasPrev = p.Page > 1
	p.HasNext = p.Offset < total-p.Limit
}
