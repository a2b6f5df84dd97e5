package pagination

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100
	MinPageSize     = 1
)

// Params holds validated pagination parameters
type Params struct {
	Page     int
	PageSize int
	Offset   int
}

// Parse extracts and validates page/page_size from query parameters.
// "limit" is accepted as an alias of page_size for older list pages.
func Parse(c *gin.Context, maxPageSize int) Params {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(DefaultPage)))

	rawSize := c.Query("page_size")
	if rawSize == "" {
		rawSize = c.DefaultQuery("limit", strconv.Itoa(DefaultPageSize))
	}
	size, _ := strconv.Atoi(rawSize)

	return New(page, size, maxPageSize)
}

// New clamps page and size into a valid window.
func New(page, size, maxPageSize int) Params {
	if maxPageSize <= 0 {
		maxPageSize = MaxPageSize
	}
	if page < 1 {
		page = DefaultPage
	}
	if size < MinPageSize {
		size = DefaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	// past this page the offset would overflow; such pages are empty anyway
	if page > math.MaxInt/size {
		page = math.MaxInt / size
	}

	return Params{
		Page:     page,
		PageSize: size,
		Offset:   (page - 1) * size,
	}
}

// TotalPages returns ceil(total/size), 0 when there is nothing to show
func TotalPages(total int64, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}

// Slice returns the window of items for the given page, used when results are
// paginated in memory.
func Slice[T any](items []T, p Params) []T {
	if p.Offset < 0 || p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
