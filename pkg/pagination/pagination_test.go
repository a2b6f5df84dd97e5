package pagination

import (
	"math"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		want  Params
	}{
		{"", Params{Page: 1, PageSize: 10, Offset: 0}},
		{"page=3&page_size=20", Params{Page: 3, PageSize: 20, Offset: 40}},
		{"page=0&limit=5", Params{Page: 1, PageSize: 5, Offset: 0}},
		{"page=2&page_size=1000", Params{Page: 2, PageSize: 50, Offset: 50}},
		{"page=abc&page_size=-1", Params{Page: 1, PageSize: 10, Offset: 0}},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/?"+tt.query, nil)
		assert.Equal(t, tt.want, Parse(c, 50), "query %q", tt.query)
	}
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 10))
	assert.Equal(t, 1, TotalPages(1, 10))
	assert.Equal(t, 1, TotalPages(10, 10))
	assert.Equal(t, 2, TotalPages(11, 10))
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, Slice(items, New(2, 2, 0)))
	assert.Equal(t, []int{5}, Slice(items, New(3, 2, 0)))
	assert.Equal(t, []int{}, Slice(items, New(4, 2, 0)))
	assert.Equal(t, []int{}, Slice(items, Params{Page: 1, PageSize: 2, Offset: -2}))
}

func TestNewHugePageDoesNotOverflow(t *testing.T) {
	for _, size := range []int{1, 7, 10, 100} {
		p := New(math.MaxInt, size, 100)
		assert.GreaterOrEqual(t, p.Offset, 0, "size %d", size)
		assert.Equal(t, (p.Page-1)*p.PageSize, p.Offset)
		assert.Equal(t, []int{}, Slice([]int{1, 2, 3}, p))
	}
}
