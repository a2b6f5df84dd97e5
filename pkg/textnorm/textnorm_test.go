package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Đã xuất kho":          "da xuat kho",
		"  Chưa   THANH toán ": "chua thanh toan",
		"Nguyễn Văn Đức":       "nguyen van duc",
		"NK001":                "nk001",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Fold(in), "input %q", in)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("Công ty Thực phẩm Hà Nội", "thuc pham"))
	assert.True(t, Contains("Trần Thị Bình", "BINH"))
	assert.False(t, Contains("Trần Thị Bình", "binh duong"))
}

func TestJoinSkipsEmpty(t *testing.T) {
	assert.Equal(t, "nk001 cong ty a", Join("NK001", "", "Công ty A"))
}
