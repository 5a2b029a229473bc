package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeneratePaymentRef(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := GeneratePaymentRef()
		assert.True(t, strings.HasPrefix(ref, "DEP-"))
		assert.False(t, seen[ref], "duplicate reference %s", ref)
		seen[ref] = true
	}
}

func TestGenerateRequestId(t *testing.T) {
	a := GenerateRequestId()
	b := GenerateRequestId()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestPaginateResponse(t *testing.T) {
	res := PaginateResponse([]int{1, 2, 3}, 23, 2, 10, "")
	assert.Equal(t, "success", res.Message)
	assert.Equal(t, int64(23), res.Count)
	assert.Equal(t, 2, res.CurrentPage)
	assert.Equal(t, 3, res.NextPage)
	assert.Equal(t, 1, res.PrevPage)
	assert.Equal(t, 3, res.LastPage)

	first := PaginateResponse(nil, 5, 1, 10, "custom")
	assert.Equal(t, "custom", first.Message)
	assert.Equal(t, 0, first.NextPage)
	assert.Equal(t, 0, first.PrevPage)
	assert.Equal(t, 1, first.LastPage)
}
