package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductStatusRules(t *testing.T) {
	assert.True(t, ProductActive.Sellable())
	assert.True(t, ProductOnOrder.Sellable())
	assert.False(t, ProductPlanning.Sellable())
	assert.False(t, ProductDiscontinued.Sellable())

	assert.True(t, ProductPlanning.Orderable())
	assert.True(t, ProductActive.Orderable())
	assert.True(t, ProductOnOrder.Orderable())
	for _, s := range []ProductStatus{ProductDiscontinued, ProductArchived, ProductRestricted, ""} {
		assert.False(t, s.Orderable(), s)
	}
}
