package pricing

import (
	"testing"

	"github.com/fjod/go_market/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestShippingFee(t *testing.T) {
	shop := &domain.Shop{ID: "s", ShippingFee: 25000, FreeShippingThreshold: ptr(int64(300000))}

	assert.Equal(t, int64(25000), ShippingFee(shop, 299999))
	assert.Equal(t, int64(0), ShippingFee(shop, 300000))
	assert.Equal(t, int64(25000), ShippingFee(&domain.Shop{ShippingFee: 25000}, 1_000_000))
	assert.Equal(t, int64(0), ShippingFee(nil, 1000))
}

func TestOrderTotal(t *testing.T) {
	assert.Equal(t, int64(170000), OrderTotal(200000, 0, 30000))
	assert.Equal(t, int64(195000), OrderTotal(200000, 25000, 30000))
	assert.Equal(t, int64(0), OrderTotal(100, 0, 500))
}
