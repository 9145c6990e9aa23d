package pricing

import "github.com/fjod/go_market/internal/domain"

// ShippingFee is the shop's flat fee, waived once subtotal reaches the
// shop's free-shipping threshold.
func ShippingFee(shop *domain.Shop, subtotal int64) int64 {
	if shop == nil {
		return 0
	}
	if shop.FreeShippingThreshold != nil && subtotal >= *shop.FreeShippingThreshold {
		return 0
	}
	return shop.ShippingFee
}

func OrderTotal(subtotal, shippingFee, discount int64) int64 {
	return max(subtotal+shippingFee-discount, 0)
}
