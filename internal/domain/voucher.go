package domain

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Voucher struct {
	ID   string       `json:"id" db:"id"`
	Code string       `json:"code" db:"code"`
	Type DiscountType `json:"type" db:"discount_type"`
	// ShopID is nil for platform-wide vouchers
	ShopID *string `json:"shop_id,omitempty" db:"shop_id"`
	// Value is a percent for PERCENTAGE and an amount for FIXED
	Value         int64     `json:"value" db:"value"`
	MinOrderValue *int64    `json:"min_order_value,omitempty" db:"min_order_value"`
	MaxDiscount   *int64    `json:"max_discount,omitempty" db:"max_discount"`
	UsageLimit    *int      `json:"usage_limit,omitempty" db:"usage_limit"`
	UsageCount    int       `json:"usage_count" db:"usage_count"`
	StartDate     time.Time `json:"start_date" db:"start_date"`
	EndDate       time.Time `json:"end_date" db:"end_date"`
	Active        bool      `json:"active" db:"active"`
}

func (v *Voucher) IsPlatformWide() bool {
	return v.ShopID == nil
}

func (v *Voucher) UsageExhausted() bool {
	return v.UsageLimit != nil && v.UsageCount >= *v.UsageLimit
}
