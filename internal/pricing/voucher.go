package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/shopspring/decimal"
)

// VoucherFinder looks a voucher up by its normalized code. A miss wraps
// domain.ErrNotFound.
type VoucherFinder interface {
	FindVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error)
}

type VoucherValidator struct {
	vouchers VoucherFinder
}

func NewVoucherValidator(vouchers VoucherFinder) *VoucherValidator {
	return &VoucherValidator{vouchers: vouchers}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate loads the voucher and checks it against a shop subtotal at now.
// shopID is empty when no shop context applies. It never changes usage.
func (v *VoucherValidator) Validate(ctx context.Context, code, shopID string, subtotal int64, now time.Time) (*domain.Voucher, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, &domain.VoucherError{Code: domain.VoucherNotFound, VoucherCode: code}
	}

	voucher, err := v.vouchers.FindVoucherByCode(ctx, normalized)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.VoucherError{Code: domain.VoucherNotFound, VoucherCode: normalized}
	}
	if err != nil {
		return nil, fmt.Errorf("find voucher: %w", err)
	}

	if err := CheckVoucher(voucher, shopID, subtotal, now); err != nil {
		return nil, err
	}
	return voucher, nil
}

// CheckVoucher applies every voucher rule in a fixed order and returns the
// first one violated.
func CheckVoucher(v *domain.Voucher, shopID string, subtotal int64, now time.Time) error {
	fail := func(code domain.VoucherErrorCode) error {
		return &domain.VoucherError{Code: code, VoucherCode: v.Code}
	}

	switch {
	case !v.Active:
		return fail(domain.VoucherInactive)
	case now.Before(v.StartDate):
		return fail(domain.VoucherNotYetValid)
	case now.After(v.EndDate):
		return fail(domain.VoucherExpired)
	case v.UsageExhausted():
		return fail(domain.VoucherUsageLimitReached)
	case v.MinOrderValue != nil && subtotal < *v.MinOrderValue:
		return fail(domain.VoucherBelowMinimum)
	case !v.IsPlatformWide() && *v.ShopID != shopID:
		return fail(domain.VoucherScopeMismatch)
	}
	return nil
}

// CalculateDiscount never returns more than subtotal.
func CalculateDiscount(v *domain.Voucher, subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}

	var d int64
	switch v.Type {
	case domain.DiscountPercentage:
		d = percentageDiscount(v.Value, v.MaxDiscount, subtotal)
	case domain.DiscountFixed:
		d = fixedDiscount(v.Value, subtotal)
	}

	if d < 0 {
		return 0
	}
	return min(d, subtotal)
}

func percentageDiscount(percent int64, maxDiscount *int64, subtotal int64) int64 {
	d := decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
	if maxDiscount != nil {
		d = min(d, *maxDiscount)
	}
	return d
}

func fixedDiscount(value, subtotal int64) int64 {
	return min(value, subtotal)
}
