package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/go_market/internal/domain"
)

const voucherColumns = `id, code, shop_id, discount_type, value, min_order_value, max_discount,
	usage_limit, usage_count, start_date, end_date, active`

// FindVoucherByCode expects an upper-cased code; codes are stored upper-cased.
func (r *Repository) FindVoucherByCode(ctx context.Context, code string) (*domain.Voucher, error) {
	var v domain.Voucher
	err := r.db.GetContext(ctx, &v,
		`SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, strings.ToUpper(code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query voucher: %w", err)
	}
	return &v, nil
}

func (r *Repository) CreateVoucher(ctx context.Context, v *domain.Voucher) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO vouchers (`+voucherColumns+`)
		 VALUES (:id, :code, :shop_id, :discount_type, :value, :min_order_value, :max_discount,
		         :usage_limit, :usage_count, :start_date, :end_date, :active)`, v)
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}
