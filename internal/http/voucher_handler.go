package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/pricing"
)

type VoucherPreviewer interface {
	Validate(ctx context.Context, code, shopID string, subtotal int64, now time.Time) (*domain.Voucher, error)
}

type VoucherHandler struct {
	vouchers VoucherPreviewer
	clock    domain.Clock
	timeout  time.Duration
}

func NewVoucherHandler(vouchers VoucherPreviewer, clock domain.Clock, timeout time.Duration) *VoucherHandler {
	return &VoucherHandler{
		vouchers: vouchers,
		clock:    clock,
		timeout:  timeout,
	}
}

type ValidateVoucherRequestDTO struct {
	Code     string `json:"code"`
	ShopID   string `json:"shop_id"`
	Subtotal int64  `json:"subtotal"`
}

type ValidateVoucherResponseDTO struct {
	Valid    bool                    `json:"valid"`
	Code     string                  `json:"code"`
	Discount int64                   `json:"discount"`
	Error    domain.VoucherErrorCode `json:"error,omitempty"`
}

// POST /api/v1/vouchers/validate previews a voucher without claiming it.
func (h *VoucherHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, ok := actorFromContext(r.Context()); !ok {
		respondUnauthorized(w, r)
		return
	}

	var req ValidateVoucherRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Subtotal < 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_subtotal", "subtotal must not be negative")
		return
	}

	voucher, err := h.vouchers.Validate(ctx, req.Code, req.ShopID, req.Subtotal, h.clock.Now())
	var verr *domain.VoucherError
	if errors.As(err, &verr) {
		respondJSON(w, r, http.StatusOK, ValidateVoucherResponseDTO{Code: verr.VoucherCode, Error: verr.Code})
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, ValidateVoucherResponseDTO{
		Valid:    true,
		Code:     voucher.Code,
		Discount: pricing.CalculateDiscount(voucher, req.Subtotal),
	})
}
