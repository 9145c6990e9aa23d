package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_market/internal/service"
)

type Checkouter interface {
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
}

type CheckoutHandler struct {
	checkout Checkouter
	timeout  time.Duration
}

func NewCheckoutHandler(checkout Checkouter, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}

	var req service.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = actor.UserID

	result, err := h.checkout.Checkout(ctx, req)
	if err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, r, checkoutStatus(result), result)
}

// checkoutStatus is 201 when every shop got an order, 207 when some did and
// 409 when none did.
func checkoutStatus(result *service.CheckoutResult) int {
	switch {
	case len(result.Failures) == 0:
		return http.StatusCreated
	case len(result.Orders) > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusConflict
	}
}
