package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderManager interface {
	GetOrder(ctx context.Context, orderID uuid.UUID, actor domain.Actor) (*domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor) ([]*domain.Order, error)
	TransitionOrderStatus(ctx context.Context, orderID uuid.UUID, actor domain.Actor, to domain.OrderStatus, reason string) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderManager
	timeout time.Duration
}

func NewOrdersHandler(orders OrderManager, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type TransitionRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
	Reason string             `json:"reason,omitempty"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}

	orders, err := h.orders.ListOrders(ctx, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, r, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actor)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/status
func (h *OrdersHandler) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}
	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req TransitionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.IsKnown() {
		respondError(w, r, http.StatusBadRequest, "invalid_status", "unknown order status")
		return
	}

	order, err := h.orders.TransitionOrderStatus(ctx, orderID, actor, req.Status, req.Reason)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, order)
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
