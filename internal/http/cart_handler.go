package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, version int64, line domain.CartLine) (*domain.Cart, error)
	UpdateQuantity(ctx context.Context, userID string, version int64, key domain.LineKey, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID string, version int64, key domain.LineKey) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string, version int64) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

// Writes carry the cart version the client last read, in the body or in an
// If-Match header.
type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Version   int64  `json:"version"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int   `json:"quantity"`
	Version  int64 `json:"version"`
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}

	cart, err := h.carts.GetCart(ctx, actor.UserID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondCart(w, r, http.StatusOK, cart)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	version, ok := cartVersion(w, r, req.Version)
	if !ok {
		return
	}

	cart, err := h.carts.AddItem(ctx, actor.UserID, version, domain.CartLine{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondCart(w, r, http.StatusCreated, cart)
}

// PUT /api/v1/cart/items/{product_id}?variant_id=
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	version, ok := cartVersion(w, r, req.Version)
	if !ok {
		return
	}

	cart, err := h.carts.UpdateQuantity(ctx, actor.UserID, version, lineKey(r), req.Quantity)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondCart(w, r, http.StatusOK, cart)
}

// DELETE /api/v1/cart/items/{product_id}?variant_id=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}
	version, ok := cartVersion(w, r, 0)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, actor.UserID, version, lineKey(r))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondCart(w, r, http.StatusOK, cart)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	actor, ok := actorFromContext(r.Context())
	if !ok {
		respondUnauthorized(w, r)
		return
	}
	version, ok := cartVersion(w, r, 0)
	if !ok {
		return
	}

	cart, err := h.carts.ClearCart(ctx, actor.UserID, version)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondCart(w, r, http.StatusOK, cart)
}

func respondCart(w http.ResponseWriter, r *http.Request, status int, cart *domain.Cart) {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	w.Header().Set("ETag", strconv.Quote(strconv.FormatInt(cart.Version, 10)))
	respondJSON(w, r, status, cart)
}

func lineKey(r *http.Request) domain.LineKey {
	return domain.LineKey{
		ProductID: chi.URLParam(r, "product_id"),
		VariantID: r.URL.Query().Get("variant_id"),
	}
}

// cartVersion prefers If-Match, then the version query parameter, then the
// version from the body.
func cartVersion(w http.ResponseWriter, r *http.Request, fromBody int64) (int64, bool) {
	raw := strings.Trim(r.Header.Get("If-Match"), `"`)
	if raw == "" {
		raw = r.URL.Query().Get("version")
	}
	if raw == "" {
		return fromBody, true
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_version", "cart version must be a non-negative integer")
		return 0, false
	}
	return v, true
}
