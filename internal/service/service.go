package service

import (
	"context"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/publisher"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/fjod/go_market/internal/service")

type Catalog interface {
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
	GetShopsByIDs(ctx context.Context, ids []string) ([]domain.Shop, error)
}

type AddressBook interface {
	// GetAddress returns an error wrapping domain.ErrNotFound unless the
	// address exists and belongs to userID.
	GetAddress(ctx context.Context, addressID, userID string) (*domain.Address, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error)
	ListOrdersByShop(ctx context.Context, shopID string) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error
}

type CartStore interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	RemoveLines(ctx context.Context, userID string, keys []domain.LineKey) error
}

// Dispatcher delivers notifications without blocking the caller.
type Dispatcher interface {
	Dispatch(n publisher.Notification)
}
