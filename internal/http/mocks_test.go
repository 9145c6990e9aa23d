package http

import (
	"context"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/service"
	"github.com/google/uuid"
)

type MockCartService struct {
	Cart        *domain.Cart
	Err         error
	LastVersion int64
	LastKey     domain.LineKey
	LastLine    domain.CartLine
}

func (m *MockCartService) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Cart == nil {
		return &domain.Cart{UserID: userID}, nil
	}
	return m.Cart, nil
}

func (m *MockCartService) AddItem(_ context.Context, userID string, version int64, line domain.CartLine) (*domain.Cart, error) {
	m.LastVersion, m.LastLine = version, line
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.Cart{UserID: userID, Version: version + 1, Lines: []domain.CartLine{line}}, nil
}

func (m *MockCartService) UpdateQuantity(_ context.Context, userID string, version int64, key domain.LineKey, quantity int) (*domain.Cart, error) {
	m.LastVersion, m.LastKey = version, key
	if m.Err != nil {
		return nil, m.Err
	}
	line := domain.CartLine{ProductID: key.ProductID, VariantID: key.VariantID, Quantity: quantity}
	return &domain.Cart{UserID: userID, Version: version + 1, Lines: []domain.CartLine{line}}, nil
}

func (m *MockCartService) RemoveItem(_ context.Context, userID string, version int64, key domain.LineKey) (*domain.Cart, error) {
	m.LastVersion, m.LastKey = version, key
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.Cart{UserID: userID, Version: version + 1}, nil
}

func (m *MockCartService) ClearCart(_ context.Context, userID string, version int64) (*domain.Cart, error) {
	m.LastVersion = version
	if m.Err != nil {
		return nil, m.Err
	}
	return &domain.Cart{UserID: userID, Version: version + 1}, nil
}

type MockCheckout struct {
	Result  *service.CheckoutResult
	Err     error
	LastReq service.CheckoutRequest
}

func (m *MockCheckout) Checkout(_ context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	m.LastReq = req
	return m.Result, m.Err
}

type MockOrders struct {
	Order     *domain.Order
	Orders    []*domain.Order
	Err       error
	LastActor domain.Actor
	LastTo    domain.OrderStatus
	LastNote  string
}

func (m *MockOrders) GetOrder(_ context.Context, _ uuid.UUID, actor domain.Actor) (*domain.Order, error) {
	m.LastActor = actor
	return m.Order, m.Err
}

func (m *MockOrders) ListOrders(_ context.Context, actor domain.Actor) ([]*domain.Order, error) {
	m.LastActor = actor
	return m.Orders, m.Err
}

func (m *MockOrders) TransitionOrderStatus(_ context.Context, _ uuid.UUID, actor domain.Actor, to domain.OrderStatus, reason string) (*domain.Order, error) {
	m.LastActor, m.LastTo, m.LastNote = actor, to, reason
	if m.Err != nil {
		return nil, m.Err
	}
	o := *m.Order
	o.Status = to
	return &o, nil
}

type MockVouchers struct {
	Voucher *domain.Voucher
	Err     error
}

func (m *MockVouchers) Validate(context.Context, string, string, int64, time.Time) (*domain.Voucher, error) {
	return m.Voucher, m.Err
}
