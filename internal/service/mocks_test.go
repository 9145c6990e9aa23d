package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/fjod/go_market/internal/publisher"
	"github.com/fjod/go_market/internal/repository"
	"github.com/fjod/go_market/internal/store"
	"github.com/google/uuid"
)

// MockCatalog implements Catalog over fixed maps
type MockCatalog struct {
	Products map[string]domain.Product
	Shops    map[string]domain.Shop
	Err      error
}

func (m *MockCatalog) GetProductsByIDs(_ context.Context, ids []string) ([]domain.Product, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []domain.Product
	for _, id := range ids {
		if p, ok := m.Products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockCatalog) GetShopsByIDs(_ context.Context, ids []string) ([]domain.Shop, error) {
	var out []domain.Shop
	for _, id := range ids {
		if s, ok := m.Shops[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

type MockAddressBook struct {
	Addresses map[string]domain.Address
}

func (m *MockAddressBook) GetAddress(_ context.Context, addressID, userID string) (*domain.Address, error) {
	a, ok := m.Addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, repository.ErrAddressNotFound
	}
	return &a, nil
}

// MockOrderStore keeps orders in memory and enforces unique order numbers
// and compare-and-set status updates.
type MockOrderStore struct {
	mu      sync.Mutex
	orders  map[uuid.UUID]domain.Order
	numbers map[string]bool
	// CreateErrs are returned, in order, by the next CreateOrder calls
	CreateErrs []error
	UpdateErr  error
	Creates    int
	// AfterCreate runs after every successful CreateOrder
	AfterCreate func()
}

func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{orders: make(map[uuid.UUID]domain.Order), numbers: make(map[string]bool)}
}

func (m *MockOrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.Creates++
	err := m.create(order)
	hook := m.AfterCreate
	m.mu.Unlock()

	if err == nil && hook != nil {
		hook()
	}
	return err
}

func (m *MockOrderStore) create(order *domain.Order) error {
	if len(m.CreateErrs) > 0 {
		err := m.CreateErrs[0]
		m.CreateErrs = m.CreateErrs[1:]
		return err
	}
	if m.numbers[order.OrderNumber] {
		return repository.ErrDuplicateOrderNumber
	}
	m.numbers[order.OrderNumber] = true
	m.orders[order.ID] = *order
	return nil
}

func (m *MockOrderStore) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return &o, nil
}

func (m *MockOrderStore) ListOrdersByBuyer(_ context.Context, buyerID string) ([]*domain.Order, error) {
	return m.filter(func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (m *MockOrderStore) ListOrdersByShop(_ context.Context, shopID string) ([]*domain.Order, error) {
	return m.filter(func(o domain.Order) bool { return o.ShopID == shopID }), nil
}

func (m *MockOrderStore) filter(keep func(domain.Order) bool) []*domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if keep(o) {
			o := o
			out = append(out, &o)
		}
	}
	return out
}

func (m *MockOrderStore) UpdateOrderStatus(_ context.Context, order *domain.Order, from domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	stored, ok := m.orders[order.ID]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if stored.Status != from {
		return repository.ErrStaleOrder
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *MockOrderStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// RecordingLedger wraps a MemoryStore, records increments and can fail
// decrements of chosen counters.
type RecordingLedger struct {
	*store.MemoryStore
	mu            sync.Mutex
	Increments    []LedgerCall
	FailDecrement map[domain.StockKey]error
}

type LedgerCall struct {
	Ref string
	Key domain.StockKey
	Qty int
}

func NewRecordingLedger() *RecordingLedger {
	return &RecordingLedger{MemoryStore: store.NewMemoryStore(), FailDecrement: map[domain.StockKey]error{}}
}

func (l *RecordingLedger) Validate(ctx context.Context, plan map[domain.StockKey]int) ([]domain.LineShortage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.MemoryStore.Validate(ctx, plan)
}

func (l *RecordingLedger) Decrement(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	err := l.FailDecrement[key]
	l.mu.Unlock()
	if err != nil {
		q, _ := l.GetStock(key)
		return q, err
	}
	return l.MemoryStore.Decrement(ctx, ref, key, qty)
}

func (l *RecordingLedger) Increment(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	l.mu.Lock()
	l.Increments = append(l.Increments, LedgerCall{Ref: ref, Key: key, Qty: qty})
	l.mu.Unlock()
	return l.MemoryStore.Increment(ctx, ref, key, qty)
}

func (l *RecordingLedger) Stock(key domain.StockKey) int {
	q, _ := l.GetStock(key)
	return q
}

type MockVoucherFinder struct {
	Vouchers map[string]*domain.Voucher
}

func (m *MockVoucherFinder) FindVoucherByCode(_ context.Context, code string) (*domain.Voucher, error) {
	v, ok := m.Vouchers[code]
	if !ok {
		return nil, repository.ErrVoucherNotFound
	}
	c := *v
	return &c, nil
}

type MockCartStore struct {
	Cart      *domain.Cart
	Removed   []domain.LineKey
	RemoveErr error
}

func (m *MockCartStore) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	if m.Cart == nil {
		return &domain.Cart{UserID: userID}, nil
	}
	return m.Cart, nil
}

func (m *MockCartStore) RemoveLines(ctx context.Context, _ string, keys []domain.LineKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Removed = append(m.Removed, keys...)
	return m.RemoveErr
}

type MockDispatcher struct {
	mu   sync.Mutex
	Sent []publisher.Notification
}

func (m *MockDispatcher) Dispatch(n publisher.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
}

func (m *MockDispatcher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.Sent))
	for _, n := range m.Sent {
		out = append(out, n.Type)
	}
	return out
}

// SequenceNumbers hands out ORD-YYYYMMDD-0001, -0002, ... and repeats a
// suffix when Repeat is set.
type SequenceNumbers struct {
	mu     sync.Mutex
	n      int
	Repeat bool
}

func (s *SequenceNumbers) Next(t time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Repeat {
		s.n++
	}
	return FormatOrderNumber(t, fmt.Sprintf("%04d", s.n)), nil
}
