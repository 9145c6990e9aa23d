package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_market/internal/domain"
)

type movementKey struct {
	ref       string
	key       domain.StockKey
	direction Direction
}

// MemoryStore implements StockLedger for a single process
type MemoryStore struct {
	mu        sync.RWMutex
	counters  map[domain.StockKey]int
	movements map[movementKey]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters:  make(map[domain.StockKey]int),
		movements: make(map[movementKey]int),
	}
}

// SetStock sets the level of a counter, creating it when missing
func (s *MemoryStore) SetStock(key domain.StockKey, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = quantity
}

func (s *MemoryStore) GetStock(key domain.StockKey) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.counters[key]
	return q, ok
}

func (s *MemoryStore) Validate(_ context.Context, plan map[domain.StockKey]int) ([]domain.LineShortage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	available := make(map[domain.StockKey]int, len(plan))
	for key := range plan {
		available[key] = s.counters[key]
	}
	return shortages(plan, available), nil
}

func (s *MemoryStore) Decrement(_ context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.counters[key]
	if !exists {
		return 0, ErrCounterNotFound
	}

	mk := movementKey{ref: ref, key: key, direction: DirectionOut}
	if _, done := s.movements[mk]; done {
		return current, nil
	}

	if current < qty {
		return current, fmt.Errorf("%w: %s/%s has %d, requested %d", ErrInsufficientStock, key.ProductID, key.VariantID, current, qty)
	}

	s.counters[key] = current - qty
	s.movements[mk] = qty
	return current - qty, nil
}

func (s *MemoryStore) Increment(_ context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.counters[key]
	if !exists {
		return 0, ErrCounterNotFound
	}

	mk := movementKey{ref: ref, key: key, direction: DirectionIn}
	if _, done := s.movements[mk]; done {
		return current, nil
	}

	s.counters[key] = current + qty
	s.movements[mk] = qty
	return current + qty, nil
}
