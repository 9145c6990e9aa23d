package cart

import (
	"context"
	"sync"

	"github.com/fjod/go_market/internal/domain"
)

type fakeRepo struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	gets  int
	// conflicts makes the next SaveCart calls fail with ErrCartConflict
	conflicts int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{carts: make(map[string]domain.Cart)}
}

func (f *fakeRepo) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++

	c, ok := f.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	c.Lines = append([]domain.CartLine(nil), c.Lines...)
	return &c, nil
}

func (f *fakeRepo) SaveCart(_ context.Context, cart *domain.Cart, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conflicts > 0 {
		f.conflicts--
		return ErrCartConflict
	}
	if f.carts[cart.UserID].Version != expectedVersion {
		return ErrCartConflict
	}

	stored := *cart
	stored.Version = expectedVersion + 1
	stored.Lines = append([]domain.CartLine(nil), cart.Lines...)
	f.carts[cart.UserID] = stored
	cart.Version = stored.Version
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	carts   map[string]*domain.Cart
	getErr  error
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{carts: make(map[string]*domain.Cart)}
}

func (f *fakeCache) Get(_ context.Context, userID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.carts[userID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return c, nil
}

func (f *fakeCache) Set(_ context.Context, userID string, cart *domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[userID] = cart
	return nil
}

func (f *fakeCache) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, userID)
	f.deletes++
	return nil
}
