package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	MinQuantity = 1
	MaxQuantity = 99

	removeLinesAttempts = 3
)

type Service struct {
	repo  Repository
	cache Cache
	clock domain.Clock
	log   *zap.Logger
	sfg   singleflight.Group
}

func NewService(repo Repository, cache Cache, clock domain.Clock, log *zap.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		clock: clock,
		log:   log,
	}
}

// GetCart returns the user's cart, or an empty cart with version 0 when the
// user has none yet.
func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(userID, func() (any, error) {
		cart, err := s.cache.Get(ctx, userID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.log.Warn("cache get failed", zap.String("user_id", userID), zap.Error(err))
		}

		cart, err = s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			now := s.clock.Now()
			return &domain.Cart{UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
		}
		if err != nil {
			return nil, err
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.cache.Set(ctx, userID, cart); err != nil {
				s.log.Warn("cache set failed", zap.String("user_id", userID), zap.Error(err))
			}
		}()

		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// callers sharing a flight must not share the cart
	cart := *v.(*domain.Cart)
	cart.Lines = append([]domain.CartLine(nil), cart.Lines...)
	return &cart, nil
}

// AddItem sets the quantity of the product/variant line, adding the line when
// the cart does not have it.
func (s *Service) AddItem(ctx context.Context, userID string, version int64, line domain.CartLine) (*domain.Cart, error) {
	if line.ProductID == "" {
		return nil, &domain.ValidationError{Field: "product_id", Reason: "required"}
	}
	if err := validateQuantity(line.Quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, version, func(c *domain.Cart) error {
		line.AddedAt = s.clock.Now()
		c.SetLine(line)
		return nil
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, userID string, version int64, key domain.LineKey, quantity int) (*domain.Cart, error) {
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, version, func(c *domain.Cart) error {
		for i := range c.Lines {
			if c.Lines[i].Key() == key {
				c.Lines[i].Quantity = quantity
				return nil
			}
		}
		return ErrLineNotFound
	})
}

func (s *Service) RemoveItem(ctx context.Context, userID string, version int64, key domain.LineKey) (*domain.Cart, error) {
	return s.mutate(ctx, userID, version, func(c *domain.Cart) error {
		if !c.RemoveLines(key) {
			return ErrLineNotFound
		}
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, userID string, version int64) (*domain.Cart, error) {
	return s.mutate(ctx, userID, version, func(c *domain.Cart) error {
		c.Lines = nil
		return nil
	})
}

// RemoveLines drops purchased lines after checkout. It is not tied to a
// client version, so it retries on concurrent edits.
func (s *Service) RemoveLines(ctx context.Context, userID string, keys []domain.LineKey) error {
	if len(keys) == 0 {
		return nil
	}

	for attempt := 0; attempt < removeLinesAttempts; attempt++ {
		cart, err := s.repo.GetCart(ctx, userID)
		if errors.Is(err, ErrCartNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		version := cart.Version
		if !cart.RemoveLines(keys...) {
			return nil
		}
		cart.UpdatedAt = s.clock.Now()

		err = s.repo.SaveCart(ctx, cart, version)
		if errors.Is(err, ErrCartConflict) {
			continue
		}
		if err != nil {
			return err
		}
		s.invalidateCache(userID)
		return nil
	}

	return &domain.ConflictError{Resource: "cart", Reason: "cart kept changing while removing purchased lines"}
}

// mutate applies fn to the stored cart if its version still equals version.
func (s *Service) mutate(ctx context.Context, userID string, version int64, fn func(*domain.Cart) error) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		now := s.clock.Now()
		cart = &domain.Cart{UserID: userID, CreatedAt: now}
	} else if err != nil {
		return nil, err
	}

	if cart.Version != version {
		// the client may have read a stale cached copy
		s.invalidateCache(userID)
		return nil, staleCart(version)
	}

	if err := fn(cart); err != nil {
		return nil, err
	}
	cart.UpdatedAt = s.clock.Now()

	err = s.repo.SaveCart(ctx, cart, version)
	if errors.Is(err, ErrCartConflict) {
		s.invalidateCache(userID)
		return nil, staleCart(version)
	}
	if err != nil {
		s.log.Error("cart save failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.invalidateCache(userID)
	return cart, nil
}

func (s *Service) invalidateCache(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.log.Warn("cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func validateQuantity(q int) error {
	if q < MinQuantity || q > MaxQuantity {
		return &domain.ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinQuantity, MaxQuantity, q),
		}
	}
	return nil
}

func staleCart(version int64) error {
	return &domain.ConflictError{
		Resource: "cart",
		Reason:   fmt.Sprintf("version %d is no longer current", version),
	}
}
