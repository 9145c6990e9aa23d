package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_market/internal/domain"
)

var (
	ErrCartNotFound = fmt.Errorf("cart %w", domain.ErrNotFound)
	ErrLineNotFound = fmt.Errorf("cart line %w", domain.ErrNotFound)
	// ErrCartConflict means the stored cart version differs from the expected one
	ErrCartConflict = errors.New("cart was modified concurrently")
)

// Repository stores one versioned cart per user.
type Repository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// SaveCart writes cart if the stored version still equals expectedVersion,
	// then sets cart.Version to the new version. Version 0 means the cart does
	// not exist yet.
	SaveCart(ctx context.Context, cart *domain.Cart, expectedVersion int64) error
}
