package store

import (
	"context"
	"errors"
	"sort"

	"github.com/fjod/go_market/internal/domain"
)

// Common errors returned by the ledger
var (
	ErrCounterNotFound   = errors.New("stock counter not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// StockLedger is the per-counter availability store. Every mutation carries
// a reference; repeating a mutation with the same reference, counter and
// direction is a no-op.
type StockLedger interface {
	// Validate returns the counters in plan whose requested quantity exceeds availability
	Validate(ctx context.Context, plan map[domain.StockKey]int) ([]domain.LineShortage, error)

	// Decrement atomically subtracts qty if at least qty is available.
	// On ErrInsufficientStock the returned value is the current availability.
	Decrement(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error)

	// Increment returns qty to the counter
	Increment(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error)
}

type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// RestockRef is the movement reference used when an order gives its stock back.
func RestockRef(orderID string) string {
	return "restock:" + orderID
}

func shortages(plan map[domain.StockKey]int, available map[domain.StockKey]int) []domain.LineShortage {
	var out []domain.LineShortage
	for key, requested := range plan {
		have := available[key]
		if requested > have {
			out = append(out, domain.LineShortage{
				ProductID: key.ProductID,
				VariantID: key.VariantID,
				Requested: requested,
				Available: have,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].VariantID < out[j].VariantID
	})
	return out
}
