package pricing

import (
	"fmt"

	"github.com/fjod/go_market/internal/domain"
)

// Catalog is a lookup of products by ID.
type Catalog map[string]*domain.Product

func NewCatalog(products []domain.Product) Catalog {
	c := make(Catalog, len(products))
	for i := range products {
		c[products[i].ID] = &products[i]
	}
	return c
}

type GroupLine struct {
	Line      domain.CartLine
	Product   *domain.Product
	Variant   *domain.Variant
	StockKey  domain.StockKey
	UnitPrice int64
	Subtotal  int64
}

func (l GroupLine) Purchasable() bool {
	return l.Product.IsPurchasable(l.Variant)
}

// ShopGroup is one prospective order: the cart lines a single shop sells.
type ShopGroup struct {
	ShopID   string
	Lines    []GroupLine
	Subtotal int64
}

// StockPlan sums requested quantities per stock counter, since several
// variants without their own stock share the product counter.
func (g ShopGroup) StockPlan() (map[domain.StockKey]int, []domain.StockKey) {
	plan := make(map[domain.StockKey]int, len(g.Lines))
	keys := make([]domain.StockKey, 0, len(g.Lines))
	for _, l := range g.Lines {
		if _, seen := plan[l.StockKey]; !seen {
			keys = append(keys, l.StockKey)
		}
		plan[l.StockKey] += l.Line.Quantity
	}
	return plan, keys
}

func (g ShopGroup) LineKeys() []domain.LineKey {
	keys := make([]domain.LineKey, 0, len(g.Lines))
	for _, l := range g.Lines {
		keys = append(keys, l.Line.Key())
	}
	return keys
}

// Group splits cart lines by owning shop and prices them. Groups are
// returned in the order their shop first appears in the cart.
func Group(lines []domain.CartLine, catalog Catalog) ([]ShopGroup, error) {
	var groups []ShopGroup
	index := make(map[string]int)

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &domain.ValidationError{
				Field:  "quantity",
				Reason: fmt.Sprintf("product %s has quantity %d", line.ProductID, line.Quantity),
			}
		}

		product, ok := catalog[line.ProductID]
		if !ok {
			return nil, &domain.ProductNotFoundError{ProductID: line.ProductID, VariantID: line.VariantID}
		}

		var variant *domain.Variant
		if line.VariantID != "" {
			variant, ok = product.Variant(line.VariantID)
			if !ok {
				return nil, &domain.ProductNotFoundError{ProductID: line.ProductID, VariantID: line.VariantID}
			}
		}

		unit := product.UnitPrice(variant)
		gl := GroupLine{
			Line:      line,
			Product:   product,
			Variant:   variant,
			StockKey:  product.StockKey(variant),
			UnitPrice: unit,
			Subtotal:  unit * int64(line.Quantity),
		}

		i, ok := index[product.ShopID]
		if !ok {
			i = len(groups)
			index[product.ShopID] = i
			groups = append(groups, ShopGroup{ShopID: product.ShopID})
		}
		groups[i].Lines = append(groups[i].Lines, gl)
		groups[i].Subtotal += gl.Subtotal
	}

	return groups, nil
}

// ProductIDs lists the distinct products a cart references.
func ProductIDs(lines []domain.CartLine) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}
