package domain

// StockKey names one availability counter. An empty VariantID is the
// product-level counter.
type StockKey struct {
	ProductID string `json:"product_id" db:"product_id"`
	VariantID string `json:"variant_id,omitempty" db:"variant_id"`
}

type Product struct {
	ID       string    `json:"id" db:"id"`
	ShopID   string    `json:"shop_id" db:"shop_id"`
	Title    string    `json:"title" db:"title"`
	ImageURL string    `json:"image_url" db:"image_url"`
	Price    int64     `json:"price" db:"price"`
	Stock    int       `json:"stock" db:"stock"`
	Active   bool      `json:"active" db:"active"`
	Variants []Variant `json:"variants,omitempty" db:"-"`
}

type Variant struct {
	ID         string            `json:"id" db:"id"`
	ProductID  string            `json:"product_id" db:"product_id"`
	Name       string            `json:"name" db:"name"`
	Attributes map[string]string `json:"attributes,omitempty" db:"-"`
	ImageURL   string            `json:"image_url,omitempty" db:"image_url"`
	// Price and Stock override the product values when set
	Price  *int64 `json:"price,omitempty" db:"price"`
	Stock  *int   `json:"stock,omitempty" db:"stock"`
	Active bool   `json:"active" db:"active"`
}

func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// UnitPrice resolves the price a line pays. The variant must belong to p.
func (p *Product) UnitPrice(v *Variant) int64 {
	if v != nil && v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// StockKey resolves which counter a purchase of v draws from.
func (p *Product) StockKey(v *Variant) StockKey {
	if v != nil && v.Stock != nil {
		return StockKey{ProductID: p.ID, VariantID: v.ID}
	}
	return StockKey{ProductID: p.ID}
}

// Available returns the stock visible to buyers of v.
func (p *Product) Available(v *Variant) int {
	if v != nil && v.Stock != nil {
		return *v.Stock
	}
	return p.Stock
}

func (p *Product) IsPurchasable(v *Variant) bool {
	if !p.Active {
		return false
	}
	return v == nil || v.Active
}

// ImageFor prefers the variant image when one is configured.
func (p *Product) ImageFor(v *Variant) string {
	if v != nil && v.ImageURL != "" {
		return v.ImageURL
	}
	return p.ImageURL
}
