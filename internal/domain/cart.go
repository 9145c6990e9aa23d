package domain

import "time"

type Cart struct {
	ID        string     `json:"-" bson:"_id,omitempty"`
	UserID    string     `json:"user_id" bson:"user_id"`
	Lines     []CartLine `json:"lines" bson:"lines"`
	Version   int64      `json:"version" bson:"version"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

type CartLine struct {
	ProductID string    `json:"product_id" bson:"product_id"`
	VariantID string    `json:"variant_id,omitempty" bson:"variant_id,omitempty"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
}

type LineKey struct {
	ProductID string
	VariantID string
}

func (l CartLine) Key() LineKey {
	return LineKey{ProductID: l.ProductID, VariantID: l.VariantID}
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// SetLine replaces the quantity of an existing line or appends a new one,
// keeping at most one line per product/variant pair.
func (c *Cart) SetLine(line CartLine) {
	for i := range c.Lines {
		if c.Lines[i].Key() == line.Key() {
			c.Lines[i].Quantity = line.Quantity
			c.Lines[i].AddedAt = line.AddedAt
			return
		}
	}
	c.Lines = append(c.Lines, line)
}

// RemoveLines drops every line whose key is in keys and reports whether
// anything changed.
func (c *Cart) RemoveLines(keys ...LineKey) bool {
	drop := make(map[LineKey]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	kept := c.Lines[:0]
	for _, l := range c.Lines {
		if _, ok := drop[l.Key()]; !ok {
			kept = append(kept, l)
		}
	}
	changed := len(kept) != len(c.Lines)
	c.Lines = kept
	return changed
}
