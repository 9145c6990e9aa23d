package domain

type Shop struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	OwnerID     string `json:"owner_id" db:"owner_id"`
	ShippingFee int64  `json:"shipping_fee" db:"shipping_fee"`
	// FreeShippingThreshold waives ShippingFee for subtotals at or above it
	FreeShippingThreshold *int64 `json:"free_shipping_threshold,omitempty" db:"free_shipping_threshold"`
}

type Address struct {
	ID            string `json:"id" db:"id"`
	UserID        string `json:"user_id" db:"user_id"`
	RecipientName string `json:"recipient_name" db:"recipient_name"`
	Phone         string `json:"phone" db:"phone"`
	Street        string `json:"street" db:"street"`
	Ward          string `json:"ward" db:"ward"`
	District      string `json:"district" db:"district"`
	City          string `json:"city" db:"city"`
}

// ShippingAddress is the copy of an Address stored on an order.
type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Street        string `json:"street"`
	Ward          string `json:"ward"`
	District      string `json:"district"`
	City          string `json:"city"`
}

func (a *Address) Snapshot() ShippingAddress {
	return ShippingAddress{
		RecipientName: a.RecipientName,
		Phone:         a.Phone,
		Street:        a.Street,
		Ward:          a.Ward,
		District:      a.District,
		City:          a.City,
	}
}
