package domain

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentMethodCOD PaymentMethod = "COD"
)

func (m PaymentMethod) IsKnown() bool {
	return m == PaymentMethodCOD
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderNumber     string          `json:"order_number"`
	BuyerID         string          `json:"buyer_id"`
	ShopID          string          `json:"shop_id"`
	AddressID       string          `json:"address_id"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          OrderStatus     `json:"status"`
	Subtotal        int64           `json:"subtotal"`
	ShippingFee     int64           `json:"shipping_fee"`
	Discount        int64           `json:"discount"`
	Total           int64           `json:"total"`
	VoucherCode     *string         `json:"voucher_code,omitempty"`
	Note            string          `json:"note,omitempty"`
	// StockHoldID references the ledger movements that reserved this order's stock
	StockHoldID        string      `json:"-"`
	CancellationReason *string     `json:"cancellation_reason,omitempty"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
	Lines              []OrderLine `json:"lines"`
}

// OrderLine is a write-once snapshot of the catalog at checkout time.
type OrderLine struct {
	ID             uuid.UUID         `json:"id"`
	OrderID        uuid.UUID         `json:"order_id"`
	ProductID      string            `json:"product_id"`
	VariantID      string            `json:"variant_id,omitempty"`
	StockVariantID string            `json:"-"`
	Title          string            `json:"title"`
	VariantName    string            `json:"variant_name,omitempty"`
	ImageURL       string            `json:"image_url,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
	UnitPrice      int64             `json:"unit_price"`
	Quantity       int               `json:"quantity"`
	Subtotal       int64             `json:"subtotal"`
}

func (l OrderLine) StockKey() StockKey {
	return StockKey{ProductID: l.ProductID, VariantID: l.StockVariantID}
}

// StockPlan sums quantities per counter.
func (o *Order) StockPlan() map[StockKey]int {
	plan := make(map[StockKey]int, len(o.Lines))
	for _, l := range o.Lines {
		plan[l.StockKey()] += l.Quantity
	}
	return plan
}

func (o *Order) IsOwnedBy(userID string) bool {
	return o.BuyerID == userID
}
