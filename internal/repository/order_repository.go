package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

type orderRow struct {
	ID                 uuid.UUID      `db:"id"`
	OrderNumber        string         `db:"order_number"`
	BuyerID            string         `db:"buyer_id"`
	ShopID             string         `db:"shop_id"`
	AddressID          string         `db:"address_id"`
	ShippingAddress    string         `db:"shipping_address"`
	PaymentMethod      string         `db:"payment_method"`
	PaymentStatus      string         `db:"payment_status"`
	Status             string         `db:"status"`
	Subtotal           int64          `db:"subtotal"`
	ShippingFee        int64          `db:"shipping_fee"`
	Discount           int64          `db:"discount"`
	Total              int64          `db:"total"`
	VoucherCode        sql.NullString `db:"voucher_code"`
	Note               string         `db:"note"`
	StockHoldID        string         `db:"stock_hold_id"`
	CancellationReason sql.NullString `db:"cancellation_reason"`
	CompletedAt        sql.NullTime   `db:"completed_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

type lineRow struct {
	ID             uuid.UUID `db:"id"`
	OrderID        uuid.UUID `db:"order_id"`
	Position       int       `db:"position"`
	ProductID      string    `db:"product_id"`
	VariantID      string    `db:"variant_id"`
	StockVariantID string    `db:"stock_variant_id"`
	Title          string    `db:"title"`
	VariantName    string    `db:"variant_name"`
	ImageURL       string    `db:"image_url"`
	Attributes     string    `db:"attributes"`
	UnitPrice      int64     `db:"unit_price"`
	Quantity       int       `db:"quantity"`
	Subtotal       int64     `db:"subtotal"`
}

const orderColumns = `id, order_number, buyer_id, shop_id, address_id, shipping_address, payment_method,
	payment_status, status, subtotal, shipping_fee, discount, total, voucher_code, note, stock_hold_id,
	cancellation_reason, completed_at, created_at, updated_at`

const lineColumns = `id, order_id, position, product_id, variant_id, stock_variant_id, title, variant_name,
	image_url, attributes, unit_price, quantity, subtotal`

// CreateOrder writes the order and its lines in one transaction. When the
// order carries a voucher its usage count is incremented in the same
// transaction, failing with ErrVoucherExhausted if the limit was reached.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	addr, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if order.VoucherCode != nil {
		if err := claimVoucher(ctx, tx, *order.VoucherCode); err != nil {
			return err
		}
	}

	query := `INSERT INTO orders (` + orderColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.BuyerID,
		order.ShopID,
		order.AddressID,
		string(addr),
		string(order.PaymentMethod),
		string(order.PaymentStatus),
		string(order.Status),
		order.Subtotal,
		order.ShippingFee,
		order.Discount,
		order.Total,
		order.VoucherCode,
		order.Note,
		order.StockHoldID,
		order.CancellationReason,
		order.CompletedAt,
		order.CreatedAt,
		order.UpdatedAt)
	if insertErr != nil {
		if isUniqueViolation(insertErr, "order_number") {
			return ErrDuplicateOrderNumber
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	for i, line := range order.Lines {
		attrs, err := json.Marshal(line.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal line attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (`+lineColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			line.ID, order.ID, i, line.ProductID, line.VariantID, line.StockVariantID, line.Title,
			line.VariantName, line.ImageURL, string(attrs), line.UnitPrice, line.Quantity, line.Subtotal)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func claimVoucher(ctx context.Context, tx *sqlx.Tx, code string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE vouchers SET usage_count = usage_count + 1
		 WHERE code = $1 AND active = TRUE AND (usage_limit IS NULL OR usage_count < usage_limit)`,
		strings.ToUpper(code))
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment voucher usage: %w", err)
	}
	if n == 0 {
		return ErrVoucherExhausted
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	return r.hydrate(ctx, row)
}

func (r *Repository) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (r *Repository) ListOrdersByShop(ctx context.Context, shopID string) ([]*domain.Order, error) {
	return r.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE shop_id = $1 ORDER BY created_at DESC`, shopID)
}

func (r *Repository) listOrders(ctx context.Context, query string, arg string) ([]*domain.Order, error) {
	var rows []orderRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}

	orders := make([]*domain.Order, 0, len(rows))
	for _, row := range rows {
		o, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// UpdateOrderStatus writes the mutable columns of order, provided the stored
// status is still from. Every other column is write-once.
func (r *Repository) UpdateOrderStatus(ctx context.Context, order *domain.Order, from domain.OrderStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, payment_status = $2, completed_at = $3, cancellation_reason = $4, updated_at = $5
		 WHERE id = $6 AND status = $7`,
		string(order.Status), string(order.PaymentStatus), order.CompletedAt, order.CancellationReason, order.UpdatedAt,
		order.ID, string(from))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = r.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM orders WHERE id = $1`, order.ID)
	if err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if exists == 0 {
		return ErrOrderNotFound
	}
	return ErrStaleOrder
}

func (r *Repository) hydrate(ctx context.Context, row orderRow) (*domain.Order, error) {
	order := &domain.Order{
		ID:            row.ID,
		OrderNumber:   row.OrderNumber,
		BuyerID:       row.BuyerID,
		ShopID:        row.ShopID,
		AddressID:     row.AddressID,
		PaymentMethod: domain.PaymentMethod(row.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(row.PaymentStatus),
		Status:        domain.OrderStatus(row.Status),
		Subtotal:      row.Subtotal,
		ShippingFee:   row.ShippingFee,
		Discount:      row.Discount,
		Total:         row.Total,
		Note:          row.Note,
		StockHoldID:   row.StockHoldID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.VoucherCode.Valid {
		order.VoucherCode = &row.VoucherCode.String
	}
	if row.CancellationReason.Valid {
		order.CancellationReason = &row.CancellationReason.String
	}
	if row.CompletedAt.Valid {
		order.CompletedAt = &row.CompletedAt.Time
	}
	if err := json.Unmarshal([]byte(row.ShippingAddress), &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	var lines []lineRow
	if err := r.db.SelectContext(ctx, &lines,
		`SELECT `+lineColumns+` FROM order_lines WHERE order_id = $1 ORDER BY position`, row.ID); err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}

	order.Lines = make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		line := domain.OrderLine{
			ID:             l.ID,
			OrderID:        l.OrderID,
			ProductID:      l.ProductID,
			VariantID:      l.VariantID,
			StockVariantID: l.StockVariantID,
			Title:          l.Title,
			VariantName:    l.VariantName,
			ImageURL:       l.ImageURL,
			UnitPrice:      l.UnitPrice,
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal,
		}
		if err := json.Unmarshal([]byte(l.Attributes), &line.Attributes); err != nil {
			return nil, fmt.Errorf("unmarshal line attributes: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	return order, nil
}

func isUniqueViolation(err error, column string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, column)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		msg := liteErr.Error()
		return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
	}
	return false
}
