package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_market/internal/domain"
	"github.com/jmoiron/sqlx"
)

// SQLStore implements StockLedger on the stock_levels table. Each mutation
// is one conditional UPDATE so concurrent instances never oversell; the
// stock_movements journal makes mutations idempotent per reference.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(db *sqlx.DB, clock domain.Clock) *SQLStore {
	return &SQLStore{db: db, now: clock.Now}
}

// Movement is one journal row.
type Movement struct {
	Ref       string    `db:"ref"`
	ProductID string    `db:"product_id"`
	VariantID string    `db:"variant_id"`
	Direction Direction `db:"direction"`
	Quantity  int       `db:"quantity"`
	CreatedAt time.Time `db:"created_at"`
}

func (m Movement) Key() domain.StockKey {
	return domain.StockKey{ProductID: m.ProductID, VariantID: m.VariantID}
}

func (s *SQLStore) SetStock(ctx context.Context, key domain.StockKey, quantity int) error {
	query := `INSERT INTO stock_levels (product_id, variant_id, quantity, updated_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (product_id, variant_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key.ProductID, key.VariantID, quantity, s.now()); err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	return nil
}

func (s *SQLStore) GetStock(ctx context.Context, key domain.StockKey) (int, error) {
	var q int
	err := s.db.GetContext(ctx, &q,
		`SELECT quantity FROM stock_levels WHERE product_id = $1 AND variant_id = $2`,
		key.ProductID, key.VariantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCounterNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return q, nil
}

func (s *SQLStore) Validate(ctx context.Context, plan map[domain.StockKey]int) ([]domain.LineShortage, error) {
	available := make(map[domain.StockKey]int, len(plan))
	for key := range plan {
		q, err := s.GetStock(ctx, key)
		if errors.Is(err, ErrCounterNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		available[key] = q
	}
	return shortages(plan, available), nil
}

func (s *SQLStore) Decrement(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	var remaining, available int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		applied, err := s.journal(ctx, tx, ref, key, DirectionOut, qty)
		if err != nil {
			return err
		}
		if !applied {
			return tx.GetContext(ctx, &remaining,
				`SELECT quantity FROM stock_levels WHERE product_id = $1 AND variant_id = $2`,
				key.ProductID, key.VariantID)
		}

		err = tx.GetContext(ctx, &remaining,
			`UPDATE stock_levels SET quantity = quantity - $1, updated_at = $2
			 WHERE product_id = $3 AND variant_id = $4 AND quantity >= $1
			 RETURNING quantity`,
			qty, s.now(), key.ProductID, key.VariantID)
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		errAvail := tx.GetContext(ctx, &available,
			`SELECT quantity FROM stock_levels WHERE product_id = $1 AND variant_id = $2`,
			key.ProductID, key.VariantID)
		if errors.Is(errAvail, sql.ErrNoRows) {
			return ErrCounterNotFound
		}
		if errAvail != nil {
			return errAvail
		}
		return fmt.Errorf("%w: %s/%s has %d, requested %d", ErrInsufficientStock, key.ProductID, key.VariantID, available, qty)
	})

	if errors.Is(err, ErrInsufficientStock) {
		return available, err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCounterNotFound
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *SQLStore) Increment(ctx context.Context, ref string, key domain.StockKey, qty int) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}

	var level int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		applied, err := s.journal(ctx, tx, ref, key, DirectionIn, qty)
		if err != nil {
			return err
		}
		if !applied {
			return tx.GetContext(ctx, &level,
				`SELECT quantity FROM stock_levels WHERE product_id = $1 AND variant_id = $2`,
				key.ProductID, key.VariantID)
		}
		return tx.GetContext(ctx, &level,
			`UPDATE stock_levels SET quantity = quantity + $1, updated_at = $2
			 WHERE product_id = $3 AND variant_id = $4
			 RETURNING quantity`,
			qty, s.now(), key.ProductID, key.VariantID)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCounterNotFound
	}
	if err != nil {
		return 0, err
	}
	return level, nil
}

// journal records a movement and reports false when it was already recorded.
func (s *SQLStore) journal(ctx context.Context, tx *sqlx.Tx, ref string, key domain.StockKey, dir Direction, qty int) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO stock_movements (ref, product_id, variant_id, direction, quantity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (ref, product_id, variant_id, direction) DO NOTHING`,
		ref, key.ProductID, key.VariantID, string(dir), qty, s.now())
	if err != nil {
		return false, fmt.Errorf("record stock movement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record stock movement: %w", err)
	}
	return n == 1, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// OrphanedHolds returns checkout decrements older than before that were
// neither turned into an order nor released.
func (s *SQLStore) OrphanedHolds(ctx context.Context, before time.Time, limit int) ([]Movement, error) {
	query := `SELECT m.ref, m.product_id, m.variant_id, m.direction, m.quantity, m.created_at
	          FROM stock_movements m
	          WHERE m.direction = 'out' AND m.created_at < $1
	            AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.stock_hold_id = m.ref)
	            AND NOT EXISTS (
	                SELECT 1 FROM stock_movements r
	                WHERE r.ref = m.ref AND r.product_id = m.product_id
	                  AND r.variant_id = m.variant_id AND r.direction = 'in')
	          ORDER BY m.created_at
	          LIMIT $2`

	var holds []Movement
	if err := s.db.SelectContext(ctx, &holds, query, before, limit); err != nil {
		return nil, fmt.Errorf("query orphaned holds: %w", err)
	}
	return holds, nil
}

// PendingRestock is stock a cancelled or returned order has not yet given back.
type PendingRestock struct {
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	VariantID string `db:"variant_id"`
	Quantity  int    `db:"quantity"`
}

func (p PendingRestock) Key() domain.StockKey {
	return domain.StockKey{ProductID: p.ProductID, VariantID: p.VariantID}
}

func (s *SQLStore) PendingRestocks(ctx context.Context, before time.Time, limit int) ([]PendingRestock, error) {
	query := `SELECT o.id AS order_id, l.product_id, l.stock_variant_id AS variant_id, SUM(l.quantity) AS quantity
	          FROM orders o
	          JOIN order_lines l ON l.order_id = o.id
	          WHERE o.status IN ('CANCELLED', 'RETURNED') AND o.updated_at < $1
	            AND NOT EXISTS (
	                SELECT 1 FROM stock_movements m
	                WHERE m.ref = 'restock:' || o.id AND m.product_id = l.product_id
	                  AND m.variant_id = l.stock_variant_id AND m.direction = 'in')
	          GROUP BY o.id, l.product_id, l.stock_variant_id
	          ORDER BY o.id
	          LIMIT $2`

	var pending []PendingRestock
	if err := s.db.SelectContext(ctx, &pending, query, before, limit); err != nil {
		return nil, fmt.Errorf("query pending restocks: %w", err)
	}
	return pending, nil
}
