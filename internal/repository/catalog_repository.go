package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_market/internal/domain"
)

type variantRow struct {
	domain.Variant
	AttributesJSON string `db:"attributes"`
}

// GetProductsByIDs returns the requested products with their variants and
// current stock. Unknown IDs are skipped.
func (r *Repository) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT p.id, p.shop_id, p.title, p.image_url, p.price, p.active,
	                 COALESCE(s.quantity, 0) AS stock
	          FROM products p
	          LEFT JOIN stock_levels s ON s.product_id = p.id AND s.variant_id = ''
	          WHERE p.id IN (%s)
	          ORDER BY p.id`, placeholders(len(ids), 1))

	var products []domain.Product
	if err := r.db.SelectContext(ctx, &products, query, stringArgs(ids)...); err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	if len(products) == 0 {
		return products, nil
	}

	variantQuery := fmt.Sprintf(`SELECT v.id, v.product_id, v.name, v.attributes, v.image_url, v.price, v.active,
	                 s.quantity AS stock
	          FROM product_variants v
	          LEFT JOIN stock_levels s ON s.product_id = v.product_id AND s.variant_id = v.id
	          WHERE v.product_id IN (%s)
	          ORDER BY v.product_id, v.id`, placeholders(len(ids), 1))

	var rows []variantRow
	if err := r.db.SelectContext(ctx, &rows, variantQuery, stringArgs(ids)...); err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}

	byProduct := make(map[string][]domain.Variant)
	for _, row := range rows {
		v := row.Variant
		if row.AttributesJSON != "" {
			if err := json.Unmarshal([]byte(row.AttributesJSON), &v.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal variant attributes: %w", err)
			}
		}
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		products[i].Variants = byProduct[products[i].ID]
	}

	return products, nil
}

// CreateProduct inserts a product, its variants and their stock counters.
// A variant gets its own counter only when its Stock is set.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, shop_id, title, image_url, price, active) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.ShopID, p.Title, p.ImageURL, p.Price, p.Active)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	stockQuery := `INSERT INTO stock_levels (product_id, variant_id, quantity, updated_at)
	               VALUES ($1, $2, $3, CURRENT_TIMESTAMP)`
	if _, err := tx.ExecContext(ctx, stockQuery, p.ID, "", p.Stock); err != nil {
		return fmt.Errorf("insert product stock: %w", err)
	}

	for _, v := range p.Variants {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return fmt.Errorf("marshal variant attributes: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO product_variants (id, product_id, name, attributes, image_url, price, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			v.ID, p.ID, v.Name, string(attrs), v.ImageURL, v.Price, v.Active)
		if err != nil {
			return fmt.Errorf("insert variant: %w", err)
		}
		if v.Stock != nil {
			if _, err := tx.ExecContext(ctx, stockQuery, p.ID, v.ID, *v.Stock); err != nil {
				return fmt.Errorf("insert variant stock: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (r *Repository) GetShopsByIDs(ctx context.Context, ids []string) ([]domain.Shop, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT id, name, owner_id, shipping_fee, free_shipping_threshold
	          FROM shops WHERE id IN (%s)`, placeholders(len(ids), 1))

	var shops []domain.Shop
	if err := r.db.SelectContext(ctx, &shops, query, stringArgs(ids)...); err != nil {
		return nil, fmt.Errorf("query shops: %w", err)
	}
	return shops, nil
}

func (r *Repository) GetShop(ctx context.Context, id string) (*domain.Shop, error) {
	var shop domain.Shop
	err := r.db.GetContext(ctx, &shop,
		`SELECT id, name, owner_id, shipping_fee, free_shipping_threshold FROM shops WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}
	return &shop, nil
}

func (r *Repository) CreateShop(ctx context.Context, shop *domain.Shop) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO shops (id, name, owner_id, shipping_fee, free_shipping_threshold)
		 VALUES (:id, :name, :owner_id, :shipping_fee, :free_shipping_threshold)`, shop)
	if err != nil {
		return fmt.Errorf("insert shop: %w", err)
	}
	return nil
}

// GetAddress returns the address only when it belongs to userID.
func (r *Repository) GetAddress(ctx context.Context, addressID, userID string) (*domain.Address, error) {
	var addr domain.Address
	err := r.db.GetContext(ctx, &addr,
		`SELECT id, user_id, recipient_name, phone, street, ward, district, city
		 FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query address: %w", err)
	}
	return &addr, nil
}

func (r *Repository) CreateAddress(ctx context.Context, addr *domain.Address) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO addresses (id, user_id, recipient_name, phone, street, ward, district, city)
		 VALUES (:id, :user_id, :recipient_name, :phone, :street, :ward, :district, :city)`, addr)
	if err != nil {
		return fmt.Errorf("insert address: %w", err)
	}
	return nil
}
