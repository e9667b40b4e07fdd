package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("product not found")

// Querier matches the query methods shared by *pgxpool.Pool and pgx.Tx,
// so the same repository code serves pooled reads and transactional reads.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (*Product, error)
	GetWithTx(ctx context.Context, q Querier, productID string) (*Product, error)
	Upsert(ctx context.Context, p *Product) error
}

type PostgresRepository struct {
	pool Querier
}

func NewPostgresRepository(pool Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (*Product, error) {
	return r.GetWithTx(ctx, r.pool, productID)
}

func (r *PostgresRepository) GetWithTx(ctx context.Context, q Querier, productID string) (*Product, error) {
	var p Product
	row := q.QueryRow(ctx, `
		SELECT id, name, category, base_price, stock_quantity, in_stock, delivery_lead_days
		FROM products
		WHERE id = $1
	`, productID)
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.BasePrice, &p.StockQuantity, &p.InStock, &p.DeliveryLeadDays); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT size_name, price
		FROM product_size_prices
		WHERE product_id = $1
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("select size prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var size string
		var price decimal.Decimal
		if err := rows.Scan(&size, &price); err != nil {
			return nil, fmt.Errorf("scan size price: %w", err)
		}
		if p.SizePrices == nil {
			p.SizePrices = make(map[string]decimal.Decimal)
		}
		p.SizePrices[size] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("size price rows: %w", err)
	}

	return &p, nil
}

// Upsert is the admin/seed surface. Stock and in_stock are written together;
// in_stock is derived from the quantity, never supplied by the caller.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Product) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO products (id, name, category, base_price, stock_quantity, in_stock, delivery_lead_days)
		VALUES ($1, $2, $3, $4, $5, $5 > 0, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			base_price = EXCLUDED.base_price,
			stock_quantity = EXCLUDED.stock_quantity,
			in_stock = EXCLUDED.stock_quantity > 0,
			delivery_lead_days = EXCLUDED.delivery_lead_days,
			updated_at = now()
	`, p.ID, p.Name, p.Category, p.BasePrice, p.StockQuantity, p.DeliveryLeadDays)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	if _, err := r.pool.Exec(ctx, `DELETE FROM product_size_prices WHERE product_id = $1`, p.ID); err != nil {
		return fmt.Errorf("clear size prices: %w", err)
	}
	for size, price := range p.SizePrices {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO product_size_prices (product_id, size_name, price)
			VALUES ($1, $2, $3)
		`, p.ID, size, price)
		if err != nil {
			return fmt.Errorf("insert size price: %w", err)
		}
	}
	return nil
}
