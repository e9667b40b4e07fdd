package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("promo code not found")

	// ErrExhausted means the atomic usage increment found no headroom left.
	// During checkout this degrades the discount to zero instead of failing.
	ErrExhausted = errors.New("promo code usage limit exceeded")
)

// Querier matches the query methods shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	FindByCode(ctx context.Context, code string) (*PromoCode, error)
	FindByCodeWithTx(ctx context.Context, q Querier, code string) (*PromoCode, error)
	RedeemWithTx(ctx context.Context, q Querier, promoID string) error
	Save(ctx context.Context, p *PromoCode) error
}

type PostgresRepository struct {
	pool Querier
}

func NewPostgresRepository(pool Querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) FindByCode(ctx context.Context, code string) (*PromoCode, error) {
	return r.FindByCodeWithTx(ctx, r.pool, code)
}

// FindByCodeWithTx looks a code up case-insensitively. Codes are stored
// uppercase, so matching happens on upper($1).
func (r *PostgresRepository) FindByCodeWithTx(ctx context.Context, q Querier, code string) (*PromoCode, error) {
	var p PromoCode
	row := q.QueryRow(ctx, `
		SELECT id, code, description, discount_type, discount_value,
		       minimum_order_amount, maximum_discount_amount, expiry_date,
		       usage_limit, used_count, is_active,
		       applicable_categories, excluded_categories
		FROM promo_codes
		WHERE code = upper($1)
	`, code)
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.DiscountType, &p.DiscountValue,
		&p.MinimumOrderAmount, &p.MaximumDiscountAmount, &p.ExpiryDate,
		&p.UsageLimit, &p.UsedCount, &p.IsActive,
		&p.ApplicableCategories, &p.ExcludedCategories,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select promo code: %w", err)
	}
	return &p, nil
}

// RedeemWithTx increments used_count by exactly one, conditionally on the
// usage limit, in a single statement. Two concurrent checkouts can both read
// headroom of one; only the first update succeeds, the second affects zero
// rows and gets ErrExhausted.
func (r *PostgresRepository) RedeemWithTx(ctx context.Context, q Querier, promoID string) error {
	tag, err := q.Exec(ctx, `
		UPDATE promo_codes
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)
	`, promoID)
	if err != nil {
		return fmt.Errorf("redeem promo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExhausted
	}
	return nil
}

// Save is the admin/seed surface.
func (r *PostgresRepository) Save(ctx context.Context, p *PromoCode) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO promo_codes (id, code, description, discount_type, discount_value,
			minimum_order_amount, maximum_discount_amount, expiry_date,
			usage_limit, used_count, is_active, applicable_categories, excluded_categories)
		VALUES ($1, upper($2), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			minimum_order_amount = EXCLUDED.minimum_order_amount,
			maximum_discount_amount = EXCLUDED.maximum_discount_amount,
			expiry_date = EXCLUDED.expiry_date,
			usage_limit = EXCLUDED.usage_limit,
			is_active = EXCLUDED.is_active,
			applicable_categories = EXCLUDED.applicable_categories,
			excluded_categories = EXCLUDED.excluded_categories,
			updated_at = now()
	`, p.ID, p.Code, p.Description, p.DiscountType, p.DiscountValue,
		p.MinimumOrderAmount, p.MaximumDiscountAmount, p.ExpiryDate,
		p.UsageLimit, p.UsedCount, p.IsActive, p.ApplicableCategories, p.ExcludedCategories)
	if err != nil {
		return fmt.Errorf("save promo code: %w", err)
	}
	return nil
}
