package promo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const findByCodeSQL = `
		SELECT id, code, description, discount_type, discount_value,
		       minimum_order_amount, maximum_discount_amount, expiry_date,
		       usage_limit, used_count, is_active,
		       applicable_categories, excluded_categories
		FROM promo_codes
		WHERE code = upper($1)
	`

const redeemSQL = `
		UPDATE promo_codes
		SET used_count = used_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)
	`

func promoColumns() []string {
	return []string{
		"id", "code", "description", "discount_type", "discount_value",
		"minimum_order_amount", "maximum_discount_amount", "expiry_date",
		"usage_limit", "used_count", "is_active",
		"applicable_categories", "excluded_categories",
	}
}

func TestFindByCode(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expiry := time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(findByCodeSQL)).
		WithArgs("summer10").
		WillReturnRows(pgxmock.NewRows(promoColumns()).AddRow(
			"promo-1", "SUMMER10", "10% off summer items", DiscountPercentage, decimal.NewFromInt(10),
			decimal.Zero, decimal.Zero, expiry,
			0, 0, true,
			[]string{}, []string{},
		))

	repo := NewPostgresRepository(mock)
	p, err := repo.FindByCode(context.Background(), "summer10")
	require.NoError(t, err)
	require.Equal(t, "promo-1", p.ID)
	require.Equal(t, "SUMMER10", p.Code)
	require.Equal(t, DiscountPercentage, p.DiscountType)
	require.True(t, p.DiscountValue.Equal(decimal.NewFromInt(10)))
	require.True(t, p.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByCodeNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta(findByCodeSQL)).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(promoColumns()))

	repo := NewPostgresRepository(mock)
	_, err = repo.FindByCode(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemWithTx(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(redeemSQL)).
		WithArgs("promo-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPostgresRepository(mock)
	require.NoError(t, repo.RedeemWithTx(context.Background(), mock, "promo-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemWithTxExhausted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(redeemSQL)).
		WithArgs("promo-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresRepository(mock)
	err = repo.RedeemWithTx(context.Background(), mock, "promo-1")
	require.ErrorIs(t, err, ErrExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedeemWithTxError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta(redeemSQL)).
		WithArgs("promo-1").
		WillReturnError(errors.New("connection reset"))

	repo := NewPostgresRepository(mock)
	err = repo.RedeemWithTx(context.Background(), mock, "promo-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrExhausted)
	require.NoError(t, mock.ExpectationsWereMet())
}
