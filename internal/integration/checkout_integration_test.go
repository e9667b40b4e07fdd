//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/cart"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/catalog"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/checkout"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/db"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/inventory"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/promo"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/testutil"
)

type stack struct {
	catalog  *catalog.PostgresRepository
	ledger   *inventory.PostgresRepository
	promos   *promo.PostgresRepository
	orders   *order.PostgresRepository
	checkout *checkout.Service
}

func startStack(ctx context.Context, t *testing.T) *stack {
	t.Helper()

	pgC, dsn := testutil.StartPostgres(ctx, t)
	t.Cleanup(func() { testutil.Terminate(t, pgC) })

	logger := log.New(io.Discard, "", log.LstdFlags)
	require.NoError(t, db.RunMigrations(dsn, logger))

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := &stack{
		catalog: catalog.NewPostgresRepository(pool),
		ledger:  inventory.NewPostgresRepository(pool),
		promos:  promo.NewPostgresRepository(pool),
		orders:  order.NewPostgresRepository(pool),
	}
	s.checkout = checkout.NewService(pool, s.catalog, s.ledger, s.promos, s.orders, nil, logger)
	return s
}

func seedProduct(ctx context.Context, t *testing.T, s *stack, id, name string, price string, stock int) {
	t.Helper()
	require.NoError(t, s.catalog.Upsert(ctx, &catalog.Product{
		ID:            id,
		Name:          name,
		Category:      "apparel",
		BasePrice:     decimal.RequireFromString(price),
		StockQuantity: stock,
	}))
}

func cartOf(id, name, price string, qty int) *cart.Cart {
	return &cart.Cart{Lines: []cart.Line{{
		ProductID: id,
		Name:      name,
		UnitPrice: decimal.RequireFromString(price),
		Quantity:  qty,
	}}}
}

func TestCheckoutEndToEnd(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := startStack(ctx, t)
	seedProduct(ctx, t, s, "p1", "Sneakers", "25.50", 5)

	require.NoError(t, s.promos.Save(ctx, &promo.PromoCode{
		ID:            "promo-1",
		Code:          "SUMMER10",
		DiscountType:  promo.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ExpiryDate:    time.Now().AddDate(0, 1, 0),
		IsActive:      true,
	}))

	c := cartOf("p1", "Sneakers", "25.50", 1)
	c.Promo = &cart.PromoApplication{Code: "SUMMER10", PromoID: "promo-1"}

	o, err := s.checkout.Checkout(ctx, "user-1", c)
	require.NoError(t, err)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("22.95")), "total %s", o.TotalAmount)
	require.True(t, c.IsEmpty())

	level, err := s.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 4, level.Available)
	require.True(t, level.InStock)

	fetched, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "user-1", fetched.UserID)
	require.NotNil(t, fetched.Promo)
	require.Equal(t, "SUMMER10", fetched.Promo.Code)
	require.Len(t, fetched.Items, 1)
	require.Equal(t, order.StatusProcessing, fetched.DeliveryStatus)

	saved, err := s.promos.FindByCode(ctx, "summer10")
	require.NoError(t, err)
	require.Equal(t, 1, saved.UsedCount)

	page, total, err := s.orders.ListByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, page, 1)
}

func TestCheckoutInsufficientStockLeavesNoTrace(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := startStack(ctx, t)
	seedProduct(ctx, t, s, "p1", "Sneakers", "25.50", 1)

	_, err := s.checkout.Checkout(ctx, "user-1", cartOf("p1", "Sneakers", "25.50", 3))
	var sf *checkout.StockFailure
	require.ErrorAs(t, err, &sf)
	require.Equal(t, 3, sf.Lines[0].Requested)
	require.Equal(t, 1, sf.Lines[0].Available)

	level, err := s.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, level.Available)

	_, total, err := s.orders.ListByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Zero(t, total)

	// Retrying after a failure must still work.
	o, err := s.checkout.Checkout(ctx, "user-1", cartOf("p1", "Sneakers", "25.50", 1))
	require.NoError(t, err)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.50")))
}

func TestCheckoutConcurrentBuyers(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := startStack(ctx, t)
	seedProduct(ctx, t, s, "p1", "Sneakers", "25.50", 3)

	const buyers = 4
	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.checkout.Checkout(ctx, "user-1", cartOf("p1", "Sneakers", "25.50", 2))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var sf *checkout.StockFailure
		require.ErrorAs(t, err, &sf)
	}
	require.Equal(t, 1, succeeded, "only one buyer can win two of three units")

	level, err := s.ledger.Get(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, level.Available)

	_, total, err := s.orders.ListByUser(ctx, "user-1", 1)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestCheckoutPromoUsageLimitRace(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := startStack(ctx, t)
	seedProduct(ctx, t, s, "p1", "Sneakers", "25.50", 10)

	require.NoError(t, s.promos.Save(ctx, &promo.PromoCode{
		ID:            "promo-1",
		Code:          "ONCE",
		DiscountType:  promo.DiscountFixed,
		DiscountValue: decimal.NewFromInt(5),
		ExpiryDate:    time.Now().AddDate(0, 1, 0),
		UsageLimit:    1,
		IsActive:      true,
	}))

	const buyers = 3
	totals := make([]decimal.Decimal, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := cartOf("p1", "Sneakers", "25.50", 1)
			c.Promo = &cart.PromoApplication{Code: "ONCE", PromoID: "promo-1"}
			o, err := s.checkout.Checkout(ctx, "user-"+string(rune('a'+i)), c)
			if err == nil {
				totals[i] = o.TotalAmount
			}
		}(i)
	}
	wg.Wait()

	discounted := 0
	for _, total := range totals {
		if total.Equal(decimal.RequireFromString("20.50")) {
			discounted++
		} else {
			require.True(t, total.Equal(decimal.RequireFromString("25.50")), "total %s", total)
		}
	}
	require.Equal(t, 1, discounted, "the single redemption must be granted exactly once")

	saved, err := s.promos.FindByCode(ctx, "ONCE")
	require.NoError(t, err)
	require.Equal(t, 1, saved.UsedCount)
}

func TestDeliveryStatusUpdateRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	s := startStack(ctx, t)
	seedProduct(ctx, t, s, "p1", "Sneakers", "25.50", 2)

	o, err := s.checkout.Checkout(ctx, "user-1", cartOf("p1", "Sneakers", "25.50", 1))
	require.NoError(t, err)

	require.NoError(t, s.orders.UpdateDeliveryStatus(ctx, o.ID, order.StatusShipped))
	fetched, err := s.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusShipped, fetched.DeliveryStatus)

	err = s.orders.UpdateDeliveryStatus(ctx, "missing", order.StatusDelivered)
	require.True(t, errors.Is(err, order.ErrNotFound))
}
