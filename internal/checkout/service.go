package checkout

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/cart"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/catalog"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/inventory"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/promo"
)

// defaultLeadDays is used when no product in the order declares a delivery
// lead time.
const defaultLeadDays = 14

// TxBeginner opens the single transaction a checkout runs in. Satisfied by
// *pgxpool.Pool.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// EventPublisher is the post-commit notification surface. Publishing is best
// effort: a failed publish is logged, never propagated, because the order has
// already durably committed.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, o order.Order) error
	StockDepleted(ctx context.Context, productID, name string) error
}

// Service converts carts into orders. Every checkout runs inside one
// database transaction: stock verification, the conditional decrement, promo
// redemption and the order insert commit together or not at all.
type Service struct {
	db        TxBeginner
	catalog   catalog.Repository
	ledger    inventory.TransactionalRepository
	promos    promo.Repository
	orders    order.Repository
	publisher EventPublisher
	logger    *log.Logger

	now      func() time.Time
	newID    func() string
	tracking func() string
}

// NewService wires the checkout orchestrator. publisher may be nil when the
// deployment runs without a broker.
func NewService(db TxBeginner, cat catalog.Repository, ledger inventory.TransactionalRepository,
	promos promo.Repository, orders order.Repository, publisher EventPublisher, logger *log.Logger) *Service {
	return &Service{
		db:        db,
		catalog:   cat,
		ledger:    ledger,
		promos:    promos,
		orders:    orders,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		tracking:  newTrackingNumber,
	}
}

// Checkout converts the cart into an order. On success the cart is cleared;
// on any failure the cart, stock levels and promo usage counters are exactly
// as they were before the call.
func (s *Service) Checkout(ctx context.Context, userID string, c *cart.Cart) (*order.Order, error) {
	if userID == "" {
		return nil, &ValidationFailure{Reason: "user is required"}
	}
	if c == nil || c.IsEmpty() {
		return nil, &ValidationFailure{Reason: "cart is empty"}
	}
	for _, line := range c.Lines {
		if line.Quantity <= 0 {
			return nil, &ValidationFailure{Reason: "cart contains a line with non-positive quantity"}
		}
	}

	lines := aggregateLines(c.Lines)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, &TransientFailure{Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock stock rows first so the catalog reads below see values that
	// cannot move until we commit.
	short, err := s.ledger.VerifyWithTx(ctx, tx, lines)
	if err != nil {
		return nil, &TransientFailure{Err: err}
	}
	if len(short) > 0 {
		return nil, &StockFailure{Lines: short}
	}

	products := make(map[string]*catalog.Product, len(lines))
	for _, line := range lines {
		p, err := s.catalog.GetWithTx(ctx, tx, line.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &IntegrityViolation{ProductID: line.ProductID, Reason: "product no longer exists"}
		}
		if err != nil {
			return nil, &TransientFailure{Err: err}
		}
		products[line.ProductID] = p
	}

	subtotal := c.Subtotal()
	promoSnap := s.applyPromo(ctx, tx, c, subtotal, products)

	short, err = s.ledger.DecrementWithTx(ctx, tx, lines)
	if err != nil {
		return nil, &TransientFailure{Err: err}
	}
	if len(short) > 0 {
		return nil, &StockFailure{Lines: short}
	}

	if promoSnap != nil {
		switch err := s.promos.RedeemWithTx(ctx, tx, promoSnap.PromoID); {
		case errors.Is(err, promo.ErrExhausted):
			// Lost the race for the last redemption. The order still goes
			// through, just without the discount.
			s.logger.Printf("promo %s exhausted during checkout for user %s, proceeding without discount", promoSnap.Code, userID)
			promoSnap = nil
		case err != nil:
			return nil, &TransientFailure{Err: err}
		}
	}

	total := subtotal
	if promoSnap != nil {
		total = subtotal.Sub(promoSnap.DiscountAmount)
	}

	placed := s.now()
	o := order.Order{
		ID:                    s.newID(),
		UserID:                userID,
		Items:                 orderItems(c.Lines),
		Subtotal:              subtotal,
		Promo:                 promoSnap,
		TotalAmount:           total,
		DeliveryStatus:        order.StatusProcessing,
		EstimatedDeliveryDate: placed.AddDate(0, 0, leadDays(lines, products)),
		TrackingNumber:        s.tracking(),
		OrderDate:             placed,
	}
	if err := s.orders.CreateWithTx(ctx, tx, o); err != nil {
		return nil, &TransientFailure{Err: err}
	}

	depleted := depletedProducts(lines, products)

	if err := tx.Commit(ctx); err != nil {
		return nil, &TransientFailure{Err: err}
	}

	c.Clear()
	s.publish(ctx, o, depleted)
	return &o, nil
}

// ValidatePromo evaluates a code against the current cart and, when it
// qualifies, attaches it. The stored discount amount is advisory; checkout
// recomputes it at commit time.
func (s *Service) ValidatePromo(ctx context.Context, c *cart.Cart, code string) (*cart.PromoApplication, error) {
	if c == nil || c.IsEmpty() {
		return nil, &ValidationFailure{Reason: "cart is empty"}
	}

	p, err := s.promos.FindByCode(ctx, code)
	if errors.Is(err, promo.ErrNotFound) {
		return nil, &PromoFailure{Code: code, Reason: "promo code not found"}
	}
	if err != nil {
		return nil, &TransientFailure{Err: err}
	}

	if v := p.Validate(s.now()); !v.Valid {
		return nil, &PromoFailure{Code: p.Code, Reason: v.Reason}
	}

	eligible, err := s.eligibleLines(ctx, c)
	if err != nil {
		return nil, err
	}
	res := p.ComputeDiscount(c.Subtotal(), eligible)
	if !res.Discount.IsPositive() {
		return nil, &PromoFailure{Code: p.Code, Reason: res.Reason}
	}

	app := &cart.PromoApplication{
		Code:           p.Code,
		DiscountAmount: res.Discount,
		PromoID:        p.ID,
		DiscountType:   string(p.DiscountType),
		DiscountValue:  p.DiscountValue,
	}
	c.Promo = app
	return app, nil
}

// RemovePromo detaches any applied code. Removing from a cart without one is
// a no-op.
func (s *Service) RemovePromo(c *cart.Cart) {
	if c != nil {
		c.Promo = nil
	}
}

// applyPromo recomputes the discount inside the checkout transaction. Any
// rejection degrades to a nil snapshot; a stale or invalid promo must never
// abort an otherwise sound checkout.
func (s *Service) applyPromo(ctx context.Context, tx pgx.Tx, c *cart.Cart, subtotal decimal.Decimal, products map[string]*catalog.Product) *order.PromoSnapshot {
	if c.Promo == nil {
		return nil
	}

	p, err := s.promos.FindByCodeWithTx(ctx, tx, c.Promo.Code)
	if err != nil {
		s.logger.Printf("promo %s could not be loaded during checkout: %v, proceeding without discount", c.Promo.Code, err)
		return nil
	}
	if v := p.Validate(s.now()); !v.Valid {
		s.logger.Printf("promo %s no longer valid during checkout: %s, proceeding without discount", p.Code, v.Reason)
		return nil
	}

	eligible := make([]promo.EligibleLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		category := ""
		if product, ok := products[line.ProductID]; ok {
			category = product.Category
		}
		eligible = append(eligible, promo.EligibleLine{
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Category:  category,
		})
	}

	res := p.ComputeDiscount(subtotal, eligible)
	if !res.Discount.IsPositive() {
		s.logger.Printf("promo %s yields no discount during checkout: %s", p.Code, res.Reason)
		return nil
	}
	return &order.PromoSnapshot{Code: p.Code, DiscountAmount: res.Discount, PromoID: p.ID}
}

func (s *Service) eligibleLines(ctx context.Context, c *cart.Cart) ([]promo.EligibleLine, error) {
	eligible := make([]promo.EligibleLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		p, err := s.catalog.Get(ctx, line.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, &IntegrityViolation{ProductID: line.ProductID, Reason: "product no longer exists"}
		}
		if err != nil {
			return nil, &TransientFailure{Err: err}
		}
		eligible = append(eligible, promo.EligibleLine{
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Category:  p.Category,
		})
	}
	return eligible, nil
}

func (s *Service) publish(ctx context.Context, o order.Order, depleted []*catalog.Product) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.OrderPlaced(ctx, o); err != nil {
		s.logger.Printf("publish order.placed for %s: %v", o.ID, err)
	}
	for _, p := range depleted {
		if err := s.publisher.StockDepleted(ctx, p.ID, p.Name); err != nil {
			s.logger.Printf("publish stock.depleted for %s: %v", p.ID, err)
		}
	}
}

// aggregateLines folds cart lines into one inventory line per product, since
// variants of the same product draw from the same stock pool.
func aggregateLines(lines []cart.Line) []inventory.Line {
	byProduct := make(map[string]int, len(lines))
	var ids []string
	for _, line := range lines {
		if _, ok := byProduct[line.ProductID]; !ok {
			ids = append(ids, line.ProductID)
		}
		byProduct[line.ProductID] += line.Quantity
	}
	sort.Strings(ids)

	out := make([]inventory.Line, 0, len(ids))
	for _, id := range ids {
		out = append(out, inventory.Line{ProductID: id, Quantity: byProduct[id]})
	}
	return out
}

func orderItems(lines []cart.Line) []order.Item {
	items := make([]order.Item, 0, len(lines))
	for _, line := range lines {
		items = append(items, order.Item{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	return items
}

// leadDays is the longest declared lead time across the order, so the
// estimate covers the slowest item.
func leadDays(lines []inventory.Line, products map[string]*catalog.Product) int {
	days := 0
	for _, line := range lines {
		if p, ok := products[line.ProductID]; ok && p.DeliveryLeadDays > days {
			days = p.DeliveryLeadDays
		}
	}
	if days == 0 {
		days = defaultLeadDays
	}
	return days
}

// depletedProducts lists products this checkout drains to zero, computed
// from quantities read under the transaction's row locks.
func depletedProducts(lines []inventory.Line, products map[string]*catalog.Product) []*catalog.Product {
	var out []*catalog.Product
	for _, line := range lines {
		if p, ok := products[line.ProductID]; ok && p.StockQuantity-line.Quantity <= 0 {
			out = append(out, p)
		}
	}
	return out
}

const trackingAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func newTrackingNumber() string {
	var b strings.Builder
	b.WriteString("TRK")
	for i := 0; i < 9; i++ {
		b.WriteByte(trackingAlphabet[rand.IntN(len(trackingAlphabet))])
	}
	return b.String()
}
