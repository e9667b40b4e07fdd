package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// PageSize is the fixed number of orders returned per history page.
const PageSize = 10

var ErrNotFound = errors.New("order not found")

type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	CreateWithTx(ctx context.Context, q Querier, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByUser(ctx context.Context, userID string, page int) ([]Order, int, error)
	UpdateDeliveryStatus(ctx context.Context, id string, status Status) error
	UpdateDeliveryStatusWithTx(ctx context.Context, q Querier, id string, status Status) error
}

type PostgresRepository struct {
	db Querier
}

func NewPostgresRepository(db Querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateWithTx inserts the order and its items using the caller's
// transaction so the insert commits or rolls back together with the
// stock decrement.
func (r *PostgresRepository) CreateWithTx(ctx context.Context, q Querier, o Order) error {
	promoCode, promoID := "", ""
	discount := decimal.Zero
	if o.Promo != nil {
		promoCode = o.Promo.Code
		promoID = o.Promo.PromoID
		discount = o.Promo.DiscountAmount
	}

	_, err := q.Exec(ctx, `
		INSERT INTO orders (id, user_id, subtotal, promo_code, promo_id, discount_amount,
			total_amount, delivery_status, estimated_delivery_date, tracking_number, order_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.UserID, o.Subtotal, promoCode, promoID, discount,
		o.TotalAmount, string(o.DeliveryStatus), o.EstimatedDeliveryDate, o.TrackingNumber, o.OrderDate)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err := q.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, name, unit_price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ProductID, err)
		}
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Order, error) {
	o, err := r.scanOrder(ctx, r.db.QueryRow(ctx, `
		SELECT id, user_id, subtotal, promo_code, promo_id, discount_amount,
			total_amount, delivery_status, estimated_delivery_date, tracking_number, order_date
		FROM orders
		WHERE id = $1`, id))
	if err != nil {
		return Order{}, err
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// ListByUser returns one page of the user's orders, newest first, along
// with the total order count so callers can derive page numbers. Pages
// start at 1.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, page int) ([]Order, int, error) {
	if page < 1 {
		page = 1
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, subtotal, promo_code, promo_id, discount_amount,
			total_amount, delivery_status, estimated_delivery_date, tracking_number, order_date
		FROM orders
		WHERE user_id = $1
		ORDER BY order_date DESC
		LIMIT $2 OFFSET $3`, userID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	var ids []string
	for rows.Next() {
		o, err := r.scanOrder(ctx, rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}

	if len(ids) > 0 {
		items, err := r.loadItems(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range orders {
			orders[i].Items = items[orders[i].ID]
		}
	}
	return orders, total, nil
}

func (r *PostgresRepository) UpdateDeliveryStatus(ctx context.Context, id string, status Status) error {
	return r.UpdateDeliveryStatusWithTx(ctx, r.db, id, status)
}

func (r *PostgresRepository) UpdateDeliveryStatusWithTx(ctx context.Context, q Querier, id string, status Status) error {
	tag, err := q.Exec(ctx, `UPDATE orders SET delivery_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOrder(ctx context.Context, row pgx.Row) (Order, error) {
	var o Order
	var promoCode, promoID, status string
	var discount decimal.Decimal
	err := row.Scan(&o.ID, &o.UserID, &o.Subtotal, &promoCode, &promoID, &discount,
		&o.TotalAmount, &status, &o.EstimatedDeliveryDate, &o.TrackingNumber, &o.OrderDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("scan order: %w", err)
	}

	o.DeliveryStatus = Status(status)
	if promoCode != "" {
		o.Promo = &PromoSnapshot{Code: promoCode, DiscountAmount: discount, PromoID: promoID}
	}
	return o, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT order_id, product_id, name, unit_price, quantity
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var orderID string
		var item Item
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items[orderID] = append(items[orderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return items, nil
}
