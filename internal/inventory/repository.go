package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Querier is the subset of pgx.Tx used by the per-transaction operations,
// satisfied by pgx.Tx and by the pool itself.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (StockLevel, error)
	SetAvailable(ctx context.Context, productID string, available int) error
	Reserve(ctx context.Context, lines []Line) (ReserveResult, error)
}

// TransactionalRepository exposes the per-transaction operations the
// checkout orchestrator composes into its single unit of work.
type TransactionalRepository interface {
	Repository
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	VerifyWithTx(ctx context.Context, q Querier, lines []Line) ([]ShortLine, error)
	DecrementWithTx(ctx context.Context, q Querier, lines []Line) ([]ShortLine, error)
	ReleaseWithTx(ctx context.Context, q Querier, lines []Line) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (StockLevel, error) {
	var level StockLevel
	row := r.pool.QueryRow(ctx, `SELECT id, stock_quantity, in_stock FROM products WHERE id=$1`, productID)
	if err := row.Scan(&level.ProductID, &level.Available, &level.InStock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

// SetAvailable overwrites the stock level of an existing product.
// in_stock is recomputed in the same statement so the two can never diverge.
func (r *PostgresRepository) SetAvailable(ctx context.Context, productID string, available int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET stock_quantity = $2, in_stock = $2 > 0, updated_at = now()
		WHERE id = $1
	`, productID, available)
	if err != nil {
		return fmt.Errorf("set available: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reserve runs verification and decrement in one transaction of its own.
// Short lines are a business outcome, not an error: the transaction is
// rolled back and the caller gets the per-line availability.
func (r *PostgresRepository) Reserve(ctx context.Context, lines []Line) (ReserveResult, error) {
	res := ReserveResult{}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return res, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	short, err := r.VerifyWithTx(ctx, tx, lines)
	if err != nil {
		return res, err
	}
	if len(short) > 0 {
		res.Short = short
		return res, nil
	}

	short, err = r.DecrementWithTx(ctx, tx, lines)
	if err != nil {
		return res, err
	}
	if len(short) > 0 {
		res.Short = short
		return res, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	res.Reserved = append(res.Reserved, lines...)
	return res, nil
}

func (r *PostgresRepository) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return r.pool.BeginTx(ctx, txOptions)
}

// VerifyWithTx locks each product row and compares requested quantity with
// current availability. Rows are locked in productID order so two checkouts
// touching the same products cannot deadlock each other. An unknown product
// counts as zero available.
func (r *PostgresRepository) VerifyWithTx(ctx context.Context, q Querier, lines []Line) ([]ShortLine, error) {
	ordered := make([]Line, len(lines))
	copy(ordered, lines)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	var short []ShortLine
	for _, line := range ordered {
		var name string
		var available int
		err := q.QueryRow(ctx, `
			SELECT name, stock_quantity
			FROM products
			WHERE id=$1
			FOR UPDATE
		`, line.ProductID).Scan(&name, &available)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				short = append(short, ShortLine{ProductID: line.ProductID, Requested: line.Quantity})
				continue
			}
			return nil, fmt.Errorf("lock stock for %s: %w", line.ProductID, err)
		}
		if available < line.Quantity {
			short = append(short, ShortLine{
				ProductID: line.ProductID,
				Name:      name,
				Requested: line.Quantity,
				Available: available,
			})
		}
	}
	return short, nil
}

// DecrementWithTx applies the conditional decrement for every line. The
// WHERE clause re-checks availability even though VerifyWithTx already did:
// the decrement is only ever issued as "subtract iff enough remains", never
// as a value computed in application memory. A zero-row update means a
// concurrent buyer got there first and is reported as a short line.
func (r *PostgresRepository) DecrementWithTx(ctx context.Context, q Querier, lines []Line) ([]ShortLine, error) {
	var short []ShortLine
	for _, line := range lines {
		tag, err := q.Exec(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2,
			    in_stock = stock_quantity - $2 > 0,
			    updated_at = now()
			WHERE id = $1 AND stock_quantity >= $2
		`, line.ProductID, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			var name string
			var available int
			err := q.QueryRow(ctx, `SELECT name, stock_quantity FROM products WHERE id=$1`, line.ProductID).Scan(&name, &available)
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("read stock for %s: %w", line.ProductID, err)
			}
			short = append(short, ShortLine{
				ProductID: line.ProductID,
				Name:      name,
				Requested: line.Quantity,
				Available: available,
			})
		}
	}
	return short, nil
}

// ReleaseWithTx is the compensating increment for externally-managed
// reservations. The orchestrator itself never calls it: its single
// transaction rolls back wholesale instead.
func (r *PostgresRepository) ReleaseWithTx(ctx context.Context, q Querier, lines []Line) error {
	for _, line := range lines {
		_, err := q.Exec(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity + $2,
			    in_stock = stock_quantity + $2 > 0,
			    updated_at = now()
			WHERE id = $1
		`, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("release stock for %s: %w", line.ProductID, err)
		}
	}
	return nil
}
