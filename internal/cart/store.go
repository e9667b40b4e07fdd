package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/catalog"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive number")
	ErrProductNotFound = errors.New("product not found")
	ErrLineNotFound    = errors.New("item not found in cart")
)

// InsufficientStockError carries everything a buyer-facing message needs:
// which product, how many were asked for, how many can still be added.
type InsufficientStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
	InCart    int
}

func (e *InsufficientStockError) Error() string {
	if e.InCart > 0 {
		return fmt.Sprintf("cannot add %d more of %s: only %d available (%d already in cart)",
			e.Requested, e.Name, e.Available, e.InCart)
	}
	return fmt.Sprintf("only %d of %s available in stock", e.Available, e.Name)
}

// CatalogReader is the catalog surface the cart needs: current price and
// stock for a single product.
type CatalogReader interface {
	Get(ctx context.Context, productID string) (*catalog.Product, error)
}

// Store validates cart mutations against the live catalog. The cart itself
// stays an explicit value owned by the caller's session; Store never holds
// one.
type Store struct {
	catalog CatalogReader
}

func NewStore(catalogReader CatalogReader) *Store {
	return &Store{catalog: catalogReader}
}

// AddLine merges a selection into the cart after checking that the
// resulting line quantity fits current stock. The unit price snapshot is
// resolved here, size override first.
func (s *Store) AddLine(ctx context.Context, c *Cart, productID string, quantity int, opts Options) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("load product: %w", err)
	}

	inCart := 0
	if existing := c.Find(productID, opts); existing != nil {
		inCart = existing.Quantity
	}
	if product.StockQuantity < inCart+quantity {
		return &InsufficientStockError{
			ProductID: productID,
			Name:      product.Name,
			Requested: quantity,
			Available: product.StockQuantity - inCart,
			InCart:    inCart,
		}
	}

	c.merge(Line{
		ProductID: productID,
		Name:      product.Name,
		UnitPrice: product.PriceFor(opts.Size),
		Quantity:  quantity,
		Options:   opts,
	})
	return nil
}

// UpdateLine replaces a line's quantity after re-validating against live
// stock.
func (s *Store) UpdateLine(ctx context.Context, c *Cart, productID string, quantity int, opts Options) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	line := c.Find(productID, opts)
	if line == nil {
		return ErrLineNotFound
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("load product: %w", err)
	}
	if product.StockQuantity < quantity {
		return &InsufficientStockError{
			ProductID: productID,
			Name:      product.Name,
			Requested: quantity,
			Available: product.StockQuantity,
		}
	}

	line.Quantity = quantity
	return nil
}

// RemoveLine removes the matching line, or every variant of the product
// when opts is nil.
func (s *Store) RemoveLine(c *Cart, productID string, opts *Options) error {
	if c.Remove(productID, opts) == 0 {
		return ErrLineNotFound
	}
	return nil
}
