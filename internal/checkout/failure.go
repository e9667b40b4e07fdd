package checkout

import (
	"fmt"
	"strings"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/inventory"
)

// ValidationFailure means the request itself was unusable: empty cart,
// missing user, malformed quantities. Nothing was attempted against the
// database.
type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string {
	return e.Reason
}

// StockFailure carries every line that could not be covered, so the buyer
// sees the full shortfall in one round trip instead of fixing lines one by
// one.
type StockFailure struct {
	Lines []inventory.ShortLine
}

func (e *StockFailure) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		name := l.Name
		if name == "" {
			name = l.ProductID
		}
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", name, l.Requested, l.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// PromoFailure is returned from explicit promo validation. During checkout
// itself a bad promo never surfaces as an error; the discount degrades to
// zero and the order proceeds.
type PromoFailure struct {
	Code   string
	Reason string
}

func (e *PromoFailure) Error() string {
	return fmt.Sprintf("promo code %s rejected: %s", e.Code, e.Reason)
}

// TransientFailure wraps infrastructure errors (connection loss, commit
// failure) where retrying the same request may succeed.
type TransientFailure struct {
	Err error
}

func (e *TransientFailure) Error() string {
	return "checkout could not be completed: " + e.Err.Error()
}

func (e *TransientFailure) Unwrap() error {
	return e.Err
}

// IntegrityViolation means the cart references state that no longer exists,
// such as a product deleted after it was added. The cart needs repair before
// checkout can be retried.
type IntegrityViolation struct {
	ProductID string
	Reason    string
}

func (e *IntegrityViolation) Error() string {
	return fmt.Sprintf("cart integrity violation on product %s: %s", e.ProductID, e.Reason)
}
