package cart

import "github.com/shopspring/decimal"

// Options are the buyer-chosen variant attributes. Two lines with the same
// product but different options are distinct cart lines.
type Options struct {
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// Line is one product/variant/quantity selection. Name and UnitPrice are
// snapshots taken when the line was added: the price at add-to-cart time
// governs the order, deliberately, so the buyer is never surprised at
// checkout by a catalog edit.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Options   Options         `json:"options"`
}

// PromoApplication is the promo state attached to a cart. DiscountAmount is
// advisory only: checkout always recomputes it against the cart it is
// actually committing.
type PromoApplication struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	PromoID        string          `json:"promoId"`
	DiscountType   string          `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
}

type Cart struct {
	Lines []Line            `json:"items"`
	Promo *PromoApplication `json:"promo,omitempty"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// Find returns the line matching (productID, options), or nil.
func (c *Cart) Find(productID string, opts Options) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID && c.Lines[i].Options == opts {
			return &c.Lines[i]
		}
	}
	return nil
}

// merge folds a line into the cart, summing quantity into an existing line
// with the same uniqueness key or appending a new one.
func (c *Cart) merge(line Line) {
	if existing := c.Find(line.ProductID, line.Options); existing != nil {
		existing.Quantity += line.Quantity
		return
	}
	c.Lines = append(c.Lines, line)
}

// Remove deletes matching lines and reports how many were removed. A nil
// opts removes every variant of the product.
func (c *Cart) Remove(productID string, opts *Options) int {
	kept := c.Lines[:0]
	removed := 0
	for _, line := range c.Lines {
		if line.ProductID == productID && (opts == nil || line.Options == *opts) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	c.Lines = kept
	return removed
}

// Clear empties the cart and drops any promo application. Runs only after a
// checkout has durably committed.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Promo = nil
}
