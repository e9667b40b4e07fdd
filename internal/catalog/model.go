package catalog

import "github.com/shopspring/decimal"

// Product carries the catalog fields the checkout engine needs: pricing,
// stock and delivery lead time. Everything else about a product (images,
// descriptions, features) belongs to the storefront, not the engine.
type Product struct {
	ID               string                     `json:"productId"`
	Name             string                     `json:"name"`
	Category         string                     `json:"category"`
	BasePrice        decimal.Decimal            `json:"basePrice"`
	SizePrices       map[string]decimal.Decimal `json:"sizePrices,omitempty"`
	StockQuantity    int                        `json:"stockQuantity"`
	InStock          bool                       `json:"inStock"`
	DeliveryLeadDays int                        `json:"deliveryLeadDays"`
}

// PriceFor resolves the unit price for a chosen size. A size with no
// override (or no size at all) falls back to the base price.
func (p *Product) PriceFor(size string) decimal.Decimal {
	if size != "" {
		if price, ok := p.SizePrices[size]; ok {
			return price
		}
	}
	return p.BasePrice
}
