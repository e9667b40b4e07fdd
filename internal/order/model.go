package order

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// PromoSnapshot records the promo exactly as it was applied to this order.
type PromoSnapshot struct {
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	PromoID        string          `json:"promoId"`
}

// Order is created exactly once per successful checkout and is immutable
// afterwards except for DeliveryStatus, which an external fulfillment
// process advances.
type Order struct {
	ID                    string          `json:"orderId"`
	UserID                string          `json:"userId"`
	Items                 []Item          `json:"items"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	Promo                 *PromoSnapshot  `json:"promo,omitempty"`
	TotalAmount           decimal.Decimal `json:"totalAmount"`
	DeliveryStatus        Status          `json:"deliveryStatus"`
	EstimatedDeliveryDate time.Time       `json:"estimatedDeliveryDate"`
	TrackingNumber        string          `json:"trackingNumber"`
	OrderDate             time.Time       `json:"orderDate"`
}
