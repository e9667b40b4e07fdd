package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventTypeOrderPlaced     = "OrderPlaced"
	EventTypeStockDepleted   = "StockDepleted"
	EventTypeDeliveryUpdated = "OrderDeliveryUpdated"

	orderPlacedSchema     = "storefront.order.placed.v1"
	stockDepletedSchema   = "storefront.stock.depleted.v1"
	deliveryUpdatedSchema = "storefront.order.delivery.updated.v1"
)

// OrderPlacedPayload is emitted after a checkout transaction commits.
type OrderPlacedPayload struct {
	OrderID               string           `json:"orderId"`
	UserID                string           `json:"userId"`
	Subtotal              decimal.Decimal  `json:"subtotal"`
	PromoCode             string           `json:"promoCode,omitempty"`
	DiscountAmount        *decimal.Decimal `json:"discountAmount,omitempty"`
	TotalAmount           decimal.Decimal  `json:"totalAmount"`
	TrackingNumber        string           `json:"trackingNumber"`
	EstimatedDeliveryDate time.Time        `json:"estimatedDeliveryDate"`
	Items                 []OrderLine      `json:"items"`
	Timestamp             time.Time        `json:"timestamp"`
}

type OrderLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// StockDepletedPayload is emitted when a checkout drains a product to zero.
type StockDepletedPayload struct {
	ProductID string    `json:"productId"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryUpdatedPayload is consumed from the fulfillment side to advance an
// order's delivery status.
type DeliveryUpdatedPayload struct {
	OrderID   string    `json:"orderId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
