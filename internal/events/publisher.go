package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/sequence"
)

// SequenceSource hands out the per-partition sequence number stamped on
// every published envelope.
type SequenceSource interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

var _ SequenceSource = (*sequence.Repository)(nil)

type Publisher struct {
	ch       *amqp.Channel
	seq      SequenceSource
	producer string
}

func NewPublisher(conn *amqp.Connection, seq SequenceSource) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare events exchange: %w", err)
	}
	return &Publisher{ch: ch, seq: seq, producer: checkoutServiceName}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// OrderPlaced publishes the post-checkout event, partitioned by order ID.
func (p *Publisher) OrderPlaced(ctx context.Context, o order.Order) error {
	payload := OrderPlacedPayload{
		OrderID:               o.ID,
		UserID:                o.UserID,
		Subtotal:              o.Subtotal,
		TotalAmount:           o.TotalAmount,
		TrackingNumber:        o.TrackingNumber,
		EstimatedDeliveryDate: o.EstimatedDeliveryDate,
		Timestamp:             time.Now().UTC(),
	}
	if o.Promo != nil {
		payload.PromoCode = o.Promo.Code
		discount := o.Promo.DiscountAmount
		payload.DiscountAmount = &discount
	}
	for _, item := range o.Items {
		payload.Items = append(payload.Items, OrderLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		})
	}

	return p.publishEnveloped(ctx, OrderPlacedRoutingKey, EventTypeOrderPlaced, orderPlacedSchema, o.ID, payload)
}

// StockDepleted publishes a zero-stock notification, partitioned by product
// ID.
func (p *Publisher) StockDepleted(ctx context.Context, productID, name string) error {
	payload := StockDepletedPayload{
		ProductID: productID,
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
	return p.publishEnveloped(ctx, StockDepletedRoutingKey, EventTypeStockDepleted, stockDepletedSchema, productID, payload)
}

func (p *Publisher) publishEnveloped(ctx context.Context, routingKey, eventName, schema, partitionKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventName, err)
	}

	seq, err := p.seq.NextSequence(ctx, partitionKey)
	if err != nil {
		return fmt.Errorf("next sequence for %s: %w", partitionKey, err)
	}

	env := EventEnvelope{
		EventName:    eventName,
		EventVersion: 1,
		EventID:      uuid.NewString(),
		Producer:     p.producer,
		PartitionKey: partitionKey,
		Sequence:     seq,
		OccurredAt:   time.Now().UTC(),
		Schema:       schema,
		Payload:      raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventName, err)
	}
	return p.publishJSON(ctx, routingKey, body)
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
