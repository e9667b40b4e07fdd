package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/dedup"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
)

const deliveryConsumerName = "checkout-delivery-updated"

// TxBeginner opens the transaction a handled event is applied in.
type TxBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// StartDeliveryUpdatedConsumer subscribes to fulfillment delivery updates
// and advances order delivery status. The status update and the dedup
// checkpoint commit in one transaction, so redeliveries are no-ops.
func StartDeliveryUpdatedConsumer(ctx context.Context, conn *amqp.Connection, db TxBeginner,
	orders order.Repository, dedupRepo *dedup.Repository, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareEventsExchange(ch); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}

	queue := checkoutQueueName(DeliveryUpdatedRoutingKey)
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, DeliveryUpdatedRoutingKey, EventsExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", queue, err)
	}

	msgs, err := ch.Consume(queue, deliveryConsumerName, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Println("stopping delivery update consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Println("delivery update channel closed")
					return
				}
				if err := handleDeliveryUpdated(ctx, db, orders, dedupRepo, msg.Body, logger); err != nil {
					logger.Printf("handle delivery update: %v", err)
					_ = msg.Nack(false, false)
					continue
				}
				_ = msg.Ack(false)
			}
		}
	}()

	return nil
}

func handleDeliveryUpdated(ctx context.Context, db TxBeginner, orders order.Repository,
	dedupRepo *dedup.Repository, body []byte, logger *log.Logger) error {
	env, err := parseEnvelope(body)
	if err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.Validate(EventTypeDeliveryUpdated, 1); err != nil {
		return err
	}

	var payload DeliveryUpdatedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.OrderID == "" {
		return errors.New("missing orderId")
	}
	status, err := order.ParseStatus(payload.Status)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	localDedup := dedupRepo.WithExecutor(tx)
	lastSeq, found, err := localDedup.GetLastSequence(ctx, deliveryConsumerName, env.PartitionKey)
	if err != nil {
		return err
	}
	if found && env.Sequence != 0 {
		if env.Sequence <= lastSeq {
			logger.Printf("skip duplicate order=%s partition=%s seq=%d last=%d", payload.OrderID, env.PartitionKey, env.Sequence, lastSeq)
			return nil
		}
		if env.Sequence > lastSeq+1 {
			logger.Printf("warning: sequence gap for partition=%s seq=%d last=%d", env.PartitionKey, env.Sequence, lastSeq)
		}
	}

	if err := orders.UpdateDeliveryStatusWithTx(ctx, tx, payload.OrderID, status); err != nil {
		if errors.Is(err, order.ErrNotFound) {
			// Ack unknown orders: requeueing cannot make them appear.
			logger.Printf("delivery update for unknown order %s dropped", payload.OrderID)
			return nil
		}
		return fmt.Errorf("update delivery status: %w", err)
	}

	if env.Sequence != 0 {
		if err := localDedup.UpsertLastSequence(ctx, deliveryConsumerName, env.PartitionKey, env.Sequence); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery update: %w", err)
	}

	logger.Printf("order %s delivery status set to %s", payload.OrderID, status)
	return nil
}
