package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/dedup"
	"github.com/ariunbilegtsetsentungalag-ctrl/shop-checkout-go/internal/order"
)

type fakeOrders struct {
	order.Repository

	updatedID     string
	updatedStatus order.Status
	called        bool
	err           error
}

func (f *fakeOrders) UpdateDeliveryStatusWithTx(ctx context.Context, _ order.Querier, id string, status order.Status) error {
	f.called = true
	f.updatedID = id
	f.updatedStatus = status
	return f.err
}

func deliveryEnvelope(t *testing.T, orderID, status string, seq int64) []byte {
	t.Helper()
	payload, err := json.Marshal(DeliveryUpdatedPayload{
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	body, err := json.Marshal(EventEnvelope{
		EventName:    EventTypeDeliveryUpdated,
		EventVersion: 1,
		EventID:      "evt-1",
		Producer:     "fulfillment-service",
		PartitionKey: orderID,
		Sequence:     seq,
		OccurredAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Schema:       deliveryUpdatedSchema,
		Payload:      payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

const checkpointSelectSQL = `
		SELECT last_sequence
		FROM event_dedup_checkpoint
		WHERE consumer_name=$1 AND partition_key=$2
	`

func TestHandleDeliveryUpdated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(checkpointSelectSQL)).
		WithArgs(deliveryConsumerName, "order-1").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO event_dedup_checkpoint`)).
		WithArgs(deliveryConsumerName, "order-1", int64(3)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	orders := &fakeOrders{}
	logger := log.New(io.Discard, "", 0)
	body := deliveryEnvelope(t, "order-1", "Shipped", 3)

	if err := handleDeliveryUpdated(context.Background(), mock, orders, dedup.NewRepository(mock), body, logger); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !orders.called || orders.updatedID != "order-1" || orders.updatedStatus != order.StatusShipped {
		t.Fatalf("unexpected update: %+v", orders)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHandleDeliveryUpdatedSkipsDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(checkpointSelectSQL)).
		WithArgs(deliveryConsumerName, "order-1").
		WillReturnRows(pgxmock.NewRows([]string{"last_sequence"}).AddRow(int64(5)))
	mock.ExpectRollback()

	orders := &fakeOrders{}
	logger := log.New(io.Discard, "", 0)
	body := deliveryEnvelope(t, "order-1", "Delivered", 5)

	if err := handleDeliveryUpdated(context.Background(), mock, orders, dedup.NewRepository(mock), body, logger); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if orders.called {
		t.Fatalf("duplicate sequence must not touch the order")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHandleDeliveryUpdatedRejectsBadPayload(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	orders := &fakeOrders{}

	if err := handleDeliveryUpdated(context.Background(), nil, orders, nil, []byte("{"), logger); err == nil {
		t.Fatal("expected error for malformed body")
	}
	if err := handleDeliveryUpdated(context.Background(), nil, orders, nil, deliveryEnvelope(t, "order-1", "Lost", 1), logger); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if err := handleDeliveryUpdated(context.Background(), nil, orders, nil, deliveryEnvelope(t, "", "Shipped", 1), logger); err == nil {
		t.Fatal("expected error for missing orderId")
	}
	if orders.called {
		t.Fatal("rejected events must not touch the order")
	}
}

func TestEnvelopeValidate(t *testing.T) {
	env := EventEnvelope{
		EventName:    EventTypeOrderPlaced,
		EventVersion: 1,
		EventID:      "evt-1",
		PartitionKey: "order-1",
	}
	if err := env.Validate(EventTypeOrderPlaced, 1); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	bad := env
	bad.EventName = "WrongName"
	if err := bad.Validate(EventTypeOrderPlaced, 1); err == nil {
		t.Fatal("expected error for wrong eventName")
	}

	bad = env
	bad.PartitionKey = ""
	if err := bad.Validate(EventTypeOrderPlaced, 1); err == nil {
		t.Fatal("expected error for missing partitionKey")
	}
}
