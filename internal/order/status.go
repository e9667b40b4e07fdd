package order

import "fmt"

// Status is the delivery state of an order. New orders always start in
// StatusProcessing.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivering Status = "Delivering"
	StatusDelivered  Status = "Delivered"
)

// ParseStatus validates a raw delivery status string as received from
// fulfillment events.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusProcessing, StatusShipped, StatusDelivering, StatusDelivered:
		return Status(raw), nil
	}
	return "", fmt.Errorf("unknown delivery status %q", raw)
}
