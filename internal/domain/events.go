package domain

import "time"

type EventType string

const (
	EventOrderCreated EventType = "order.created"
	EventOrderUpdated EventType = "order.updated"
)

// OrderEvent tells subscribers which order changed. It is a signal to re-fetch,
// not a copy of the order.
type OrderEvent struct {
	Type       EventType `json:"type"`
	OrderID    string    `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
