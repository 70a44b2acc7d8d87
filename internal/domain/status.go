package domain

import "strings"

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "Pending"
	OrderStatusProcessing     OrderStatus = "Processing"
	OrderStatusShipped        OrderStatus = "Shipped"
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCancelled      OrderStatus = "Cancelled"
	OrderStatusReturned       OrderStatus = "Returned"

	// OrderStatusUnknown is what ParseStatus yields for anything it does not recognise.
	OrderStatusUnknown OrderStatus = "Unknown"
)

// ParseStatus maps a status string as stored or sent by admins onto an OrderStatus.
// Matching ignores case and surrounding whitespace; "Dispatched" is accepted as
// the admin dashboard's name for Shipped.
func ParseStatus(s string) OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return OrderStatusPending
	case "processing":
		return OrderStatusProcessing
	case "shipped", "dispatched":
		return OrderStatusShipped
	case "out for delivery", "out_for_delivery":
		return OrderStatusOutForDelivery
	case "delivered":
		return OrderStatusDelivered
	case "cancelled", "canceled":
		return OrderStatusCancelled
	case "returned":
		return OrderStatusReturned
	default:
		return OrderStatusUnknown
	}
}

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusOutForDelivery,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return true
	default:
		return false
	}
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

type CancellationStatus string

const (
	CancellationNone      CancellationStatus = ""
	CancellationRequested CancellationStatus = "Requested"
	CancellationApproved  CancellationStatus = "Approved"
)

func ParseCancellationStatus(s string) CancellationStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requested":
		return CancellationRequested
	case "approved":
		return CancellationApproved
	default:
		return CancellationNone
	}
}
