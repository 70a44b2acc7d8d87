package domain

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:      {OrderStatusReturned},
}

// CanTransition checks an admin status change against the lifecycle table.
// Cancelled and Returned are terminal; nothing moves out of Unknown.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s, for admin dropdowns.
func NextStatuses(s OrderStatus) []OrderStatus {
	next := transitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// Actions are the customer actions offered for an order.
type Actions struct {
	Cancel          bool    `json:"cancel"`
	Return          bool    `json:"return"`
	ReturnableItems []int64 `json:"returnable_items"`
}

func canCancel(o *Order) bool {
	switch o.Status {
	case OrderStatusCancelled, OrderStatusDelivered, OrderStatusReturned, OrderStatusUnknown:
		return false
	}
	if !o.Status.IsValid() {
		return false
	}
	return o.CancellationStatus != CancellationRequested
}

// AllowedActions derives what the customer may do with o given the return
// requests already recorded for it. Eligibility is per line item: an item is
// returnable while the order is Delivered and no request exists for it.
func AllowedActions(o *Order, existing []ReturnRequest) Actions {
	actions := Actions{
		Cancel:          canCancel(o),
		ReturnableItems: []int64{},
	}
	if o.Status != OrderStatusDelivered {
		return actions
	}

	requested := make(map[int64]bool, len(existing))
	for _, rr := range existing {
		if rr.OrderID == o.ID {
			requested[rr.ProductID] = true
		}
	}
	for _, item := range o.Items {
		if !requested[item.ProductID] {
			actions.ReturnableItems = append(actions.ReturnableItems, item.ProductID)
		}
	}
	actions.Return = len(actions.ReturnableItems) > 0
	return actions
}

// CanReturnItem is AllowedActions narrowed to one product.
func CanReturnItem(o *Order, existing []ReturnRequest, productID int64) bool {
	for _, id := range AllowedActions(o, existing).ReturnableItems {
		if id == productID {
			return true
		}
	}
	return false
}

// RequestCancellation records a customer's cancellation request.
func RequestCancellation(o *Order) error {
	if !canCancel(o) {
		return ErrActionNotAllowed
	}
	o.CancellationStatus = CancellationRequested
	return nil
}

// Cancel is the admin cancellation. A pending customer request counts as approved.
func Cancel(o *Order) error {
	if !CanTransition(o.Status, OrderStatusCancelled) {
		return ErrIllegalTransition
	}
	o.Status = OrderStatusCancelled
	if o.CancellationStatus == CancellationRequested {
		o.CancellationStatus = CancellationApproved
	}
	return nil
}

// ResolveCancellation approves or rejects a pending customer request.
func ResolveCancellation(o *Order, approve bool) error {
	if o.CancellationStatus != CancellationRequested {
		return ErrActionNotAllowed
	}
	if !approve {
		o.CancellationStatus = CancellationNone
		return nil
	}
	return Cancel(o)
}

// Transition applies an admin status change. Delivering an order drops a
// cancellation request that was never resolved.
func Transition(o *Order, to OrderStatus) error {
	if to == OrderStatusCancelled {
		return Cancel(o)
	}
	if !CanTransition(o.Status, to) {
		return ErrIllegalTransition
	}
	o.Status = to
	if to == OrderStatusDelivered && o.CancellationStatus == CancellationRequested {
		o.CancellationStatus = CancellationNone
	}
	return nil
}
