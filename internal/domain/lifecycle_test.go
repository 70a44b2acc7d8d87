package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder(status OrderStatus, items ...int64) *Order {
	o := &Order{
		ID:         uuid.New(),
		CheckoutID: uuid.New(),
		UserID:     "user-1",
		Status:     status,
		Currency:   "INR",
	}
	for _, id := range items {
		o.Items = append(o.Items, OrderItem{ProductID: id, ProductName: "Shirt", Quantity: 1, Price: 499})
	}
	return o
}

func TestAllowedActions_CancelOfferedOutsideFinalStates(t *testing.T) {
	offered := []OrderStatus{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusOutForDelivery}
	for _, s := range offered {
		t.Run(string(s), func(t *testing.T) {
			actions := AllowedActions(newTestOrder(s, 1), nil)
			assert.True(t, actions.Cancel)
		})
	}

	notOffered := []OrderStatus{OrderStatusCancelled, OrderStatusDelivered, OrderStatusReturned, OrderStatusUnknown}
	for _, s := range notOffered {
		t.Run(string(s), func(t *testing.T) {
			actions := AllowedActions(newTestOrder(s, 1), nil)
			assert.False(t, actions.Cancel)
		})
	}
}

func TestAllowedActions_NoCancelWhileRequestPending(t *testing.T) {
	o := newTestOrder(OrderStatusProcessing, 1)
	o.CancellationStatus = CancellationRequested

	assert.False(t, AllowedActions(o, nil).Cancel)
}

func TestAllowedActions_ReturnOnlyWhenDelivered(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusShipped, OrderStatusCancelled, OrderStatusReturned} {
		actions := AllowedActions(newTestOrder(s, 1), nil)
		assert.False(t, actions.Return, "status %s", s)
		assert.Empty(t, actions.ReturnableItems)
	}

	actions := AllowedActions(newTestOrder(OrderStatusDelivered, 1), nil)
	assert.True(t, actions.Return)
	assert.Equal(t, []int64{1}, actions.ReturnableItems)
}

func TestAllowedActions_ReturnHiddenOnceRequested(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, 7)
	existing := []ReturnRequest{{OrderID: o.ID, ProductID: 7, Status: ReturnStatusPending}}

	actions := AllowedActions(o, existing)
	assert.False(t, actions.Return)
}

func TestAllowedActions_PerItemEligibility(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, 1, 2)
	existing := []ReturnRequest{{OrderID: o.ID, ProductID: 1}}

	actions := AllowedActions(o, existing)
	assert.True(t, actions.Return)
	assert.Equal(t, []int64{2}, actions.ReturnableItems)
	assert.False(t, CanReturnItem(o, existing, 1))
	assert.True(t, CanReturnItem(o, existing, 2))
}

func TestAllowedActions_IgnoresRequestsOfOtherOrders(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, 1)
	existing := []ReturnRequest{{OrderID: uuid.New(), ProductID: 1}}

	assert.True(t, AllowedActions(o, existing).Return)
}

func TestAllowedActions_EmptyOrderHasNothingToReturn(t *testing.T) {
	actions := AllowedActions(newTestOrder(OrderStatusDelivered), nil)
	assert.False(t, actions.Return)
	assert.NotNil(t, actions.ReturnableItems)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusOutForDelivery, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusOutForDelivery, OrderStatusDelivered, true},
		{OrderStatusDelivered, OrderStatusReturned, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusReturned, OrderStatusDelivered, false},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusUnknown, OrderStatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestNextStatuses_ReturnsCopy(t *testing.T) {
	next := NextStatuses(OrderStatusPending)
	require.Len(t, next, 2)
	next[0] = OrderStatusReturned

	assert.Equal(t, OrderStatusProcessing, NextStatuses(OrderStatusPending)[0])
	assert.Empty(t, NextStatuses(OrderStatusCancelled))
}

func TestRequestCancellation(t *testing.T) {
	o := newTestOrder(OrderStatusPending, 1)

	require.NoError(t, RequestCancellation(o))
	assert.Equal(t, CancellationRequested, o.CancellationStatus)
	assert.Equal(t, OrderStatusPending, o.Status)

	err := RequestCancellation(o)
	assert.ErrorIs(t, err, ErrActionNotAllowed)
}

func TestRequestCancellation_DeliveredRejected(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, 1)

	assert.ErrorIs(t, RequestCancellation(o), ErrActionNotAllowed)
	assert.Equal(t, CancellationNone, o.CancellationStatus)
}

func TestResolveCancellation(t *testing.T) {
	approved := newTestOrder(OrderStatusProcessing, 1)
	approved.CancellationStatus = CancellationRequested
	require.NoError(t, ResolveCancellation(approved, true))
	assert.Equal(t, OrderStatusCancelled, approved.Status)
	assert.Equal(t, CancellationApproved, approved.CancellationStatus)

	rejected := newTestOrder(OrderStatusProcessing, 1)
	rejected.CancellationStatus = CancellationRequested
	require.NoError(t, ResolveCancellation(rejected, false))
	assert.Equal(t, OrderStatusProcessing, rejected.Status)
	assert.Equal(t, CancellationNone, rejected.CancellationStatus)

	none := newTestOrder(OrderStatusProcessing, 1)
	assert.ErrorIs(t, ResolveCancellation(none, true), ErrActionNotAllowed)
}

func TestTransition(t *testing.T) {
	o := newTestOrder(OrderStatusPending, 1)
	require.NoError(t, Transition(o, OrderStatusProcessing))
	require.NoError(t, Transition(o, OrderStatusShipped))

	err := Transition(o, OrderStatusPending)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, OrderStatusShipped, o.Status)
}

func TestTransition_DeliveryDropsPendingCancellation(t *testing.T) {
	o := newTestOrder(OrderStatusOutForDelivery, 1)
	o.CancellationStatus = CancellationRequested

	require.NoError(t, Transition(o, OrderStatusDelivered))
	assert.Equal(t, CancellationNone, o.CancellationStatus)
}

func TestTransition_CancelledFromDeliveredIsIllegal(t *testing.T) {
	o := newTestOrder(OrderStatusDelivered, 1)

	assert.ErrorIs(t, Transition(o, OrderStatusCancelled), ErrIllegalTransition)
	assert.Equal(t, OrderStatusDelivered, o.Status)
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, OrderStatusShipped, ParseStatus("Dispatched"))
	assert.Equal(t, OrderStatusShipped, ParseStatus("shipped"))
	assert.Equal(t, OrderStatusOutForDelivery, ParseStatus(" Out for Delivery "))
	assert.Equal(t, OrderStatusCancelled, ParseStatus("canceled"))
	assert.Equal(t, OrderStatusUnknown, ParseStatus("on hold"))
	assert.False(t, OrderStatusUnknown.IsValid())
}
