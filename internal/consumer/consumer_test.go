package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/publisher"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out queued messages, then blocks until the context ends.
type fakeReader struct {
	m      sync.Mutex
	queue  []kafkaGo.Message
	errs   []error
	closed bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafkaGo.Message, error) {
	f.m.Lock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.m.Unlock()
		return kafkaGo.Message{}, err
	}
	if len(f.queue) > 0 {
		msg := f.queue[0]
		f.queue = f.queue[1:]
		f.m.Unlock()
		return msg, nil
	}
	f.m.Unlock()
	<-ctx.Done()
	return kafkaGo.Message{}, ctx.Err()
}

func (f *fakeReader) Close() error {
	f.m.Lock()
	defer f.m.Unlock()
	f.closed = true
	return nil
}

func (f *fakeReader) pending() int {
	f.m.Lock()
	defer f.m.Unlock()
	return len(f.queue)
}

func checkoutEvent() CheckoutCompletedEvent {
	return CheckoutCompletedEvent{
		CheckoutID: uuid.NewString(),
		UserID:     "user-1",
		Items: []eventItem{
			{ProductID: 7, ProductName: "Denim Jacket", Quantity: 1, Price: 79.9, Size: "L", Color: "Blue"},
		},
		ShippingAddress: domain.Address{
			FullName:   "Jane Doe",
			Phone:      "+1 555 0100",
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "62701",
			Country:    "US",
		},
		PaymentMethod: "card",
		TotalAmount:   79.9,
	}
}

func message(t *testing.T, v any) kafkaGo.Message {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return kafkaGo.Message{Value: payload}
}

func newCheckoutConsumer(store *repository.MemoryStore, r messageReader) *CheckoutConsumer {
	orders := service.NewOrderService(store, cache.Nop{}, metrics.New(), zerolog.Nop())
	return &CheckoutConsumer{orders: orders, reader: r, log: zerolog.Nop()}
}

func TestCheckoutConsumer_CreatesPendingOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	event := checkoutEvent()
	c := newCheckoutConsumer(store, &fakeReader{})

	c.handle(context.Background(), message(t, event))

	orders, err := store.ListOrdersByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, event.CheckoutID, order.CheckoutID.String())
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, "Jane Doe", order.ShippingAddress.FullName)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 79.9, order.Items[0].Price)
	assert.Equal(t, "L", order.Items[0].Size)
	assert.Equal(t, "Blue", order.Items[0].Color)
}

func TestCheckoutConsumer_Idempotent(t *testing.T) {
	store := repository.NewMemoryStore()
	event := checkoutEvent()
	c := newCheckoutConsumer(store, &fakeReader{})

	c.handle(context.Background(), message(t, event))
	c.handle(context.Background(), message(t, event))

	orders, err := store.ListOrdersByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutConsumer_SkipsBadMessages(t *testing.T) {
	store := repository.NewMemoryStore()
	c := newCheckoutConsumer(store, &fakeReader{})

	noItems := checkoutEvent()
	noItems.Items = nil
	badID := checkoutEvent()
	badID.CheckoutID = "not-a-uuid"

	ctx := context.Background()
	c.handle(ctx, kafkaGo.Message{Value: []byte("{broken")})
	c.handle(ctx, message(t, badID))
	c.handle(ctx, message(t, noItems))

	orders, err := store.ListOrders(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutConsumer_RunDrainsAndStops(t *testing.T) {
	store := repository.NewMemoryStore()
	r := &fakeReader{
		errs:  []error{errors.New("rebalance in progress")},
		queue: []kafkaGo.Message{message(t, checkoutEvent()), message(t, checkoutEvent())},
	}
	c := newCheckoutConsumer(store, r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return r.pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	c.Close()
	assert.True(t, r.closed)

	orders, err := store.ListOrdersByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

type recordingInvalidator struct {
	m   sync.Mutex
	ids []uuid.UUID
}

func (r *recordingInvalidator) InvalidateOrder(_ context.Context, id uuid.UUID) {
	r.m.Lock()
	defer r.m.Unlock()
	r.ids = append(r.ids, id)
}

type recordingBroadcaster struct {
	m      sync.Mutex
	events []domain.OrderEvent
}

func (r *recordingBroadcaster) Broadcast(ev domain.OrderEvent) {
	r.m.Lock()
	defer r.m.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingBroadcaster) received() []domain.OrderEvent {
	r.m.Lock()
	defer r.m.Unlock()
	return append([]domain.OrderEvent(nil), r.events...)
}

func TestOrderEventsConsumer_InvalidatesThenBroadcasts(t *testing.T) {
	inv := &recordingInvalidator{}
	hub := &recordingBroadcaster{}
	c := &OrderEventsConsumer{cache: inv, hub: hub, reader: &fakeReader{}, log: zerolog.Nop()}

	id := uuid.New()
	c.handle(context.Background(), message(t, domain.OrderEvent{
		Type:       domain.EventOrderUpdated,
		OrderID:    id.String(),
		OccurredAt: time.Now(),
	}))

	assert.Equal(t, []uuid.UUID{id}, inv.ids)
	events := hub.received()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderUpdated, events[0].Type)
	assert.Equal(t, id.String(), events[0].OrderID)
}

func TestOrderEventsConsumer_IgnoresMalformed(t *testing.T) {
	inv := &recordingInvalidator{}
	hub := &recordingBroadcaster{}
	c := &OrderEventsConsumer{cache: inv, hub: hub, reader: &fakeReader{}, log: zerolog.Nop()}

	c.handle(context.Background(), kafkaGo.Message{Value: []byte("nope")})
	c.handle(context.Background(), message(t, domain.OrderEvent{Type: domain.EventOrderCreated, OrderID: "42"}))

	assert.Empty(t, inv.ids)
	assert.Empty(t, hub.received())
}

func TestLocalOrderEvents_RelaysOutbox(t *testing.T) {
	store := repository.NewMemoryStore()
	inv := &recordingInvalidator{}
	hub := &recordingBroadcaster{}
	relay := NewLocalOrderEvents(inv, hub, zerolog.Nop())
	poller := publisher.NewOutboxPollerWithWriter(store, relay, 10*time.Millisecond, metrics.New(), zerolog.Nop())

	event := checkoutEvent()
	newCheckoutConsumer(store, &fakeReader{}).handle(context.Background(), message(t, event))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	require.Eventually(t, func() bool { return len(hub.received()) == 1 }, time.Second, 5*time.Millisecond)
	ev := hub.received()[0]
	assert.Equal(t, domain.EventOrderCreated, ev.Type)

	list, err := store.ListOrdersByUserID(context.Background(), event.UserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, list[0].ID.String(), ev.OrderID)
	assert.NoError(t, relay.Close())
}
