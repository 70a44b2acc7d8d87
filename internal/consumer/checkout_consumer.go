package consumer

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// eventItem mirrors the item shape of the checkout-outbox payload, which
// carries the unit price as "unit_price".
type eventItem struct {
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Image       string  `json:"image,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"unit_price"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
}

type CheckoutCompletedEvent struct {
	CheckoutID      string         `json:"checkout_id"`
	UserID          string         `json:"user_id"`
	Items           []eventItem    `json:"items"`
	ShippingAddress domain.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method"`
	TotalAmount     float64        `json:"total_amount"`
	Currency        string         `json:"currency"`
}

type OrderPlacer interface {
	PlaceOrder(ctx context.Context, in service.NewOrder) (*domain.Order, error)
}

// CheckoutConsumer turns completed checkouts into Pending orders.
type CheckoutConsumer struct {
	orders OrderPlacer
	reader messageReader
	log    zerolog.Logger
}

func NewCheckoutConsumer(orders OrderPlacer, topic string, log zerolog.Logger, brokers ...string) *CheckoutConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront-orders",
		MaxBytes: 10e6, // 10MB
	})
	return &CheckoutConsumer{orders: orders, reader: reader, log: logger.Component(log, "checkout-consumer")}
}

func (c *CheckoutConsumer) Run(ctx context.Context) {
	loop(ctx, c.reader, c.log, c.handle)
}

func (c *CheckoutConsumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error().Err(err).Msg("error closing kafka reader")
	}
}

func (c *CheckoutConsumer) handle(ctx context.Context, m kafka.Message) {
	var event CheckoutCompletedEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		c.log.Error().Err(err).Int64("offset", m.Offset).Msg("error parsing message")
		return
	}

	checkoutID, err := uuid.Parse(event.CheckoutID)
	if err != nil {
		c.log.Error().Err(err).Str("checkout_id", event.CheckoutID).Msg("invalid checkout_id")
		return
	}

	currency := event.Currency
	if currency == "" {
		currency = "USD"
	}

	items := make([]domain.OrderItem, len(event.Items))
	for i, item := range event.Items {
		items[i] = domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Image:       item.Image,
			Quantity:    item.Quantity,
			Price:       item.Price,
			Size:        item.Size,
			Color:       item.Color,
		}
	}

	order, err := c.orders.PlaceOrder(ctx, service.NewOrder{
		CheckoutID:      checkoutID,
		UserID:          event.UserID,
		Items:           items,
		ShippingAddress: event.ShippingAddress,
		PaymentMethod:   event.PaymentMethod,
		TotalAmount:     event.TotalAmount,
		Currency:        currency,
	})
	if errors.Is(err, repository.ErrDuplicateCheckout) {
		c.log.Info().Str("checkout_id", event.CheckoutID).Msg("order for checkout already exists, skipping")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Str("checkout_id", event.CheckoutID).Msg("failed to create order")
		return
	}

	c.log.Info().
		Str(logger.ORDER, order.ID.String()).
		Str("checkout_id", order.CheckoutID.String()).
		Msg("order created from checkout")
}
