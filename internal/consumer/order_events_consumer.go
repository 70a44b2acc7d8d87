package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Invalidator interface {
	InvalidateOrder(ctx context.Context, id uuid.UUID)
}

type Broadcaster interface {
	Broadcast(ev domain.OrderEvent)
}

// OrderEventsConsumer fans order-events out to this instance: the cached
// order is dropped and connected admins are told to re-fetch. Each instance
// joins its own consumer group so every instance sees every event.
type OrderEventsConsumer struct {
	cache  Invalidator
	hub    Broadcaster
	reader messageReader
	log    zerolog.Logger
}

func NewOrderEventsConsumer(cache Invalidator, hub Broadcaster, topic string, log zerolog.Logger, brokers ...string) *OrderEventsConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "storefront-events-" + uuid.NewString(),
		StartOffset: kafka.LastOffset,
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
	})
	return &OrderEventsConsumer{cache: cache, hub: hub, reader: reader, log: logger.Component(log, "order-events-consumer")}
}

// NewLocalOrderEvents builds a consumer without a Kafka reader. The outbox
// poller writes to it directly through WriteMessages when Kafka is disabled.
func NewLocalOrderEvents(cache Invalidator, hub Broadcaster, log zerolog.Logger) *OrderEventsConsumer {
	return &OrderEventsConsumer{cache: cache, hub: hub, log: logger.Component(log, "order-events-relay")}
}

// WriteMessages handles msgs in order as if they had been read from the topic.
func (c *OrderEventsConsumer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		c.handle(ctx, m)
	}
	return nil
}

func (c *OrderEventsConsumer) Run(ctx context.Context) {
	loop(ctx, c.reader, c.log, c.handle)
}

func (c *OrderEventsConsumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

func (c *OrderEventsConsumer) handle(ctx context.Context, m kafka.Message) {
	var ev domain.OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Error().Err(err).Int64("offset", m.Offset).Msg("error parsing order event")
		return
	}
	id, err := uuid.Parse(ev.OrderID)
	if err != nil {
		c.log.Error().Err(err).Str(logger.ORDER, ev.OrderID).Msg("invalid order id in event")
		return
	}

	c.cache.InvalidateOrder(ctx, id)
	c.hub.Broadcast(ev)
	c.log.Debug().Str(logger.ORDER, ev.OrderID).Str(logger.EVENT, string(ev.Type)).Msg("order event fanned out")
}
