package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const batchSize = 100

// MessageWriter is satisfied by *kafka.Writer and by in-process relays.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes order outbox rows to the order-events topic and
// marks them processed. Delivery is at least once: a row whose mark fails
// is published again on the next tick.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	repo      repository.OutboxRepository
	writer    MessageWriter
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

func NewOutboxPoller(repo repository.OutboxRepository, topic string, interval time.Duration, m *metrics.Metrics, log zerolog.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPollerWithWriter(repo, w, interval, m, log)
}

// NewOutboxPollerWithWriter publishes through w instead of a Kafka writer.
func NewOutboxPollerWithWriter(repo repository.OutboxRepository, w MessageWriter, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *OutboxPoller {
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: interval,
		repo:      repo,
		writer:    w,
		metrics:   m,
		log:       logger.Component(log, "outbox-poller"),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to fetch outbox events")
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.metrics.EventsPublished.WithLabelValues("error").Inc()
			p.log.Error().Err(err).Int64("outbox_id", event.ID).Msg("failed to publish event")
			// Keep per-order ordering: later events wait for this one.
			return
		}
		p.metrics.EventsPublished.WithLabelValues("ok").Inc()

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error().Err(err).Int64("outbox_id", event.ID).Msg("failed to mark event as processed")
			return
		}
		p.log.Debug().
			Int64("outbox_id", event.ID).
			Str(logger.ORDER, event.AggregateId).
			Str(logger.EVENT, event.EventType).
			Msg("event published")
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *repository.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order id keeps one order's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
