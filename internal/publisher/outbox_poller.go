package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/pkg/metrics"
	"github.com/segmentio/kafka-go"
)

const Topic = "order-events"

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes committed order events to Kafka. An event is
// marked processed only after the broker accepted it, so delivery is at
// least once.
type OutboxPoller struct {
	eventTick time.Duration
	batch     int
	repo      OutboxRepository
	writer    MessageWriter
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewKafkaWriter(brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo OutboxRepository, writer MessageWriter, log *slog.Logger, m *metrics.Metrics) *OutboxPoller {
	return &OutboxPoller{
		eventTick: time.Second,
		batch:     100,
		repo:      repo,
		writer:    writer,
		log:       log,
		metrics:   m,
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

// processUnpublishedEvents returns the number of events published.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return 0
	}

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.metrics.OutboxResult("failed")
			p.log.WarnContext(ctx, "failed to publish event", "event_id", event.ID, "error", err)
			// keep per-order ordering: later events wait for this one
			return published
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.ErrorContext(ctx, "failed to mark event as processed", "event_id", event.ID, "error", err)
			return published
		}
		p.metrics.OutboxResult("published")
		published++
	}
	return published
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
