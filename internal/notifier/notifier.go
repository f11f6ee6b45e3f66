package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/pkg/metrics"
)

// Sink receives order events after they are committed.
type Sink interface {
	Name() string
	Notify(ctx context.Context, ev domain.OrderEvent) error
}

// Multi fans an event out to every configured sink. All sinks are tried;
// failures are joined into one error.
type Multi struct {
	sinks   []Sink
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewMulti(log *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, log: log, metrics: m}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Notify(ctx context.Context, ev domain.OrderEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Notify(ctx, ev); err != nil {
			m.metrics.SinkFailed(s.Name())
			m.log.WarnContext(ctx, "notification sink failed",
				"sink", s.Name(), "order_id", ev.OrderID, "event_type", ev.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
