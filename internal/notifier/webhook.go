package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/pkg/circuitbreaker"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Webhook POSTs each event as JSON to a fixed URL. Calls go through a
// circuit breaker so a dead receiver does not slow down every request.
type Webhook struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
}

func NewWebhook(url string, settings circuitbreaker.Settings) *Webhook {
	return &Webhook{
		url:     url,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: circuitbreaker.New[struct{}](settings),
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Notify(ctx context.Context, ev domain.OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = w.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, ev, body)
	})
	return err
}

func (w *Webhook) post(ctx context.Context, ev domain.OrderEvent, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", ev.Type)
	req.Header.Set("X-Event-ID", ev.EventID)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
