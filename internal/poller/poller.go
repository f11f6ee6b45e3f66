package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/go_orders/internal/cache"
	"github.com/segmentio/kafka-go"
)

const (
	Topic   = "catalog-updates"
	GroupID = "orders-catalog-consumer"
)

var errBadMessage = errors.New("bad catalog update")

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// CatalogUpdate is the message the catalog management side writes after
// changing prices or availability.
type CatalogUpdate struct {
	Scope      string `json:"scope"`
	CategoryID int64  `json:"category_id,omitempty"`
	ProductID  int64  `json:"product_id,omitempty"`
}

// Poller consumes catalog-updates and drops the affected cache entries.
type Poller struct {
	reader      MessageReader
	invalidator cache.Invalidator
	log         *slog.Logger
	attempts    int
	backoff     time.Duration
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 1e6,
	})
}

func NewPoller(reader MessageReader, invalidator cache.Invalidator, log *slog.Logger) *Poller {
	return &Poller{
		reader:      reader,
		invalidator: invalidator,
		log:         log,
		attempts:    3,
		backoff:     200 * time.Millisecond,
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.handleNext(ctx)
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", "error", err)
	}
}

func (p *Poller) handleNext(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.ErrorContext(ctx, "error reading message", "error", err)
		}
		return
	}

	scope, err := ParseUpdate(m.Value)
	if err != nil {
		p.log.WarnContext(ctx, "skipping catalog update", "offset", m.Offset, "error", err)
	} else if err := p.invalidate(ctx, scope); err != nil {
		// entries still expire by TTL
		p.log.ErrorContext(ctx, "catalog invalidation failed", "scope", scope.String(), "error", err)
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		p.log.ErrorContext(ctx, "error committing message", "offset", m.Offset, "error", err)
	}
}

func (p *Poller) invalidate(ctx context.Context, scope cache.Scope) error {
	var err error
	for i := 0; i < p.attempts; i++ {
		if err = p.invalidator.Invalidate(ctx, scope); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.backoff * time.Duration(i+1)):
		}
	}
	return err
}

// ParseUpdate decodes a catalog-updates message into an invalidation scope.
func ParseUpdate(raw []byte) (cache.Scope, error) {
	var u CatalogUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return cache.Scope{}, fmt.Errorf("%w: %v", errBadMessage, err)
	}
	switch cache.ScopeKind(u.Scope) {
	case cache.ScopeKindAll:
		return cache.ScopeAll(), nil
	case cache.ScopeKindCategory:
		if u.CategoryID <= 0 {
			return cache.Scope{}, fmt.Errorf("%w: category scope without category_id", errBadMessage)
		}
		return cache.ScopeCategory(u.CategoryID), nil
	case cache.ScopeKindProduct:
		if u.ProductID <= 0 {
			return cache.Scope{}, fmt.Errorf("%w: product scope without product_id", errBadMessage)
		}
		return cache.ScopeProduct(u.ProductID, u.CategoryID), nil
	default:
		return cache.Scope{}, fmt.Errorf("%w: unknown scope %q", errBadMessage, u.Scope)
	}
}
