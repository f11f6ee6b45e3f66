package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated        = "order.created"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderPaymentChanged = "order.payment_status_changed"
)

// OrderEvent is the payload written to the outbox and handed to
// notification sinks.
type OrderEvent struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"event_type"`
	OrderID       int64           `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        int64           `json:"user_id"`
	Status        OrderStatus     `json:"status"`
	PrevStatus    OrderStatus     `json:"prev_status,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PrevPayment   PaymentStatus   `json:"prev_payment_status,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Actor         string          `json:"actor,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// OutboxEvent is a persisted, not yet published order event.
type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// NewOrderEvent builds the event describing the current state of o.
func NewOrderEvent(eventID, eventType string, o *Order, prevStatus OrderStatus, prevPayment PaymentStatus, actor string, at time.Time) OrderEvent {
	return OrderEvent{
		EventID:       eventID,
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PrevStatus:    prevStatus,
		PaymentStatus: o.PaymentStatus,
		PrevPayment:   prevPayment,
		TotalAmount:   o.TotalAmount,
		Actor:         actor,
		OccurredAt:    at,
	}
}
