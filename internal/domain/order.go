package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusPreparing  OrderStatus = "preparing"
	OrderStatusDelivering OrderStatus = "delivering"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusPreparing},
	OrderStatusPreparing:  {OrderStatusDelivering},
	OrderStatusDelivering: {OrderStatusCompleted},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	switch st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", NewValidationError("status", fmt.Sprintf("unknown order status %q", s))
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsActive reports whether the order is still being worked on.
func (s OrderStatus) IsActive() bool {
	return !s.IsTerminal()
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(s)
	switch st {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return st, nil
	}
	return "", NewValidationError("payment_status", fmt.Sprintf("unknown payment status %q", s))
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCard     PaymentMethod = "card"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(s)
	switch m {
	case PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard:
		return m, nil
	}
	return "", NewValidationError("payment_method", fmt.Sprintf("unsupported payment method %q", s))
}

// OrderItem is an immutable snapshot of a cart line taken at checkout.
type OrderItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductUnit  string          `json:"product_unit"`
	ProductPrice decimal.Decimal `json:"product_price"`
	Quantity     int             `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
}

type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DeliveryCost    decimal.Decimal `json:"delivery_cost"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	DeliveryPhone   string          `json:"delivery_phone"`
	DeliveryNotes   string          `json:"delivery_notes"`
	Items           []OrderItem     `json:"items"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ConfirmedAt     *time.Time      `json:"confirmed_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
}

// NewOrder is everything the store needs to persist an order in one
// transaction.
type NewOrder struct {
	UserID          int64
	PaymentMethod   PaymentMethod
	DeliveryAddress string
	DeliveryPhone   string
	DeliveryNotes   string
	DeliveryCost    decimal.Decimal
	Cart            *ValidatedCart
	CreatedAt       time.Time
}

// StatusChange is a compare-and-set update of an order row.
type StatusChange struct {
	OrderID        int64
	FromStatus     OrderStatus
	ToStatus       OrderStatus
	FromPayment    PaymentStatus
	ToPayment      PaymentStatus
	At             time.Time
	SetConfirmedAt bool
	SetDeliveredAt bool
	Actor          string
	EventType      string
}

type OrderFilter string

const (
	OrderFilterAll     OrderFilter = "all"
	OrderFilterActive  OrderFilter = "active"
	OrderFilterHistory OrderFilter = "history"
)

func ParseOrderFilter(s string) (OrderFilter, error) {
	switch OrderFilter(s) {
	case "", OrderFilterAll:
		return OrderFilterAll, nil
	case OrderFilterActive, OrderFilterHistory:
		return OrderFilter(s), nil
	}
	return "", NewValidationError("filter", fmt.Sprintf("unknown filter %q", s))
}
