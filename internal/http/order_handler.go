package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/fjod/go_orders/internal/service"
	"github.com/shopspring/decimal"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderResult, error)
	UpdateStatus(ctx context.Context, orderID int64, next domain.OrderStatus, actor string) (*service.OrderResult, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, next domain.PaymentStatus, actor string) (*service.OrderResult, error)
	CancelOrder(ctx context.Context, userID, orderID int64) (*service.OrderResult, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	GetUserOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID int64, filter domain.OrderFilter, limit, offset int) ([]*domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus, limit, offset int) ([]*domain.Order, error)
}

type OrderHandler struct {
	svc     OrderService
	limiter *RateLimiter
	timeout time.Duration
	log     *slog.Logger
}

// NewOrderHandler builds the order endpoints. A non-nil limiter also
// throttles checkout by the user_id in the request body.
func NewOrderHandler(svc OrderService, limiter *RateLimiter, timeout time.Duration, log *slog.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, limiter: limiter, timeout: timeout, log: log}
}

type CreateOrderRequestDTO struct {
	UserID          int64            `json:"user_id"`
	PaymentMethod   string           `json:"payment_method"`
	DeliveryAddress string           `json:"delivery_address"`
	DeliveryPhone   string           `json:"delivery_phone"`
	DeliveryNotes   string           `json:"delivery_notes"`
	DeliveryCost    *decimal.Decimal `json:"delivery_cost"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

type UpdatePaymentRequestDTO struct {
	PaymentStatus string `json:"payment_status"`
}

type OrderSummary struct {
	ID          int64              `json:"id"`
	OrderNumber string             `json:"order_number"`
	Status      domain.OrderStatus `json:"status"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
}

type CreateOrderResponse struct {
	Success bool         `json:"success"`
	Order   OrderSummary `json:"order"`
	Warning string       `json:"warning,omitempty"`
}

type OrderResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *domain.Order `json:"order"`
	Warning string        `json:"warning,omitempty"`
}

type OrderListResponse struct {
	Orders []*domain.Order `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateOrderRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be positive", nil)
		return
	}
	if h.limiter != nil && !h.limiter.Allow(userKey(req.UserID)) {
		respondRateLimited(w)
		return
	}
	cost := decimal.Zero
	if req.DeliveryCost != nil {
		cost = *req.DeliveryCost
	}

	res, err := h.svc.CreateOrder(ctx, service.CreateOrderRequest{
		UserID:          req.UserID,
		PaymentMethod:   req.PaymentMethod,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryPhone:   req.DeliveryPhone,
		DeliveryNotes:   req.DeliveryNotes,
		DeliveryCost:    cost,
	})
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateOrderResponse{
		Success: true,
		Order: OrderSummary{
			ID:          res.Order.ID,
			OrderNumber: res.Order.OrderNumber,
			Status:      res.Order.Status,
			TotalAmount: res.Order.TotalAmount,
		},
		Warning: res.Warning,
	})
}

func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdateStatusRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	res, err := h.svc.UpdateStatus(ctx, orderID, next, actor(r))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderResponse{
		Success: true,
		Message: fmt.Sprintf("order status changed to %s", res.Order.Status),
		Order:   res.Order,
		Warning: res.Warning,
	})
}

func (h *OrderHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}
	var req UpdatePaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := domain.ParsePaymentStatus(req.PaymentStatus)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	res, err := h.svc.UpdatePaymentStatus(ctx, orderID, next, actor(r))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderResponse{
		Success: true,
		Message: fmt.Sprintf("payment status changed to %s", res.Order.PaymentStatus),
		Order:   res.Order,
		Warning: res.Warning,
	})
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	res, err := h.svc.CancelOrder(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderResponse{
		Success: true,
		Message: "order cancelled",
		Order:   res.Order,
		Warning: res.Warning,
	})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(ctx, orderID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) GetUserOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.svc.GetUserOrder(ctx, userID, orderID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) ListUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	filter, err := domain.ParseOrderFilter(r.URL.Query().Get("filter"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	orders, err := h.svc.ListUserOrders(ctx, userID, filter, limit, offset)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderListResponse{Orders: nonNil(orders), Limit: limit, Offset: offset})
}

// ListOrders is the admin listing by status.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status, err := domain.ParseOrderStatus(r.URL.Query().Get("status"))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	limit, offset, err := paging(r)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	orders, err := h.svc.ListOrdersByStatus(ctx, status, limit, offset)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderListResponse{Orders: nonNil(orders), Limit: limit, Offset: offset})
}

func paging(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	switch {
	case limit == 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	return limit, offset, nil
}

func nonNil(orders []*domain.Order) []*domain.Order {
	if orders == nil {
		return []*domain.Order{}
	}
	return orders
}
