package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_orders/internal/domain"
)

type CartService interface {
	GetCart(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int, notes string) (*domain.CartItem, error)
	UpdateItem(ctx context.Context, userID, itemID int64, quantity int, notes *string) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
	ValidateForCheckout(ctx context.Context, userID int64) (*domain.ValidatedCart, error)
}

type CartHandler struct {
	svc     CartService
	timeout time.Duration
	log     *slog.Logger
}

func NewCartHandler(svc CartService, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{svc: svc, timeout: timeout, log: log}
}

type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

type UpdateItemRequestDTO struct {
	Quantity int     `json:"quantity"`
	Notes    *string `json:"notes"`
}

type CartItemResponse struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	CartItem *domain.CartItem `json:"cart_item"`
}

type ValidateResponse struct {
	Valid      bool   `json:"valid"`
	ItemsCount int    `json:"items_count"`
	Subtotal   string `json:"subtotal"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	cart, err := h.svc.GetCart(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive", nil)
		return
	}

	item, err := h.svc.AddItem(ctx, userID, req.ProductID, req.Quantity, req.Notes)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, CartItemResponse{Success: true, Message: "item added to cart", CartItem: item})
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}
	var req UpdateItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	item, err := h.svc.UpdateItem(ctx, userID, itemID, req.Quantity, req.Notes)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, CartItemResponse{Success: true, Message: "cart item updated", CartItem: item})
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}

	if err := h.svc.RemoveItem(ctx, userID, itemID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "item removed from cart"})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.svc.ClearCart(ctx, userID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "cart cleared"})
}

// Validate is the checkout pre-check. It never changes the cart.
func (h *CartHandler) Validate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}

	vc, err := h.svc.ValidateForCheckout(ctx, userID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid:      true,
		ItemsCount: len(vc.Lines),
		Subtotal:   vc.Subtotal.StringFixed(2),
	})
}
