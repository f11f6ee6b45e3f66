package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

const maxBodyBytes = 1 << 20

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string, details any) {
	respondJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message, Details: details}})
}

// handleServiceError maps domain and infrastructure errors onto the
// HTTP error envelope. Unknown errors are logged and hidden behind a 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		stale      *domain.StaleItemsError
		validation *domain.ValidationError
	)
	switch {
	case errors.As(err, &stale):
		respondError(w, http.StatusUnprocessableEntity, "stale_items",
			"some cart items changed since they were added; refresh the cart", stale.Items)
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, "validation_failed", validation.Message,
			map[string]string{"field": validation.Field})
	case errors.Is(err, domain.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99", nil)
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrConflictWriteLost):
		respondError(w, http.StatusConflict, "conflict", "the resource was changed concurrently; retry", nil)
	case errors.Is(err, domain.ErrPaymentRequired):
		respondError(w, http.StatusUnprocessableEntity, "payment_required", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		respondError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error(), nil)
	case errors.Is(err, domain.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", "cart is empty", nil)
	case errors.Is(err, domain.ErrUnavailable):
		respondError(w, http.StatusUnprocessableEntity, "unavailable", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	default:
		log.ErrorContext(r.Context(), "request failed",
			"request_id", getRequestID(r.Context()), "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", nil)
		return false
	}
	return true
}

// pathID reads a positive integer URL parameter, answering 400 otherwise.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewValidationError(name, name+" must be a non-negative integer")
	}
	return v, nil
}

func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, domain.NewValidationError(name, name+" must be true or false")
	}
	return v, nil
}
