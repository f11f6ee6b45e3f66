package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("product is unavailable")
	ErrStaleItems        = errors.New("cart contains stale items")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPaymentRequired   = fmt.Errorf("order must be paid before completion: %w", ErrInvalidTransition)
	ErrEmptyCart         = errors.New("cart is empty")
	ErrConflictWriteLost = errors.New("concurrent update, write lost")
	ErrSinkNotifyFailed  = errors.New("notification sink failed")
	ErrValidation        = errors.New("validation failed")
)

// StaleItemsError lists the cart lines that blocked checkout.
type StaleItemsError struct {
	Items []StaleItem
}

func (e *StaleItemsError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		ids = append(ids, fmt.Sprintf("%d(%s)", it.ItemID, it.Reason))
	}
	return fmt.Sprintf("%s: %s", ErrStaleItems, strings.Join(ids, ", "))
}

func (e *StaleItemsError) Unwrap() error {
	return ErrStaleItems
}

type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TransitionError reports a rejected state machine edge.
type TransitionError struct {
	From string
	To   string
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}
