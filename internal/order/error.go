package order

import "errors"

var (
	ErrNoItems           = errors.New("no items in the order")
	ErrMissingProduct    = errors.New("product is required for every item")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrMissingTotal      = errors.New("totalAmount is required")
	ErrInvalidTotal      = errors.New("totalAmount must be non-negative with at most 2 decimal places")
	ErrProductNotFound   = errors.New("product not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)
