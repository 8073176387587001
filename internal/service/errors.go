package serviceerrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrContextCanceled   = errors.New("context canceled")
	ErrDeadlineExceeded  = errors.New("deadline exceeded")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCartChanged       = errors.New("cart changed since it was read")
)

// PurchaseError is returned by Buy when a product has fewer units in stock
// than the cart asks for.
type PurchaseError struct {
	Product   string
	Requested int
	Available int
}

func (e *PurchaseError) Error() string {
	return fmt.Sprintf("not enough units of product %s in stock: requested %d, available %d",
		e.Product, e.Requested, e.Available)
}

func (e *PurchaseError) Missing() int {
	return e.Requested - e.Available
}

func (e *PurchaseError) Unwrap() error {
	return ErrInsufficientStock
}
