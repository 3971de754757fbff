package service

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProductNotFound   = errors.New("product not found")
	ErrCartNotFound      = errors.New("cart not found")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLockConflict      = errors.New("stock is currently being processed")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCheckoutFailed    = errors.New("checkout failed")
)
