package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a unique constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInUse indicates the row is still referenced and cannot be removed.
	ErrInUse = errors.New("in use")
	// ErrInsufficientStock is returned by conditional stock decrements.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCartNotActive is returned when a cart was converted by someone else.
	ErrCartNotActive = errors.New("cart not active")
)
