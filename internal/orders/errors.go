package orders

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("order not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrDuplicateTransition = errors.New("transition already applied")
	ErrConflict            = errors.New("order was modified concurrently")
	ErrAlreadyExists       = errors.New("order already exists")
	ErrStaleRevision       = errors.New("stale order revision")
)
