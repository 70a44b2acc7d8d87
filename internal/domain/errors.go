package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition   = errors.New("illegal transition of order status")
	ErrActionNotAllowed    = errors.New("action not allowed for order in its current state")
	ErrReturnNotEligible   = errors.New("order item is not eligible for return or exchange")
	ErrImagesRequired      = errors.New("at least one image is required for this reason")
	ErrRequestAlreadyFinal = errors.New("return request has already been decided")
	ErrTooManyImages       = errors.New("at most 5 images per request")
	ErrImageTooLarge       = errors.New("image exceeds 5 MB")
)

// ValidationError reports a single invalid input field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}
