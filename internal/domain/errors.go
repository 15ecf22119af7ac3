package domain

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrOutOfStock = errors.New("product is out of stock")
)

const (
	MsgFillAllFields = "Please fill in all fields"
	MsgOutOfStock    = "This product is out of stock"
)

// ValidationError carries the message shown to the user. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
