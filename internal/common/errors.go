// Package common defines shared constants and sentinel errors used across
// authkeeper components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound     = errors.New("not found")
	ErrorDuplicateKey = errors.New("duplicate key")

	// Service-level taxonomy. Every public service operation reports one of
	// these kinds through an *OpError.
	ErrorValidation   = errors.New("validation error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorStorage      = errors.New("storage error")
	ErrorDelivery     = errors.New("delivery error")
	ErrorInternal     = errors.New("internal error")
)

// OpError is the result of a failed service operation. Kind is one of the
// taxonomy sentinels above and is what errors.Is matches against. Cause keeps
// the lower-level error for the calling layer to log; it is deliberately left
// out of Error() so nothing internal leaks to clients.
type OpError struct {
	Op    string
	Kind  error
	Cause error
}

// NewOpError builds an *OpError. A nil kind is treated as ErrorInternal.
func NewOpError(op string, kind error, cause error) *OpError {
	if kind == nil {
		kind = ErrorInternal
	}
	return &OpError{Op: op, Kind: kind, Cause: cause}
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Kind.Error()
}

func (e *OpError) Unwrap() error {
	return e.Kind
}

// CauseOf returns the underlying cause of an *OpError, or err itself.
func CauseOf(err error) error {
	var op *OpError
	if errors.As(err, &op) && op.Cause != nil {
		return op.Cause
	}
	return err
}
