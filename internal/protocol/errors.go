package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed       = errors.New("protocol: malformed frame")
	ErrTruncated       = errors.New("protocol: truncated frame")
	ErrUnknownKeyword  = errors.New("protocol: unknown leading keyword")
	ErrUnexpectedFrame = errors.New("protocol: unexpected frame type")
)

// FieldViolationError indicates a frame field failed its character-class or
// length constraint. It unwraps to ErrMalformed so wire-level handling can
// treat a bad field the same way as an unparseable frame.
type FieldViolationError struct {
	Field  string
	Reason string
}

func (e FieldViolationError) Error() string {
	return fmt.Sprintf("protocol: invalid %s: %s", e.Field, e.Reason)
}

func (e FieldViolationError) Unwrap() error {
	return ErrMalformed
}
