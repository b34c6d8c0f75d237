package bencode

import (
	"errors"
	"fmt"
)

var (
	ErrUnexpectedEnd    = errors.New("unexpected end of input")
	ErrInvalidStart     = errors.New("invalid start of value")
	ErrInvalidKey       = errors.New("dictionary key is not a byte string")
	ErrTruncatedInput   = errors.New("byte string runs past end of input")
	ErrInvalidLength    = errors.New("malformed byte string length")
	ErrMalformedInteger = errors.New("malformed integer")
	ErrIntegerOverflow  = errors.New("integer does not fit in 64 bits")
	ErrDuplicateKey     = errors.New("duplicate dictionary key")
	ErrNestingTooDeep   = errors.New("nesting too deep")
	ErrTrailingData     = errors.New("trailing data after value")

	// ErrInvalidValue is returned when encoding the zero Value
	ErrInvalidValue = errors.New("cannot encode invalid value")
)

// SyntaxError describes where decoding stopped. Err is one of the Err* values of this
// package, so callers match on it with errors.Is.
type SyntaxError struct {
	Offset int
	Err    error

	// Detail is optional extra context such as the offending character
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("bencode: %v %s at offset %d", e.Err, e.Detail, e.Offset)
	}
	return fmt.Sprintf("bencode: %v at offset %d", e.Err, e.Offset)
}

func (e *SyntaxError) Unwrap() error { return e.Err }
