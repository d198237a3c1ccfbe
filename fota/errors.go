package fota

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrBuildIDMismatch = errors.New("build IDs of FOTA and application image do not match")
	ErrTruncated       = errors.New("image truncated")
)

// ValidationError reports a malformed or out of bounds image field. Images
// failing validation are never flashed or composed.
type ValidationError struct {
	Field  string
	Addr   uint32
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s invalid (0x%08X)", e.Field, e.Addr)
	}
	return fmt.Sprintf("%s invalid (0x%08X): %s", e.Field, e.Addr, e.Reason)
}

// IsValidationError returns true if err (or its cause) is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SigningError reports unusable signing key material.
type SigningError struct {
	Reason string
	Err    error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing key unusable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signing key unusable: %s", e.Reason)
}

func (e *SigningError) Unwrap() error { return e.Err }

func invalid(field string, addr uint32, reason string) error {
	return &ValidationError{Field: field, Addr: addr, Reason: reason}
}
