package updater

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrBadFCS        = errors.New("bad FCS")
	ErrTimeout       = errors.New("no data received")
	ErrShortResponse = errors.New("response truncated")
	ErrAborted       = errors.New("update aborted")
)

// ProtocolError ends the current transfer attempt. The update loop recovers
// the bootloader and repeats the attempt while retries are left.
type ProtocolError struct {
	Op       string
	Expected ResponseType
	Type     ResponseType
	Code     ResponseCode
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: bad response %s/%s (expected %s/%s)", e.Op, e.Type, e.Code, e.Expected, NO_ERROR)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError returns true if err (or its cause) is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ConfirmationRequiredError is returned before any device communication when
// an image would overwrite the bootloader without permission.
type ConfirmationRequiredError struct {
	Start  uint32
	Reason string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("overwrite of the bootloader at %#08x not allowed: %s", e.Start, e.Reason)
}

// IsConfirmationRequired returns true if err (or its cause) is a
// ConfirmationRequiredError.
func IsConfirmationRequired(err error) bool {
	var ce *ConfirmationRequiredError
	return errors.As(err, &ce)
}

func protoErr(op string, err error) error {
	return &ProtocolError{Op: op, Err: err}
}
