package errorsx

import (
	"errors"
	"fmt"
	"strings"
)

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to an error (no-op if err is nil or already reasoned).
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Reason extracts a reason code from an error, if present.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason returns true if err contains the given reason code.
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// AttemptedError carries the upload strategies tried before the final failure.
type AttemptedError struct {
	Err       error
	Attempted []string
}

func (e AttemptedError) Error() string {
	if len(e.Attempted) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (attempted: %s)", e.Err.Error(), strings.Join(e.Attempted, ", "))
}

func (e AttemptedError) Unwrap() error {
	return e.Err
}

// Annotate records the attempted strategy names on an error.
func Annotate(err error, attempted []string) error {
	if err == nil {
		return nil
	}
	return AttemptedError{Err: err, Attempted: attempted}
}

// Attempted extracts the strategy names recorded on an error, if any.
func Attempted(err error) []string {
	var ae AttemptedError
	if errors.As(err, &ae) {
		return ae.Attempted
	}
	return nil
}
