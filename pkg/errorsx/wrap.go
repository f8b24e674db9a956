package errorsx

import (
	"errors"
	"fmt"
)

// Error lets a ReasonCode be used as an errors.Is target:
//
//	errors.Is(err, errorsx.ReasonPipelineBusy)
func (r ReasonCode) Error() string { return string(r) }

// ReasonedError tags a pipeline, recorder or backend failure with the reason
// that ends up in stage_error events and HTTP details.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e *ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *ReasonedError) Unwrap() error { return e.Err }

// Is matches a bare ReasonCode target against the carried reason.
func (e *ReasonedError) Is(target error) bool {
	code, ok := target.(ReasonCode)
	return ok && code == e.Reason
}

// Wrap tags err with reason. An existing reason wins, so a stage client
// error keeps its transport reason when the orchestrator wraps it again.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return &ReasonedError{Err: err, Reason: reason}
}

// New returns a reasoned error with the given message.
func New(reason ReasonCode, msg string) error {
	return &ReasonedError{Err: errors.New(msg), Reason: reason}
}

// Errorf is New with fmt formatting; %w keeps the wrapped error reachable.
func Errorf(reason ReasonCode, format string, args ...any) error {
	return &ReasonedError{Err: fmt.Errorf(format, args...), Reason: reason}
}

// Reason returns the first reason in err's chain, or ReasonUnknown.
func Reason(err error) ReasonCode {
	var re *ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
