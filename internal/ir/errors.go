package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes coordination errors.
type ErrorCode string

const (
	// ErrCodeConfiguration marks malformed behavior or glue. Fatal, raised
	// before the round loop starts.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"

	// ErrCodeGuardEvaluation marks a guard that failed to evaluate. The port
	// is treated as disabled for the round.
	ErrCodeGuardEvaluation ErrorCode = "GUARD_EVALUATION"

	// ErrCodeAccessViolation marks a data read or write by a port outside the
	// datum's access list. The interaction is discarded for the round.
	ErrCodeAccessViolation ErrorCode = "ACCESS_VIOLATION"

	// ErrCodeMissingProvider marks a data-in with no provider in the
	// interaction. The interaction is discarded for the round.
	ErrCodeMissingProvider ErrorCode = "MISSING_PROVIDER"

	// ErrCodeExecutorTimeout marks an executor that did not answer in time.
	// Its contribution is skipped for the round.
	ErrCodeExecutorTimeout ErrorCode = "EXECUTOR_TIMEOUT"

	// ErrCodeLifecycle marks misuse of the engine lifecycle. The engine stays
	// in its prior state.
	ErrCodeLifecycle ErrorCode = "LIFECYCLE"

	// ErrCodeFireFailed marks a transition whose action failed during FIRE.
	ErrCodeFireFailed ErrorCode = "FIRE_FAILED"
)

// Error is the single error type of the coordination taxonomy.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Component and Port locate the failure when known.
	Component string
	Port      string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Component != "" && e.Port != "":
		msg = fmt.Sprintf("%s (component=%s, port=%s)", msg, e.Component, e.Port)
	case e.Component != "":
		msg = fmt.Sprintf("%s (component=%s)", msg, e.Component)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// At returns a copy of e located at component and port.
func (e *Error) At(component, port string) *Error {
	c := *e
	c.Component = component
	c.Port = port
	return &c
}

// Wrap returns a copy of e with cause err.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// CodeOf returns the taxonomy code of err, or "" when err is not an *Error.
// Uses errors.As to handle wrapped and joined errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	// errors.As stops at the first match; joined errors may carry several.
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range joined.Unwrap() {
			if hasCode(inner, code) {
				return true
			}
		}
	}
	return false
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool { return hasCode(err, ErrCodeConfiguration) }

// IsGuardEvaluation reports whether err is a GuardEvaluationError.
func IsGuardEvaluation(err error) bool { return hasCode(err, ErrCodeGuardEvaluation) }

// IsAccessViolation reports whether err is a DataAccessViolation.
func IsAccessViolation(err error) bool { return hasCode(err, ErrCodeAccessViolation) }

// IsMissingProvider reports whether err is a missing data provider.
func IsMissingProvider(err error) bool { return hasCode(err, ErrCodeMissingProvider) }

// IsExecutorTimeout reports whether err is an ExecutorTimeout.
func IsExecutorTimeout(err error) bool { return hasCode(err, ErrCodeExecutorTimeout) }

// IsLifecycle reports whether err is an EngineLifecycleError.
func IsLifecycle(err error) bool { return hasCode(err, ErrCodeLifecycle) }

// IsRoundLocal reports whether err only affects the current round.
func IsRoundLocal(err error) bool {
	switch CodeOf(err) {
	case ErrCodeGuardEvaluation, ErrCodeAccessViolation, ErrCodeMissingProvider,
		ErrCodeExecutorTimeout, ErrCodeFireFailed:
		return true
	}
	return false
}
