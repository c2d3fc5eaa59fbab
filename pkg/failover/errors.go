package failover

import (
	"errors"
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindProbe            ErrorKind = "probe"
	KindNoEligibleTarget ErrorKind = "no_eligible_target"
	KindExecution        ErrorKind = "execution"
	KindConcurrencyLimit ErrorKind = "concurrency_limit"
	KindRecoveryAborted  ErrorKind = "recovery_aborted"
)

// Error is the structured error returned from every failed operation:
// kind, reason and the entity it concerns. All kinds are recoverable at
// the endpoint/event granularity.
type Error struct {
	Kind   ErrorKind
	Entity string
	Reason string
	// RetryAfter is a hint set for concurrency_limit errors.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Entity, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, entity string, format string, args ...any) *Error {
	return &Error{
		Kind:   kind,
		Entity: entity,
		Reason: fmt.Sprintf(format, args...),
	}
}

func IsKind(err error, kind ErrorKind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}
