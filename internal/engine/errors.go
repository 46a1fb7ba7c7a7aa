package engine

import (
	"context"
	"errors"
	"fmt"

	"shiftline/internal/repo"
)

// Error kinds. Match them with errors.Is; every error the engine returns
// for a rejected operation wraps exactly one of these.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNoActiveCriteria    = errors.New("no active criteria")
	ErrEvaluationBlocked   = errors.New("evaluation blocked")
	ErrOverlap             = errors.New("criteria windows overlap")
	ErrInvalidRange        = errors.New("invalid range")
	ErrLocked              = errors.New("locked")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateAssignment = errors.New("duplicate assignment")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// Error carries the kind plus the operation and entity it was raised for, so
// callers can look up the audit history of a rejected attempt.
type Error struct {
	Kind     error
	Op       string
	EntityID string
	Msg      string
	// PaymentID is set for ErrLocked.
	PaymentID string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func validationf(format string, args ...any) error {
	return newError(ErrValidation, format, args...)
}

func lockedError(paymentID string) error {
	e := newError(ErrLocked, "included in payment %s", paymentID)
	e.PaymentID = paymentID
	return e
}

// fromRepo maps storage sentinels onto the engine taxonomy. what names the
// missing or conflicting thing for the message.
func fromRepo(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return newError(ErrNotFound, "%s", what)
	case errors.Is(err, repo.ErrConflict):
		return newError(ErrConcurrencyConflict, "%s was modified concurrently", what)
	case errors.Is(err, repo.ErrDuplicate):
		return newError(ErrDuplicateAssignment, "%s", what)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("persistence timeout: %w", err)
	}
	return err
}

// annotate stamps the operation and entity on engine errors.
func annotate(err error, op, entityID string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			e.Op = op
		}
		if e.EntityID == "" {
			e.EntityID = entityID
		}
		return err
	}
	return fmt.Errorf("%s %s: %w", op, entityID, err)
}
