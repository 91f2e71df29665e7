package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrClosureInProgress is returned when a mutation races an in-flight year closure.
	ErrClosureInProgress = errors.New("year closure in progress")
	// ErrTargetsLocked indicates planning targets cannot be edited until unlocked.
	ErrTargetsLocked = errors.New("planning targets are locked")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError reports a status edge not permitted from the current state.
type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s: transition %s -> %s not permitted", e.Entity, e.ID, e.From, e.To)
}

// UnauthorizedError reports an actor role that cannot perform the attempted action.
type UnauthorizedError struct {
	Role   Role
	Action string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("role %s cannot perform %s", e.Role, e.Action)
}

// AlreadyResolvedError reports a concurrent-conflict on an entity that already
// reached a terminal state for the attempted operation.
type AlreadyResolvedError struct {
	Entity string
	ID     string
	State  string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("%s %s already resolved (state %s)", e.Entity, e.ID, e.State)
}

// AlreadyClosedError reports a repeated closure attempt for the same fiscal year.
type AlreadyClosedError struct {
	Year int
}

func (e *AlreadyClosedError) Error() string {
	return fmt.Sprintf("ethiopian year %d already closed", e.Year)
}

// DuplicateError reports a unique constraint hit on a business identifier.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.Key)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsConflict reports whether err signals a lost concurrent race
// (AlreadyResolved, AlreadyClosed, Duplicate, or ClosureInProgress).
func IsConflict(err error) bool {
	var re *AlreadyResolvedError
	var ce *AlreadyClosedError
	var de *DuplicateError
	return errors.As(err, &re) || errors.As(err, &ce) || errors.As(err, &de) ||
		errors.Is(err, ErrClosureInProgress)
}
