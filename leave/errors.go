/*
errors.go - Error taxonomy of the leave engine

PURPOSE:
  All caller-recoverable failures in one place. The transport layer maps
  these to status codes; anything else is an internal failure.

ERROR CATEGORIES:
  1. Validation - ErrInvalidRange, ErrInvalidStatus
  2. Lookup     - ErrNotFound (leave type, employee profile, request)
  3. State      - ErrNoBalanceRecord, ErrInsufficientBalance, ErrAlreadyProcessed
  4. Onboarding - ErrEmailTaken

USAGE:
  if errors.Is(err, leave.ErrInsufficientBalance) {
      var ib *leave.InsufficientBalanceError
      if errors.As(err, &ib) { ... ib.Shortfall() ... }
  }

SEE ALSO:
  - engine.go: Returns these errors
  - api/errors.go: HTTP mapping
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRange is returned when the end date is before the start date.
	ErrInvalidRange = errors.New("invalid range: end date before start date")

	// ErrNotFound is returned when a leave type, employee profile or request is missing.
	ErrNotFound = errors.New("not found")

	// ErrNoBalanceRecord is returned when no ledger row exists for the employee/type pair.
	ErrNoBalanceRecord = errors.New("no leave balance record")

	// ErrInsufficientBalance is returned when the remaining days do not cover a request.
	ErrInsufficientBalance = errors.New("insufficient leave balance")

	// ErrAlreadyProcessed is returned when a decision targets a non-pending request.
	ErrAlreadyProcessed = errors.New("leave request already processed")

	// ErrInvalidStatus is returned for a decision status other than APPROVED or REJECTED.
	ErrInvalidStatus = errors.New("invalid leave request status")

	// ErrEmailTaken is returned when a profile reuses another employee's email.
	// Resolution joins users to employees by email, so it must stay unique.
	ErrEmailTaken = errors.New("employee email already in use")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Kinds of missing resources reported by NotFoundError.
const (
	KindLeaveType = "leave type"
	KindEmployee  = "employee profile"
	KindUser      = "user"
	KindRequest   = "leave request"
)

// NotFoundError names the missing resource.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound builds a NotFoundError.
func NotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID  string
	LeaveTypeID string
	Available   int
	Requested   int
}

// Shortfall is the number of days missing.
func (e *InsufficientBalanceError) Shortfall() int {
	return e.Requested - e.Available
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient leave balance: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the caller can recover by fixing input or waiting
// for state to change.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoBalanceRecord) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrAlreadyProcessed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Kind returns a short machine name for err, used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoBalanceRecord):
		return "no_balance_record"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrAlreadyProcessed):
		return "already_processed"
	default:
		return "internal"
	}
}
