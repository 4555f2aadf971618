/*
Package leave provides the leave request lifecycle and balance ledger.

PURPOSE:
  Employees submit leave requests against per-leave-type balances and
  managers approve or reject them. This package owns the rules that move a
  request from submission to a terminal decision while keeping balances
  consistent.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType: a category of absence (annual, sick, ...)
  - Balance:   remaining entitlement days for one employee/leave-type pair
  - Request:   an employee's ask to take leave over a date range
  - Employee:  the profile an authenticated username resolves to

STATE MACHINE:

  ┌─────────┐   approve   ┌──────────┐
  │ PENDING │────────────▶│ APPROVED │  (balance deducted)
  └─────────┘             └──────────┘
       │        reject    ┌──────────┐
       └─────────────────▶│ REJECTED │  (balance untouched)
                          └──────────┘

  Both decided states are terminal. A request is decided exactly once.

INVARIANTS:
  1. Balance.RemainingDays >= 0 at all times
  2. Request.NumDays is derived from the stored dates, never caller-supplied
  3. Only approval mutates a balance

SEE ALSO:
  - engine.go: Lifecycle engine (submit, list, decide)
  - store.go: Persistence interfaces
  - normalize.go: NumDays derivation
*/
package leave

import "time"

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a leave request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// IsDecision reports whether s is a valid target of a decision. Every
// decision lands in a terminal state.
func (s Status) IsDecision() bool {
	return s.IsTerminal()
}

// ParseStatus parses a status name, case-sensitive.
func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(raw), nil
	default:
		return "", ErrInvalidStatus
	}
}

// =============================================================================
// REFERENCE DATA
// =============================================================================

// LeaveType is immutable reference data.
type LeaveType struct {
	ID   string
	Name string
}

// Employee is the profile an authenticated principal resolves to.
type Employee struct {
	ID    string
	Name  string
	Email string
}

// User is an authentication account. Users map to employees by email.
type User struct {
	Username string
	Email    string
	Role     string
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the remaining entitlement for one (employee, leave type) pair.
type Balance struct {
	EmployeeID    string
	LeaveTypeID   string
	RemainingDays int

	// Populated by listing queries.
	LeaveType *LeaveType
}

// CanCover reports whether the balance covers days without going negative.
func (b Balance) CanCover(days int) bool {
	return b.RemainingDays >= days
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is a leave request. NumDays is recomputed by the store on every write.
type Request struct {
	ID          string
	EmployeeID  string
	LeaveTypeID string
	StartDate   time.Time
	EndDate     time.Time
	Reason      string
	Status      Status
	NumDays     int
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Eagerly loaded relations (listing queries only).
	Employee  *Employee
	LeaveType *LeaveType
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Employee != nil {
		e := *r.Employee
		c.Employee = &e
	}
	if r.LeaveType != nil {
		lt := *r.LeaveType
		c.LeaveType = &lt
	}
	return &c
}
