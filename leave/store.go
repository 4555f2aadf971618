/*
store.go - Persistence interfaces for the leave engine

PURPOSE:
  Defines the interface between the lifecycle engine and the database.
  Three implementations exist (memory, SQLite, PostgreSQL), which is why the
  engine depends on interfaces here rather than on a concrete store.

KEY INTERFACES:
  RequestStore:     Leave request records (create, update, find)
  BalanceLedger:    Per-employee, per-type remaining days (read, deduct)
  LeaveTypeStore:   Reference data lookup
  IdentityResolver: Username -> employee profile
  TxStore:          Atomic unit of work across all of the above
  Directory:        Onboarding writes (users, employees, types, initial balances)

WRITE PATH NORMALIZATION:
  CreateRequest and UpdateRequest MUST call NormalizeRequest before writing,
  so the persisted NumDays always matches the persisted dates.

TERMINAL REQUESTS:
  UpdateRequest only matches PENDING rows. Updating a decided request fails
  with ErrAlreadyProcessed, which makes the status write conditional and
  turns a lost race between two deciders into a rollback.

DEDUCT:
  Deduct is a conditional decrement. It never drives a balance negative and
  fails with ErrNoBalanceRecord or *InsufficientBalanceError instead.

IMPLEMENTATIONS:
  - leave/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: SQLite
  - store/postgres: PostgreSQL with row locks

SEE ALSO:
  - engine.go: The only caller of TxStore.WithTx
*/
package leave

import "context"

// =============================================================================
// REQUEST STORE
// =============================================================================

// RequestStore persists leave requests.
type RequestStore interface {
	// CreateRequest inserts a request. NumDays is re-derived from the dates.
	CreateRequest(ctx context.Context, r *Request) (*Request, error)

	// UpdateRequest rewrites dates, reason and status of a PENDING request.
	// NumDays is re-derived from the dates.
	UpdateRequest(ctx context.Context, r *Request) (*Request, error)

	// RequestByID returns the request or a NotFoundError.
	RequestByID(ctx context.Context, id string) (*Request, error)

	// RequestsByEmployee returns all requests of an employee, oldest first,
	// with employee and leave type loaded.
	RequestsByEmployee(ctx context.Context, employeeID string) ([]Request, error)

	// RequestsByStatus returns all requests in a status, oldest first,
	// with employee and leave type loaded in the same query.
	RequestsByStatus(ctx context.Context, status Status) ([]Request, error)
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

// BalanceLedger stores remaining entitlement days.
type BalanceLedger interface {
	// Balance returns the row for the pair or ErrNoBalanceRecord.
	Balance(ctx context.Context, employeeID, leaveTypeID string) (*Balance, error)

	// BalancesByEmployee returns all rows of an employee with leave types loaded.
	BalancesByEmployee(ctx context.Context, employeeID string) ([]Balance, error)

	// Deduct decrements the balance by days, failing if it would go negative.
	Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*Balance, error)
}

// =============================================================================
// REFERENCE DATA AND IDENTITY
// =============================================================================

// LeaveTypeStore looks up leave types.
type LeaveTypeStore interface {
	LeaveType(ctx context.Context, id string) (*LeaveType, error)
}

// IdentityResolver maps an authenticated username to an employee profile.
type IdentityResolver interface {
	Resolve(ctx context.Context, username string) (*Employee, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// Store is everything a unit of work may touch. Identity resolution is part
// of it so a unit of work can resolve the caller on the same connection.
type Store interface {
	RequestStore
	BalanceLedger
	LeaveTypeStore
	IdentityResolver
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error the transaction is rolled back, otherwise committed.
	// fn must use the ctx and Store it is given.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// =============================================================================
// ONBOARDING
// =============================================================================

// Directory holds the onboarding writes that happen outside the lifecycle:
// accounts, profiles, reference data and initial allotments.
type Directory interface {
	SaveUser(ctx context.Context, u User) error
	SaveEmployee(ctx context.Context, e Employee) error
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	SetBalance(ctx context.Context, b Balance) error
	Reset(ctx context.Context) error
}
