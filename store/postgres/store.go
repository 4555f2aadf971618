/*
Package postgres provides the PostgreSQL implementation of the leave storage interfaces.

PURPOSE:
  Implements leave.TxStore and leave.Directory on pgx. Units of work run in a
  pgx transaction carried by the context (see transaction.go), so the same
  Store value serves both pooled reads and transactional writes.

ROW LOCKING:
  Inside a transaction, RequestByID and Balance lock the rows they read
  (SELECT ... FOR UPDATE). Two decisions against the same balance row
  therefore serialize, and the insufficient-balance re-check always sees the
  value the deduction will act on. Deduct is additionally conditional
  (remaining_days >= n), so the CHECK constraint is never the last line.

SCHEMA:
  Versioned migrations in migrations/, applied with cmd/migrate.

ERROR TRANSLATION:
  pgx.ErrNoRows  -> leave.NotFound / leave.ErrNoBalanceRecord
  23503 (FK)     -> leave.ErrNotFound
  23514 (CHECK)  -> leave.ErrInvalidRange for the date range constraint
  anything else  -> wrapped, surfaced as an internal failure

SEE ALSO:
  - transaction.go: WithTx and the context-carried transaction
  - store/sqlite: SQLite implementation of the same interfaces
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/warp/leave-ledger/leave"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"

	dateRangeConstraint     = "leave_requests_date_range"
	employeeEmailConstraint = "employees_email_key"
)

// Pool is satisfied by *pgxpool.Pool and pgxmock pools.
type Pool interface {
	Queryer
	txStarter
	Ping(ctx context.Context) error
}

// Store implements leave.TxStore and leave.Directory.
type Store struct {
	pool Pool
}

var (
	_ leave.TxStore   = (*Store)(nil)
	_ leave.Directory = (*Store)(nil)
)

// New creates a Store over pool.
func New(pool Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

const selectRequest = `
        SELECT r.id, r.employee_id, r.leave_type_id, r.start_date, r.end_date,
               r.reason, r.status, r.num_days, r.created_at, r.updated_at,
               e.name, e.email, lt.name
          FROM leave_requests r
          LEFT JOIN employees e ON e.id = r.employee_id
          LEFT JOIN leave_types lt ON lt.id = r.leave_type_id`

const (
	queryRequestByID        = selectRequest + ` WHERE r.id = $1`
	queryRequestByIDLocked  = queryRequestByID + ` FOR UPDATE OF r`
	queryRequestsByEmployee = selectRequest + ` WHERE r.employee_id = $1 ORDER BY r.created_at ASC, r.id ASC`
	queryRequestsByStatus   = selectRequest + ` WHERE r.status = $1 ORDER BY r.created_at ASC, r.id ASC`

	insertRequest = `
        INSERT INTO leave_requests
               (id, employee_id, leave_type_id, start_date, end_date, reason, status, num_days, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updatePendingRequest = `
        UPDATE leave_requests
           SET start_date = $1, end_date = $2, reason = $3, status = $4, num_days = $5, updated_at = $6
         WHERE id = $7 AND status = 'PENDING'`
)

// CreateRequest inserts a request. NumDays is derived from the dates.
func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	row := r.Clone()
	leave.NormalizeRequest(row)

	exec := s.conn(ctx)
	_, err := exec.Exec(ctx, insertRequest,
		row.ID, row.EmployeeID, row.LeaveTypeID,
		row.StartDate, row.EndDate, nullableString(row.Reason),
		string(row.Status), row.NumDays, row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return nil, translatePgError(err)
	}

	return s.findRequest(ctx, queryRequestByID, row.ID)
}

// UpdateRequest rewrites a PENDING request. NumDays is re-derived from the dates.
func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	row := r.Clone()
	leave.NormalizeRequest(row)

	exec := s.conn(ctx)
	tag, err := exec.Exec(ctx, updatePendingRequest,
		row.StartDate, row.EndDate, nullableString(row.Reason),
		string(row.Status), row.NumDays, row.UpdatedAt, row.ID,
	)
	if err != nil {
		return nil, translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.findRequest(ctx, queryRequestByID, row.ID); err != nil {
			return nil, err
		}
		return nil, leave.ErrAlreadyProcessed
	}

	return s.findRequest(ctx, queryRequestByID, row.ID)
}

// RequestByID returns the request, locking its row inside a transaction.
func (s *Store) RequestByID(ctx context.Context, id string) (*leave.Request, error) {
	query := queryRequestByID
	if inTx(ctx) {
		query = queryRequestByIDLocked
	}
	return s.findRequest(ctx, query, id)
}

func (s *Store) findRequest(ctx context.Context, query, id string) (*leave.Request, error) {
	exec := s.conn(ctx)
	r, err := scanRequest(exec.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, leave.NotFound(leave.KindRequest, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RequestsByEmployee returns all requests of an employee, oldest first.
func (s *Store) RequestsByEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	return s.queryRequests(ctx, queryRequestsByEmployee, employeeID)
}

// RequestsByStatus returns all requests in a status, oldest first.
func (s *Store) RequestsByStatus(ctx context.Context, status leave.Status) ([]leave.Request, error) {
	return s.queryRequests(ctx, queryRequestsByStatus, string(status))
}

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	exec := s.conn(ctx)
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query leave requests: %w", err)
	}
	defer rows.Close()

	requests := make([]leave.Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate leave requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row pgx.Row) (*leave.Request, error) {
	var (
		r                  leave.Request
		reason             sql.NullString
		status             string
		empName, empEmail  sql.NullString
		typeName           sql.NullString
		startDate, endDate time.Time
	)

	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.LeaveTypeID, &startDate, &endDate,
		&reason, &status, &r.NumDays, &r.CreatedAt, &r.UpdatedAt,
		&empName, &empEmail, &typeName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan leave request: %w", err)
	}

	r.StartDate = leave.NormalizeDate(startDate)
	r.EndDate = leave.NormalizeDate(endDate)
	r.Reason = reason.String
	r.Status = leave.Status(status)
	if empName.Valid {
		r.Employee = &leave.Employee{ID: r.EmployeeID, Name: empName.String, Email: empEmail.String}
	}
	if typeName.Valid {
		r.LeaveType = &leave.LeaveType{ID: r.LeaveTypeID, Name: typeName.String}
	}
	return &r, nil
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

const selectBalance = `
        SELECT b.employee_id, b.leave_type_id, b.remaining_days, lt.name
          FROM leave_balances b
          LEFT JOIN leave_types lt ON lt.id = b.leave_type_id`

const (
	queryBalance            = selectBalance + ` WHERE b.employee_id = $1 AND b.leave_type_id = $2`
	queryBalanceLocked      = queryBalance + ` FOR UPDATE OF b`
	queryBalancesByEmployee = selectBalance + ` WHERE b.employee_id = $1 ORDER BY b.leave_type_id`
)

const deductBalanceIfSufficient = `
        UPDATE leave_balances
           SET remaining_days = remaining_days - $1
         WHERE employee_id = $2 AND leave_type_id = $3 AND remaining_days >= $1
        RETURNING remaining_days`

// Balance returns the balance row, locking it inside a transaction.
func (s *Store) Balance(ctx context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	query := queryBalance
	if inTx(ctx) {
		query = queryBalanceLocked
	}

	exec := s.conn(ctx)
	b, err := scanBalance(exec.QueryRow(ctx, query, employeeID, leaveTypeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, leave.ErrNoBalanceRecord
	}
	return b, err
}

// BalancesByEmployee returns all balance rows of an employee.
func (s *Store) BalancesByEmployee(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	exec := s.conn(ctx)
	rows, err := exec.Query(ctx, queryBalancesByEmployee, employeeID)
	if err != nil {
		return nil, fmt.Errorf("postgres: query leave balances: %w", err)
	}
	defer rows.Close()

	balances := make([]leave.Balance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate leave balances: %w", err)
	}
	return balances, nil
}

// Deduct is a conditional decrement; it never drives remaining_days negative.
func (s *Store) Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	exec := s.conn(ctx)

	var remaining int
	err := exec.QueryRow(ctx, deductBalanceIfSufficient, days, employeeID, leaveTypeID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := s.Balance(ctx, employeeID, leaveTypeID)
		if err != nil {
			return nil, err
		}
		return nil, &leave.InsufficientBalanceError{
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			Available:   current.RemainingDays,
			Requested:   days,
		}
	}
	if err != nil {
		return nil, translatePgError(err)
	}

	return &leave.Balance{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, RemainingDays: remaining}, nil
}

func scanBalance(row pgx.Row) (*leave.Balance, error) {
	var (
		b        leave.Balance
		typeName sql.NullString
	)
	err := row.Scan(&b.EmployeeID, &b.LeaveTypeID, &b.RemainingDays, &typeName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: scan leave balance: %w", err)
	}
	if typeName.Valid {
		b.LeaveType = &leave.LeaveType{ID: b.LeaveTypeID, Name: typeName.String}
	}
	return &b, nil
}

// =============================================================================
// REFERENCE DATA AND IDENTITY
// =============================================================================

const (
	queryLeaveType = `SELECT id, name FROM leave_types WHERE id = $1`

	queryResolve = `
        SELECT u.email, e.id, e.name, e.email
          FROM users u
          LEFT JOIN employees e ON e.email = u.email
         WHERE u.username = $1
         LIMIT 1`
)

// LeaveType returns a leave type by ID.
func (s *Store) LeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	exec := s.conn(ctx)

	var lt leave.LeaveType
	err := exec.QueryRow(ctx, queryLeaveType, id).Scan(&lt.ID, &lt.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, leave.NotFound(leave.KindLeaveType, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get leave type: %w", err)
	}
	return &lt, nil
}

// Resolve maps a username to the employee sharing its email.
func (s *Store) Resolve(ctx context.Context, username string) (*leave.Employee, error) {
	exec := s.conn(ctx)

	var (
		userEmail       string
		id, name, email sql.NullString
	)
	err := exec.QueryRow(ctx, queryResolve, username).Scan(&userEmail, &id, &name, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, leave.NotFound(leave.KindUser, username)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve user: %w", err)
	}
	if !id.Valid {
		return nil, leave.NotFound(leave.KindEmployee, userEmail)
	}
	return &leave.Employee{ID: id.String, Name: name.String, Email: email.String}, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

// SaveUser upserts an account.
func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	role := u.Role
	if role == "" {
		role = "EMPLOYEE"
	}
	_, err := s.conn(ctx).Exec(ctx, `
        INSERT INTO users (username, email, role) VALUES ($1, $2, $3)
        ON CONFLICT (username) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role`,
		u.Username, u.Email, role)
	return translatePgError(err)
}

// SaveEmployee upserts a profile.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	_, err := s.conn(ctx).Exec(ctx, `
        INSERT INTO employees (id, name, email) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`,
		e.ID, e.Name, e.Email)
	return translatePgError(err)
}

// SaveLeaveType upserts a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	_, err := s.conn(ctx).Exec(ctx, `
        INSERT INTO leave_types (id, name) VALUES ($1, $2)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		lt.ID, lt.Name)
	return translatePgError(err)
}

// SetBalance creates or overwrites the allotment of a pair.
func (s *Store) SetBalance(ctx context.Context, b leave.Balance) error {
	_, err := s.conn(ctx).Exec(ctx, `
        INSERT INTO leave_balances (employee_id, leave_type_id, remaining_days) VALUES ($1, $2, $3)
        ON CONFLICT (employee_id, leave_type_id) DO UPDATE SET remaining_days = EXCLUDED.remaining_days`,
		b.EmployeeID, b.LeaveTypeID, b.RemainingDays)
	return translatePgError(err)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn(ctx).Exec(ctx,
		`TRUNCATE leave_requests, leave_balances, employees, users, leave_types`)
	return translatePgError(err)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case foreignKeyViolationCode:
		return fmt.Errorf("%w: %s", leave.ErrNotFound, pgErr.Detail)
	case checkViolationCode:
		if pgErr.ConstraintName == dateRangeConstraint {
			return leave.ErrInvalidRange
		}
		return fmt.Errorf("postgres: check violation %s: %w", pgErr.ConstraintName, err)
	case uniqueViolationCode:
		if pgErr.ConstraintName == employeeEmailConstraint {
			return fmt.Errorf("%w: %s", leave.ErrEmailTaken, pgErr.Detail)
		}
		return fmt.Errorf("postgres: duplicate key %s: %w", pgErr.ConstraintName, err)
	default:
		return err
	}
}
