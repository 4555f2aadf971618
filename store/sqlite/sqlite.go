/*
Package sqlite provides a SQLite-backed implementation of the leave storage interfaces.

PURPOSE:
  Implements leave.TxStore (requests, balances, leave types, identity) and
  leave.Directory (onboarding writes) on a single SQLite database.

INTERFACES IMPLEMENTED:
  leave.RequestStore:     Leave request persistence
  leave.BalanceLedger:    Remaining days per employee and leave type
  leave.LeaveTypeStore:   Reference data
  leave.IdentityResolver: username -> users.email -> employees.email
  leave.TxStore:          Units of work
  leave.Directory:        Seeding and reset

KEY TABLES:
  users:          Authentication accounts (username, email, role)
  employees:      Profiles, matched to users by email
  leave_types:    Immutable reference data
  leave_balances: One row per (employee, leave type); CHECK remaining_days >= 0
  leave_requests: Requests with persisted num_days

WRITE PATH:
  Every insert and update of leave_requests goes through
  leave.NormalizeRequest first, so num_days always matches the stored dates.
  Status updates only match PENDING rows.

CONCURRENCY:
  Uses sync.RWMutex. WithTx holds the write lock for the whole unit of work,
  so two decisions against the same balance row run one after the other.
  Listings take the read lock and run concurrently.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := leave.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). PostgreSQL uses versioned migrations
  instead (store/postgres/migrations, applied by cmd/migrate).

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-ledger/leave"
)

// Store implements leave.TxStore and leave.Directory using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ leave.TxStore   = (*Store)(nil)
	_ leave.Directory = (*Store)(nil)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'EMPLOYEE'
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		remaining_days INTEGER NOT NULL CHECK (remaining_days >= 0),
		PRIMARY KEY (employee_id, leave_type_id)
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		leave_type_id TEXT NOT NULL REFERENCES leave_types(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		num_days INTEGER NOT NULL CHECK (num_days >= 1),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(employee_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUEST STORE (leave.RequestStore interface)
// =============================================================================

const selectRequest = `
	SELECT r.id, r.employee_id, r.leave_type_id, r.start_date, r.end_date,
	       r.reason, r.status, r.num_days, r.created_at, r.updated_at,
	       e.name, e.email, lt.name
	FROM leave_requests r
	LEFT JOIN employees e ON e.id = r.employee_id
	LEFT JOIN leave_types lt ON lt.id = r.leave_type_id
`

// CreateRequest inserts a request. NumDays is derived from the dates.
func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRequest(ctx, s.db, r)
}

func (s *Store) createRequest(ctx context.Context, q dbtx, r *leave.Request) (*leave.Request, error) {
	row := r.Clone()
	leave.NormalizeRequest(row)

	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_requests
		(id, employee_id, leave_type_id, start_date, end_date, reason, status, num_days, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		row.ID, row.EmployeeID, row.LeaveTypeID,
		formatDate(row.StartDate), formatDate(row.EndDate),
		nullString(row.Reason), string(row.Status), row.NumDays,
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt),
	)
	if err != nil {
		if isConstraintError(err, sqlite3.ErrConstraintForeignKey) {
			return nil, fmt.Errorf("%w: employee %q or leave type %q", leave.ErrNotFound, row.EmployeeID, row.LeaveTypeID)
		}
		return nil, fmt.Errorf("failed to insert leave request: %w", err)
	}

	return s.requestByID(ctx, q, row.ID)
}

// UpdateRequest rewrites a PENDING request. NumDays is re-derived from the dates.
func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateRequest(ctx, s.db, r)
}

func (s *Store) updateRequest(ctx context.Context, q dbtx, r *leave.Request) (*leave.Request, error) {
	row := r.Clone()
	leave.NormalizeRequest(row)

	res, err := q.ExecContext(ctx, `
		UPDATE leave_requests
		SET start_date = ?, end_date = ?, reason = ?, status = ?, num_days = ?, updated_at = ?
		WHERE id = ? AND status = 'PENDING'
	`,
		formatDate(row.StartDate), formatDate(row.EndDate), nullString(row.Reason),
		string(row.Status), row.NumDays, formatTime(row.UpdatedAt), row.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update leave request: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update leave request: %w", err)
	}
	if n == 0 {
		// Either missing or already decided.
		if _, err := s.requestByID(ctx, q, row.ID); err != nil {
			return nil, err
		}
		return nil, leave.ErrAlreadyProcessed
	}

	return s.requestByID(ctx, q, row.ID)
}

// RequestByID retrieves a request by ID.
func (s *Store) RequestByID(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requestByID(ctx, s.db, id)
}

func (s *Store) requestByID(ctx context.Context, q dbtx, id string) (*leave.Request, error) {
	r, err := scanRequest(q.QueryRowContext(ctx, selectRequest+" WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.NotFound(leave.KindRequest, id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RequestsByEmployee returns all requests of an employee, oldest first.
func (s *Store) RequestsByEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRequests(ctx, s.db,
		selectRequest+" WHERE r.employee_id = ? ORDER BY r.created_at ASC, r.rowid ASC", employeeID)
}

// RequestsByStatus returns all requests in a status, oldest first.
func (s *Store) RequestsByStatus(ctx context.Context, status leave.Status) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryRequests(ctx, s.db,
		selectRequest+" WHERE r.status = ? ORDER BY r.created_at ASC, r.rowid ASC", string(status))
}

func (s *Store) queryRequests(ctx context.Context, q dbtx, query string, args ...any) ([]leave.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
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
	return requests, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*leave.Request, error) {
	var (
		r                    leave.Request
		startDate, endDate   string
		reason               sql.NullString
		status               string
		createdAt, updatedAt string
		empName, empEmail    sql.NullString
		typeName             sql.NullString
	)

	err := sc.Scan(
		&r.ID, &r.EmployeeID, &r.LeaveTypeID, &startDate, &endDate,
		&reason, &status, &r.NumDays, &createdAt, &updatedAt,
		&empName, &empEmail, &typeName,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave request: %w", err)
	}

	r.StartDate, _ = time.Parse(leave.DateLayout, startDate)
	r.EndDate, _ = time.Parse(leave.DateLayout, endDate)
	r.CreatedAt, _ = time.Parse(timestampLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(timestampLayout, updatedAt)
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
// BALANCE LEDGER (leave.BalanceLedger interface)
// =============================================================================

const selectBalance = `
	SELECT b.employee_id, b.leave_type_id, b.remaining_days, lt.name
	FROM leave_balances b
	LEFT JOIN leave_types lt ON lt.id = b.leave_type_id
`

// Balance returns the balance row or leave.ErrNoBalanceRecord.
func (s *Store) Balance(ctx context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance(ctx, s.db, employeeID, leaveTypeID)
}

func (s *Store) balance(ctx context.Context, q dbtx, employeeID, leaveTypeID string) (*leave.Balance, error) {
	b, err := scanBalance(q.QueryRowContext(ctx,
		selectBalance+" WHERE b.employee_id = ? AND b.leave_type_id = ?",
		employeeID, leaveTypeID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.ErrNoBalanceRecord
	}
	return b, err
}

// BalancesByEmployee returns all balance rows of an employee.
func (s *Store) BalancesByEmployee(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balancesByEmployee(ctx, s.db, employeeID)
}

func (s *Store) balancesByEmployee(ctx context.Context, q dbtx, employeeID string) ([]leave.Balance, error) {
	rows, err := q.QueryContext(ctx,
		selectBalance+" WHERE b.employee_id = ? ORDER BY b.leave_type_id", employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave balances: %w", err)
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
	return balances, rows.Err()
}

// Deduct is a conditional decrement; it never drives remaining_days negative.
func (s *Store) Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deduct(ctx, s.db, employeeID, leaveTypeID, days)
}

func (s *Store) deduct(ctx context.Context, q dbtx, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE leave_balances
		SET remaining_days = remaining_days - ?
		WHERE employee_id = ? AND leave_type_id = ? AND remaining_days >= ?
	`, days, employeeID, leaveTypeID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to deduct leave balance: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to deduct leave balance: %w", err)
	}
	if n == 0 {
		current, err := s.balance(ctx, q, employeeID, leaveTypeID)
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

	return s.balance(ctx, q, employeeID, leaveTypeID)
}

func scanBalance(sc scanner) (*leave.Balance, error) {
	var (
		b        leave.Balance
		typeName sql.NullString
	)
	err := sc.Scan(&b.EmployeeID, &b.LeaveTypeID, &b.RemainingDays, &typeName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan leave balance: %w", err)
	}
	if typeName.Valid {
		b.LeaveType = &leave.LeaveType{ID: b.LeaveTypeID, Name: typeName.String}
	}
	return &b, nil
}

// =============================================================================
// REFERENCE DATA AND IDENTITY
// =============================================================================

// LeaveType retrieves a leave type by ID.
func (s *Store) LeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaveType(ctx, s.db, id)
}

func (s *Store) leaveType(ctx context.Context, q dbtx, id string) (*leave.LeaveType, error) {
	var lt leave.LeaveType
	err := q.QueryRowContext(ctx, "SELECT id, name FROM leave_types WHERE id = ?", id).Scan(&lt.ID, &lt.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.NotFound(leave.KindLeaveType, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave type: %w", err)
	}
	return &lt, nil
}

// Resolve maps a username to the employee sharing its email.
func (s *Store) Resolve(ctx context.Context, username string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(ctx, s.db, username)
}

func (s *Store) resolve(ctx context.Context, q dbtx, username string) (*leave.Employee, error) {
	var (
		userEmail       string
		id, name, email sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT u.email, e.id, e.name, e.email
		FROM users u
		LEFT JOIN employees e ON e.email = u.email
		WHERE u.username = ?
	`, username).Scan(&userEmail, &id, &name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, leave.NotFound(leave.KindUser, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}
	if !id.Valid {
		return nil, leave.NotFound(leave.KindEmployee, userEmail)
	}
	return &leave.Employee{ID: id.String, Name: name.String, Email: email.String}, nil
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	return ts.parent.createRequest(ctx, ts.tx, r)
}

func (ts *txStore) UpdateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	return ts.parent.updateRequest(ctx, ts.tx, r)
}

func (ts *txStore) RequestByID(ctx context.Context, id string) (*leave.Request, error) {
	return ts.parent.requestByID(ctx, ts.tx, id)
}

func (ts *txStore) RequestsByEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	return ts.parent.queryRequests(ctx, ts.tx,
		selectRequest+" WHERE r.employee_id = ? ORDER BY r.created_at ASC, r.rowid ASC", employeeID)
}

func (ts *txStore) RequestsByStatus(ctx context.Context, status leave.Status) ([]leave.Request, error) {
	return ts.parent.queryRequests(ctx, ts.tx,
		selectRequest+" WHERE r.status = ? ORDER BY r.created_at ASC, r.rowid ASC", string(status))
}

func (ts *txStore) Balance(ctx context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	return ts.parent.balance(ctx, ts.tx, employeeID, leaveTypeID)
}

func (ts *txStore) BalancesByEmployee(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	return ts.parent.balancesByEmployee(ctx, ts.tx, employeeID)
}

func (ts *txStore) Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	return ts.parent.deduct(ctx, ts.tx, employeeID, leaveTypeID, days)
}

func (ts *txStore) LeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	return ts.parent.leaveType(ctx, ts.tx, id)
}

func (ts *txStore) Resolve(ctx context.Context, username string) (*leave.Employee, error) {
	return ts.parent.resolve(ctx, ts.tx, username)
}

// =============================================================================
// DIRECTORY (leave.Directory interface)
// =============================================================================

// SaveUser upserts an account.
func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role := u.Role
	if role == "" {
		role = "EMPLOYEE"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, role) VALUES (?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET email = excluded.email, role = excluded.role
	`, u.Username, u.Email, role)
	return err
}

// SaveEmployee upserts a profile.
func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email
	`, e.ID, e.Name, e.Email)
	if isConstraintError(err, sqlite3.ErrConstraintUnique) {
		return fmt.Errorf("%w: %s", leave.ErrEmailTaken, e.Email)
	}
	return err
}

// SaveLeaveType upserts a leave type.
func (s *Store) SaveLeaveType(ctx context.Context, lt leave.LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, lt.ID, lt.Name)
	return err
}

// SetBalance creates or overwrites the allotment of a pair.
func (s *Store) SetBalance(ctx context.Context, b leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, leave_type_id, remaining_days) VALUES (?, ?, ?)
		ON CONFLICT(employee_id, leave_type_id) DO UPDATE SET remaining_days = excluded.remaining_days
	`, b.EmployeeID, b.LeaveTypeID, b.RemainingDays)
	if isConstraintError(err, sqlite3.ErrConstraintForeignKey) {
		return fmt.Errorf("%w: employee %q or leave type %q", leave.ErrNotFound, b.EmployeeID, b.LeaveTypeID)
	}
	if isConstraintError(err, sqlite3.ErrConstraintCheck) {
		return fmt.Errorf("remaining days must be non-negative, got %d", b.RemainingDays)
	}
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"leave_requests", "leave_balances", "employees", "users", "leave_types"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatDate(t time.Time) string {
	return t.Format(leave.DateLayout)
}

// timestampLayout is fixed width so that text order matches time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isConstraintError(err error, code sqlite3.ErrNoExtended) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == code
}
