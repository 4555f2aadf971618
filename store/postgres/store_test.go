package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC)
}

var requestColumns = []string{
	"id", "employee_id", "leave_type_id", "start_date", "end_date",
	"reason", "status", "num_days", "created_at", "updated_at",
	"name", "email", "name",
}

func requestRows(id string, status leave.Status, start, end time.Time, numDays int) *pgxmock.Rows {
	now := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(requestColumns).AddRow(
		id, "emp-1", "lt-annual", start, end,
		"trip", string(status), numDays, now, now,
		"Dana Cole", "dana@example.com", "Annual Leave",
	)
}

func balanceRows(remaining int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"employee_id", "leave_type_id", "remaining_days", "name"}).
		AddRow("emp-1", "lt-annual", remaining, "Annual Leave")
}

func q(query string) string {
	return regexp.QuoteMeta(query)
}

// =============================================================================
// REQUEST STORE
// =============================================================================

func TestCreateRequest_DerivesNumDays(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	// GIVEN: A caller-supplied NumDays of 99 for a 3-day range
	mock.ExpectExec(q(insertRequest)).
		WithArgs("r1", "emp-1", "lt-annual", day(1, 1), day(1, 3), "trip", "PENDING", 3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(q(queryRequestByID)).
		WithArgs("r1").
		WillReturnRows(requestRows("r1", leave.StatusPending, day(1, 1), day(1, 3), 3))

	// WHEN: Created
	created, err := store.CreateRequest(context.Background(), &leave.Request{
		ID: "r1", EmployeeID: "emp-1", LeaveTypeID: "lt-annual",
		StartDate: day(1, 1), EndDate: day(1, 3), Reason: "trip",
		Status: leave.StatusPending, NumDays: 99,
	})

	// THEN: 3 is written, relations are loaded
	require.NoError(t, err)
	assert.Equal(t, 3, created.NumDays)
	require.NotNil(t, created.Employee)
	assert.Equal(t, "Dana Cole", created.Employee.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRequest_ForeignKeyViolation(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectExec(q(insertRequest)).
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode, Detail: "Key (employee_id)=(emp-x) is not present"})

	_, err := store.CreateRequest(context.Background(), &leave.Request{
		ID: "r1", EmployeeID: "emp-x", LeaveTypeID: "lt-annual",
		StartDate: day(1, 1), EndDate: day(1, 1), Status: leave.StatusPending,
	})

	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestUpdateRequest_AlreadyProcessed(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	// GIVEN: The conditional update matches nothing but the row exists
	mock.ExpectExec(q(updatePendingRequest)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(q(queryRequestByID)).
		WithArgs("r1").
		WillReturnRows(requestRows("r1", leave.StatusApproved, day(1, 1), day(1, 3), 3))

	// WHEN: Updated
	_, err := store.UpdateRequest(context.Background(), &leave.Request{
		ID: "r1", StartDate: day(1, 1), EndDate: day(1, 3), Status: leave.StatusRejected,
	})

	// THEN: Terminal
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRequest_Missing(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectExec(q(updatePendingRequest)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(q(queryRequestByID)).
		WithArgs("r-missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.UpdateRequest(context.Background(), &leave.Request{
		ID: "r-missing", StartDate: day(1, 1), EndDate: day(1, 1), Status: leave.StatusRejected,
	})

	assert.True(t, leave.IsNotFound(err))
}

func TestRequestsByStatus_EmptyNotNil(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectQuery(q(queryRequestsByStatus)).
		WithArgs("PENDING").
		WillReturnRows(pgxmock.NewRows(requestColumns))

	reqs, err := store.RequestsByStatus(context.Background(), leave.StatusPending)

	require.NoError(t, err)
	assert.NotNil(t, reqs)
	assert.Empty(t, reqs)
}

// =============================================================================
// BALANCE LEDGER AND IDENTITY
// =============================================================================

func TestDeduct_InsufficientReportsAvailable(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectQuery(q(deductBalanceIfSufficient)).
		WithArgs(3, "emp-1", "lt-annual").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(q(queryBalance)).
		WithArgs("emp-1", "lt-annual").
		WillReturnRows(balanceRows(2))

	_, err := store.Deduct(context.Background(), "emp-1", "lt-annual", 3)

	var ib *leave.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, 2, ib.Available)
	assert.Equal(t, 3, ib.Requested)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeduct_NoRow(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectQuery(q(deductBalanceIfSufficient)).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(q(queryBalance)).WillReturnError(pgx.ErrNoRows)

	_, err := store.Deduct(context.Background(), "emp-1", "lt-sick", 1)

	assert.ErrorIs(t, err, leave.ErrNoBalanceRecord)
}

func TestResolve_UserWithoutProfile(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)

	mock.ExpectQuery(q(queryResolve)).
		WithArgs("carol").
		WillReturnRows(pgxmock.NewRows([]string{"email", "id", "name", "email"}).
			AddRow("carol@example.com", nil, nil, nil))

	_, err := store.Resolve(context.Background(), "carol")

	var nf *leave.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, leave.KindEmployee, nf.Kind)
	assert.Equal(t, "carol@example.com", nf.Key)
}

// =============================================================================
// ENGINE UNITS OF WORK
// =============================================================================

func TestEngineApprove_LocksRowsAndCommits(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)
	engine := leave.NewEngine(store, leave.WithLogger(zap.NewNop()))

	// GIVEN: A pending 3-day request and 5 remaining days
	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(q(queryRequestByIDLocked)).
		WithArgs("r1").
		WillReturnRows(requestRows("r1", leave.StatusPending, day(1, 1), day(1, 3), 3))
	mock.ExpectQuery(q(queryBalanceLocked)).
		WithArgs("emp-1", "lt-annual").
		WillReturnRows(balanceRows(5))
	mock.ExpectQuery(q(deductBalanceIfSufficient)).
		WithArgs(3, "emp-1", "lt-annual").
		WillReturnRows(pgxmock.NewRows([]string{"remaining_days"}).AddRow(2))
	mock.ExpectExec(q(updatePendingRequest)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(q(queryRequestByID)).
		WithArgs("r1").
		WillReturnRows(requestRows("r1", leave.StatusApproved, day(1, 1), day(1, 3), 3))
	mock.ExpectCommit()

	// WHEN: Approved
	decided, err := engine.UpdateRequestStatus(context.Background(), "r1", leave.StatusApproved)

	// THEN: Locked reads, conditional deduct and status write in one transaction
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, decided.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngineSubmit_InsufficientRollsBack(t *testing.T) {
	t.Parallel()
	mock, store := newMockStore(t)
	engine := leave.NewEngine(store, leave.WithLogger(zap.NewNop()))

	// GIVEN: 2 remaining days
	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadWrite})
	mock.ExpectQuery(q(queryLeaveType)).
		WithArgs("lt-annual").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name"}).AddRow("lt-annual", "Annual Leave"))
	mock.ExpectQuery(q(queryResolve)).
		WithArgs("dana").
		WillReturnRows(pgxmock.NewRows([]string{"email", "id", "name", "email"}).
			AddRow("dana@example.com", "emp-1", "Dana Cole", "dana@example.com"))
	mock.ExpectQuery(q(queryBalanceLocked)).
		WithArgs("emp-1", "lt-annual").
		WillReturnRows(balanceRows(2))
	mock.ExpectRollback()

	// WHEN: Submitting 3 days
	_, err := engine.SubmitLeaveRequest(context.Background(), "dana", leave.SubmitInput{
		LeaveTypeID: "lt-annual",
		StartDate:   day(1, 1),
		EndDate:     day(1, 3),
	})

	// THEN: Rejected without an insert
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// ERROR TRANSLATION
// =============================================================================

func TestTranslatePgError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, translatePgError(nil))
	assert.ErrorIs(t, translatePgError(&pgconn.PgError{Code: foreignKeyViolationCode}), leave.ErrNotFound)
	assert.ErrorIs(t, translatePgError(&pgconn.PgError{Code: checkViolationCode, ConstraintName: dateRangeConstraint}), leave.ErrInvalidRange)

	check := translatePgError(&pgconn.PgError{Code: checkViolationCode, ConstraintName: "leave_balances_non_negative"})
	assert.False(t, leave.IsClientError(check))

	unique := translatePgError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "leave_requests_pkey"})
	assert.Contains(t, unique.Error(), "duplicate key")
	assert.NotErrorIs(t, unique, leave.ErrEmailTaken)

	email := translatePgError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: employeeEmailConstraint})
	assert.ErrorIs(t, email, leave.ErrEmailTaken)

	other := errors.New("other")
	assert.Equal(t, other, translatePgError(other))
}
