package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/leave/store"
)

func seeded(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.SaveLeaveType(ctx, leave.LeaveType{ID: "lt-annual", Name: "Annual Leave"}))
	require.NoError(t, m.SaveEmployee(ctx, leave.Employee{ID: "emp-1", Name: "Dana Cole", Email: "dana@example.com"}))
	require.NoError(t, m.SaveUser(ctx, leave.User{Username: "dana", Email: "dana@example.com"}))
	require.NoError(t, m.SetBalance(ctx, leave.Balance{EmployeeID: "emp-1", LeaveTypeID: "lt-annual", RemainingDays: 4}))
	return m
}

func pending(id string, start, end time.Time) *leave.Request {
	return &leave.Request{
		ID:          id,
		EmployeeID:  "emp-1",
		LeaveTypeID: "lt-annual",
		StartDate:   start,
		EndDate:     end,
		Status:      leave.StatusPending,
		NumDays:     99,
	}
}

func TestMemory_CreateRequest_RederivesNumDays(t *testing.T) {
	m := seeded(t)

	created, err := m.CreateRequest(context.Background(), pending("r1",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))

	require.NoError(t, err)
	assert.Equal(t, 2, created.NumDays)
	require.NotNil(t, created.Employee)
	assert.Equal(t, "Dana Cole", created.Employee.Name)
}

func TestMemory_UpdateRequest_RederivesAndRejectsTerminal(t *testing.T) {
	// GIVEN: A pending 2-day request
	ctx := context.Background()
	m := seeded(t)
	r, err := m.CreateRequest(ctx, pending("r1",
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	// WHEN: Dates are widened with a stale NumDays and the status decided
	r.EndDate = time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	r.NumDays = 1
	r.Status = leave.StatusRejected
	updated, err := m.UpdateRequest(ctx, r)

	// THEN: NumDays follows the dates; further updates are refused
	require.NoError(t, err)
	assert.Equal(t, 4, updated.NumDays)

	_, err = m.UpdateRequest(ctx, updated)
	assert.ErrorIs(t, err, leave.ErrAlreadyProcessed)
}

func TestMemory_Deduct_NeverNegative(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	bal, err := m.Deduct(ctx, "emp-1", "lt-annual", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, bal.RemainingDays)

	_, err = m.Deduct(ctx, "emp-1", "lt-annual", 2)
	assert.ErrorIs(t, err, leave.ErrInsufficientBalance)

	_, err = m.Deduct(ctx, "emp-1", "lt-sick", 1)
	assert.ErrorIs(t, err, leave.ErrNoBalanceRecord)

	bal, err = m.Balance(ctx, "emp-1", "lt-annual")
	require.NoError(t, err)
	assert.Equal(t, 1, bal.RemainingDays)
}

func TestMemory_Resolve(t *testing.T) {
	m := seeded(t)

	emp, err := m.Resolve(context.Background(), "dana")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", emp.ID)

	_, err = m.Resolve(context.Background(), "nobody")
	assert.True(t, leave.IsNotFound(err))
}

func TestMemory_SaveEmployee_EmailStaysUnique(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	// GIVEN: a second profile claiming dana's email
	err := m.SaveEmployee(ctx, leave.Employee{ID: "emp-2", Name: "Dana Impostor", Email: "dana@example.com"})

	// THEN: it is refused and resolution still lands on the original profile
	assert.ErrorIs(t, err, leave.ErrEmailTaken)
	for i := 0; i < 20; i++ {
		emp, err := m.Resolve(ctx, "dana")
		require.NoError(t, err)
		assert.Equal(t, "emp-1", emp.ID)
	}

	// WHEN: the owner re-saves the same email under a new name
	require.NoError(t, m.SaveEmployee(ctx, leave.Employee{ID: "emp-1", Name: "Dana C.", Email: "dana@example.com"}))

	// THEN: the rename is accepted
	emp, err := m.Resolve(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, "Dana C.", emp.Name)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	require.NoError(t, m.Reset(ctx))

	_, err := m.Balance(ctx, "emp-1", "lt-annual")
	assert.ErrorIs(t, err, leave.ErrNoBalanceRecord)
}
