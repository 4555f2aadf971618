// Package store provides the in-memory leave.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements leave.TxStore and leave.Directory.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]leave.User
	employees  map[string]leave.Employee
	leaveTypes map[string]leave.LeaveType
	balances   map[balanceKey]int
	requests   map[string]leave.Request
	seq        map[string]int // request ID -> insertion sequence
	nextSeq    int
}

type balanceKey struct {
	EmployeeID  string
	LeaveTypeID string
}

var (
	_ leave.TxStore   = (*Memory)(nil)
	_ leave.Directory = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.users = make(map[string]leave.User)
	m.employees = make(map[string]leave.Employee)
	m.leaveTypes = make(map[string]leave.LeaveType)
	m.balances = make(map[balanceKey]int)
	m.requests = make(map[string]leave.Request)
	m.seq = make(map[string]int)
	m.nextSeq = 0
}

// =============================================================================
// REQUEST STORE
// =============================================================================

func (m *Memory) CreateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequestLocked(ctx, r)
}

func (m *Memory) createRequestLocked(_ context.Context, r *leave.Request) (*leave.Request, error) {
	if _, ok := m.employees[r.EmployeeID]; !ok {
		return nil, leave.NotFound(leave.KindEmployee, r.EmployeeID)
	}
	if _, ok := m.leaveTypes[r.LeaveTypeID]; !ok {
		return nil, leave.NotFound(leave.KindLeaveType, r.LeaveTypeID)
	}

	row := *r.Clone()
	leave.NormalizeRequest(&row)
	row.Employee, row.LeaveType = nil, nil

	m.requests[row.ID] = row
	m.seq[row.ID] = m.nextSeq
	m.nextSeq++
	return m.withRelations(row), nil
}

func (m *Memory) UpdateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateRequestLocked(ctx, r)
}

func (m *Memory) updateRequestLocked(_ context.Context, r *leave.Request) (*leave.Request, error) {
	existing, ok := m.requests[r.ID]
	if !ok {
		return nil, leave.NotFound(leave.KindRequest, r.ID)
	}
	if existing.Status != leave.StatusPending {
		return nil, leave.ErrAlreadyProcessed
	}

	existing.StartDate = r.StartDate
	existing.EndDate = r.EndDate
	existing.Reason = r.Reason
	existing.Status = r.Status
	existing.UpdatedAt = r.UpdatedAt
	leave.NormalizeRequest(&existing)

	m.requests[r.ID] = existing
	return m.withRelations(existing), nil
}

func (m *Memory) RequestByID(ctx context.Context, id string) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestByIDLocked(ctx, id)
}

func (m *Memory) requestByIDLocked(_ context.Context, id string) (*leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, leave.NotFound(leave.KindRequest, id)
	}
	return m.withRelations(r), nil
}

func (m *Memory) RequestsByEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsWhereLocked(func(r leave.Request) bool { return r.EmployeeID == employeeID }), nil
}

func (m *Memory) RequestsByStatus(ctx context.Context, status leave.Status) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsWhereLocked(func(r leave.Request) bool { return r.Status == status }), nil
}

func (m *Memory) requestsWhereLocked(match func(leave.Request) bool) []leave.Request {
	result := make([]leave.Request, 0)
	for _, r := range m.requests {
		if match(r) {
			result = append(result, *m.withRelations(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result
}

func (m *Memory) withRelations(r leave.Request) *leave.Request {
	out := r
	if e, ok := m.employees[r.EmployeeID]; ok {
		out.Employee = &e
	}
	if lt, ok := m.leaveTypes[r.LeaveTypeID]; ok {
		out.LeaveType = &lt
	}
	return &out
}

// =============================================================================
// BALANCE LEDGER
// =============================================================================

func (m *Memory) Balance(ctx context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(ctx, employeeID, leaveTypeID)
}

func (m *Memory) balanceLocked(_ context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	days, ok := m.balances[balanceKey{employeeID, leaveTypeID}]
	if !ok {
		return nil, leave.ErrNoBalanceRecord
	}
	return m.balanceRow(employeeID, leaveTypeID, days), nil
}

func (m *Memory) BalancesByEmployee(ctx context.Context, employeeID string) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balancesByEmployeeLocked(employeeID), nil
}

func (m *Memory) balancesByEmployeeLocked(employeeID string) []leave.Balance {
	result := make([]leave.Balance, 0)
	for k, days := range m.balances {
		if k.EmployeeID == employeeID {
			result = append(result, *m.balanceRow(k.EmployeeID, k.LeaveTypeID, days))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LeaveTypeID < result[j].LeaveTypeID })
	return result
}

func (m *Memory) Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deductLocked(ctx, employeeID, leaveTypeID, days)
}

func (m *Memory) deductLocked(_ context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	k := balanceKey{employeeID, leaveTypeID}
	remaining, ok := m.balances[k]
	if !ok {
		return nil, leave.ErrNoBalanceRecord
	}
	if remaining < days {
		return nil, &leave.InsufficientBalanceError{
			EmployeeID:  employeeID,
			LeaveTypeID: leaveTypeID,
			Available:   remaining,
			Requested:   days,
		}
	}
	m.balances[k] = remaining - days
	return m.balanceRow(employeeID, leaveTypeID, remaining-days), nil
}

func (m *Memory) balanceRow(employeeID, leaveTypeID string, days int) *leave.Balance {
	b := &leave.Balance{EmployeeID: employeeID, LeaveTypeID: leaveTypeID, RemainingDays: days}
	if lt, ok := m.leaveTypes[leaveTypeID]; ok {
		b.LeaveType = &lt
	}
	return b
}

// =============================================================================
// REFERENCE DATA AND IDENTITY
// =============================================================================

func (m *Memory) LeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.leaveTypeLocked(id)
}

func (m *Memory) leaveTypeLocked(id string) (*leave.LeaveType, error) {
	lt, ok := m.leaveTypes[id]
	if !ok {
		return nil, leave.NotFound(leave.KindLeaveType, id)
	}
	return &lt, nil
}

// Resolve maps username -> user -> employee (matched by email).
func (m *Memory) Resolve(ctx context.Context, username string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(username)
}

func (m *Memory) resolveLocked(username string) (*leave.Employee, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, leave.NotFound(leave.KindUser, username)
	}
	for _, e := range m.employees {
		if e.Email == u.Email {
			return &e, nil
		}
	}
	return nil, leave.NotFound(leave.KindEmployee, u.Email)
}

// =============================================================================
// DIRECTORY (onboarding)
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Username] = u
	return nil
}

func (m *Memory) SaveEmployee(_ context.Context, e leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.employees {
		if id != e.ID && other.Email == e.Email {
			return fmt.Errorf("%w: %s", leave.ErrEmailTaken, e.Email)
		}
	}
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) SaveLeaveType(_ context.Context, lt leave.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveTypes[lt.ID] = lt
	return nil
}

// SetBalance creates or overwrites the allotment of a pair.
func (m *Memory) SetBalance(_ context.Context, b leave.Balance) error {
	if b.RemainingDays < 0 {
		return fmt.Errorf("remaining days must be non-negative, got %d", b.RemainingDays)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[b.EmployeeID]; !ok {
		return leave.NotFound(leave.KindEmployee, b.EmployeeID)
	}
	if _, ok := m.leaveTypes[b.LeaveTypeID]; !ok {
		return leave.NotFound(leave.KindLeaveType, b.LeaveTypeID)
	}
	m.balances[balanceKey{b.EmployeeID, b.LeaveTypeID}] = b.RemainingDays
	return nil
}

// Reset removes all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole of fn, so units of work serialize.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(ctx, &txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances map[balanceKey]int
	requests map[string]leave.Request
	seq      map[string]int
	nextSeq  int
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		balances: make(map[balanceKey]int, len(m.balances)),
		requests: make(map[string]leave.Request, len(m.requests)),
		seq:      make(map[string]int, len(m.seq)),
		nextSeq:  m.nextSeq,
	}
	for k, v := range m.balances {
		s.balances[k] = v
	}
	for k, v := range m.requests {
		s.requests[k] = v
	}
	for k, v := range m.seq {
		s.seq[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.balances = s.balances
	m.requests = s.requests
	m.seq = s.seq
	m.nextSeq = s.nextSeq
}

// txView is the Store handed to fn. The parent lock is already held.
type txView struct {
	parent *Memory
}

func (v *txView) CreateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	return v.parent.createRequestLocked(ctx, r)
}

func (v *txView) UpdateRequest(ctx context.Context, r *leave.Request) (*leave.Request, error) {
	return v.parent.updateRequestLocked(ctx, r)
}

func (v *txView) RequestByID(ctx context.Context, id string) (*leave.Request, error) {
	return v.parent.requestByIDLocked(ctx, id)
}

func (v *txView) RequestsByEmployee(_ context.Context, employeeID string) ([]leave.Request, error) {
	return v.parent.requestsWhereLocked(func(r leave.Request) bool { return r.EmployeeID == employeeID }), nil
}

func (v *txView) RequestsByStatus(_ context.Context, status leave.Status) ([]leave.Request, error) {
	return v.parent.requestsWhereLocked(func(r leave.Request) bool { return r.Status == status }), nil
}

func (v *txView) Balance(ctx context.Context, employeeID, leaveTypeID string) (*leave.Balance, error) {
	return v.parent.balanceLocked(ctx, employeeID, leaveTypeID)
}

func (v *txView) BalancesByEmployee(_ context.Context, employeeID string) ([]leave.Balance, error) {
	return v.parent.balancesByEmployeeLocked(employeeID), nil
}

func (v *txView) Deduct(ctx context.Context, employeeID, leaveTypeID string, days int) (*leave.Balance, error) {
	return v.parent.deductLocked(ctx, employeeID, leaveTypeID, days)
}

func (v *txView) LeaveType(_ context.Context, id string) (*leave.LeaveType, error) {
	return v.parent.leaveTypeLocked(id)
}

func (v *txView) Resolve(_ context.Context, username string) (*leave.Employee, error) {
	return v.parent.resolveLocked(username)
}
