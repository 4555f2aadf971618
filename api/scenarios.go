/*
scenarios.go - Demo onboarding scenarios

PURPOSE:

	Seeds the store with accounts, employee profiles, leave types and
	initial balances, the onboarding that normally happens outside this
	service. Some scenarios also submit pending requests through the engine
	so a manager has something to decide.

AVAILABLE SCENARIOS:

	small-team:        Manager, two employees, annual and sick leave
	tight-balance:     One employee with 2 annual days and 3 pending requests
	missing-allotment: Employee with a profile but no balance rows

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create leave types
 3. Create users and matching employee profiles (same email)
 4. Set initial balances
 5. Optionally submit requests through the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-team"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - leave/store.go: Directory interface
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "A manager and two employees with annual and sick leave",
	},
	{
		ID:          "tight-balance",
		Name:        "Tight Balance",
		Description: "Three pending requests competing for two remaining days",
	},
	{
		ID:          "missing-allotment",
		Name:        "Missing Allotment",
		Description: "An employee whose balances were never set up",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", "UNKNOWN_SCENARIO", req.ScenarioID)
			return
		}
		h.log.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", CodeInternal, nil)
		return
	}

	h.log.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

var errUnknownScenario = errors.New("unknown scenario")

// loadScenario must be called with h.mu held.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "small-team":
		load = h.loadSmallTeamScenario
	case "tight-balance":
		load = h.loadTightBalanceScenario
	case "missing-allotment":
		load = h.loadMissingAllotmentScenario
	default:
		return errUnknownScenario
	}

	if err := h.directory.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// Leave type IDs shared by all scenarios.
const (
	LeaveTypeAnnual = "lt-annual"
	LeaveTypeSick   = "lt-sick"
)

type person struct {
	username string
	name     string
	role     auth.Role
	balances map[string]int
}

func (h *Handler) seedLeaveTypes(ctx context.Context) error {
	for _, lt := range []leave.LeaveType{
		{ID: LeaveTypeAnnual, Name: "Annual Leave"},
		{ID: LeaveTypeSick, Name: "Sick Leave"},
	} {
		if err := h.directory.SaveLeaveType(ctx, lt); err != nil {
			return fmt.Errorf("save leave type %s: %w", lt.ID, err)
		}
	}
	return nil
}

func (h *Handler) seedPeople(ctx context.Context, people []person) error {
	for _, p := range people {
		email := p.username + "@example.com"
		if err := h.directory.SaveUser(ctx, leave.User{Username: p.username, Email: email, Role: string(p.role)}); err != nil {
			return fmt.Errorf("save user %s: %w", p.username, err)
		}
		empID := "emp-" + p.username
		if err := h.directory.SaveEmployee(ctx, leave.Employee{ID: empID, Name: p.name, Email: email}); err != nil {
			return fmt.Errorf("save employee %s: %w", empID, err)
		}
		for lt, days := range p.balances {
			if err := h.directory.SetBalance(ctx, leave.Balance{EmployeeID: empID, LeaveTypeID: lt, RemainingDays: days}); err != nil {
				return fmt.Errorf("set balance %s/%s: %w", empID, lt, err)
			}
		}
	}
	return nil
}

func (h *Handler) loadSmallTeamScenario(ctx context.Context) error {
	if err := h.seedLeaveTypes(ctx); err != nil {
		return err
	}
	return h.seedPeople(ctx, []person{
		{username: "admin", name: "Avery Admin", role: auth.RoleAdmin},
		{username: "maria", name: "Maria Santos", role: auth.RoleManager,
			balances: map[string]int{LeaveTypeAnnual: 25, LeaveTypeSick: 10}},
		{username: "dana", name: "Dana Cole", role: auth.RoleEmployee,
			balances: map[string]int{LeaveTypeAnnual: 20, LeaveTypeSick: 10}},
		{username: "lee", name: "Lee Park", role: auth.RoleEmployee,
			balances: map[string]int{LeaveTypeAnnual: 15, LeaveTypeSick: 5}},
	})
}

func (h *Handler) loadTightBalanceScenario(ctx context.Context) error {
	if err := h.loadSmallTeamScenario(ctx); err != nil {
		return err
	}
	if err := h.directory.SetBalance(ctx, leave.Balance{EmployeeID: "emp-dana", LeaveTypeID: LeaveTypeAnnual, RemainingDays: 2}); err != nil {
		return fmt.Errorf("set balance: %w", err)
	}

	// Each fits on its own; approving one leaves too little for the others.
	first := time.Now().UTC().AddDate(0, 1, 0)
	for i := 0; i < 3; i++ {
		start := first.AddDate(0, 0, 7*i)
		_, err := h.engine.SubmitLeaveRequest(ctx, "dana", leave.SubmitInput{
			LeaveTypeID: LeaveTypeAnnual,
			StartDate:   start,
			EndDate:     start.AddDate(0, 0, 1),
			Reason:      fmt.Sprintf("long weekend %d", i+1),
		})
		if err != nil {
			return fmt.Errorf("submit request %d: %w", i+1, err)
		}
	}
	return nil
}

func (h *Handler) loadMissingAllotmentScenario(ctx context.Context) error {
	if err := h.loadSmallTeamScenario(ctx); err != nil {
		return err
	}
	return h.seedPeople(ctx, []person{
		{username: "sam", name: "Sam Rivera", role: auth.RoleEmployee},
	})
}
