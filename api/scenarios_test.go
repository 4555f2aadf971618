package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, env *testEnv, id string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "admin", admin, LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_List(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/scenarios", "admin", admin, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, got, len(scenarios))
}

func TestScenario_SmallTeam(t *testing.T) {
	// GIVEN: The small team scenario
	env := newTestEnv(t, nil)

	// WHEN: Loaded
	loadScenario(t, env, "small-team")

	// THEN: The previous data is gone and the seeded accounts resolve
	lee := decode[[]LeaveBalanceDTO](t, env.do(t, http.MethodGet, "/api/leave/balances/me", "lee", employee, nil))
	require.Len(t, lee, 2)
	assert.Equal(t, LeaveTypeAnnual, lee[0].LeaveTypeID)
	assert.Equal(t, 15, lee[0].RemainingDays)
	assert.Equal(t, "Sick Leave", lee[1].LeaveTypeName)

	dana := decode[[]LeaveBalanceDTO](t, env.do(t, http.MethodGet, "/api/leave/balances/me", "dana", employee, nil))
	require.Len(t, dana, 2)
	assert.Equal(t, 20, dana[0].RemainingDays)

	current := decode[ScenarioDTO](t, env.do(t, http.MethodGet, "/api/scenarios/current", "admin", admin, nil))
	assert.Equal(t, "small-team", current.ID)
}

func TestScenario_TightBalance(t *testing.T) {
	// GIVEN: Three pending 2-day requests against 2 remaining days
	env := newTestEnv(t, nil)
	loadScenario(t, env, "tight-balance")

	pending := decode[[]LeaveRequestDTO](t, env.do(t, http.MethodGet, "/api/leave/requests/pending", "maria", manager, nil))
	require.Len(t, pending, 3)
	for _, p := range pending {
		assert.Equal(t, 2, p.NumDays)
		assert.Equal(t, "Dana Cole", p.EmployeeName)
	}

	// WHEN: The manager approves the first two
	first := env.do(t, http.MethodPut, "/api/leave/requests/"+pending[0].ID+"/status", "maria", manager, UpdateStatusRequest{Status: "APPROVED"})
	second := env.do(t, http.MethodPut, "/api/leave/requests/"+pending[1].ID+"/status", "maria", manager, UpdateStatusRequest{Status: "APPROVED"})

	// THEN: Only the first fits
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, CodeInsufficientBalance, decode[errorBody](t, second).Code)

	bals := decode[[]LeaveBalanceDTO](t, env.do(t, http.MethodGet, "/api/leave/balances/me", "dana", employee, nil))
	assert.Equal(t, 0, bals[0].RemainingDays)
}

func TestScenario_MissingAllotment(t *testing.T) {
	env := newTestEnv(t, nil)
	loadScenario(t, env, "missing-allotment")

	bals := decode[[]LeaveBalanceDTO](t, env.do(t, http.MethodGet, "/api/leave/balances/me", "sam", employee, nil))
	assert.Empty(t, bals)

	rec := env.do(t, http.MethodPost, "/api/leave/requests", "sam", employee, submit(LeaveTypeAnnual, "2024-05-01", "2024-05-01"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeNoBalanceRecord, decode[errorBody](t, rec).Code)
}

func TestScenario_Unknown(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "admin", admin, LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// Unknown scenarios do not reset existing data
	bal, err := env.store.Balance(context.Background(), "emp-dana", "lt-annual")
	require.NoError(t, err)
	assert.Equal(t, 5, bal.RemainingDays)
}
