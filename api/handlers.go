/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave engine via REST. Handles HTTP request/response and JSON
  serialization, and delegates every decision to leave.Engine.

ENDPOINTS:
  Employees (any authenticated principal):
    POST   /api/leave/requests              Submit a leave request
    GET    /api/leave/requests/me           Caller's requests, any status
    GET    /api/leave/balances/me           Caller's remaining balances

  Managers (MANAGER or ADMIN):
    GET    /api/leave/requests/pending      All pending requests
    PUT    /api/leave/requests/{id}/status  Approve or reject

  Scenarios (ADMIN):
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

REQUEST FLOW:
  1. Read the principal placed in the context by Authenticate
  2. Parse and validate the body
  3. Call the engine with the username passed explicitly
  4. Serialize the view, or map the error (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error to status mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine    *leave.Engine
	directory leave.Directory
	pinger    Pinger
	log       *zap.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. directory seeds demo scenarios; pinger may
// be nil.
func NewHandler(engine *leave.Engine, directory leave.Directory, pinger Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		engine:    engine,
		directory: directory,
		pinger:    pinger,
		log:       log,
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// SubmitLeaveRequest creates a PENDING request for the caller.
func (h *Handler) SubmitLeaveRequest(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
		return
	}

	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		return
	}

	start, err := leave.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date, expected YYYY-MM-DD", "INVALID_DATE", err.Error())
		return
	}
	end, err := leave.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date, expected YYYY-MM-DD", "INVALID_DATE", err.Error())
		return
	}

	created, err := h.engine.SubmitLeaveRequest(r.Context(), p.Username, leave.SubmitInput{
		LeaveTypeID: strings.TrimSpace(req.LeaveTypeID),
		StartDate:   start,
		EndDate:     end,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaveRequestDTO(leave.ToRequestView(*created)))
}

// GetMyLeaveRequests lists the caller's requests.
func (h *Handler) GetMyLeaveRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
		return
	}

	views, err := h.engine.GetMyLeaveRequests(r.Context(), p.Username)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(views))
}

// GetMyLeaveBalances lists the caller's balances.
func (h *Handler) GetMyLeaveBalances(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHENTICATED", nil)
		return
	}

	views, err := h.engine.GetMyLeaveBalances(r.Context(), p.Username)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveBalanceDTOs(views))
}

// =============================================================================
// MANAGER HANDLERS
// =============================================================================

// GetPendingRequests lists every pending request.
func (h *Handler) GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	views, err := h.engine.GetPendingRequests(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTOs(views))
}

// UpdateRequestStatus approves or rejects a pending request.
func (h *Handler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY", err.Error())
		return
	}

	status, err := leave.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	decided, err := h.engine.UpdateRequestStatus(r.Context(), id, status)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(leave.ToRequestView(*decided)))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health answers 200 when the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
