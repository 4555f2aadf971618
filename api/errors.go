package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
)

// Machine-readable error codes.
const (
	CodeInvalidRange        = "INVALID_RANGE"
	CodeInvalidStatus       = "INVALID_STATUS"
	CodeNotFound            = "NOT_FOUND"
	CodeNoBalanceRecord     = "NO_BALANCE_RECORD"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeAlreadyProcessed    = "ALREADY_PROCESSED"
	CodeInternal            = "INTERNAL"
)

// writeEngineError maps engine errors to HTTP responses. Internal failures
// are logged; clients only see a generic message.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var ib *leave.InsufficientBalanceError
	switch {
	case errors.Is(err, leave.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "End date must not be before start date", CodeInvalidRange, nil)
	case errors.Is(err, leave.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "Status must be APPROVED or REJECTED", CodeInvalidStatus, nil)
	case leave.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), CodeNotFound, nil)
	case errors.Is(err, leave.ErrNoBalanceRecord):
		writeError(w, http.StatusConflict, "No balance record for this leave type", CodeNoBalanceRecord, nil)
	case errors.As(err, &ib):
		writeError(w, http.StatusConflict, "Insufficient leave balance", CodeInsufficientBalance, map[string]int{
			"available": ib.Available,
			"requested": ib.Requested,
			"shortfall": ib.Shortfall(),
		})
	case errors.Is(err, leave.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "Insufficient leave balance", CodeInsufficientBalance, nil)
	case errors.Is(err, leave.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "Request has already been processed", CodeAlreadyProcessed, nil)
	default:
		h.log.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error", CodeInternal, nil)
	}
}
