/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave engine's model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates travel as "YYYY-MM-DD" strings. Timestamps are RFC 3339.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/view.go: The views these DTOs are built from
*/
package api

import (
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SubmitLeaveRequest is the body of POST /api/leave/requests.
type SubmitLeaveRequest struct {
	LeaveTypeID string `json:"leave_type_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Reason      string `json:"reason"`
}

// UpdateStatusRequest is the body of PUT /api/leave/requests/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LeaveRequestDTO is a request as listed to employees and managers.
type LeaveRequestDTO struct {
	ID            string `json:"id"`
	EmployeeName  string `json:"employee_name"`
	LeaveTypeName string `json:"leave_type_name"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	NumDays       int    `json:"num_days"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// LeaveBalanceDTO is one remaining allotment of the caller.
type LeaveBalanceDTO struct {
	LeaveTypeID   string `json:"leave_type_id"`
	LeaveTypeName string `json:"leave_type_name"`
	RemainingDays int    `json:"remaining_days"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toLeaveRequestDTO(v leave.RequestView) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:            v.ID,
		EmployeeName:  v.EmployeeName,
		LeaveTypeName: v.LeaveTypeName,
		StartDate:     v.StartDate.Format(leave.DateLayout),
		EndDate:       v.EndDate.Format(leave.DateLayout),
		NumDays:       v.NumDays,
		Status:        string(v.Status),
		Reason:        v.Reason,
	}
}

func toLeaveRequestDTOs(vs []leave.RequestView) []LeaveRequestDTO {
	dtos := make([]LeaveRequestDTO, 0, len(vs))
	for _, v := range vs {
		dtos = append(dtos, toLeaveRequestDTO(v))
	}
	return dtos
}

func toLeaveBalanceDTOs(vs []leave.BalanceView) []LeaveBalanceDTO {
	dtos := make([]LeaveBalanceDTO, 0, len(vs))
	for _, v := range vs {
		dtos = append(dtos, LeaveBalanceDTO{
			LeaveTypeID:   v.LeaveTypeID,
			LeaveTypeName: v.LeaveTypeName,
			RemainingDays: v.RemainingDays,
		})
	}
	return dtos
}
