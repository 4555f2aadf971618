package leave

import "time"

// =============================================================================
// VIEWS - What the transport layer serializes
// =============================================================================

const (
	unknownEmployee  = "Unknown Employee"
	unknownLeaveType = "Unknown Type"
)

// RequestView carries names instead of raw foreign keys.
type RequestView struct {
	ID            string
	EmployeeName  string
	LeaveTypeName string
	StartDate     time.Time
	EndDate       time.Time
	NumDays       int
	Status        Status
	Reason        string
}

// BalanceView is one balance row of the caller.
type BalanceView struct {
	LeaveTypeID   string
	LeaveTypeName string
	RemainingDays int
}

// ToRequestView maps a request with loaded relations.
func ToRequestView(r Request) RequestView {
	v := RequestView{
		ID:            r.ID,
		EmployeeName:  unknownEmployee,
		LeaveTypeName: unknownLeaveType,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		NumDays:       r.NumDays,
		Status:        r.Status,
		Reason:        r.Reason,
	}
	if r.Employee != nil {
		v.EmployeeName = r.Employee.Name
	}
	if r.LeaveType != nil {
		v.LeaveTypeName = r.LeaveType.Name
	}
	return v
}

// ToRequestViews maps a slice; the result is never nil.
func ToRequestViews(rs []Request) []RequestView {
	views := make([]RequestView, 0, len(rs))
	for _, r := range rs {
		views = append(views, ToRequestView(r))
	}
	return views
}

// ToBalanceView maps a balance with its leave type loaded.
func ToBalanceView(b Balance) BalanceView {
	v := BalanceView{
		LeaveTypeID:   b.LeaveTypeID,
		LeaveTypeName: unknownLeaveType,
		RemainingDays: b.RemainingDays,
	}
	if b.LeaveType != nil {
		v.LeaveTypeName = b.LeaveType.Name
	}
	return v
}

// ToBalanceViews maps a slice; the result is never nil.
func ToBalanceViews(bs []Balance) []BalanceView {
	views := make([]BalanceView, 0, len(bs))
	for _, b := range bs {
		views = append(views, ToBalanceView(b))
	}
	return views
}
