package leave

import "time"

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// NormalizeDate truncates t to its calendar date at UTC midnight.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// DaysInclusive counts calendar days from start to end, both included.
// 2024-01-01..2024-01-03 is 3 days; start == end is 1 day.
func DaysInclusive(start, end time.Time) int {
	s, e := NormalizeDate(start), NormalizeDate(end)
	return int(e.Sub(s).Hours()/24) + 1
}

// NormalizeRequest is the explicit write-path step every store runs before
// persisting a request: dates are truncated to calendar days and NumDays is
// re-derived from them, discarding whatever the caller put there.
func NormalizeRequest(r *Request) {
	r.StartDate = NormalizeDate(r.StartDate)
	r.EndDate = NormalizeDate(r.EndDate)
	r.NumDays = DaysInclusive(r.StartDate, r.EndDate)
}
