package leave_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/leave"
)

func TestDaysInclusive(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"three days", date(2024, time.January, 1), date(2024, time.January, 3), 3},
		{"same day", date(2024, time.January, 1), date(2024, time.January, 1), 1},
		{"leap day spanned", date(2024, time.February, 28), date(2024, time.March, 1), 3},
		{"year boundary", date(2023, time.December, 31), date(2024, time.January, 1), 2},
		{"time of day on start", time.Date(2024, time.March, 9, 12, 0, 0, 0, time.UTC), date(2024, time.March, 11), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, leave.DaysInclusive(tt.start, tt.end))
		})
	}
}

func TestNormalizeRequest_IgnoresCallerNumDays(t *testing.T) {
	// GIVEN: A request carrying a stale derived value
	r := &leave.Request{
		StartDate: time.Date(2024, time.January, 1, 15, 30, 0, 0, time.UTC),
		EndDate:   date(2024, time.January, 3),
		NumDays:   42,
	}

	// WHEN: Normalized
	leave.NormalizeRequest(r)

	// THEN: Re-derived from dates, dates truncated
	assert.Equal(t, 3, r.NumDays)
	assert.Equal(t, date(2024, time.January, 1), r.StartDate)
}

func TestNormalizeRequest_FirstCalendarDay(t *testing.T) {
	// GIVEN: 0001-01-01, which is time.Time's zero value
	first, err := leave.ParseDate("0001-01-01")
	require.NoError(t, err)
	r := &leave.Request{StartDate: first, EndDate: first, NumDays: 42}

	// WHEN: Normalized
	leave.NormalizeRequest(r)

	// THEN: Counted as one day like any other date
	assert.Equal(t, 1, r.NumDays)
}

func TestParseDate(t *testing.T) {
	d, err := leave.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29), d)

	_, err = leave.ParseDate("2024-02-30")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	s, err := leave.ParseStatus("APPROVED")
	require.NoError(t, err)
	assert.True(t, s.IsDecision())
	assert.True(t, s.IsTerminal())

	for _, st := range []leave.Status{leave.StatusPending, leave.StatusApproved, leave.StatusRejected} {
		assert.Equal(t, st.IsTerminal(), st.IsDecision(), st)
	}

	_, err = leave.ParseStatus("approved")
	assert.ErrorIs(t, err, leave.ErrInvalidStatus)
}

func TestToRequestView_UnknownFallbacks(t *testing.T) {
	v := leave.ToRequestView(leave.Request{ID: "r1", Status: leave.StatusPending})

	assert.Equal(t, "Unknown Employee", v.EmployeeName)
	assert.Equal(t, "Unknown Type", v.LeaveTypeName)
}
