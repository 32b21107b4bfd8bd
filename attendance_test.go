package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionStart = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func testSession() sportEventSession {
	return sportEventSession{ID: 7, EventID: 3, SessionNumber: 1, SessionDate: sessionStart, DurationHours: 2}
}

func TestApplyCheckIn_Window(t *testing.T) {
	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"one second early", sessionStart.Add(-time.Second), errSessionNotStarted},
		{"exactly at start", sessionStart, nil},
		{"mid session", sessionStart.Add(50 * time.Minute), nil},
		{"exactly at end", sessionStart.Add(2 * time.Hour), nil},
		{"one second late", sessionStart.Add(2*time.Hour + time.Second), errSessionEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a sessionAttendance
			err := applyCheckIn(&a, testSession(), tt.at)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, a.CheckInHistory)
				return
			}
			require.NoError(t, err)
			require.Len(t, a.CheckInHistory, 1)
			assert.True(t, a.isOpen())
			assert.Equal(t, tt.at, *a.CheckInTime)
		})
	}
}

func TestApplyCheckIn_AlreadyCheckedIn(t *testing.T) {
	var a sessionAttendance
	require.NoError(t, applyCheckIn(&a, testSession(), sessionStart.Add(time.Minute)))

	err := applyCheckIn(&a, testSession(), sessionStart.Add(2*time.Minute))
	assert.ErrorIs(t, err, errAlreadyCheckedIn)
	assert.Len(t, a.CheckInHistory, 1)
}

func TestApplyCheckOut_NotCheckedIn(t *testing.T) {
	var a sessionAttendance
	assert.ErrorIs(t, applyCheckOut(&a, sessionStart), errNotCheckedIn)

	require.NoError(t, applyCheckIn(&a, testSession(), sessionStart))
	require.NoError(t, applyCheckOut(&a, sessionStart.Add(10*time.Minute)))
	assert.ErrorIs(t, applyCheckOut(&a, sessionStart.Add(11*time.Minute)), errNotCheckedIn)
}

func TestApplyCheckOut_FloorsMinutesAndAccumulates(t *testing.T) {
	var a sessionAttendance
	s := testSession()

	require.NoError(t, applyCheckIn(&a, s, sessionStart))
	require.NoError(t, applyCheckOut(&a, sessionStart.Add(45*time.Minute+30*time.Second)))
	assert.Equal(t, 45, a.TotalDuration)
	assert.False(t, a.isOpen())

	// Checking out after the session ended is allowed; only check-in is windowed.
	require.NoError(t, applyCheckIn(&a, s, sessionStart.Add(time.Hour)))
	require.NoError(t, applyCheckOut(&a, sessionStart.Add(2*time.Hour+20*time.Minute)))
	assert.Equal(t, 45+80, a.TotalDuration)

	require.Len(t, a.CheckInHistory, 2)
	for _, e := range a.CheckInHistory {
		assert.NotNil(t, e.CheckOutTime)
	}
	assert.Equal(t, sessionStart.Add(2*time.Hour+20*time.Minute), *a.CheckOutTime)
}

func TestSummarizeAttendance(t *testing.T) {
	openAt := sessionStart.Add(time.Hour)
	closed := sessionStart.Add(30 * time.Minute)
	records := []sessionAttendance{
		{TotalDuration: 100, CheckInHistory: []checkInEntry{{CheckInTime: sessionStart, CheckOutTime: &closed}}},
		// 96 minutes is exactly 80% of a 2h session.
		{TotalDuration: 96, CheckInHistory: []checkInEntry{{CheckInTime: sessionStart, CheckOutTime: &closed}}},
		{TotalDuration: 30, CheckInHistory: []checkInEntry{{CheckInTime: openAt}}},
	}

	got := summarizeAttendance(records, testSession())
	assert.Equal(t, attendanceSummary{
		SessionID:              7,
		TotalAttendees:         3,
		AverageDuration:        75.33,
		FullAttendanceCount:    2,
		SessionDurationMinutes: 120,
		CurrentlyCheckedIn:     1,
	}, got)
}

func TestSummarizeAttendance_Empty(t *testing.T) {
	got := summarizeAttendance(nil, testSession())
	assert.Equal(t, 0, got.TotalAttendees)
	assert.Zero(t, got.AverageDuration)
	assert.Equal(t, 120, got.SessionDurationMinutes)
}

func TestSessionMinutes_FractionalHours(t *testing.T) {
	s := testSession()
	s.DurationHours = 1.25
	assert.Equal(t, 75, sessionMinutes(s))

	start, end := sessionWindow(s)
	assert.Equal(t, sessionStart, start)
	assert.Equal(t, sessionStart.Add(75*time.Minute), end)
}
