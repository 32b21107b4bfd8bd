package main

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// fullAttendanceShare is the fraction of a session an attendee must be
// present for to count as full attendance.
const fullAttendanceShare = 0.8

/* ─── Attendance rules ───────────────────────────────────────────────── */

// sessionWindow returns the inclusive [start, end] interval in which check-in is allowed.
func sessionWindow(s sportEventSession) (time.Time, time.Time) {
	start := s.SessionDate
	end := start.Add(time.Duration(s.DurationHours * float64(time.Hour)))
	return start, end
}

// sessionMinutes is the planned session length in whole minutes.
func sessionMinutes(s sportEventSession) int {
	return int(math.Round(s.DurationHours * 60))
}

// openEntry returns the latest history entry if it has no checkout yet.
func (a *sessionAttendance) openEntry() *checkInEntry {
	if len(a.CheckInHistory) == 0 {
		return nil
	}
	last := &a.CheckInHistory[len(a.CheckInHistory)-1]
	if last.CheckOutTime != nil {
		return nil
	}
	return last
}

// isOpen reports whether the attendee is currently checked in.
func (a *sessionAttendance) isOpen() bool {
	return a.openEntry() != nil
}

// applyCheckIn appends a new open entry when now falls inside the session
// window and no entry is already open. Open entries are never auto-closed.
func applyCheckIn(a *sessionAttendance, s sportEventSession, now time.Time) error {
	start, end := sessionWindow(s)
	if now.Before(start) {
		return errSessionNotStarted
	}
	if now.After(end) {
		return errSessionEnded
	}
	if a.isOpen() {
		return errAlreadyCheckedIn
	}

	a.CheckInHistory = append(a.CheckInHistory, checkInEntry{CheckInTime: now})
	a.CheckInTime = &now
	a.CheckOutTime = nil
	return nil
}

// applyCheckOut closes the open entry and adds its whole minutes to TotalDuration.
func applyCheckOut(a *sessionAttendance, now time.Time) error {
	entry := a.openEntry()
	if entry == nil {
		return errNotCheckedIn
	}

	entry.CheckOutTime = &now
	minutes := int(now.Sub(entry.CheckInTime) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	a.TotalDuration += minutes
	a.CheckOutTime = &now
	return nil
}

// summarizeAttendance aggregates a session's attendance records.
func summarizeAttendance(records []sessionAttendance, s sportEventSession) attendanceSummary {
	summary := attendanceSummary{
		SessionID:              s.ID,
		TotalAttendees:         len(records),
		SessionDurationMinutes: sessionMinutes(s),
	}
	if len(records) == 0 {
		return summary
	}

	threshold := fullAttendanceShare * s.DurationHours * 60
	total := 0
	for i := range records {
		total += records[i].TotalDuration
		if float64(records[i].TotalDuration) >= threshold {
			summary.FullAttendanceCount++
		}
		if records[i].isOpen() {
			summary.CurrentlyCheckedIn++
		}
	}
	avg := float64(total) / float64(len(records))
	summary.AverageDuration = math.Round(avg*100) / 100
	return summary
}

/* ─── Persistence ────────────────────────────────────────────────────── */

// lockAttendance loads the (session, user) record FOR UPDATE. Returns
// pgx.ErrNoRows when the user has never checked in.
func lockAttendance(ctx context.Context, tx dbtx, sessionID, userID int) (sessionAttendance, error) {
	return queryOne[sessionAttendance](ctx, tx,
		`SELECT * FROM sport_event_attendance
		 WHERE session_id = @sessionID AND user_id = @userID
		 FOR UPDATE`,
		pgx.NamedArgs{"sessionID": sessionID, "userID": userID})
}

// saveAttendance inserts a new record or updates an existing one.
func saveAttendance(ctx context.Context, tx dbtx, a sessionAttendance, exists bool) (sessionAttendance, error) {
	history, err := json.Marshal(a.CheckInHistory)
	if err != nil {
		return a, err
	}
	args := pgx.NamedArgs{
		"id":            a.ID,
		"sessionID":     a.SessionID,
		"userID":        a.UserID,
		"history":       string(history),
		"checkInTime":   a.CheckInTime,
		"checkOutTime":  a.CheckOutTime,
		"totalDuration": a.TotalDuration,
	}
	if !exists {
		return queryOne[sessionAttendance](ctx, tx,
			`INSERT INTO sport_event_attendance (session_id, user_id, check_in_history, check_in_time, check_out_time, total_duration)
			 VALUES (@sessionID, @userID, @history::jsonb, @checkInTime, @checkOutTime, @totalDuration)
			 RETURNING *`, args)
	}
	return queryOne[sessionAttendance](ctx, tx,
		`UPDATE sport_event_attendance SET
			check_in_history = @history::jsonb,
			check_in_time    = @checkInTime,
			check_out_time   = @checkOutTime,
			total_duration   = @totalDuration,
			updated_at       = now()
		 WHERE id = @id
		 RETURNING *`, args)
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// checkIn records that the caller arrived at a session.
// POST /api/sport-events/:eventId/sessions/:sessionId/checkin.
func (h *Handler) checkIn(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}
	now := h.clock()

	var rec sessionAttendance
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		session, err := loadVisibleSession(c, tx, eventID, sessionID, userID)
		if err != nil {
			return err
		}

		rec, err = lockAttendance(c, tx, sessionID, userID)
		exists := err == nil
		if errors.Is(err, pgx.ErrNoRows) {
			rec = sessionAttendance{SessionID: sessionID, UserID: userID}
		} else if err != nil {
			return err
		}

		if err := applyCheckIn(&rec, session, now); err != nil {
			return err
		}
		rec, err = saveAttendance(c, tx, rec, exists)
		// A concurrent first check-in won the insert race on UNIQUE(session_id, user_id).
		if isUniqueViolation(err) {
			return errAlreadyCheckedIn
		}
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to check in")
		return
	}

	h.hub.publish(sessionID, attendanceEvent{
		Type: "check_in", SessionID: sessionID, UserID: userID, At: now, TotalDuration: rec.TotalDuration,
	})
	h.metrics.publish("CheckIns", 1, map[string]string{"EventID": c.Param("eventId")})
	c.JSON(http.StatusOK, rec)
}

// checkOut closes the caller's open check-in and accumulates the minutes.
// POST /api/sport-events/:eventId/sessions/:sessionId/checkout.
func (h *Handler) checkOut(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}
	now := h.clock()

	var rec sessionAttendance
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		if _, err := loadVisibleSession(c, tx, eventID, sessionID, userID); err != nil {
			return err
		}

		var err error
		rec, err = lockAttendance(c, tx, sessionID, userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return errNotCheckedIn
		}
		if err != nil {
			return err
		}

		if err := applyCheckOut(&rec, now); err != nil {
			return err
		}
		rec, err = saveAttendance(c, tx, rec, true)
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to check out")
		return
	}

	h.hub.publish(sessionID, attendanceEvent{
		Type: "check_out", SessionID: sessionID, UserID: userID, At: now, TotalDuration: rec.TotalDuration,
	})
	h.metrics.publish("CheckOuts", 1, map[string]string{"EventID": c.Param("eventId")})
	c.JSON(http.StatusOK, rec)
}

// listAttendance returns every attendance record for a session with attendee names.
// GET /api/sport-events/:eventId/sessions/:sessionId/attendance.
func (h *Handler) listAttendance(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	if _, err := loadVisibleSession(c, h.db, eventID, sessionID, userID); err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}
	records, err := queryMany[attendanceWithUser](c, h.db,
		`SELECT a.*, u.username, u.full_name, u.avatar_url
		 FROM sport_event_attendance a
		 JOIN users u ON u.id = a.user_id
		 WHERE a.session_id = @sessionID
		 ORDER BY a.check_in_time DESC NULLS LAST`,
		pgx.NamedArgs{"sessionID": sessionID})
	if err != nil {
		h.fail(c, err, "failed to fetch attendance")
		return
	}

	c.JSON(http.StatusOK, records)
}

// getAttendanceSummary returns attendee count, average minutes and full-attendance count.
// GET /api/sport-events/:eventId/sessions/:sessionId/attendance/summary.
func (h *Handler) getAttendanceSummary(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	session, err := loadVisibleSession(c, h.db, eventID, sessionID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}
	records, err := queryMany[sessionAttendance](c, h.db,
		"SELECT * FROM sport_event_attendance WHERE session_id = @sessionID",
		pgx.NamedArgs{"sessionID": sessionID})
	if err != nil {
		h.fail(c, err, "failed to fetch attendance")
		return
	}

	c.JSON(http.StatusOK, summarizeAttendance(records, session))
}

// isCheckedIn reports whether the caller has an open check-in for the session.
// GET /api/sport-events/:eventId/sessions/:sessionId/is-checked-in.
func (h *Handler) isCheckedIn(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	if _, err := loadVisibleSession(c, h.db, eventID, sessionID, userID); err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}
	rec, err := queryOne[sessionAttendance](c, h.db,
		"SELECT * FROM sport_event_attendance WHERE session_id = @sessionID AND user_id = @userID",
		pgx.NamedArgs{"sessionID": sessionID, "userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusOK, gin.H{"is_checked_in": false})
		return
	}
	if err != nil {
		h.fail(c, err, "failed to fetch attendance")
		return
	}

	c.JSON(http.StatusOK, gin.H{"is_checked_in": rec.isOpen(), "attendance": rec})
}
