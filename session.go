package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/skip2/go-qrcode"
)

const qrCodeSize = 320

// loadSession fetches a session belonging to eventID or returns errSessionNotFound.
func loadSession(ctx context.Context, db dbtx, eventID, sessionID int) (sportEventSession, error) {
	s, err := queryOne[sportEventSession](ctx, db,
		"SELECT * FROM sport_event_sessions WHERE id = @sessionID AND event_id = @eventID",
		pgx.NamedArgs{"sessionID": sessionID, "eventID": eventID})
	if errors.Is(err, pgx.ErrNoRows) {
		return s, errSessionNotFound
	}
	return s, err
}

// loadVisibleSession is loadSession behind the event visibility check.
func loadVisibleSession(ctx context.Context, db dbtx, eventID, sessionID, userID int) (sportEventSession, error) {
	if _, err := loadVisibleEvent(ctx, db, eventID, userID); err != nil {
		return sportEventSession{}, err
	}
	return loadSession(ctx, db, eventID, sessionID)
}

// sessionPathIDs parses :eventId and :sessionId, writing a 400 on failure.
func sessionPathIDs(c *gin.Context) (eventID, sessionID int, ok bool) {
	if eventID, ok = paramID(c, "eventId"); !ok {
		return 0, 0, false
	}
	if sessionID, ok = paramID(c, "sessionId"); !ok {
		return 0, 0, false
	}
	return eventID, sessionID, true
}

// sessionCheckInURL is the deep link encoded in a session's QR code.
func sessionCheckInURL(appURL string, eventID, sessionID int) string {
	return fmt.Sprintf("%s/sport-events/%d/sessions/%d/checkin", appURL, eventID, sessionID)
}

// createSession adds a session to an event the caller owns. session_number
// defaults to the next free number.
// POST /api/sport-events/:eventId/sessions.
func (h *Handler) createSession(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	var body createSessionRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.SessionDate.IsZero() {
		apiError(c, http.StatusBadRequest, "session_date is required")
		return
	}

	var session sportEventSession
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		if _, err := loadOwnedEvent(c, tx, eventID, userID); err != nil {
			return err
		}

		number := 0
		if body.SessionNumber != nil {
			number = *body.SessionNumber
		} else {
			rows, err := tx.Query(c,
				"SELECT COALESCE(MAX(session_number), 0) + 1 FROM sport_event_sessions WHERE event_id = @eventID",
				pgx.NamedArgs{"eventID": eventID})
			if err != nil {
				return err
			}
			if number, err = pgx.CollectOneRow(rows, pgx.RowTo[int]); err != nil {
				return err
			}
		}

		var err error
		session, err = queryOne[sportEventSession](c, tx,
			`INSERT INTO sport_event_sessions (event_id, session_number, title, description, session_date, duration_hours)
			 VALUES (@eventID, @number, @title, @description, @sessionDate, @durationHours)
			 RETURNING *`,
			pgx.NamedArgs{
				"eventID":       eventID,
				"number":        number,
				"title":         body.Title,
				"description":   body.Description,
				"sessionDate":   body.SessionDate,
				"durationHours": body.DurationHours,
			})
		if isUniqueViolation(err) {
			return errSessionNumberTaken
		}
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, session)
}

// listSessions returns an event's sessions ordered by session number.
// GET /api/sport-events/:eventId/sessions.
func (h *Handler) listSessions(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	if _, err := loadVisibleEvent(c, h.db, eventID, userID); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	sessions, err := queryMany[sportEventSession](c, h.db,
		"SELECT * FROM sport_event_sessions WHERE event_id = @eventID ORDER BY session_number",
		pgx.NamedArgs{"eventID": eventID})
	if err != nil {
		h.fail(c, err, "failed to fetch sessions")
		return
	}

	c.JSON(http.StatusOK, sessions)
}

// getSession returns one session.
// GET /api/sport-events/:eventId/sessions/:sessionId.
func (h *Handler) getSession(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	s, err := loadVisibleSession(c, h.db, eventID, sessionID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}

	c.JSON(http.StatusOK, s)
}

// updateSession partially updates a session; the owner marks sessions
// completed through is_completed.
// PATCH /api/sport-events/:eventId/sessions/:sessionId.
func (h *Handler) updateSession(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	var body updateSessionRequest
	if !bindJSON(c, &body) {
		return
	}

	if _, err := loadOwnedEvent(c, h.db, eventID, userID); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}

	s, err := queryOne[sportEventSession](c, h.db,
		`UPDATE sport_event_sessions SET
			session_number = COALESCE(@number, session_number),
			title          = COALESCE(@title, title),
			description    = COALESCE(@description, description),
			session_date   = COALESCE(@sessionDate, session_date),
			duration_hours = COALESCE(@durationHours, duration_hours),
			is_completed   = COALESCE(@isCompleted, is_completed),
			updated_at     = now()
		 WHERE id = @sessionID AND event_id = @eventID
		 RETURNING *`,
		pgx.NamedArgs{
			"sessionID":     sessionID,
			"eventID":       eventID,
			"number":        body.SessionNumber,
			"title":         body.Title,
			"description":   body.Description,
			"sessionDate":   body.SessionDate,
			"durationHours": body.DurationHours,
			"isCompleted":   body.IsCompleted,
		})
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		h.fail(c, errSessionNotFound, "")
		return
	case isUniqueViolation(err):
		h.fail(c, errSessionNumberTaken, "")
		return
	case err != nil:
		h.fail(c, err, "failed to update session")
		return
	}

	c.JSON(http.StatusOK, s)
}

// deleteSession removes a session and its attendance records.
// DELETE /api/sport-events/:eventId/sessions/:sessionId.
func (h *Handler) deleteSession(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	if _, err := loadOwnedEvent(c, h.db, eventID, userID); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	result, err := h.db.Exec(c,
		"DELETE FROM sport_event_sessions WHERE id = @sessionID AND event_id = @eventID",
		pgx.NamedArgs{"sessionID": sessionID, "eventID": eventID})
	if err != nil {
		h.fail(c, err, "failed to delete session")
		return
	}
	if result.RowsAffected() == 0 {
		h.fail(c, errSessionNotFound, "")
		return
	}

	c.Status(http.StatusNoContent)
}

// sessionQRCode renders a PNG QR code that deep-links to the session's check-in page.
// GET /api/sport-events/:eventId/sessions/:sessionId/qrcode?size=320.
func (h *Handler) sessionQRCode(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, sessionID, ok := sessionPathIDs(c)
	if !ok {
		return
	}

	if _, err := loadVisibleSession(c, h.db, eventID, sessionID, userID); err != nil {
		h.fail(c, err, "failed to fetch session")
		return
	}

	size := qrCodeSize
	if s, err := strconv.Atoi(c.Query("size")); err == nil && s >= 128 && s <= 1024 {
		size = s
	}
	png, err := qrcode.Encode(sessionCheckInURL(h.appURL, eventID, sessionID), qrcode.Medium, size)
	if err != nil {
		h.fail(c, err, "failed to generate QR code")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"session-%d.png\"", sessionID))
	c.Data(http.StatusOK, "image/png", png)
}
