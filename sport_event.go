package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// loadEvent fetches an event or returns errEventNotFound.
func loadEvent(ctx context.Context, db dbtx, eventID int) (sportEvent, error) {
	ev, err := queryOne[sportEvent](ctx, db,
		"SELECT * FROM sport_events WHERE id = @eventID",
		pgx.NamedArgs{"eventID": eventID})
	if errors.Is(err, pgx.ErrNoRows) {
		return ev, errEventNotFound
	}
	return ev, err
}

// loadOwnedEvent fetches an event and checks that userID owns it.
func loadOwnedEvent(ctx context.Context, db dbtx, eventID, userID int) (sportEvent, error) {
	ev, err := loadEvent(ctx, db, eventID)
	if err != nil {
		return ev, err
	}
	if ev.OwnerID != userID {
		return ev, errForbidden
	}
	return ev, nil
}

// eventVisibleTo reports whether userID may read ev. Private events are
// visible to their owner and to users who joined before it went private.
func eventVisibleTo(ev sportEvent, userID int, joined bool) bool {
	return ev.IsPublic || ev.OwnerID == userID || joined
}

// loadVisibleEvent fetches an event userID may read. Private events of other
// users are reported as errEventNotFound so their IDs do not leak.
func loadVisibleEvent(ctx context.Context, db dbtx, eventID, userID int) (sportEvent, error) {
	ev, err := loadEvent(ctx, db, eventID)
	if err != nil {
		return ev, err
	}
	if eventVisibleTo(ev, userID, false) {
		return ev, nil
	}
	joined, err := isParticipant(ctx, db, eventID, userID)
	if err != nil {
		return ev, err
	}
	if !eventVisibleTo(ev, userID, joined) {
		return sportEvent{}, errEventNotFound
	}
	return ev, nil
}

// isParticipant reports whether userID has joined eventID.
func isParticipant(ctx context.Context, db dbtx, eventID, userID int) (bool, error) {
	rows, err := db.Query(ctx,
		"SELECT EXISTS (SELECT 1 FROM sport_event_participants WHERE event_id = @eventID AND user_id = @userID)",
		pgx.NamedArgs{"eventID": eventID, "userID": userID})
	if err != nil {
		return false, err
	}
	return pgx.CollectOneRow(rows, pgx.RowTo[bool])
}

const eventDetailSelect = `
	SELECT e.*,
		(SELECT COUNT(*) FROM sport_event_participants p WHERE p.event_id = e.id)::int AS participant_count,
		EXISTS (SELECT 1 FROM sport_event_participants p WHERE p.event_id = e.id AND p.user_id = @userID) AS is_participant
	FROM sport_events e`

// createSportEvent creates an event owned by the caller.
// POST /api/sport-events.
func (h *Handler) createSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createSportEventRequest
	if !bindJSON(c, &body) {
		return
	}
	if body.StartDate.IsZero() || body.EndDate.IsZero() {
		apiError(c, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	if body.EndDate.Before(body.StartDate) {
		apiError(c, http.StatusBadRequest, "end_date must not be before start_date")
		return
	}
	isPublic := true
	if body.IsPublic != nil {
		isPublic = *body.IsPublic
	}

	ev, err := queryOne[sportEvent](c, h.db,
		`INSERT INTO sport_events (owner_id, title, description, category, start_date, end_date, target_value, target_unit, is_public)
		 VALUES (@ownerID, @title, @description, @category, @startDate, @endDate, @targetValue, @targetUnit, @isPublic)
		 RETURNING *`,
		pgx.NamedArgs{
			"ownerID":     userID,
			"title":       strings.TrimSpace(body.Title),
			"description": body.Description,
			"category":    body.Category,
			"startDate":   body.StartDate,
			"endDate":     body.EndDate,
			"targetValue": body.TargetValue,
			"targetUnit":  body.TargetUnit,
			"isPublic":    isPublic,
		})
	if err != nil {
		h.fail(c, err, "failed to create sport event")
		return
	}

	c.JSON(http.StatusCreated, ev)
}

// listSportEvents returns public events (and the caller's own), newest first.
// GET /api/sport-events?page=&limit=&search=&category=
func (h *Handler) listSportEvents(c *gin.Context) {
	userID := c.GetInt("user_id")
	page, limit := pageParams(c)

	where := []string{"(e.is_public OR e.owner_id = @userID)"}
	args := pgx.NamedArgs{"userID": userID, "limit": limit, "offset": (page - 1) * limit}
	if s := strings.TrimSpace(c.Query("search")); s != "" {
		where = append(where, "e.title ILIKE @search")
		args["search"] = "%" + s + "%"
	}
	if cat := c.Query("category"); cat != "" {
		where = append(where, "e.category = @category")
		args["category"] = cat
	}
	whereSQL := " WHERE " + strings.Join(where, " AND ")

	rows, err := h.db.Query(c, "SELECT COUNT(*) FROM sport_events e"+whereSQL, args)
	if err != nil {
		h.fail(c, err, "failed to count sport events")
		return
	}
	total, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		h.fail(c, err, "failed to count sport events")
		return
	}

	events, err := queryMany[sportEventDetail](c, h.db,
		eventDetailSelect+whereSQL+" ORDER BY e.start_date DESC, e.id DESC LIMIT @limit OFFSET @offset", args)
	if err != nil {
		h.fail(c, err, "failed to fetch sport events")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":      events,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

// getSportEvent returns one event with its participant count.
// GET /api/sport-events/:eventId. Private events are only visible to the owner and participants.
func (h *Handler) getSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	ev, err := queryOne[sportEventDetail](c, h.db,
		eventDetailSelect+` WHERE e.id = @eventID AND (e.is_public OR e.owner_id = @userID OR
			EXISTS (SELECT 1 FROM sport_event_participants p WHERE p.event_id = e.id AND p.user_id = @userID))`,
		pgx.NamedArgs{"eventID": eventID, "userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		h.fail(c, errEventNotFound, "")
		return
	}
	if err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}

	c.JSON(http.StatusOK, ev)
}

// updateSportEvent partially updates an event the caller owns.
// PATCH /api/sport-events/:eventId.
func (h *Handler) updateSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	var body updateSportEventRequest
	if !bindJSON(c, &body) {
		return
	}

	current, err := loadOwnedEvent(c, h.db, eventID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	start, end := current.StartDate, current.EndDate
	if body.StartDate != nil {
		start = *body.StartDate
	}
	if body.EndDate != nil {
		end = *body.EndDate
	}
	if end.Before(start) {
		apiError(c, http.StatusBadRequest, "end_date must not be before start_date")
		return
	}

	ev, err := queryOne[sportEvent](c, h.db,
		`UPDATE sport_events SET
			title        = COALESCE(@title, title),
			description  = COALESCE(@description, description),
			category     = COALESCE(@category, category),
			start_date   = COALESCE(@startDate, start_date),
			end_date     = COALESCE(@endDate, end_date),
			target_value = COALESCE(@targetValue, target_value),
			target_unit  = COALESCE(@targetUnit, target_unit),
			is_public    = COALESCE(@isPublic, is_public),
			updated_at   = now()
		 WHERE id = @eventID
		 RETURNING *`,
		pgx.NamedArgs{
			"eventID":     eventID,
			"title":       body.Title,
			"description": body.Description,
			"category":    body.Category,
			"startDate":   body.StartDate,
			"endDate":     body.EndDate,
			"targetValue": body.TargetValue,
			"targetUnit":  body.TargetUnit,
			"isPublic":    body.IsPublic,
		})
	if err != nil {
		h.fail(c, err, "failed to update sport event")
		return
	}

	h.cache.invalidate(c, eventID)
	c.JSON(http.StatusOK, ev)
}

// deleteSportEvent removes an event and (by cascade) its sessions, attendance and progress.
// DELETE /api/sport-events/:eventId.
func (h *Handler) deleteSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	if _, err := loadOwnedEvent(c, h.db, eventID, userID); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	if _, err := h.db.Exec(c, "DELETE FROM sport_events WHERE id = @eventID",
		pgx.NamedArgs{"eventID": eventID}); err != nil {
		h.fail(c, err, "failed to delete sport event")
		return
	}

	h.cache.invalidate(c, eventID)
	c.Status(http.StatusNoContent)
}

// joinSportEvent adds the caller to the event's participants. Joining twice is a no-op.
// POST /api/sport-events/:eventId/join.
func (h *Handler) joinSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	if _, err := loadVisibleEvent(c, h.db, eventID, userID); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}

	if _, err := h.db.Exec(c,
		`INSERT INTO sport_event_participants (event_id, user_id)
		 VALUES (@eventID, @userID)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		pgx.NamedArgs{"eventID": eventID, "userID": userID}); err != nil {
		h.fail(c, err, "failed to join sport event")
		return
	}

	h.cache.invalidate(c, eventID)
	c.JSON(http.StatusOK, gin.H{"joined": true})
}

// leaveSportEvent removes the caller from the participants. Progress entries are kept.
// DELETE /api/sport-events/:eventId/join.
func (h *Handler) leaveSportEvent(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	result, err := h.db.Exec(c,
		"DELETE FROM sport_event_participants WHERE event_id = @eventID AND user_id = @userID",
		pgx.NamedArgs{"eventID": eventID, "userID": userID})
	if err != nil {
		h.fail(c, err, "failed to leave sport event")
		return
	}
	if result.RowsAffected() == 0 {
		apiError(c, http.StatusNotFound, "not a participant of this event")
		return
	}

	h.cache.invalidate(c, eventID)
	c.Status(http.StatusNoContent)
}
