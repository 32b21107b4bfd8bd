package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// defaultTargetValue is used for percentages when an event has no positive target.
const defaultTargetValue = 100

/* ─── Ranking and percentages ────────────────────────────────────────── */

// normalizeLeaderboardSort maps the sortBy query param to a known metric.
// Anything unrecognised ranks by total progress.
func normalizeLeaderboardSort(sortBy string) string {
	switch sortBy {
	case "totalDistance", "totalCalories":
		return sortBy
	default:
		return "totalProgress"
	}
}

// rankLeaderboard sorts entries descending by the chosen metric and assigns
// 1-based ranks by position. Ties keep their input order.
func rankLeaderboard(entries []leaderboardEntry, sortBy string) []leaderboardEntry {
	metric := func(e leaderboardEntry) float64 { return e.TotalProgress }
	switch normalizeLeaderboardSort(sortBy) {
	case "totalDistance":
		metric = func(e leaderboardEntry) float64 { return e.TotalDistance }
	case "totalCalories":
		metric = func(e leaderboardEntry) float64 { return e.TotalCalories }
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return metric(entries[i]) > metric(entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// progressPercentage is round(total/target*100) clamped to [0, 100]. A nil
// or non-positive target falls back to 100.
func progressPercentage(total float64, target *float64) int {
	t := float64(defaultTargetValue)
	if target != nil && *target > 0 {
		t = *target
	}
	pct := math.Round(total / t * 100)
	return int(math.Max(0, math.Min(100, pct)))
}

// buildParticipantPage merges participants with their progress totals,
// filters by name, sorts by total progress and returns the requested page.
func buildParticipantPage(rows []participantRow, totals []progressTotal, target *float64, search string, page, limit int) participantPage {
	byUser := make(map[int]progressTotal, len(totals))
	for _, t := range totals {
		byUser[t.UserID] = t
	}

	needle := strings.ToLower(strings.TrimSpace(search))
	merged := make([]participantProgress, 0, len(rows))
	for _, r := range rows {
		if needle != "" &&
			!strings.Contains(strings.ToLower(r.FullName), needle) &&
			!strings.Contains(strings.ToLower(r.Username), needle) {
			continue
		}
		t := byUser[r.UserID]
		merged = append(merged, participantProgress{
			UserID:             r.UserID,
			Username:           r.Username,
			FullName:           r.FullName,
			AvatarURL:          r.AvatarURL,
			JoinedAt:           r.JoinedAt,
			TotalProgress:      t.TotalProgress,
			EntryCount:         t.EntryCount,
			ProgressPercentage: progressPercentage(t.TotalProgress, target),
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TotalProgress > merged[j].TotalProgress
	})

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	start := len(merged)
	if page-1 <= len(merged)/limit {
		start = min((page-1)*limit, len(merged))
	}
	end := start + limit
	if end > len(merged) {
		end = len(merged)
	}

	return participantPage{
		Participants: merged[start:end],
		Total:        len(merged),
		Page:         page,
		Limit:        limit,
		TotalPages:   totalPages(len(merged), limit),
	}
}

/* ─── Persistence ────────────────────────────────────────────────────── */

// insertProgress appends a progress entry after checking the event exists
// and the user has joined it.
func (h *Handler) insertProgress(ctx context.Context, eventID, userID int, body addProgressRequest) (progressEntry, error) {
	if _, err := loadVisibleEvent(ctx, h.db, eventID, userID); err != nil {
		return progressEntry{}, err
	}
	joined, err := isParticipant(ctx, h.db, eventID, userID)
	if err != nil {
		return progressEntry{}, err
	}
	if !joined {
		return progressEntry{}, errNotParticipant
	}

	date := h.clock()
	if body.Date != nil && !body.Date.IsZero() {
		date = *body.Date
	}

	entry, err := queryOne[progressEntry](ctx, h.db,
		`INSERT INTO sport_event_progress (event_id, user_id, value, unit, distance, time, calories, proof_image, notes, date)
		 VALUES (@eventID, @userID, @value, @unit, @distance, @time, @calories, @proofImage, @notes, @date)
		 RETURNING *`,
		pgx.NamedArgs{
			"eventID":    eventID,
			"userID":     userID,
			"value":      *body.Value,
			"unit":       body.Unit,
			"distance":   body.Distance,
			"time":       body.Time,
			"calories":   body.Calories,
			"proofImage": body.ProofImage,
			"notes":      body.Notes,
			"date":       date,
		})
	if err != nil {
		return entry, err
	}

	h.cache.invalidate(ctx, eventID)
	h.metrics.publish("ProgressEntries", 1, map[string]string{"EventID": strconv.Itoa(eventID)})
	return entry, nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// addProgress appends a progress entry for the caller.
// POST /api/sport-events/:eventId/progress.
func (h *Handler) addProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}

	var body addProgressRequest
	if !bindJSON(c, &body) {
		return
	}

	entry, err := h.insertProgress(c, eventID, userID, body)
	if err != nil {
		h.fail(c, err, "failed to add progress")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// listProgress returns one user's entries for the event, newest first.
// GET /api/sport-events/:eventId/progress?user_id= (defaults to the caller).
func (h *Handler) listProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	if q := c.Query("user_id"); q != "" {
		id, err := strconv.Atoi(q)
		if err != nil || id <= 0 {
			apiError(c, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = id
	}

	if _, err := loadVisibleEvent(c, h.db, eventID, c.GetInt("user_id")); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	entries, err := queryMany[progressEntry](c, h.db,
		`SELECT * FROM sport_event_progress
		 WHERE event_id = @eventID AND user_id = @userID
		 ORDER BY date DESC, id DESC`,
		pgx.NamedArgs{"eventID": eventID, "userID": userID})
	if err != nil {
		h.fail(c, err, "failed to fetch progress")
		return
	}

	total := 0.0
	for _, e := range entries {
		total += e.Value
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total_value": total})
}

// updateProgress edits one of the caller's own entries.
// PATCH /api/sport-events/:eventId/progress/:progressId.
func (h *Handler) updateProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	progressID, ok := paramID(c, "progressId")
	if !ok {
		return
	}

	var body updateProgressRequest
	if !bindJSON(c, &body) {
		return
	}

	entry, err := queryOne[progressEntry](c, h.db,
		`UPDATE sport_event_progress SET
			value       = COALESCE(@value, value),
			unit        = COALESCE(@unit, unit),
			distance    = COALESCE(@distance, distance),
			time        = COALESCE(@time, time),
			calories    = COALESCE(@calories, calories),
			proof_image = COALESCE(@proofImage, proof_image),
			notes       = COALESCE(@notes, notes),
			date        = COALESCE(@date, date)
		 WHERE id = @progressID AND event_id = @eventID AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{
			"progressID": progressID,
			"eventID":    eventID,
			"userID":     userID,
			"value":      body.Value,
			"unit":       body.Unit,
			"distance":   body.Distance,
			"time":       body.Time,
			"calories":   body.Calories,
			"proofImage": body.ProofImage,
			"notes":      body.Notes,
			"date":       body.Date,
		})
	if errors.Is(err, pgx.ErrNoRows) {
		h.fail(c, errProgressNotFound, "")
		return
	}
	if err != nil {
		h.fail(c, err, "failed to update progress")
		return
	}

	h.cache.invalidate(c, eventID)
	c.JSON(http.StatusOK, entry)
}

// deleteProgress removes one of the caller's own entries.
// DELETE /api/sport-events/:eventId/progress/:progressId.
func (h *Handler) deleteProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	progressID, ok := paramID(c, "progressId")
	if !ok {
		return
	}

	result, err := h.db.Exec(c,
		"DELETE FROM sport_event_progress WHERE id = @progressID AND event_id = @eventID AND user_id = @userID",
		pgx.NamedArgs{"progressID": progressID, "eventID": eventID, "userID": userID})
	if err != nil {
		h.fail(c, err, "failed to delete progress")
		return
	}
	if result.RowsAffected() == 0 {
		h.fail(c, errProgressNotFound, "")
		return
	}

	h.cache.invalidate(c, eventID)
	c.Status(http.StatusNoContent)
}

// getLeaderboard ranks users by their summed progress.
// GET /api/sport-events/:eventId/leaderboard?sortBy=totalProgress|totalDistance|totalCalories.
func (h *Handler) getLeaderboard(c *gin.Context) {
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	sortBy := normalizeLeaderboardSort(c.Query("sortBy"))

	// The cache is keyed by event only, so visibility is checked per caller first.
	if _, err := loadVisibleEvent(c, h.db, eventID, c.GetInt("user_id")); err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	if cached, hit := h.cache.get(c, eventID, sortBy); hit {
		c.JSON(http.StatusOK, cached)
		return
	}

	entries, err := queryMany[leaderboardEntry](c, h.db,
		`SELECT p.user_id, u.username, u.full_name, u.avatar_url,
			SUM(p.value)                  AS total_progress,
			COALESCE(SUM(p.distance), 0)  AS total_distance,
			COALESCE(SUM(p.calories), 0)  AS total_calories,
			COUNT(*)::int                 AS entry_count
		 FROM sport_event_progress p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = @eventID
		 GROUP BY p.user_id, u.username, u.full_name, u.avatar_url
		 ORDER BY p.user_id`,
		pgx.NamedArgs{"eventID": eventID})
	if err != nil {
		h.fail(c, err, "failed to fetch leaderboard")
		return
	}

	entries = rankLeaderboard(entries, sortBy)
	h.cache.set(c, eventID, sortBy, entries)
	c.JSON(http.StatusOK, entries)
}

// getParticipants lists participants with their progress percentage toward the event target.
// GET /api/sport-events/:eventId/participants?page=&limit=&search=
func (h *Handler) getParticipants(c *gin.Context) {
	eventID, ok := paramID(c, "eventId")
	if !ok {
		return
	}
	page, limit := pageParams(c)

	ev, err := loadVisibleEvent(c, h.db, eventID, c.GetInt("user_id"))
	if err != nil {
		h.fail(c, err, "failed to fetch sport event")
		return
	}
	rows, err := queryMany[participantRow](c, h.db,
		`SELECT p.user_id, u.username, u.full_name, u.avatar_url, p.joined_at
		 FROM sport_event_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = @eventID
		 ORDER BY p.joined_at`,
		pgx.NamedArgs{"eventID": eventID})
	if err != nil {
		h.fail(c, err, "failed to fetch participants")
		return
	}
	totals, err := queryMany[progressTotal](c, h.db,
		`SELECT user_id, SUM(value) AS total_progress, COUNT(*)::int AS entry_count
		 FROM sport_event_progress
		 WHERE event_id = @eventID
		 GROUP BY user_id`,
		pgx.NamedArgs{"eventID": eventID})
	if err != nil {
		h.fail(c, err, "failed to fetch progress totals")
		return
	}

	c.JSON(http.StatusOK, buildParticipantPage(rows, totals, ev.TargetValue, c.Query("search"), page, limit))
}
