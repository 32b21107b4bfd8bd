package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// scheduleStatuses are the values accepted by ?status= on the list endpoint.
var scheduleStatuses = map[string]bool{
	"active":    true,
	"paused":    true,
	"completed": true,
	"cancelled": true,
}

// scheduleProgress is the aggregate derived from a schedule's items.
type scheduleProgress struct {
	TotalMeals     int
	CompletedMeals int
	Progress       int
	CurrentDay     int
	Status         string
}

// countsAsDone reports whether an item status counts toward completion.
func countsAsDone(status string) bool {
	return status == "completed" || status == "substituted"
}

// recomputeScheduleProgress derives the schedule counters from its items.
// An active schedule with nothing pending becomes completed; a completed one
// with a pending item goes back to active. Paused and cancelled are kept.
func recomputeScheduleProgress(items []itemProgressRow, status string) scheduleProgress {
	p := scheduleProgress{TotalMeals: len(items), Status: status}

	firstPending, lastDay := 0, 0
	for _, it := range items {
		if countsAsDone(it.Status) {
			p.CompletedMeals++
		}
		if it.Status == "pending" && (firstPending == 0 || it.DayNumber < firstPending) {
			firstPending = it.DayNumber
		}
		if it.DayNumber > lastDay {
			lastDay = it.DayNumber
		}
	}

	if p.TotalMeals > 0 {
		pct := math.Round(float64(p.CompletedMeals) / float64(p.TotalMeals) * 100)
		p.Progress = int(math.Min(100, math.Max(0, pct)))
	}

	switch {
	case firstPending > 0:
		p.CurrentDay = firstPending
	case lastDay > 0:
		p.CurrentDay = lastDay
	default:
		p.CurrentDay = 1
	}

	hasPending := firstPending > 0
	switch {
	case status == "active" && !hasPending && p.TotalMeals > 0:
		p.Status = "completed"
	case status == "completed" && hasPending:
		p.Status = "active"
	}
	return p
}

// applyItemUpdate merges the request into item. Done states stamp
// completed_at; other states clear it, and leaving substituted drops the
// substitute name.
func applyItemUpdate(item *userMealItem, req updateMealItemRequest, now time.Time) error {
	if req.SubstituteName != nil {
		item.SubstituteName = req.SubstituteName
	}
	if req.Status != nil && *req.Status != item.Status {
		item.Status = *req.Status
		if countsAsDone(item.Status) {
			item.CompletedAt = &now
		} else {
			item.CompletedAt = nil
		}
		if item.Status != "substituted" && req.SubstituteName == nil {
			item.SubstituteName = nil
		}
	}
	if item.Status == "substituted" && (item.SubstituteName == nil || *item.SubstituteName == "") {
		return errSubstituteRequired
	}

	if req.Rating != nil {
		item.Rating = req.Rating
	}
	if req.Review != nil {
		item.Review = req.Review
	}
	if req.Mood != nil {
		item.Mood = req.Mood
	}
	if req.Images != nil {
		item.Images = req.Images
	}
	if item.Images == nil {
		item.Images = []string{}
	}
	return nil
}

// summarizeScheduleDay totals the planned and consumed nutrition of one day.
// Consumed counts completed and substituted items.
func summarizeScheduleDay(date string, dayNumber int, items []userMealItem, target *int) scheduleDaySummary {
	s := scheduleDaySummary{
		Date:           date,
		DayNumber:      dayNumber,
		TotalMeals:     len(items),
		TargetCalories: target,
		Items:          items,
	}
	for _, it := range items {
		s.PlannedCalories += it.Calories
		if !countsAsDone(it.Status) {
			continue
		}
		s.CompletedMeals++
		s.ConsumedCalories += it.Calories
		if it.ProteinG != nil {
			s.ProteinG += *it.ProteinG
		}
		if it.CarbsG != nil {
			s.CarbsG += *it.CarbsG
		}
		if it.FatG != nil {
			s.FatG += *it.FatG
		}
	}
	return s
}

/* ─── Persistence ────────────────────────────────────────────────────── */

// loadSchedule fetches a schedule owned by userID. With lock set the row is
// held FOR UPDATE until the transaction ends.
func loadSchedule(ctx context.Context, db dbtx, scheduleID, userID int, lock bool) (userMealSchedule, error) {
	sql := "SELECT * FROM user_meal_schedules WHERE id = @scheduleID AND user_id = @userID"
	if lock {
		sql += " FOR UPDATE"
	}
	s, err := queryOne[userMealSchedule](ctx, db, sql,
		pgx.NamedArgs{"scheduleID": scheduleID, "userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		return s, errScheduleNotFound
	}
	return s, err
}

// saveScheduleProgress recomputes the schedule from its items and stores the result.
func saveScheduleProgress(ctx context.Context, tx pgx.Tx, s userMealSchedule) (userMealSchedule, error) {
	rows, err := queryMany[itemProgressRow](ctx, tx,
		"SELECT day_number, status FROM user_meal_items WHERE schedule_id = @scheduleID",
		pgx.NamedArgs{"scheduleID": s.ID})
	if err != nil {
		return s, err
	}
	p := recomputeScheduleProgress(rows, s.Status)

	return queryOne[userMealSchedule](ctx, tx,
		`UPDATE user_meal_schedules SET
			total_meals           = @totalMeals,
			total_completed_meals = @completedMeals,
			progress              = @progress,
			current_day           = @currentDay,
			status                = @status,
			updated_at            = now()
		 WHERE id = @scheduleID
		 RETURNING *`,
		pgx.NamedArgs{
			"scheduleID":     s.ID,
			"totalMeals":     p.TotalMeals,
			"completedMeals": p.CompletedMeals,
			"progress":       p.Progress,
			"currentDay":     p.CurrentDay,
			"status":         p.Status,
		})
}

func (h *Handler) scheduleDetail(ctx context.Context, scheduleID, userID int) (scheduleDetail, error) {
	s, err := loadSchedule(ctx, h.db, scheduleID, userID, false)
	if err != nil {
		return scheduleDetail{}, err
	}
	items, err := queryMany[userMealItem](ctx, h.db,
		`SELECT * FROM user_meal_items
		 WHERE schedule_id = @scheduleID
		 ORDER BY day_number, meal_order, id`,
		pgx.NamedArgs{"scheduleID": scheduleID})
	if err != nil {
		return scheduleDetail{}, err
	}
	return scheduleDetail{userMealSchedule: s, Items: items}, nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// listMealSchedules returns the caller's schedules, newest first.
// GET /api/meal-schedules?status=&page=&limit=
func (h *Handler) listMealSchedules(c *gin.Context) {
	userID := c.GetInt("user_id")
	page, limit := pageParams(c)

	where := " WHERE user_id = @userID"
	args := pgx.NamedArgs{"userID": userID, "limit": limit, "offset": (page - 1) * limit}
	if status := c.Query("status"); status != "" {
		if !scheduleStatuses[status] {
			apiError(c, http.StatusBadRequest, "status must be one of: active, paused, completed, cancelled")
			return
		}
		where += " AND status = @status"
		args["status"] = status
	}

	rows, err := h.db.Query(c, "SELECT COUNT(*) FROM user_meal_schedules"+where, args)
	if err != nil {
		h.fail(c, err, "failed to count meal schedules")
		return
	}
	total, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		h.fail(c, err, "failed to count meal schedules")
		return
	}

	schedules, err := queryMany[userMealSchedule](c, h.db,
		"SELECT * FROM user_meal_schedules"+where+" ORDER BY created_at DESC, id DESC LIMIT @limit OFFSET @offset",
		args)
	if err != nil {
		h.fail(c, err, "failed to fetch meal schedules")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"schedules":   schedules,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

// getMealSchedule returns a schedule with all its items.
// GET /api/meal-schedules/:id
func (h *Handler) getMealSchedule(c *gin.Context) {
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.scheduleDetail(c, scheduleID, c.GetInt("user_id"))
	if err != nil {
		h.fail(c, err, "failed to fetch meal schedule")
		return
	}
	c.JSON(http.StatusOK, detail)
}

// getScheduleDay returns the items planned for one date with planned vs
// consumed totals. The target is the caller's computed calorie target, when
// their profile is complete.
// GET /api/meal-schedules/:id/day?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getScheduleDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	date := c.DefaultQuery("date", h.clock().Format(dateLayout))
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	s, err := loadSchedule(c, h.db, scheduleID, userID, false)
	if err != nil {
		h.fail(c, err, "failed to fetch meal schedule")
		return
	}

	items, err := queryMany[userMealItem](c, h.db,
		`SELECT * FROM user_meal_items
		 WHERE schedule_id = @scheduleID AND scheduled_date = @date
		 ORDER BY meal_order, id`,
		pgx.NamedArgs{"scheduleID": scheduleID, "date": date})
	if err != nil {
		h.fail(c, err, "failed to fetch meal items")
		return
	}

	var target *int
	profile, err := queryOne[userProfile](c, h.db,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
	switch {
	case err == nil:
		populateNutrition(&profile, h.clock())
		if profile.Nutrition != nil {
			target = &profile.Nutrition.TargetCalories
		}
	case !errors.Is(err, pgx.ErrNoRows):
		h.fail(c, err, "failed to fetch profile")
		return
	}

	dayNumber := int(day.Sub(s.StartDate.Time).Hours()/24) + 1
	c.JSON(http.StatusOK, summarizeScheduleDay(date, dayNumber, items, target))
}

// getScheduleDays returns one row per scheduled day with meal counts and
// planned vs consumed calories.
// GET /api/meal-schedules/:id/days
func (h *Handler) getScheduleDays(c *gin.Context) {
	userID := c.GetInt("user_id")
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if _, err := loadSchedule(c, h.db, scheduleID, userID, false); err != nil {
		h.fail(c, err, "failed to fetch meal schedule")
		return
	}

	days, err := queryMany[scheduleDayRow](c, h.db,
		`SELECT
			day_number,
			scheduled_date,
			COUNT(*)::int AS total_meals,
			COUNT(*) FILTER (WHERE status IN ('completed', 'substituted'))::int AS completed_meals,
			COUNT(*) FILTER (WHERE status = 'skipped')::int AS skipped_meals,
			COALESCE(SUM(calories), 0)::int AS planned_calories,
			COALESCE(SUM(calories) FILTER (WHERE status IN ('completed', 'substituted')), 0)::int AS consumed_calories
		 FROM user_meal_items
		 WHERE schedule_id = @scheduleID
		 GROUP BY day_number, scheduled_date
		 ORDER BY day_number`,
		pgx.NamedArgs{"scheduleID": scheduleID})
	if err != nil {
		h.fail(c, err, "failed to fetch schedule days")
		return
	}

	c.JSON(http.StatusOK, days)
}

// updateMealItem marks an item completed/skipped/substituted/pending and
// records rating, review, mood and images. The item write and the schedule
// recomputation commit together.
// PATCH /api/meal-schedules/:id/items/:itemId
func (h *Handler) updateMealItem(c *gin.Context) {
	userID := c.GetInt("user_id")
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}
	itemID, ok := paramID(c, "itemId")
	if !ok {
		return
	}

	var body updateMealItemRequest
	if !bindJSON(c, &body) {
		return
	}

	var (
		item     userMealItem
		schedule userMealSchedule
	)
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		s, err := loadSchedule(c, tx, scheduleID, userID, true)
		if err != nil {
			return err
		}
		if s.Status == "cancelled" {
			return errScheduleCancelled
		}

		item, err = queryOne[userMealItem](c, tx,
			"SELECT * FROM user_meal_items WHERE id = @itemID AND schedule_id = @scheduleID",
			pgx.NamedArgs{"itemID": itemID, "scheduleID": scheduleID})
		if errors.Is(err, pgx.ErrNoRows) {
			return errMealItemNotFound
		}
		if err != nil {
			return err
		}

		if err := applyItemUpdate(&item, body, h.clock()); err != nil {
			return err
		}
		item, err = queryOne[userMealItem](c, tx,
			`UPDATE user_meal_items SET
				status          = @status,
				completed_at    = @completedAt,
				substitute_name = @substituteName,
				rating          = @rating,
				review          = @review,
				mood            = @mood,
				images          = @images,
				updated_at      = now()
			 WHERE id = @itemID
			 RETURNING *`,
			pgx.NamedArgs{
				"itemID":         itemID,
				"status":         item.Status,
				"completedAt":    item.CompletedAt,
				"substituteName": item.SubstituteName,
				"rating":         item.Rating,
				"review":         item.Review,
				"mood":           item.Mood,
				"images":         item.Images,
			})
		if err != nil {
			return err
		}

		schedule, err = saveScheduleProgress(c, tx, s)
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to update meal item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"item": item, "schedule": schedule})
}

// updateMealScheduleStatus pauses, resumes or cancels a schedule. Cancelled
// schedules stay cancelled. Resuming a schedule with nothing pending
// completes it.
// PATCH /api/meal-schedules/:id {status}
func (h *Handler) updateMealScheduleStatus(c *gin.Context) {
	userID := c.GetInt("user_id")
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body updateScheduleStatusRequest
	if !bindJSON(c, &body) {
		return
	}

	var schedule userMealSchedule
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		s, err := loadSchedule(c, tx, scheduleID, userID, true)
		if err != nil {
			return err
		}
		if s.Status == "cancelled" {
			return errScheduleCancelled
		}
		s.Status = body.Status
		schedule, err = saveScheduleProgress(c, tx, s)
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to update meal schedule")
		return
	}

	c.JSON(http.StatusOK, schedule)
}

// deleteMealSchedule removes a schedule and its items.
// DELETE /api/meal-schedules/:id
func (h *Handler) deleteMealSchedule(c *gin.Context) {
	scheduleID, ok := paramID(c, "id")
	if !ok {
		return
	}

	tag, err := h.db.Exec(c,
		"DELETE FROM user_meal_schedules WHERE id = @scheduleID AND user_id = @userID",
		pgx.NamedArgs{"scheduleID": scheduleID, "userID": c.GetInt("user_id")})
	if err != nil {
		h.fail(c, err, "failed to delete meal schedule")
		return
	}
	if tag.RowsAffected() == 0 {
		h.fail(c, errScheduleNotFound, "")
		return
	}

	c.Status(http.StatusNoContent)
}
