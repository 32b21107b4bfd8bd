package main

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// expandMealPlan copies the plan's meals into schedule items. Day N of the
// plan lands on start + N-1 days.
func expandMealPlan(days []mealPlanDay, start time.Time) []userMealItem {
	var items []userMealItem
	for _, d := range days {
		date := start.AddDate(0, 0, d.DayNumber-1)
		for _, m := range d.Meals {
			mealID := m.ID
			items = append(items, userMealItem{
				MealPlanMealID: &mealID,
				RecipeID:       m.RecipeID,
				DayNumber:      d.DayNumber,
				ScheduledDate:  DateOnly{date},
				MealType:       m.MealType,
				MealOrder:      m.MealOrder,
				Name:           m.Name,
				Calories:       m.Calories,
				ProteinG:       m.ProteinG,
				CarbsG:         m.CarbsG,
				FatG:           m.FatG,
				Status:         "pending",
				Images:         []string{},
			})
		}
	}
	return items
}

// scheduleEndDate is the last calendar day of a schedule of the given length.
func scheduleEndDate(start time.Time, duration int) time.Time {
	if duration < 1 {
		duration = 1
	}
	return start.AddDate(0, 0, duration-1)
}

// applyMealPlan snapshots a plan into a dated personal schedule. The schedule,
// its items and the plan's applied_count are written in one transaction.
// POST /api/meal-plans/apply {meal_plan_id, start_date?, title?}
func (h *Handler) applyMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body applyMealPlanRequest
	if !bindJSON(c, &body) {
		return
	}

	today := h.clock()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if body.StartDate != "" {
		// Format already checked by the datetime binding.
		start, _ = time.Parse(dateLayout, body.StartDate)
	}

	var scheduleID int
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		plan, err := loadVisibleMealPlan(c, tx, body.MealPlanID, userID)
		if err != nil {
			return err
		}
		days, err := loadMealPlanDays(c, tx, plan.ID)
		if err != nil {
			return err
		}
		items := expandMealPlan(days, start)

		title := strings.TrimSpace(body.Title)
		if title == "" {
			title = plan.Title
		}
		rows, err := tx.Query(c,
			`INSERT INTO user_meal_schedules (user_id, meal_plan_id, title, start_date, end_date, total_meals)
			 VALUES (@userID, @planID, @title, @startDate, @endDate, @totalMeals)
			 RETURNING id`,
			pgx.NamedArgs{
				"userID":     userID,
				"planID":     plan.ID,
				"title":      title,
				"startDate":  start.Format(dateLayout),
				"endDate":    scheduleEndDate(start, plan.Duration).Format(dateLayout),
				"totalMeals": len(items),
			})
		if err != nil {
			return err
		}
		if scheduleID, err = pgx.CollectOneRow(rows, pgx.RowTo[int]); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, it := range items {
			batch.Queue(
				`INSERT INTO user_meal_items
				   (schedule_id, meal_plan_meal_id, recipe_id, day_number, scheduled_date, meal_type, meal_order, name, calories, protein_g, carbs_g, fat_g)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				scheduleID, it.MealPlanMealID, it.RecipeID, it.DayNumber, it.ScheduledDate.Format(dateLayout),
				it.MealType, it.MealOrder, it.Name, it.Calories, it.ProteinG, it.CarbsG, it.FatG,
			)
		}
		if err := tx.SendBatch(c, batch).Close(); err != nil {
			return err
		}

		_, err = tx.Exec(c,
			"UPDATE meal_plans SET applied_count = applied_count + 1 WHERE id = @planID",
			pgx.NamedArgs{"planID": plan.ID})
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to apply meal plan")
		return
	}

	h.metrics.publish("MealPlanApplications", 1, map[string]string{"MealPlanID": strconv.Itoa(body.MealPlanID)})
	h.log.Info("meal plan applied",
		zap.Int("user_id", userID),
		zap.Int("meal_plan_id", body.MealPlanID),
		zap.Int("schedule_id", scheduleID),
	)

	detail, err := h.scheduleDetail(c, scheduleID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch meal schedule")
		return
	}
	c.JSON(http.StatusCreated, detail)
}
