package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlanDays() []mealPlanDay {
	protein := 30.0
	return []mealPlanDay{
		{ID: 10, DayNumber: 1, Meals: []mealPlanMeal{
			{ID: 100, MealPlanDayID: 10, MealOrder: 1, MealType: "breakfast", Name: "Oats", Calories: 350},
			{ID: 101, MealPlanDayID: 10, MealOrder: 2, MealType: "lunch", Name: "Chicken rice", Calories: 600, ProteinG: &protein},
		}},
		{ID: 11, DayNumber: 2, Meals: []mealPlanMeal{
			{ID: 102, MealPlanDayID: 11, MealOrder: 1, MealType: "breakfast", Name: "Bánh mì", Calories: 420},
			{ID: 103, MealPlanDayID: 11, MealOrder: 2, MealType: "dinner", Name: "Salmon", Calories: 550},
		}},
		{ID: 12, DayNumber: 3, Meals: []mealPlanMeal{
			{ID: 104, MealPlanDayID: 12, MealOrder: 1, MealType: "breakfast", Name: "Yogurt", Calories: 200},
			{ID: 105, MealPlanDayID: 12, MealOrder: 2, MealType: "snack", Name: "Almonds", Calories: 180},
		}},
	}
}

func TestExpandMealPlan(t *testing.T) {
	start := time.Date(2026, 10, 30, 0, 0, 0, 0, time.UTC)
	items := expandMealPlan(testPlanDays(), start)

	// duration x meals-per-day
	require.Len(t, items, 6)

	wantDates := []string{"2026-10-30", "2026-10-30", "2026-10-31", "2026-10-31", "2026-11-01", "2026-11-01"}
	for i, it := range items {
		assert.Equal(t, wantDates[i], it.ScheduledDate.Format(dateLayout), "item %d", i)
		assert.Equal(t, "pending", it.Status)
		require.NotNil(t, it.MealPlanMealID)
		assert.Equal(t, 100+i, *it.MealPlanMealID)
		assert.NotNil(t, it.Images)
	}
	assert.Equal(t, "Chicken rice", items[1].Name)
	assert.Equal(t, 2, items[1].MealOrder)
	assert.InDelta(t, 30.0, *items[1].ProteinG, 0.001)
	assert.Equal(t, 3, items[5].DayNumber)
}

func TestExpandMealPlan_Empty(t *testing.T) {
	assert.Empty(t, expandMealPlan(nil, time.Now()))
}

func TestScheduleEndDate(t *testing.T) {
	start := time.Date(2026, 10, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-11-05", scheduleEndDate(start, 7).Format(dateLayout))
	assert.Equal(t, "2026-10-30", scheduleEndDate(start, 1).Format(dateLayout))
	assert.Equal(t, "2026-10-30", scheduleEndDate(start, 0).Format(dateLayout))
}

func TestAttachMeals(t *testing.T) {
	days := []mealPlanDay{{ID: 1, DayNumber: 1}, {ID: 2, DayNumber: 2}}
	meals := []mealPlanMeal{
		{ID: 5, MealPlanDayID: 2, MealOrder: 1},
		{ID: 6, MealPlanDayID: 1, MealOrder: 1},
		{ID: 7, MealPlanDayID: 2, MealOrder: 2},
		{ID: 8, MealPlanDayID: 99, MealOrder: 1},
	}

	got := attachMeals(days, meals)
	require.Len(t, got, 2)
	assert.Len(t, got[0].Meals, 1)
	if assert.Len(t, got[1].Meals, 2) {
		assert.Equal(t, 5, got[1].Meals[0].ID)
		assert.Equal(t, 7, got[1].Meals[1].ID)
	}

	empty := attachMeals([]mealPlanDay{{ID: 3}}, nil)
	assert.NotNil(t, empty[0].Meals)
}

func filterFromQuery(t *testing.T, query string) (mealPlanFilter, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/api/meal-plans?"+query, nil)
	return parseMealPlanFilter(c)
}

func TestMealPlanFilter(t *testing.T) {
	f, err := filterFromQuery(t, "category=vegan&difficulty=easy&duration=7&search=%20tofu%20&sort=popular")
	require.NoError(t, err)

	args := pgx.NamedArgs{}
	where, orderBy := f.clauses([]string{"mp.is_public"}, args)
	assert.Equal(t,
		" WHERE mp.is_public AND mp.category = @category AND mp.difficulty = @difficulty"+
			" AND mp.duration = @duration AND (mp.title ILIKE @search OR mp.description ILIKE @search)",
		where)
	assert.Equal(t, " ORDER BY mp.likes_count DESC, mp.created_at DESC, mp.id DESC", orderBy)
	assert.Equal(t, pgx.NamedArgs{
		"category":   "vegan",
		"difficulty": "easy",
		"duration":   7,
		"search":     "%tofu%",
	}, args)
}

func TestMealPlanFilter_Defaults(t *testing.T) {
	f, err := filterFromQuery(t, "sort=nonsense")
	require.NoError(t, err)

	args := pgx.NamedArgs{}
	where, orderBy := f.clauses(nil, args)
	assert.Empty(t, where)
	assert.Equal(t, " ORDER BY mp.created_at DESC, mp.id DESC", orderBy)
	assert.Empty(t, args)

	for sort, want := range map[string]string{
		"oldest":       "mp.created_at ASC",
		"most_applied": "mp.applied_count DESC",
	} {
		_, orderBy := mealPlanFilter{Sort: sort}.clauses(nil, pgx.NamedArgs{})
		assert.Contains(t, orderBy, want, sort)
	}
}

func TestMealPlanFilter_BadDuration(t *testing.T) {
	for _, q := range []string{"duration=abc", "duration=0", "duration=-3"} {
		_, err := filterFromQuery(t, q)
		assert.Error(t, err, q)
	}
}

func TestCommentCounterDeltas(t *testing.T) {
	parent := 4
	reply := mealPlanComment{ID: 9, ParentID: &parent}
	p, plan := commentCounterDeltas(reply)
	assert.Equal(t, 1, p)
	assert.Equal(t, 1, plan)

	top := mealPlanComment{ID: 4, ReplyCount: 3}
	p, plan = commentCounterDeltas(top)
	assert.Equal(t, 0, p)
	assert.Equal(t, 4, plan, "top-level delete removes its replies too")
}

func TestMealPlanInviteLink(t *testing.T) {
	assert.Equal(t,
		"https://fedacn.app/meal-plans/12?invite=abc",
		mealPlanInviteLink("https://fedacn.app/", 12, "abc"))
}
