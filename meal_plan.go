package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

/* ─── Listing filters ────────────────────────────────────────────────── */

// mealPlanFilter holds the optional query filters for meal-plan listings.
type mealPlanFilter struct {
	Category   string
	Difficulty string
	Duration   int
	Search     string
	Sort       string
}

// mealPlanOrderBy maps ?sort= to an ORDER BY clause; newest is the default.
var mealPlanOrderBy = map[string]string{
	"newest":       "mp.created_at DESC, mp.id DESC",
	"oldest":       "mp.created_at ASC, mp.id ASC",
	"popular":      "mp.likes_count DESC, mp.created_at DESC, mp.id DESC",
	"most_applied": "mp.applied_count DESC, mp.created_at DESC, mp.id DESC",
}

// parseMealPlanFilter reads the listing filters from the query string.
func parseMealPlanFilter(c *gin.Context) (mealPlanFilter, error) {
	f := mealPlanFilter{
		Category:   strings.TrimSpace(c.Query("category")),
		Difficulty: strings.TrimSpace(c.Query("difficulty")),
		Search:     strings.TrimSpace(c.Query("search")),
		Sort:       c.Query("sort"),
	}
	if d := c.Query("duration"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			return f, errors.New("duration must be a positive integer")
		}
		f.Duration = n
	}
	return f, nil
}

// clauses appends the filter's WHERE conditions to base (binding values into
// args) and returns the joined WHERE and ORDER BY SQL.
func (f mealPlanFilter) clauses(base []string, args pgx.NamedArgs) (where, orderBy string) {
	conds := append([]string{}, base...)
	if f.Category != "" {
		conds = append(conds, "mp.category = @category")
		args["category"] = f.Category
	}
	if f.Difficulty != "" {
		conds = append(conds, "mp.difficulty = @difficulty")
		args["difficulty"] = f.Difficulty
	}
	if f.Duration > 0 {
		conds = append(conds, "mp.duration = @duration")
		args["duration"] = f.Duration
	}
	if f.Search != "" {
		conds = append(conds, "(mp.title ILIKE @search OR mp.description ILIKE @search)")
		args["search"] = "%" + f.Search + "%"
	}

	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	orderBy, ok := mealPlanOrderBy[f.Sort]
	if !ok {
		orderBy = mealPlanOrderBy["newest"]
	}
	return where, " ORDER BY " + orderBy
}

/* ─── Loading ────────────────────────────────────────────────────────── */

// attachMeals groups meals under their day, preserving meal order.
func attachMeals(days []mealPlanDay, meals []mealPlanMeal) []mealPlanDay {
	idx := make(map[int]int, len(days))
	for i := range days {
		days[i].Meals = []mealPlanMeal{}
		idx[days[i].ID] = i
	}
	for _, m := range meals {
		if i, ok := idx[m.MealPlanDayID]; ok {
			days[i].Meals = append(days[i].Meals, m)
		}
	}
	return days
}

// loadVisibleMealPlan fetches a plan the user may see: public ones and their own.
func loadVisibleMealPlan(ctx context.Context, db dbtx, planID, userID int) (mealPlan, error) {
	plan, err := queryOne[mealPlan](ctx, db,
		"SELECT * FROM meal_plans WHERE id = @planID AND (is_public OR author_id = @userID)",
		pgx.NamedArgs{"planID": planID, "userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		return plan, errMealPlanNotFound
	}
	return plan, err
}

// loadOwnedMealPlan fetches a plan and checks the user authored it.
func loadOwnedMealPlan(ctx context.Context, db dbtx, planID, userID int) (mealPlan, error) {
	plan, err := loadVisibleMealPlan(ctx, db, planID, userID)
	if err != nil {
		return plan, err
	}
	if plan.AuthorID != userID {
		return plan, errForbidden
	}
	return plan, nil
}

// loadMealPlanDays returns the plan's days with their meals.
func loadMealPlanDays(ctx context.Context, db dbtx, planID int) ([]mealPlanDay, error) {
	days, err := queryMany[mealPlanDay](ctx, db,
		"SELECT * FROM meal_plan_days WHERE meal_plan_id = @planID ORDER BY day_number",
		pgx.NamedArgs{"planID": planID})
	if err != nil {
		return nil, err
	}
	meals, err := queryMany[mealPlanMeal](ctx, db,
		`SELECT m.* FROM meal_plan_meals m
		 JOIN meal_plan_days d ON d.id = m.meal_plan_day_id
		 WHERE d.meal_plan_id = @planID
		 ORDER BY d.day_number, m.meal_order`,
		pgx.NamedArgs{"planID": planID})
	if err != nil {
		return nil, err
	}
	return attachMeals(days, meals), nil
}

/* ─── Handlers ───────────────────────────────────────────────────────── */

// createMealPlan stores a plan template with its days and meals. Duration is
// the number of days supplied.
// POST /api/meal-plans.
func (h *Handler) createMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createMealPlanRequest
	if !bindJSON(c, &body) {
		return
	}
	difficulty := body.Difficulty
	if difficulty == "" {
		difficulty = "easy"
	}

	var planID int
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		plan, err := queryOne[mealPlan](c, tx,
			`INSERT INTO meal_plans (author_id, title, description, category, difficulty, duration, target_calories, image_url, is_public)
			 VALUES (@authorID, @title, @description, @category, @difficulty, @duration, @targetCalories, @imageURL, @isPublic)
			 RETURNING *`,
			pgx.NamedArgs{
				"authorID":       userID,
				"title":          strings.TrimSpace(body.Title),
				"description":    body.Description,
				"category":       body.Category,
				"difficulty":     difficulty,
				"duration":       len(body.Days),
				"targetCalories": body.TargetCalories,
				"imageURL":       body.ImageURL,
				"isPublic":       body.IsPublic,
			})
		if err != nil {
			return err
		}
		planID = plan.ID

		for i, day := range body.Days {
			d, err := queryOne[mealPlanDay](c, tx,
				`INSERT INTO meal_plan_days (meal_plan_id, day_number, title)
				 VALUES (@planID, @dayNumber, @title)
				 RETURNING *`,
				pgx.NamedArgs{"planID": planID, "dayNumber": i + 1, "title": day.Title})
			if err != nil {
				return err
			}
			for j, m := range day.Meals {
				if _, err := tx.Exec(c,
					`INSERT INTO meal_plan_meals (meal_plan_day_id, meal_order, meal_type, name, recipe_id, calories, protein_g, carbs_g, fat_g, notes)
					 VALUES (@dayID, @mealOrder, @mealType, @name, @recipeID, @calories, @proteinG, @carbsG, @fatG, @notes)`,
					pgx.NamedArgs{
						"dayID":     d.ID,
						"mealOrder": j + 1,
						"mealType":  m.MealType,
						"name":      strings.TrimSpace(m.Name),
						"recipeID":  m.RecipeID,
						"calories":  m.Calories,
						"proteinG":  m.ProteinG,
						"carbsG":    m.CarbsG,
						"fatG":      m.FatG,
						"notes":     m.Notes,
					}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		h.fail(c, err, "failed to create meal plan")
		return
	}

	detail, err := h.mealPlanDetail(c, planID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// mealPlanDetail assembles the full plan view for userID.
func (h *Handler) mealPlanDetail(ctx context.Context, planID, userID int) (mealPlanDetail, error) {
	plan, err := loadVisibleMealPlan(ctx, h.db, planID, userID)
	if err != nil {
		return mealPlanDetail{}, err
	}
	days, err := loadMealPlanDays(ctx, h.db, planID)
	if err != nil {
		return mealPlanDetail{}, err
	}

	rows, err := h.db.Query(ctx,
		`SELECT
			EXISTS (SELECT 1 FROM meal_plan_likes WHERE meal_plan_id = @planID AND user_id = @userID),
			EXISTS (SELECT 1 FROM meal_plan_bookmarks WHERE meal_plan_id = @planID AND user_id = @userID)`,
		pgx.NamedArgs{"planID": planID, "userID": userID})
	if err != nil {
		return mealPlanDetail{}, err
	}
	flags, err := pgx.CollectOneRow(rows, pgx.RowToStructByPos[struct {
		Liked      bool
		Bookmarked bool
	}])
	if err != nil {
		return mealPlanDetail{}, err
	}

	return mealPlanDetail{
		mealPlan:       plan,
		Days:           days,
		LikedByMe:      flags.Liked,
		BookmarkedByMe: flags.Bookmarked,
	}, nil
}

// listMealPlanPage runs a paginated listing with the given base conditions.
func (h *Handler) listMealPlanPage(c *gin.Context, from string, base []string, args pgx.NamedArgs) {
	page, limit := pageParams(c)
	filter, err := parseMealPlanFilter(c)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}
	where, orderBy := filter.clauses(base, args)

	rows, err := h.db.Query(c, "SELECT COUNT(*) FROM "+from+where, args)
	if err != nil {
		h.fail(c, err, "failed to count meal plans")
		return
	}
	total, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		h.fail(c, err, "failed to count meal plans")
		return
	}

	args["limit"] = limit
	args["offset"] = (page - 1) * limit
	plans, err := queryMany[mealPlan](c, h.db,
		"SELECT mp.* FROM "+from+where+orderBy+" LIMIT @limit OFFSET @offset", args)
	if err != nil {
		h.fail(c, err, "failed to fetch meal plans")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"meal_plans":  plans,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

// listMealPlans returns public plans.
// GET /api/meal-plans?page=&limit=&category=&difficulty=&duration=&search=&sort=newest|oldest|popular|most_applied
func (h *Handler) listMealPlans(c *gin.Context) {
	h.listMealPlanPage(c, "meal_plans mp", []string{"mp.is_public"}, pgx.NamedArgs{})
}

// listMyMealPlans returns every plan the caller authored, public or not.
// GET /api/meal-plans/mine.
func (h *Handler) listMyMealPlans(c *gin.Context) {
	h.listMealPlanPage(c, "meal_plans mp", []string{"mp.author_id = @userID"},
		pgx.NamedArgs{"userID": c.GetInt("user_id")})
}

// listBookmarkedMealPlans returns plans the caller bookmarked that are still visible.
// GET /api/meal-plans/bookmarked.
func (h *Handler) listBookmarkedMealPlans(c *gin.Context) {
	h.listMealPlanPage(c,
		"meal_plans mp JOIN meal_plan_bookmarks b ON b.meal_plan_id = mp.id",
		[]string{"b.user_id = @userID", "(mp.is_public OR mp.author_id = @userID)"},
		pgx.NamedArgs{"userID": c.GetInt("user_id")})
}

// getMealPlan returns a plan with its days, meals and the caller's like/bookmark state.
// GET /api/meal-plans/:id.
func (h *Handler) getMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.mealPlanDetail(c, planID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}

	c.JSON(http.StatusOK, detail)
}

// updateMealPlan edits plan metadata. Applied schedules are snapshots and
// are not affected.
// PATCH /api/meal-plans/:id.
func (h *Handler) updateMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body updateMealPlanRequest
	if !bindJSON(c, &body) {
		return
	}

	if _, err := loadOwnedMealPlan(c, h.db, planID, userID); err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}
	plan, err := queryOne[mealPlan](c, h.db,
		`UPDATE meal_plans SET
			title           = COALESCE(@title, title),
			description     = COALESCE(@description, description),
			category        = COALESCE(@category, category),
			difficulty      = COALESCE(@difficulty, difficulty),
			target_calories = COALESCE(@targetCalories, target_calories),
			image_url       = COALESCE(@imageURL, image_url),
			is_public       = COALESCE(@isPublic, is_public),
			updated_at      = now()
		 WHERE id = @planID
		 RETURNING *`,
		pgx.NamedArgs{
			"planID":         planID,
			"title":          body.Title,
			"description":    body.Description,
			"category":       body.Category,
			"difficulty":     body.Difficulty,
			"targetCalories": body.TargetCalories,
			"imageURL":       body.ImageURL,
			"isPublic":       body.IsPublic,
		})
	if err != nil {
		h.fail(c, err, "failed to update meal plan")
		return
	}

	c.JSON(http.StatusOK, plan)
}

// deleteMealPlan removes a plan the caller authored. Schedules created from it
// keep their items; their meal_plan_id becomes null.
// DELETE /api/meal-plans/:id.
func (h *Handler) deleteMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if _, err := loadOwnedMealPlan(c, h.db, planID, userID); err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}
	if _, err := h.db.Exec(c, "DELETE FROM meal_plans WHERE id = @planID",
		pgx.NamedArgs{"planID": planID}); err != nil {
		h.fail(c, err, "failed to delete meal plan")
		return
	}

	c.Status(http.StatusNoContent)
}
