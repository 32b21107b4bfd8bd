package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// getProfile returns the body profile for the authenticated user with the
// nutrition summary populated when every body field is present.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := queryOne[userProfile](c, h.db,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
	if errors.Is(err, pgx.ErrNoRows) {
		// Accounts created before profiles existed have no row yet.
		c.JSON(http.StatusOK, userProfile{UserID: userID, Goal: "maintain"})
		return
	}
	if err != nil {
		h.fail(c, err, "failed to fetch profile")
		return
	}

	populateNutrition(&p, h.clock())
	c.JSON(http.StatusOK, p)
}

// patchProfile updates only the provided profile fields and returns the
// profile with a freshly computed nutrition summary.
// PATCH /api/profile. Pointer fields distinguish "not provided" from zero.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if !bindJSON(c, &body) {
		return
	}

	// An unknown level would silently disable the calculator for this user.
	if body.ActivityLevel != nil {
		if _, ok := activityMultipliers[*body.ActivityLevel]; !ok {
			apiError(c, http.StatusBadRequest, errUnknownActivity.Error())
			return
		}
	}

	// Build SET clause dynamically; only update fields the client actually sent.
	setClauses := []string{}
	args := pgx.NamedArgs{"userID": userID}

	if body.Sex != nil {
		setClauses = append(setClauses, "sex = @sex")
		args["sex"] = *body.Sex
	}
	if body.DateOfBirth != nil {
		setClauses = append(setClauses, "date_of_birth = @dateOfBirth")
		args["dateOfBirth"] = *body.DateOfBirth
	}
	if body.HeightCM != nil {
		setClauses = append(setClauses, "height_cm = @heightCM")
		args["heightCM"] = *body.HeightCM
	}
	if body.WeightKG != nil {
		setClauses = append(setClauses, "weight_kg = @weightKG")
		args["weightKG"] = *body.WeightKG
	}
	if body.ActivityLevel != nil {
		setClauses = append(setClauses, "activity_level = @activityLevel")
		args["activityLevel"] = *body.ActivityLevel
	}
	if body.Goal != nil {
		setClauses = append(setClauses, "goal = @goal")
		args["goal"] = *body.Goal
	}

	if len(setClauses) == 0 {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}

	// Upsert so that users without a profile row can still fill theirs in.
	cols := []string{"user_id"}
	vals := []string{"@userID"}
	for _, clause := range setClauses {
		col, val, _ := strings.Cut(clause, " = ")
		cols = append(cols, col)
		vals = append(vals, val)
	}
	query := "INSERT INTO user_profiles (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")" +
		" ON CONFLICT (user_id) DO UPDATE SET " + strings.Join(setClauses, ", ") + ", updated_at = now()" +
		" RETURNING *"

	p, err := queryOne[userProfile](c, h.db, query, args)
	if err != nil {
		h.fail(c, err, "failed to update profile")
		return
	}

	populateNutrition(&p, h.clock())
	c.JSON(http.StatusOK, p)
}

// calculateNutrition runs the calculator on the posted body metrics without
// touching the stored profile.
// POST /api/nutrition/calculate.
func (h *Handler) calculateNutrition(c *gin.Context) {
	var body calculateNutritionRequest
	if !bindJSON(c, &body) {
		return
	}

	summary, err := calculateNutritionSummary(bodyMetrics{
		Sex:           body.Sex,
		Age:           body.Age,
		WeightKG:      body.WeightKG,
		HeightCM:      body.HeightCM,
		ActivityLevel: body.ActivityLevel,
		Goal:          body.Goal,
	})
	if err != nil {
		h.fail(c, err, "failed to calculate nutrition")
		return
	}

	c.JSON(http.StatusOK, summary)
}
