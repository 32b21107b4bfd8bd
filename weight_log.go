package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

const maxWeightKG = 700

// syncProfileWeight copies the user's most recent logged weight onto their
// profile so the calculator always uses the latest value.
func syncProfileWeight(ctx context.Context, tx pgx.Tx, userID int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO user_profiles (user_id, weight_kg)
		 SELECT @userID, weight_kg FROM weight_log
		 WHERE user_id = @userID ORDER BY date DESC LIMIT 1
		 ON CONFLICT (user_id) DO UPDATE SET weight_kg = EXCLUDED.weight_kg, updated_at = now()`,
		pgx.NamedArgs{"userID": userID})
	return err
}

// getWeightLog returns weight entries for the authenticated user within [start, end].
// GET /api/weight-log?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
func (h *Handler) getWeightLog(c *gin.Context) {
	userID := c.GetInt("user_id")
	start := c.Query("start")
	end := c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	if _, err := time.Parse("2006-01-02", start); err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	if _, err := time.Parse("2006-01-02", end); err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	entries, err := queryMany[weightEntry](c, h.db,
		`SELECT * FROM weight_log
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
	if err != nil {
		h.fail(c, err, "failed to fetch weight log")
		return
	}

	c.JSON(http.StatusOK, entries)
}

// upsertWeightEntry creates or updates the weight entry for the given date.
// POST /api/weight-log. Body: { "date": "YYYY-MM-DD", "weight_kg": 72.5 }.
// The UNIQUE(user_id, date) constraint means posting the same date updates in place.
func (h *Handler) upsertWeightEntry(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		Date     string  `json:"date"      binding:"required,datetime=2006-01-02"`
		WeightKG float64 `json:"weight_kg" binding:"required,gt=0,lte=700"`
	}
	if !bindJSON(c, &body) {
		return
	}

	var entry weightEntry
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		var err error
		entry, err = queryOne[weightEntry](c, tx,
			`INSERT INTO weight_log (user_id, date, weight_kg)
			 VALUES (@userID, @date, @weightKG)
			 ON CONFLICT (user_id, date) DO UPDATE SET weight_kg = EXCLUDED.weight_kg
			 RETURNING *`,
			pgx.NamedArgs{"userID": userID, "date": body.Date, "weightKG": body.WeightKG})
		if err != nil {
			return err
		}
		return syncProfileWeight(c, tx, userID)
	})
	if err != nil {
		h.fail(c, err, "failed to upsert weight entry")
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// updateWeightEntry partially updates an existing weight entry.
// PUT /api/weight-log/:id. Body: { "date"?, "weight_kg"? }.
// Uses COALESCE so omitted fields keep their current values.
func (h *Handler) updateWeightEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Date     *string  `json:"date"`
		WeightKG *float64 `json:"weight_kg"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if body.Date != nil {
		if _, err := time.Parse("2006-01-02", *body.Date); err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
	}
	if body.WeightKG != nil && (*body.WeightKG <= 0 || *body.WeightKG > maxWeightKG) {
		apiError(c, http.StatusBadRequest, "weight_kg must be between 0 and 700")
		return
	}

	var entry weightEntry
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		var err error
		entry, err = queryOne[weightEntry](c, tx,
			`UPDATE weight_log SET
				date      = COALESCE(@date::date, date),
				weight_kg = COALESCE(@weightKG, weight_kg)
			 WHERE id = @id AND user_id = @userID
			 RETURNING *`,
			pgx.NamedArgs{"id": id, "userID": userID, "date": body.Date, "weightKG": body.WeightKG})
		if err != nil {
			return err
		}
		return syncProfileWeight(c, tx, userID)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		apiError(c, http.StatusNotFound, "weight entry not found")
		return
	}
	if err != nil {
		h.fail(c, err, "failed to update weight entry")
		return
	}

	c.JSON(http.StatusOK, entry)
}

// deleteWeightEntry removes a weight log entry by ID.
// DELETE /api/weight-log/:id. Returns 204 on success, 404 if not found.
// Ownership is enforced by requiring both id and user_id to match.
func (h *Handler) deleteWeightEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		result, err := tx.Exec(c,
			"DELETE FROM weight_log WHERE id = @id AND user_id = @userID",
			pgx.NamedArgs{"id": id, "userID": userID})
		if err != nil {
			return err
		}
		if result.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return syncProfileWeight(c, tx, userID)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		apiError(c, http.StatusNotFound, "weight entry not found")
		return
	}
	if err != nil {
		h.fail(c, err, "failed to delete weight entry")
		return
	}

	c.Status(http.StatusNoContent)
}
