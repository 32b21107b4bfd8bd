package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

/* ─── Likes & bookmarks ──────────────────────────────────────────────── */

// reaction describes one toggle-able relation between users and plans.
type reaction struct {
	table   string // join table
	counter string // counter column on meal_plans
	key     string // response field for the new state
}

var (
	likeReaction     = reaction{table: "meal_plan_likes", counter: "likes_count", key: "liked"}
	bookmarkReaction = reaction{table: "meal_plan_bookmarks", counter: "bookmarks_count", key: "bookmarked"}
)

// setReaction adds or removes the caller's reaction. Repeating the same
// request is a no-op and leaves the counter unchanged.
func (h *Handler) setReaction(c *gin.Context, r reaction, on bool) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var count int
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		if _, err := loadVisibleMealPlan(c, tx, planID, userID); err != nil {
			return err
		}

		stmt := "INSERT INTO " + r.table + " (meal_plan_id, user_id) VALUES (@planID, @userID) ON CONFLICT DO NOTHING"
		delta := 1
		if !on {
			stmt = "DELETE FROM " + r.table + " WHERE meal_plan_id = @planID AND user_id = @userID"
			delta = -1
		}
		tag, err := tx.Exec(c, stmt, pgx.NamedArgs{"planID": planID, "userID": userID})
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			delta = 0
		}

		rows, err := tx.Query(c,
			"UPDATE meal_plans SET "+r.counter+" = GREATEST("+r.counter+" + @delta, 0) WHERE id = @planID RETURNING "+r.counter,
			pgx.NamedArgs{"planID": planID, "delta": delta})
		if err != nil {
			return err
		}
		count, err = pgx.CollectOneRow(rows, pgx.RowTo[int])
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to update "+r.counter)
		return
	}

	c.JSON(http.StatusOK, gin.H{r.key: on, r.counter: count})
}

// POST /api/meal-plans/:id/like
func (h *Handler) likeMealPlan(c *gin.Context) { h.setReaction(c, likeReaction, true) }

// DELETE /api/meal-plans/:id/like
func (h *Handler) unlikeMealPlan(c *gin.Context) { h.setReaction(c, likeReaction, false) }

// POST /api/meal-plans/:id/bookmark
func (h *Handler) bookmarkMealPlan(c *gin.Context) { h.setReaction(c, bookmarkReaction, true) }

// DELETE /api/meal-plans/:id/bookmark
func (h *Handler) unbookmarkMealPlan(c *gin.Context) { h.setReaction(c, bookmarkReaction, false) }

/* ─── Comments ───────────────────────────────────────────────────────── */

const commentSelect = `
	SELECT cm.id, cm.meal_plan_id, cm.user_id, cm.parent_id, cm.content, cm.reply_count, cm.created_at,
	       u.full_name, u.avatar_url
	FROM meal_plan_comments cm
	JOIN users u ON u.id = cm.user_id`

// loadComment fetches one comment of planID. With lock the comment row is
// held FOR UPDATE until the transaction ends so reply_count cannot move.
func loadComment(ctx context.Context, db dbtx, planID, commentID int, lock bool) (mealPlanComment, error) {
	sql := commentSelect + " WHERE cm.id = @commentID AND cm.meal_plan_id = @planID"
	if lock {
		sql += " FOR UPDATE OF cm"
	}
	cm, err := queryOne[mealPlanComment](ctx, db, sql,
		pgx.NamedArgs{"planID": planID, "commentID": commentID})
	if errors.Is(err, pgx.ErrNoRows) {
		return cm, errCommentNotFound
	}
	return cm, err
}

// commentCounterDeltas returns how much the parent's reply_count and the
// plan's comments_count drop when cm is deleted. Replies go with their parent.
func commentCounterDeltas(cm mealPlanComment) (parentDelta, planDelta int) {
	if cm.ParentID != nil {
		return 1, 1
	}
	return 0, 1 + cm.ReplyCount
}

// listMealPlanComments returns top-level comments, or the replies to one
// comment when ?parent_id= is set. Oldest first.
// GET /api/meal-plans/:id/comments?page=&limit=&parent_id=
func (h *Handler) listMealPlanComments(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, limit := pageParams(c)

	args := pgx.NamedArgs{"planID": planID, "limit": limit, "offset": (page - 1) * limit}
	parentCond := "cm.parent_id IS NULL"
	if p := c.Query("parent_id"); p != "" {
		parentID, err := strconv.Atoi(p)
		if err != nil || parentID <= 0 {
			apiError(c, http.StatusBadRequest, "invalid parent_id")
			return
		}
		parentCond = "cm.parent_id = @parentID"
		args["parentID"] = parentID
	}

	if _, err := loadVisibleMealPlan(c, h.db, planID, userID); err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}

	rows, err := h.db.Query(c,
		"SELECT COUNT(*) FROM meal_plan_comments cm WHERE cm.meal_plan_id = @planID AND "+parentCond, args)
	if err != nil {
		h.fail(c, err, "failed to count comments")
		return
	}
	total, err := pgx.CollectOneRow(rows, pgx.RowTo[int])
	if err != nil {
		h.fail(c, err, "failed to count comments")
		return
	}

	comments, err := queryMany[mealPlanComment](c, h.db,
		commentSelect+" WHERE cm.meal_plan_id = @planID AND "+parentCond+
			" ORDER BY cm.created_at, cm.id LIMIT @limit OFFSET @offset", args)
	if err != nil {
		h.fail(c, err, "failed to fetch comments")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"comments":    comments,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}

// createMealPlanComment adds a comment or a reply. Replies to a reply attach
// to its top-level comment, so threads are one level deep.
// POST /api/meal-plans/:id/comments
func (h *Handler) createMealPlanComment(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body createCommentRequest
	if !bindJSON(c, &body) {
		return
	}
	content := strings.TrimSpace(body.Content)
	if content == "" {
		apiError(c, http.StatusBadRequest, "content must not be blank")
		return
	}

	var commentID int
	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		if _, err := loadVisibleMealPlan(c, tx, planID, userID); err != nil {
			return err
		}

		parentID := body.ParentID
		if parentID != nil {
			parent, err := loadComment(c, tx, planID, *parentID, true)
			if err != nil {
				return err
			}
			if parent.ParentID != nil {
				parentID = parent.ParentID
			}
			if _, err := tx.Exec(c,
				"UPDATE meal_plan_comments SET reply_count = reply_count + 1 WHERE id = @parentID",
				pgx.NamedArgs{"parentID": *parentID}); err != nil {
				return err
			}
		}

		rows, err := tx.Query(c,
			`INSERT INTO meal_plan_comments (meal_plan_id, user_id, parent_id, content)
			 VALUES (@planID, @userID, @parentID, @content)
			 RETURNING id`,
			pgx.NamedArgs{"planID": planID, "userID": userID, "parentID": parentID, "content": content})
		if err != nil {
			return err
		}
		if commentID, err = pgx.CollectOneRow(rows, pgx.RowTo[int]); err != nil {
			return err
		}

		_, err = tx.Exec(c,
			"UPDATE meal_plans SET comments_count = comments_count + 1 WHERE id = @planID",
			pgx.NamedArgs{"planID": planID})
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to create comment")
		return
	}

	comment, err := loadComment(c, h.db, planID, commentID, false)
	if err != nil {
		h.fail(c, err, "failed to fetch comment")
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// deleteMealPlanComment removes a comment (and its replies). Allowed for the
// comment's author and the plan's author.
// DELETE /api/meal-plans/:id/comments/:commentId
func (h *Handler) deleteMealPlanComment(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}
	commentID, ok := paramID(c, "commentId")
	if !ok {
		return
	}

	err := pgx.BeginFunc(c, h.db, func(tx pgx.Tx) error {
		plan, err := loadVisibleMealPlan(c, tx, planID, userID)
		if err != nil {
			return err
		}
		cm, err := loadComment(c, tx, planID, commentID, true)
		if err != nil {
			return err
		}
		if cm.UserID != userID && plan.AuthorID != userID {
			return errForbidden
		}

		if _, err := tx.Exec(c, "DELETE FROM meal_plan_comments WHERE id = @commentID",
			pgx.NamedArgs{"commentID": commentID}); err != nil {
			return err
		}

		parentDelta, planDelta := commentCounterDeltas(cm)
		if parentDelta > 0 {
			if _, err := tx.Exec(c,
				"UPDATE meal_plan_comments SET reply_count = GREATEST(reply_count - @delta, 0) WHERE id = @parentID",
				pgx.NamedArgs{"parentID": *cm.ParentID, "delta": parentDelta}); err != nil {
				return err
			}
		}
		_, err = tx.Exec(c,
			"UPDATE meal_plans SET comments_count = GREATEST(comments_count - @delta, 0) WHERE id = @planID",
			pgx.NamedArgs{"planID": planID, "delta": planDelta})
		return err
	})
	if err != nil {
		h.fail(c, err, "failed to delete comment")
		return
	}

	c.Status(http.StatusNoContent)
}

/* ─── Invites ────────────────────────────────────────────────────────── */

// mealPlanInviteLink is the frontend URL an invitee opens.
func mealPlanInviteLink(appURL string, planID int, token string) string {
	return fmt.Sprintf("%s/meal-plans/%d?invite=%s", strings.TrimRight(appURL, "/"), planID, token)
}

// inviteToMealPlan stores one invite per e-mail and mails the link. Private
// plans can only be shared by their author. Delivery failures are logged and
// leave the invite stored.
// POST /api/meal-plans/:id/invite
func (h *Handler) inviteToMealPlan(c *gin.Context) {
	userID := c.GetInt("user_id")
	planID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var body inviteRequest
	if !bindJSON(c, &body) {
		return
	}

	plan, err := loadVisibleMealPlan(c, h.db, planID, userID)
	if err != nil {
		h.fail(c, err, "failed to fetch meal plan")
		return
	}
	if !plan.IsPublic && plan.AuthorID != userID {
		h.fail(c, errForbidden, "")
		return
	}

	inviter, err := queryOne[user](c, h.db, "SELECT * FROM users WHERE id = @userID",
		pgx.NamedArgs{"userID": userID})
	if err != nil {
		h.fail(c, err, "failed to fetch user")
		return
	}
	inviterName := inviter.FullName
	if inviterName == "" {
		inviterName = inviter.Username
	}

	invites := make([]mealPlanInvite, 0, len(body.Emails))
	for _, email := range body.Emails {
		email = strings.ToLower(strings.TrimSpace(email))
		inv, err := queryOne[mealPlanInvite](c, h.db,
			`INSERT INTO meal_plan_invites (meal_plan_id, inviter_id, invitee_email, token)
			 VALUES (@planID, @inviterID, @email, @token)
			 RETURNING *`,
			pgx.NamedArgs{"planID": planID, "inviterID": userID, "email": email, "token": uuid.NewString()})
		if err != nil {
			h.fail(c, err, "failed to create invite")
			return
		}

		link := mealPlanInviteLink(h.appURL, planID, inv.Token)
		if err := h.mailer.sendMealPlanInvite(email, inviterName, plan.Title, link); err != nil {
			h.log.Warn("invite email failed",
				zap.Error(err),
				zap.Int("meal_plan_id", planID),
				zap.Int("invite_id", inv.ID),
			)
		}
		invites = append(invites, inv)
	}

	c.JSON(http.StatusCreated, gin.H{"invites": invites})
}
