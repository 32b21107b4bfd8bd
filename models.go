package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format("2006-01-02") + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Users ──────────────────────────────────────────────────────────── */

// user maps to the users table. Password is hidden from JSON responses.
type user struct {
	ID        int        `json:"id"         db:"id"`
	Username  string     `json:"username"   db:"username"`
	Email     string     `json:"email"      db:"email"`
	Password  string     `json:"-"          db:"password"`
	FullName  string     `json:"full_name"  db:"full_name"`
	AvatarURL *string    `json:"avatar_url" db:"avatar_url"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// userProfile maps to user_profiles. Body fields are nullable so a fresh
// account still loads; Nutrition is filled in once every field is present.
type userProfile struct {
	UserID        int        `json:"user_id"        db:"user_id"`
	Sex           *string    `json:"sex"            db:"sex"`
	DateOfBirth   *DateOnly  `json:"date_of_birth"  db:"date_of_birth"`
	HeightCM      *float64   `json:"height_cm"      db:"height_cm"`
	WeightKG      *float64   `json:"weight_kg"      db:"weight_kg"`
	ActivityLevel *string    `json:"activity_level" db:"activity_level"`
	Goal          string     `json:"goal"           db:"goal"`
	UpdatedAt     *time.Time `json:"updated_at"     db:"updated_at"`

	// Computed server-side; db:"-" tells RowToStructByName to skip it.
	Nutrition *nutritionSummary `json:"nutrition,omitempty" db:"-"`
}

// weightEntry maps to the weight_log table.
type weightEntry struct {
	ID        int        `json:"id"         db:"id"`
	UserID    int        `json:"user_id"    db:"user_id"`
	Date      DateOnly   `json:"date"       db:"date"`
	WeightKG  float64    `json:"weight_kg"  db:"weight_kg"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

/* ─── Sport events ───────────────────────────────────────────────────── */

type sportEvent struct {
	ID          int        `json:"id"           db:"id"`
	OwnerID     int        `json:"owner_id"     db:"owner_id"`
	Title       string     `json:"title"        db:"title"`
	Description string     `json:"description"  db:"description"`
	Category    string     `json:"category"     db:"category"`
	StartDate   time.Time  `json:"start_date"   db:"start_date"`
	EndDate     time.Time  `json:"end_date"     db:"end_date"`
	TargetValue *float64   `json:"target_value" db:"target_value"`
	TargetUnit  string     `json:"target_unit"  db:"target_unit"`
	IsPublic    bool       `json:"is_public"    db:"is_public"`
	CreatedAt   *time.Time `json:"created_at"   db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"   db:"updated_at"`
}

// sportEventDetail adds the participant count and the caller's membership.
type sportEventDetail struct {
	sportEvent
	ParticipantCount int  `json:"participant_count" db:"participant_count"`
	IsParticipant    bool `json:"is_participant"    db:"is_participant"`
}

type sportEventSession struct {
	ID            int        `json:"id"             db:"id"`
	EventID       int        `json:"event_id"       db:"event_id"`
	SessionNumber int        `json:"session_number" db:"session_number"`
	Title         string     `json:"title"          db:"title"`
	Description   string     `json:"description"    db:"description"`
	SessionDate   time.Time  `json:"session_date"   db:"session_date"`
	DurationHours float64    `json:"duration_hours" db:"duration_hours"`
	IsCompleted   bool       `json:"is_completed"   db:"is_completed"`
	CreatedAt     *time.Time `json:"created_at"     db:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"     db:"updated_at"`
}

// checkInEntry is one check-in/check-out pair inside check_in_history.
type checkInEntry struct {
	CheckInTime  time.Time  `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time,omitempty"`
}

// sessionAttendance maps to sport_event_attendance: one row per (session, user).
// CheckInTime/CheckOutTime mirror the latest history entry; TotalDuration is minutes.
type sessionAttendance struct {
	ID             int            `json:"id"               db:"id"`
	SessionID      int            `json:"session_id"       db:"session_id"`
	UserID         int            `json:"user_id"          db:"user_id"`
	CheckInHistory []checkInEntry `json:"check_in_history" db:"check_in_history"`
	CheckInTime    *time.Time     `json:"check_in_time"    db:"check_in_time"`
	CheckOutTime   *time.Time     `json:"check_out_time"   db:"check_out_time"`
	TotalDuration  int            `json:"total_duration"   db:"total_duration"`
	CreatedAt      *time.Time     `json:"created_at"       db:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at"       db:"updated_at"`
}

// attendanceWithUser is an attendance row joined to the attendee's public profile.
type attendanceWithUser struct {
	sessionAttendance
	Username  string  `json:"username"   db:"username"`
	FullName  string  `json:"full_name"  db:"full_name"`
	AvatarURL *string `json:"avatar_url" db:"avatar_url"`
}

// attendanceSummary is the response for GET .../attendance/summary.
type attendanceSummary struct {
	SessionID              int     `json:"session_id"`
	TotalAttendees         int     `json:"total_attendees"`
	AverageDuration        float64 `json:"average_duration"`
	FullAttendanceCount    int     `json:"full_attendance_count"`
	SessionDurationMinutes int     `json:"session_duration_minutes"`
	CurrentlyCheckedIn     int     `json:"currently_checked_in"`
}

// progressEntry maps to sport_event_progress. Entries are append-only per (event, user).
type progressEntry struct {
	ID         int        `json:"id"          db:"id"`
	EventID    int        `json:"event_id"    db:"event_id"`
	UserID     int        `json:"user_id"     db:"user_id"`
	Value      float64    `json:"value"       db:"value"`
	Unit       string     `json:"unit"        db:"unit"`
	Distance   *float64   `json:"distance"    db:"distance"`
	Time       *float64   `json:"time"        db:"time"`
	Calories   *float64   `json:"calories"    db:"calories"`
	ProofImage *string    `json:"proof_image" db:"proof_image"`
	Notes      *string    `json:"notes"       db:"notes"`
	Date       time.Time  `json:"date"        db:"date"`
	CreatedAt  *time.Time `json:"created_at"  db:"created_at"`
}

// leaderboardEntry is one user's aggregated progress. Rank is assigned after sorting.
type leaderboardEntry struct {
	UserID        int     `json:"user_id"        db:"user_id"`
	Username      string  `json:"username"       db:"username"`
	FullName      string  `json:"full_name"      db:"full_name"`
	AvatarURL     *string `json:"avatar_url"     db:"avatar_url"`
	TotalProgress float64 `json:"total_progress" db:"total_progress"`
	TotalDistance float64 `json:"total_distance" db:"total_distance"`
	TotalCalories float64 `json:"total_calories" db:"total_calories"`
	EntryCount    int     `json:"entry_count"    db:"entry_count"`
	Rank          int     `json:"rank"           db:"-"`
}

// participantRow is a participant joined to their user record.
type participantRow struct {
	UserID    int       `db:"user_id"`
	Username  string    `db:"username"`
	FullName  string    `db:"full_name"`
	AvatarURL *string   `db:"avatar_url"`
	JoinedAt  time.Time `db:"joined_at"`
}

// progressTotal is the per-user aggregate used to build participant rows.
type progressTotal struct {
	UserID        int     `db:"user_id"`
	TotalProgress float64 `db:"total_progress"`
	EntryCount    int     `db:"entry_count"`
}

type participantProgress struct {
	UserID             int       `json:"user_id"`
	Username           string    `json:"username"`
	FullName           string    `json:"full_name"`
	AvatarURL          *string   `json:"avatar_url"`
	JoinedAt           time.Time `json:"joined_at"`
	TotalProgress      float64   `json:"total_progress"`
	EntryCount         int       `json:"entry_count"`
	ProgressPercentage int       `json:"progress_percentage"`
}

type participantPage struct {
	Participants []participantProgress `json:"participants"`
	Total        int                   `json:"total"`
	Page         int                   `json:"page"`
	Limit        int                   `json:"limit"`
	TotalPages   int                   `json:"total_pages"`
}

/* ─── Meal plans ─────────────────────────────────────────────────────── */

type mealPlan struct {
	ID             int        `json:"id"              db:"id"`
	AuthorID       int        `json:"author_id"       db:"author_id"`
	Title          string     `json:"title"           db:"title"`
	Description    string     `json:"description"     db:"description"`
	Category       string     `json:"category"        db:"category"`
	Difficulty     string     `json:"difficulty"      db:"difficulty"`
	Duration       int        `json:"duration"        db:"duration"`
	TargetCalories *int       `json:"target_calories" db:"target_calories"`
	ImageURL       *string    `json:"image_url"       db:"image_url"`
	IsPublic       bool       `json:"is_public"       db:"is_public"`
	LikesCount     int        `json:"likes_count"     db:"likes_count"`
	BookmarksCount int        `json:"bookmarks_count" db:"bookmarks_count"`
	CommentsCount  int        `json:"comments_count"  db:"comments_count"`
	AppliedCount   int        `json:"applied_count"   db:"applied_count"`
	CreatedAt      *time.Time `json:"created_at"      db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"      db:"updated_at"`
}

type mealPlanDay struct {
	ID         int            `json:"id"           db:"id"`
	MealPlanID int            `json:"meal_plan_id" db:"meal_plan_id"`
	DayNumber  int            `json:"day_number"   db:"day_number"`
	Title      string         `json:"title"        db:"title"`
	Meals      []mealPlanMeal `json:"meals"        db:"-"`
}

type mealPlanMeal struct {
	ID            int      `json:"id"               db:"id"`
	MealPlanDayID int      `json:"meal_plan_day_id" db:"meal_plan_day_id"`
	MealOrder     int      `json:"meal_order"       db:"meal_order"`
	MealType      string   `json:"meal_type"        db:"meal_type"`
	Name          string   `json:"name"             db:"name"`
	RecipeID      *int     `json:"recipe_id"        db:"recipe_id"`
	Calories      int      `json:"calories"         db:"calories"`
	ProteinG      *float64 `json:"protein_g"        db:"protein_g"`
	CarbsG        *float64 `json:"carbs_g"          db:"carbs_g"`
	FatG          *float64 `json:"fat_g"            db:"fat_g"`
	Notes         string   `json:"notes"            db:"notes"`
}

// mealPlanDetail is the response for GET /api/meal-plans/:id.
type mealPlanDetail struct {
	mealPlan
	Days           []mealPlanDay `json:"days"`
	LikedByMe      bool          `json:"liked_by_me"`
	BookmarkedByMe bool          `json:"bookmarked_by_me"`
}

type mealPlanComment struct {
	ID         int        `json:"id"           db:"id"`
	MealPlanID int        `json:"meal_plan_id" db:"meal_plan_id"`
	UserID     int        `json:"user_id"      db:"user_id"`
	ParentID   *int       `json:"parent_id"    db:"parent_id"`
	Content    string     `json:"content"      db:"content"`
	ReplyCount int        `json:"reply_count"  db:"reply_count"`
	CreatedAt  *time.Time `json:"created_at"   db:"created_at"`
	FullName   string     `json:"full_name"    db:"full_name"`
	AvatarURL  *string    `json:"avatar_url"   db:"avatar_url"`
}

type mealPlanInvite struct {
	ID           int        `json:"id"            db:"id"`
	MealPlanID   int        `json:"meal_plan_id"  db:"meal_plan_id"`
	InviterID    int        `json:"inviter_id"    db:"inviter_id"`
	InviteeEmail string     `json:"invitee_email" db:"invitee_email"`
	Token        string     `json:"-"             db:"token"`
	Status       string     `json:"status"        db:"status"`
	CreatedAt    *time.Time `json:"created_at"    db:"created_at"`
}

/* ─── Meal schedules ─────────────────────────────────────────────────── */

// userMealSchedule maps to user_meal_schedules. Counters are always recomputed
// from the schedule's items, never incremented.
type userMealSchedule struct {
	ID                  int        `json:"id"                    db:"id"`
	UserID              int        `json:"user_id"               db:"user_id"`
	MealPlanID          *int       `json:"meal_plan_id"          db:"meal_plan_id"`
	Title               string     `json:"title"                 db:"title"`
	StartDate           DateOnly   `json:"start_date"            db:"start_date"`
	EndDate             DateOnly   `json:"end_date"              db:"end_date"`
	Status              string     `json:"status"                db:"status"`
	Progress            int        `json:"progress"              db:"progress"`
	CurrentDay          int        `json:"current_day"           db:"current_day"`
	TotalCompletedMeals int        `json:"total_completed_meals" db:"total_completed_meals"`
	TotalMeals          int        `json:"total_meals"           db:"total_meals"`
	CreatedAt           *time.Time `json:"created_at"            db:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at"            db:"updated_at"`
}

// userMealItem maps to user_meal_items: one planned meal copied from the template.
type userMealItem struct {
	ID             int        `json:"id"                db:"id"`
	ScheduleID     int        `json:"schedule_id"       db:"schedule_id"`
	MealPlanMealID *int       `json:"meal_plan_meal_id" db:"meal_plan_meal_id"`
	RecipeID       *int       `json:"recipe_id"         db:"recipe_id"`
	DayNumber      int        `json:"day_number"        db:"day_number"`
	ScheduledDate  DateOnly   `json:"scheduled_date"    db:"scheduled_date"`
	MealType       string     `json:"meal_type"         db:"meal_type"`
	MealOrder      int        `json:"meal_order"        db:"meal_order"`
	Name           string     `json:"name"              db:"name"`
	Calories       int        `json:"calories"          db:"calories"`
	ProteinG       *float64   `json:"protein_g"         db:"protein_g"`
	CarbsG         *float64   `json:"carbs_g"           db:"carbs_g"`
	FatG           *float64   `json:"fat_g"             db:"fat_g"`
	Status         string     `json:"status"            db:"status"`
	CompletedAt    *time.Time `json:"completed_at"      db:"completed_at"`
	SubstituteName *string    `json:"substitute_name"   db:"substitute_name"`
	Rating         *int       `json:"rating"            db:"rating"`
	Review         *string    `json:"review"            db:"review"`
	Mood           *string    `json:"mood"              db:"mood"`
	Images         []string   `json:"images"            db:"images"`
	CreatedAt      *time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"        db:"updated_at"`
}

// itemProgressRow is the slice of an item needed to recompute schedule progress.
type itemProgressRow struct {
	DayNumber int    `db:"day_number"`
	Status    string `db:"status"`
}

// scheduleDetail is the response for GET /api/meal-schedules/:id.
type scheduleDetail struct {
	userMealSchedule
	Items []userMealItem `json:"items"`
}

// scheduleDaySummary is the response for GET /api/meal-schedules/:id/day.
type scheduleDaySummary struct {
	Date             string         `json:"date"`
	DayNumber        int            `json:"day_number"`
	PlannedCalories  int            `json:"planned_calories"`
	ConsumedCalories int            `json:"consumed_calories"`
	ProteinG         float64        `json:"protein_g"`
	CarbsG           float64        `json:"carbs_g"`
	FatG             float64        `json:"fat_g"`
	CompletedMeals   int            `json:"completed_meals"`
	TotalMeals       int            `json:"total_meals"`
	TargetCalories   *int           `json:"target_calories"`
	Items            []userMealItem `json:"items"`
}

// scheduleDayRow is the shape of each row returned by the per-day GROUP BY query.
type scheduleDayRow struct {
	DayNumber        int      `json:"day_number"        db:"day_number"`
	ScheduledDate    DateOnly `json:"scheduled_date"    db:"scheduled_date"`
	TotalMeals       int      `json:"total_meals"       db:"total_meals"`
	CompletedMeals   int      `json:"completed_meals"   db:"completed_meals"`
	SkippedMeals     int      `json:"skipped_meals"     db:"skipped_meals"`
	PlannedCalories  int      `json:"planned_calories"  db:"planned_calories"`
	ConsumedCalories int      `json:"consumed_calories" db:"consumed_calories"`
}

/* ─── Request bodies ─────────────────────────────────────────────────── */

type registerRequest struct {
	Username string `json:"username"  binding:"required,min=3,max=50"`
	Email    string `json:"email"     binding:"required,email"`
	Password string `json:"password"  binding:"required,min=8"`
	FullName string `json:"full_name" binding:"max=100"`
}

// patchProfileRequest is the request body for PATCH /api/profile. Only non-nil
// fields get written.
type patchProfileRequest struct {
	Sex           *string  `json:"sex"            binding:"omitempty,oneof=male female"`
	DateOfBirth   *string  `json:"date_of_birth"  binding:"omitempty,datetime=2006-01-02"`
	HeightCM      *float64 `json:"height_cm"      binding:"omitempty,gt=0,lte=300"`
	WeightKG      *float64 `json:"weight_kg"      binding:"omitempty,gt=0,lte=700"`
	ActivityLevel *string  `json:"activity_level"`
	Goal          *string  `json:"goal"           binding:"omitempty,oneof=lose maintain gain"`
}

type calculateNutritionRequest struct {
	Sex           string  `json:"sex"            binding:"required,oneof=male female"`
	Age           int     `json:"age"            binding:"required,gt=0,lte=130"`
	WeightKG      float64 `json:"weight_kg"      binding:"required,gt=0,lte=700"`
	HeightCM      float64 `json:"height_cm"      binding:"required,gt=0,lte=300"`
	ActivityLevel string  `json:"activity_level" binding:"required"`
	Goal          string  `json:"goal"           binding:"omitempty,oneof=lose maintain gain"`
}

type createSportEventRequest struct {
	Title       string    `json:"title"        binding:"required,min=3,max=200"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	StartDate   time.Time `json:"start_date"   binding:"required"`
	EndDate     time.Time `json:"end_date"     binding:"required"`
	TargetValue *float64  `json:"target_value" binding:"omitempty,gt=0"`
	TargetUnit  string    `json:"target_unit"`
	IsPublic    *bool     `json:"is_public"`
}

type updateSportEventRequest struct {
	Title       *string    `json:"title"        binding:"omitempty,min=3,max=200"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	TargetValue *float64   `json:"target_value" binding:"omitempty,gt=0"`
	TargetUnit  *string    `json:"target_unit"`
	IsPublic    *bool      `json:"is_public"`
}

type createSessionRequest struct {
	SessionNumber *int      `json:"session_number" binding:"omitempty,gt=0"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	SessionDate   time.Time `json:"session_date"   binding:"required"`
	DurationHours float64   `json:"duration_hours" binding:"required,gt=0,lte=24"`
}

type updateSessionRequest struct {
	SessionNumber *int       `json:"session_number" binding:"omitempty,gt=0"`
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	SessionDate   *time.Time `json:"session_date"`
	DurationHours *float64   `json:"duration_hours" binding:"omitempty,gt=0,lte=24"`
	IsCompleted   *bool      `json:"is_completed"`
}

type addProgressRequest struct {
	Value      *float64   `json:"value"       binding:"required,gte=0"`
	Unit       string     `json:"unit"        binding:"required"`
	Distance   *float64   `json:"distance"    binding:"omitempty,gte=0"`
	Time       *float64   `json:"time"        binding:"omitempty,gte=0"`
	Calories   *float64   `json:"calories"    binding:"omitempty,gte=0"`
	ProofImage *string    `json:"proof_image"`
	Notes      *string    `json:"notes"`
	Date       *time.Time `json:"date"`
}

type updateProgressRequest struct {
	Value      *float64   `json:"value"       binding:"omitempty,gte=0"`
	Unit       *string    `json:"unit"`
	Distance   *float64   `json:"distance"    binding:"omitempty,gte=0"`
	Time       *float64   `json:"time"        binding:"omitempty,gte=0"`
	Calories   *float64   `json:"calories"    binding:"omitempty,gte=0"`
	ProofImage *string    `json:"proof_image"`
	Notes      *string    `json:"notes"`
	Date       *time.Time `json:"date"`
}

type mealPlanMealInput struct {
	MealType string   `json:"meal_type" binding:"required,oneof=breakfast lunch dinner snack"`
	Name     string   `json:"name"      binding:"required,max=200"`
	RecipeID *int     `json:"recipe_id"`
	Calories int      `json:"calories"  binding:"gte=0"`
	ProteinG *float64 `json:"protein_g" binding:"omitempty,gte=0"`
	CarbsG   *float64 `json:"carbs_g"   binding:"omitempty,gte=0"`
	FatG     *float64 `json:"fat_g"     binding:"omitempty,gte=0"`
	Notes    string   `json:"notes"`
}

type mealPlanDayInput struct {
	Title string              `json:"title"`
	Meals []mealPlanMealInput `json:"meals" binding:"required,min=1,dive"`
}

type createMealPlanRequest struct {
	Title          string             `json:"title"           binding:"required,min=3,max=200"`
	Description    string             `json:"description"`
	Category       string             `json:"category"`
	Difficulty     string             `json:"difficulty"      binding:"omitempty,oneof=easy medium hard"`
	TargetCalories *int               `json:"target_calories" binding:"omitempty,gt=0"`
	ImageURL       *string            `json:"image_url"`
	IsPublic       bool               `json:"is_public"`
	Days           []mealPlanDayInput `json:"days"            binding:"required,min=1,max=90,dive"`
}

type updateMealPlanRequest struct {
	Title          *string `json:"title"           binding:"omitempty,min=3,max=200"`
	Description    *string `json:"description"`
	Category       *string `json:"category"`
	Difficulty     *string `json:"difficulty"      binding:"omitempty,oneof=easy medium hard"`
	TargetCalories *int    `json:"target_calories" binding:"omitempty,gt=0"`
	ImageURL       *string `json:"image_url"`
	IsPublic       *bool   `json:"is_public"`
}

type applyMealPlanRequest struct {
	MealPlanID int    `json:"meal_plan_id" binding:"required,gt=0"`
	StartDate  string `json:"start_date"   binding:"omitempty,datetime=2006-01-02"`
	Title      string `json:"title"        binding:"max=200"`
}

type createCommentRequest struct {
	Content  string `json:"content"   binding:"required,max=2000"`
	ParentID *int   `json:"parent_id" binding:"omitempty,gt=0"`
}

type inviteRequest struct {
	Emails []string `json:"emails" binding:"required,min=1,max=20,dive,email"`
}

// updateMealItemRequest is the request body for PATCH /api/meal-schedules/:id/items/:itemId.
type updateMealItemRequest struct {
	Status         *string  `json:"status"          binding:"omitempty,oneof=pending completed skipped substituted"`
	SubstituteName *string  `json:"substitute_name" binding:"omitempty,max=200"`
	Rating         *int     `json:"rating"          binding:"omitempty,gte=1,lte=5"`
	Review         *string  `json:"review"          binding:"omitempty,max=2000"`
	Mood           *string  `json:"mood"            binding:"omitempty,max=50"`
	Images         []string `json:"images"          binding:"omitempty,max=10"`
}

type updateScheduleStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active paused cancelled"`
}
