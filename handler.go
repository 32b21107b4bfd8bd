package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Handler holds shared dependencies (db pool, config, side services) for all route handlers.
type Handler struct {
	db            *pgxpool.Pool
	log           *zap.Logger
	jwtSecret     []byte
	tokenTTL      time.Duration
	appURL        string
	openAIBaseURL string // Base URL for OpenAI API (overridable for tests)
	openAIKey     string
	cache         leaderboardCache
	metrics       metricsPublisher
	mailer        inviteMailer
	hub           *attendanceHub
	now           func() time.Time
}

// newHandler wires a Handler with no-op side services. Optional services
// (Redis cache, CloudWatch, SMTP) are swapped in by run when configured.
func newHandler(pool *pgxpool.Pool, cfg appConfig, log *zap.Logger) *Handler {
	return &Handler{
		db:            pool,
		log:           log,
		jwtSecret:     []byte(cfg.JWTSecret),
		tokenTTL:      cfg.TokenTTL,
		appURL:        cfg.AppURL,
		openAIBaseURL: cfg.OpenAIBaseURL,
		openAIKey:     cfg.OpenAIKey,
		cache:         noopLeaderboardCache{},
		metrics:       noopMetrics{},
		mailer:        noopMailer{},
		hub:           newAttendanceHub(log),
		now:           time.Now,
	}
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so the helpers below
// work inside and outside transactions.
type dbtx interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Returns pgx.ErrNoRows unwrapped so callers can map it to a 404.
func queryOne[T any](ctx context.Context, db dbtx, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := db.Query(ctx, sql, args)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("query: %w", err)
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
// The result is never nil so it always serializes as a JSON array.
func queryMany[T any](ctx context.Context, db dbtx, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := db.Query(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if results == nil {
		results = []T{}
	}
	return results, nil
}

/* ─── Request helpers ─────────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// paramID parses a positive integer path parameter, writing a 400 on failure.
func paramID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// maxPage keeps (page-1)*limit inside int for any allowed limit.
	maxPage = math.MaxInt / maxPageLimit
)

// pageParams reads ?page=&limit= with defaults of 1 and 10. Out-of-range
// values fall back to the defaults; limit is capped at 100 and page at maxPage.
func pageParams(c *gin.Context) (page, limit int) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil || page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	limit, err = strconv.Atoi(c.Query("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

// totalPages is ceil(total/limit), never negative.
func totalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

func (h *Handler) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// newDBPool creates a connection pool. We use a pool (not a single conn) because
// managed Postgres hosts close idle connections after a few minutes.
func newDBPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Simple protocol avoids "cached plan must not change result type" errors
	// from server-side prepared statement caches after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// requestLogger logs one structured line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("user_id", c.GetInt("user_id")),
		)
	}
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Public routes
	router.POST("/api/register", h.register)
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())

	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	api.POST("/nutrition/calculate", h.calculateNutrition)
	api.GET("/weight-log", h.getWeightLog)
	api.POST("/weight-log", h.upsertWeightEntry)
	api.PUT("/weight-log/:id", h.updateWeightEntry)
	api.DELETE("/weight-log/:id", h.deleteWeightEntry)

	events := api.Group("/sport-events")
	events.POST("", h.createSportEvent)
	events.GET("", h.listSportEvents)
	events.GET("/:eventId", h.getSportEvent)
	events.PATCH("/:eventId", h.updateSportEvent)
	events.DELETE("/:eventId", h.deleteSportEvent)
	events.POST("/:eventId/join", h.joinSportEvent)
	events.DELETE("/:eventId/join", h.leaveSportEvent)

	events.POST("/:eventId/sessions", h.createSession)
	events.GET("/:eventId/sessions", h.listSessions)
	events.GET("/:eventId/sessions/:sessionId", h.getSession)
	events.PATCH("/:eventId/sessions/:sessionId", h.updateSession)
	events.DELETE("/:eventId/sessions/:sessionId", h.deleteSession)
	events.GET("/:eventId/sessions/:sessionId/qrcode", h.sessionQRCode)
	events.GET("/:eventId/sessions/:sessionId/live", h.liveAttendance)
	events.POST("/:eventId/sessions/:sessionId/checkin", h.checkIn)
	events.POST("/:eventId/sessions/:sessionId/checkout", h.checkOut)
	events.GET("/:eventId/sessions/:sessionId/attendance", h.listAttendance)
	events.GET("/:eventId/sessions/:sessionId/attendance/summary", h.getAttendanceSummary)
	events.GET("/:eventId/sessions/:sessionId/is-checked-in", h.isCheckedIn)

	events.POST("/:eventId/progress", h.addProgress)
	events.GET("/:eventId/progress", h.listProgress)
	events.POST("/:eventId/progress/gpx", h.addProgressFromGPX)
	events.PATCH("/:eventId/progress/:progressId", h.updateProgress)
	events.DELETE("/:eventId/progress/:progressId", h.deleteProgress)
	events.GET("/:eventId/leaderboard", h.getLeaderboard)
	events.GET("/:eventId/participants", h.getParticipants)

	plans := api.Group("/meal-plans")
	plans.POST("", h.createMealPlan)
	plans.GET("", h.listMealPlans)
	plans.GET("/mine", h.listMyMealPlans)
	plans.GET("/bookmarked", h.listBookmarkedMealPlans)
	plans.POST("/apply", h.applyMealPlan)
	plans.POST("/suggest-meal", h.suggestMeal)
	plans.GET("/:id", h.getMealPlan)
	plans.PATCH("/:id", h.updateMealPlan)
	plans.DELETE("/:id", h.deleteMealPlan)
	plans.POST("/:id/like", h.likeMealPlan)
	plans.DELETE("/:id/like", h.unlikeMealPlan)
	plans.POST("/:id/bookmark", h.bookmarkMealPlan)
	plans.DELETE("/:id/bookmark", h.unbookmarkMealPlan)
	plans.GET("/:id/comments", h.listMealPlanComments)
	plans.POST("/:id/comments", h.createMealPlanComment)
	plans.DELETE("/:id/comments/:commentId", h.deleteMealPlanComment)
	plans.POST("/:id/invite", h.inviteToMealPlan)

	schedules := api.Group("/meal-schedules")
	schedules.GET("", h.listMealSchedules)
	schedules.GET("/:id", h.getMealSchedule)
	schedules.PATCH("/:id", h.updateMealScheduleStatus)
	schedules.DELETE("/:id", h.deleteMealSchedule)
	schedules.GET("/:id/day", h.getScheduleDay)
	schedules.GET("/:id/days", h.getScheduleDays)
	schedules.PATCH("/:id/items/:itemId", h.updateMealItem)
}
