package main

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

/* ─── Domain errors ───────────────────────────────────────────────────── */

var (
	errForbidden = errors.New("you do not have permission to modify this resource")

	errEventNotFound       = errors.New("sport event not found")
	errNotParticipant      = errors.New("you must join the event before logging progress")
	errSessionNotFound     = errors.New("session not found")
	errSessionNumberTaken  = errors.New("session number already exists for this event")
	errSessionNotStarted   = errors.New("session has not started yet")
	errSessionEnded        = errors.New("session has already ended")
	errAlreadyCheckedIn    = errors.New("already checked in")
	errNotCheckedIn        = errors.New("not currently checked in")
	errProgressNotFound    = errors.New("progress entry not found")
	errInvalidGPX          = errors.New("invalid GPX file")
	errMealPlanNotFound    = errors.New("meal plan not found")
	errCommentNotFound     = errors.New("comment not found")
	errScheduleNotFound    = errors.New("meal schedule not found")
	errMealItemNotFound    = errors.New("meal item not found")
	errScheduleCancelled   = errors.New("meal schedule is cancelled")
	errSubstituteRequired  = errors.New("substitute_name is required when status is substituted")
	errUsernameOrEmailUsed = errors.New("username or email already registered")
)

// errorStatus maps each domain error to the HTTP status it is reported with.
var errorStatus = map[error]int{
	errForbidden:           http.StatusForbidden,
	errEventNotFound:       http.StatusNotFound,
	errNotParticipant:      http.StatusForbidden,
	errSessionNotFound:     http.StatusNotFound,
	errSessionNumberTaken:  http.StatusConflict,
	errSessionNotStarted:   http.StatusBadRequest,
	errSessionEnded:        http.StatusBadRequest,
	errAlreadyCheckedIn:    http.StatusBadRequest,
	errNotCheckedIn:        http.StatusBadRequest,
	errProgressNotFound:    http.StatusNotFound,
	errInvalidGPX:          http.StatusBadRequest,
	errMealPlanNotFound:    http.StatusNotFound,
	errCommentNotFound:     http.StatusNotFound,
	errScheduleNotFound:    http.StatusNotFound,
	errMealItemNotFound:    http.StatusNotFound,
	errScheduleCancelled:   http.StatusBadRequest,
	errSubstituteRequired:  http.StatusBadRequest,
	errUsernameOrEmailUsed: http.StatusConflict,
	errUnknownActivity:     http.StatusBadRequest,
	errUnknownGoal:         http.StatusBadRequest,
	errUnknownSex:          http.StatusBadRequest,
	errBadBodyMetrics:      http.StatusBadRequest,
}

// statusFor returns the status and client message for err. Unknown errors are 500s.
func statusFor(err error) (int, string, bool) {
	for target, status := range errorStatus {
		if errors.Is(err, target) {
			return status, target.Error(), true
		}
	}
	return http.StatusInternalServerError, "", false
}

// fail writes the response for err. Domain errors keep their message; anything
// else is logged and reported as a 500 with the given message.
func (h *Handler) fail(c *gin.Context, err error, message string) {
	if status, msg, ok := statusFor(err); ok {
		apiError(c, status, msg)
		return
	}
	h.log.Error(message,
		zap.Error(err),
		zap.String("route", c.FullPath()),
		zap.Int("user_id", c.GetInt("user_id")),
	)
	apiError(c, http.StatusInternalServerError, message)
}

// isUniqueViolation reports whether err is a Postgres unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

/* ─── Validation ──────────────────────────────────────────────────────── */

func init() {
	// Report JSON field names (not Go field names) in validation errors.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

// validationMessage turns one failed validator tag into a friendly message.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters long", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters long", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "datetime":
		return "must match format " + fe.Param()
	default:
		return "is invalid"
	}
}

// validationFields maps validator errors to {"field.path": "message"}. The
// root struct name is stripped from each namespace.
func validationFields(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		key := fe.Namespace()
		if i := strings.Index(key, "."); i >= 0 {
			key = key[i+1:]
		}
		fields[key] = validationMessage(fe)
	}
	return fields
}

// bindJSON binds and validates the request body, writing a 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if fields := validationFields(err); fields != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "fields": fields})
			return false
		}
		apiError(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
