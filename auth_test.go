package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("s3cret")
	token, err := issueToken(42, secret, time.Hour, time.Now())
	require.NoError(t, err)

	userID, err := parseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestParseToken_Rejects(t *testing.T) {
	secret := []byte("s3cret")

	wrongSecret, err := issueToken(42, []byte("other"), time.Hour, time.Now())
	require.NoError(t, err)
	expired, err := issueToken(42, secret, time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	noUser, err := issueToken(0, secret, time.Hour, time.Now())
	require.NoError(t, err)

	for name, token := range map[string]string{
		"wrong secret": wrongSecret,
		"expired":      expired,
		"no user":      noUser,
		"garbage":      "not.a.jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseToken(token, secret)
			assert.Error(t, err)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newTestHandler()
	r := gin.New()
	r.GET("/whoami", h.authMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetInt("user_id")})
	})

	valid, err := issueToken(7, []byte(testSecret), time.Hour, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"bearer header", "/whoami", "Bearer " + valid, http.StatusOK, `{"user_id":7}`},
		{"query token", "/whoami?token=" + valid, "", http.StatusOK, `{"user_id":7}`},
		{"missing", "/whoami", "", http.StatusUnauthorized, `{"error":"missing or invalid authorization header"}`},
		{"wrong scheme", "/whoami", "Basic abc", http.StatusUnauthorized, `{"error":"missing or invalid authorization header"}`},
		{"bad token", "/whoami", "Bearer nope", http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"header wins over query", "/whoami?token=" + valid, "Bearer nope", http.StatusUnauthorized, `{"error":"invalid token"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(newTestHandler())
	for _, path := range []string{"/api/profile", "/api/sport-events", "/api/meal-plans", "/api/meal-schedules"} {
		w := doJSON(r, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
