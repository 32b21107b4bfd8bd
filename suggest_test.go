package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockOpenAI serves a fixed response and records the last request.
type mockOpenAI struct {
	status  int
	body    any
	auth    string
	request openAIRequest
}

// setupSuggestTest returns a router serving the suggest endpoint against a
// mock OpenAI server. No DB is needed.
func setupSuggestTest(t *testing.T, key string) (*gin.Engine, *mockOpenAI) {
	t.Helper()
	mock := &mockOpenAI{status: http.StatusOK}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&mock.request)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(mock.status)
		_ = json.NewEncoder(w).Encode(mock.body)
	}))
	t.Cleanup(srv.Close)

	gin.SetMode(gin.TestMode)
	h := newHandler(nil, appConfig{
		JWTSecret:     "test-secret",
		TokenTTL:      time.Hour,
		OpenAIBaseURL: srv.URL,
		OpenAIKey:     key,
	}, zap.NewNop())

	router := gin.New()
	// Skip auth middleware for tests; set a dummy user_id.
	router.POST("/api/meal-plans/suggest-meal", func(c *gin.Context) {
		c.Set("user_id", 1)
		c.Next()
	}, h.suggestMeal)

	return router, mock
}

func doSuggestRequest(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/meal-plans/suggest-meal", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// openAIChatResponse wraps content in the chat completions response shape.
func openAIChatResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func TestSuggestMeal_Success(t *testing.T) {
	router, mock := setupSuggestTest(t, "test-key")
	mock.body = openAIChatResponse(`{"name":"Phở Bò","calories":450,"protein_g":28,"carbs_g":55,"fat_g":12,"confidence":4}`)

	w := doSuggestRequest(router, `{"description":"a bowl of pho bo","meal_type":"breakfast"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp mealSuggestion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Phở Bò", resp.Name)
	assert.Equal(t, 450, resp.Calories)
	assert.InDelta(t, 28, resp.ProteinG, 0.001)
	assert.Equal(t, 4, resp.Confidence)

	assert.Equal(t, "Bearer test-key", mock.auth)
	assert.Equal(t, openAIModel, mock.request.Model)
	require.Len(t, mock.request.Messages, 2)
	assert.Contains(t, mock.request.Messages[0].Content, "breakfast")
	assert.Equal(t, "a bowl of pho bo", mock.request.Messages[1].Content)
}

func TestSuggestMeal_Unrecognized(t *testing.T) {
	router, mock := setupSuggestTest(t, "test-key")
	mock.body = openAIChatResponse(`{"error":"unrecognized"}`)

	w := doSuggestRequest(router, `{"description":"asdfghjkl","meal_type":"snack"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unrecognized", resp["error"])
}

func TestSuggestMeal_ZeroCaloriesIsUnrecognized(t *testing.T) {
	router, mock := setupSuggestTest(t, "test-key")
	mock.body = openAIChatResponse(`{"name":"Water","calories":0}`)

	w := doSuggestRequest(router, `{"description":"glass of water"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"error":"unrecognized"}`, w.Body.String())
}

func TestSuggestMeal_OpenAIError(t *testing.T) {
	router, mock := setupSuggestTest(t, "test-key")
	mock.status = http.StatusInternalServerError
	mock.body = map[string]string{"error": "server error"}

	w := doSuggestRequest(router, `{"description":"banana","meal_type":"snack"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"openai request failed"}`, w.Body.String())
}

func TestSuggestMeal_MissingKey(t *testing.T) {
	router, _ := setupSuggestTest(t, "")

	w := doSuggestRequest(router, `{"description":"banana"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"openai request failed"}`, w.Body.String())
}

func TestSuggestMeal_MalformedContent(t *testing.T) {
	router, mock := setupSuggestTest(t, "test-key")
	mock.body = openAIChatResponse(`not valid json at all`)

	w := doSuggestRequest(router, `{"description":"banana","meal_type":"snack"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSuggestMeal_Validation(t *testing.T) {
	router, _ := setupSuggestTest(t, "test-key")

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty description", `{"description":""}`, "description"},
		{"unknown meal type", `{"description":"rice","meal_type":"brunch"}`, "meal_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doSuggestRequest(router, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp struct {
				Error  string            `json:"error"`
				Fields map[string]string `json:"fields"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "invalid request body", resp.Error)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}
}

func TestSuggestMeal_BlankDescription(t *testing.T) {
	router, _ := setupSuggestTest(t, "test-key")

	w := doSuggestRequest(router, `{"description":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"description is required"}`, w.Body.String())
}

func TestMealSystemPrompt(t *testing.T) {
	assert.Contains(t, mealSystemPrompt("dinner"), "eaten as: dinner")
	assert.Contains(t, mealSystemPrompt(""), "any meal of the day")
}
