package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	openAIModel   = "gpt-4o-mini"
	openAITimeout = 15 * time.Second
)

// suggestMealRequest is the request body for POST /api/meal-plans/suggest-meal.
type suggestMealRequest struct {
	Description string `json:"description" binding:"required,max=500"`
	MealType    string `json:"meal_type"   binding:"omitempty,oneof=breakfast lunch dinner snack"`
}

// mealSuggestion is the nutrition estimate for one meal, shaped like a
// meal-plan meal so the client can drop it into a plan day.
// Confidence is 1-5.
type mealSuggestion struct {
	Name       string  `json:"name"`
	Calories   int     `json:"calories"`
	ProteinG   float64 `json:"protein_g"`
	CarbsG     float64 `json:"carbs_g"`
	FatG       float64 `json:"fat_g"`
	Confidence int     `json:"confidence"`
}

const mealSystemPromptTemplate = `You are a nutrition assistant helping a user build a meal plan.
The meal is eaten as: %s.
Parse the meal description and return a JSON object with:
- "name" (string, cleaned up title case, keep the user's language)
- "calories" (integer, total for the whole portion)
- "protein_g" (number, total for the whole portion)
- "carbs_g" (number, total for the whole portion)
- "fat_g" (number, total for the whole portion)
- "confidence" (integer 1-5: 5=exact known nutritional data, 4=very close estimate, 3=reasonable estimate, 2=rough guess, 1=very uncertain)

Always provide your best estimate, even for unfamiliar or vague dishes. Only return {"error": "unrecognized"} if the input is not food at all.
Return only valid JSON, no explanation.`

// mealSystemPrompt fills in the meal type; an empty type means any meal.
func mealSystemPrompt(mealType string) string {
	if mealType == "" {
		mealType = "any meal of the day"
	}
	return fmt.Sprintf(mealSystemPromptTemplate, mealType)
}

/* ─── OpenAI HTTP client ─────────────────────────────────────────────── */

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

var errOpenAIKeyMissing = errors.New("OPENAI_API_KEY not set")

// callOpenAI sends a chat completion and returns the first choice's content.
func (h *Handler) callOpenAI(ctx context.Context, messages []openAIMessage) (string, error) {
	if h.openAIKey == "" {
		return "", errOpenAIKeyMissing
	}

	body, err := json.Marshal(openAIRequest{
		Model:          openAIModel,
		Messages:       messages,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(h.openAIBaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.openAIKey)

	client := &http.Client{Timeout: openAITimeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, raw)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

// parseMealSuggestion decodes the model output. ok=false means the model
// did not recognise the input as food.
func parseMealSuggestion(content string) (mealSuggestion, bool, error) {
	var out struct {
		mealSuggestion
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return mealSuggestion{}, false, err
	}
	if out.Error == "unrecognized" || out.Name == "" || out.Calories <= 0 {
		return mealSuggestion{}, false, nil
	}
	return out.mealSuggestion, true, nil
}

// suggestMeal estimates the calories and macros of a described meal.
// POST /api/meal-plans/suggest-meal {description, meal_type?}
func (h *Handler) suggestMeal(c *gin.Context) {
	var req suggestMealRequest
	if !bindJSON(c, &req) {
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	content, err := h.callOpenAI(c.Request.Context(), []openAIMessage{
		{Role: "system", Content: mealSystemPrompt(req.MealType)},
		{Role: "user", Content: description},
	})
	if err != nil {
		h.fail(c, err, "openai request failed")
		return
	}

	suggestion, ok, err := parseMealSuggestion(content)
	if err != nil {
		h.fail(c, fmt.Errorf("parse suggestion: %w", err), "openai request failed")
		return
	}
	if !ok {
		h.log.Debug("meal not recognised", zap.String("description", description))
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}

	c.JSON(http.StatusOK, suggestion)
}
