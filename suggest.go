package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

/* ─── Request / Response types ───────────────────────────────────────── */

// suggestRequest is the request body for POST /api/food/suggest.
// Kind is "food" (default) or "exercise".
type suggestRequest struct {
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

// foodEstimate is what the model returns for a food description.
// Confidence is 1-5 indicating how accurate the estimate is.
type foodEstimate struct {
	Name       string  `json:"name"`
	Portion    string  `json:"portion"`
	Calories   float64 `json:"calories"`
	Protein    float64 `json:"protein"`
	Carbs      float64 `json:"carbs"`
	Fat        float64 `json:"fat"`
	Confidence int     `json:"confidence"`
}

// exerciseEstimate is what the model returns for an exercise description.
type exerciseEstimate struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Duration       int    `json:"duration"`
	CaloriesBurned int    `json:"caloriesBurned"`
	Confidence     int    `json:"confidence"`
}

// suggestResponse carries exactly one of Item or Exercise. Both are drafts the
// client can post unchanged to the day endpoints.
type suggestResponse struct {
	Item       *itemDraft     `json:"item,omitempty"`
	Exercise   *exerciseDraft `json:"exercise,omitempty"`
	Confidence int            `json:"confidence"`
}

/* ─── OpenAI prompt constants ────────────────────────────────────────── */

const foodSystemPrompt = `You are a nutrition assistant. Parse the food description and return a JSON object with:
- "name" (string, cleaned up title case)
- "portion" (string, e.g. "1 cup", "2 slices", "150 g")
- "calories" (number, total for the full portion)
- "protein" (number, grams, total for the full portion)
- "carbs" (number, grams, total for the full portion)
- "fat" (number, grams, total for the full portion)
- "confidence" (integer 1-5: 5=exact known nutritional data, 4=very close estimate, 3=reasonable estimate, 2=rough guess, 1=very uncertain)

Always provide your best estimate, even for unfamiliar or vague items. Only return {"error": "unrecognized"} if the input is not food at all.
Return only valid JSON, no explanation.`

const exerciseResponseShape = `Parse the exercise description and estimate calories burned. Return a JSON object with:
- "name" (string, cleaned up title case)
- "category" (one of: cardio, strength, flexibility, mind)
- "duration" (integer, minutes)
- "caloriesBurned" (integer)
- "confidence" (integer 1-5: 5=well-studied exercise with known MET values, 3=reasonable estimate, 1=very uncertain)

Always provide your best estimate, even for unusual activities. Only return {"error": "unrecognized"} if the input is not an exercise at all.
Return only valid JSON, no explanation.`

// exerciseSystemPromptTemplate takes the user's body metrics so the model can
// scale the burn estimate.
const exerciseSystemPromptTemplate = `You are a fitness calorie-burn estimator. The user is:
- Gender: %s
- Age: %d years
- Weight: %.0f kg
- Height: %.0f cm

` + exerciseResponseShape

// exerciseSystemPromptFallback is used when the profile cannot be loaded.
const exerciseSystemPromptFallback = `You are a fitness calorie-burn estimator. No body stats are available, use averages for an adult.

` + exerciseResponseShape

/* ─── OpenAI HTTP client ─────────────────────────────────────────────── */

var errOpenAIKeyMissing = errors.New("OPENAI_API_KEY not set")

// openAIMessage is a single message in the OpenAI chat completions request.
type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIRequest is the request body for the OpenAI chat completions API.
type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

// callOpenAI sends a chat completions request and returns the raw content string
// from the first choice. Uses raw net/http to avoid pulling in the OpenAI SDK.
func callOpenAI(ctx context.Context, messages []openAIMessage, baseURL, apiKey string) (string, error) {
	if apiKey == "" {
		return "", errOpenAIKeyMissing
	}

	bodyBytes, err := json.Marshal(openAIRequest{
		Model:          "gpt-4o-mini",
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

/* ─── Handler ────────────────────────────────────────────────────────── */

// suggestFood turns a free-text description into a meal item or exercise
// draft. Nothing is logged; the client posts the draft if the user accepts it.
// POST /api/food/suggest.
func (h *Handler) suggestFood(c *gin.Context) {
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}
	exercise := req.Kind == "exercise"
	if !exercise && req.Kind != "" && req.Kind != "food" {
		apiError(c, http.StatusBadRequest, "kind must be one of: food, exercise")
		return
	}

	systemPrompt := foodSystemPrompt
	if exercise {
		systemPrompt = h.buildExercisePrompt(c)
	}

	content, err := callOpenAI(c.Request.Context(), []openAIMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: req.Description},
	}, h.openAIBaseURL, h.openAIKey)
	if err != nil {
		log.Printf("[suggestFood] OpenAI error: %v", err)
		apiError(c, http.StatusInternalServerError, "openai request failed")
		return
	}

	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &errorResp); err != nil {
		log.Printf("[suggestFood] Failed to parse OpenAI response: %v", err)
		apiError(c, http.StatusInternalServerError, "openai request failed")
		return
	}
	if errorResp.Error == "unrecognized" {
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}

	var resp suggestResponse
	if exercise {
		resp, err = parseExerciseEstimate(content)
	} else {
		resp, err = parseFoodEstimate(content)
	}
	if err != nil {
		log.Printf("[suggestFood] %v", err)
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

var errUnusableEstimate = errors.New("unusable estimate")

// parseFoodEstimate validates model output before it becomes a draft:
// a name is required and no macro may be negative.
func parseFoodEstimate(content string) (suggestResponse, error) {
	var e foodEstimate
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return suggestResponse{}, fmt.Errorf("decode food estimate: %w", err)
	}
	if e.Name == "" || e.Calories <= 0 || e.Protein < 0 || e.Carbs < 0 || e.Fat < 0 {
		return suggestResponse{}, fmt.Errorf("%w: %+v", errUnusableEstimate, e)
	}
	return suggestResponse{
		Item: &itemDraft{
			Name:     e.Name,
			Portion:  e.Portion,
			Calories: e.Calories,
			Protein:  e.Protein,
			Carbs:    e.Carbs,
			Fat:      e.Fat,
		},
		Confidence: e.Confidence,
	}, nil
}

// parseExerciseEstimate validates model output for an exercise. An unknown
// category is mapped to cardio.
func parseExerciseEstimate(content string) (suggestResponse, error) {
	var e exerciseEstimate
	if err := json.Unmarshal([]byte(content), &e); err != nil {
		return suggestResponse{}, fmt.Errorf("decode exercise estimate: %w", err)
	}
	if e.Name == "" || e.Duration <= 0 || e.CaloriesBurned <= 0 {
		return suggestResponse{}, fmt.Errorf("%w: %+v", errUnusableEstimate, e)
	}
	category := exerciseCategory(e.Category)
	if !category.valid() {
		category = exerciseCardio
	}
	return suggestResponse{
		Exercise: &exerciseDraft{
			Name:           e.Name,
			Category:       category,
			Duration:       e.Duration,
			CaloriesBurned: e.CaloriesBurned,
		},
		Confidence: e.Confidence,
	}, nil
}

// buildExercisePrompt personalises the exercise prompt with the user's body
// metrics. Falls back to a generic prompt if the profile cannot be loaded.
func (h *Handler) buildExercisePrompt(c *gin.Context) string {
	if h.profiles == nil {
		return exerciseSystemPromptFallback
	}
	p, err := h.profiles.load(c.Request.Context(), c.GetInt("user_id"))
	if err != nil {
		log.Printf("[buildExercisePrompt] profile load failed, using fallback: %v", err)
		return exerciseSystemPromptFallback
	}
	return fmt.Sprintf(exerciseSystemPromptTemplate, p.Gender, p.Age, p.Weight, p.Height)
}
