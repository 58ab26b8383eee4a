package main

import (
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

const eventDayUpdated = "day.updated"

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// dayParam reads ?date=YYYY-MM-DD, defaulting to today. Writes the 400 and
// returns ok=false on a malformed value.
func (h *Handler) dayParam(c *gin.Context) (string, bool) {
	date := c.DefaultQuery("date", h.today())
	// Validate date format up front; a malformed value would silently start a new day.
	if _, err := time.Parse("2006-01-02", date); err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return "", false
	}
	return date, true
}

// dayFailure maps a ledger error to a response.
func dayFailure(c *gin.Context, err error) {
	var nf *NotFoundError
	switch {
	case errors.As(err, &nf):
		apiError(c, http.StatusNotFound, nf.Error())
	case errors.Is(err, ErrInvalidAmount):
		apiError(c, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[dayFailure] %v", err)
		apiError(c, http.StatusInternalServerError, "failed to update day")
	}
}

// notifyDay tells the user's other open clients that a day changed.
func (h *Handler) notifyDay(userID int) {
	if h.hub != nil {
		h.hub.broadcast(userID, realtimeEvent{Kind: eventDayUpdated})
	}
}

// getDay returns the day's log with totals and progress against the goal.
// GET /api/day?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	p, err := h.profiles.load(c.Request.Context(), userID)
	if err != nil {
		profileFailure(c, "getDay", userID, err)
		return
	}

	var resp dayResponse
	h.days.read(userID, date, func(d *dailyLog) {
		resp.Day = d.snapshot()
		resp.Totals = d.ledger.dailyTotals()
	})
	resp.Goal = p.Goal
	resp.Progress = computeProgress(resp.Day, p.Goal, resp.Totals)

	c.JSON(http.StatusOK, resp)
}

// getDayTotals returns the rounded nutrition totals across all of the day's meals.
// GET /api/day/totals?date=YYYY-MM-DD.
func (h *Handler) getDayTotals(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var totals nutritionTotals
	h.days.read(userID, date, func(d *dailyLog) { totals = d.ledger.dailyTotals() })
	c.JSON(http.StatusOK, totals)
}

// addMeal appends an extra meal to the day.
// POST /api/day/meals. Body: { "type": "snack", "time": "HH:MM" }.
func (h *Handler) addMeal(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var body struct {
		Type mealType `json:"type" binding:"required"`
		Time string   `json:"time"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !body.Type.valid() {
		apiError(c, http.StatusBadRequest, "type must be one of: breakfast, lunch, dinner, snack")
		return
	}
	if body.Time == "" {
		body.Time = h.clock().Format("15:04")
	} else if !clockTime.MatchString(body.Time) {
		apiError(c, http.StatusBadRequest, "invalid time, expected HH:MM")
		return
	}

	var m meal
	_ = h.days.update(userID, date, func(d *dailyLog) error {
		m = d.ledger.addMeal(body.Type, body.Time)
		return nil
	})
	h.notifyDay(userID)
	c.JSON(http.StatusCreated, m)
}

// addMealItem adds a food item to a meal and returns the updated meal.
// POST /api/day/meals/:mealId/items?date=YYYY-MM-DD.
func (h *Handler) addMealItem(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var body itemDraft
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	var m meal
	err := h.days.update(userID, date, func(d *dailyLog) error {
		var err error
		m, err = d.ledger.addItem(c.Param("mealId"), body)
		return err
	})
	if err != nil {
		dayFailure(c, err)
		return
	}
	h.notifyDay(userID)
	c.JSON(http.StatusCreated, m)
}

// removeMealItem removes an item from a meal and returns the updated meal.
// Removing an item that is not there is not an error.
// DELETE /api/day/meals/:mealId/items/:itemId?date=YYYY-MM-DD.
func (h *Handler) removeMealItem(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var m meal
	err := h.days.update(userID, date, func(d *dailyLog) error {
		var err error
		m, err = d.ledger.removeItem(c.Param("mealId"), c.Param("itemId"))
		return err
	})
	if err != nil {
		dayFailure(c, err)
		return
	}
	h.notifyDay(userID)
	c.JSON(http.StatusOK, m)
}

// logWater appends a water intake to the day.
// POST /api/day/water?date=YYYY-MM-DD. Body: { "amount": 250 }.
func (h *Handler) logWater(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var body logWaterRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "amount must be a positive number of ml")
		return
	}

	var w waterIntake
	err := h.days.update(userID, date, func(d *dailyLog) error {
		var err error
		w, err = d.logWater(body.Amount, h.clock())
		return err
	})
	if err != nil {
		dayFailure(c, err)
		return
	}
	h.notifyDay(userID)
	c.JSON(http.StatusCreated, w)
}

// logExercise appends an exercise session to the day.
// POST /api/day/exercises?date=YYYY-MM-DD.
func (h *Handler) logExercise(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := h.dayParam(c)
	if !ok {
		return
	}

	var body exerciseDraft
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if !body.Category.valid() {
		apiError(c, http.StatusBadRequest, "category must be one of: cardio, strength, flexibility, mind")
		return
	}

	var e exercise
	_ = h.days.update(userID, date, func(d *dailyLog) error {
		e = d.logExercise(body)
		return nil
	})
	h.notifyDay(userID)
	c.JSON(http.StatusCreated, e)
}

// getWeekProgress returns seven days (Mon..Sun) of consumption against the
// calorie target, zero-filled for days with nothing logged.
// GET /api/progress/week?week_start=YYYY-MM-DD (defaults to the current week).
// A week_start that is not a Monday is moved back to its week's Monday.
func (h *Handler) getWeekProgress(c *gin.Context) {
	userID := c.GetInt("user_id")

	weekStart := mondayOf(h.clock())
	if ws := c.Query("week_start"); ws != "" {
		t, err := time.Parse("2006-01-02", ws)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid week_start, expected YYYY-MM-DD")
			return
		}
		weekStart = mondayOf(t)
	}

	p, err := h.profiles.load(c.Request.Context(), userID)
	if err != nil {
		profileFailure(c, "getWeekProgress", userID, err)
		return
	}

	week := buildWeekSummary(weekStart, p.Goal, func(date string) (dailyProgress, bool) {
		return h.days.snapshot(userID, date)
	})
	c.JSON(http.StatusOK, gin.H{"week_start": DateOnly{weekStart}, "days": week})
}
