package main

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// profileFailure maps a load/save error to a response. The backend being down
// is a gateway failure, never an empty profile.
func profileFailure(c *gin.Context, op string, userID int, err error) {
	log.Printf("[%s] user %d: %v", op, userID, err)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		apiError(c, http.StatusGatewayTimeout, "profile store timed out")
	case errors.Is(err, ErrInvalidRecord):
		apiError(c, http.StatusBadGateway, "stored profile is invalid")
	default:
		apiError(c, http.StatusBadGateway, "profile store unavailable")
	}
}

// getProfile returns the user's profile and goal. Users with no stored records
// get the defaults.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.profiles.load(c.Request.Context(), userID)
	if err != nil {
		profileFailure(c, "getProfile", userID, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// putProfile replaces the whole profile and goal.
// PUT /api/profile.
func (h *Handler) putProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body userProfile
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateProfile(body); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.profiles.save(c.Request.Context(), userID, body); err != nil {
		profileFailure(c, "putProfile", userID, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// patchProfile applies a partial edit. Sending goalType recomputes every
// target from the (possibly just edited) body metrics; target fields sent in
// the same request override the computed values.
// PATCH /api/profile.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := h.profiles.load(c.Request.Context(), userID)
	if err != nil {
		profileFailure(c, "patchProfile", userID, err)
		return
	}

	updated, err := applyProfilePatch(current, body)
	if err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.profiles.save(c.Request.Context(), userID, updated); err != nil {
		profileFailure(c, "patchProfile", userID, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// previewTargets computes targets for posted metrics and goal without saving.
// POST /api/profile/targets.
func (h *Handler) previewTargets(c *gin.Context) {
	var body targetsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Weight <= 0 || body.Height <= 0 || body.Age <= 0 {
		apiError(c, http.StatusBadRequest, "weight, height and age must be positive")
		return
	}
	if !body.GoalType.valid() {
		apiError(c, http.StatusBadRequest, "goalType must be one of: weight-loss, muscle-gain, maintenance, health")
		return
	}
	if body.Gender != "" && !body.Gender.valid() {
		apiError(c, http.StatusBadRequest, "gender must be one of: male, female, other")
		return
	}
	if body.ActivityLevel != "" && !body.ActivityLevel.valid() {
		apiError(c, http.StatusBadRequest, "activityLevel must be one of: sedentary, light, moderate, active, very-active")
		return
	}

	c.JSON(http.StatusOK, computeTargets(body.bodyMetrics, body.GoalType))
}
