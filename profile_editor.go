package main

import (
	"errors"
	"fmt"
)

// ErrInvalidField is returned when a patch carries an enum value or number
// outside the allowed range.
var ErrInvalidField = errors.New("invalid field")

// applyGoalType switches the goal and recomputes every numeric target from
// the profile's current metrics in one step.
func applyGoalType(p userProfile, t goalType) userProfile {
	p.Goal = userGoal{Type: t, GoalTargets: computeTargets(p.metrics(), t)}
	return p
}

// applyProfilePatch applies a partial edit in three stages: body fields, then
// a goal-type change (which recomputes all targets), then any manual target
// overrides. Overrides sent together with a goal type therefore win over the
// computed values. p is not modified.
func applyProfilePatch(p userProfile, req patchProfileRequest) (userProfile, error) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	setIfPresent(&p.Age, req.Age)
	setIfPresent(&p.Weight, req.Weight)
	setIfPresent(&p.Height, req.Height)
	if req.Gender != nil {
		g := gender(*req.Gender)
		if !g.valid() {
			return userProfile{}, fmt.Errorf("%w: gender must be one of: male, female, other", ErrInvalidField)
		}
		p.Gender = g
	}
	if req.ActivityLevel != nil {
		a := activityLevel(*req.ActivityLevel)
		if !a.valid() {
			return userProfile{}, fmt.Errorf("%w: activityLevel must be one of: sedentary, light, moderate, active, very-active", ErrInvalidField)
		}
		p.ActivityLevel = a
	}

	if req.GoalType != nil {
		t := goalType(*req.GoalType)
		if !t.valid() {
			return userProfile{}, fmt.Errorf("%w: goalType must be one of: weight-loss, muscle-gain, maintenance, health", ErrInvalidField)
		}
		p = applyGoalType(p, t)
	}

	setIfPresent(&p.Goal.TargetCalories, req.TargetCalories)
	setIfPresent(&p.Goal.TargetProtein, req.TargetProtein)
	setIfPresent(&p.Goal.TargetCarbs, req.TargetCarbs)
	setIfPresent(&p.Goal.TargetFat, req.TargetFat)
	setIfPresent(&p.Goal.TargetWater, req.TargetWater)
	setIfPresent(&p.Goal.TargetExerciseDuration, req.TargetExerciseDuration)

	if err := validateProfile(p); err != nil {
		return userProfile{}, fmt.Errorf("%w: %v", ErrInvalidField, err)
	}
	return p, nil
}
