package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// maintenanceProfile is the default body (70 kg, 170 cm, 30 y, male, moderate)
// on a maintenance goal with computed targets.
func maintenanceProfile() userProfile {
	return applyGoalType(defaultProfile(), goalMaintenance)
}

func TestApplyGoalType_MaintenanceToMuscleGain(t *testing.T) {
	before := maintenanceProfile()
	require.Equal(t, GoalTargets{
		TargetCalories:         2507,
		TargetProtein:          112,
		TargetCarbs:            326,
		TargetFat:              84,
		TargetWater:            2450,
		TargetExerciseDuration: 30,
	}, before.Goal.GoalTargets)

	after, err := applyProfilePatch(before, patchProfileRequest{GoalType: ptr("muscle-gain")})
	require.NoError(t, err)

	assert.Equal(t, goalMuscleGain, after.Goal.Type)
	assert.Equal(t, GoalTargets{
		TargetCalories:         2758,
		TargetProtein:          126,
		TargetCarbs:            390,
		TargetFat:              77,
		TargetWater:            2450,
		TargetExerciseDuration: 45,
	}, after.Goal.GoalTargets)

	// No goal-dependent target keeps its old value.
	assert.NotEqual(t, before.Goal.TargetCalories, after.Goal.TargetCalories)
	assert.NotEqual(t, before.Goal.TargetProtein, after.Goal.TargetProtein)
	assert.NotEqual(t, before.Goal.TargetCarbs, after.Goal.TargetCarbs)
	assert.NotEqual(t, before.Goal.TargetFat, after.Goal.TargetFat)
	assert.NotEqual(t, before.Goal.TargetExerciseDuration, after.Goal.TargetExerciseDuration)
}

func TestApplyProfilePatch_OverridesWinOverRecompute(t *testing.T) {
	p, err := applyProfilePatch(maintenanceProfile(), patchProfileRequest{
		GoalType:       ptr("weight-loss"),
		TargetCalories: ptr(1800),
	})
	require.NoError(t, err)
	assert.Equal(t, 1800, p.Goal.TargetCalories)
	assert.Equal(t, computeTargets(p.metrics(), goalWeightLoss).TargetProtein, p.Goal.TargetProtein)
}

func TestApplyProfilePatch_BodyChangeAloneKeepsTargets(t *testing.T) {
	before := maintenanceProfile()
	after, err := applyProfilePatch(before, patchProfileRequest{Weight: ptr(90.0)})
	require.NoError(t, err)
	assert.Equal(t, 90.0, after.Weight)
	assert.Equal(t, before.Goal, after.Goal)
}

func TestApplyProfilePatch_UsesNewMetricsForRecompute(t *testing.T) {
	p, err := applyProfilePatch(maintenanceProfile(), patchProfileRequest{
		Weight:   ptr(90.0),
		GoalType: ptr("health"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3150, p.Goal.TargetWater)
	assert.Equal(t, 126, p.Goal.TargetProtein)
}

func TestApplyProfilePatch_Invalid(t *testing.T) {
	cases := []struct {
		name string
		req  patchProfileRequest
	}{
		{"gender", patchProfileRequest{Gender: ptr("robot")}},
		{"activity level", patchProfileRequest{ActivityLevel: ptr("very_active")}},
		{"goal type", patchProfileRequest{GoalType: ptr("bulk")}},
		{"age", patchProfileRequest{Age: ptr(0)}},
		{"zero calories", patchProfileRequest{TargetCalories: ptr(0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := applyProfilePatch(maintenanceProfile(), tc.req)
			assert.True(t, errors.Is(err, ErrInvalidField), "got %v", err)
		})
	}
}
