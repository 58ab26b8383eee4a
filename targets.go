package main

import "math"

// activityMultipliers maps activity levels to their TDEE multiplier.
// This is the single source of truth for valid activity levels, also used for
// input validation in the profile editor.
var activityMultipliers = map[activityLevel]float64{
	activitySedentary:  1.2,
	activityLight:      1.375,
	activityModerate:   1.55,
	activityActive:     1.725,
	activityVeryActive: 1.9,
}

// defaultActivityMultiplier is applied when the level is not in activityMultipliers.
const defaultActivityMultiplier = 1.55

// goalAdjustment holds the per-goal factors applied on top of maintenance calories.
type goalAdjustment struct {
	calorieFactor   float64 // multiplier on maintenance calories
	proteinPerKG    float64 // grams of protein per kg of body weight
	fatShare        float64 // fraction of calories from fat
	exerciseMinutes int
}

var goalAdjustments = map[goalType]goalAdjustment{
	goalWeightLoss:  {calorieFactor: 0.8, proteinPerKG: 2.2, fatShare: 0.25, exerciseMinutes: 60},
	goalMuscleGain:  {calorieFactor: 1.1, proteinPerKG: 1.8, fatShare: 0.25, exerciseMinutes: 45},
	goalMaintenance: {calorieFactor: 1, proteinPerKG: 1.6, fatShare: 0.30, exerciseMinutes: 30},
	goalHealth:      {calorieFactor: 1, proteinPerKG: 1.4, fatShare: 0.30, exerciseMinutes: 45},
}

const (
	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9

	minProteinG = 50
	minCarbsG   = 50
	minFatG     = 30

	waterMLPerKG = 35
)

// roundHalfUp rounds .5 toward +Inf. math.Round rounds away from zero, which
// differs for the (pre-floor) negative carb remainders of very light users.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// computeBMR is the Mifflin-St Jeor equation. "other" uses the female constant.
func computeBMR(m bodyMetrics) float64 {
	bmr := 10*m.Weight + 6.25*m.Height - 5*float64(m.Age)
	if m.Gender == genderMale {
		return bmr + 5
	}
	return bmr - 161
}

// maintenanceCalories is BMR × activity multiplier, rounded (TDEE).
func maintenanceCalories(m bodyMetrics) int {
	mult, found := activityMultipliers[m.ActivityLevel]
	if !found {
		mult = defaultActivityMultiplier
	}
	return roundHalfUp(computeBMR(m) * mult)
}

// computeTargets derives daily calorie, macro, water, and exercise targets from
// body metrics and a goal type. Pure and deterministic. Inputs are not
// validated: non-positive weight, height, or age produce meaningless targets,
// so callers validate profiles before calling. An unknown goal type gets the
// maintenance adjustment.
func computeTargets(m bodyMetrics, goal goalType) GoalTargets {
	adj, found := goalAdjustments[goal]
	if !found {
		adj = goalAdjustments[goalMaintenance]
	}

	maintenance := maintenanceCalories(m)
	calories := maintenance
	if adj.calorieFactor != 1 {
		calories = roundHalfUp(float64(maintenance) * adj.calorieFactor)
	}

	protein := roundHalfUp(m.Weight * adj.proteinPerKG)
	fat := roundHalfUp(float64(calories) * adj.fatShare / kcalPerGramFat)
	// Carbs fill whatever calorie budget protein and fat leave over.
	carbs := roundHalfUp(float64(calories-protein*kcalPerGramProtein-fat*kcalPerGramFat) / kcalPerGramCarbs)

	// Floors are applied after the split; calories are intentionally not
	// renormalised, so clamped macros can slightly exceed the calorie target.
	protein = max(protein, minProteinG)
	carbs = max(carbs, minCarbsG)
	fat = max(fat, minFatG)

	return GoalTargets{
		TargetCalories:         calories,
		TargetProtein:          protein,
		TargetCarbs:            carbs,
		TargetFat:              fat,
		TargetWater:            roundHalfUp(m.Weight * waterMLPerKG),
		TargetExerciseDuration: adj.exerciseMinutes,
	}
}
