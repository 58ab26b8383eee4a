package main

import (
	"fmt"
	"math"
	"time"
)

// percentOf returns current as a whole percentage of target, clamped to 100.
// A non-positive target reads as 0% rather than dividing by zero.
func percentOf(current, target float64) int {
	if target <= 0 {
		return 0
	}
	return min(roundHalfUp(current/target*100), 100)
}

// remaining is target minus current. Negative means over target.
func remaining(target, current float64) float64 {
	return target - current
}

// remainingLabel renders a remaining figure the way the dashboard shows it:
// "N remaining" when at or under target, "N over" when past it.
func remainingLabel(r float64) string {
	if r >= 0 {
		return fmt.Sprintf("%s remaining", formatAmount(r))
	}
	return fmt.Sprintf("%s over", formatAmount(math.Abs(r)))
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// metricProgress is one progress ring: current vs target.
type metricProgress struct {
	Current   float64 `json:"current"`
	Target    float64 `json:"target"`
	Percent   int     `json:"percent"`
	Remaining float64 `json:"remaining"`
	Label     string  `json:"label"`
}

func newMetricProgress(current, target float64) metricProgress {
	r := remaining(target, current)
	return metricProgress{
		Current:   current,
		Target:    target,
		Percent:   percentOf(current, target),
		Remaining: r,
		Label:     remainingLabel(r),
	}
}

// progressSummary is everything the dashboard and nutrition summary display.
// The four metrics are computed independently of each other.
type progressSummary struct {
	Calories          metricProgress `json:"calories"`
	Water             metricProgress `json:"water"`
	Protein           metricProgress `json:"protein"`
	Exercise          metricProgress `json:"exercise"`
	RemainingCalories int            `json:"remainingCalories"`
	RemainingWater    int            `json:"remainingWater"`
	Nutrition         struct {
		Calories metricProgress `json:"calories"`
		Protein  metricProgress `json:"protein"`
		Carbs    metricProgress `json:"carbs"`
		Fat      metricProgress `json:"fat"`
	} `json:"nutrition"`
}

// computeProgress derives display figures from a day snapshot and the user's
// goal. Remaining calories add back what exercise burned.
func computeProgress(day dailyProgress, goal userGoal, totals nutritionTotals) progressSummary {
	var protein float64
	for _, m := range day.Meals {
		protein += m.TotalProtein
	}
	exerciseMinutes := 0
	for _, e := range day.Exercises {
		exerciseMinutes += e.Duration
	}

	var s progressSummary
	s.Calories = newMetricProgress(float64(day.CaloriesConsumed), float64(goal.TargetCalories))
	s.Water = newMetricProgress(float64(day.WaterIntake), float64(goal.TargetWater))
	s.Protein = newMetricProgress(protein, float64(goal.TargetProtein))
	s.Exercise = newMetricProgress(float64(exerciseMinutes), float64(goal.TargetExerciseDuration))
	s.RemainingCalories = goal.TargetCalories - day.CaloriesConsumed + day.CaloriesBurned
	s.RemainingWater = goal.TargetWater - day.WaterIntake

	s.Nutrition.Calories = newMetricProgress(float64(totals.Calories), float64(goal.TargetCalories))
	s.Nutrition.Protein = newMetricProgress(float64(totals.Protein), float64(goal.TargetProtein))
	s.Nutrition.Carbs = newMetricProgress(float64(totals.Carbs), float64(goal.TargetCarbs))
	s.Nutrition.Fat = newMetricProgress(float64(totals.Fat), float64(goal.TargetFat))
	return s
}

/* ─── Week summary ───────────────────────────────────────────────────── */

// weekDaySummary is one day's entry in the GET /api/progress/week response.
// Days with nothing logged have HasData=false and zero consumption fields.
type weekDaySummary struct {
	Date           DateOnly `json:"date"`
	Day            string   `json:"day"`
	Calories       int      `json:"calories"`
	Target         int      `json:"target"`
	CaloriesBurned int      `json:"caloriesBurned"`
	Water          int      `json:"water"`
	Exercise       int      `json:"exercise"`
	HasData        bool     `json:"hasData"`
}

// dayLookup returns a day's snapshot and whether the day was ever touched.
type dayLookup func(date string) (dailyProgress, bool)

// buildWeekSummary returns seven entries starting at weekStart, filling zeros
// for days the lookup has nothing for.
func buildWeekSummary(weekStart time.Time, goal userGoal, lookup dayLookup) []weekDaySummary {
	result := make([]weekDaySummary, 7)
	for i := 0; i < 7; i++ {
		d := weekStart.AddDate(0, 0, i)
		day := weekDaySummary{
			Date:   DateOnly{d},
			Day:    d.Format("Mon"),
			Target: goal.TargetCalories,
		}
		if p, ok := lookup(d.Format("2006-01-02")); ok && hasActivity(p) {
			day.HasData = true
			day.Calories = p.CaloriesConsumed
			day.CaloriesBurned = p.CaloriesBurned
			day.Water = p.WaterIntake
			for _, e := range p.Exercises {
				day.Exercise += e.Duration
			}
		}
		result[i] = day
	}
	return result
}

func hasActivity(p dailyProgress) bool {
	if len(p.Exercises) > 0 || len(p.CompletedWaterIntakes) > 0 {
		return true
	}
	for _, m := range p.Meals {
		if len(m.Items) > 0 {
			return true
		}
	}
	return false
}

// mondayOf returns the Monday on or before t, at midnight in t's location, so
// it agrees with dates formatted from the same clock.
// AddDate handles month and year boundaries.
func mondayOf(t time.Time) time.Time {
	weekday := int(t.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7 // treat Sunday as day 7 so Mon=1..Sun=7
	}
	y, m, d := t.AddDate(0, 0, -(weekday - 1)).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
