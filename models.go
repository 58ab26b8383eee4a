package main

import "time"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format("2006-01-02") + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

/* ─── Enums ──────────────────────────────────────────────────────────── */

type goalType string

const (
	goalWeightLoss  goalType = "weight-loss"
	goalMuscleGain  goalType = "muscle-gain"
	goalMaintenance goalType = "maintenance"
	goalHealth      goalType = "health"
)

func (g goalType) valid() bool {
	switch g {
	case goalWeightLoss, goalMuscleGain, goalMaintenance, goalHealth:
		return true
	}
	return false
}

type gender string

const (
	genderMale   gender = "male"
	genderFemale gender = "female"
	genderOther  gender = "other"
)

func (g gender) valid() bool {
	return g == genderMale || g == genderFemale || g == genderOther
}

type activityLevel string

const (
	activitySedentary  activityLevel = "sedentary"
	activityLight      activityLevel = "light"
	activityModerate   activityLevel = "moderate"
	activityActive     activityLevel = "active"
	activityVeryActive activityLevel = "very-active"
)

// valid reports whether the level has a multiplier in activityMultipliers.
func (a activityLevel) valid() bool {
	_, ok := activityMultipliers[a]
	return ok
}

type mealType string

const (
	mealBreakfast mealType = "breakfast"
	mealLunch     mealType = "lunch"
	mealDinner    mealType = "dinner"
	mealSnack     mealType = "snack"
)

func (m mealType) valid() bool {
	switch m {
	case mealBreakfast, mealLunch, mealDinner, mealSnack:
		return true
	}
	return false
}

type exerciseCategory string

const (
	exerciseCardio      exerciseCategory = "cardio"
	exerciseStrength    exerciseCategory = "strength"
	exerciseFlexibility exerciseCategory = "flexibility"
	exerciseMind        exerciseCategory = "mind"
)

func (e exerciseCategory) valid() bool {
	switch e {
	case exerciseCardio, exerciseStrength, exerciseFlexibility, exerciseMind:
		return true
	}
	return false
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// GoalTargets is the numeric half of a goal, as produced by computeTargets.
type GoalTargets struct {
	TargetCalories         int `json:"targetCalories"         validate:"gt=0"`
	TargetProtein          int `json:"targetProtein"          validate:"gt=0"`
	TargetCarbs            int `json:"targetCarbs"            validate:"gt=0"`
	TargetFat              int `json:"targetFat"              validate:"gt=0"`
	TargetWater            int `json:"targetWater"            validate:"gt=0"`
	TargetExerciseDuration int `json:"targetExerciseDuration" validate:"gte=0"`
}

// userGoal is owned 1:1 by a userProfile.
type userGoal struct {
	Type goalType `json:"type" validate:"oneof=weight-loss muscle-gain maintenance health"`
	GoalTargets
}

// bodyMetrics is the subset of a profile the target calculator reads.
type bodyMetrics struct {
	Weight        float64       `json:"weight"`
	Height        float64       `json:"height"`
	Age           int           `json:"age"`
	Gender        gender        `json:"gender"`
	ActivityLevel activityLevel `json:"activityLevel"`
}

type userProfile struct {
	Name          string        `json:"name"`
	Age           int           `json:"age"           validate:"gt=0,lt=130"`
	Weight        float64       `json:"weight"        validate:"gt=0"`
	Height        float64       `json:"height"        validate:"gt=0"`
	Gender        gender        `json:"gender"        validate:"oneof=male female other"`
	ActivityLevel activityLevel `json:"activityLevel" validate:"oneof=sedentary light moderate active very-active"`
	Goal          userGoal      `json:"goal"`
}

func (p userProfile) metrics() bodyMetrics {
	return bodyMetrics{
		Weight:        p.Weight,
		Height:        p.Height,
		Age:           p.Age,
		Gender:        p.Gender,
		ActivityLevel: p.ActivityLevel,
	}
}

// mealItem is one food entry. Items created from a catalog entry are copied
// by value so later catalog edits never reach a logged meal.
type mealItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Portion  string  `json:"portion"`
	Image    string  `json:"image,omitempty"`
}

// itemDraft is the user-supplied part of a mealItem (Add Food form or catalog copy).
type itemDraft struct {
	Name     string  `json:"name"     binding:"required"`
	Calories float64 `json:"calories" binding:"gte=0"`
	Protein  float64 `json:"protein"  binding:"gte=0"`
	Carbs    float64 `json:"carbs"    binding:"gte=0"`
	Fat      float64 `json:"fat"      binding:"gte=0"`
	Portion  string  `json:"portion"`
	Image    string  `json:"image,omitempty" binding:"omitempty,url"`
}

// meal is one eating occasion. The Total* fields are derived from Items and
// are only ever written by recompute.
type meal struct {
	ID            string     `json:"id"`
	Type          mealType   `json:"type"`
	Time          string     `json:"time"`
	Items         []mealItem `json:"items"`
	TotalCalories float64    `json:"totalCalories"`
	TotalProtein  float64    `json:"totalProtein"`
	TotalCarbs    float64    `json:"totalCarbs"`
	TotalFat      float64    `json:"totalFat"`
}

type exercise struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Category       exerciseCategory `json:"category"`
	Duration       int              `json:"duration"`
	CaloriesBurned int              `json:"caloriesBurned"`
}

type exerciseDraft struct {
	Name           string           `json:"name"           binding:"required"`
	Category       exerciseCategory `json:"category"`
	Duration       int              `json:"duration"       binding:"gt=0"`
	CaloriesBurned int              `json:"caloriesBurned" binding:"gte=0"`
}

// waterIntake is one append-only entry in the day's water log.
type waterIntake struct {
	ID        string `json:"id"`
	Amount    int    `json:"amount"`
	Timestamp string `json:"timestamp"`
}

// nutritionTotals is a rounded day-level sum across all meals.
type nutritionTotals struct {
	Calories int `json:"calories"`
	Protein  int `json:"protein"`
	Carbs    int `json:"carbs"`
	Fat      int `json:"fat"`
}

// dailyProgress is a read-only snapshot of one day's log.
type dailyProgress struct {
	Date                  string        `json:"date"`
	CaloriesConsumed      int           `json:"caloriesConsumed"`
	CaloriesBurned        int           `json:"caloriesBurned"`
	WaterIntake           int           `json:"waterIntake"`
	Meals                 []meal        `json:"meals"`
	Exercises             []exercise    `json:"exercises"`
	CompletedWaterIntakes []waterIntake `json:"completedWaterIntakes"`
}

/* ─── Persisted records ──────────────────────────────────────────────── */

// profileRecord maps to the profiles table. Every attribute is nullable; the
// parse step in profile_sync.go turns a record into a strict userProfile.
type profileRecord struct {
	ID            int        `db:"id"`
	Name          *string    `db:"name"`
	Gender        *string    `db:"gender"`
	Age           *int       `db:"age"`
	Weight        *float64   `db:"weight"`
	Height        *float64   `db:"height"`
	ActivityLevel *string    `db:"activity_level"`
	UpdatedAt     *time.Time `db:"updated_at"`
}

// goalRecord maps to user_goals. One row per user; ID is 0 until inserted.
type goalRecord struct {
	ID                     int        `db:"id"`
	UserID                 int        `db:"user_id"`
	Type                   *string    `db:"type"`
	TargetCalories         *int       `db:"target_calories"`
	TargetProtein          *int       `db:"target_protein"`
	TargetCarbs            *int       `db:"target_carbs"`
	TargetFat              *int       `db:"target_fat"`
	TargetWater            *int       `db:"target_water"`
	TargetExerciseDuration *int       `db:"target_exercise_duration"`
	UpdatedAt              *time.Time `db:"updated_at"`
}

/* ─── Request / response shapes ──────────────────────────────────────── */

// patchProfileRequest is the request body for PATCH /api/profile.
// All fields are pointers; only non-nil fields are applied.
type patchProfileRequest struct {
	Name                   *string  `json:"name"`
	Age                    *int     `json:"age"`
	Weight                 *float64 `json:"weight"`
	Height                 *float64 `json:"height"`
	Gender                 *string  `json:"gender"`
	ActivityLevel          *string  `json:"activityLevel"`
	GoalType               *string  `json:"goalType"`
	TargetCalories         *int     `json:"targetCalories"`
	TargetProtein          *int     `json:"targetProtein"`
	TargetCarbs            *int     `json:"targetCarbs"`
	TargetFat              *int     `json:"targetFat"`
	TargetWater            *int     `json:"targetWater"`
	TargetExerciseDuration *int     `json:"targetExerciseDuration"`
}

// targetsRequest is the request body for POST /api/profile/targets.
type targetsRequest struct {
	bodyMetrics
	GoalType goalType `json:"goalType"`
}

// dayResponse is the response shape for GET /api/day.
type dayResponse struct {
	Day      dailyProgress   `json:"day"`
	Totals   nutritionTotals `json:"totals"`
	Progress progressSummary `json:"progress"`
	Goal     userGoal        `json:"goal"`
}

type logWaterRequest struct {
	Amount int `json:"amount" binding:"gt=0"`
}
