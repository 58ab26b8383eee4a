package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAmount is returned when a logged water amount is not positive.
var ErrInvalidAmount = errors.New("amount must be positive")

// dailyLog is one user's day: the meal ledger plus the exercise and water logs.
// waterTotal is authoritative and only ever incremented together with an
// append to water, so it always equals the sum of the log.
type dailyLog struct {
	date       string
	ledger     *mealLedger
	exercises  []exercise
	water      []waterIntake
	waterTotal int
	newID      func() string
}

func newDailyLog(date string) *dailyLog {
	return &dailyLog{
		date:   date,
		ledger: newSeededMealLedger(),
		newID:  uuid.NewString,
	}
}

// logWater appends an intake stamped with at's HH:MM and bumps the day total.
func (d *dailyLog) logWater(amount int, at time.Time) (waterIntake, error) {
	if amount <= 0 {
		return waterIntake{}, ErrInvalidAmount
	}
	w := waterIntake{ID: d.newID(), Amount: amount, Timestamp: at.Format("15:04")}
	d.water = append(d.water, w)
	d.waterTotal += amount
	return w, nil
}

func (d *dailyLog) logExercise(draft exerciseDraft) exercise {
	e := exercise{
		ID:             d.newID(),
		Name:           draft.Name,
		Category:       draft.Category,
		Duration:       draft.Duration,
		CaloriesBurned: draft.CaloriesBurned,
	}
	d.exercises = append(d.exercises, e)
	return e
}

func (d *dailyLog) caloriesBurned() int {
	total := 0
	for _, e := range d.exercises {
		total += e.CaloriesBurned
	}
	return total
}

// snapshot copies the day into a dailyProgress that shares no state with d.
func (d *dailyLog) snapshot() dailyProgress {
	exercises := make([]exercise, len(d.exercises))
	copy(exercises, d.exercises)
	water := make([]waterIntake, len(d.water))
	copy(water, d.water)

	return dailyProgress{
		Date:                  d.date,
		CaloriesConsumed:      d.ledger.dailyTotals().Calories,
		CaloriesBurned:        d.caloriesBurned(),
		WaterIntake:           d.waterTotal,
		Meals:                 d.ledger.getMeals(),
		Exercises:             exercises,
		CompletedWaterIntakes: water,
	}
}

/* ─── Registry ───────────────────────────────────────────────────────── */

type dayKey struct {
	userID int
	date   string
}

// dailyLogRegistry keeps every user's in-memory daily logs for the life of the
// process. Logs are not persisted. The mutex makes each ledger operation run
// to completion before any other request observes the day.
type dailyLogRegistry struct {
	mu   sync.Mutex
	logs map[dayKey]*dailyLog
}

func newDailyLogRegistry() *dailyLogRegistry {
	return &dailyLogRegistry{logs: make(map[dayKey]*dailyLog)}
}

// update runs fn against the user's log for date, creating the day if needed.
func (r *dailyLogRegistry) update(userID int, date string, fn func(d *dailyLog) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dayKey{userID, date}
	d, ok := r.logs[key]
	if !ok {
		d = newDailyLog(date)
		r.logs[key] = d
	}
	return fn(d)
}

// read runs fn against the user's log for date without creating it. Unknown
// days are read as a freshly seeded, empty day. It reports whether the day
// existed.
func (r *dailyLogRegistry) read(userID int, date string, fn func(d *dailyLog)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.logs[dayKey{userID, date}]
	if !ok {
		d = newDailyLog(date)
	}
	fn(d)
	return ok
}

// snapshot returns the day's state and whether anything had been recorded for
// it.
func (r *dailyLogRegistry) snapshot(userID int, date string) (dailyProgress, bool) {
	var p dailyProgress
	ok := r.read(userID, date, func(d *dailyLog) { p = d.snapshot() })
	return p, ok
}
