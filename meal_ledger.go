package main

import (
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError reports a ledger operation that named a meal (or other
// entity) which does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// defaultMealTimes seeds a new day with one meal of each type.
var defaultMealTimes = []struct {
	Type mealType
	Time string
}{
	{mealBreakfast, "08:00"},
	{mealLunch, "12:30"},
	{mealDinner, "19:00"},
	{mealSnack, "15:30"},
}

// mealLedger holds one day's meals. Meal totals are derived: every mutation
// rebuilds the owning meal's totals from its item list, and dailyTotals sums
// item lists directly, so no total is ever cached apart from its items.
//
// A mealLedger is not safe for concurrent use; dailyLogRegistry serialises
// access per user and day.
type mealLedger struct {
	meals []meal
	newID func() string
}

func newMealLedger() *mealLedger {
	return &mealLedger{newID: uuid.NewString}
}

// newSeededMealLedger returns a ledger with an empty breakfast, lunch, dinner,
// and snack. Seeded meal ids are their type names.
func newSeededMealLedger() *mealLedger {
	l := newMealLedger()
	for _, d := range defaultMealTimes {
		l.meals = append(l.meals, meal{ID: string(d.Type), Type: d.Type, Time: d.Time, Items: []mealItem{}})
	}
	return l
}

// recompute rebuilds m's totals from its items. Calling it twice with no
// intervening mutation yields identical totals.
func (m *meal) recompute() {
	var calories, protein, carbs, fat float64
	for _, it := range m.Items {
		calories += it.Calories
		protein += it.Protein
		carbs += it.Carbs
		fat += it.Fat
	}
	m.TotalCalories = calories
	m.TotalProtein = protein
	m.TotalCarbs = carbs
	m.TotalFat = fat
}

// clone returns a copy of m that shares no backing array with it.
func (m meal) clone() meal {
	items := make([]mealItem, len(m.Items))
	copy(items, m.Items)
	m.Items = items
	return m
}

func (l *mealLedger) indexOf(mealID string) int {
	for i := range l.meals {
		if l.meals[i].ID == mealID {
			return i
		}
	}
	return -1
}

// getMeals returns copies of the day's meals in display order.
func (l *mealLedger) getMeals() []meal {
	out := make([]meal, len(l.meals))
	for i, m := range l.meals {
		out[i] = m.clone()
	}
	return out
}

func (l *mealLedger) getMeal(mealID string) (meal, error) {
	i := l.indexOf(mealID)
	if i < 0 {
		return meal{}, &NotFoundError{Entity: "meal", ID: mealID}
	}
	return l.meals[i].clone(), nil
}

// addMeal appends an empty meal with a fresh id.
func (l *mealLedger) addMeal(t mealType, at string) meal {
	m := meal{ID: l.newID(), Type: t, Time: at, Items: []mealItem{}}
	l.meals = append(l.meals, m)
	return m.clone()
}

// addItem appends a new item built from d to the meal and returns the
// updated meal.
func (l *mealLedger) addItem(mealID string, d itemDraft) (meal, error) {
	i := l.indexOf(mealID)
	if i < 0 {
		return meal{}, &NotFoundError{Entity: "meal", ID: mealID}
	}

	item := mealItem{
		ID:       l.newID(),
		Name:     d.Name,
		Calories: d.Calories,
		Protein:  d.Protein,
		Carbs:    d.Carbs,
		Fat:      d.Fat,
		Portion:  d.Portion,
		Image:    d.Image,
	}
	m := &l.meals[i]
	m.Items = append(m.Items, item)
	m.recompute()
	return m.clone(), nil
}

// removeItem drops itemID from the meal. An unknown item id leaves the meal
// unchanged; an unknown meal id is a NotFoundError.
func (l *mealLedger) removeItem(mealID, itemID string) (meal, error) {
	i := l.indexOf(mealID)
	if i < 0 {
		return meal{}, &NotFoundError{Entity: "meal", ID: mealID}
	}

	m := &l.meals[i]
	kept := make([]mealItem, 0, len(m.Items))
	for _, it := range m.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	m.Items = kept
	m.recompute()
	return m.clone(), nil
}

// dailyTotals sums every item of every meal from scratch, rounding each macro
// to the nearest integer.
func (l *mealLedger) dailyTotals() nutritionTotals {
	var calories, protein, carbs, fat float64
	for _, m := range l.meals {
		for _, it := range m.Items {
			calories += it.Calories
			protein += it.Protein
			carbs += it.Carbs
			fat += it.Fat
		}
	}
	return nutritionTotals{
		Calories: roundHalfUp(calories),
		Protein:  roundHalfUp(protein),
		Carbs:    roundHalfUp(carbs),
		Fat:      roundHalfUp(fat),
	}
}
