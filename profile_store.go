package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	profileColumns = "id, name, gender, age, weight, height, activity_level, updated_at"
	goalColumns    = "id, user_id, type, target_calories, target_protein, target_carbs, target_fat, target_water, target_exercise_duration, updated_at"
)

// pgProfileStore reads and writes the profiles and user_goals tables.
type pgProfileStore struct {
	db *pgxpool.Pool
}

var _ profileStore = (*pgProfileStore)(nil)

func newProfileStore(db *pgxpool.Pool) *pgProfileStore {
	return &pgProfileStore{db: db}
}

func (s *pgProfileStore) FetchProfile(ctx context.Context, userID int) (profileRecord, error) {
	return queryOne[profileRecord](s.db, ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE id = @userID",
		pgx.NamedArgs{"userID": userID})
}

func (s *pgProfileStore) FetchGoals(ctx context.Context, userID int) (goalRecord, error) {
	return queryOne[goalRecord](s.db, ctx,
		"SELECT "+goalColumns+" FROM user_goals WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
}

// UpsertProfile writes every column. The row is keyed by the user's id.
func (s *pgProfileStore) UpsertProfile(ctx context.Context, rec profileRecord) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO profiles (id, name, gender, age, weight, height, activity_level, updated_at)
		 VALUES (@id, @name, @gender, @age, @weight, @height, @activityLevel, now())
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   gender = EXCLUDED.gender,
		   age = EXCLUDED.age,
		   weight = EXCLUDED.weight,
		   height = EXCLUDED.height,
		   activity_level = EXCLUDED.activity_level,
		   updated_at = now()`,
		pgx.NamedArgs{
			"id":            rec.ID,
			"name":          rec.Name,
			"gender":        rec.Gender,
			"age":           rec.Age,
			"weight":        rec.Weight,
			"height":        rec.Height,
			"activityLevel": rec.ActivityLevel,
		})
	if err != nil {
		return fmt.Errorf("upsert profile %d: %w", rec.ID, err)
	}
	return nil
}

// GoalID returns the id of the user's goal row, or pgx.ErrNoRows.
func (s *pgProfileStore) GoalID(ctx context.Context, userID int) (int, error) {
	var id int
	err := s.db.QueryRow(ctx, "SELECT id FROM user_goals WHERE user_id = $1", userID).Scan(&id)
	return id, err
}

// UpsertGoals inserts the user's goal row when rec.ID is 0 and updates it by
// id otherwise. The insert still resolves a user_id conflict so two sessions
// saving a first goal at once end up with one row.
func (s *pgProfileStore) UpsertGoals(ctx context.Context, rec goalRecord) error {
	args := pgx.NamedArgs{
		"id":                     rec.ID,
		"userID":                 rec.UserID,
		"type":                   rec.Type,
		"targetCalories":         rec.TargetCalories,
		"targetProtein":          rec.TargetProtein,
		"targetCarbs":            rec.TargetCarbs,
		"targetFat":              rec.TargetFat,
		"targetWater":            rec.TargetWater,
		"targetExerciseDuration": rec.TargetExerciseDuration,
	}

	var sql string
	if rec.ID == 0 {
		sql = `INSERT INTO user_goals (user_id, type, target_calories, target_protein, target_carbs,
		         target_fat, target_water, target_exercise_duration, updated_at)
		       VALUES (@userID, @type, @targetCalories, @targetProtein, @targetCarbs,
		         @targetFat, @targetWater, @targetExerciseDuration, now())
		       ON CONFLICT (user_id) DO UPDATE SET
		         type = EXCLUDED.type,
		         target_calories = EXCLUDED.target_calories,
		         target_protein = EXCLUDED.target_protein,
		         target_carbs = EXCLUDED.target_carbs,
		         target_fat = EXCLUDED.target_fat,
		         target_water = EXCLUDED.target_water,
		         target_exercise_duration = EXCLUDED.target_exercise_duration,
		         updated_at = now()`
	} else {
		sql = `UPDATE user_goals SET
		         type = @type,
		         target_calories = @targetCalories,
		         target_protein = @targetProtein,
		         target_carbs = @targetCarbs,
		         target_fat = @targetFat,
		         target_water = @targetWater,
		         target_exercise_duration = @targetExerciseDuration,
		         updated_at = now()
		       WHERE id = @id AND user_id = @userID`
	}

	tag, err := s.db.Exec(ctx, sql, args)
	if err != nil {
		return fmt.Errorf("upsert goals for user %d: %w", rec.UserID, err)
	}
	if tag.RowsAffected() == 0 {
		// the row went away between GoalID and the update
		return fmt.Errorf("update goal %d for user %d: %w", rec.ID, rec.UserID, pgx.ErrNoRows)
	}
	return nil
}
