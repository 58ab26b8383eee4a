package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
)

// ErrInvalidRecord wraps a persisted or submitted profile that fails validation.
var ErrInvalidRecord = errors.New("invalid profile record")

const (
	profilesTable = "profiles"
	goalsTable    = "user_goals"
)

// profileStore is the persistence boundary for profile and goal records.
// Fetch* return pgx.ErrNoRows when the user has no such record yet.
type profileStore interface {
	FetchProfile(ctx context.Context, userID int) (profileRecord, error)
	FetchGoals(ctx context.Context, userID int) (goalRecord, error)
	UpsertProfile(ctx context.Context, rec profileRecord) error
	GoalID(ctx context.Context, userID int) (int, error)
	UpsertGoals(ctx context.Context, rec goalRecord) error
}

// profileCache holds loaded profiles between change events. Implementations
// log their own failures; a miss is never an error.
type profileCache interface {
	Get(ctx context.Context, userID int) (userProfile, bool)
	Set(ctx context.Context, userID int, p userProfile)
	Invalidate(ctx context.Context, userID int)
}

var profileValidator = validator.New()

// validateProfile checks the numeric ranges and enums of a parsed profile.
func validateProfile(p userProfile) error {
	if err := profileValidator.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

/* ─── Defaults and parsing ───────────────────────────────────────────── */

// defaultProfile is what a user with no stored records sees.
func defaultProfile() userProfile {
	return userProfile{
		Name:          "User",
		Age:           30,
		Weight:        70,
		Height:        170,
		Gender:        genderMale,
		ActivityLevel: activityModerate,
		Goal: userGoal{
			Type: goalWeightLoss,
			GoalTargets: GoalTargets{
				TargetCalories:         2000,
				TargetProtein:          150,
				TargetCarbs:            200,
				TargetFat:              60,
				TargetWater:            2500,
				TargetExerciseDuration: 45,
			},
		},
	}
}

// parseRecords builds a strict userProfile from nullable records. Either record
// may be nil (not yet created). Null fields take the default; enum values
// outside the allowed set are replaced by the default with a warning; the
// result must then pass validateProfile.
func parseRecords(userID int, pr *profileRecord, gr *goalRecord) (userProfile, error) {
	p := defaultProfile()

	if pr != nil {
		if pr.Name != nil && *pr.Name != "" {
			p.Name = *pr.Name
		}
		setIfPresent(&p.Age, pr.Age)
		setIfPresent(&p.Weight, pr.Weight)
		setIfPresent(&p.Height, pr.Height)
		if pr.Gender != nil {
			if g := gender(*pr.Gender); g.valid() {
				p.Gender = g
			} else {
				log.Printf("[parseRecords] user %d: invalid gender %q, defaulting to %q", userID, *pr.Gender, p.Gender)
			}
		}
		if pr.ActivityLevel != nil {
			if a := activityLevel(*pr.ActivityLevel); a.valid() {
				p.ActivityLevel = a
			} else {
				log.Printf("[parseRecords] user %d: invalid activity level %q, defaulting to %q", userID, *pr.ActivityLevel, p.ActivityLevel)
			}
		}
	}

	if gr != nil {
		if gr.Type != nil {
			if t := goalType(*gr.Type); t.valid() {
				p.Goal.Type = t
			} else {
				log.Printf("[parseRecords] user %d: invalid goal type %q, defaulting to %q", userID, *gr.Type, p.Goal.Type)
			}
		}
		setIfPresent(&p.Goal.TargetCalories, gr.TargetCalories)
		setIfPresent(&p.Goal.TargetProtein, gr.TargetProtein)
		setIfPresent(&p.Goal.TargetCarbs, gr.TargetCarbs)
		setIfPresent(&p.Goal.TargetFat, gr.TargetFat)
		setIfPresent(&p.Goal.TargetWater, gr.TargetWater)
		setIfPresent(&p.Goal.TargetExerciseDuration, gr.TargetExerciseDuration)
	}

	if err := validateProfile(p); err != nil {
		return userProfile{}, fmt.Errorf("user %d: %w", userID, err)
	}
	return p, nil
}

func setIfPresent[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// toRecords is the inverse of parseRecords. goalID is 0 when no goal row exists.
func toRecords(userID, goalID int, p userProfile) (profileRecord, goalRecord) {
	name := p.Name
	g := string(p.Gender)
	level := string(p.ActivityLevel)
	t := string(p.Goal.Type)
	targets := p.Goal.GoalTargets

	return profileRecord{
			ID:            userID,
			Name:          &name,
			Gender:        &g,
			Age:           &p.Age,
			Weight:        &p.Weight,
			Height:        &p.Height,
			ActivityLevel: &level,
		}, goalRecord{
			ID:                     goalID,
			UserID:                 userID,
			Type:                   &t,
			TargetCalories:         &targets.TargetCalories,
			TargetProtein:          &targets.TargetProtein,
			TargetCarbs:            &targets.TargetCarbs,
			TargetFat:              &targets.TargetFat,
			TargetWater:            &targets.TargetWater,
			TargetExerciseDuration: &targets.TargetExerciseDuration,
		}
}

/* ─── Adapter ────────────────────────────────────────────────────────── */

// profileSync translates between stored records and userProfile, and relays
// external changes to the user's records.
type profileSync struct {
	store   profileStore
	feed    changeSource
	cache   profileCache // optional
	timeout time.Duration
}

// newProfileSync wires the adapter. With a cache, it subscribes for the life of
// the process to every profiles and user_goals change so cached entries are
// dropped whether or not the user has a live subscriber.
func newProfileSync(store profileStore, feed changeSource, cache profileCache, timeout time.Duration) *profileSync {
	s := &profileSync{store: store, feed: feed, cache: cache, timeout: timeout}
	if cache != nil {
		invalidate := func(e changeEvent) {
			if e.UserID != 0 {
				cache.Invalidate(context.Background(), e.UserID)
			}
		}
		feed.Subscribe(changeFilter{Table: profilesTable}, invalidate)
		feed.Subscribe(changeFilter{Table: goalsTable}, invalidate)
	}
	return s
}

// load fetches and parses the user's profile and goals. A missing record is
// filled with defaults; a failing fetch is returned as an error.
func (s *profileSync) load(ctx context.Context, userID int) (userProfile, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(ctx, userID); ok {
			return p, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var pr *profileRecord
	rec, err := s.store.FetchProfile(ctx, userID)
	switch {
	case err == nil:
		pr = &rec
	case errors.Is(err, pgx.ErrNoRows):
		log.Printf("[profileSync.load] user %d has no profile record, using defaults", userID)
	default:
		return userProfile{}, fmt.Errorf("fetch profile: %w", err)
	}

	var gr *goalRecord
	goals, err := s.store.FetchGoals(ctx, userID)
	switch {
	case err == nil:
		gr = &goals
	case errors.Is(err, pgx.ErrNoRows):
		log.Printf("[profileSync.load] user %d has no goals record, using defaults", userID)
	default:
		return userProfile{}, fmt.Errorf("fetch goals: %w", err)
	}

	p, err := parseRecords(userID, pr, gr)
	if err != nil {
		return userProfile{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, userID, p)
	}
	return p, nil
}

// save upserts the profile row by user id, then the goal row: inserted when
// the user has none, updated in place otherwise.
func (s *profileSync) save(ctx context.Context, userID int, p userProfile) error {
	if err := validateProfile(p); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if s.cache != nil {
		defer s.cache.Invalidate(context.WithoutCancel(ctx), userID)
	}

	goalID, err := s.store.GoalID(ctx, userID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("look up goal: %w", err)
	}

	pr, gr := toRecords(userID, goalID, p)
	if err := s.store.UpsertProfile(ctx, pr); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	if err := s.store.UpsertGoals(ctx, gr); err != nil {
		return fmt.Errorf("upsert goals: %w", err)
	}
	return nil
}

// onExternalChange calls callback whenever the user's profile or goals row
// changes, whoever made the change. Our own saves fire it too. The cache
// subscription from newProfileSync is older than any callback's, so the cached
// copy is already gone when callback reloads.
func (s *profileSync) onExternalChange(userID int, callback func(changeEvent)) (unsubscribe func()) {
	unsubProfile := s.feed.Subscribe(changeFilter{Table: profilesTable, UserID: userID}, callback)
	unsubGoals := s.feed.Subscribe(changeFilter{Table: goalsTable, UserID: userID}, callback)
	return func() {
		unsubProfile()
		unsubGoals()
	}
}
