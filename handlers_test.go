package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

/* ─── Fakes ──────────────────────────────────────────────────────────── */

// memProfileStore is an in-memory profileStore. Setting err makes every call fail.
type memProfileStore struct {
	mu         sync.Mutex
	profiles   map[int]profileRecord
	goals      map[int]goalRecord
	nextGoalID int
	err        error
}

func newMemProfileStore() *memProfileStore {
	return &memProfileStore{profiles: map[int]profileRecord{}, goals: map[int]goalRecord{}, nextGoalID: 1}
}

func (s *memProfileStore) FetchProfile(_ context.Context, userID int) (profileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return profileRecord{}, s.err
	}
	r, ok := s.profiles[userID]
	if !ok {
		return profileRecord{}, pgx.ErrNoRows
	}
	return r, nil
}

func (s *memProfileStore) FetchGoals(_ context.Context, userID int) (goalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return goalRecord{}, s.err
	}
	r, ok := s.goals[userID]
	if !ok {
		return goalRecord{}, pgx.ErrNoRows
	}
	return r, nil
}

func (s *memProfileStore) UpsertProfile(_ context.Context, rec profileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.profiles[rec.ID] = rec
	return nil
}

func (s *memProfileStore) GoalID(_ context.Context, userID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	r, ok := s.goals[userID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return r.ID, nil
}

func (s *memProfileStore) UpsertGoals(_ context.Context, rec goalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if rec.ID == 0 {
		rec.ID = s.nextGoalID
		s.nextGoalID++
	}
	s.goals[rec.UserID] = rec
	return nil
}

// fakeSessions maps usernames to users and tokens to user ids.
type fakeSessions struct {
	mu     sync.Mutex
	users  map[string]user
	tokens map[string]int
}

func (f *fakeSessions) UserByUsername(_ context.Context, username string) (user, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return user{}, pgx.ErrNoRows
	}
	return u, nil
}

func (f *fakeSessions) UserIDByToken(_ context.Context, token string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokens[token]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	return id, nil
}

func (f *fakeSessions) RotateToken(_ context.Context, userID int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, id := range f.tokens {
		if id == userID {
			delete(f.tokens, tok)
		}
	}
	next := fmt.Sprintf("rotated-%d", userID)
	f.tokens[next] = userID
	return next, nil
}

/* ─── Fixture ────────────────────────────────────────────────────────── */

const testToken = "tok-1"

// testNow is a Wednesday.
var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type apiFixture struct {
	h      *Handler
	router *gin.Engine
	store  *memProfileStore
	feed   *changeFeed
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	store := newMemProfileStore()
	feed := newChangeFeed(nil)
	h := &Handler{
		sessions: &fakeSessions{
			users:  map[string]user{"ana": {ID: 1, Username: "ana", Password: string(hash), AuthToken: testToken}},
			tokens: map[string]int{testToken: 1, "tok-2": 2},
		},
		profiles: newProfileSync(store, feed, nil, time.Second),
		days:     newDailyLogRegistry(),
		hub:      newRealtimeHub(),
		now:      func() time.Time { return testNow },
	}
	router := gin.New()
	h.registerRoutes(router)
	return &apiFixture{h: h, router: router, store: store, feed: feed}
}

// do sends an authenticated request as user 1 unless token is overridden.
func (f *apiFixture) do(method, path, body string, token ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	tok := testToken
	if len(token) > 0 {
		tok = token[0]
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

/* ─── Auth ───────────────────────────────────────────────────────────── */

func TestAuth_MissingHeader(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_UnknownToken(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/profile", "", "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/login", `{"username":"ana","password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testToken, decode[map[string]any](t, w)["token"])

	for _, body := range []string{
		`{"username":"ana","password":"wrong"}`,
		`{"username":"bob","password":"hunter2"}`,
	} {
		assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/api/login", body, "").Code)
	}
}

func TestLogout_RotatesToken(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/profile", "").Code)
}

/* ─── Profile ────────────────────────────────────────────────────────── */

func TestGetProfile_DefaultsForNewUser(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultProfile(), decode[userProfile](t, w))
}

func TestGetProfile_StoreDownIsBadGateway(t *testing.T) {
	f := newAPIFixture(t)
	f.store.err = errors.New("connection refused")
	w := f.do(http.MethodGet, "/api/profile", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestPatchProfile_GoalChangeRecomputesAndPersists(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/api/profile", `{"goalType":"maintenance"}`).Code)

	w := f.do(http.MethodPatch, "/api/profile", `{"goalType":"muscle-gain"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[userProfile](t, w)
	assert.Equal(t, goalMuscleGain, got.Goal.Type)
	assert.Equal(t, 2758, got.Goal.TargetCalories)

	// Reload from the store.
	reloaded := decode[userProfile](t, f.do(http.MethodGet, "/api/profile", ""))
	assert.Equal(t, got, reloaded)
	assert.Len(t, f.store.goals, 1)
}

func TestPatchProfile_InvalidEnum(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodPatch, "/api/profile", `{"activityLevel":"very_active"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPutProfile(t *testing.T) {
	f := newAPIFixture(t)
	p := defaultProfile()
	p.Name = "Ana"
	p.Weight = 61.5
	body, _ := json.Marshal(p)

	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/api/profile", string(body)).Code)
	assert.Equal(t, p, decode[userProfile](t, f.do(http.MethodGet, "/api/profile", "")))

	p.Age = 0
	body, _ = json.Marshal(p)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/api/profile", string(body)).Code)
}

func TestPreviewTargets(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodPost, "/api/profile/targets",
		`{"weight":75,"height":178,"age":32,"gender":"male","activityLevel":"moderate","goalType":"weight-loss"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, GoalTargets{2118, 165, 232, 59, 2625, 60}, decode[GoalTargets](t, w))

	w = f.do(http.MethodPost, "/api/profile/targets", `{"weight":0,"height":178,"age":32,"goalType":"health"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/profile/targets",
		`{"weight":75,"height":178,"age":32,"gender":"male","activityLevel":"moderat","goalType":"health"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "activityLevel")
}

/* ─── Day ────────────────────────────────────────────────────────────── */

func TestDay_AddAndRemoveItem(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/day/meals/breakfast/items",
		`{"name":"Banana","calories":95,"protein":0.5,"carbs":25,"fat":0.3,"portion":"1 medium"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	m := decode[meal](t, w)
	require.Len(t, m.Items, 1)
	assert.Equal(t, 95.0, m.TotalCalories)
	assert.Equal(t, 0.5, m.TotalProtein)
	assert.Equal(t, 25.0, m.TotalCarbs)
	assert.Equal(t, 0.3, m.TotalFat)

	day := decode[dayResponse](t, f.do(http.MethodGet, "/api/day", ""))
	assert.Equal(t, "2026-10-14", day.Day.Date)
	assert.Equal(t, 95, day.Day.CaloriesConsumed)
	assert.Equal(t, nutritionTotals{Calories: 95, Protein: 1, Carbs: 25, Fat: 0}, day.Totals)
	assert.Equal(t, 5, day.Progress.Calories.Percent)
	assert.Equal(t, 2000, day.Goal.TargetCalories)

	w = f.do(http.MethodDelete, "/api/day/meals/breakfast/items/"+m.Items[0].ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	m = decode[meal](t, w)
	assert.Empty(t, m.Items)
	assert.Zero(t, m.TotalCalories+m.TotalProtein+m.TotalCarbs+m.TotalFat)

	totals := decode[nutritionTotals](t, f.do(http.MethodGet, "/api/day/totals", ""))
	assert.Equal(t, nutritionTotals{}, totals)
}

func TestDay_ScopedByDateAndUser(t *testing.T) {
	f := newAPIFixture(t)
	body := `{"name":"Toast","calories":80}`
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/meals/breakfast/items?date=2026-10-13", body).Code)

	assert.Equal(t, 0, decode[nutritionTotals](t, f.do(http.MethodGet, "/api/day/totals", "")).Calories)
	assert.Equal(t, 80, decode[nutritionTotals](t, f.do(http.MethodGet, "/api/day/totals?date=2026-10-13", "")).Calories)
	assert.Equal(t, 0, decode[nutritionTotals](t, f.do(http.MethodGet, "/api/day/totals?date=2026-10-13", "", "tok-2")).Calories)
}

func TestDay_Errors(t *testing.T) {
	f := newAPIFixture(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown meal on add", http.MethodPost, "/api/day/meals/brunch/items", `{"name":"Eggs","calories":150}`, http.StatusNotFound},
		{"unknown meal on remove", http.MethodDelete, "/api/day/meals/brunch/items/x", "", http.StatusNotFound},
		{"unknown item is a no-op", http.MethodDelete, "/api/day/meals/lunch/items/x", "", http.StatusOK},
		{"missing name", http.MethodPost, "/api/day/meals/lunch/items", `{"calories":150}`, http.StatusBadRequest},
		{"negative macro", http.MethodPost, "/api/day/meals/lunch/items", `{"name":"X","fat":-1}`, http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/day?date=14-10-2026", "", http.StatusBadRequest},
		{"zero water", http.MethodPost, "/api/day/water", `{"amount":0}`, http.StatusBadRequest},
		{"bad exercise category", http.MethodPost, "/api/day/exercises", `{"name":"Run","category":"running","duration":30}`, http.StatusBadRequest},
		{"bad meal type", http.MethodPost, "/api/day/meals", `{"type":"brunch"}`, http.StatusBadRequest},
		{"bad meal time", http.MethodPost, "/api/day/meals", `{"type":"snack","time":"25:00"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
}

func TestDay_WaterExerciseAndProgress(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/api/day/water", `{"amount":500}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "09:30", decode[waterIntake](t, w).Timestamp)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/water", `{"amount":750}`).Code)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/exercises",
		`{"name":"Cycling","category":"cardio","duration":45,"caloriesBurned":320}`).Code)

	day := decode[dayResponse](t, f.do(http.MethodGet, "/api/day", ""))
	assert.Equal(t, 1250, day.Day.WaterIntake)
	assert.Len(t, day.Day.CompletedWaterIntakes, 2)
	assert.Equal(t, 50, day.Progress.Water.Percent)
	assert.Equal(t, 100, day.Progress.Exercise.Percent)
	assert.Equal(t, 2000+320, day.Progress.RemainingCalories)
}

func TestDay_AddMeal(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodPost, "/api/day/meals", `{"type":"snack","time":"21:15"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	m := decode[meal](t, w)
	assert.Equal(t, "21:15", m.Time)

	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/meals/"+m.ID+"/items", `{"name":"Tea","calories":2}`).Code)
	day := decode[dayResponse](t, f.do(http.MethodGet, "/api/day", ""))
	assert.Len(t, day.Day.Meals, 5)
}

func TestWeekProgress(t *testing.T) {
	f := newAPIFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/meals/lunch/items?date=2026-10-13", `{"name":"Salad","calories":420}`).Code)

	var resp struct {
		WeekStart string           `json:"week_start"`
		Days      []weekDaySummary `json:"days"`
	}
	w := f.do(http.MethodGet, "/api/progress/week?week_start=2026-10-15", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "2026-10-12", resp.WeekStart)
	require.Len(t, resp.Days, 7)
	assert.False(t, resp.Days[0].HasData)
	assert.True(t, resp.Days[1].HasData)
	assert.Equal(t, 420, resp.Days[1].Calories)
	assert.Equal(t, 2000, resp.Days[6].Target)
}

// TestWeekProgress_ClockAheadOfUTC logs on a Monday just after midnight in a
// zone ahead of UTC; the default week must be the one containing today.
func TestWeekProgress_ClockAheadOfUTC(t *testing.T) {
	f := newAPIFixture(t)
	f.h.now = func() time.Time {
		return time.Date(2026, 10, 19, 1, 0, 0, 0, time.FixedZone("UTC+5", 5*60*60))
	}
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/day/meals/breakfast/items", `{"name":"Oats","calories":300}`).Code)

	var resp struct {
		WeekStart string           `json:"week_start"`
		Days      []weekDaySummary `json:"days"`
	}
	w := f.do(http.MethodGet, "/api/progress/week", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "2026-10-19", resp.WeekStart)
	require.Len(t, resp.Days, 7)
	assert.True(t, resp.Days[0].HasData)
	assert.Equal(t, 300, resp.Days[0].Calories)
}

/* ─── Realtime ───────────────────────────────────────────────────────── */

func dialRealtime(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtimeEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var e realtimeEvent
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestRealtime_PushesProfileAndSessionEvents(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn := dialRealtime(t, srv, testToken)
	require.Eventually(t, func() bool { return f.h.hub.connected(1) == 1 }, 2*time.Second, 10*time.Millisecond)

	// Another client changes the goal row directly.
	weight := 88.0
	f.store.mu.Lock()
	f.store.profiles[1] = profileRecord{ID: 1, Weight: &weight}
	f.store.mu.Unlock()
	f.feed.publish(changeEvent{Table: profilesTable, Op: "UPDATE", UserID: 1})

	e := readEvent(t, conn)
	assert.Equal(t, eventProfileUpdated, e.Kind)
	require.NotNil(t, e.Profile)
	assert.Equal(t, 88.0, e.Profile.Weight)

	// Another user's change is not delivered; the next frame is the sign-out.
	f.feed.publish(changeEvent{Table: profilesTable, Op: "UPDATE", UserID: 2})
	require.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/logout", "").Code)
	assert.Equal(t, eventSignedOut, readEvent(t, conn).Kind)
}

func TestRealtime_RequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/realtime"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
