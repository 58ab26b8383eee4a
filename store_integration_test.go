package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// requireDocker skips container-backed tests under -short or without docker.
func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in -short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed, skipping container-based test")
	}
}

func terminateOnCleanup(t *testing.T, c testcontainers.Container) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Terminate(ctx); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})
}

// startPostgres runs postgres:16-alpine, applies db/*.sql in order and returns a pool.
func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "wellness",
				"POSTGRES_PASSWORD": "wellness",
				"POSTGRES_DB":       "wellness",
			},
			// The ready line is printed twice: once for the init server, once for the real one.
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start postgres container")
	terminateOnCleanup(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := getDBPool(ctx, fmt.Sprintf("postgres://wellness:wellness@%s:%s/wellness?sslmode=disable", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	files, err := filepath.Glob(filepath.Join("db", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "migration %s", f)
	}
	return pool
}

func startRedis(t *testing.T, ctx context.Context) *redis.Client {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	terminateOnCleanup(t, container)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := newRedisClient(fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// TestProfileSync_Postgres exercises the pgx store, the LISTEN/NOTIFY change
// feed and the redis cache against real servers.
func TestProfileSync_Postgres(t *testing.T) {
	requireDocker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := startPostgres(t, ctx)
	rdb := startRedis(t, ctx)

	var userID int
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (username, email, password, auth_token)
		 VALUES ('ana', 'ana@example.com', 'x', 'tok') RETURNING id`).Scan(&userID))

	feed := newChangeFeed(pool)
	go feed.Run(ctx)
	require.Eventually(t, func() bool {
		var n int
		err := pool.QueryRow(ctx,
			"SELECT count(*) FROM pg_stat_activity WHERE query = 'LISTEN "+changeChannel+"'").Scan(&n)
		return err == nil && n == 1
	}, 10*time.Second, 50*time.Millisecond, "change feed never started listening")

	cache := newRedisProfileCache(rdb)
	s := newProfileSync(newProfileStore(pool), feed, cache, 5*time.Second)

	// No rows yet: defaults, and the result is cached.
	p, err := s.load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, defaultProfile(), p)
	assert.EqualValues(t, 1, rdb.Exists(ctx, profileCacheKey(userID)).Val())

	events := make(chan changeEvent, 8)
	unsubscribe := s.onExternalChange(userID, func(e changeEvent) { events <- e })
	defer unsubscribe()

	p.Name = "Ana"
	p.Weight = 64.5
	p = applyGoalType(p, goalMuscleGain)
	require.NoError(t, s.save(ctx, userID, p))
	assert.EqualValues(t, 0, rdb.Exists(ctx, profileCacheKey(userID)).Val())

	seen := map[string]string{}
	for len(seen) < 2 {
		select {
		case e := <-events:
			assert.Equal(t, userID, e.UserID)
			seen[e.Table] = e.Op
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for change events, got %v", seen)
		}
	}
	assert.Equal(t, map[string]string{profilesTable: "INSERT", goalsTable: "INSERT"}, seen)

	loaded, err := s.load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	// A second save updates the goal row in place.
	firstGoalID, err := s.store.GoalID(ctx, userID)
	require.NoError(t, err)
	p.Goal.TargetCalories = 2600
	require.NoError(t, s.save(ctx, userID, p))

	secondGoalID, err := s.store.GoalID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, firstGoalID, secondGoalID)

	var goalRows int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM user_goals WHERE user_id = $1", userID).Scan(&goalRows))
	assert.Equal(t, 1, goalRows)

	loaded, err = s.load(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2600, loaded.Goal.TargetCalories)

	// An update aimed at a goal row deleted after GoalID must not report success.
	_, err = pool.Exec(ctx, "DELETE FROM user_goals WHERE id = $1", secondGoalID)
	require.NoError(t, err)
	_, gr := toRecords(userID, secondGoalID, p)
	err = s.store.UpsertGoals(ctx, gr)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
