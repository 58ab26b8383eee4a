package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	sessions      sessionStore
	profiles      *profileSync
	days          *dailyLogRegistry
	hub           *realtimeHub
	openAIBaseURL string // Base URL for OpenAI API (overridable for tests)
	openAIKey     string
	now           func() time.Time
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
// pgx.ErrNoRows is returned unlogged: callers treat it as "no record yet".
func queryOne[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// clock returns the handler's current time; tests pin it through h.now.
func (h *Handler) clock() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *Handler) today() string {
	return h.clock().Format("2006-01-02")
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool. We use a pool (not a single conn) because
// managed Postgres providers close idle connections after a few minutes.
func getDBPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DB URL: %w", err)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from a server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("DB pool ready!")
	return pool, nil
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Public routes
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.POST("/logout", h.logout)
	api.GET("/profile", h.getProfile)
	api.PUT("/profile", h.putProfile)
	api.PATCH("/profile", h.patchProfile)
	api.POST("/profile/targets", h.previewTargets)
	api.GET("/day", h.getDay)
	api.POST("/day/meals", h.addMeal)
	api.POST("/day/meals/:mealId/items", h.addMealItem)
	api.DELETE("/day/meals/:mealId/items/:itemId", h.removeMealItem)
	api.GET("/day/totals", h.getDayTotals)
	api.POST("/day/water", h.logWater)
	api.POST("/day/exercises", h.logExercise)
	api.GET("/progress/week", h.getWeekProgress)
	api.POST("/food/suggest", h.suggestFood)
	api.GET("/realtime", h.realtime)
}
