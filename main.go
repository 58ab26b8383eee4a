package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	log.SetPrefix("lg/wellness-go-api: ")
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)

	// .env is optional in deployed environments where variables are injected.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := getDBPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("Database: %v", err)
	}
	defer pool.Close()

	var cache profileCache
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			// The cache is an optimisation; run without it.
			log.Printf("Redis unavailable, profile cache disabled: %v", err)
		} else {
			defer client.Close()
			cache = newRedisProfileCache(client)
		}
	}

	feed := newChangeFeed(pool)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[changeFeed] stopped: %v", err)
		}
	}()

	h := &Handler{
		sessions:      newSessionStore(pool),
		profiles:      newProfileSync(newProfileStore(pool), feed, cache, cfg.ProfileIOTimeout),
		days:          newDailyLogRegistry(),
		hub:           newRealtimeHub(),
		openAIBaseURL: cfg.OpenAIBaseURL,
		openAIKey:     cfg.OpenAIKey,
	}

	router := gin.Default()
	router.SetTrustedProxies(nil)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	h.registerRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
