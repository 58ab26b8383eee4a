package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com"

// config is the server's runtime configuration, read from the environment
// (optionally seeded from .env by godotenv).
type config struct {
	DBURL            string
	RedisURL         string // empty disables the profile cache
	Port             string
	ProfileIOTimeout time.Duration
	OpenAIKey        string
	OpenAIBaseURL    string
	AllowedOrigins   []string
}

// configError names the variable that failed validation.
type configError struct {
	Field   string
	Message string
}

func (e configError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// loadConfig reads and validates the environment. Every problem is reported,
// not just the first.
func loadConfig() (*config, error) {
	cfg := &config{
		DBURL:            os.Getenv("DB_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		Port:             envOr("PORT", "3000"),
		ProfileIOTimeout: 5 * time.Second,
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:    strings.TrimSuffix(envOr("OPENAI_BASE_URL", defaultOpenAIBaseURL), "/"),
		AllowedOrigins:   splitList(envOr("ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	var errs []error
	if cfg.DBURL == "" {
		errs = append(errs, configError{"DB_URL", "is required"})
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		errs = append(errs, configError{"PORT", "must be a number"})
	}
	if raw := os.Getenv("PROFILE_IO_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, configError{"PROFILE_IO_TIMEOUT", "must be a positive duration like 5s"})
		} else {
			cfg.ProfileIOTimeout = d
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		errs = append(errs, configError{"ALLOWED_ORIGINS", "must list at least one origin"})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
