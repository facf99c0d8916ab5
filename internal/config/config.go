// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// API listen address
	Addr string
	// Metrics listen address
	MetricsAddr string
	// Postgres connection string; empty means in-memory dev store
	DatabaseURL string
	// Redis address for the session store; empty means in-memory dev store
	RedisAddr string
	// Directory for stored bytes
	FolderPath string
	// Derivative widths generated per image
	DerivativeWidths []int
	// Page size for listings
	PageSize int
	// Worker poll interval
	PollInterval time.Duration
	// Bounded retry count for transient pipeline failures
	MaxRetries int
	// Development mode: colored logs, in-memory fallbacks allowed
	Dev bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:        getEnv("FV_ADDR", ":8080"),
		MetricsAddr: getEnv("FV_METRICS_ADDR", ":9090"),
		DatabaseURL: os.Getenv("FV_DATABASE_URL"),
		RedisAddr:   os.Getenv("FV_REDIS_ADDR"),
		FolderPath:  getEnv("FV_FOLDER_PATH", "/tmp/files_manager"),
		Dev:         os.Getenv("FV_DEV") == "true",
	}

	widths, err := getEnvInts("FV_DERIVATIVE_SIZES", []int{500, 250, 100})
	if err != nil {
		return nil, fmt.Errorf("FV_DERIVATIVE_SIZES: %w", err)
	}
	cfg.DerivativeWidths = widths

	pageSize, err := getEnvInt("FV_PAGE_SIZE", 20)
	if err != nil {
		return nil, fmt.Errorf("FV_PAGE_SIZE: %w", err)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("FV_PAGE_SIZE must be positive, got %d", pageSize)
	}
	cfg.PageSize = pageSize

	poll, err := getEnvDuration("FV_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FV_POLL_INTERVAL: %w", err)
	}
	cfg.PollInterval = poll

	retries, err := getEnvInt("FV_MAX_RETRIES", 5)
	if err != nil {
		return nil, fmt.Errorf("FV_MAX_RETRIES: %w", err)
	}
	cfg.MaxRetries = retries

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvInts(key string, fallback []int) ([]int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
