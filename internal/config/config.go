package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL          = "https://api.resonite.com"
	defaultRefreshInterval = 10 * time.Second
	defaultConnectAttempts = 5
	defaultRetryDelay      = 5 * time.Second
)

type Config struct {
	APIURL          string
	HubURL          string
	RefreshInterval time.Duration
	ConnectAttempts int
	RetryDelay      time.Duration
}

// Load reads configuration from the environment, after an optional .env file.
// A missing .env is fine; malformed values are not.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		APIURL:          defaultAPIURL,
		RefreshInterval: defaultRefreshInterval,
		ConnectAttempts: defaultConnectAttempts,
		RetryDelay:      defaultRetryDelay,
	}

	if v := os.Getenv("RESONITE_API_URL"); v != "" {
		cfg.APIURL = v
	}
	cfg.HubURL = cfg.APIURL + "/hub"
	if v := os.Getenv("RESONITE_HUB_URL"); v != "" {
		cfg.HubURL = v
	}

	if v := os.Getenv("SESSION_REFRESH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("SESSION_REFRESH_INTERVAL: %w", err)
		}
		cfg.RefreshInterval = d
	}

	if v := os.Getenv("CONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("CONNECT_ATTEMPTS: invalid value %q", v)
		}
		cfg.ConnectAttempts = n
	}

	if v := os.Getenv("CONNECT_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("CONNECT_RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = d
	}

	return cfg, nil
}
