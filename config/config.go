package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration for the chat client.
type Config struct {
	API     APIConfig
	Audio   AudioConfig
	Gesture GestureConfig
	LogPath string
}

type APIConfig struct {
	BaseURL string
	// Token is forwarded as a bearer token. Authentication itself belongs to
	// whatever sits in front of the backend.
	Token   string
	Timeout time.Duration
}

type AudioConfig struct {
	Format string
	Device string
}

type GestureConfig struct {
	CancelDistance float64
}

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultFormat         = "flac"
	DefaultCancelDistance = 8
	DefaultTimeout        = 60 * time.Second
)

// Load reads an optional env file and resolves configuration from the
// environment. Missing env files are not an error.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Config{
		API: APIConfig{
			BaseURL: strings.TrimRight(envOrDefault("ECOCHAT_API_URL", DefaultBaseURL), "/"),
			Token:   strings.TrimSpace(os.Getenv("ECOCHAT_API_TOKEN")),
			Timeout: envOrDefaultDuration("ECOCHAT_REQUEST_TIMEOUT", DefaultTimeout),
		},
		Audio: AudioConfig{
			Format: strings.ToLower(envOrDefault("ECOCHAT_AUDIO_FORMAT", DefaultFormat)),
			Device: strings.TrimSpace(os.Getenv("ECOCHAT_DEVICE")),
		},
		Gesture: GestureConfig{
			CancelDistance: envOrDefaultFloat("ECOCHAT_CANCEL_DISTANCE", DefaultCancelDistance),
		},
		LogPath: strings.TrimSpace(os.Getenv("ECOCHAT_LOG_PATH")),
	}

	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = DefaultTimeout
	}
	if cfg.Gesture.CancelDistance <= 0 {
		cfg.Gesture.CancelDistance = DefaultCancelDistance
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid ECOCHAT_API_URL %q: %w", c.API.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid ECOCHAT_API_URL %q: scheme must be http or https", c.API.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid ECOCHAT_API_URL %q: missing host", c.API.BaseURL)
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// envOrDefaultDuration accepts Go durations ("45s") or bare seconds ("45").
func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
