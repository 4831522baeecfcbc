package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ECOCHAT_API_URL",
		"ECOCHAT_API_TOKEN",
		"ECOCHAT_REQUEST_TIMEOUT",
		"ECOCHAT_AUDIO_FORMAT",
		"ECOCHAT_DEVICE",
		"ECOCHAT_CANCEL_DISTANCE",
		"ECOCHAT_LOG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func missingEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.API.BaseURL != DefaultBaseURL {
		t.Fatalf("unexpected base url: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Fatalf("unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.Audio.Format != DefaultFormat {
		t.Fatalf("unexpected format: %q", cfg.Audio.Format)
	}
	if cfg.Gesture.CancelDistance != DefaultCancelDistance {
		t.Fatalf("unexpected cancel distance: %v", cfg.Gesture.CancelDistance)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("ECOCHAT_API_URL", "https://chat.example.com/api/")
	t.Setenv("ECOCHAT_API_TOKEN", " secret ")
	t.Setenv("ECOCHAT_REQUEST_TIMEOUT", "15")
	t.Setenv("ECOCHAT_AUDIO_FORMAT", "WAV")
	t.Setenv("ECOCHAT_CANCEL_DISTANCE", "60")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://chat.example.com/api" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.API.BaseURL)
	}
	if cfg.API.Token != "secret" {
		t.Fatalf("unexpected token: %q", cfg.API.Token)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.Audio.Format != "wav" {
		t.Fatalf("unexpected format: %q", cfg.Audio.Format)
	}
	if cfg.Gesture.CancelDistance != 60 {
		t.Fatalf("unexpected cancel distance: %v", cfg.Gesture.CancelDistance)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("ECOCHAT_API_URL")
	os.Unsetenv("ECOCHAT_REQUEST_TIMEOUT")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "ECOCHAT_API_URL=http://10.0.0.5:8000\nECOCHAT_REQUEST_TIMEOUT=90s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("ECOCHAT_API_URL")
		os.Unsetenv("ECOCHAT_REQUEST_TIMEOUT")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.API.BaseURL != "http://10.0.0.5:8000" {
		t.Fatalf("env file value not applied: %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 90*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.API.Timeout)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ECOCHAT_REQUEST_TIMEOUT", "soon")
	t.Setenv("ECOCHAT_CANCEL_DISTANCE", "-4")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.API.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", cfg.API.Timeout)
	}
	if cfg.Gesture.CancelDistance != DefaultCancelDistance {
		t.Fatalf("expected default cancel distance, got %v", cfg.Gesture.CancelDistance)
	}
}

func TestValidateRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"localhost:8000", "ftp://example.com", "http://"} {
		cfg := Config{API: APIConfig{BaseURL: raw}}
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}
