package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_TTL_SECONDS", "")
	t.Setenv("AI_MODELS", "")
	t.Setenv("APP_ENV", "")

	cfg := Load()
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("SessionTTL = %v, want 7 days", cfg.SessionTTL)
	}
	if cfg.S3Bucket != "grievance-files" {
		t.Fatalf("S3Bucket = %q", cfg.S3Bucket)
	}
	if len(cfg.AIModels) != len(DefaultAIModels) || cfg.AIModels[0] != "gemini-2.5-flash" {
		t.Fatalf("unexpected default models: %v", cfg.AIModels)
	}
	if cfg.IsProduction() {
		t.Fatal("expected development environment by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AI_MODELS", " model-a , ,model-b")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("AI_CALL_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("APP_BASE_URL", "https://grievance.example.com/")

	cfg := Load()
	if len(cfg.AIModels) != 2 || cfg.AIModels[0] != "model-a" || cfg.AIModels[1] != "model-b" {
		t.Fatalf("AIModels = %v", cfg.AIModels)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
	if cfg.AICallTimeout != 8*time.Second {
		t.Fatalf("AICallTimeout = %v, want fallback 8s", cfg.AICallTimeout)
	}
	if !cfg.S3UseSSL {
		t.Fatal("expected S3UseSSL")
	}
	if cfg.BaseURL != "https://grievance.example.com" {
		t.Fatalf("BaseURL = %q", cfg.BaseURL)
	}
}
