package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadReadsSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  port: "9090"
redis:
  addr: localhost:6379
  ttl: 72h
evaluator:
  base_url: http://sandbox:9000
  timeout: 5s
  retries: 3
auth:
  jwt_secret: file-secret
assessment:
  cache_ttl: 2m
  run_limit: 20
  run_window: 1m
directory:
  placement_office: [po-1, po-2]
  recruiters:
    job-1: [rec-1]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Redis.Addr != "localhost:6379" || cfg.Evaluator.Retries != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Directory.PlacementOffice) != 2 || cfg.Directory.Recruiters["job-1"][0] != "rec-1" {
		t.Fatalf("unexpected directory: %+v", cfg.Directory)
	}
	if got := TTLDuration(cfg.Assessment.CacheTTL, time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m cache ttl, got %v", got)
	}
	if got := TTLDuration(cfg.Redis.TTL, 0); got != 72*time.Hour {
		t.Fatalf("expected 72h draft retention, got %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateBounds(t *testing.T) {
	base := Config{}
	base.Auth.JWTSecret = "secret"

	low := base
	low.Assessment.MinQuestions = 5
	if err := low.Validate(); err == nil {
		t.Fatalf("expected an activation threshold below 10 to be rejected")
	}
	high := base
	high.Assessment.MinQuestions = 12
	if err := high.Validate(); err != nil {
		t.Fatalf("expected 12 to be accepted: %v", err)
	}

	for _, ttl := range []string{"10m", "forever"} {
		short := base
		short.Redis.TTL = ttl
		if err := short.Validate(); err == nil {
			t.Fatalf("expected redis.ttl %q to be rejected", ttl)
		}
	}
}

func TestLoadMissingFileUsesEnvSecret(t *testing.T) {
	t.Setenv("PLACEMENT_JWT_SECRET", "env-secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Fatalf("expected env secret, got %q", cfg.Auth.JWTSecret)
	}
}

func TestValidateRequiresSecret(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error without jwt secret")
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for empty, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for garbage, got %v", got)
	}
}
