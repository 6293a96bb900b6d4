package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MinQuestionsFloor is the lowest activation threshold an operator may configure.
const MinQuestionsFloor = 10

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"` // draft retention past an attempt's deadline; unset keeps drafts until submit
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Evaluator struct {
		BaseURL                 string `yaml:"base_url"`
		Timeout                 string `yaml:"timeout"`
		Retries                 int    `yaml:"retries"`
		Backoff                 string `yaml:"backoff"`
		CircuitFailureThreshold int    `yaml:"circuit_failure_threshold"`
		CircuitReset            string `yaml:"circuit_reset"`
	} `yaml:"evaluator"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Assessment struct {
		CacheTTL     string `yaml:"cache_ttl"`
		MinQuestions int    `yaml:"min_questions"`
		RunLimit     int    `yaml:"run_limit"`
		RunWindow    string `yaml:"run_window"`
		SubmitRetry  string `yaml:"submit_retry"`
	} `yaml:"assessment"`
	Directory struct {
		PlacementOffice []string            `yaml:"placement_office"`
		Recruiters      map[string][]string `yaml:"recruiters"`
	} `yaml:"directory"`
}

// Load reads YAML config from path. A missing file yields an empty config so the service can run on
// in-memory adapters; PLACEMENT_JWT_SECRET overrides the file's secret.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if v := os.Getenv("PLACEMENT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	return cfg, nil
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Assessment.MinQuestions != 0 && c.Assessment.MinQuestions < MinQuestionsFloor {
		return fmt.Errorf("assessment.min_questions must be at least %d", MinQuestionsFloor)
	}
	if c.Redis.TTL != "" {
		d, err := time.ParseDuration(c.Redis.TTL)
		if err != nil || d < time.Hour {
			return errors.New("redis.ttl must be a duration of at least 1h")
		}
	}
	if c.Assessment.RunLimit < 0 {
		return errors.New("assessment.run_limit must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
