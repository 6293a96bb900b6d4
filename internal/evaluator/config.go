package evaluator

import "time"

// Config holds settings for the sandbox evaluator client.
type Config struct {
	// BaseURL is the sandbox endpoint, e.g. http://localhost:9000
	BaseURL string
	// Timeout is the per-request timeout
	Timeout time.Duration
	// Retries is number of retry attempts for transient failures
	Retries int
	// Backoff is the base backoff between retries
	Backoff time.Duration
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration
}

// DefaultConfig returns the settings used when the config file leaves a field empty.
func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:9000",
		Timeout:                 10 * time.Second,
		Retries:                 2,
		Backoff:                 300 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}
