package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"placement-service/internal/domain"
)

var (
	ErrCircuitOpen   = errors.New("evaluator circuit open")
	ErrNotConfigured = errors.New("evaluator not configured")
)

// package-level logger for the evaluator; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by the evaluator. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Client calls the code sandbox over HTTP and adds retries, timeout and a circuit breaker.
// A timed out or failed call is always reported as an error and never counted as passing.
type Client struct {
	cfg    Config
	base   *url.URL
	client *http.Client

	// simple circuit breaker state
	failures  int32
	openUntil int64 // unix nano
	closed    int32
}

// statusError is a non-2xx sandbox reply.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("evaluator returned status %d: %s", e.code, e.body)
}

func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	u, err := url.ParseRequestURI(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	logger.Info("evaluator: client created", slog.String("base_url", cfg.BaseURL), slog.Duration("timeout", cfg.Timeout))
	return &Client{cfg: cfg, base: u, client: httpClient}, nil
}

func NewDefaultClient(cfg Config) (*Client, error) {
	defaultClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	return NewClient(cfg, defaultClient)
}

// Evaluate runs code against the request's test cases. Client errors (4xx) are not retried.
func (c *Client) Evaluate(ctx context.Context, req domain.EvaluationRequest) (domain.EvaluationResult, error) {
	if c.isCircuitOpen() {
		return domain.EvaluationResult{}, ErrCircuitOpen
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.EvaluationResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		start := time.Now()
		res, err := c.post(ctx, body)
		if err == nil {
			atomic.StoreInt32(&c.failures, 0)
			logger.Debug("evaluator: evaluated",
				slog.String("language", req.Language),
				slog.Int("passed", res.PassedCount),
				slog.Int("total", res.TotalCount),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()))
			return res, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			return domain.EvaluationResult{}, err
		}
		c.recordFailure()
		logger.Warn("evaluator: call failed", slog.Int("attempt", attempt+1), slog.Any("err", err))
		if attempt == c.cfg.Retries {
			break
		}

		// backoff
		select {
		case <-ctx.Done():
			return domain.EvaluationResult{}, ctx.Err()
		case <-time.After(c.cfg.Backoff * time.Duration(attempt+1)):
		}
		if c.isCircuitOpen() {
			return domain.EvaluationResult{}, ErrCircuitOpen
		}
	}
	return domain.EvaluationResult{}, fmt.Errorf("evaluate failed after retries: %w", lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (domain.EvaluationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := c.base.ResolveReference(&url.URL{Path: "/evaluate"})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.EvaluationResult{}, &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}
	var res domain.EvaluationResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("decode evaluation: %w", err)
	}
	return res, nil
}

func (c *Client) isCircuitOpen() bool {
	if c.cfg.CircuitFailureThreshold <= 0 || atomic.LoadInt32(&c.failures) < int32(c.cfg.CircuitFailureThreshold) {
		return false
	}
	if time.Now().UnixNano() < atomic.LoadInt64(&c.openUntil) {
		return true
	}
	// attempt half-open: reset failures and allow a request
	atomic.StoreInt32(&c.failures, 0)
	return false
}

func (c *Client) recordFailure() {
	v := atomic.AddInt32(&c.failures, 1)
	if c.cfg.CircuitFailureThreshold > 0 && v >= int32(c.cfg.CircuitFailureThreshold) {
		atomic.StoreInt64(&c.openUntil, time.Now().Add(c.cfg.CircuitReset).UnixNano())
	}
}

// Close releases idle connections held by the client. Close is idempotent.
func (c *Client) Close() error {
	if c == nil || !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	if tr, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
		tr.CloseIdleConnections()
	}
	return nil
}

// Unavailable is used when no sandbox is configured; every coding evaluation fails.
type Unavailable struct{}

func (Unavailable) Evaluate(context.Context, domain.EvaluationRequest) (domain.EvaluationResult, error) {
	return domain.EvaluationResult{}, ErrNotConfigured
}
