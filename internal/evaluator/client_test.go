package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"placement-service/internal/domain"
)

func testConfig(url string) Config {
	return Config{BaseURL: url, Timeout: 2 * time.Second, Retries: 2, Backoff: time.Millisecond, CircuitFailureThreshold: 3, CircuitReset: time.Minute}
}

func TestClientEvaluateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/evaluate" {
			http.NotFound(w, r)
			return
		}
		var req domain.EvaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := domain.EvaluationResult{TotalCount: len(req.TestCases)}
		for _, tc := range req.TestCases {
			passed := tc.Input == tc.Expected
			if passed {
				res.PassedCount++
			}
			res.Cases = append(res.Cases, domain.CaseResult{Actual: tc.Input, Passed: passed})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL), srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	res, err := client.Evaluate(context.Background(), domain.EvaluationRequest{
		Code:      "print(input())",
		Language:  "python",
		TestCases: []domain.TestCase{{Input: "a", Expected: "a"}, {Input: "b", Expected: "c"}},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.PassedCount != 1 || res.TotalCount != 2 || len(res.Cases) != 2 || res.Cases[1].Passed {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "sandbox busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"passedCount":1,"totalCount":1,"perCaseResults":[{"passed":true}]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig(srv.URL), srv.Client())
	defer client.Close()

	res, err := client.Evaluate(context.Background(), domain.EvaluationRequest{TestCases: []domain.TestCase{{Input: "1", Expected: "1"}}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.PassedCount != 1 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected success on third call, got %+v after %d calls", res, calls)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "unsupported language", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig(srv.URL), srv.Client())
	defer client.Close()

	if _, err := client.Evaluate(context.Background(), domain.EvaluationRequest{Language: "cobol"}); err == nil {
		t.Fatalf("expected error for bad request")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected a single call, got %d", n)
	}
}

func TestClientOpensCircuit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Retries = 0
	client, _ := NewClient(cfg, srv.Client())
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, err := client.Evaluate(context.Background(), domain.EvaluationRequest{}); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}
	if _, err := client.Evaluate(context.Background(), domain.EvaluationRequest{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Fatalf("expected open circuit to skip the sandbox, got %d calls", n)
	}
}

func TestClientTimeoutIsAnError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.Retries = 0
	client, _ := NewClient(cfg, srv.Client())
	defer client.Close()

	if _, err := client.Evaluate(context.Background(), domain.EvaluationRequest{}); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestUnavailable(t *testing.T) {
	if _, err := (Unavailable{}).Evaluate(context.Background(), domain.EvaluationRequest{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
