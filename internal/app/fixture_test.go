package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"
	"placement-service/internal/infra/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubEvaluator passes a test case when the trimmed code equals its expected output.
type stubEvaluator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *stubEvaluator) Evaluate(_ context.Context, req domain.EvaluationRequest) (domain.EvaluationResult, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	res := domain.EvaluationResult{TotalCount: len(req.TestCases)}
	for _, tc := range req.TestCases {
		passed := req.Code == tc.Expected
		if passed {
			res.PassedCount++
		}
		res.Cases = append(res.Cases, domain.CaseResult{Actual: req.Code, Passed: passed})
	}
	return res, nil
}

func (e *stubEvaluator) fail(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

func (e *stubEvaluator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	clock       *clock
	apps        *memory.ApplicationStore
	assessments *memory.AssessmentStore
	attemptRepo *memory.AttemptStore
	outbox      *memory.Outbox
	evaluator   *stubEvaluator
	pipeline    *app.PipelineService
	authors     *app.AssessmentService
	attempts    *app.AttemptService
	rounds      *app.RoundService
	countdown   *app.Countdown
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithDrafts(t, memory.NewDraftStore())
}

// newFixtureWithDrafts builds the fixture over the given draft buffer.
func newFixtureWithDrafts(t *testing.T, drafts app.DraftStore) *fixture {
	t.Helper()
	f := &fixture{
		clock:       &clock{now: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)},
		apps:        memory.NewApplicationStore(),
		assessments: memory.NewAssessmentStore(),
		attemptRepo: memory.NewAttemptStore(),
		outbox:      memory.NewOutbox(),
		evaluator:   &stubEvaluator{},
	}
	directory := memory.NewStaticDirectory([]string{"po-1"}, map[string][]string{"job-1": {"rec-1"}})
	f.pipeline = app.NewPipelineService(f.apps, f.outbox, directory).WithClock(f.clock.Now)
	f.countdown = app.NewCountdownWithClock(20*time.Millisecond, f.clock.Now)
	t.Cleanup(f.countdown.Stop)
	f.rounds = app.NewRoundService(f.assessments, f.apps, f.attemptRepo)
	f.authors = app.NewAssessmentService(f.assessments, f.apps, f.rounds, f.outbox).WithClock(f.clock.Now)
	f.attempts = app.NewAttemptService(app.AttemptDeps{
		Attempts:    f.attemptRepo,
		Assessments: f.assessments,
		Questions:   memory.NewQuestionCache(f.assessments, time.Minute),
		Apps:        f.apps,
		Pipeline:    f.pipeline,
		Rounds:      f.rounds,
		Drafts:      drafts,
		Evaluator:   f.evaluator,
		Limiter:     memory.NewRunLimiter(3, time.Minute).WithClock(f.clock.Now),
		Notifier:    f.outbox,
		Countdown:   f.countdown,
	}).WithClock(f.clock.Now)
	return f
}

// approved applies and approves a student for a job.
func (f *fixture) approved(t *testing.T, studentID, jobID string) domain.Application {
	t.Helper()
	ctx := context.Background()
	application, err := f.pipeline.Apply(ctx, studentID, jobID, "men-1")
	if err != nil {
		t.Fatalf("apply %s: %v", studentID, err)
	}
	application, err = f.pipeline.Approve(ctx, application.ID, "men-1")
	if err != nil {
		t.Fatalf("approve %s: %v", studentID, err)
	}
	return application
}

// activeAssessment creates, fills and activates an assessment; creation order defines the round order.
func (f *fixture) activeAssessment(t *testing.T, jobID string, passingScore int, questions []domain.Question) domain.Assessment {
	t.Helper()
	ctx := context.Background()
	a, err := f.authors.CreateDraft(ctx, jobID, "Round", 60, passingScore)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := f.authors.AddQuestions(ctx, a.ID, questions); err != nil {
		t.Fatalf("add questions: %v", err)
	}
	a, _, err = f.authors.Activate(ctx, a.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.clock.Advance(time.Second)
	return a
}

func mcqs(n int) []domain.Question {
	qs := make([]domain.Question, n)
	for i := range qs {
		qs[i] = domain.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Kind:          domain.QuestionMCQ,
			Prompt:        fmt.Sprintf("question %d", i+1),
			Points:        1,
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: "b",
		}
	}
	return qs
}

func coding(id string, points int, expected ...string) domain.Question {
	q := domain.Question{ID: id, Kind: domain.QuestionCoding, Prompt: "solve", Points: points, Starter: "// start", Language: "go"}
	for i, e := range expected {
		q.TestCases = append(q.TestCases, domain.TestCase{Input: fmt.Sprintf("in-%d", i), Expected: e})
	}
	return q
}

// takeAndSubmit starts an attempt, answers the first `correct` MCQs correctly and submits.
func (f *fixture) takeAndSubmit(t *testing.T, studentID string, assessment domain.Assessment, correct int) domain.AttemptResult {
	t.Helper()
	ctx := context.Background()
	view, err := f.attempts.Start(ctx, studentID, assessment.ID)
	if err != nil {
		t.Fatalf("start %s: %v", studentID, err)
	}
	for i := 1; i <= correct; i++ {
		if err := f.attempts.SaveDraft(ctx, view.Attempt.ID, studentID, fmt.Sprintf("q%d", i), "", "b"); err != nil {
			t.Fatalf("save draft: %v", err)
		}
	}
	res, err := f.attempts.Submit(ctx, view.Attempt.ID, domain.TriggerManual)
	if err != nil {
		t.Fatalf("submit %s: %v", studentID, err)
	}
	return res
}

func mustErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
