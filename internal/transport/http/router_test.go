package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"
	"placement-service/internal/infra/memory"
)

const testSecret = "test-secret"

type fixedEvaluator struct{}

func (fixedEvaluator) Evaluate(_ context.Context, req domain.EvaluationRequest) (domain.EvaluationResult, error) {
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

// testClock is a settable time source shared by the services under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	*httptest.Server
	clock  *testClock
	outbox *memory.Outbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)}
	apps := memory.NewApplicationStore()
	assessments := memory.NewAssessmentStore()
	attempts := memory.NewAttemptStore()
	outbox := memory.NewOutbox()
	directory := memory.NewStaticDirectory([]string{"po-1"}, map[string][]string{"job-1": {"rec-1"}})

	pipeline := app.NewPipelineService(apps, outbox, directory).WithClock(clock.Now)
	rounds := app.NewRoundService(assessments, apps, attempts)
	assessmentSvc := app.NewAssessmentService(assessments, apps, rounds, outbox).WithClock(clock.Now)
	attemptSvc := app.NewAttemptService(app.AttemptDeps{
		Attempts:    attempts,
		Assessments: assessments,
		Questions:   memory.NewQuestionCache(assessments, time.Minute),
		Apps:        apps,
		Pipeline:    pipeline,
		Rounds:      rounds,
		Drafts:      memory.NewDraftStore(),
		Evaluator:   fixedEvaluator{},
		Notifier:    outbox,
	}).WithClock(clock.Now)

	router := NewRouter(Handlers{
		Applications: NewApplicationHandler(pipeline),
		Assessments:  NewAssessmentHandler(assessmentSvc, rounds),
		Attempts:     NewAttemptHandler(attemptSvc),
		WS:           NewWSHandler(attemptSvc, 10*time.Millisecond),
	}, testSecret)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, clock: clock, outbox: outbox}
}

func token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	tok, err := IssueToken(testSecret, domain.Actor{ID: id, Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// call performs a request and decodes the JSON response into out when out is non-nil.
func (s *testServer) call(t *testing.T, method, path, tok string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func mcqBatch(n int) []domain.Question {
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

// approvedStudentWithActiveAssessment drives the pipeline up to a student who may start an attempt.
func (s *testServer) approvedStudentWithActiveAssessment(t *testing.T) (studentTok string, assessmentID string) {
	t.Helper()
	studentTok = token(t, "stu-1", domain.RoleStudent)
	mentorTok := token(t, "men-1", domain.RoleMentor)
	recruiterTok := token(t, "rec-1", domain.RoleRecruiter)

	var application domain.Application
	if code := s.call(t, http.MethodPost, "/v1/applications", studentTok, map[string]string{"jobId": "job-1", "mentorId": "men-1"}, &application); code != http.StatusCreated {
		t.Fatalf("apply: status %d", code)
	}
	if code := s.call(t, http.MethodPost, "/v1/applications/"+application.ID+"/approve", mentorTok, nil, nil); code != http.StatusOK {
		t.Fatalf("approve: status %d", code)
	}

	var assessment domain.Assessment
	create := map[string]any{"jobId": "job-1", "title": "Backend round", "durationMinutes": 30, "passingScore": 60}
	if code := s.call(t, http.MethodPost, "/v1/assessments", recruiterTok, create, &assessment); code != http.StatusCreated {
		t.Fatalf("create assessment: status %d", code)
	}
	if code := s.call(t, http.MethodPost, "/v1/assessments/"+assessment.ID+"/questions", recruiterTok, map[string]any{"questions": mcqBatch(10)}, nil); code != http.StatusOK {
		t.Fatalf("add questions: status %d", code)
	}
	if code := s.call(t, http.MethodPost, "/v1/assessments/"+assessment.ID+"/activate", recruiterTok, nil, nil); code != http.StatusOK {
		t.Fatalf("activate: status %d", code)
	}
	return studentTok, assessment.ID
}

func TestHealthzIsOpen(t *testing.T) {
	srv := newTestServer(t)
	if code := srv.call(t, http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	if code := srv.call(t, http.MethodGet, "/v1/me/applications", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	if code := srv.call(t, http.MethodGet, "/v1/me/applications", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
}

func TestStudentCannotAuthorAssessments(t *testing.T) {
	srv := newTestServer(t)
	body := map[string]any{"jobId": "job-1", "title": "x", "durationMinutes": 30, "passingScore": 60}
	if code := srv.call(t, http.MethodPost, "/v1/assessments", token(t, "stu-1", domain.RoleStudent), body, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestApplicationLifecycle(t *testing.T) {
	srv := newTestServer(t)
	studentTok := token(t, "stu-1", domain.RoleStudent)

	var application domain.Application
	if code := srv.call(t, http.MethodPost, "/v1/applications", studentTok, map[string]string{"jobId": "job-1", "mentorId": "men-1"}, &application); code != http.StatusCreated {
		t.Fatalf("apply: status %d", code)
	}
	if application.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", application.Status)
	}
	if code := srv.call(t, http.MethodPost, "/v1/applications", studentTok, map[string]string{"jobId": "job-1"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate apply, got %d", code)
	}
	if code := srv.call(t, http.MethodPost, "/v1/applications", studentTok, map[string]string{}, nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without jobId, got %d", code)
	}

	path := "/v1/applications/" + application.ID
	if code := srv.call(t, http.MethodGet, path, token(t, "stu-2", domain.RoleStudent), nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected another student to get 404, got %d", code)
	}
	if code := srv.call(t, http.MethodPost, path+"/approve", token(t, "men-2", domain.RoleMentor), nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for a mentor who is not assigned, got %d", code)
	}

	mentorTok := token(t, "men-1", domain.RoleMentor)
	var approved domain.Application
	if code := srv.call(t, http.MethodPost, path+"/approve", mentorTok, nil, &approved); code != http.StatusOK {
		t.Fatalf("approve: status %d", code)
	}
	if approved.Status != domain.StatusFacultyApproved || approved.ApproverID != "men-1" {
		t.Fatalf("unexpected approved application: %+v", approved)
	}
	if code := srv.call(t, http.MethodPost, path+"/approve", mentorTok, nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 approving twice, got %d", code)
	}
	if code := srv.call(t, http.MethodPost, path+"/interview", token(t, "rec-1", domain.RoleRecruiter), nil, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 scheduling an interview before shortlisting, got %d", code)
	}

	var mine []domain.Application
	if code := srv.call(t, http.MethodGet, "/v1/me/applications", studentTok, nil, &mine); code != http.StatusOK {
		t.Fatalf("list mine: status %d", code)
	}
	if len(mine) != 1 || mine[0].Status != domain.StatusFacultyApproved {
		t.Fatalf("unexpected applications: %+v", mine)
	}
	if len(srv.outbox.For("stu-1")) == 0 {
		t.Fatalf("expected the student to be notified")
	}
}

func TestAddQuestionsBelowMinimumIsRejected(t *testing.T) {
	srv := newTestServer(t)
	recruiterTok := token(t, "rec-1", domain.RoleRecruiter)
	var assessment domain.Assessment
	create := map[string]any{"jobId": "job-1", "title": "Round 1", "durationMinutes": 30, "passingScore": 60}
	if code := srv.call(t, http.MethodPost, "/v1/assessments", recruiterTok, create, &assessment); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	path := "/v1/assessments/" + assessment.ID
	if code := srv.call(t, http.MethodPost, path+"/questions", recruiterTok, map[string]any{"questions": mcqBatch(9)}, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for nine questions, got %d", code)
	}
	if code := srv.call(t, http.MethodPost, path+"/activate", recruiterTok, nil, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 activating an empty assessment, got %d", code)
	}
	if code := srv.call(t, http.MethodPost, path+"/questions", recruiterTok, map[string]any{"questions": mcqBatch(10)}, nil); code != http.StatusOK {
		t.Fatalf("expected ten questions to be accepted, got %d", code)
	}
}

func TestAttemptSubmitOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	studentTok, assessmentID := srv.approvedStudentWithActiveAssessment(t)

	var view domain.AttemptView
	if code := srv.call(t, http.MethodPost, "/v1/assessments/"+assessmentID+"/attempts", studentTok, nil, &view); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}
	if view.RemainingSeconds != 30*60 {
		t.Fatalf("expected full time box, got %d", view.RemainingSeconds)
	}
	for _, q := range view.Questions {
		if q.CorrectOption != "" {
			t.Fatalf("candidate view leaked the answer key of %s", q.ID)
		}
	}

	attemptPath := "/v1/attempts/" + view.Attempt.ID
	for i := 1; i <= 7; i++ {
		body := map[string]string{"questionId": fmt.Sprintf("q%d", i), "answer": "b"}
		if code := srv.call(t, http.MethodPut, attemptPath+"/drafts", studentTok, body, nil); code != http.StatusNoContent {
			t.Fatalf("save draft: status %d", code)
		}
	}

	srv.clock.Advance(10 * time.Minute)
	var remaining remainingResponse
	if code := srv.call(t, http.MethodGet, attemptPath+"/remaining", studentTok, nil, &remaining); code != http.StatusOK {
		t.Fatalf("remaining: status %d", code)
	}
	if remaining.RemainingSeconds != 20*60 {
		t.Fatalf("expected 1200 seconds left, got %d", remaining.RemainingSeconds)
	}

	var result domain.AttemptResult
	if code := srv.call(t, http.MethodPost, attemptPath+"/submit", studentTok, nil, &result); code != http.StatusOK {
		t.Fatalf("submit: status %d", code)
	}
	if result.Attempt.Percentage != 70 || result.Attempt.Status != domain.AttemptPassed {
		t.Fatalf("expected a 70%% pass, got %+v", result.Attempt)
	}

	var again domain.AttemptResult
	if code := srv.call(t, http.MethodPost, attemptPath+"/submit", studentTok, nil, &again); code != http.StatusOK {
		t.Fatalf("second submit: status %d", code)
	}
	if again.Attempt.Percentage != result.Attempt.Percentage || !again.Attempt.SubmittedAt.Equal(*result.Attempt.SubmittedAt) {
		t.Fatalf("second submit changed the result: %+v", again.Attempt)
	}
	if code := srv.call(t, http.MethodPut, attemptPath+"/drafts", studentTok, map[string]string{"questionId": "q1", "answer": "a"}, nil); code != http.StatusConflict {
		t.Fatalf("expected 409 editing a finished attempt, got %d", code)
	}

	var application []domain.Application
	srv.call(t, http.MethodGet, "/v1/me/applications", studentTok, nil, &application)
	if len(application) != 1 || application[0].Status != domain.StatusShortlisted {
		t.Fatalf("expected the application to be shortlisted, got %+v", application)
	}
}

func TestStartWithoutApplicationIsForbidden(t *testing.T) {
	srv := newTestServer(t)
	_, assessmentID := srv.approvedStudentWithActiveAssessment(t)
	if code := srv.call(t, http.MethodPost, "/v1/assessments/"+assessmentID+"/attempts", token(t, "stu-9", domain.RoleStudent), nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}
