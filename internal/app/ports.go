package app

import (
	"context"
	"time"

	"placement-service/internal/domain"
)

// ApplicationRepository stores candidacies. UpdateStatus is a compare-and-swap on the stored status:
// it writes app only when the current row still carries expected and returns domain.ErrStaleState otherwise.
type ApplicationRepository interface {
	Create(ctx context.Context, app domain.Application) (domain.Application, error)
	Get(ctx context.Context, id string) (domain.Application, error)
	FindByStudentAndJob(ctx context.Context, studentID, jobID string) (domain.Application, error)
	ListByJob(ctx context.Context, jobID string) ([]domain.Application, error)
	ListByStudent(ctx context.Context, studentID string) ([]domain.Application, error)
	UpdateStatus(ctx context.Context, app domain.Application, expected domain.ApplicationStatus) (domain.Application, error)
}

// AssessmentRepository stores assessment definitions, their questions and the eligibility set.
type AssessmentRepository interface {
	Create(ctx context.Context, assessment domain.Assessment) (domain.Assessment, error)
	Get(ctx context.Context, id string) (domain.Assessment, error)
	// ListByJob returns assessments ordered by creation.
	ListByJob(ctx context.Context, jobID string) ([]domain.Assessment, error)
	// Questions returns questions ordered by position.
	Questions(ctx context.Context, assessmentID string) ([]domain.Question, error)
	// AppendQuestions attaches questions and stores the new total marks while the assessment is still draft.
	AppendQuestions(ctx context.Context, assessmentID string, questions []domain.Question, totalMarks int) (domain.Assessment, error)
	// UpdateStatus writes status and window fields when the stored status still equals expected.
	UpdateStatus(ctx context.Context, assessment domain.Assessment, expected domain.AssessmentStatus) (domain.Assessment, error)
	Assignments(ctx context.Context, assessmentID string) ([]domain.Assignment, error)
	ReplaceAssignments(ctx context.Context, assessmentID string, assignments []domain.Assignment) error
}

// AttemptRepository stores exam attempts and their submissions.
type AttemptRepository interface {
	// Create returns domain.ErrAttemptExists when the (student, assessment) pair already has an attempt.
	Create(ctx context.Context, attempt domain.ExamAttempt) (domain.ExamAttempt, error)
	Get(ctx context.Context, id string) (domain.ExamAttempt, error)
	FindByStudentAndAssessment(ctx context.Context, studentID, assessmentID string) (domain.ExamAttempt, error)
	ListByAssessment(ctx context.Context, assessmentID string) ([]domain.ExamAttempt, error)
	ListInProgress(ctx context.Context) ([]domain.ExamAttempt, error)
	// Finalize upserts submissions and writes the terminal attempt only while it is still in progress,
	// returning domain.ErrAlreadyTerminal otherwise.
	Finalize(ctx context.Context, attempt domain.ExamAttempt, submissions []domain.Submission) error
	Submissions(ctx context.Context, attemptID string) ([]domain.Submission, error)
}

// DraftStore holds per-question working answers for in-progress attempts.
type DraftStore interface {
	// Seed stores drafts for questions that have none yet, so a resumed attempt keeps its edits. A zero ttl
	// keeps the buffer until Clear.
	Seed(ctx context.Context, attemptID string, drafts map[string]domain.Draft, ttl time.Duration) error
	Save(ctx context.Context, attemptID, questionID string, draft domain.Draft) error
	Load(ctx context.Context, attemptID string) (map[string]domain.Draft, error)
	Clear(ctx context.Context, attemptID string) error
}

// QuestionCache serves the question set of active assessments (from cache/backing store).
type QuestionCache interface {
	Questions(ctx context.Context, assessmentID string) ([]domain.Question, error)
}

// Evaluator runs candidate code against test cases in a sandbox.
type Evaluator interface {
	Evaluate(ctx context.Context, req domain.EvaluationRequest) (domain.EvaluationResult, error)
}

// RunLimiter bounds how often test runs may be requested for one key.
type RunLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Notifier emits best-effort notifications. Implementations must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// Directory resolves role members who receive pipeline notifications.
type Directory interface {
	Recruiters(ctx context.Context, jobID string) ([]string, error)
	PlacementOffice(ctx context.Context) ([]string, error)
}
