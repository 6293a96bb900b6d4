package domain

import "time"

// Application is one student's candidacy for one job.
type Application struct {
	ID         string            `json:"id"`
	StudentID  string            `json:"studentId"`
	JobID      string            `json:"jobId"`
	MentorID   string            `json:"mentorId,omitempty"`
	Status     ApplicationStatus `json:"status"`
	Notes      string            `json:"notes,omitempty"`
	ApproverID string            `json:"approverId,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// Assessment is a timed, scored exercise tied to one job.
type Assessment struct {
	ID              string           `json:"id"`
	JobID           string           `json:"jobId"`
	Title           string           `json:"title"`
	DurationMinutes int              `json:"durationMinutes"`
	PassingScore    int              `json:"passingScore"` // percent
	Status          AssessmentStatus `json:"status"`
	TotalMarks      int              `json:"totalMarks"`
	QuestionCount   int              `json:"questionCount"`
	StartsAt        *time.Time       `json:"startsAt,omitempty"`
	EndsAt          *time.Time       `json:"endsAt,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Duration returns the attempt time box.
func (a Assessment) Duration() time.Duration {
	return time.Duration(a.DurationMinutes) * time.Minute
}

// EffectiveStatus applies the read-time window check: an active assessment whose window ended is completed.
func (a Assessment) EffectiveStatus(now time.Time) AssessmentStatus {
	if a.Status == AssessmentActive && a.EndsAt != nil && !now.Before(*a.EndsAt) {
		return AssessmentCompleted
	}
	return a.Status
}

// TestCase is one (input, expected-output) pair of a coding question.
type TestCase struct {
	Input    string `json:"input" yaml:"input"`
	Expected string `json:"expected" yaml:"expected"`
	Hidden   bool   `json:"hidden,omitempty" yaml:"hidden"`
}

// Question belongs to exactly one assessment. MCQ questions carry four options and a key;
// coding questions carry starter code and ordered test cases.
type Question struct {
	ID            string       `json:"id" yaml:"id"`
	AssessmentID  string       `json:"assessmentId" yaml:"-"`
	Position      int          `json:"position" yaml:"-"`
	Kind          QuestionKind `json:"kind" yaml:"kind" validate:"required,oneof=mcq coding"`
	Prompt        string       `json:"prompt" yaml:"prompt" validate:"required"`
	Points        int          `json:"points" yaml:"points" validate:"gte=1"`
	Options       []string     `json:"options,omitempty" yaml:"options" validate:"required_if=Kind mcq,omitempty,len=4,dive,required"`
	CorrectOption string       `json:"correctOption,omitempty" yaml:"correct_option" validate:"required_if=Kind mcq"`
	Starter       string       `json:"starter,omitempty" yaml:"starter"`
	Language      string       `json:"language,omitempty" yaml:"language"`
	TestCases     []TestCase   `json:"testCases,omitempty" yaml:"test_cases" validate:"required_if=Kind coding,omitempty,min=1"`
}

// TotalChecks is the number of pass/fail checks the question contributes to the percentage score.
// An MCQ counts as a single check.
func (q Question) TotalChecks() int {
	if q.Kind == QuestionMCQ {
		return 1
	}
	return len(q.TestCases)
}

// CandidateView strips answer keys and hidden test cases.
func (q Question) CandidateView() Question {
	out := q
	out.CorrectOption = ""
	out.TestCases = nil
	for _, tc := range q.TestCases {
		if !tc.Hidden {
			out.TestCases = append(out.TestCases, tc)
		}
	}
	return out
}

// Assignment admits one student to an active assessment.
type Assignment struct {
	AssessmentID string     `json:"assessmentId"`
	StudentID    string     `json:"studentId"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	AssignedAt   time.Time  `json:"assignedAt"`
}

// ExamAttempt is one student's single timed run through an assessment.
type ExamAttempt struct {
	ID            string        `json:"id"`
	AssessmentID  string        `json:"assessmentId"`
	StudentID     string        `json:"studentId"`
	ApplicationID string        `json:"applicationId"`
	StartedAt     time.Time     `json:"startedAt"`
	SubmittedAt   *time.Time    `json:"submittedAt,omitempty"`
	Status        AttemptStatus `json:"status"`
	Trigger       SubmitTrigger `json:"trigger,omitempty"`
	RawScore      int           `json:"rawScore"`
	TestsPassed   int           `json:"testsPassed"`
	TestsTotal    int           `json:"testsTotal"`
	Percentage    int           `json:"percentage"`
}

// Deadline is the wall-clock instant the attempt's time box closes.
func (a ExamAttempt) Deadline(duration time.Duration) time.Time {
	return a.StartedAt.Add(duration)
}

// Remaining is the time left before the deadline, never negative.
func (a ExamAttempt) Remaining(duration time.Duration, now time.Time) time.Duration {
	left := a.Deadline(duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Submission is the persisted answer and evaluation result of one question within an attempt.
type Submission struct {
	AttemptID   string `json:"attemptId"`
	QuestionID  string `json:"questionId"`
	Language    string `json:"language,omitempty"`
	Answer      string `json:"answer"`
	TestsPassed int    `json:"testsPassed"`
	TestsTotal  int    `json:"testsTotal"`
	Score       int    `json:"score"`
}

// Draft is a working answer held in the draft buffer until submission.
type Draft struct {
	Language string `json:"language,omitempty"`
	Answer   string `json:"answer"`
	Touched  bool   `json:"touched"`
}

// CaseResult is the per-test-case outcome reported back to the candidate.
type CaseResult struct {
	Input    string `json:"input,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
	Passed   bool   `json:"passed"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// RunReport is the feedback-only outcome of a test run.
type RunReport struct {
	QuestionID string       `json:"questionId"`
	Passed     int          `json:"passed"`
	Total      int          `json:"total"`
	Cases      []CaseResult `json:"cases"`
}

// AttemptResult summarizes a finalized attempt.
type AttemptResult struct {
	Attempt     ExamAttempt  `json:"attempt"`
	Submissions []Submission `json:"submissions"`
}

// Notification is a best-effort message to one recipient.
type Notification struct {
	Recipient string `json:"recipient"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
}

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// RoundOutcome partitions one round's eligible students.
type RoundOutcome struct {
	AssessmentID string   `json:"assessmentId"`
	Title        string   `json:"title"`
	PassingScore int      `json:"passingScore"`
	Pending      []string `json:"pending"`
	Passed       []string `json:"passed"`
	Failed       []string `json:"failed"`
}

// RoundSummary is the ordered pipeline view for one job.
type RoundSummary struct {
	JobID     string         `json:"jobId"`
	Rounds    []RoundOutcome `json:"rounds"`
	Survivors []string       `json:"survivors"`
}

// EvaluationRequest is sent to the score evaluator for one coding answer.
type EvaluationRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"testCases"`
}

// EvaluationResult is the evaluator's verdict. Cases follow the order of the request's test cases.
type EvaluationResult struct {
	PassedCount int          `json:"passedCount"`
	TotalCount  int          `json:"totalCount"`
	Cases       []CaseResult `json:"perCaseResults"`
}

// AttemptView is what a candidate sees when starting or resuming an attempt.
type AttemptView struct {
	Attempt   ExamAttempt      `json:"attempt"`
	Questions []Question       `json:"questions"`
	Drafts    map[string]Draft `json:"drafts"`
	Deadline  time.Time        `json:"deadline"`
	// RemainingSeconds is derived from the stored start timestamp, not from a client counter.
	RemainingSeconds int64 `json:"remainingSeconds"`
}
