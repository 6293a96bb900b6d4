package domain

import "errors"

var (
	// ErrInvalidTransition is returned when a status change is not an edge of the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStaleState is returned when a conditional write lost a race; re-read and retry.
	ErrStaleState = errors.New("record changed concurrently")
	// ErrNotEligible is returned when the actor lacks a precondition (no approved application, inactive assessment).
	ErrNotEligible = errors.New("not eligible")
	// ErrAlreadyTerminal is returned when an operation targets a finished attempt or application.
	ErrAlreadyTerminal = errors.New("already finished")
	// ErrInsufficientQuestions is returned when an assessment holds fewer than the minimum question count.
	ErrInsufficientQuestions = errors.New("not enough questions to activate")
	// ErrEvaluationFailure is returned when the score evaluator is unreachable or errored.
	ErrEvaluationFailure = errors.New("evaluation failed, try again")

	// ErrApplicationNotFound indicates the application does not exist.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrDuplicateApplication indicates a live application already exists for the student and job.
	ErrDuplicateApplication = errors.New("already applied")
	// ErrAssessmentNotFound indicates the assessment does not exist.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrAttemptNotFound indicates the exam attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptExists is returned by stores when a (student, assessment) attempt is already recorded.
	ErrAttemptExists = errors.New("attempt already exists")
	// ErrQuestionNotFound indicates a question ID is not part of the assessment.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidQuestion indicates an authored question fails shape validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidAssessment indicates draft settings out of range (duration, passing score, title).
	ErrInvalidAssessment = errors.New("invalid assessment")
	// ErrInvalidDeadline is returned when an assessment window would end in the past.
	ErrInvalidDeadline = errors.New("deadline must be in the future")
	// ErrDraftsLost is returned when an open attempt's draft buffer is gone, so its answers cannot be graded.
	ErrDraftsLost = errors.New("attempt drafts are no longer available")
	// ErrRateLimited is returned when test runs exceed the per-attempt budget.
	ErrRateLimited = errors.New("too many test runs, slow down")
)
