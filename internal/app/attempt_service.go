package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placement-service/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// AttemptDeps wires the collaborators of the attempt runtime.
type AttemptDeps struct {
	Attempts    AttemptRepository
	Assessments AssessmentRepository
	Questions   QuestionCache
	Apps        ApplicationRepository
	Pipeline    *PipelineService
	Rounds      *RoundService
	Drafts      DraftStore
	Evaluator   Evaluator
	Limiter     RunLimiter
	Notifier    Notifier
	Countdown   *Countdown
}

// AttemptService runs single timed attempts: start/resume, drafts, test runs and final submission.
type AttemptService struct {
	attempts    AttemptRepository
	assessments AssessmentRepository
	questions   QuestionCache
	apps        ApplicationRepository
	pipeline    *PipelineService
	rounds      *RoundService
	drafts      DraftStore
	evaluator   Evaluator
	limiter     RunLimiter
	notifier    Notifier
	countdown   *Countdown
	sf          singleflight.Group
	now         func() time.Time

	// draftRetention bounds how long drafts outlive the deadline; zero keeps them until finalize.
	draftRetention time.Duration
}

func NewAttemptService(deps AttemptDeps) *AttemptService {
	s := &AttemptService{
		attempts:    deps.Attempts,
		assessments: deps.Assessments,
		questions:   deps.Questions,
		apps:        deps.Apps,
		pipeline:    deps.Pipeline,
		rounds:      deps.Rounds,
		drafts:      deps.Drafts,
		evaluator:   deps.Evaluator,
		limiter:     deps.Limiter,
		notifier:    deps.Notifier,
		countdown:   deps.Countdown,
		now:         time.Now,
	}
	if s.countdown != nil {
		s.countdown.bind(func(ctx context.Context, attemptID string) error {
			_, err := s.Submit(ctx, attemptID, domain.TriggerTimeout)
			return err
		})
	}
	return s
}

// WithClock replaces the time source; used for deterministic timestamps in tests.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// WithDraftRetention expires an attempt's drafts the given time after its deadline. It must exceed any
// outage the startup sweep is expected to recover from.
func (s *AttemptService) WithDraftRetention(d time.Duration) *AttemptService {
	s.draftRetention = d
	return s
}

// Start creates or resumes the student's attempt at an active assessment.
func (s *AttemptService) Start(ctx context.Context, studentID, assessmentID string) (domain.AttemptView, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	now := s.now().UTC()

	existing, err := s.attempts.FindByStudentAndAssessment(ctx, studentID, assessmentID)
	switch {
	case err == nil:
		return s.resume(ctx, existing, assessment)
	case !errors.Is(err, domain.ErrAttemptNotFound):
		return domain.AttemptView{}, err
	}

	if assessment.EffectiveStatus(now) != domain.AssessmentActive {
		return domain.AttemptView{}, fmt.Errorf("%w: assessment is not open", domain.ErrNotEligible)
	}
	app, err := s.checkEligible(ctx, studentID, assessment, now)
	if err != nil {
		return domain.AttemptView{}, err
	}

	attempt, err := s.attempts.Create(ctx, domain.ExamAttempt{
		ID:            uuid.NewString(),
		AssessmentID:  assessmentID,
		StudentID:     studentID,
		ApplicationID: app.ID,
		StartedAt:     now,
		Status:        domain.AttemptInProgress,
	})
	if errors.Is(err, domain.ErrAttemptExists) {
		// lost a race against another start for the same pair
		if attempt, err = s.attempts.FindByStudentAndAssessment(ctx, studentID, assessmentID); err != nil {
			return domain.AttemptView{}, err
		}
		return s.resume(ctx, attempt, assessment)
	}
	if err != nil {
		return domain.AttemptView{}, err
	}
	logger.Info("attempt started", slog.String("attempt_id", attempt.ID), slog.String("student_id", studentID), slog.String("assessment_id", assessmentID))
	return s.open(ctx, attempt, assessment)
}

func (s *AttemptService) resume(ctx context.Context, attempt domain.ExamAttempt, assessment domain.Assessment) (domain.AttemptView, error) {
	if attempt.Status.Terminal() {
		return domain.AttemptView{}, fmt.Errorf("%w: attempt already %s", domain.ErrAlreadyTerminal, attempt.Status)
	}
	if attempt.Remaining(assessment.Duration(), s.now()) == 0 {
		if _, err := s.Submit(ctx, attempt.ID, domain.TriggerTimeout); err != nil {
			return domain.AttemptView{}, err
		}
		return domain.AttemptView{}, fmt.Errorf("%w: already reached the time limit", domain.ErrAlreadyTerminal)
	}
	return s.open(ctx, attempt, assessment)
}

// open seeds the draft buffer from starter content and arms the expiry timer.
func (s *AttemptService) open(ctx context.Context, attempt domain.ExamAttempt, assessment domain.Assessment) (domain.AttemptView, error) {
	questions, err := s.questions.Questions(ctx, assessment.ID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	seed := make(map[string]domain.Draft, len(questions))
	for _, q := range questions {
		d := domain.Draft{}
		if q.Kind == domain.QuestionCoding {
			d.Answer = q.Starter
			d.Language = q.Language
		}
		seed[q.ID] = d
	}
	deadline := attempt.Deadline(assessment.Duration())
	var ttl time.Duration
	if s.draftRetention > 0 {
		ttl = deadline.Sub(s.now()) + s.draftRetention
	}
	if err := s.drafts.Seed(ctx, attempt.ID, seed, ttl); err != nil {
		return domain.AttemptView{}, err
	}
	drafts, err := s.drafts.Load(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if s.countdown != nil {
		s.countdown.Schedule(attempt.ID, deadline)
	}

	view := domain.AttemptView{
		Attempt:          attempt,
		Questions:        make([]domain.Question, len(questions)),
		Drafts:           drafts,
		Deadline:         deadline,
		RemainingSeconds: int64(attempt.Remaining(assessment.Duration(), s.now()) / time.Second),
	}
	for i, q := range questions {
		view.Questions[i] = q.CandidateView()
	}
	return view, nil
}

// checkEligible applies the gate: an application in a gate status, an assignment whose deadline has not
// passed, and no elimination in an earlier round.
func (s *AttemptService) checkEligible(ctx context.Context, studentID string, assessment domain.Assessment, now time.Time) (domain.Application, error) {
	app, err := s.apps.FindByStudentAndJob(ctx, studentID, assessment.JobID)
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return domain.Application{}, fmt.Errorf("%w: no application for this job", domain.ErrNotEligible)
	}
	if err != nil {
		return domain.Application{}, err
	}
	if !gateStatus(app.Status) {
		return domain.Application{}, fmt.Errorf("%w: application is %s", domain.ErrNotEligible, app.Status)
	}

	assignments, err := s.assessments.Assignments(ctx, assessment.ID)
	if err != nil {
		return domain.Application{}, err
	}
	var assigned *domain.Assignment
	for i := range assignments {
		if assignments[i].StudentID == studentID {
			assigned = &assignments[i]
			break
		}
	}
	if assigned == nil {
		return domain.Application{}, fmt.Errorf("%w: not assigned to this assessment", domain.ErrNotEligible)
	}
	if assigned.Deadline != nil && !now.Before(*assigned.Deadline) {
		return domain.Application{}, fmt.Errorf("%w: assignment deadline passed", domain.ErrNotEligible)
	}

	if s.rounds != nil {
		eliminated, err := s.rounds.Eliminated(ctx, assessment)
		if err != nil {
			return domain.Application{}, err
		}
		if eliminated[studentID] {
			return domain.Application{}, fmt.Errorf("%w: eliminated in an earlier round", domain.ErrNotEligible)
		}
	}
	return app, nil
}

// SaveDraft overwrites the working answer of one question while the attempt is open.
func (s *AttemptService) SaveDraft(ctx context.Context, attemptID, studentID, questionID, language, answer string) error {
	attempt, _, err := s.liveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return err
	}
	if _, err := s.question(ctx, attempt.AssessmentID, questionID); err != nil {
		return err
	}
	return s.drafts.Save(ctx, attemptID, questionID, domain.Draft{Language: language, Answer: answer, Touched: true})
}

// RunTests evaluates code against a coding question's test cases for feedback only. Nothing is persisted and
// the result is never used as the final grade.
func (s *AttemptService) RunTests(ctx context.Context, attemptID, studentID, questionID, code, language string) (domain.RunReport, error) {
	attempt, _, err := s.liveAttempt(ctx, attemptID, studentID)
	if err != nil {
		return domain.RunReport{}, err
	}
	q, err := s.question(ctx, attempt.AssessmentID, questionID)
	if err != nil {
		return domain.RunReport{}, err
	}
	// an MCQ verdict before submission would leak the key
	if q.Kind != domain.QuestionCoding {
		return domain.RunReport{}, fmt.Errorf("%w: test runs apply to coding questions", domain.ErrInvalidQuestion)
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "runs:"+attemptID)
		if err != nil {
			logger.Warn("run limiter unavailable", slog.String("attempt_id", attemptID), slog.Any("err", err))
		} else if !ok {
			return domain.RunReport{}, domain.ErrRateLimited
		}
	}

	report := domain.RunReport{QuestionID: q.ID, Total: q.TotalChecks()}
	if len(q.TestCases) == 0 {
		return report, nil
	}
	if language == "" {
		language = q.Language
	}

	res, err := s.evaluator.Evaluate(ctx, domain.EvaluationRequest{Code: code, Language: language, TestCases: q.TestCases})
	if err != nil {
		logger.Warn("test run failed", slog.String("attempt_id", attemptID), slog.String("question_id", questionID), slog.Any("err", err))
		return domain.RunReport{}, fmt.Errorf("%w: %v", domain.ErrEvaluationFailure, err)
	}
	report.Cases = make([]domain.CaseResult, len(q.TestCases))
	for i, tc := range q.TestCases {
		c := domain.CaseResult{Input: tc.Input, Expected: tc.Expected, Hidden: tc.Hidden}
		if i < len(res.Cases) {
			c.Actual = res.Cases[i].Actual
			c.Error = res.Cases[i].Error
			c.Passed = res.Cases[i].Passed
		} else {
			c.Error = "no verdict"
		}
		if tc.Hidden {
			c.Input, c.Expected, c.Actual = "", "", ""
		}
		if c.Passed {
			report.Passed++
		}
		report.Cases[i] = c
	}
	return report, nil
}

// Submit finalizes an attempt. It is idempotent: calls against a terminal attempt return the stored result,
// and concurrent calls for one attempt collapse into a single grading pass.
func (s *AttemptService) Submit(ctx context.Context, attemptID string, trigger domain.SubmitTrigger) (domain.AttemptResult, error) {
	v, err, _ := s.sf.Do(attemptID, func() (interface{}, error) {
		return s.submit(ctx, attemptID, trigger)
	})
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return v.(domain.AttemptResult), nil
}

func (s *AttemptService) submit(ctx context.Context, attemptID string, trigger domain.SubmitTrigger) (domain.AttemptResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if attempt.Status.Terminal() {
		return s.storedResult(ctx, attempt)
	}
	assessment, err := s.assessments.Get(ctx, attempt.AssessmentID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	questions, err := s.questions.Questions(ctx, attempt.AssessmentID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	drafts, err := s.drafts.Load(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	// every question is seeded on start, so a missing one means the buffer expired or was evicted
	for _, q := range questions {
		if _, ok := drafts[q.ID]; !ok {
			logger.Error("draft buffer missing, attempt left open", slog.String("attempt_id", attemptID), slog.String("question_id", q.ID))
			return domain.AttemptResult{}, fmt.Errorf("%w: attempt %s", domain.ErrDraftsLost, attemptID)
		}
	}

	subs, err := gradeAll(ctx, s.evaluator, attemptID, questions, drafts)
	if err != nil {
		logger.Warn("grading failed, attempt left open", slog.String("attempt_id", attemptID), slog.Any("err", err))
		return domain.AttemptResult{}, err
	}
	passed, total, raw := tally(subs)

	now := s.now().UTC()
	attempt.SubmittedAt = &now
	attempt.Trigger = trigger
	attempt.TestsPassed = passed
	attempt.TestsTotal = total
	attempt.RawScore = raw
	attempt.Percentage = Percentage(passed, total)
	attempt.Status = domain.AttemptFailed
	if attempt.Percentage >= assessment.PassingScore {
		attempt.Status = domain.AttemptPassed
	}

	if err := s.attempts.Finalize(ctx, attempt, subs); err != nil {
		if errors.Is(err, domain.ErrAlreadyTerminal) {
			stored, gerr := s.attempts.Get(ctx, attemptID)
			if gerr != nil {
				return domain.AttemptResult{}, gerr
			}
			return s.storedResult(ctx, stored)
		}
		return domain.AttemptResult{}, err
	}
	if s.countdown != nil {
		s.countdown.Cancel(attemptID)
	}
	if err := s.drafts.Clear(ctx, attemptID); err != nil {
		logger.Warn("clear drafts", slog.String("attempt_id", attemptID), slog.Any("err", err))
	}
	logger.Info("attempt finalized",
		slog.String("attempt_id", attemptID),
		slog.String("trigger", string(trigger)),
		slog.String("status", string(attempt.Status)),
		slog.Int("percentage", attempt.Percentage),
	)

	s.afterFinalize(ctx, attempt, assessment)
	return domain.AttemptResult{Attempt: attempt, Submissions: subs}, nil
}

// afterFinalize feeds a pass back into the pipeline and reports the result. Failures here never undo
// the persisted attempt.
func (s *AttemptService) afterFinalize(ctx context.Context, attempt domain.ExamAttempt, assessment domain.Assessment) {
	fraction := fmt.Sprintf("%d/%d", attempt.TestsPassed, attempt.TestsTotal)
	s.notifier.Notify(ctx, domain.Notification{
		Recipient: attempt.StudentID,
		Title:     "Assessment " + string(attempt.Status),
		Message:   fmt.Sprintf("You scored %d%% (%s test cases) on %q.", attempt.Percentage, fraction, assessment.Title),
		Link:      "/attempts/" + attempt.ID,
	})
	if attempt.Status != domain.AttemptPassed {
		return
	}

	app, err := s.apps.Get(ctx, attempt.ApplicationID)
	if err != nil {
		logger.Warn("load application after pass", slog.String("attempt_id", attempt.ID), slog.Any("err", err))
		return
	}
	if app.Status == domain.StatusFacultyApproved && s.pipeline != nil {
		if app, err = s.pipeline.AdvanceOnAssessmentPass(ctx, app.ID); err != nil {
			logger.Warn("advance application", slog.String("application_id", attempt.ApplicationID), slog.Any("err", err))
		}
	}
	if app.MentorID != "" {
		s.notifier.Notify(ctx, domain.Notification{
			Recipient: app.MentorID,
			Title:     "Mentee passed an assessment",
			Message:   fmt.Sprintf("Student %s passed %q with %d%% (%s test cases).", attempt.StudentID, assessment.Title, attempt.Percentage, fraction),
			Link:      "/attempts/" + attempt.ID,
		})
	}
}

// Result returns a finalized attempt with its submissions, or the live attempt without any.
func (s *AttemptService) Result(ctx context.Context, attemptID string) (domain.AttemptResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	if !attempt.Status.Terminal() {
		return domain.AttemptResult{Attempt: attempt}, nil
	}
	return s.storedResult(ctx, attempt)
}

// Remaining reports the time left on an attempt, derived from its stored start timestamp.
func (s *AttemptService) Remaining(ctx context.Context, attemptID string) (domain.ExamAttempt, time.Duration, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.ExamAttempt{}, 0, err
	}
	if attempt.Status.Terminal() {
		return attempt, 0, nil
	}
	assessment, err := s.assessments.Get(ctx, attempt.AssessmentID)
	if err != nil {
		return domain.ExamAttempt{}, 0, err
	}
	return attempt, attempt.Remaining(assessment.Duration(), s.now()), nil
}

// SweepExpired force-submits every in-progress attempt whose time box has closed and re-arms timers for the
// rest. It returns how many attempts were submitted.
func (s *AttemptService) SweepExpired(ctx context.Context) (int, error) {
	live, err := s.attempts.ListInProgress(ctx)
	if err != nil {
		return 0, err
	}
	durations := make(map[string]time.Duration)
	submitted := 0
	var errs []error
	for _, attempt := range live {
		d, ok := durations[attempt.AssessmentID]
		if !ok {
			assessment, err := s.assessments.Get(ctx, attempt.AssessmentID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			d = assessment.Duration()
			durations[attempt.AssessmentID] = d
		}
		if attempt.Remaining(d, s.now()) > 0 {
			if s.countdown != nil {
				s.countdown.Schedule(attempt.ID, attempt.Deadline(d))
			}
			continue
		}
		if _, err := s.Submit(ctx, attempt.ID, domain.TriggerTimeout); err != nil {
			errs = append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
			continue
		}
		submitted++
	}
	return submitted, errors.Join(errs...)
}

// liveAttempt loads an attempt owned by the student that is still open for input.
func (s *AttemptService) liveAttempt(ctx context.Context, attemptID, studentID string) (domain.ExamAttempt, domain.Assessment, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.ExamAttempt{}, domain.Assessment{}, err
	}
	if attempt.StudentID != studentID {
		return domain.ExamAttempt{}, domain.Assessment{}, fmt.Errorf("%w: attempt belongs to another student", domain.ErrNotEligible)
	}
	if attempt.Status.Terminal() {
		return domain.ExamAttempt{}, domain.Assessment{}, fmt.Errorf("%w: attempt already %s", domain.ErrAlreadyTerminal, attempt.Status)
	}
	assessment, err := s.assessments.Get(ctx, attempt.AssessmentID)
	if err != nil {
		return domain.ExamAttempt{}, domain.Assessment{}, err
	}
	if attempt.Remaining(assessment.Duration(), s.now()) == 0 {
		return domain.ExamAttempt{}, domain.Assessment{}, fmt.Errorf("%w: already reached the time limit", domain.ErrAlreadyTerminal)
	}
	return attempt, assessment, nil
}

func (s *AttemptService) question(ctx context.Context, assessmentID, questionID string) (domain.Question, error) {
	questions, err := s.questions.Questions(ctx, assessmentID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (s *AttemptService) storedResult(ctx context.Context, attempt domain.ExamAttempt) (domain.AttemptResult, error) {
	subs, err := s.attempts.Submissions(ctx, attempt.ID)
	if err != nil {
		return domain.AttemptResult{}, err
	}
	return domain.AttemptResult{Attempt: attempt, Submissions: subs}, nil
}
