package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"placement-service/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MinQuestions is the question count an assessment needs before it can leave draft.
const MinQuestions = 10

var validate = validator.New()

// AssessmentService owns assessment authoring and the eligibility gate.
type AssessmentService struct {
	assessments  AssessmentRepository
	apps         ApplicationRepository
	rounds       *RoundService
	notifier     Notifier
	minQuestions int
	now          func() time.Time
}

func NewAssessmentService(assessments AssessmentRepository, apps ApplicationRepository, rounds *RoundService, notifier Notifier) *AssessmentService {
	return &AssessmentService{
		assessments:  assessments,
		apps:         apps,
		rounds:       rounds,
		notifier:     notifier,
		minQuestions: MinQuestions,
		now:          time.Now,
	}
}

// WithClock replaces the time source; used for deterministic timestamps in tests.
func (s *AssessmentService) WithClock(now func() time.Time) *AssessmentService {
	s.now = now
	return s
}

// WithMinQuestions overrides the activation threshold; values below one are ignored. Production wiring never
// passes less than MinQuestions.
func (s *AssessmentService) WithMinQuestions(n int) *AssessmentService {
	if n > 0 {
		s.minQuestions = n
	}
	return s
}

// CreateDraft stores a new draft assessment with zero total marks.
func (s *AssessmentService) CreateDraft(ctx context.Context, jobID, title string, durationMinutes, passingScore int) (domain.Assessment, error) {
	title = strings.TrimSpace(title)
	switch {
	case jobID == "" || title == "":
		return domain.Assessment{}, fmt.Errorf("%w: job and title are required", domain.ErrInvalidAssessment)
	case durationMinutes <= 0:
		return domain.Assessment{}, fmt.Errorf("%w: duration must be positive", domain.ErrInvalidAssessment)
	case passingScore < 0 || passingScore > 100:
		return domain.Assessment{}, fmt.Errorf("%w: passing score must be between 0 and 100", domain.ErrInvalidAssessment)
	}
	return s.assessments.Create(ctx, domain.Assessment{
		ID:              uuid.NewString(),
		JobID:           jobID,
		Title:           title,
		DurationMinutes: durationMinutes,
		PassingScore:    passingScore,
		Status:          domain.AssessmentDraft,
		CreatedAt:       s.now().UTC(),
	})
}

// AddQuestions attaches a batch to a draft. The batch is rejected whole when any question is malformed or
// when the assessment would still hold fewer than the minimum question count.
func (s *AssessmentService) AddQuestions(ctx context.Context, assessmentID string, questions []domain.Question) (domain.Assessment, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if assessment.Status != domain.AssessmentDraft {
		return domain.Assessment{}, fmt.Errorf("%w: questions can only be added to a draft assessment", domain.ErrInvalidTransition)
	}

	existing, err := s.assessments.Questions(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	if len(existing)+len(questions) < s.minQuestions {
		return domain.Assessment{}, fmt.Errorf("%w: assessment would hold %d, needs %d", domain.ErrInsufficientQuestions, len(existing)+len(questions), s.minQuestions)
	}

	totalMarks := 0
	for _, q := range existing {
		totalMarks += q.Points
	}
	batch := make([]domain.Question, len(questions))
	for i, q := range questions {
		if err := ValidateQuestion(q); err != nil {
			return domain.Assessment{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.AssessmentID = assessmentID
		q.Position = len(existing) + i + 1
		batch[i] = q
		totalMarks += q.Points
	}

	return s.assessments.AppendQuestions(ctx, assessmentID, batch, totalMarks)
}

// Activate opens a draft assessment, snapshots the eligible students and invites each of them.
// The minimum question count is re-checked against the stored questions.
func (s *AssessmentService) Activate(ctx context.Context, assessmentID string) (domain.Assessment, []domain.Assignment, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, nil, err
	}
	if assessment.Status != domain.AssessmentDraft {
		return domain.Assessment{}, nil, fmt.Errorf("%w: assessment is %s", domain.ErrInvalidTransition, assessment.Status)
	}
	questions, err := s.assessments.Questions(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, nil, err
	}
	if len(questions) < s.minQuestions {
		return domain.Assessment{}, nil, fmt.Errorf("%w: assessment holds %d, needs %d", domain.ErrInsufficientQuestions, len(questions), s.minQuestions)
	}

	students, err := s.eligibleStudents(ctx, assessment)
	if err != nil {
		return domain.Assessment{}, nil, err
	}
	now := s.now().UTC()
	assignments := make([]domain.Assignment, 0, len(students))
	for _, id := range students {
		assignments = append(assignments, domain.Assignment{AssessmentID: assessmentID, StudentID: id, Deadline: assessment.EndsAt, AssignedAt: now})
	}
	// Assignments grant nothing until the status flips, so they are written first.
	if err := s.assessments.ReplaceAssignments(ctx, assessmentID, assignments); err != nil {
		return domain.Assessment{}, nil, err
	}

	next := assessment
	next.Status = domain.AssessmentActive
	next.StartsAt = &now
	activated, err := s.assessments.UpdateStatus(ctx, next, domain.AssessmentDraft)
	if err != nil {
		return domain.Assessment{}, nil, err
	}
	logger.Info("assessment activated", slog.String("assessment_id", assessmentID), slog.Int("eligible", len(assignments)))

	for _, a := range assignments {
		s.invite(ctx, activated, a)
	}
	return activated, assignments, nil
}

// AssignDeadline narrows the eligible set of an active assessment to the given students (those holding an
// eligible application) and sets or extends the window end. Only newly assigned students are notified.
func (s *AssessmentService) AssignDeadline(ctx context.Context, assessmentID string, studentIDs []string, deadline time.Time) ([]domain.Assignment, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if assessment.Status != domain.AssessmentActive {
		return nil, fmt.Errorf("%w: assessment is %s", domain.ErrInvalidTransition, assessment.Status)
	}
	now := s.now().UTC()
	deadline = deadline.UTC()
	if !deadline.After(now) {
		return nil, domain.ErrInvalidDeadline
	}

	eligible, err := s.eligibleStudents(ctx, assessment)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		allowed[id] = true
	}
	previous, err := s.assessments.Assignments(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	already := make(map[string]bool, len(previous))
	for _, a := range previous {
		already[a.StudentID] = true
	}

	seen := make(map[string]bool, len(studentIDs))
	assignments := make([]domain.Assignment, 0, len(studentIDs))
	var fresh []domain.Assignment
	for _, id := range studentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if !allowed[id] {
			logger.Info("skipping ineligible student", slog.String("assessment_id", assessmentID), slog.String("student_id", id))
			continue
		}
		d := deadline
		a := domain.Assignment{AssessmentID: assessmentID, StudentID: id, Deadline: &d, AssignedAt: now}
		assignments = append(assignments, a)
		if !already[id] {
			fresh = append(fresh, a)
		}
	}

	if err := s.assessments.ReplaceAssignments(ctx, assessmentID, assignments); err != nil {
		return nil, err
	}
	if assessment.EndsAt == nil || deadline.After(*assessment.EndsAt) {
		next := assessment
		next.EndsAt = &deadline
		if assessment, err = s.assessments.UpdateStatus(ctx, next, domain.AssessmentActive); err != nil {
			return nil, err
		}
	}
	for _, a := range fresh {
		s.invite(ctx, assessment, a)
	}
	return assignments, nil
}

func (s *AssessmentService) Get(ctx context.Context, assessmentID string) (domain.Assessment, error) {
	assessment, err := s.assessments.Get(ctx, assessmentID)
	if err != nil {
		return domain.Assessment{}, err
	}
	assessment.Status = assessment.EffectiveStatus(s.now())
	return assessment, nil
}

func (s *AssessmentService) ListByJob(ctx context.Context, jobID string) ([]domain.Assessment, error) {
	list, err := s.assessments.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		list[i].Status = list[i].EffectiveStatus(now)
	}
	return list, nil
}

// Questions returns the assessment's questions; the candidate view hides keys and hidden test cases.
func (s *AssessmentService) Questions(ctx context.Context, assessmentID string, candidate bool) ([]domain.Question, error) {
	questions, err := s.assessments.Questions(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if candidate {
		for i := range questions {
			questions[i] = questions[i].CandidateView()
		}
	}
	return questions, nil
}

func (s *AssessmentService) Assignments(ctx context.Context, assessmentID string) ([]domain.Assignment, error) {
	return s.assessments.Assignments(ctx, assessmentID)
}

// eligibleStudents is the gate: students of the job holding a faculty_approved application, plus shortlisted
// survivors of earlier rounds, minus anyone eliminated in an earlier round.
func (s *AssessmentService) eligibleStudents(ctx context.Context, assessment domain.Assessment) ([]string, error) {
	apps, err := s.apps.ListByJob(ctx, assessment.JobID)
	if err != nil {
		return nil, err
	}
	eliminated := map[string]bool{}
	if s.rounds != nil {
		if eliminated, err = s.rounds.Eliminated(ctx, assessment); err != nil {
			return nil, err
		}
	}
	var out []string
	for _, app := range apps {
		if !gateStatus(app.Status) || eliminated[app.StudentID] {
			continue
		}
		out = append(out, app.StudentID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *AssessmentService) invite(ctx context.Context, assessment domain.Assessment, a domain.Assignment) {
	msg := fmt.Sprintf("You are invited to take %q (%d minutes, pass mark %d%%).", assessment.Title, assessment.DurationMinutes, assessment.PassingScore)
	if a.Deadline != nil {
		msg += " Complete it before " + a.Deadline.Format(time.RFC1123) + "."
	}
	s.notifier.Notify(ctx, domain.Notification{
		Recipient: a.StudentID,
		Title:     "Assessment available",
		Message:   msg,
		Link:      "/assessments/" + assessment.ID,
	})
}

// gateStatus reports whether an application status may access an active assessment.
func gateStatus(status domain.ApplicationStatus) bool {
	return status == domain.StatusFacultyApproved || status == domain.StatusShortlisted
}

// ValidateQuestion checks the answer shape of an authored question.
func ValidateQuestion(q domain.Question) error {
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidQuestion, formatValidationErrors(verrs))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuestion, err)
	}
	if q.Kind == domain.QuestionMCQ {
		for _, opt := range q.Options {
			if opt == q.CorrectOption {
				return nil
			}
		}
		return fmt.Errorf("%w: correct option must be one of the options", domain.ErrInvalidQuestion)
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required", "required_if":
			parts = append(parts, e.Field()+" is required")
		case "gte":
			parts = append(parts, e.Field()+" must be at least "+e.Param())
		case "len":
			parts = append(parts, e.Field()+" must have exactly "+e.Param()+" entries")
		case "min":
			parts = append(parts, e.Field()+" needs at least "+e.Param()+" entry")
		case "oneof":
			parts = append(parts, e.Field()+" must be one of: "+e.Param())
		default:
			parts = append(parts, e.Field()+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}
