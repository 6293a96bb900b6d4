package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"placement-service/internal/domain"

	"github.com/google/uuid"
)

// PipelineService owns the canonical status of each application and the notifications each transition emits.
type PipelineService struct {
	apps      ApplicationRepository
	notifier  Notifier
	directory Directory
	now       func() time.Time
}

func NewPipelineService(apps ApplicationRepository, notifier Notifier, directory Directory) *PipelineService {
	return &PipelineService{apps: apps, notifier: notifier, directory: directory, now: time.Now}
}

// WithClock replaces the time source; used for deterministic timestamps in tests.
func (s *PipelineService) WithClock(now func() time.Time) *PipelineService {
	s.now = now
	return s
}

// Apply creates a pending application. At most one live application may exist per (student, job).
func (s *PipelineService) Apply(ctx context.Context, studentID, jobID, mentorID string) (domain.Application, error) {
	if _, err := s.apps.FindByStudentAndJob(ctx, studentID, jobID); err == nil {
		return domain.Application{}, domain.ErrDuplicateApplication
	} else if !errors.Is(err, domain.ErrApplicationNotFound) {
		return domain.Application{}, err
	}

	now := s.now().UTC()
	created, err := s.apps.Create(ctx, domain.Application{
		ID:        uuid.NewString(),
		StudentID: studentID,
		JobID:     jobID,
		MentorID:  mentorID,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Application{}, err
	}
	if created.MentorID != "" {
		s.notifier.Notify(ctx, domain.Notification{
			Recipient: created.MentorID,
			Title:     "Application awaiting approval",
			Message:   fmt.Sprintf("Student %s applied for job %s and needs your approval.", created.StudentID, created.JobID),
			Link:      applicationLink(created.ID),
		})
	}
	return created, nil
}

// Approve moves a pending application to faculty_approved and stamps the approver.
func (s *PipelineService) Approve(ctx context.Context, applicationID, approverID string) (domain.Application, error) {
	return s.transition(ctx, applicationID, domain.StatusFacultyApproved, func(app *domain.Application) {
		app.ApproverID = approverID
	})
}

// Reject ends the candidacy at the mentor gate; the reason is visible to the student.
func (s *PipelineService) Reject(ctx context.Context, applicationID, approverID, reason string) (domain.Application, error) {
	return s.transition(ctx, applicationID, domain.StatusFacultyRejected, func(app *domain.Application) {
		app.ApproverID = approverID
		app.Notes = strings.TrimSpace(reason)
	})
}

// AdvanceOnAssessmentPass shortlists an approved application after a passing attempt.
func (s *PipelineService) AdvanceOnAssessmentPass(ctx context.Context, applicationID string) (domain.Application, error) {
	return s.transition(ctx, applicationID, domain.StatusShortlisted, nil)
}

// ScheduleInterview moves a shortlisted application to interview.
func (s *PipelineService) ScheduleInterview(ctx context.Context, applicationID, actorID string) (domain.Application, error) {
	return s.transition(ctx, applicationID, domain.StatusInterview, func(app *domain.Application) {
		app.ApproverID = actorID
	})
}

// RecordOutcome closes an interview as selected or rejected.
func (s *PipelineService) RecordOutcome(ctx context.Context, applicationID, actorID string, outcome domain.ApplicationStatus, notes string) (domain.Application, error) {
	if outcome != domain.StatusSelected && outcome != domain.StatusRejected {
		return domain.Application{}, fmt.Errorf("%w: outcome must be selected or rejected", domain.ErrInvalidTransition)
	}
	return s.transition(ctx, applicationID, outcome, func(app *domain.Application) {
		app.ApproverID = actorID
		if notes != "" {
			app.Notes = strings.TrimSpace(notes)
		}
	})
}

func (s *PipelineService) Get(ctx context.Context, applicationID string) (domain.Application, error) {
	return s.apps.Get(ctx, applicationID)
}

func (s *PipelineService) ListByJob(ctx context.Context, jobID string) ([]domain.Application, error) {
	return s.apps.ListByJob(ctx, jobID)
}

func (s *PipelineService) ListByStudent(ctx context.Context, studentID string) ([]domain.Application, error) {
	return s.apps.ListByStudent(ctx, studentID)
}

// transition reads the current status, checks the edge, and writes conditionally on the status it just read.
func (s *PipelineService) transition(ctx context.Context, applicationID string, to domain.ApplicationStatus, mutate func(*domain.Application)) (domain.Application, error) {
	current, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	if !current.Status.CanTransition(to) {
		return domain.Application{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, to)
	}

	next := current
	next.Status = to
	if mutate != nil {
		mutate(&next)
	}
	next.UpdatedAt = s.now().UTC()

	updated, err := s.apps.UpdateStatus(ctx, next, current.Status)
	if err != nil {
		return domain.Application{}, err
	}
	logger.Info("application transitioned",
		slog.String("application_id", updated.ID),
		slog.String("from", string(current.Status)),
		slog.String("to", string(updated.Status)),
	)
	s.announce(ctx, updated)
	return updated, nil
}

// announce fans out one notification per audience of the new status. Delivery never affects the transition.
func (s *PipelineService) announce(ctx context.Context, app domain.Application) {
	link := applicationLink(app.ID)
	title, message := statusMessage(app)
	s.notifier.Notify(ctx, domain.Notification{Recipient: app.StudentID, Title: title, Message: message, Link: link})

	staff := fmt.Sprintf("Application %s of student %s is now %s.", app.ID, app.StudentID, app.Status)
	switch app.Status {
	case domain.StatusFacultyApproved:
		s.notifyStaff(ctx, app.JobID, true, true, domain.Notification{Title: "New approved candidate", Message: staff, Link: link})
	case domain.StatusShortlisted:
		s.notifyMentor(ctx, app, domain.Notification{Title: "Mentee shortlisted", Message: staff, Link: link})
		s.notifyStaff(ctx, app.JobID, true, true, domain.Notification{Title: "Candidate shortlisted", Message: staff, Link: link})
	case domain.StatusInterview:
		s.notifyMentor(ctx, app, domain.Notification{Title: "Interview scheduled", Message: staff, Link: link})
	case domain.StatusSelected, domain.StatusRejected:
		s.notifyMentor(ctx, app, domain.Notification{Title: "Interview outcome", Message: staff, Link: link})
		s.notifyStaff(ctx, app.JobID, false, true, domain.Notification{Title: "Interview outcome", Message: staff, Link: link})
	}
}

func (s *PipelineService) notifyMentor(ctx context.Context, app domain.Application, n domain.Notification) {
	if app.MentorID == "" {
		return
	}
	n.Recipient = app.MentorID
	s.notifier.Notify(ctx, n)
}

func (s *PipelineService) notifyStaff(ctx context.Context, jobID string, recruiters, placement bool, n domain.Notification) {
	if s.directory == nil {
		return
	}
	var recipients []string
	if recruiters {
		ids, err := s.directory.Recruiters(ctx, jobID)
		if err != nil {
			logger.Warn("resolve recruiters", slog.String("job_id", jobID), slog.Any("err", err))
		}
		recipients = append(recipients, ids...)
	}
	if placement {
		ids, err := s.directory.PlacementOffice(ctx)
		if err != nil {
			logger.Warn("resolve placement office", slog.Any("err", err))
		}
		recipients = append(recipients, ids...)
	}
	for _, id := range recipients {
		n.Recipient = id
		s.notifier.Notify(ctx, n)
	}
}

func statusMessage(app domain.Application) (string, string) {
	switch app.Status {
	case domain.StatusFacultyApproved:
		return "Application approved", "Your mentor approved your application. Watch for the assessment invitation."
	case domain.StatusFacultyRejected:
		msg := "Your mentor did not approve your application."
		if app.Notes != "" {
			msg += " Reason: " + app.Notes
		}
		return "Application not approved", msg
	case domain.StatusShortlisted:
		return "Shortlisted", "You passed the assessment and have been shortlisted."
	case domain.StatusInterview:
		return "Interview scheduled", "You have been invited to an interview."
	case domain.StatusSelected:
		return "Selected", "Congratulations, you have been selected."
	case domain.StatusRejected:
		return "Application closed", "The recruiter decided not to move forward after the interview."
	default:
		return "Application updated", "Your application is now " + string(app.Status) + "."
	}
}

func applicationLink(id string) string {
	return "/applications/" + id
}
