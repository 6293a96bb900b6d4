package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"placement-service/internal/domain"
)

func TestApplyRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.pipeline.Apply(ctx, "stu-1", "job-1", "men-1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	_, err := f.pipeline.Apply(ctx, "stu-1", "job-1", "men-1")
	mustErr(t, err, domain.ErrDuplicateApplication)
	if got := f.outbox.For("men-1"); len(got) != 1 {
		t.Fatalf("expected one mentor notification, got %d", len(got))
	}
}

func TestApproveTwiceIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	application := f.approved(t, "stu-1", "job-1")
	if application.Status != domain.StatusFacultyApproved || application.ApproverID != "men-1" {
		t.Fatalf("unexpected application: %+v", application)
	}
	_, err := f.pipeline.Approve(ctx, application.ID, "men-1")
	mustErr(t, err, domain.ErrInvalidTransition)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	application, err := f.pipeline.Apply(ctx, "stu-1", "job-1", "men-1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.Approve(ctx, application.ID, "men-1")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errorsIsAny(err, domain.ErrStaleState, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one approval, got %d", wins)
	}
}

func TestRejectKeepsReasonAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	application, _ := f.pipeline.Apply(ctx, "stu-1", "job-1", "men-1")
	rejected, err := f.pipeline.Reject(ctx, application.ID, "men-1", "  incomplete resume ")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusFacultyRejected || rejected.Notes != "incomplete resume" {
		t.Fatalf("unexpected rejection: %+v", rejected)
	}
	_, err = f.pipeline.Approve(ctx, application.ID, "men-1")
	mustErr(t, err, domain.ErrInvalidTransition)

	last := f.outbox.For("stu-1")
	if len(last) == 0 || last[len(last)-1].Title != "Application not approved" {
		t.Fatalf("expected the student to hear about the rejection, got %+v", last)
	}
}

func TestInterviewAndOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	application := f.approved(t, "stu-1", "job-1")

	_, err := f.pipeline.ScheduleInterview(ctx, application.ID, "rec-1")
	mustErr(t, err, domain.ErrInvalidTransition)

	if _, err := f.pipeline.AdvanceOnAssessmentPass(ctx, application.ID); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if _, err := f.pipeline.ScheduleInterview(ctx, application.ID, "rec-1"); err != nil {
		t.Fatalf("interview: %v", err)
	}
	_, err = f.pipeline.RecordOutcome(ctx, application.ID, "rec-1", domain.StatusShortlisted, "")
	mustErr(t, err, domain.ErrInvalidTransition)

	selected, err := f.pipeline.RecordOutcome(ctx, application.ID, "rec-1", domain.StatusSelected, "strong systems design")
	if err != nil {
		t.Fatalf("outcome: %v", err)
	}
	if selected.Status != domain.StatusSelected || selected.Notes != "strong systems design" {
		t.Fatalf("unexpected outcome: %+v", selected)
	}
	if len(f.outbox.For("po-1")) == 0 {
		t.Fatalf("expected the placement office to be notified")
	}
}

func TestGetUnknownApplication(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Get(context.Background(), "missing")
	mustErr(t, err, domain.ErrApplicationNotFound)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
