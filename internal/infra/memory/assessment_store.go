package memory

import (
	"context"
	"sort"
	"sync"

	"placement-service/internal/domain"
)

// AssessmentStore is an in-memory implementation of app.AssessmentRepository.
type AssessmentStore struct {
	mu          sync.RWMutex
	assessments map[string]domain.Assessment
	questions   map[string][]domain.Question
	assignments map[string][]domain.Assignment
}

func NewAssessmentStore() *AssessmentStore {
	return &AssessmentStore{
		assessments: make(map[string]domain.Assessment),
		questions:   make(map[string][]domain.Question),
		assignments: make(map[string][]domain.Assignment),
	}
}

func (s *AssessmentStore) Create(_ context.Context, assessment domain.Assessment) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[assessment.ID] = assessment
	return assessment, nil
}

func (s *AssessmentStore) Get(_ context.Context, id string) (domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assessments[id]
	if !ok {
		return domain.Assessment{}, domain.ErrAssessmentNotFound
	}
	return a, nil
}

func (s *AssessmentStore) ListByJob(_ context.Context, jobID string) ([]domain.Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Assessment, 0)
	for _, a := range s.assessments {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *AssessmentStore) Questions(_ context.Context, assessmentID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.assessments[assessmentID]; !ok {
		return nil, domain.ErrAssessmentNotFound
	}
	return cloneQuestions(s.questions[assessmentID]), nil
}

// AppendQuestions attaches the batch only while the assessment is still draft.
func (s *AssessmentStore) AppendQuestions(_ context.Context, assessmentID string, questions []domain.Question, totalMarks int) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[assessmentID]
	if !ok {
		return domain.Assessment{}, domain.ErrAssessmentNotFound
	}
	if a.Status != domain.AssessmentDraft {
		return domain.Assessment{}, domain.ErrStaleState
	}
	s.questions[assessmentID] = append(s.questions[assessmentID], questions...)
	a.TotalMarks = totalMarks
	a.QuestionCount = len(s.questions[assessmentID])
	s.assessments[assessmentID] = a
	return a, nil
}

func (s *AssessmentStore) UpdateStatus(_ context.Context, assessment domain.Assessment, expected domain.AssessmentStatus) (domain.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.assessments[assessment.ID]
	if !ok {
		return domain.Assessment{}, domain.ErrAssessmentNotFound
	}
	if current.Status != expected {
		return domain.Assessment{}, domain.ErrStaleState
	}
	current.Status = assessment.Status
	current.StartsAt = assessment.StartsAt
	current.EndsAt = assessment.EndsAt
	s.assessments[assessment.ID] = current
	return current, nil
}

func (s *AssessmentStore) Assignments(_ context.Context, assessmentID string) ([]domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Assignment, len(s.assignments[assessmentID]))
	copy(out, s.assignments[assessmentID])
	return out, nil
}

func (s *AssessmentStore) ReplaceAssignments(_ context.Context, assessmentID string, assignments []domain.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[assessmentID]; !ok {
		return domain.ErrAssessmentNotFound
	}
	out := make([]domain.Assignment, len(assignments))
	copy(out, assignments)
	s.assignments[assessmentID] = out
	return nil
}
