package memory

import (
	"context"
	"sort"
	"sync"

	"placement-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
type AttemptStore struct {
	mu          sync.RWMutex
	attempts    map[string]domain.ExamAttempt
	byPair      map[string]string // student|assessment -> attempt id
	submissions map[string]map[string]domain.Submission
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts:    make(map[string]domain.ExamAttempt),
		byPair:      make(map[string]string),
		submissions: make(map[string]map[string]domain.Submission),
	}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.ExamAttempt) (domain.ExamAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(attempt.StudentID, attempt.AssessmentID)
	if _, ok := s.byPair[key]; ok {
		return domain.ExamAttempt{}, domain.ErrAttemptExists
	}
	s.attempts[attempt.ID] = attempt
	s.byPair[key] = attempt.ID
	return attempt, nil
}

func (s *AttemptStore) Get(_ context.Context, id string) (domain.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return domain.ExamAttempt{}, domain.ErrAttemptNotFound
	}
	return a, nil
}

func (s *AttemptStore) FindByStudentAndAssessment(_ context.Context, studentID, assessmentID string) (domain.ExamAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPair[pairKey(studentID, assessmentID)]
	if !ok {
		return domain.ExamAttempt{}, domain.ErrAttemptNotFound
	}
	return s.attempts[id], nil
}

func (s *AttemptStore) ListByAssessment(_ context.Context, assessmentID string) ([]domain.ExamAttempt, error) {
	return s.list(func(a domain.ExamAttempt) bool { return a.AssessmentID == assessmentID }), nil
}

func (s *AttemptStore) ListInProgress(_ context.Context) ([]domain.ExamAttempt, error) {
	return s.list(func(a domain.ExamAttempt) bool { return a.Status == domain.AttemptInProgress }), nil
}

// Finalize swaps in the terminal attempt and its submissions only while the stored attempt is in progress.
func (s *AttemptStore) Finalize(_ context.Context, attempt domain.ExamAttempt, submissions []domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.attempts[attempt.ID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if current.Status.Terminal() {
		return domain.ErrAlreadyTerminal
	}
	subs, ok := s.submissions[attempt.ID]
	if !ok {
		subs = make(map[string]domain.Submission, len(submissions))
		s.submissions[attempt.ID] = subs
	}
	for _, sub := range submissions {
		subs[sub.QuestionID] = sub
	}
	s.attempts[attempt.ID] = attempt
	return nil
}

func (s *AttemptStore) Submissions(_ context.Context, attemptID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.submissions[attemptID]))
	for _, sub := range s.submissions[attemptID] {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

func (s *AttemptStore) list(match func(domain.ExamAttempt) bool) []domain.ExamAttempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ExamAttempt, 0)
	for _, a := range s.attempts {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
