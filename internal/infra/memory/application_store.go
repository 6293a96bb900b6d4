package memory

import (
	"context"
	"sort"
	"sync"

	"placement-service/internal/domain"
)

// ApplicationStore is an in-memory implementation of app.ApplicationRepository.
type ApplicationStore struct {
	mu    sync.RWMutex
	byID  map[string]domain.Application
	byKey map[string]string // student|job -> id
}

func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{
		byID:  make(map[string]domain.Application),
		byKey: make(map[string]string),
	}
}

func (s *ApplicationStore) Create(_ context.Context, app domain.Application) (domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(app.StudentID, app.JobID)
	if _, ok := s.byKey[key]; ok {
		return domain.Application{}, domain.ErrDuplicateApplication
	}
	s.byID[app.ID] = app
	s.byKey[key] = app.ID
	return app, nil
}

func (s *ApplicationStore) Get(_ context.Context, id string) (domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.byID[id]
	if !ok {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	return app, nil
}

func (s *ApplicationStore) FindByStudentAndJob(_ context.Context, studentID, jobID string) (domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[pairKey(studentID, jobID)]
	if !ok {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	return s.byID[id], nil
}

func (s *ApplicationStore) ListByJob(_ context.Context, jobID string) ([]domain.Application, error) {
	return s.list(func(a domain.Application) bool { return a.JobID == jobID }), nil
}

func (s *ApplicationStore) ListByStudent(_ context.Context, studentID string) ([]domain.Application, error) {
	return s.list(func(a domain.Application) bool { return a.StudentID == studentID }), nil
}

// UpdateStatus compares the stored status with expected and swaps in app under one lock.
func (s *ApplicationStore) UpdateStatus(_ context.Context, app domain.Application, expected domain.ApplicationStatus) (domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.byID[app.ID]
	if !ok {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	if current.Status != expected {
		return domain.Application{}, domain.ErrStaleState
	}
	current.Status = app.Status
	current.Notes = app.Notes
	current.ApproverID = app.ApproverID
	current.UpdatedAt = app.UpdatedAt
	s.byID[app.ID] = current
	return current, nil
}

func (s *ApplicationStore) list(match func(domain.Application) bool) []domain.Application {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Application, 0)
	for _, a := range s.byID {
		if match(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func pairKey(a, b string) string {
	return a + "|" + b
}
