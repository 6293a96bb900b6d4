package app

import (
	"context"
	"sort"

	"placement-service/internal/domain"
)

// RoundService derives per-round progression for a job. Nothing is cached; every read recomputes.
type RoundService struct {
	assessments AssessmentRepository
	apps        ApplicationRepository
	attempts    AttemptRepository
}

func NewRoundService(assessments AssessmentRepository, apps ApplicationRepository, attempts AttemptRepository) *RoundService {
	return &RoundService{assessments: assessments, apps: apps, attempts: attempts}
}

// Summary partitions the job's eligible candidates per round and lists the survivors.
func (s *RoundService) Summary(ctx context.Context, jobID string) (domain.RoundSummary, error) {
	rounds, apps, attempts, err := s.load(ctx, jobID, nil)
	if err != nil {
		return domain.RoundSummary{}, err
	}
	return ComputeRounds(jobID, rounds, apps, attempts), nil
}

// Eliminated returns the students who failed any round ordered before the given assessment.
func (s *RoundService) Eliminated(ctx context.Context, before domain.Assessment) (map[string]bool, error) {
	rounds, apps, attempts, err := s.load(ctx, before.JobID, &before)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool)
	for _, round := range ComputeRounds(before.JobID, rounds, apps, attempts).Rounds {
		for _, id := range round.Failed {
			out[id] = true
		}
	}
	return out, nil
}

// load fetches the rounds of a job, keeping only those ordered before the given assessment when one is set.
func (s *RoundService) load(ctx context.Context, jobID string, before *domain.Assessment) ([]domain.Assessment, []domain.Application, map[string][]domain.ExamAttempt, error) {
	all, err := s.assessments.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, nil, err
	}
	rounds := orderedRounds(all)
	if before != nil {
		kept := rounds[:0]
		for _, a := range rounds {
			if roundBefore(a, *before) {
				kept = append(kept, a)
			}
		}
		rounds = kept
	}

	apps, err := s.apps.ListByJob(ctx, jobID)
	if err != nil {
		return nil, nil, nil, err
	}

	attempts := make(map[string][]domain.ExamAttempt, len(rounds))
	for _, a := range rounds {
		list, err := s.attempts.ListByAssessment(ctx, a.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		attempts[a.ID] = list
	}
	return rounds, apps, attempts, nil
}

// orderedRounds keeps non-draft assessments in creation order.
func orderedRounds(assessments []domain.Assessment) []domain.Assessment {
	rounds := make([]domain.Assessment, 0, len(assessments))
	for _, a := range assessments {
		if a.Status != domain.AssessmentDraft {
			rounds = append(rounds, a)
		}
	}
	sort.SliceStable(rounds, func(i, j int) bool {
		return roundBefore(rounds[i], rounds[j])
	})
	return rounds
}

func roundBefore(a, b domain.Assessment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// ComputeRounds is the pure partitioning step. A student failing round k is dropped from every later round;
// a student without a terminal attempt stays pending and is not eliminated.
func ComputeRounds(jobID string, rounds []domain.Assessment, apps []domain.Application, attempts map[string][]domain.ExamAttempt) domain.RoundSummary {
	var eligible []string
	for _, app := range apps {
		if app.Status.PastMentorApproval() {
			eligible = append(eligible, app.StudentID)
		}
	}
	sort.Strings(eligible)

	summary := domain.RoundSummary{JobID: jobID, Rounds: make([]domain.RoundOutcome, 0, len(rounds))}
	passedAll := make(map[string]int, len(eligible))
	eliminated := make(map[string]bool)

	for _, round := range rounds {
		byStudent := make(map[string]domain.ExamAttempt, len(attempts[round.ID]))
		for _, attempt := range attempts[round.ID] {
			byStudent[attempt.StudentID] = attempt
		}

		outcome := domain.RoundOutcome{
			AssessmentID: round.ID,
			Title:        round.Title,
			PassingScore: round.PassingScore,
			Pending:      []string{},
			Passed:       []string{},
			Failed:       []string{},
		}
		var failedNow []string
		for _, studentID := range eligible {
			if eliminated[studentID] {
				continue
			}
			attempt, ok := byStudent[studentID]
			switch {
			case !ok || !attempt.Status.Terminal():
				outcome.Pending = append(outcome.Pending, studentID)
			case attempt.Percentage >= round.PassingScore:
				outcome.Passed = append(outcome.Passed, studentID)
				passedAll[studentID]++
			default:
				outcome.Failed = append(outcome.Failed, studentID)
				failedNow = append(failedNow, studentID)
			}
		}
		for _, id := range failedNow {
			eliminated[id] = true
		}
		summary.Rounds = append(summary.Rounds, outcome)
	}

	summary.Survivors = []string{}
	for _, studentID := range eligible {
		if passedAll[studentID] == len(rounds) {
			summary.Survivors = append(summary.Survivors, studentID)
		}
	}
	return summary
}
