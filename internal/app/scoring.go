package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"placement-service/internal/domain"

	"golang.org/x/sync/errgroup"
)

// evaluationConcurrency bounds evaluator round-trips in flight for one submission.
const evaluationConcurrency = 4

// Percentage is passed/total*100 rounded to the nearest integer; zero checks yield 0.
func Percentage(passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(passed) * 100 / float64(total)))
}

// awardedScore scales the question's points by the fraction of checks passed.
func awardedScore(points, passed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(points) * float64(passed) / float64(total)))
}

// answered reports whether the candidate produced an answer for the question, as opposed to the seeded starter.
func answered(d domain.Draft, ok bool) bool {
	return ok && d.Touched && strings.TrimSpace(d.Answer) != ""
}

// gradeAll re-derives every question's result from the draft buffer. Coding answers go through the evaluator;
// MCQ answers are compared inline. Any evaluator error aborts grading so nothing partial is persisted.
func gradeAll(ctx context.Context, evaluator Evaluator, attemptID string, questions []domain.Question, drafts map[string]domain.Draft) ([]domain.Submission, error) {
	subs := make([]domain.Submission, len(questions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluationConcurrency)

	for i, q := range questions {
		i, q := i, q
		d, ok := drafts[q.ID]
		subs[i] = domain.Submission{
			AttemptID:  attemptID,
			QuestionID: q.ID,
			Language:   d.Language,
			Answer:     d.Answer,
			TestsTotal: q.TotalChecks(),
		}
		if !answered(d, ok) {
			continue
		}
		if q.Kind == domain.QuestionMCQ {
			if d.Answer == q.CorrectOption {
				subs[i].TestsPassed = 1
			}
			subs[i].Score = awardedScore(q.Points, subs[i].TestsPassed, subs[i].TestsTotal)
			continue
		}
		if len(q.TestCases) == 0 {
			continue
		}

		g.Go(func() error {
			passed, err := evaluatePassCount(gctx, evaluator, q, d)
			if err != nil {
				return fmt.Errorf("question %s: %w", q.ID, err)
			}
			subs[i].TestsPassed = passed
			subs[i].Score = awardedScore(q.Points, passed, subs[i].TestsTotal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return subs, nil
}

// evaluatePassCount counts passing cases from the per-case verdicts, clamped to the question's test cases.
func evaluatePassCount(ctx context.Context, evaluator Evaluator, q domain.Question, d domain.Draft) (int, error) {
	language := d.Language
	if language == "" {
		language = q.Language
	}
	res, err := evaluator.Evaluate(ctx, domain.EvaluationRequest{Code: d.Answer, Language: language, TestCases: q.TestCases})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrEvaluationFailure, err)
	}
	if res.TotalCount != len(q.TestCases) {
		return 0, fmt.Errorf("%w: evaluator reported %d cases, expected %d", domain.ErrEvaluationFailure, res.TotalCount, len(q.TestCases))
	}
	passed := 0
	if len(res.Cases) == len(q.TestCases) {
		for _, c := range res.Cases {
			if c.Passed {
				passed++
			}
		}
	} else {
		passed = res.PassedCount
	}
	if passed < 0 {
		passed = 0
	}
	if passed > len(q.TestCases) {
		passed = len(q.TestCases)
	}
	return passed, nil
}

// tally sums checks across all submissions.
func tally(subs []domain.Submission) (passed, total, raw int) {
	for _, s := range subs {
		passed += s.TestsPassed
		total += s.TestsTotal
		raw += s.Score
	}
	return passed, total, raw
}
