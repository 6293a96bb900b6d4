package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"placement-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const attemptColumns = `id, assessment_id, student_id, application_id, started_at, submitted_at, status, submit_trigger, raw_score, tests_passed, tests_total, percentage`

// AttemptRepository stores exam attempts and their per-question submissions.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Create(ctx context.Context, a domain.ExamAttempt) (domain.ExamAttempt, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.AssessmentID, a.StudentID, a.ApplicationID, a.StartedAt, a.SubmittedAt, string(a.Status), string(a.Trigger),
		a.RawScore, a.TestsPassed, a.TestsTotal, a.Percentage)
	if isUniqueViolation(err) {
		return domain.ExamAttempt{}, domain.ErrAttemptExists
	}
	if err != nil {
		return domain.ExamAttempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

func (r *AttemptRepository) Get(ctx context.Context, id string) (domain.ExamAttempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id=$1`, id)
}

func (r *AttemptRepository) FindByStudentAndAssessment(ctx context.Context, studentID, assessmentID string) (domain.ExamAttempt, error) {
	return r.one(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE student_id=$1 AND assessment_id=$2`, studentID, assessmentID)
}

func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID string) ([]domain.ExamAttempt, error) {
	return r.many(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE assessment_id=$1 ORDER BY started_at, id`, assessmentID)
}

func (r *AttemptRepository) ListInProgress(ctx context.Context) ([]domain.ExamAttempt, error) {
	return r.many(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE status=$1 ORDER BY started_at, id`, string(domain.AttemptInProgress))
}

// Finalize closes the attempt with a conditional update and upserts its submissions in the same
// transaction; a concurrent finalizer makes it return domain.ErrAlreadyTerminal.
func (r *AttemptRepository) Finalize(ctx context.Context, a domain.ExamAttempt, submissions []domain.Submission) error {
	return r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE attempts
			SET submitted_at=$2, status=$3, submit_trigger=$4, raw_score=$5, tests_passed=$6, tests_total=$7, percentage=$8
			WHERE id=$1 AND status=$9`,
			a.ID, a.SubmittedAt, string(a.Status), string(a.Trigger), a.RawScore, a.TestsPassed, a.TestsTotal, a.Percentage,
			string(domain.AttemptInProgress))
		if err != nil {
			return fmt.Errorf("finalize attempt: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attempts WHERE id=$1)`, a.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrAttemptNotFound
			}
			return domain.ErrAlreadyTerminal
		}
		for _, s := range submissions {
			if _, err := tx.Exec(ctx, `
				INSERT INTO submissions (attempt_id, question_id, language, answer, tests_passed, tests_total, score)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (attempt_id, question_id) DO UPDATE
				SET language=EXCLUDED.language, answer=EXCLUDED.answer, tests_passed=EXCLUDED.tests_passed,
				    tests_total=EXCLUDED.tests_total, score=EXCLUDED.score`,
				a.ID, s.QuestionID, s.Language, s.Answer, s.TestsPassed, s.TestsTotal, s.Score); err != nil {
				return fmt.Errorf("upsert submission: %w", err)
			}
		}
		return nil
	})
}

func (r *AttemptRepository) Submissions(ctx context.Context, attemptID string) ([]domain.Submission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT attempt_id, question_id, language, answer, tests_passed, tests_total, score
		FROM submissions WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Submission, 0)
	for rows.Next() {
		var s domain.Submission
		if err := rows.Scan(&s.AttemptID, &s.QuestionID, &s.Language, &s.Answer, &s.TestsPassed, &s.TestsTotal, &s.Score); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *AttemptRepository) one(ctx context.Context, query string, args ...interface{}) (domain.ExamAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ExamAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.ExamAttempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return a, nil
}

func (r *AttemptRepository) many(ctx context.Context, query string, args ...interface{}) ([]domain.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()
	out := make([]domain.ExamAttempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row pgx.Row) (domain.ExamAttempt, error) {
	var (
		a               domain.ExamAttempt
		submittedAt     *time.Time
		status, trigger string
	)
	err := row.Scan(&a.ID, &a.AssessmentID, &a.StudentID, &a.ApplicationID, &a.StartedAt, &submittedAt, &status, &trigger,
		&a.RawScore, &a.TestsPassed, &a.TestsTotal, &a.Percentage)
	a.SubmittedAt = submittedAt
	a.Status = domain.AttemptStatus(status)
	a.Trigger = domain.SubmitTrigger(trigger)
	return a, err
}
