package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"placement-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const assessmentColumns = `id, job_id, title, duration_minutes, passing_score, status, total_marks, question_count, starts_at, ends_at, created_at`

// AssessmentRepository stores assessments, their questions (JSONB options and test cases) and assignments.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

func (r *AssessmentRepository) Create(ctx context.Context, a domain.Assessment) (domain.Assessment, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assessments (`+assessmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.JobID, a.Title, a.DurationMinutes, a.PassingScore, string(a.Status), a.TotalMarks, a.QuestionCount, a.StartsAt, a.EndsAt, a.CreatedAt)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("insert assessment: %w", err)
	}
	return a, nil
}

func (r *AssessmentRepository) Get(ctx context.Context, id string) (domain.Assessment, error) {
	return r.get(ctx, r.pool, id, false)
}

func (r *AssessmentRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Assessment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE job_id=$1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Questions loads the ordered question set; it also serves as the loader behind the question caches.
func (r *AssessmentRepository) Questions(ctx context.Context, assessmentID string) ([]domain.Question, error) {
	if _, err := r.Get(ctx, assessmentID); err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, assessment_id, position, kind, prompt, points, options, correct_option, starter, language, test_cases
		FROM questions WHERE assessment_id=$1 ORDER BY position`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Question, 0)
	for rows.Next() {
		var (
			q            domain.Question
			kind         string
			options, tcs []byte
		)
		if err := rows.Scan(&q.ID, &q.AssessmentID, &q.Position, &kind, &q.Prompt, &q.Points, &options, &q.CorrectOption, &q.Starter, &q.Language, &tcs); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Kind = domain.QuestionKind(kind)
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		if err := json.Unmarshal(tcs, &q.TestCases); err != nil {
			return nil, fmt.Errorf("unmarshal test cases: %w", err)
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if len(q.TestCases) == 0 {
			q.TestCases = nil
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// AppendQuestions inserts the batch and the new totals in one transaction, locking the assessment row so
// concurrent appends and activation serialize.
func (r *AssessmentRepository) AppendQuestions(ctx context.Context, assessmentID string, questions []domain.Question, totalMarks int) (domain.Assessment, error) {
	var updated domain.Assessment
	err := r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		current, err := r.get(ctx, tx, assessmentID, true)
		if err != nil {
			return err
		}
		if current.Status != domain.AssessmentDraft {
			return domain.ErrStaleState
		}
		batch := &pgx.Batch{}
		for _, q := range questions {
			options, err := json.Marshal(nonNil(q.Options))
			if err != nil {
				return err
			}
			tcs, err := json.Marshal(nonNilCases(q.TestCases))
			if err != nil {
				return err
			}
			batch.Queue(`
				INSERT INTO questions (id, assessment_id, position, kind, prompt, points, options, correct_option, starter, language, test_cases)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				q.ID, assessmentID, q.Position, string(q.Kind), q.Prompt, q.Points, string(options), q.CorrectOption, q.Starter, q.Language, string(tcs))
		}
		br := tx.SendBatch(ctx, batch)
		for range questions {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("insert question: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return err
		}
		updated, err = scanAssessment(tx.QueryRow(ctx, `
			UPDATE assessments
			SET total_marks=$2, question_count=(SELECT count(*) FROM questions WHERE assessment_id=$1)
			WHERE id=$1
			RETURNING `+assessmentColumns, assessmentID, totalMarks))
		return err
	})
	if err != nil {
		return domain.Assessment{}, err
	}
	return updated, nil
}

// UpdateStatus writes status and window fields only when the row still carries expected.
func (r *AssessmentRepository) UpdateStatus(ctx context.Context, a domain.Assessment, expected domain.AssessmentStatus) (domain.Assessment, error) {
	updated, err := scanAssessment(r.pool.QueryRow(ctx, `
		UPDATE assessments SET status=$2, starts_at=$3, ends_at=$4
		WHERE id=$1 AND status=$5
		RETURNING `+assessmentColumns,
		a.ID, string(a.Status), a.StartsAt, a.EndsAt, string(expected)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.Get(ctx, a.ID); gerr != nil {
			return domain.Assessment{}, gerr
		}
		return domain.Assessment{}, domain.ErrStaleState
	}
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("update assessment: %w", err)
	}
	return updated, nil
}

func (r *AssessmentRepository) Assignments(ctx context.Context, assessmentID string) ([]domain.Assignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT assessment_id, student_id, deadline, assigned_at
		FROM assignments WHERE assessment_id=$1 ORDER BY student_id`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Assignment, 0)
	for rows.Next() {
		var a domain.Assignment
		if err := rows.Scan(&a.AssessmentID, &a.StudentID, &a.Deadline, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAssignments swaps the whole eligibility set atomically.
func (r *AssessmentRepository) ReplaceAssignments(ctx context.Context, assessmentID string, assignments []domain.Assignment) error {
	return r.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := r.get(ctx, tx, assessmentID, true); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM assignments WHERE assessment_id=$1`, assessmentID); err != nil {
			return fmt.Errorf("clear assignments: %w", err)
		}
		for _, a := range assignments {
			if _, err := tx.Exec(ctx, `
				INSERT INTO assignments (assessment_id, student_id, deadline, assigned_at)
				VALUES ($1, $2, $3, $4)`,
				assessmentID, a.StudentID, a.Deadline, a.AssignedAt); err != nil {
				return fmt.Errorf("insert assignment: %w", err)
			}
		}
		return nil
	})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *AssessmentRepository) get(ctx context.Context, q querier, id string, forUpdate bool) (domain.Assessment, error) {
	query := `SELECT ` + assessmentColumns + ` FROM assessments WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAssessment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assessment{}, domain.ErrAssessmentNotFound
	}
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("load assessment: %w", err)
	}
	return a, nil
}

func scanAssessment(row pgx.Row) (domain.Assessment, error) {
	var (
		a              domain.Assessment
		status         string
		startsAt, ends *time.Time
	)
	err := row.Scan(&a.ID, &a.JobID, &a.Title, &a.DurationMinutes, &a.PassingScore, &status, &a.TotalMarks, &a.QuestionCount, &startsAt, &ends, &a.CreatedAt)
	a.Status = domain.AssessmentStatus(status)
	a.StartsAt = startsAt
	a.EndsAt = ends
	return a, err
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilCases(in []domain.TestCase) []domain.TestCase {
	if in == nil {
		return []domain.TestCase{}
	}
	return in
}
