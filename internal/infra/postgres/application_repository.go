package postgres

import (
	"context"
	"errors"
	"fmt"

	"placement-service/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const applicationColumns = `id, student_id, job_id, mentor_id, status, notes, approver_id, created_at, updated_at`

// ApplicationRepository stores applications in Postgres.
type ApplicationRepository struct {
	pool *pgxpool.Pool
}

func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{pool: pool}
}

func (r *ApplicationRepository) Create(ctx context.Context, app domain.Application) (domain.Application, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.StudentID, app.JobID, app.MentorID, string(app.Status), app.Notes, app.ApproverID, app.CreatedAt, app.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.Application{}, domain.ErrDuplicateApplication
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("insert application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) Get(ctx context.Context, id string) (domain.Application, error) {
	return r.one(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id=$1`, id)
}

func (r *ApplicationRepository) FindByStudentAndJob(ctx context.Context, studentID, jobID string) (domain.Application, error) {
	return r.one(ctx, `SELECT `+applicationColumns+` FROM applications WHERE student_id=$1 AND job_id=$2`, studentID, jobID)
}

func (r *ApplicationRepository) ListByJob(ctx context.Context, jobID string) ([]domain.Application, error) {
	return r.many(ctx, `SELECT `+applicationColumns+` FROM applications WHERE job_id=$1 ORDER BY created_at, id`, jobID)
}

func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID string) ([]domain.Application, error) {
	return r.many(ctx, `SELECT `+applicationColumns+` FROM applications WHERE student_id=$1 ORDER BY created_at, id`, studentID)
}

// UpdateStatus writes the new status only when the row still carries expected.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, app domain.Application, expected domain.ApplicationStatus) (domain.Application, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE applications
		SET status=$2, notes=$3, approver_id=$4, updated_at=$5
		WHERE id=$1 AND status=$6
		RETURNING `+applicationColumns,
		app.ID, string(app.Status), app.Notes, app.ApproverID, app.UpdatedAt, string(expected))
	updated, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, gerr := r.Get(ctx, app.ID); gerr != nil {
			return domain.Application{}, gerr
		}
		return domain.Application{}, domain.ErrStaleState
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("update application: %w", err)
	}
	return updated, nil
}

func (r *ApplicationRepository) one(ctx context.Context, query string, args ...interface{}) (domain.Application, error) {
	app, err := scanApplication(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	if err != nil {
		return domain.Application{}, fmt.Errorf("load application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) many(ctx context.Context, query string, args ...interface{}) ([]domain.Application, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func scanApplication(row pgx.Row) (domain.Application, error) {
	var (
		app    domain.Application
		status string
	)
	err := row.Scan(&app.ID, &app.StudentID, &app.JobID, &app.MentorID, &status, &app.Notes, &app.ApproverID, &app.CreatedAt, &app.UpdatedAt)
	app.Status = domain.ApplicationStatus(status)
	return app, err
}
