package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/domain"
	"placement-service/internal/infra/memory"
	pgstore "placement-service/internal/infra/postgres"
	pgmigrations "placement-service/internal/infra/postgres/migrations"
	infraredis "placement-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

type echoEvaluator struct{}

func (echoEvaluator) Evaluate(_ context.Context, req domain.EvaluationRequest) (domain.EvaluationResult, error) {
	res := domain.EvaluationResult{TotalCount: len(req.TestCases)}
	for _, tc := range req.TestCases {
		passed := strings.TrimSpace(req.Code) == tc.Expected
		if passed {
			res.PassedCount++
		}
		res.Cases = append(res.Cases, domain.CaseResult{Actual: req.Code, Passed: passed})
	}
	return res, nil
}

type stack struct {
	pool     *pgxpool.Pool
	pipeline *app.PipelineService
	authors  *app.AssessmentService
	attempts *app.AttemptService
	rounds   *app.RoundService
	outbox   *memory.Outbox
}

func newStack(t *testing.T, ctx context.Context) *stack {
	t.Helper()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	t.Cleanup(pgCleanup)
	redisURL, redisCleanup := startRedis(t, ctx)
	t.Cleanup(redisCleanup)

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	t.Cleanup(pool.Close)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	t.Cleanup(func() { _ = redisClient.Close() })

	apps := pgstore.NewApplicationRepository(pool)
	assessments := pgstore.NewAssessmentRepository(pool)
	attempts := pgstore.NewAttemptRepository(pool)
	outbox := memory.NewOutbox()

	pipeline := app.NewPipelineService(apps, outbox, memory.NewStaticDirectory(nil, nil))
	rounds := app.NewRoundService(assessments, apps, attempts)
	return &stack{
		pool:     pool,
		pipeline: pipeline,
		authors:  app.NewAssessmentService(assessments, apps, rounds, outbox),
		attempts: app.NewAttemptService(app.AttemptDeps{
			Attempts:    attempts,
			Assessments: assessments,
			Questions:   infraredis.NewQuestionCache(redisClient, assessments, 5*time.Minute),
			Apps:        apps,
			Pipeline:    pipeline,
			Rounds:      rounds,
			Drafts:      infraredis.NewDraftStore(redisClient),
			Evaluator:   echoEvaluator{},
			Limiter:     infraredis.NewRunLimiter(redisClient, 5, time.Minute),
			Notifier:    outbox,
		}),
		rounds: rounds,
		outbox: outbox,
	}
}

func TestAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	application, err := s.pipeline.Apply(ctx, "stu-1", "job-1", "men-1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := s.pipeline.Apply(ctx, "stu-1", "job-1", "men-1"); !errors.Is(err, domain.ErrDuplicateApplication) {
		t.Fatalf("expected duplicate application, got %v", err)
	}
	if _, err := s.pipeline.Approve(ctx, application.ID, "men-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	assessment, err := s.authors.CreateDraft(ctx, "job-1", "Coding round", 45, 60)
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := s.authors.AddQuestions(ctx, assessment.ID, sampleQuestions()); err != nil {
		t.Fatalf("add questions: %v", err)
	}
	activated, assigned, err := s.authors.Activate(ctx, assessment.ID)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Status != domain.AssessmentActive || activated.TotalMarks != 14 || len(assigned) != 1 {
		t.Fatalf("unexpected activation: %+v assignments=%d", activated, len(assigned))
	}

	view, err := s.attempts.Start(ctx, "stu-1", assessment.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Drafts["code-1"].Answer != "func solve() {}" {
		t.Fatalf("expected starter code seeded, got %+v", view.Drafts["code-1"])
	}
	resumed, err := s.attempts.Start(ctx, "stu-1", assessment.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Attempt.ID != view.Attempt.ID {
		t.Fatalf("expected the same attempt on resume")
	}

	for i := 1; i <= 8; i++ {
		if err := s.attempts.SaveDraft(ctx, view.Attempt.ID, "stu-1", fmt.Sprintf("mcq-%d", i), "", "b"); err != nil {
			t.Fatalf("save draft: %v", err)
		}
	}
	if err := s.attempts.SaveDraft(ctx, view.Attempt.ID, "stu-1", "code-1", "go", "42"); err != nil {
		t.Fatalf("save code draft: %v", err)
	}
	report, err := s.attempts.RunTests(ctx, view.Attempt.ID, "stu-1", "code-1", "42", "go")
	if err != nil {
		t.Fatalf("run tests: %v", err)
	}
	if report.Passed != 2 || report.Total != 3 {
		t.Fatalf("expected 2 of 3 on the run, got %+v", report)
	}

	var wg sync.WaitGroup
	results := make([]domain.AttemptResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.attempts.Submit(ctx, view.Attempt.ID, domain.TriggerManual)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	// 8 of 10 MCQs plus 2 of 3 test cases: 10 of 13 checks
	got := results[0].Attempt
	if got.TestsPassed != 10 || got.TestsTotal != 13 || got.Percentage != 77 || got.Status != domain.AttemptPassed {
		t.Fatalf("unexpected result: %+v", got)
	}
	if results[1].Attempt.Percentage != got.Percentage {
		t.Fatalf("concurrent submits disagree: %d vs %d", results[1].Attempt.Percentage, got.Percentage)
	}

	stored, err := s.attempts.Result(ctx, view.Attempt.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(stored.Submissions) != 11 {
		t.Fatalf("expected a submission per question, got %d", len(stored.Submissions))
	}

	after, err := s.pipeline.Get(ctx, application.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if after.Status != domain.StatusShortlisted {
		t.Fatalf("expected shortlisted, got %s", after.Status)
	}

	summary, err := s.rounds.Summary(ctx, "job-1")
	if err != nil {
		t.Fatalf("rounds: %v", err)
	}
	if len(summary.Rounds) != 1 || len(summary.Rounds[0].Passed) != 1 || len(summary.Survivors) != 1 {
		t.Fatalf("unexpected round summary: %+v", summary)
	}
}

func TestApplicationStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, ctx)

	application, err := s.pipeline.Apply(ctx, "stu-2", "job-2", "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.pipeline.Approve(ctx, application.ID, fmt.Sprintf("men-%d", i))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrStaleState), errors.Is(err, domain.ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one approval to win, got %d", ok)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "placement", "POSTGRES_PASSWORD": "placementpass", "POSTGRES_DB": "placementdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://placement:placementpass@%s:%s/placementdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

// sampleQuestions is ten single-point MCQs plus one coding question worth four points.
func sampleQuestions() []domain.Question {
	qs := make([]domain.Question, 0, 11)
	for i := 1; i <= 10; i++ {
		qs = append(qs, domain.Question{
			ID:            fmt.Sprintf("mcq-%d", i),
			Kind:          domain.QuestionMCQ,
			Prompt:        fmt.Sprintf("Question %d", i),
			Points:        1,
			Options:       []string{"a", "b", "c", "d"},
			CorrectOption: "b",
		})
	}
	qs = append(qs, domain.Question{
		ID:       "code-1",
		Kind:     domain.QuestionCoding,
		Prompt:   "Print the answer",
		Points:   4,
		Starter:  "func solve() {}",
		Language: "go",
		TestCases: []domain.TestCase{
			{Input: "", Expected: "42"},
			{Input: "x", Expected: "42"},
			{Input: "y", Expected: "43", Hidden: true},
		},
	})
	return qs
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
