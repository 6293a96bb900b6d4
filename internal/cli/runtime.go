package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"placement-service/internal/app"
	"placement-service/internal/config"
	"placement-service/internal/evaluator"
	"placement-service/internal/infra/memory"
	pgstore "placement-service/internal/infra/postgres"
	redisstore "placement-service/internal/infra/redis"
	"placement-service/internal/notify"
	transport "placement-service/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runtime holds the wired services and the resources that must be released on shutdown.
type runtime struct {
	cfg         config.Config
	pipeline    *app.PipelineService
	assessments *app.AssessmentService
	attempts    *app.AttemptService
	rounds      *app.RoundService
	countdown   *app.Countdown

	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// setupLogging installs one JSON logger in every package that logs.
func setupLogging() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	app.SetLogger(l)
	redisstore.SetLogger(l)
	evaluator.SetLogger(l)
	notify.SetLogger(l)
	transport.SetLogger(l)
	return l
}

// buildRuntime picks Postgres/Redis adapters when configured and in-memory ones otherwise.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	var (
		apps        app.ApplicationRepository
		assessments app.AssessmentRepository
		attempts    app.AttemptRepository
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		apps = pgstore.NewApplicationRepository(pool)
		assessments = pgstore.NewAssessmentRepository(pool)
		attempts = pgstore.NewAttemptRepository(pool)
	} else {
		slog.Warn("postgres url not configured, using in-memory stores")
		apps = memory.NewApplicationStore()
		assessments = memory.NewAssessmentStore()
		attempts = memory.NewAttemptStore()
	}

	cacheTTL := config.TTLDuration(cfg.Assessment.CacheTTL, 10*time.Minute)
	runWindow := config.TTLDuration(cfg.Assessment.RunWindow, time.Minute)
	runLimit := cfg.Assessment.RunLimit
	if runLimit == 0 {
		runLimit = 10
	}

	var (
		questions app.QuestionCache
		drafts    app.DraftStore
		limiter   app.RunLimiter
		sinks     = []notify.Sink{notify.LogSink{}}
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		questions = redisstore.NewQuestionCache(client, assessments, cacheTTL)
		drafts = redisstore.NewDraftStore(client)
		limiter = redisstore.NewRunLimiter(client, runLimit, runWindow)
		sinks = append(sinks, redisstore.NewPublisher(client))
	} else {
		questions = memory.NewQuestionCache(assessments, cacheTTL)
		drafts = memory.NewDraftStore()
		limiter = memory.NewRunLimiter(runLimit, runWindow)
		sinks = append(sinks, memory.NewOutbox())
	}

	dispatcher := notify.NewDispatcher(256, 5*time.Second, sinks...)
	rt.closers = append(rt.closers, dispatcher.Close)

	var eval app.Evaluator = evaluator.Unavailable{}
	if cfg.Evaluator.BaseURL != "" {
		client, err := evaluator.NewDefaultClient(evaluatorConfig(cfg))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		eval = client
	} else {
		slog.Warn("evaluator base_url not configured, coding answers cannot be graded")
	}

	directory := memory.NewStaticDirectory(cfg.Directory.PlacementOffice, cfg.Directory.Recruiters)
	rt.countdown = app.NewCountdown(config.TTLDuration(cfg.Assessment.SubmitRetry, 5*time.Second))
	rt.closers = append(rt.closers, rt.countdown.Stop)

	rt.pipeline = app.NewPipelineService(apps, dispatcher, directory)
	rt.rounds = app.NewRoundService(assessments, apps, attempts)
	rt.assessments = app.NewAssessmentService(assessments, apps, rt.rounds, dispatcher).WithMinQuestions(minQuestions(cfg))
	rt.attempts = app.NewAttemptService(app.AttemptDeps{
		Attempts:    attempts,
		Assessments: assessments,
		Questions:   questions,
		Apps:        apps,
		Pipeline:    rt.pipeline,
		Rounds:      rt.rounds,
		Drafts:      drafts,
		Evaluator:   eval,
		Limiter:     limiter,
		Notifier:    dispatcher,
		Countdown:   rt.countdown,
	}).WithDraftRetention(config.TTLDuration(cfg.Redis.TTL, 0))
	ok = true
	return rt, nil
}

// minQuestions never lets configuration lower the activation threshold below the domain minimum.
func minQuestions(cfg config.Config) int {
	if cfg.Assessment.MinQuestions < app.MinQuestions {
		return app.MinQuestions
	}
	return cfg.Assessment.MinQuestions
}

func evaluatorConfig(cfg config.Config) evaluator.Config {
	def := evaluator.DefaultConfig()
	out := evaluator.Config{
		BaseURL:                 cfg.Evaluator.BaseURL,
		Timeout:                 config.TTLDuration(cfg.Evaluator.Timeout, def.Timeout),
		Retries:                 cfg.Evaluator.Retries,
		Backoff:                 config.TTLDuration(cfg.Evaluator.Backoff, def.Backoff),
		CircuitFailureThreshold: cfg.Evaluator.CircuitFailureThreshold,
		CircuitReset:            config.TTLDuration(cfg.Evaluator.CircuitReset, def.CircuitReset),
	}
	if out.Retries == 0 {
		out.Retries = def.Retries
	}
	if out.CircuitFailureThreshold == 0 {
		out.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	return out
}
