package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/pairwise/internal/auth"
	"github.com/gokatarajesh/pairwise/internal/auth/jwt"
	"github.com/gokatarajesh/pairwise/internal/choice"
	"github.com/gokatarajesh/pairwise/internal/config"
	"github.com/gokatarajesh/pairwise/internal/counter"
	"github.com/gokatarajesh/pairwise/internal/db/repository"
	"github.com/gokatarajesh/pairwise/internal/feed"
	"github.com/gokatarajesh/pairwise/internal/leaderboard"
	"github.com/gokatarajesh/pairwise/internal/logging"
	"github.com/gokatarajesh/pairwise/internal/metrics"
	"github.com/gokatarajesh/pairwise/internal/prompt"
	"github.com/gokatarajesh/pairwise/internal/scoring"
	"github.com/gokatarajesh/pairwise/internal/scoring/external"
	"github.com/gokatarajesh/pairwise/internal/server"
	"github.com/gokatarajesh/pairwise/internal/tasks"
	ws "github.com/gokatarajesh/pairwise/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server) and
// the background loops of the ranking engine.
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	taskQueue   *tasks.Queue
	worker      *tasks.Worker
	broadcaster *feed.Broadcaster
	rankingSub  *leaderboard.Subscriber
	bgCancels   []context.CancelFunc
	bgDone      []chan struct{}
}

// New bootstraps logger, Postgres, Redis, the domain services and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	store := repository.NewStore(pool, repository.StoreOptions{
		MaxRetries: cfg.Postgres.TxRetries,
		BaseDelay:  cfg.Postgres.TxBackoff,
	}, logger)

	counters := counter.NewSync(logger)
	generator := prompt.NewGenerator(store, counters, logger)
	promptQueue := prompt.NewQueue(redisClient, store, prompt.QueueOptions{
		KeyPrefix: cfg.PromptQueue.KeyPrefix,
		TTL:       cfg.PromptQueue.TTL,
	}, logger)

	taskQueue := tasks.NewQueue(redisClient, tasks.QueueOptions{
		KeyPrefix: cfg.Tasks.KeyPrefix,
		LedgerTTL: cfg.Tasks.LedgerTTL,
	}, logger)
	worker := tasks.NewWorker(taskQueue, tasks.WorkerOptions{
		Concurrency:    cfg.Tasks.Concurrency,
		MaxAttempts:    cfg.Tasks.MaxAttempts,
		BaseBackoff:    cfg.Tasks.BaseBackoff,
		DequeueTimeout: cfg.Tasks.DequeueTimeout,
		TaskTimeout:    cfg.Tasks.TaskTimeout,
	}, logger)
	tasks.RegisterPromptHandlers(worker, generator, promptQueue, logger)
	metrics.TaskQueueDepth(prometheus.DefaultRegisterer, func(list string) float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := taskQueue.Depth(ctx, list)
		if err != nil {
			logger.Warn().Err(err).Str("list", list).Msg("task queue depth unavailable")
			return 0
		}
		return float64(n)
	})

	publisher := feed.NewPublisher(redisClient, cfg.Feed.Channel)
	choiceSvc := choice.NewService(store, counters, promptQueue, taskQueue, publisher, logger)

	var probs scoring.ProbabilitySource
	if cfg.Scoring.ProbabilitiesURL != "" {
		client := external.NewClient(cfg.Scoring.ProbabilitiesURL, cfg.Scoring.ProbabilitiesKey,
			&http.Client{Timeout: cfg.Scoring.HTTPTimeout})
		probs = external.NewCachedSource(client, redisClient, cfg.Scoring.CacheTTL, logger)
	} else {
		logger.Warn().Msg("SCORING_PROBABILITIES_URL not configured; aggregate scores disabled")
	}
	ranking := leaderboard.NewService(redisClient, store, logger, leaderboard.ServiceOptions{
		TopN:           cfg.Ranking.TopN,
		EntryTTL:       cfg.Ranking.TTL,
		RedisKeyPrefix: cfg.Ranking.KeyPrefix,
	})
	rankingSub := leaderboard.NewSubscriber(redisClient, ranking, cfg.Feed.Channel, logger)
	scoreEngine := scoring.NewEngine(store, probs, logger, scoring.WithRanking(ranking))

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret: []byte(cfg.Security.JWTSecret),
		TTL:    cfg.Security.TokenTTL,
		Issuer: cfg.Name,
	})

	wsHub := ws.NewHub(logger)
	feedHandler := feed.NewHandler(wsHub, store, logger)
	broadcaster := feed.NewBroadcaster(redisClient, wsHub, cfg.Feed.Channel, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, tokens, server.Handlers{
		Auth:         auth.NewHTTPHandlers(tokens, logger),
		Choices:      choice.NewHTTPHandler(choiceSvc, scoreEngine, logger),
		Ranking:      leaderboard.NewHTTPHandler(ranking, logger).HandleGet,
		PromptQueue:  prompt.NewHTTPHandler(promptQueue, logger),
		QuestionFeed: feedHandler.HandleWebSocket,
	})

	return &Application{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redis:       redisClient,
		http:        apiServer,
		taskQueue:   taskQueue,
		worker:      worker,
		broadcaster: broadcaster,
		rankingSub:  rankingSub,
		bgCancels:   make([]context.CancelFunc, 0, 3),
	}, nil
}

// Run starts the HTTP server and background loops and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if _, err := a.taskQueue.Recover(ctx); err != nil {
		a.logger.Error().Err(err).Msg("failed to recover in-flight tasks")
	}

	a.startBackground(ctx, "task worker", a.worker.Run)
	a.startBackground(ctx, "stats broadcaster", a.broadcaster.Run)
	a.startBackground(ctx, "ranking invalidator", a.rankingSub.Run)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}
	for _, done := range a.bgDone {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			a.logger.Warn().Msg("background loop did not stop before shutdown timeout")
		}
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackground(ctx context.Context, name string, run func(context.Context) error) {
	bgCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.bgCancels = append(a.bgCancels, cancel)
	a.bgDone = append(a.bgDone, done)

	go func() {
		defer close(done)
		if err := run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn().Err(err).Str("loop", name).Msg("background loop stopped")
		}
	}()
}
