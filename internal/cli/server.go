package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/infra/memory"
	"trivia-quiz-service/internal/infra/opentdb"
	pgsource "trivia-quiz-service/internal/infra/postgres"
	redisstore "trivia-quiz-service/internal/infra/redis"
	"trivia-quiz-service/internal/logger"
	transport "trivia-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Env)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,

			// Storage and marker writes carry their own deadlines.
			ContextTimeoutEnabled: true,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	source, closeSource, err := buildQuestionSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	var (
		storage  app.Storage
		sessions app.SessionRepository
	)
	if redisClient != nil {
		storage = redisstore.NewStorage(redisClient, redisTTL)
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
	} else {
		storage = memory.NewStorage()
		sessions = memory.NewSessionStore()
	}

	period := config.TTLDuration(cfg.Quiz.CountdownPeriod, time.Second)
	service := app.NewQuizService(sessions, storage, source, log,
		app.WithCountdownFactory(func() *app.Countdown { return app.NewCountdown(period) }),
	)
	defer service.Close()

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, cfg.Server.AllowedOrigins, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", zap.String("port", finalPort), zap.String("source", cfg.Quiz.Source))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// buildQuestionSource selects the question source named by quiz.source.
func buildQuestionSource(ctx context.Context, cfg config.Config) (app.QuestionSource, func(), error) {
	switch cfg.Quiz.Source {
	case config.SourceOpenTDB:
		timeout := config.TTLDuration(cfg.Quiz.RequestTimeout, 10*time.Second)
		return opentdb.NewClient(cfg.Quiz.APIURL, timeout), func() {}, nil
	case config.SourcePostgres:
		if cfg.Postgres.URL == "" {
			return nil, nil, fmt.Errorf("quiz source postgres requires postgres.url")
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		return pgsource.NewQuestionSource(pool), pool.Close, nil
	case config.SourceStatic:
		return memory.NewStaticQuestionSource(memory.DefaultQuestions()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown quiz source %q", cfg.Quiz.Source)
	}
}
