package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"team-quiz-service/internal/app"
	"team-quiz-service/internal/config"
	fileinfra "team-quiz-service/internal/infra/file"
	"team-quiz-service/internal/infra/memory"
	pgloader "team-quiz-service/internal/infra/postgres"
	redisinfra "team-quiz-service/internal/infra/redis"
	transport "team-quiz-service/internal/transport/http"
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
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	quizID := cfg.Quiz.ID
	if quizID == "" {
		quizID = "default"
	}
	quizFile := cfg.Quiz.File
	if quizFile == "" {
		quizFile = "config/quiz.json"
	}

	var loader memory.QuizLoader = fileinfra.NewQuizLoader(quizFile, 0)
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	quiz, err := quizRepo.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.DefaultTimeLimitSeconds == 0 {
		quiz.DefaultTimeLimitSeconds = defaultTimeLimit(cfg)
	}
	if err := fileinfra.Validate(quiz); err != nil {
		return err
	}

	var archiver app.Archiver
	if redisClient != nil {
		archiveTTL := config.TTLDuration(cfg.Redis.TTL, 0)
		archiver = redisinfra.NewArchive(redisClient, quizID, archiveTTL)
	} else {
		archiver = memory.NewArchive()
	}

	session := app.NewSession(quiz)
	service := app.NewService(session, archiver, logger)
	if err := service.RestoreFromArchive(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore archived session state")
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.NewRouter(service, adminToken(cfg), logger)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Str("quiz", quizID).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server...")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func adminToken(cfg config.Config) string {
	if cfg.Admin.Token != "" {
		return cfg.Admin.Token
	}
	if env := os.Getenv("ADMIN_TOKEN"); env != "" {
		return env
	}
	return "changeme"
}

func defaultTimeLimit(cfg config.Config) int {
	if cfg.Quiz.DefaultTimeLimit > 0 {
		return cfg.Quiz.DefaultTimeLimit
	}
	if env := os.Getenv("DEFAULT_TIME_LIMIT"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
