package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lmittmann/tint"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/config"
	"groupquiz-service/internal/domain"
	"groupquiz-service/internal/infra/memory"
	pginfra "groupquiz-service/internal/infra/postgres"
	redisinfra "groupquiz-service/internal/infra/redis"
	"groupquiz-service/internal/realtime"
	transport "groupquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the group quiz server",
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

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Stores: postgres when configured, otherwise in-memory with sample data.
	var (
		progressStore    app.ProgressStore
		leaderboardStore app.LeaderboardStore
		sessionStore     app.SessionStore
		membershipStore  app.MembershipStore
		setLoader        memory.QuestionSetLoader
	)
	if pool != nil {
		progressStore = pginfra.NewProgressStore(pool, logger)
		leaderboardStore = pginfra.NewLeaderboardStore(pool)
		sessionStore = pginfra.NewSessionStore(pool)
		membershipStore = pginfra.NewMembershipStore(pool)
		setLoader = pginfra.NewQuestionSetLoader(pool)
	} else {
		progressStore = memory.NewProgressStore()
		leaderboardStore = memory.NewLeaderboardStore()
		sessionStore = memory.NewSessionStore()
		membershipStore = memory.NewMembershipStore(sampleMembers())
		setLoader = memory.NewStaticSetLoader(sampleQuestionSets())
	}

	setTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questionRepo app.QuestionSetRepository
	if redisClient != nil {
		questionRepo = redisinfra.NewQuestionSetRepository(redisClient, setLoader, setTTL)
	} else {
		questionRepo = memory.NewQuestionSetRepository(setLoader, setTTL)
	}

	hubOpts := []realtime.Option{}
	if redisClient != nil {
		hubOpts = append(hubOpts, realtime.WithLiveness(redisinfra.NewLivenessIndex(redisClient, redisTTL)))
	}
	hub := realtime.NewHub(logger, hubOpts...)
	if redisClient != nil {
		bridge := realtime.NewRedisBridge(redisClient, hub.InstanceID(), logger)
		hub.SetBridge(bridge)
		go bridge.Run(ctx, hub)
	}

	sessionService := app.NewSessionService(sessionStore, membershipStore, logger)
	runService := app.NewRunService(progressStore, leaderboardStore, questionRepo, hub, logger)
	guard := app.NewResultsGuard(progressStore, leaderboardStore, logger)

	wsHandler := transport.NewWSHandler(hub, sessionService, logger)
	runDefaults := domain.QuizSettings{
		AllowSkip:    cfg.Quiz.AllowSkip,
		SetTimeLimit: config.TTLDuration(cfg.Quiz.SetTimeLimit, 0),
	}
	api := transport.NewAPI(sessionService, runService, guard, progressStore, leaderboardStore,
		sampleVerifier(), wsHandler, runDefaults, logger)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Scheduled sessions left past their start time get cancelled on a timer.
	expiryGrace := config.TTLDuration(cfg.Quiz.ExpiryGrace, 24*time.Hour)
	expiryCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-expiryCtx.Done():
				return
			case <-ticker.C:
				if _, err := sessionService.ExpireOverdue(expiryCtx, expiryGrace); err != nil {
					logger.Warn("session expiry sweep failed", "error", err)
				}
			}
		}
	}()

	go func() {
		logger.Info("starting group quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl}))
}

// sampleMembers seeds the in-memory membership store for backend-less runs.
func sampleMembers() []domain.GroupMember {
	now := time.Now()
	return []domain.GroupMember{
		{GroupID: "group-1", UserID: "u-owner", Role: domain.RoleOwner, JoinedAt: now},
		{GroupID: "group-1", UserID: "u-admin", Role: domain.RoleAdmin, JoinedAt: now},
		{GroupID: "group-1", UserID: "u-member", Role: domain.RoleMember, JoinedAt: now},
	}
}

// sampleVerifier maps demo bearer tokens to user ids; swap for the real auth
// collaborator in production.
func sampleVerifier() transport.AuthVerifier {
	return transport.StaticTokenVerifier{
		"tok-owner":  "u-owner",
		"tok-admin":  "u-admin",
		"tok-member": "u-member",
	}
}

// sampleQuestionSets provides minimal generated sets keyed by share token.
func sampleQuestionSets() map[string]domain.DifficultyGroup {
	return map[string]domain.DifficultyGroup{
		"tok-easy": {
			Difficulty: domain.DifficultyEasy,
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What does 'transcript' mean?",
					Options: []domain.Option{
						{Letter: "A", Text: "A written record of speech"},
						{Letter: "B", Text: "A kind of music"},
						{Letter: "C", Text: "A video format"},
					},
					CorrectIndex: 0,
					Difficulty:   domain.DifficultyEasy,
					Explanation:  "A transcript is the written form of spoken words.",
				},
			},
		},
	}
}
