package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"groupquiz-service/internal/app"
	"groupquiz-service/internal/domain"
	pgstore "groupquiz-service/internal/infra/postgres"
	pgmigrations "groupquiz-service/internal/infra/postgres/migrations"
	infraredis "groupquiz-service/internal/infra/redis"
)

func TestQuizRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	progress := pgstore.NewProgressStore(pool, nil)
	leaderboard := pgstore.NewLeaderboardStore(pool)
	sessions := pgstore.NewSessionStore(pool)
	members := pgstore.NewMembershipStore(pool)
	questions := infraredis.NewQuestionSetRepository(redisClient, pgstore.NewQuestionSetLoader(pool), 5*time.Minute)

	sessionSvc := app.NewSessionService(sessions, members, nil)
	runSvc := app.NewRunService(progress, leaderboard, questions, nil, nil)
	guard := app.NewResultsGuard(progress, leaderboard, nil)

	session, err := sessionSvc.CreateSession(ctx, "g1", "u-owner", "integration quiz", nil,
		map[string]string{"easy": "tok-easy"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	run, err := runSvc.StartRun(ctx, session, "u1", domain.QuizSettings{})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := run.SelectAnswer(ctx, 0, "B"); err != nil {
		t.Fatalf("answer q1: %v", err)
	}
	if err := run.AdvanceQuestion(ctx); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := run.SelectAnswer(ctx, 1, "A"); err != nil {
		t.Fatalf("answer q2: %v", err)
	}
	if err := run.SubmitSet(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// The final submit persisted both the completed progress row and the
	// leaderboard entry.
	record, err := progress.Get(ctx, session.ID, "u1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if !record.Completed || record.TotalAnswered != 2 || record.CorrectAnswers != 1 {
		t.Fatalf("unexpected progress %+v", record)
	}
	entry, err := leaderboard.Get(ctx, session.ID, "u1")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	if entry.ScorePercent != 50 {
		t.Fatalf("expected 50%%, got %d", entry.ScorePercent)
	}

	// The completed row rejects plain progress writes at the SQL level.
	err = progress.Upsert(ctx, domain.ProgressUpdate{SessionID: session.ID, UserID: "u1", TotalAnswered: 1})
	if !errors.Is(err, domain.ErrAttemptCompleted) {
		t.Fatalf("expected ErrAttemptCompleted, got %v", err)
	}

	// The results guard sees the attempt; discarding clears it.
	decision := guard.CheckBeforeStart(ctx, session.ID, "u1")
	if !decision.RequireChoice {
		t.Fatalf("expected existing-results choice, got %+v", decision)
	}
	if err := guard.DiscardAndRestart(ctx, session.ID, "u1"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := progress.Get(ctx, session.ID, "u1"); !errors.Is(err, domain.ErrProgressNotFound) {
		t.Fatalf("expected row gone after discard, got %v", err)
	}
}

func TestSessionLifecyclePostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	sessions := pgstore.NewSessionStore(pool)
	svc := app.NewSessionService(sessions, pgstore.NewMembershipStore(pool), nil)

	future := time.Now().Add(time.Hour)
	session, err := svc.CreateSession(ctx, "g1", "u-owner", "scheduled quiz", &future, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Status != domain.StatusScheduled {
		t.Fatalf("expected scheduled, got %s", session.Status)
	}

	started, err := svc.Start(ctx, session.ID, "u-owner")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", started.Status)
	}

	listed, err := svc.ListByGroup(ctx, "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != session.ID {
		t.Fatalf("unexpected listing %+v", listed)
	}

	// Overdue expiry only touches scheduled rows past the cutoff.
	stale := time.Now().Add(-48 * time.Hour)
	overdue, err := svc.CreateSession(ctx, "g1", "u-owner", "stale", &stale, nil)
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if err := sessions.SetStatus(ctx, overdue.ID, domain.StatusScheduled); err != nil {
		t.Fatalf("reset status: %v", err)
	}
	n, err := svc.ExpireOverdue(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one expiry, got %d", n)
	}
	got, err := svc.Get(ctx, overdue.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

// migrateAndSeed applies the migrations, then seeds a two-question easy set
// and the g1 membership the tests assume.
func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) {
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

	set := domain.DifficultyGroup{
		Difficulty: domain.DifficultyEasy,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "What is 2 + 2?", Options: []domain.Option{
				{Letter: "A", Text: "3"}, {Letter: "B", Text: "4"},
			}, CorrectIndex: 1},
			{ID: "q2", Prompt: "What is 3 + 3?", Options: []domain.Option{
				{Letter: "A", Text: "6"}, {Letter: "B", Text: "7"},
			}, CorrectIndex: 0},
		},
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO question_sets (token, difficulty, data) VALUES (?, ?, ?::jsonb)
		ON CONFLICT (token) DO UPDATE SET data=EXCLUDED.data`,
		"tok-easy", string(domain.DifficultyEasy), string(data)); err != nil {
		t.Fatalf("insert question set: %v", err)
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO study_group_members (group_id, user_id, role) VALUES
			('g1', 'u-owner', 'owner'), ('g1', 'u1', 'member')
		ON CONFLICT (group_id, user_id) DO NOTHING`); err != nil {
		t.Fatalf("insert members: %v", err)
	}
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
