package integration

import (
	"context"
	"database/sql"
	"encoding/json"
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

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestQuizGradingEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	state := infraredis.NewStateStore(redisClient)
	quizzes := pgstore.NewQuizStore(pool)
	results := pgstore.NewResultStore(pool)
	malpractice := pgstore.NewMalpracticeStore(pool)
	queue := memory.NewQueue()
	hub := app.NewHub()

	coordinator := app.NewCoordinator(state, quizzes, malpractice, queue, state, hub, time.Hour)

	quiz, err := coordinator.CreateQuiz(ctx, app.QuizDraft{
		Title: "Integration",
		Questions: []domain.Question{
			{Text: "Q1", Options: options(), CorrectOption: "A", Marks: 10, TimeLimit: 20},
			{Text: "Q2", Options: options(), CorrectOption: "B", Marks: 10, TimeLimit: 20},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	// The snapshot must be live in redis under the well-known key.
	raw, err := state.Get(ctx, app.ActiveQuizKey)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snapshot domain.ActiveQuizSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.ID != quiz.ID {
		t.Fatalf("snapshot points at %s, expected %s", snapshot.ID, quiz.ID)
	}

	notifications, cancelSub, err := state.Subscribe(ctx, domain.NotificationChannel)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelSub()

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	worker := app.NewWorker(queue, app.NewGrader(quizzes, results, state))
	go func() { _ = worker.Run(workerCtx) }()

	taken := 8
	if err := coordinator.RecordAnswer(ctx, "alice", 0, "A", &taken); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if err := coordinator.RecordAnswer(ctx, "alice", 1, "D", nil); err != nil {
		t.Fatalf("record answer: %v", err)
	}
	if err := coordinator.FinishSession(ctx, "alice", 30); err != nil {
		t.Fatalf("finish session: %v", err)
	}

	waitForNotification(t, notifications, domain.NotifyQuizCompleted, "alice")

	saved, err := results.FindByStudent(ctx, "alice")
	if err != nil {
		t.Fatalf("find results: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one result, got %d", len(saved))
	}
	if saved[0].Score != 10 || saved[0].TotalMarks != 20 {
		t.Fatalf("expected 10/20, got %d/%d", saved[0].Score, saved[0].TotalMarks)
	}
	if len(saved[0].Answers) != 2 || saved[0].Answers[1].IsCorrect {
		t.Fatalf("unexpected breakdown: %+v", saved[0].Answers)
	}

	if _, err := coordinator.EndQuiz(ctx); err != nil {
		t.Fatalf("end quiz: %v", err)
	}
	stored, err := quizzes.FindByID(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("load quiz: %v", err)
	}
	if stored.Status != domain.StatusEnded {
		t.Fatalf("expected ended status, got %s", stored.Status)
	}
}

func TestUserStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, cleanup := startPostgres(t, ctx)
	defer cleanup()
	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	for _, row := range [][4]string{
		{"alice", "Alice", "student", "A"},
		{"bob", "Bob", "student", "B"},
		{"teach", "Teacher", "teacher", ""},
	} {
		if _, err := pool.Exec(ctx, `INSERT INTO users (userid, name, role, section) VALUES ($1,$2,$3,$4)`,
			row[0], row[1], row[2], row[3]); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	users := pgstore.NewUserStore(pool)
	alice, err := users.FindByID(ctx, "alice")
	if err != nil {
		t.Fatalf("find alice: %v", err)
	}
	if alice.Section != "A" || alice.Role != domain.RoleStudent {
		t.Fatalf("unexpected user: %+v", alice)
	}
	if _, err := users.FindByID(ctx, "ghost"); err != domain.ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	students, err := users.FindStudents(ctx)
	if err != nil {
		t.Fatalf("find students: %v", err)
	}
	if len(students) != 2 || students[0].UserID != "alice" {
		t.Fatalf("unexpected roster: %+v", students)
	}
}

func options() map[string]string {
	return map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"}
}

func waitForNotification(t *testing.T, messages <-chan []byte, wantType, wantUser string) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case raw, ok := <-messages:
			if !ok {
				t.Fatalf("notification stream closed")
			}
			var n domain.Notification
			if err := json.Unmarshal(raw, &n); err != nil {
				t.Fatalf("decode notification: %v", err)
			}
			if n.Type == wantType && n.UserID == wantUser {
				return
			}
		case <-deadline:
			t.Fatalf("never received %s for %s", wantType, wantUser)
		}
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
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
