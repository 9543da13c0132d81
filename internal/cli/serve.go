package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbitmq"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand that runs the coordinator.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the live session coordinator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// scheduleSweepInterval is how often the coordinator re-checks scheduled
// start and end times in the background, in addition to the checks on the
// quiz-list read path.
const scheduleSweepInterval = 30 * time.Second

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

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

	deps, cleanup, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	snapshotTTL := config.TTLDuration(cfg.Quiz.SnapshotTTL, app.DefaultSnapshotTTL)

	hub := app.NewHub()
	coordinator := app.NewCoordinator(deps.state, deps.quizzes, deps.malpractice, deps.queue, deps.relay, hub, snapshotTTL)
	arena := app.NewArena(deps.state, hub)
	leaderboard := app.NewLeaderboardService(deps.quizzes, deps.results, deps.users, cfg.Quiz.LeaderboardQuizzes)
	listing := app.NewQuizListing(coordinator, deps.quizzes, deps.results, deps.users)

	coordinator.RestoreActiveState(ctx)

	runCtx, stopTasks := context.WithCancel(ctx)
	defer stopTasks()

	go func() {
		if err := coordinator.RunRelay(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("notification relay stopped: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(scheduleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				coordinator.SweepSchedules(runCtx)
			}
		}
	}()

	// Without a broker the queue lives in this process, so the grading
	// worker has to as well.
	if deps.embeddedWorker {
		grader := app.NewGrader(deps.quizzes, deps.results, deps.relay)
		worker := app.NewWorker(deps.queue, grader)
		go func() {
			if err := worker.Run(runCtx); err != nil && runCtx.Err() == nil {
				log.Printf("embedded worker stopped: %v", err)
			}
		}()
	}

	wsHandler := transport.NewWSHandler(coordinator, arena)
	apiHandler := transport.NewAPIHandler(leaderboard, listing, deps.quizzes, deps.results)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting live quiz service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}
	stopTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// deps bundles the infrastructure behind the app-layer capabilities, with
// in-memory fallbacks for anything unconfigured.
type deps struct {
	state          app.StateStore
	relay          app.Relay
	queue          app.JobQueue
	quizzes        app.QuizStore
	results        app.ResultStore
	malpractice    app.MalpracticeStore
	users          app.UserStore
	embeddedWorker bool
}

func buildDeps(ctx context.Context, cfg config.Config) (deps, func(), error) {
	var d deps
	cleanups := make([]func(), 0, 3)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanups = append(cleanups, func() { _ = client.Close() })
		store := redisstore.NewStateStore(client)
		d.state = store
		d.relay = store
	} else {
		log.Println("redis not configured, using in-memory state store")
		store := memory.NewStateStore()
		d.state = store
		d.relay = store
	}

	if cfg.RabbitMQ.URL != "" {
		queue, err := rabbitmq.Dial(cfg.RabbitMQ.URL, domain.SubmissionQueue, domain.ValidationQueue)
		if err != nil {
			cleanup()
			return deps{}, nil, err
		}
		cleanups = append(cleanups, func() { _ = queue.Close() })
		d.queue = queue
	} else {
		log.Println("rabbitmq not configured, using in-process queue with embedded worker")
		d.queue = memory.NewQueue()
		d.embeddedWorker = true
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return deps{}, nil, err
		}
		cleanups = append(cleanups, pool.Close)
		d.quizzes = pgstore.NewQuizStore(pool)
		d.results = pgstore.NewResultStore(pool)
		d.malpractice = pgstore.NewMalpracticeStore(pool)
		d.users = pgstore.NewUserStore(pool)
	} else {
		log.Println("postgres not configured, using in-memory record stores")
		d.quizzes = memory.NewQuizStore()
		d.results = memory.NewResultStore()
		d.malpractice = memory.NewMalpracticeStore()
		d.users = memory.NewUserStore()
	}

	return d, cleanup, nil
}
