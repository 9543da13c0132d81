package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	pgstore "live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbitmq"
	redisstore "live-quiz-service/internal/infra/redis"
)

// NewWorkerCmd builds the CLI subcommand that runs a grading worker. The
// worker is a separate process from the coordinator; several may run in
// parallel for throughput.
func NewWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start a grading worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), *configPath)
		},
	}
}

func runWorker(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// A standalone worker cannot share in-process fallbacks with the
	// coordinator; it needs the real infrastructure.
	if cfg.Postgres.URL == "" || cfg.RabbitMQ.URL == "" || cfg.Redis.Addr == "" {
		return fmt.Errorf("worker requires postgres, rabbitmq and redis to be configured")
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	queue, err := rabbitmq.Dial(cfg.RabbitMQ.URL, domain.SubmissionQueue, domain.ValidationQueue)
	if err != nil {
		return err
	}
	defer queue.Close()

	grader := app.NewGrader(pgstore.NewQuizStore(pool), pgstore.NewResultStore(pool), redisstore.NewStateStore(redisClient))
	worker := app.NewWorker(queue, grader)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-stop:
			log.Println("shutting down worker...")
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := worker.Run(runCtx); err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}
