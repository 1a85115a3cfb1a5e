// Command worker consumes the document verification queue: it sends uploaded
// documents to the AI verification provider and records the verdicts.
//
// It shares stores with the API server, so both must point at the same
// Postgres and Redis.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"onramp/internal/blob"
	documentservice "onramp/internal/document/service"
	documentstore "onramp/internal/document/store"
	"onramp/internal/history"
	appstore "onramp/internal/onboarding/store"
	"onramp/internal/platform/config"
	"onramp/internal/platform/logger"
	"onramp/internal/platform/postgres"
	"onramp/internal/verification/ai"
	"onramp/internal/verification/queue"
	"onramp/internal/verification/worker"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.Redis.URL == "" {
		log.Error("ONRAMP_REDIS_URL is required, the verification queue rides on redis")
		os.Exit(1)
	}
	if cfg.Postgres.DSN == "" {
		log.Error("ONRAMP_POSTGRES_DSN is required, verdicts must land in the shared store")
		os.Exit(1)
	}

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("opening postgres failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	blobs, err := blob.NewMinio(cfg.Blob)
	if err != nil {
		log.Error("connecting to object storage failed", "error", err)
		os.Exit(1)
	}

	ledger := history.NewLedger(history.NewPostgresStore(db))
	docSvc := documentservice.New(documentstore.NewPostgres(db), appstore.NewPostgres(db), blobs,
		documentservice.WithLedger(ledger),
		documentservice.WithLogger(log),
	)

	verifier := ai.NewClient(cfg.Verification.ProviderURL, cfg.Providers.CallTimeout)
	processor := worker.NewProcessor(verifier, docSvc, log)

	opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		log.Error("parsing redis url failed", "error", err)
		os.Exit(1)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			queue.VerificationQueue: 10,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutting down worker")
		srv.Shutdown()
	}()

	log.Info("starting verification worker", "queue", queue.VerificationQueue)
	if err := srv.Run(processor.Handler()); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}
