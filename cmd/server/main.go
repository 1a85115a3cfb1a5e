// Command server runs the onboarding API: application lifecycle, document
// workflow, review endpoints and provider webhooks.
//
// Wiring only lives here. When Postgres, Redis, Kafka or MinIO are not
// configured the process falls back to in-memory equivalents so the API can
// run standalone in development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"onramp/internal/blob"
	documenthandler "onramp/internal/document/handler"
	documentmetrics "onramp/internal/document/metrics"
	documentservice "onramp/internal/document/service"
	documentstore "onramp/internal/document/store"
	"onramp/internal/history"
	httpapi "onramp/internal/http"
	"onramp/internal/idempotency"
	"onramp/internal/integrations"
	"onramp/internal/notify"
	onboardinghandler "onramp/internal/onboarding/handler"
	onboardingmetrics "onramp/internal/onboarding/metrics"
	onboardingservice "onramp/internal/onboarding/service"
	appstore "onramp/internal/onboarding/store"
	"onramp/internal/platform/config"
	"onramp/internal/platform/httpserver"
	"onramp/internal/platform/kafka"
	"onramp/internal/platform/logger"
	"onramp/internal/platform/postgres"
	platformredis "onramp/internal/platform/redis"
	"onramp/internal/verification/queue"
	"onramp/pkg/platform/token"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable stores, with in-memory fallbacks for development.
	var (
		apps         appstore.ApplicationStore = appstore.NewInMemory()
		docs         documentstore.DocumentStore
		historyStore history.Store
	)
	docs = documentstore.NewInMemory()
	historyStore = history.NewInMemoryStore()

	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			log.Error("opening postgres failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		apps = appstore.NewPostgres(db)
		docs = documentstore.NewPostgres(db)
		historyStore = history.NewPostgresStore(db)
		log.Info("using postgres stores")
	} else {
		log.Warn("ONRAMP_POSTGRES_DSN unset, using in-memory stores")
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connecting to redis failed", "error", err)
		os.Exit(1)
	}
	var idem idempotency.Store = idempotency.NewInMemoryStore()
	if redisClient != nil {
		defer redisClient.Close()
		idem = idempotency.NewRedisStore(redisClient.Client)
	} else {
		log.Warn("ONRAMP_REDIS_URL unset, webhook deduplication is per-process")
	}

	// Notifications go to Kafka when brokers are configured.
	var sink notify.Sink = notify.NewInMemorySink()
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Error("connecting to kafka failed", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		sink = notify.NewKafkaSink(producer, cfg.Kafka.NotificationsTopic)
	} else {
		log.Warn("ONRAMP_KAFKA_BROKERS unset, notifications stay in-process")
	}
	emitter := notify.NewEmitter(sink, 256, log)

	// Document bytes live in object storage alongside the durable stores;
	// the standalone development mode keeps them in memory.
	var blobs blob.Store = blob.NewInMemory()
	if cfg.Postgres.DSN != "" {
		minioStore, err := blob.NewMinio(cfg.Blob)
		if err != nil {
			log.Error("connecting to object storage failed", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			log.Error("ensuring bucket failed", "error", err)
			os.Exit(1)
		}
		blobs = minioStore
	}

	ledger := history.NewLedger(historyStore)

	// External collaborators.
	kycClient := integrations.NewKYCClient(cfg.Providers.KYCBaseURL, cfg.Providers.CallTimeout)
	authClient := integrations.NewAuthClient(cfg.Providers.AuthBaseURL, cfg.Providers.CallTimeout)
	billingClient := integrations.NewBillingClient(cfg.Providers.BillingBaseURL, cfg.Providers.CallTimeout)

	// AI verification rides on asynq, which needs redis. Without it uploads
	// stay PENDING for manual review.
	var dispatcher documentservice.Dispatcher
	var asynqClient *asynq.Client
	if cfg.Redis.URL != "" {
		opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
		if err != nil {
			log.Error("parsing redis url for task queue failed", "error", err)
			os.Exit(1)
		}
		asynqClient = asynq.NewClient(opt)
		defer asynqClient.Close()
		dispatcher = queue.New(asynqClient, cfg.Verification.MaxRetry)
	}

	docOpts := []documentservice.Option{
		documentservice.WithLedger(ledger),
		documentservice.WithLogger(log),
		documentservice.WithMetrics(documentmetrics.New()),
		documentservice.WithUploadLimits(cfg.Upload.MaxSizeBytes, cfg.Upload.AllowedMIME),
		documentservice.WithAIEligibility(cfg.Verification.AIEligible),
	}
	if dispatcher != nil {
		docOpts = append(docOpts, documentservice.WithDispatcher(dispatcher))
	}
	docSvc := documentservice.New(docs, apps, blobs, docOpts...)

	orchestrator := onboardingservice.New(apps, kycClient, authClient, billingClient,
		onboardingservice.WithCompletionGate(docSvc),
		onboardingservice.WithLedger(ledger),
		onboardingservice.WithNotifier(emitter),
		onboardingservice.WithIdempotency(idem, 24*time.Hour),
		onboardingservice.WithMetrics(onboardingmetrics.New()),
		onboardingservice.WithLogger(log),
	)
	// The document workflow pings the orchestrator when completion may have
	// changed. Options apply post-construction to break the wiring cycle.
	documentservice.WithCompletionListener(orchestrator)(docSvc)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Logger:     log,
		Validator:  token.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer),
		Onboarding: onboardinghandler.New(orchestrator, log),
		Documents:  documenthandler.New(docSvc, log, cfg.Upload.MaxSizeBytes),
		Ready: func(ctx context.Context) error {
			if redisClient != nil {
				return redisClient.Health(ctx)
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return emitter.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting onboarding api", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
