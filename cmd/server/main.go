// Command server runs the grading webhook gateway: the rate-limited,
// signature-checked, replay-protected ingestion endpoint plus the operator
// surface over the failure sink and audit trail.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	"gradegate/internal/deadletter/redrive"
	"gradegate/internal/grading"
	"gradegate/internal/ops"
	"gradegate/internal/platform/config"
	"gradegate/internal/platform/database"
	"gradegate/internal/platform/health"
	"gradegate/internal/platform/logger"
	platformredis "gradegate/internal/platform/redis"
	"gradegate/internal/ratelimit/checker"
	ratelimitmetrics "gradegate/internal/ratelimit/metrics"
	ratelimitmw "gradegate/internal/ratelimit/middleware"
	"gradegate/internal/ratelimit/store/bucket"
	"gradegate/internal/ratelimit/store/bypass"
	"gradegate/internal/replay"
	replaystore "gradegate/internal/replay/store"
	"gradegate/internal/seeder"
	sigstore "gradegate/internal/signature/store"
	httptransport "gradegate/internal/transport/http"
	"gradegate/internal/webhook"
	"gradegate/pkg/platform/middleware/metadata"
	opsmw "gradegate/pkg/platform/middleware/ops"
	"gradegate/pkg/platform/middleware/request"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing gradegate",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
	)

	if cfg.CoreBaseURL == "" {
		log.Error("CORE_BASE_URL is required; the gateway cannot resolve submissions without it")
		os.Exit(1)
	}
	if cfg.Environment == "production" && os.Getenv("OPS_JWT_SECRET") == "" {
		log.Error("OPS_JWT_SECRET is required in production")
		os.Exit(1)
	}
	if cfg.Environment == "production" && os.Getenv("WEBHOOK_SECRET") == "" {
		log.Error("WEBHOOK_SECRET is required in production")
		os.Exit(1)
	}

	// Shared cache. Without it every store falls back to process memory,
	// which is fine for one worker and wrong for a fleet.
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient == nil {
		log.Warn("REDIS_URL not set; rate-limit buckets and replay markers are process-local")
	}

	pool, err := database.New(database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    database.DefaultConfig().MaxOpenConns,
		MaxIdleConns:    database.DefaultConfig().MaxIdleConns,
		ConnMaxLifetime: database.DefaultConfig().ConnMaxLifetime,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		log.Warn("DATABASE_URL not set; signature log, audit trail, and failure sink are process-local")
	} else if err := pool.Migrate(context.Background()); err != nil {
		log.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Store selection: redis/postgres when configured, memory otherwise.
	var bucketStore checker.BucketStore = bucket.NewInMemoryBucketStore()
	var markerStore replay.MarkerStore = replaystore.NewMemoryMarkerStore()
	if redisClient != nil {
		bucketStore = bucket.NewRedisBucketStore(redisClient.Client)
		markerStore = replaystore.NewRedisMarkerStore(redisClient.Client)
	}

	var sigLog sigstore.Store = sigstore.NewMemoryStore()
	var auditStore audit.Store = audit.NewInMemoryStore()
	var sink deadletter.Store = deadletter.NewInMemoryStore()
	if pool != nil {
		sigLog = sigstore.NewPostgresStore(pool.DB())
		auditStore = audit.NewPostgresStore(pool.DB())
		sink = deadletter.NewPostgresStore(pool.DB())
	} else if cfg.Environment == "development" {
		if err := seeder.New(auditStore, sink, log).SeedAll(context.Background()); err != nil {
			log.Warn("failed to seed demo data", "error", err)
		}
	}

	limiter, err := checker.New(bucketStore, bypass.NewInMemoryBypassStore(),
		checker.WithLogger(log),
		checker.WithMetrics(ratelimitmetrics.New()),
	)
	if err != nil {
		log.Error("failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	guard, err := replay.New(markerStore, replay.Config{
		MaxAge:      cfg.ReplayMaxAge,
		DedupWindow: cfg.ReplayDedupWindow,
	}, log)
	if err != nil {
		log.Error("failed to build replay guard", "error", err)
		os.Exit(1)
	}

	core, err := grading.NewClient(cfg.CoreBaseURL, cfg.CoreAPIToken)
	if err != nil {
		log.Error("failed to build core service client", "error", err)
		os.Exit(1)
	}

	recorder := audit.NewRecorder(auditStore, log)

	processor, err := webhook.NewProcessor(
		cfg.WebhookSecret,
		sigLog,
		guard,
		recorder,
		core,
		core,
		sink,
		log,
		webhook.WithNotifier(core),
	)
	if err != nil {
		log.Error("failed to build webhook processor", "error", err)
		os.Exit(1)
	}

	opsService, err := ops.NewService(sink, auditStore, processor, recorder, log)
	if err != nil {
		log.Error("failed to build ops service", "error", err)
		os.Exit(1)
	}

	healthHandler := health.New(cfg.Environment)
	if pool != nil {
		healthHandler.RegisterCheck("database", func() error { return pool.Health(context.Background()) })
	}
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error { return redisClient.Health(context.Background()) })
	}

	var opsValidator opsmw.TokenValidator = opsmw.NewJWTValidator(cfg.OpsJWTSecret)
	if cfg.OpsTokenHash != "" {
		opsValidator = opsmw.Chain(opsValidator, opsmw.NewStaticValidator("break-glass", cfg.OpsTokenHash))
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Webhook:        webhook.NewHandler(processor, cfg.WebhookTimeout, log),
		Ops:            ops.NewHandler(opsService, log),
		Health:         healthHandler,
		RateLimit:      ratelimitmw.New(limiter, log),
		Metadata:       metadata.NewMiddleware(nil),
		OpsValidator:   opsValidator,
		RequestMetrics: request.NewMetrics(),
		MaxBodyBytes:   cfg.MaxBodyBytes,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	worker := redrive.New(sink, processor, log,
		redrive.WithInterval(cfg.RedriveInterval),
		redrive.WithMetrics(redrive.NewMetrics()),
	)
	g.Go(func() error {
		if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if redisClient != nil {
		g.Go(func() error {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					redisClient.RecordPoolStats()
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = pool.Close()

	log.Info("server stopped")
}
