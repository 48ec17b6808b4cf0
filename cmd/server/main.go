package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	custodyhandler "pims/internal/custody/handler"
	filehandler "pims/internal/file/handler"
	jwttoken "pims/internal/jwt_token"
	notificationhandler "pims/internal/notification/handler"
	"pims/internal/platform/config"
	"pims/internal/platform/httpserver"
	"pims/internal/platform/kafka"
	"pims/internal/platform/logger"
	"pims/internal/platform/metrics"
	"pims/internal/platform/postgres"
	"pims/internal/platform/redis"
	httptransport "pims/internal/transport/http"
	workflowhandler "pims/internal/workflow/handler"
	"pims/pkg/platform/audit/outbox"
	"pims/pkg/platform/middleware/ratelimit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(db, log); err != nil {
				return err
			}
		}
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	app, err := buildApp(cfg, log, db, redisClient)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handlers := []httptransport.Registrar{
		filehandler.New(app.files, log),
		workflowhandler.New(app.workflows, log),
		custodyhandler.New(app.custody, app.files, log),
	}
	if app.inbox != nil {
		handlers = append(handlers, notificationhandler.New(app.inbox, log))
	}
	checks := map[string]httptransport.HealthCheck{}
	if db != nil {
		checks["database"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient.Client, "pims:ratelimit:")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		TokenValidator: jwttoken.NewJWTServiceAdapter(jwtService),
		Handlers:       handlers,
		HealthChecks:   checks,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit: ratelimit.PerActor(limiter, ratelimit.Policy{
			Limit:  cfg.Server.RateLimit,
			Window: cfg.Server.RateWindow,
		}, log),
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting pims", "addr", cfg.Server.Addr, "persistence", app.persistence)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if db != nil {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return err
		}
		if producer != nil {
			defer producer.Close()
			if err := producer.EnsureTopic(ctx, 3, 1); err != nil {
				log.Warn("could not ensure audit topic", "error", err)
			}
			relay := outbox.NewRelay(outbox.NewPostgres(db), producer,
				outbox.WithBatchSize(cfg.Kafka.RelayBatch),
				outbox.WithInterval(cfg.Kafka.RelayInterval),
				outbox.WithLogger(log),
			)
			g.Go(func() error {
				if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("outbox relay: %w", err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}
