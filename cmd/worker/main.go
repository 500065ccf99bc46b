package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/jobalert/notifier/internal/config"
	"github.com/jobalert/notifier/internal/dedup"
	"github.com/jobalert/notifier/internal/infra/postgresql"
	"github.com/jobalert/notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/jobalert/notifier/internal/infra/redis"
	"github.com/jobalert/notifier/internal/listings"
	"github.com/jobalert/notifier/internal/observability"
	"github.com/jobalert/notifier/internal/provider"
	"github.com/jobalert/notifier/internal/queue"
	"github.com/jobalert/notifier/internal/repository"
	"github.com/jobalert/notifier/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	guard, err := dedup.NewRedisGuard(rdb)
	if err != nil {
		logger.Fatal("dedup guard initialization failed", zap.Error(err))
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerPrefetch, logger)
	defer consumer.Close()

	email, err := provider.NewSMTPEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	if err != nil {
		logger.Fatal("email sender initialization failed", zap.Error(err))
	}
	sms, err := provider.NewHTTPSMSSender(cfg.SMSProviderURL, cfg.SMSProviderToken)
	if err != nil {
		logger.Fatal("sms sender initialization failed", zap.Error(err))
	}
	gateway := provider.NewCompositeGateway(email, sms)

	jobListings := buildListingsProvider(cfg, logger)

	statuses := repository.NewGormStatusRepo(db)

	worker, err := service.NewDispatchWorker(
		statuses,
		consumer,
		gateway,
		jobListings,
		guard,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(observability.NewMetrics())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notifier worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Int("prefetch", cfg.WorkerPrefetch),
	)

	if err := worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped with error", zap.Error(err))
	}

	logger.Info("worker stopped")
}

// buildListingsProvider wires the live scrape behind the static sample
// fallback. Demo mode skips the scrape entirely, which is how local and CI
// environments run.
func buildListingsProvider(cfg *config.Config, logger *zap.Logger) listings.Provider {
	static := listings.NewStaticProvider()
	if cfg.ListingsDemoMode {
		return static
	}

	indeed, err := listings.NewIndeedProvider(cfg.ListingsBaseURL)
	if err != nil {
		logger.Warn("listings provider initialization failed, using samples", zap.Error(err))
		return static
	}

	return listings.NewFallbackProvider(indeed, static, logger)
}
