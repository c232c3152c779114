package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/avask/arbot/internal/blob/s3"
	"github.com/avask/arbot/internal/cache/redis"
	"github.com/avask/arbot/internal/config"
	"github.com/avask/arbot/internal/domain"
	"github.com/avask/arbot/internal/notify"
	"github.com/avask/arbot/internal/store/memory"
	"github.com/avask/arbot/internal/store/postgres"
)

// Dependencies bundles the domain-level dependencies the run modes need.
// Constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Opportunities domain.OpportunityStore
	Executions    domain.ExecutionStore

	SignalBus  domain.SignalBus
	QuoteCache domain.QuoteCache

	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist trading history.
func needsPostgres(mode string) bool {
	switch strings.ToLower(mode) {
	case "arbitrage", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration, returning them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores: PostgreSQL when configured, bounded memory otherwise ---
	if needsPostgres(cfg.Mode) && (cfg.Postgres.DSN != "" || cfg.Postgres.Host != "") {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Opportunities = postgres.NewOpportunityStore(pool)
		deps.Executions = postgres.NewExecutionStore(pool)
	} else {
		logger.InfoContext(ctx, "postgres not configured, using in-memory stores")
		deps.Opportunities = memory.NewOpportunityStore(0)
		deps.Executions = memory.NewExecutionStore(0)
	}

	// --- Redis: signal bus and quote cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.QuoteCache = redis.NewQuoteCache(redisClient)

	// --- S3 blob storage: only when a bucket is configured ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.Executions, time.Hour, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		if cfg.Notify.Discord {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.WebhookURL))
		} else {
			senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
		}
	}
	deps.Notifier = notify.NewNotifier(senders, logger)

	return deps, cleanup, nil
}
