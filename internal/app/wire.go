package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/seafarergames/tradewinds/internal/blob/s3"
	"github.com/seafarergames/tradewinds/internal/cache/redis"
	"github.com/seafarergames/tradewinds/internal/config"
	"github.com/seafarergames/tradewinds/internal/domain"
	"github.com/seafarergames/tradewinds/internal/events"
	"github.com/seafarergames/tradewinds/internal/gateway/memory"
	"github.com/seafarergames/tradewinds/internal/gateway/postgres"
)

// Dependencies bundles the infrastructure collaborators that the operating
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Gateway is the durable persistence backend. In simulate mode it is
	// the in-memory gateway; otherwise it is backed by PostgreSQL.
	Gateway domain.PersistenceGateway

	// Fleet reads the transport assets that revenue cycles pay for.
	Fleet domain.FleetReader

	// Bus carries domain events. Redis-backed except in simulate mode.
	Bus domain.EventBus

	// MemGateway is set only in simulate mode, for seeding demo data.
	MemGateway *memory.Gateway

	// Redis-backed extras; nil in simulate mode.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Archiver is non-nil only when S3 is enabled.
	Archiver domain.CycleArchiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Simulate mode runs entirely in process: in-memory gateway, in-process
	// event bus, no redis, no object storage.
	if cfg.Mode == "simulate" {
		mem := memory.NewGateway()
		deps.MemGateway = mem
		deps.Gateway = mem
		deps.Fleet = mem
		deps.Bus = events.NewBus()
		return deps, cleanup, nil
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	gw := postgres.NewGateway(pgClient.Pool())
	deps.Gateway = gw
	deps.Fleet = gw

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Bus = redis.NewEventBus(redisClient, logger)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 blob storage (cycle archival) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.Archiver = s3blob.NewCycleArchive(s3blob.NewWriter(s3Client))
	}

	return deps, cleanup, nil
}
