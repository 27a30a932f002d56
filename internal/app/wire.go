package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketcore/internal/blob/s3"
	"github.com/alanyoungcy/marketcore/internal/cache/redis"
	"github.com/alanyoungcy/marketcore/internal/config"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
	"github.com/alanyoungcy/marketcore/internal/notify"
	"github.com/alanyoungcy/marketcore/internal/oracle"
	"github.com/alanyoungcy/marketcore/internal/registry"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/store/memory"
	"github.com/alanyoungcy/marketcore/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	OptionStore     domain.OptionStore
	ResolutionStore domain.ResolutionStore
	DisputeStore    domain.DisputeStore
	PositionStore   domain.PositionStore
	LiquidityStore  domain.LiquidityStore
	AuditStore      domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Evidence archive; nil when S3 is disabled.
	Archive *s3blob.EvidenceArchive

	// Identities and signature checks
	Directory *registry.Directory
	Verifier  evidence.SignatureVerifier

	// Notifications
	Notifier *notify.Notifier

	// Health lists the backing services the health endpoint pings.
	Health map[string]handler.Pinger
}

// pingFunc adapts a health function to handler.Pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.Pinger{}}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.OptionStore = postgres.NewOptionStore(pool)
		deps.ResolutionStore = postgres.NewResolutionStore(pool)
		deps.DisputeStore = postgres.NewDisputeStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.LiquidityStore = postgres.NewLiquidityStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient
	} else {
		logger.WarnContext(ctx, "postgres disabled: state is kept in memory and lost on exit")
		db := memory.New()
		deps.MarketStore = db.Markets()
		deps.OptionStore = db.Options()
		deps.ResolutionStore = db.Resolutions()
		deps.DisputeStore = db.Disputes()
		deps.PositionStore = db.Positions()
		deps.LiquidityStore = db.Liquidity()
		deps.AuditStore = db.Audit()
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		Namespace:  cfg.Redis.Namespace,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Redis.PriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Health["redis"] = redisClient

	// --- S3 evidence archive ---
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
		deps.Archive = s3blob.NewEvidenceArchive(
			s3blob.NewWriter(s3Client, cfg.S3.PartSizeMB<<20),
			s3blob.NewReader(s3Client),
		)
		deps.Health["s3"] = pingFunc(s3Client.Health)
	} else {
		logger.WarnContext(ctx, "s3 disabled: resolution evidence will not be archived")
	}

	// --- Identities and oracle signatures ---
	deps.Directory = registry.New(cfg.Resolution.Admins, cfg.Oracle.Addresses)
	if admins := deps.Directory.Admins(); len(admins) == 0 {
		logger.WarnContext(ctx, "no admins configured: quorum-gated resolutions cannot succeed")
	} else {
		logger.InfoContext(ctx, "admin registry loaded",
			slog.Any("admins", admins),
			slog.Int("oracles", len(cfg.Oracle.Addresses)),
		)
	}
	if cfg.Oracle.AllowUnverified {
		logger.WarnContext(ctx, "oracle.allow_unverified is set: api evidence signatures are only checked for presence",
			slog.String("verifier", "evidence.PresenceVerifier"),
		)
		deps.Verifier = evidence.PresenceVerifier{}
	} else {
		deps.Verifier = oracle.NewEthereumVerifier(deps.Directory)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
