package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/livebet/internal/blob/s3"
	"github.com/alanyoungcy/livebet/internal/cache/redis"
	"github.com/alanyoungcy/livebet/internal/config"
	"github.com/alanyoungcy/livebet/internal/domain"
	"github.com/alanyoungcy/livebet/internal/events/kafka"
	"github.com/alanyoungcy/livebet/internal/metrics"
	"github.com/alanyoungcy/livebet/internal/notify"
	"github.com/alanyoungcy/livebet/internal/server/handler"
	"github.com/alanyoungcy/livebet/internal/service"
	"github.com/alanyoungcy/livebet/internal/store/memory"
	"github.com/alanyoungcy/livebet/internal/store/postgres"
	"github.com/alanyoungcy/livebet/internal/wallet"
)

// Dependencies bundles the concrete implementations the server needs. Wire
// builds it; the cleanup it returns releases every connection.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	QuoteStore    domain.QuoteStore

	// Coordination
	MarketCache domain.MarketCache // nil without Redis
	RateLimiter domain.RateLimiter // nil without Redis
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Outputs
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Events     domain.EventPublisher // nil without Kafka
	Notifier   *notify.Notifier
	Metrics    *metrics.Metrics

	Verifier service.TransferVerifier // nil unless betting.verify_onchain
	Checks   map[string]handler.Check
}

// Sinks returns the best-effort outputs shared by the services.
func (d *Dependencies) Sinks() service.Sinks {
	return service.Sinks{
		Audit:    d.AuditStore,
		Bus:      d.SignalBus,
		Events:   d.Events,
		Blobs:    d.BlobWriter,
		Notifier: d.Notifier,
		Metrics:  d.Metrics,
	}
}

// Wire constructs every dependency selected by cfg.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Persistence ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Supabase.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}

		pool := pg.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pg.Ping
	default:
		logger.WarnContext(ctx, "wire: using in-memory stores; state is lost on restart")
		markets := memory.NewMarketStore()
		deps.MarketStore = markets
		deps.PositionStore = memory.NewPositionStore(markets)
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.QuoteStore = redis.NewQuoteStore(rc)
		deps.MarketCache = redis.NewMarketCache(rc, cfg.Redis.MarketTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(rc)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.Checks["redis"] = rc.Ping
	} else {
		logger.WarnContext(ctx, "wire: redis disabled; locks, quotes and the event bus are process-local")
		deps.QuoteStore = memory.NewQuoteStore()
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
	}

	// --- Resolution archive ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		store := s3blob.NewStore(sc, cfg.S3.Prefix)
		deps.BlobWriter = store
		deps.BlobReader = store
		deps.Checks["s3"] = sc.Health
	} else {
		blobs := memory.NewBlobStore()
		deps.BlobWriter = blobs
		deps.BlobReader = blobs
	}

	// --- Event stream ---
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.BatchTimeout.Duration,
		}, logger)
		if err != nil {
			return fail("kafka", err)
		}
		closers = append(closers, func() { _ = pub.Close() })
		deps.Events = pub
	}

	// --- On-chain verification ---
	if cfg.Betting.VerifyOnchain {
		ec, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail("chain rpc", err)
		}
		closers = append(closers, ec.Close)
		deps.Verifier = wallet.NewVerifier(ec, cfg.Betting.VerifyWait.Duration)
		deps.Checks["chain"] = func(ctx context.Context) error {
			_, err := ec.BlockNumber(ctx)
			return err
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
