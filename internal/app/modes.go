package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/livebet/internal/crypto"
	"github.com/alanyoungcy/livebet/internal/server"
	"github.com/alanyoungcy/livebet/internal/server/handler"
	"github.com/alanyoungcy/livebet/internal/server/ws"
	"github.com/alanyoungcy/livebet/internal/service"
)

const shutdownTimeout = 10 * time.Second

// Services are the application services built from Dependencies.
type Services struct {
	Markets     *service.MarketService
	Resolutions *service.ResolutionService
	Bets        *service.BetService
}

// BuildServices creates the services for the configured betting and admin
// rules.
func (a *App) BuildServices(deps *Dependencies) (*Services, error) {
	admins, err := crypto.NewAddressSet(a.cfg.Admin.Allowlist)
	if err != nil {
		return nil, fmt.Errorf("app: admin allowlist: %w", err)
	}

	var quoteIDs *crypto.QuoteSigner
	if a.cfg.Betting.ChallengeEnabled {
		if quoteIDs, err = crypto.NewQuoteSigner(a.cfg.Betting.QuoteSecret); err != nil {
			return nil, fmt.Errorf("app: quote signer: %w", err)
		}
	}

	sinks := deps.Sinks()
	return &Services{
		Markets: service.NewMarketService(deps.MarketStore, deps.MarketCache, sinks, a.logger),
		Resolutions: service.NewResolutionService(
			deps.MarketStore, deps.PositionStore, deps.MarketCache, deps.LockManager,
			service.ResolutionConfig{
				Admins:              admins,
				LockTTL:             a.cfg.Admin.LockTTL.Duration,
				RequireBoundMessage: a.cfg.Admin.RequireBoundMessage,
				SignatureTTL:        a.cfg.Admin.SignatureTTL.Duration,
			},
			sinks, a.logger,
		).WithArchiveReader(deps.BlobReader),
		Bets: service.NewBetService(
			deps.MarketStore, deps.PositionStore, deps.QuoteStore, deps.MarketCache,
			quoteIDs, deps.Verifier,
			service.BettingConfig{
				MinStake:         a.cfg.Betting.MinStake,
				MaxStake:         a.cfg.Betting.MaxStake,
				ChallengeEnabled: a.cfg.Betting.ChallengeEnabled,
				PayeeAddress:     a.cfg.Betting.PayeeAddress,
				Scheme:           a.cfg.Chain.Scheme,
				QuoteTTL:         a.cfg.Betting.QuoteTTL.Duration,
				Decimals:         a.cfg.Chain.Decimals,
			},
			sinks, a.logger,
		),
	}, nil
}

// ServerMode runs the HTTP API and the websocket hub until ctx ends.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	svcs, err := a.BuildServices(deps)
	if err != nil {
		return err
	}

	hub := ws.NewHub(deps.SignalBus, nil, a.cfg.Server.CORSOrigins, a.logger)
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Admin.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Checks, a.logger),
		Markets: handler.NewMarketHandler(svcs.Markets, svcs.Resolutions, a.logger),
		Bets:    handler.NewBetHandler(svcs.Bets, a.logger),
		Audit:   handler.NewAuditHandler(deps.AuditStore, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, server.Deps{
		Hub:      hub,
		Limiter:  deps.RateLimiter,
		Observer: deps.Metrics,
	}, a.logger)

	if a.cfg.Admin.APIKey == "" {
		a.logger.WarnContext(ctx, "admin.api_key is empty; market creation and the audit log are unauthenticated")
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("server mode: %w", err)
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("server mode stopped", slog.String("error", err.Error()))
		return err
	}
	return nil
}
