package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/resolution"
	"github.com/alanyoungcy/marketcore/internal/server"
	"github.com/alanyoungcy/marketcore/internal/server/handler"
	"github.com/alanyoungcy/marketcore/internal/service"
	"github.com/alanyoungcy/marketcore/internal/settlement"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// services holds the service layer built over one set of dependencies.
type services struct {
	resolution *service.ResolutionService
	disputes   *service.DisputeService
	settlement *service.SettlementService
	prices     *service.PriceService
	markets    *service.MarketService
	finalizer  *service.Finalizer
}

func (a *App) buildServices(deps *Dependencies) *services {
	rc := a.cfg.Resolution
	policy := dispute.Policy{HoldWhileDisputed: rc.HoldWhileDisputed}

	resDeps := service.ResolutionDeps{
		Markets:   deps.MarketStore,
		Options:   deps.OptionStore,
		Records:   deps.ResolutionStore,
		Audit:     deps.AuditStore,
		Locks:     deps.LockManager,
		Directory: deps.Directory,
		Verifier:  deps.Verifier,
		Bus:       deps.SignalBus,
		Notifier:  deps.Notifier,
	}
	if deps.Archive != nil {
		resDeps.Archive = deps.Archive
	}

	return &services{
		resolution: service.NewResolutionService(resDeps, service.ResolutionConfig{
			DisputePeriod: rc.DisputePeriod.Duration,
			LockTTL:       rc.LockTTL.Duration,
			VerifyTimeout: a.cfg.Oracle.VerifyTimeout.Duration,
			Quorum: resolution.Policy{
				HighVolumeThreshold: rc.HighVolumeThresholdDecimal(),
				Quorum:              rc.Quorum,
			},
			ChainID: rc.ChainID,
		}, a.logger),
		disputes: service.NewDisputeService(
			deps.OptionStore, deps.DisputeStore, deps.AuditStore,
			deps.SignalBus, deps.Notifier, a.logger,
		),
		settlement: service.NewSettlementService(service.SettlementDeps{
			Markets:   deps.MarketStore,
			Options:   deps.OptionStore,
			Disputes:  deps.DisputeStore,
			Positions: deps.PositionStore,
			Liquidity: deps.LiquidityStore,
			Audit:     deps.AuditStore,
			Bus:       deps.SignalBus,
		}, settlement.NewCalculator(policy, a.cfg.Pricing.UnitValueDecimal()), a.logger),
		prices: service.NewPriceService(
			deps.MarketStore, deps.OptionStore, deps.PriceCache,
			deps.SignalBus, a.cfg.Pricing.FeeBps, a.logger,
		),
		markets: service.NewMarketService(deps.MarketStore, deps.DisputeStore, policy, a.logger),
		finalizer: service.NewFinalizer(
			deps.MarketStore, deps.OptionStore, deps.DisputeStore,
			deps.SignalBus, deps.Notifier, policy, rc.FinalizeInterval.Duration, a.logger,
		),
	}
}

// ServerMode serves the HTTP API only.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "server mode: starting")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps, svc); err != nil {
		return err
	}
	return g.Wait()
}

// FinalizerMode runs the dispute-window finalizer only. Several finalizer
// processes may run against one database; marking is compare-and-set.
func (a *App) FinalizerMode(ctx context.Context, svc *services) error {
	a.logger.InfoContext(ctx, "finalizer mode: starting",
		slog.Duration("interval", a.cfg.Resolution.FinalizeInterval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.finalizer.Run(ctx)
	})
	return g.Wait()
}

// FullMode runs the finalizer and, when enabled, the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *services) error {
	a.logger.InfoContext(ctx, "full mode: starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.finalizer.Run(ctx)
	})
	if a.cfg.Server.Enabled {
		if err := a.startHTTPServer(ctx, g, deps, svc); err != nil {
			return err
		}
	}
	return g.Wait()
}

// startHTTPServer adds the HTTP server goroutines to g. The server is shut
// down gracefully when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *services) error {
	tokens, err := crypto.NewTokenIssuer(a.cfg.Server.AuthSecret)
	if err != nil {
		return err
	}

	var evidenceLoader handler.EvidenceLoader
	if deps.Archive != nil {
		evidenceLoader = deps.Archive
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		TrustProxy:  a.cfg.Server.TrustProxy,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Health, a.logger),
		Markets:     handler.NewMarketHandler(svc.markets, svc.prices, a.logger),
		Resolutions: handler.NewResolutionHandler(svc.resolution, a.logger),
		Disputes:    handler.NewDisputeHandler(svc.disputes, a.logger),
		Claims:      handler.NewClaimHandler(svc.settlement, a.logger),
		Evidence:    handler.NewEvidenceHandler(evidenceLoader, a.logger),
		Audit:       handler.NewAuditHandler(deps.AuditStore, a.logger),
		Events:      handler.NewEventsHandler(deps.SignalBus, a.logger),
	}, server.Auth{
		Tokens:     tokens,
		Principals: deps.Directory,
		Limiter:    deps.RateLimiter,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}
