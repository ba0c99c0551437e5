package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/arbdetector/internal/engine"
	"github.com/alanyoungcy/arbdetector/internal/feed"
	"github.com/alanyoungcy/arbdetector/internal/notify"
	"github.com/alanyoungcy/arbdetector/internal/pipeline"
	"github.com/alanyoungcy/arbdetector/internal/query"
	"github.com/alanyoungcy/arbdetector/internal/server"
	"github.com/alanyoungcy/arbdetector/internal/server/handler"
	"github.com/alanyoungcy/arbdetector/internal/server/ws"
	"github.com/alanyoungcy/arbdetector/internal/service"
	"github.com/alanyoungcy/arbdetector/internal/settings"
)

const shutdownTimeout = 5 * time.Second

// FullMode runs detection, persistence, the archive job and the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	eng, events, err := a.startCore(ctx, g, deps)
	if err != nil {
		return err
	}
	a.startArchive(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng, events)
	}
	return g.Wait()
}

// DetectMode runs detection and persistence without the HTTP API.
func (a *App) DetectMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting detect mode")
	g, ctx := errgroup.WithContext(ctx)

	if _, _, err := a.startCore(ctx, g, deps); err != nil {
		return err
	}
	a.startArchive(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs detection and the HTTP API entirely in memory: settings
// changes and history are lost on restart.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	g, ctx := errgroup.WithContext(ctx)

	eng, events, err := a.startCore(ctx, g, deps)
	if err != nil {
		return err
	}
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng, events)
	}
	return g.Wait()
}

// startCore builds the settings holder, the event service and the engine,
// and starts them together with the inbound feeds.
func (a *App) startCore(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*engine.Engine, *service.ArbitrageEvents, error) {
	holder, err := settings.NewHolder(a.cfg.Detector.Settings(), deps.SettingsRepo, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	if err := holder.Load(ctx); err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}

	eventsCfg := service.ArbitrageEventsConfig{
		Bus:    deps.SignalBus,
		Repo:   deps.ArbitrageRepo,
		MinPnL: a.cfg.Notify.MinPnL,
		Logger: a.logger,
	}
	if deps.Notifier.Enabled() {
		eventsCfg.Notifier = deps.Notifier
		eventsCfg.Format = notify.FormatArbitrage
	}
	events := service.NewArbitrageEvents(eventsCfg)

	eng := engine.New(engine.Config{
		Settings:      holder,
		MatrixRepo:    deps.MatrixRepo,
		ArbitrageRepo: deps.ArbitrageRepo,
		Locks:         deps.LockManager,
		Observer:      events,
		Metrics:       deps.Metrics,
		Logger:        a.logger,
	})

	// The engine reports its open arbitrages as closed on the way out, so the
	// event service stops only after the engine has returned.
	eventsCtx, stopEvents := context.WithCancel(context.WithoutCancel(ctx))
	g.Go(func() error { return events.Run(eventsCtx) })
	g.Go(func() error {
		defer stopEvents()
		return eng.Run(ctx)
	})

	for _, url := range a.cfg.Feed.WebSocketURLs {
		wsFeed := feed.NewWSFeed(feed.WSConfig{
			URL:          url,
			ReconnectMin: a.cfg.Feed.ReconnectMin.Duration,
			ReconnectMax: a.cfg.Feed.ReconnectMax.Duration,
		}, eng, a.logger)
		g.Go(func() error { return wsFeed.Run(ctx) })
	}
	if a.cfg.Feed.BusChannel != "" && needsStores(a.cfg.Mode) {
		busFeed := feed.NewBusFeed(deps.SignalBus, a.cfg.Feed.BusChannel, eng, a.logger)
		g.Go(func() error { return busFeed.Run(ctx) })
	}
	if len(a.cfg.Feed.WebSocketURLs) == 0 && !needsStores(a.cfg.Mode) {
		a.logger.WarnContext(ctx, "no websocket feeds configured, nothing will be ingested")
	}

	return eng, events, nil
}

// startArchive schedules the S3 export when an archiver is wired.
func (a *App) startArchive(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	job := pipeline.NewArchiveJob(deps.Archiver, a.cfg.Archive.RetentionDays, a.cfg.Archive.Interval.Duration, a.logger)
	g.Go(func() error { return job.Run(ctx) })
}

// startHTTPServer adds the HTTP server and WebSocket hub to the errgroup.
// The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, events *service.ArbitrageEvents) {
	svc := query.WithLogging(query.WithCache(eng, a.cfg.Server.CacheTTL.Duration), a.logger)

	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Channels: []string{service.ArbitrageChannel},
		Mode:     a.cfg.Mode,
	}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, deps.HealthChecks, a.logger),
		Market:    handler.NewMarketHandler(svc, a.logger),
		Arbitrage: handler.NewArbitrageHandler(svc, a.logger),
		Matrix:    handler.NewMatrixHandler(svc, a.logger),
		Settings:  handler.NewSettingsHandler(svc, a.logger),
		Events:    handler.NewEventsHandler(events, a.logger),
		Hub:       hub,
		Metrics:   deps.Metrics.Handler(),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	a.logger.InfoContext(ctx, "HTTP server configured",
		slog.Int("port", a.cfg.Server.Port),
		slog.Bool("auth", a.cfg.Server.APIKey != ""),
	)
}
