// Command orbitview runs the satellite viewer as an HTTP service: the
// session loop refreshes marker positions every frame, and the API exposes
// tracking, selection, trajectories and an SSE position stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/star/orbitview/internal/api"
	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/clock"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/metrics"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/scene"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/stream"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/tracing"
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/trajectory"
)

func main() {
	logger, closer, err := logging.New(logging.Config{Level: os.Getenv("ORBITVIEW_LOG_LEVEL")})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(logger); err != nil {
		logger.Error("orbitview exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(logger *slog.Logger) error {
	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return fmt.Errorf("invalid auth configuration: %w", err)
	}
	catalogCfg := loadCatalogConfig(logger)
	viewCfg := loadViewConfig(logger)
	streamCfg := loadStreamConfig(logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(), logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	fetcher := tle.NewFetcher(catalogCfg.SourceURL, logger, catalogCfg.ExtraURLs...)
	fetcher.SetTimeout(catalogCfg.FetchTimeout)
	catalog := tle.NewCatalogCache(fetcher, catalogCfg.Interval, collector, logger)

	conv := propagation.NewConverter(propagation.SGP4{})
	pool := propagation.NewWorkerPool(viewCfg.Workers, conv, logger)
	sc := scene.New()
	sampler := trajectory.NewSampler(conv, viewCfg.TrajectoryCacheSize, collector, logger)
	policy := classify.DefaultPolicy()

	viewClock := clock.NewController()
	viewClock.SetRate(viewCfg.TimeRate)

	sess := session.New(session.Config{}, session.Deps{
		Catalog:   catalog,
		Port:      propagation.SGP4{},
		Policy:    policy,
		Refresher: tracking.NewRefresher(pool, sc, collector, logger),
		Sampler:   sampler,
		Scene:     sc,
		Clock:     viewClock,
		Metrics:   collector,
	}, logger)

	streamHandler := stream.NewHandler(sess, streamCfg, collector, logger)

	srv := api.NewServer(api.Config{
		Addr:       viewCfg.Addr,
		Auth:       authCfg,
		TrustProxy: streamCfg.TrustProxy,
	}, api.Deps{
		Viewer:  sess,
		Catalog: catalog,
		Sampler: sampler,
		Clock:   viewClock,
		Stream:  streamHandler,
		Metrics: collector,
		Ready:   readiness(sess, viewCfg.TrackOnStart),
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sess.Run(gctx, viewClock.Frames(gctx, viewCfg.FrameInterval))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		logEvents(gctx, sess, logger)
		return nil
	})

	if viewCfg.TrackOnStart {
		g.Go(func() error {
			if err := sess.SetTracking(gctx, true); err != nil && gctx.Err() == nil {
				logger.Warn("tracking on start failed", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("starting server", "addr", viewCfg.Addr, "auth_enabled", authCfg.Enabled, "catalog_url", catalogCfg.SourceURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// readiness reports ready once the session loop answers and, when tracking
// starts automatically, once the catalog has populated the registry.
func readiness(sess *session.Session, needCatalog bool) func(context.Context) error {
	return func(ctx context.Context) error {
		st, err := sess.Status(ctx)
		if err != nil {
			return err
		}
		if needCatalog && st.Objects == 0 {
			return errors.New("catalog not loaded")
		}
		return nil
	}
}

// logEvents records session notifications until ctx is done.
func logEvents(ctx context.Context, sess *session.Session, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case ev := <-sess.Events():
			switch ev := ev.(type) {
			case session.CatalogLoaded:
				logger.Info("catalog loaded", "objects", ev.Objects, "fetched_at", ev.FetchedAt.Format(time.RFC3339), "source", ev.Source)
			case session.CatalogFailed:
				logger.Warn("catalog load failed", "error", ev.Err)
			case session.TrackingChanged:
				logger.Info("tracking changed", "enabled", ev.Enabled)
			case session.Selected:
				logger.Debug("selection changed", "name", ev.Name, "norad_id", ev.NORADID)
			case session.SelectionCleared:
				logger.Debug("selection cleared")
			}
		}
	}
}
