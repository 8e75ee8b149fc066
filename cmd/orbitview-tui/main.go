// Command orbitview-tui shows the tracked catalog on a terminal map.
//
// Usage:
//
//	orbitview-tui [-catalog-url URL] [-fps N] [-rate R] [-track] [-log-file PATH] [-log-level LEVEL]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/clock"
	"github.com/star/orbitview/internal/logging"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/scene"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/trajectory"
	"github.com/star/orbitview/internal/ui"
)

func main() {
	catalogURL := flag.String("catalog-url", tle.DefaultSourceURL, "element set catalog URL")
	fps := flag.Int("fps", 4, "position refreshes per second (1-30)")
	rate := flag.Float64("rate", 1, "view time rate relative to wall time")
	track := flag.Bool("track", false, "start with tracking enabled")
	logFile := flag.String("log-file", defaultLogFile(), "log file path")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "orbitview-tui needs an interactive terminal; use the orbitview service for headless operation")
		os.Exit(2)
	}
	if *fps < 1 || *fps > 30 {
		fmt.Fprintln(os.Stderr, "-fps must be between 1 and 30")
		os.Exit(2)
	}

	logger, closer, err := logging.New(logging.Config{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	conv := propagation.NewConverter(propagation.SGP4{})
	sc := scene.New()
	viewClock := clock.NewController()
	viewClock.SetRate(*rate)

	sess := session.New(session.Config{}, session.Deps{
		Catalog:   tle.NewCatalogCache(tle.NewFetcher(*catalogURL, logger), tle.DefaultInterval, nil, logger),
		Port:      propagation.SGP4{},
		Policy:    classify.DefaultPolicy(),
		Refresher: tracking.NewRefresher(propagation.NewWorkerPool(runtime.NumCPU(), conv, logger), sc, nil, logger),
		Sampler:   trajectory.NewSampler(conv, 0, nil, logger),
		Scene:     sc,
		Clock:     viewClock,
	}, logger)

	frame := time.Second / time.Duration(*fps)
	go func() {
		if err := sess.Run(ctx, viewClock.Frames(ctx, frame)); err != nil && ctx.Err() == nil {
			logger.Error("session stopped", "error", err)
		}
	}()

	if *track {
		go func() {
			if err := sess.SetTracking(ctx, true); err != nil {
				logger.Warn("tracking on start failed", "error", err)
			}
		}()
	}

	model := ui.New(ctx, sess, viewClock, sess.Events(), frame)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
	logger.Info("viewer closed")
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "orbitview", "orbitview-tui.log")
}
