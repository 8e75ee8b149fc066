// Package session owns the viewer's mutable state: the tracked object
// registry, the selection and the scene. A single loop goroutine applies
// every mutation; other goroutines submit work to it and wait.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/clock"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/scene"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/trajectory"
)

var (
	// ErrNotFound is returned when a selection query matches no object.
	ErrNotFound = errors.New("object not found")
	// ErrClosed is returned once the session loop has stopped.
	ErrClosed = errors.New("session closed")
)

var tracer = otel.Tracer("github.com/star/orbitview/internal/session")

// MetricsRecorder receives registry gauges. *metrics.Collector implements it.
type MetricsRecorder interface {
	SetTrackedObjects(counts map[string]int)
	SetCatalogAge(age time.Duration)
}

// Config tunes a Session.
type Config struct {
	HalfWindow time.Duration // trajectory half window; default 12h
	Step       time.Duration // trajectory step; default 1m

	// Wall is the clock that gates catalog fetches. It stays on real time
	// while the view clock may be running fast or backwards. Default time.Now.
	Wall func() time.Time
}

// Deps are the collaborators a Session drives.
type Deps struct {
	Catalog   *tle.CatalogCache
	Port      propagation.Propagator
	Policy    *classify.Policy
	Refresher *tracking.Refresher
	Sampler   *trajectory.Sampler
	Scene     *scene.Scene
	Clock     clock.Clock
	Metrics   MetricsRecorder
}

// Session is the single writer over the registry, selection and scene.
type Session struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	registry  *tracking.Registry
	selection *trajectory.Selection

	ops    chan func()
	events chan Event
	done   chan struct{}

	// Owned by the loop goroutine.
	runCtx   context.Context
	tracking bool
	pending  bool
	waiters  []chan error
	lastTick time.Time
}

// New creates a session. Run must be called to start processing.
func New(cfg Config, deps Deps, logger *slog.Logger) *Session {
	if cfg.HalfWindow <= 0 {
		cfg.HalfWindow = trajectory.DefaultHalfWindow
	}
	if cfg.Step <= 0 {
		cfg.Step = trajectory.DefaultStep
	}
	if cfg.Wall == nil {
		cfg.Wall = time.Now
	}
	return &Session{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		registry:  tracking.NewRegistry(deps.Policy, deps.Scene, logger),
		selection: trajectory.NewSelection(deps.Scene),
		ops:       make(chan func()),
		events:    make(chan Event, 32),
		done:      make(chan struct{}),
	}
}

// Events delivers UI notifications. Events are dropped when the buffer is
// full.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run processes submitted work and refreshes positions on every frame until
// ctx is done or frames is closed.
func (s *Session) Run(ctx context.Context, frames <-chan time.Time) error {
	defer close(s.done)
	defer s.releaseWaiters(ErrClosed)
	s.runCtx = ctx

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case op := <-s.ops:
			op()
		case t, ok := <-frames:
			if !ok {
				return nil
			}
			s.tick(t)
		}
	}
}

// tick refreshes every visible marker for view time t.
func (s *Session) tick(t time.Time) {
	s.lastTick = t
	if s.deps.Metrics != nil {
		if cat, ok := s.deps.Catalog.Peek(); ok {
			s.deps.Metrics.SetCatalogAge(s.cfg.Wall().Sub(cat.FetchedAt))
		}
	}
	if !s.tracking || !s.registry.Populated() {
		return
	}
	s.deps.Refresher.RefreshAll(s.runCtx, s.registry.Objects(), t)
}

// do runs fn on the loop goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the loop without waiting. Used by background work
// reporting back; dropped if the loop has stopped.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("dropping session event, buffer full", "event", fmt.Sprintf("%T", ev))
	}
}

func (s *Session) releaseWaiters(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

// SetTracking shows or hides every marker. Enabling tracking on an empty
// registry fetches and populates it first; the call waits for that to finish
// (or ctx) and returns the fetch error, if any. The frame loop keeps running
// in the meantime.
func (s *Session) SetTracking(ctx context.Context, enabled bool) error {
	var wait chan error
	err := s.do(ctx, func() {
		if s.tracking != enabled {
			s.tracking = enabled
			s.emit(TrackingChanged{Enabled: enabled})
		}
		if !enabled {
			s.registry.SetAllVisible(false)
			return
		}
		if s.registry.Populated() {
			s.registry.SetAllVisible(true)
			s.refreshNow()
			return
		}
		wait = s.startPopulate(false)
	})
	if err != nil || wait == nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload refetches the catalog and rebuilds the registry if the fetched
// lines differ from the ones on screen. On failure the current objects are
// kept.
func (s *Session) Reload(ctx context.Context) error {
	var wait chan error
	err := s.do(ctx, func() {
		s.deps.Catalog.Invalidate()
		wait = s.startPopulate(true)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startPopulate launches a catalog fetch unless one is already pending and
// returns a channel that receives its outcome. Loop goroutine only.
func (s *Session) startPopulate(reload bool) chan error {
	wait := make(chan error, 1)
	s.waiters = append(s.waiters, wait)
	if s.pending {
		return wait
	}
	s.pending = true

	ctx := s.runCtx
	now := s.cfg.Wall()
	go func() {
		ctx, span := tracer.Start(ctx, "session.populate")
		defer span.End()

		cat, err := s.deps.Catalog.Get(ctx, now)
		var entries []tle.Entry
		if err == nil {
			entries = tle.Parse(cat.Lines, s.deps.Port, s.logger)
			span.SetAttributes(attribute.Int("entries", len(entries)))
		} else {
			span.RecordError(err)
		}
		s.post(func() { s.finishPopulate(cat, entries, err, reload) })
	}()
	return wait
}

// finishPopulate applies a completed fetch. Loop goroutine only.
func (s *Session) finishPopulate(cat tle.Catalog, entries []tle.Entry, err error, reload bool) {
	s.pending = false
	if err != nil {
		s.logger.Warn("catalog unavailable, registry unchanged", "error", err)
		s.emit(CatalogFailed{Err: err})
		s.releaseWaiters(err)
		return
	}

	if reload && s.registry.Populated() {
		if s.registry.SameContent(cat) {
			s.registry.Revalidate(cat)
			s.logger.Info("catalog unchanged on reload, keeping objects", "objects", s.registry.Len())
		} else {
			s.selection.Clear()
			s.registry.Reset(s.deps.Scene.RemoveMarker)
			s.emit(SelectionCleared{})
		}
	}

	if !s.registry.Populated() {
		s.registry.Populate(cat, entries, s.deps.Scene.CreateMarker)
		if s.deps.Metrics != nil {
			s.deps.Metrics.SetTrackedObjects(s.registry.CategoryCounts())
		}
		s.emit(CatalogLoaded{Objects: s.registry.Len(), FetchedAt: cat.FetchedAt, Source: cat.Source})
	}

	if s.tracking {
		s.registry.SetAllVisible(true)
		s.refreshNow()
	}
	s.releaseWaiters(nil)
}

// refreshNow places markers immediately instead of waiting for the next
// frame. Loop goroutine only.
func (s *Session) refreshNow() {
	s.deps.Refresher.RefreshAll(s.runCtx, s.registry.Objects(), s.deps.Clock.Now())
}
