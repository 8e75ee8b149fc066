package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/star/orbitview/internal/propagation"
)

// warnInterval rate-limits the refresh failure summary.
const warnInterval = time.Minute

// MetricsRecorder receives refresh outcomes. *metrics.Collector implements it.
type MetricsRecorder interface {
	ObserveRefresh(d time.Duration, failures int)
}

// RefreshStats summarizes one RefreshAll pass.
type RefreshStats struct {
	Updated  int
	Failed   int
	Hidden   int
	Duration time.Duration
}

// Refresher recomputes marker positions. Positions are computed on a worker
// pool; renderer calls are made on the caller's goroutine in object order.
type Refresher struct {
	pool     *propagation.WorkerPool
	renderer Renderer
	metrics  MetricsRecorder
	logger   *slog.Logger

	lastWarn time.Time
	jobs     []propagation.Job
	targets  []*Object
}

// NewRefresher creates a Refresher. metrics may be nil.
func NewRefresher(pool *propagation.WorkerPool, renderer Renderer, metrics MetricsRecorder, logger *slog.Logger) *Refresher {
	return &Refresher{
		pool:     pool,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
	}
}

// RefreshAll moves every visible object's marker to its position at now.
// Objects whose position cannot be computed are skipped for this pass; the
// rest still update. An empty object list is a no-op.
func (r *Refresher) RefreshAll(ctx context.Context, objects []*Object, now time.Time) RefreshStats {
	var stats RefreshStats
	if len(objects) == 0 {
		return stats
	}
	start := time.Now()

	r.jobs = r.jobs[:0]
	r.targets = r.targets[:0]
	for _, obj := range objects {
		if obj == nil || !obj.Visible || obj.Entry.Elements == nil {
			stats.Hidden++
			continue
		}
		r.jobs = append(r.jobs, propagation.Job{Index: len(r.targets), Elements: obj.Entry.Elements})
		r.targets = append(r.targets, obj)
	}

	var firstErr error
	var firstFailed *Object
	for _, res := range r.pool.Compute(ctx, r.jobs, now) {
		obj := r.targets[res.Index]
		if res.Err != nil {
			stats.Failed++
			if firstErr == nil {
				firstErr, firstFailed = res.Err, obj
			}
			r.logger.Debug("position refresh failed",
				"norad_id", obj.Entry.NORADID,
				"name", obj.Entry.Name,
				"error", res.Err,
			)
			continue
		}
		r.renderer.SetPosition(obj.Handle, res.Position)
		stats.Updated++
	}

	stats.Duration = time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveRefresh(stats.Duration, stats.Failed)
	}

	if stats.Failed > 0 && time.Since(r.lastWarn) >= warnInterval {
		r.lastWarn = time.Now()
		r.logger.Warn("objects skipped during refresh",
			"failed", stats.Failed,
			"updated", stats.Updated,
			"example_norad_id", firstFailed.Entry.NORADID,
			"example_error", firstErr,
		)
	}

	return stats
}
