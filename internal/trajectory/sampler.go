// Package trajectory samples an object's render-space path over a time
// window and manages the single trajectory line shown for the selection.
package trajectory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/transform"
)

const (
	// DefaultHalfWindow spans 12 hours either side of the center time.
	DefaultHalfWindow = 12 * time.Hour
	// DefaultStep is one sample per minute.
	DefaultStep = time.Minute

	defaultCacheSize = 64
	cacheTTL         = 10 * time.Minute
)

// ErrInvalidWindow is returned for a negative window or a non-positive step.
var ErrInvalidWindow = errors.New("invalid trajectory window")

var tracer = otel.Tracer("github.com/star/orbitview/internal/trajectory")

// Point is one trajectory sample.
type Point struct {
	T   time.Time
	Pos transform.Vec3
}

// Track is a chronologically ordered trajectory.
type Track struct {
	NORADID    int
	Center     time.Time
	HalfWindow time.Duration
	Step       time.Duration
	Points     []Point
}

// Positions returns the render positions of t in order.
func (t Track) Positions() []transform.Vec3 {
	out := make([]transform.Vec3, len(t.Points))
	for i, p := range t.Points {
		out[i] = p.Pos
	}
	return out
}

// PointCount returns how many samples Sample produces for the window.
func PointCount(halfWindow, step time.Duration) (int, error) {
	if halfWindow < 0 || step <= 0 {
		return 0, fmt.Errorf("%w: half window %v, step %v", ErrInvalidWindow, halfWindow, step)
	}
	return int(2*halfWindow/step) + 1, nil
}

// MetricsRecorder receives sampling outcomes. *metrics.Collector implements it.
type MetricsRecorder interface {
	TrajectorySampled(points int)
	TrajectoryCacheResult(hit bool)
}

type cacheKey struct {
	norad      int
	epoch      int64
	center     int64
	halfWindow time.Duration
	step       time.Duration
}

// Sampler computes trajectories through a Converter and memoizes recent
// results. Safe for concurrent use.
type Sampler struct {
	conv    *propagation.Converter
	cache   *expirable.LRU[cacheKey, Track]
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewSampler creates a Sampler. cacheSize <= 0 selects a small default;
// metrics may be nil.
func NewSampler(conv *propagation.Converter, cacheSize int, metrics MetricsRecorder, logger *slog.Logger) *Sampler {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &Sampler{
		conv:    conv,
		cache:   expirable.NewLRU[cacheKey, Track](cacheSize, nil, cacheTTL),
		metrics: metrics,
		logger:  logger,
	}
}

// Sample evaluates es at every step from center-halfWindow through
// center+halfWindow inclusive. The whole track fails if any sample fails.
func (s *Sampler) Sample(ctx context.Context, es propagation.ElementSet, center time.Time, halfWindow, step time.Duration) (Track, error) {
	n, err := PointCount(halfWindow, step)
	if err != nil {
		return Track{}, err
	}

	// Samples are anchored on center, so the key keeps it exact.
	key := cacheKey{
		norad:      es.CatalogNumber(),
		epoch:      epochKey(es.Epoch()),
		center:     center.UnixNano(),
		halfWindow: halfWindow,
		step:       step,
	}
	if tr, ok := s.cache.Get(key); ok {
		s.recordCache(true)
		return tr, nil
	}
	s.recordCache(false)

	ctx, span := tracer.Start(ctx, "trajectory.sample")
	defer span.End()
	span.SetAttributes(
		attribute.Int("norad_id", es.CatalogNumber()),
		attribute.Int("points", n),
	)

	start := center.Add(-halfWindow)
	points := make([]Point, n)
	for i := range points {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return Track{}, err
			}
		}
		t := start.Add(time.Duration(i) * step)
		pos, err := s.conv.Position(es, t)
		if err != nil {
			span.RecordError(err)
			return Track{}, fmt.Errorf("sample %d at %s: %w", i, t.Format(time.RFC3339), err)
		}
		points[i] = Point{T: t, Pos: pos}
	}

	tr := Track{
		NORADID:    es.CatalogNumber(),
		Center:     center,
		HalfWindow: halfWindow,
		Step:       step,
		Points:     points,
	}
	s.cache.Add(key, tr)
	if s.metrics != nil {
		s.metrics.TrajectorySampled(n)
	}
	s.logger.Debug("trajectory sampled", "norad_id", tr.NORADID, "points", n)
	return tr, nil
}

// epochKey keeps the zero epoch of an unreadable epoch column distinct from
// real epochs; UnixNano is undefined for it.
func epochKey(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func (s *Sampler) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.TrajectoryCacheResult(hit)
	}
}
