package tracking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

var now = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// recordingRenderer captures every call made against it.
type recordingRenderer struct {
	mu        sync.Mutex
	next      Handle
	created   map[Handle]classify.Category
	removed   map[Handle]bool
	positions map[Handle]transform.Vec3
	visible   map[Handle]bool
	order     []Handle
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{
		created:   map[Handle]classify.Category{},
		removed:   map[Handle]bool{},
		positions: map[Handle]transform.Vec3{},
		visible:   map[Handle]bool{},
	}
}

func (r *recordingRenderer) CreateMarker(c classify.Category) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.created[r.next] = c
	return r.next
}

func (r *recordingRenderer) SetPosition(h Handle, pos transform.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[h] = pos
	r.order = append(r.order, h)
}

func (r *recordingRenderer) SetVisible(h Handle, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible[h] = v
}

func (r *recordingRenderer) RemoveMarker(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed[h] = true
}

func (r *recordingRenderer) CreateTrajectoryLine([]transform.Vec3) Handle { return 0 }
func (r *recordingRenderer) RemoveTrajectoryLine(Handle)                  {}

// stubElements and stubPort drive the converter without SGP4.
type stubElements struct{ id int }

func (s stubElements) CatalogNumber() int { return s.id }
func (s stubElements) Epoch() time.Time   { return now }

type stubPort struct {
	fail  map[int]bool
	panic map[int]bool
}

func (p stubPort) ParseElementSet(string, string) (propagation.ElementSet, error) {
	return nil, errors.New("not used")
}

func (p stubPort) Propagate(es propagation.ElementSet, t time.Time) (propagation.State, error) {
	id := es.CatalogNumber()
	if p.panic[id] {
		panic("corrupt record")
	}
	if p.fail[id] {
		return propagation.State{}, propagation.ErrPropagation
	}
	// Spread objects along the equator by id.
	angle := float64(id) * math.Pi / 180
	return propagation.State{PositionECI: transform.Vec3{X: 6778 * math.Cos(angle), Y: 6778 * math.Sin(angle)}}, nil
}

func entries(names ...string) []tle.Entry {
	out := make([]tle.Entry, len(names))
	for i, n := range names {
		out[i] = tle.Entry{Name: n, NORADID: 1000 + i, Epoch: now, Elements: stubElements{id: 1000 + i}}
	}
	return out
}

func catalog(at time.Time) tle.Catalog {
	return tle.Catalog{Lines: []string{"x", "y", "z"}, FetchedAt: at, Source: "test"}
}

func TestPopulateClassifiesAndCreatesOneHandleEach(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())

	objs := reg.Populate(catalog(now), entries("STARLINK-1", "USA 224", "ISS (ZARYA)"), rr.CreateMarker)

	require.Len(t, objs, 3)
	require.Len(t, rr.created, 3)
	require.Equal(t, classify.Starlink, objs[0].Category)
	require.Equal(t, classify.Military, objs[1].Category)
	require.Equal(t, classify.Unclassified, objs[2].Category)
	for _, o := range objs {
		require.Equal(t, o.Category, rr.created[o.Handle])
		require.False(t, o.Visible)
	}
	require.True(t, reg.Populated())
	require.True(t, reg.CatalogFetchedAt().Equal(now))
}

func TestPopulateIsIdempotent(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	es := entries("A", "B")

	first := reg.Populate(catalog(now), es, rr.CreateMarker)
	second := reg.Populate(catalog(now), es, rr.CreateMarker)
	third := reg.Populate(catalog(now.Add(time.Hour)), entries("C", "D", "E"), rr.CreateMarker)

	require.Len(t, rr.created, 2, "no duplicate handles")
	require.Equal(t, first, second)
	require.Equal(t, first, third)
}

func TestResetAllowsRepopulation(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	old := reg.Populate(catalog(now), entries("A", "B"), rr.CreateMarker)

	reg.Reset(rr.RemoveMarker)
	require.False(t, reg.Populated())
	require.Zero(t, reg.Len())
	for _, o := range old {
		require.True(t, rr.removed[o.Handle])
	}

	fresh := reg.Populate(catalog(now.Add(13*time.Hour)), entries("C", "D", "E"), rr.CreateMarker)
	require.Len(t, fresh, 3)
	require.Len(t, rr.created, 5)
}

func TestSameContentAndRevalidate(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	require.False(t, reg.SameContent(catalog(now)), "empty registry matches nothing")
	reg.Populate(catalog(now), entries("A"), rr.CreateMarker)

	later := catalog(now.Add(time.Hour))
	require.True(t, reg.SameContent(later))
	reg.Revalidate(later)
	require.Equal(t, later.FetchedAt, reg.CatalogFetchedAt())
	require.Len(t, rr.created, 1)

	changed := later
	changed.Lines = []string{"x", "y", "w"}
	changed.FetchedAt = now.Add(2 * time.Hour)
	require.False(t, reg.SameContent(changed))
	reg.Revalidate(changed)
	require.Equal(t, later.FetchedAt, reg.CatalogFetchedAt(), "different content is not revalidated")
}

func TestSetVisibleKeepsHandle(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	objs := reg.Populate(catalog(now), entries("A", "B"), rr.CreateMarker)

	reg.SetAllVisible(true)
	require.True(t, rr.visible[objs[0].Handle])
	reg.SetVisible(objs[0], false)
	require.False(t, rr.visible[objs[0].Handle])
	require.True(t, rr.visible[objs[1].Handle])
	require.Empty(t, rr.removed)

	h := objs[0].Handle
	reg.SetVisible(objs[0], true)
	require.Equal(t, h, objs[0].Handle)
}

func TestLookups(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	reg.Populate(catalog(now), entries("ISS (ZARYA)", "STARLINK-1007", "STARLINK-1008"), rr.CreateMarker)

	obj, ok := reg.FindByName("starlink-1007")
	require.True(t, ok)
	require.Equal(t, "STARLINK-1007", obj.Entry.Name)

	obj, ok = reg.FindByName("zarya")
	require.True(t, ok)
	require.Equal(t, 1000, obj.Entry.NORADID)

	_, ok = reg.FindByName("  ")
	require.False(t, ok)

	obj, ok = reg.FindByNORAD(1002)
	require.True(t, ok)
	require.Equal(t, "STARLINK-1008", obj.Entry.Name)

	obj, ok = reg.ByID(1)
	require.True(t, ok)
	require.Equal(t, 1001, obj.Entry.NORADID)
	_, ok = reg.ByID(3)
	require.False(t, ok)

	require.Equal(t, map[string]int{"unclassified": 1, "starlink": 2}, reg.CategoryCounts())
}

type refreshCounter struct {
	passes, failures int
}

func (c *refreshCounter) ObserveRefresh(_ time.Duration, failures int) {
	c.passes++
	c.failures += failures
}

func newTestRefresher(rr *recordingRenderer, port stubPort, m MetricsRecorder) *Refresher {
	pool := propagation.NewWorkerPool(4, propagation.NewConverter(port), testLogger())
	return NewRefresher(pool, rr, m, testLogger())
}

func TestRefreshAllIsolatesFailures(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	objs := reg.Populate(catalog(now), entries("A", "B", "C", "D", "E"), rr.CreateMarker)
	reg.SetAllVisible(true)

	port := stubPort{
		fail:  map[int]bool{1001: true},
		panic: map[int]bool{1003: true},
	}
	m := &refreshCounter{}
	stats := newTestRefresher(rr, port, m).RefreshAll(context.Background(), reg.Objects(), now)

	require.Equal(t, 3, stats.Updated)
	require.Equal(t, 2, stats.Failed)
	require.Equal(t, 1, m.passes)
	require.Equal(t, 2, m.failures)

	for i, o := range objs {
		_, moved := rr.positions[o.Handle]
		require.Equal(t, i != 1 && i != 3, moved, "object %d", i)
	}
	require.Equal(t, []Handle{objs[0].Handle, objs[2].Handle, objs[4].Handle}, rr.order, "renderer calls in registry order")
}

func TestRefreshAllPlacesMarkersOnSphere(t *testing.T) {
	rr := newRecordingRenderer()
	reg := NewRegistry(nil, rr, testLogger())
	reg.Populate(catalog(now), entries("A", "B", "C"), rr.CreateMarker)
	reg.SetAllVisible(true)

	newTestRefresher(rr, stubPort{}, nil).RefreshAll(context.Background(), reg.Objects(), now)

	require.Len(t, rr.positions, 3)
	for _, pos := range rr.positions {
		require.InDelta(t, transform.MarkerRadius, pos.Norm(), 1e-9)
	}
}

func TestRefreshAllSkipsHiddenAndEmpty(t *testing.T) {
	rr := newRecordingRenderer()
	ref := newTestRefresher(rr, stubPort{}, nil)

	require.Equal(t, RefreshStats{}, ref.RefreshAll(context.Background(), nil, now))

	reg := NewRegistry(nil, rr, testLogger())
	objs := reg.Populate(catalog(now), entries("A", "B"), rr.CreateMarker)
	reg.SetVisible(objs[1], true)

	stats := ref.RefreshAll(context.Background(), reg.Objects(), now)
	require.Equal(t, 1, stats.Updated)
	require.Equal(t, 1, stats.Hidden)
	_, moved := rr.positions[objs[0].Handle]
	require.False(t, moved)
}
