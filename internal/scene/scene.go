// Package scene is an in-memory renderer: it keeps the markers and lines the
// viewer has drawn so HTTP handlers, the position stream and the terminal UI
// can read a consistent picture of the globe.
package scene

import (
	"cmp"
	"slices"
	"sync"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/transform"
)

// Marker is the drawn state of one object.
type Marker struct {
	Handle   tracking.Handle
	Category classify.Category
	Position transform.Vec3
	Placed   bool // a position has been set at least once
	Visible  bool
}

// Line is a drawn trajectory.
type Line struct {
	Handle tracking.Handle
	Points []transform.Vec3
}

// Snapshot is a copy of the scene at one version.
type Snapshot struct {
	Version uint64
	Markers []Marker
	Lines   []Line
}

// Scene implements tracking.Renderer. Writers are expected to be a single
// goroutine; readers may call Snapshot and Marker concurrently.
type Scene struct {
	mu      sync.RWMutex
	next    tracking.Handle
	version uint64
	markers map[tracking.Handle]*Marker
	lines   map[tracking.Handle]*Line
}

var _ tracking.Renderer = (*Scene)(nil)

// New returns an empty scene.
func New() *Scene {
	return &Scene{
		markers: make(map[tracking.Handle]*Marker),
		lines:   make(map[tracking.Handle]*Line),
	}
}

func (s *Scene) issue() tracking.Handle {
	s.next++
	s.version++
	return s.next
}

// CreateMarker adds a hidden, unplaced marker.
func (s *Scene) CreateMarker(category classify.Category) tracking.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issue()
	s.markers[h] = &Marker{Handle: h, Category: category}
	return h
}

// SetPosition moves a marker. Unknown handles are ignored.
func (s *Scene) SetPosition(h tracking.Handle, pos transform.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markers[h]; ok {
		m.Position = pos
		m.Placed = true
		s.version++
	}
}

// SetVisible shows or hides a marker. Unknown handles are ignored.
func (s *Scene) SetVisible(h tracking.Handle, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.markers[h]; ok && m.Visible != visible {
		m.Visible = visible
		s.version++
	}
}

// RemoveMarker deletes a marker.
func (s *Scene) RemoveMarker(h tracking.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[h]; ok {
		delete(s.markers, h)
		s.version++
	}
}

// CreateTrajectoryLine adds a polyline through points.
func (s *Scene) CreateTrajectoryLine(points []transform.Vec3) tracking.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.issue()
	s.lines[h] = &Line{Handle: h, Points: slices.Clone(points)}
	return h
}

// RemoveTrajectoryLine deletes a polyline.
func (s *Scene) RemoveTrajectoryLine(h tracking.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[h]; ok {
		delete(s.lines, h)
		s.version++
	}
}

// Marker returns the drawn state of h.
func (s *Scene) Marker(h tracking.Handle) (Marker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markers[h]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Version increases on every mutation.
func (s *Scene) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot copies the scene. Markers and lines are ordered by handle.
func (s *Scene) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version: s.version,
		Markers: make([]Marker, 0, len(s.markers)),
		Lines:   make([]Line, 0, len(s.lines)),
	}
	for _, m := range s.markers {
		snap.Markers = append(snap.Markers, *m)
	}
	for _, l := range s.lines {
		snap.Lines = append(snap.Lines, Line{Handle: l.Handle, Points: slices.Clone(l.Points)})
	}
	slices.SortFunc(snap.Markers, func(a, b Marker) int { return cmp.Compare(a.Handle, b.Handle) })
	slices.SortFunc(snap.Lines, func(a, b Line) int { return cmp.Compare(a.Handle, b.Handle) })
	return snap
}
