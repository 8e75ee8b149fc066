package session

import (
	"context"
	"fmt"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/tle"
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/transform"
)

// Query identifies an object by NORAD id or, when NORADID is zero, by name.
type Query struct {
	Name    string
	NORADID int
}

func (q Query) String() string {
	if q.NORADID != 0 {
		return fmt.Sprintf("NORAD %d", q.NORADID)
	}
	return fmt.Sprintf("%q", q.Name)
}

// ObjectView is a read-only copy of one tracked object and its marker.
type ObjectView struct {
	ID       int
	Name     string
	NORADID  int
	Category classify.Category
	Epoch    time.Time
	Visible  bool
	Placed   bool
	Position transform.Vec3
	LatDeg   float64
	LonDeg   float64
}

// SelectionView summarizes the displayed trajectory.
type SelectionView struct {
	Name    string
	NORADID int
	Points  int
}

// Status is a point-in-time summary of the session.
type Status struct {
	Tracking         bool
	Pending          bool
	Objects          int
	Visible          int
	CatalogFetchedAt time.Time
	CatalogSource    string
	LastFrame        time.Time
	Selection        *SelectionView
}

func (s *Session) find(q Query) (*tracking.Object, bool) {
	if q.NORADID != 0 {
		return s.registry.FindByNORAD(q.NORADID)
	}
	return s.registry.FindByName(q.Name)
}

// Tracked is a tracked object's catalog entry with the category fixed when
// its marker was created.
type Tracked struct {
	Entry    tle.Entry
	Category classify.Category
}

// Lookup returns the tracked object matching q. ErrNotFound is returned when
// the registry is empty or nothing matches.
func (s *Session) Lookup(ctx context.Context, q Query) (Tracked, error) {
	var found *Tracked
	err := s.do(ctx, func() {
		if obj, ok := s.find(q); ok {
			found = &Tracked{Entry: obj.Entry, Category: obj.Category}
		}
	})
	if err != nil {
		return Tracked{}, err
	}
	if found == nil {
		return Tracked{}, fmt.Errorf("%s: %w", q, ErrNotFound)
	}
	return *found, nil
}

// Select samples the trajectory of the object matching q around the current
// view time and displays it, replacing any previous trajectory.
func (s *Session) Select(ctx context.Context, q Query) (Selected, error) {
	var obj tracking.Object
	var found bool
	if err := s.do(ctx, func() {
		if o, ok := s.find(q); ok {
			obj, found = *o, true
		}
	}); err != nil {
		return Selected{}, err
	}
	if !found {
		return Selected{}, fmt.Errorf("%s: %w", q, ErrNotFound)
	}

	// Sampling runs on the caller's goroutine so frames keep flowing.
	track, err := s.deps.Sampler.Sample(ctx, obj.Entry.Elements, s.deps.Clock.Now(), s.cfg.HalfWindow, s.cfg.Step)
	if err != nil {
		return Selected{}, fmt.Errorf("trajectory for %s: %w", q, err)
	}

	sel := Selected{
		Name:     obj.Entry.Name,
		NORADID:  obj.Entry.NORADID,
		Category: obj.Category,
		Elements: obj.Entry.Elements,
		Track:    track,
	}
	if err := s.do(ctx, func() {
		s.selection.Show(sel.Name, sel.NORADID, track)
		s.emit(sel)
	}); err != nil {
		return Selected{}, err
	}
	s.logger.Info("object selected", "name", sel.Name, "norad_id", sel.NORADID, "points", len(track.Points))
	return sel, nil
}

// ClearSelection removes the displayed trajectory.
func (s *Session) ClearSelection(ctx context.Context) error {
	return s.do(ctx, func() {
		if _, ok := s.selection.Active(); ok {
			s.selection.Clear()
			s.emit(SelectionCleared{})
		}
	})
}

// Status reports the session state.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.do(ctx, func() {
		st = Status{
			Tracking:         s.tracking,
			Pending:          s.pending,
			Objects:          s.registry.Len(),
			CatalogFetchedAt: s.registry.CatalogFetchedAt(),
			LastFrame:        s.lastTick,
		}
		if cat, ok := s.deps.Catalog.Peek(); ok {
			st.CatalogSource = cat.Source
		}
		for _, obj := range s.registry.Objects() {
			if obj.Visible {
				st.Visible++
			}
		}
		if a, ok := s.selection.Active(); ok {
			st.Selection = &SelectionView{Name: a.Name, NORADID: a.NORADID, Points: len(a.Track.Points)}
		}
	})
	return st, err
}

// Objects returns every tracked object with its current marker state, in
// catalog order.
func (s *Session) Objects(ctx context.Context) ([]ObjectView, error) {
	var views []ObjectView
	err := s.do(ctx, func() {
		objs := s.registry.Objects()
		views = make([]ObjectView, 0, len(objs))
		for _, obj := range objs {
			v := ObjectView{
				ID:       obj.ID,
				Name:     obj.Entry.Name,
				NORADID:  obj.Entry.NORADID,
				Category: obj.Category,
				Epoch:    obj.Entry.Epoch,
				Visible:  obj.Visible,
			}
			if m, ok := s.deps.Scene.Marker(obj.Handle); ok && m.Placed {
				v.Placed = true
				v.Position = m.Position
				v.LatDeg, v.LonDeg = transform.CartesianToGeodetic(m.Position)
			}
			views = append(views, v)
		}
	})
	return views, err
}
