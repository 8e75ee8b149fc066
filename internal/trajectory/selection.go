package trajectory

import (
	"github.com/star/orbitview/internal/tracking"
	"github.com/star/orbitview/internal/transform"
)

// LineRenderer is the part of the scene Selection draws into.
type LineRenderer interface {
	CreateTrajectoryLine(points []transform.Vec3) tracking.Handle
	RemoveTrajectoryLine(h tracking.Handle)
}

// Active describes the currently displayed trajectory.
type Active struct {
	Name    string
	NORADID int
	Line    tracking.Handle
	Track   Track
}

// Selection owns the at-most-one trajectory line on screen. Not safe for
// concurrent use.
type Selection struct {
	renderer LineRenderer
	active   *Active
}

// NewSelection creates an empty selection drawing through renderer.
func NewSelection(renderer LineRenderer) *Selection {
	return &Selection{renderer: renderer}
}

// Show replaces any displayed trajectory with track.
func (s *Selection) Show(name string, noradID int, track Track) Active {
	s.Clear()
	s.active = &Active{
		Name:    name,
		NORADID: noradID,
		Line:    s.renderer.CreateTrajectoryLine(track.Positions()),
		Track:   track,
	}
	return *s.active
}

// Clear removes the displayed trajectory, if any.
func (s *Selection) Clear() {
	if s.active == nil {
		return
	}
	s.renderer.RemoveTrajectoryLine(s.active.Line)
	s.active = nil
}

// Active returns the displayed trajectory.
func (s *Selection) Active() (Active, bool) {
	if s.active == nil {
		return Active{}, false
	}
	return *s.active, true
}
