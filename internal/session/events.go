package session

import (
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/propagation"
	"github.com/star/orbitview/internal/trajectory"
)

// Event is a notification for the UI.
type Event interface {
	sessionEvent()
}

// Selected reports the object chosen for trajectory display.
type Selected struct {
	Name     string
	NORADID  int
	Category classify.Category
	Elements propagation.ElementSet
	Track    trajectory.Track
}

// SelectionCleared reports that no trajectory is displayed.
type SelectionCleared struct{}

// TrackingChanged reports the tracking toggle.
type TrackingChanged struct {
	Enabled bool
}

// CatalogLoaded reports a freshly populated registry.
type CatalogLoaded struct {
	Objects   int
	FetchedAt time.Time
	Source    string
}

// CatalogFailed reports a fetch that left the registry unchanged.
type CatalogFailed struct {
	Err error
}

func (Selected) sessionEvent()         {}
func (SelectionCleared) sessionEvent() {}
func (TrackingChanged) sessionEvent()  {}
func (CatalogLoaded) sessionEvent()    {}
func (CatalogFailed) sessionEvent()    {}
