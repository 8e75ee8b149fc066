// Package propagation turns orbital element sets into positions. The orbital
// model sits behind the Propagator interface so the rest of the viewer never
// touches a concrete SGP4 library; SGP4 is the production implementation.
package propagation

import (
	"errors"
	"time"

	"github.com/star/orbitview/internal/transform"
)

var (
	// ErrInvalidTLE is returned when a line pair cannot be turned into an
	// element set.
	ErrInvalidTLE = errors.New("invalid TLE")

	// ErrPropagation is returned when the model cannot produce a usable
	// state for the requested time.
	ErrPropagation = errors.New("propagation failed")
)

// ElementSet is an immutable, model-specific orbital element record built by
// a Propagator. Callers treat it as opaque.
type ElementSet interface {
	CatalogNumber() int
	Epoch() time.Time
}

// State is the propagated inertial position at one instant, along with the
// sidereal angle needed to rotate it into the Earth-fixed frame.
type State struct {
	PositionECI  transform.Vec3 // km, TEME
	SiderealTime float64        // radians
}

// Propagator is the orbital propagation capability.
type Propagator interface {
	ParseElementSet(line1, line2 string) (ElementSet, error)
	Propagate(es ElementSet, t time.Time) (State, error)
}
