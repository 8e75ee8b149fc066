package propagation

import (
	"fmt"
	"time"

	"github.com/star/orbitview/internal/transform"
)

// Converter maps an element set and an instant to a point in render space:
// propagate, rotate into the Earth-fixed frame, take geodetic latitude and
// longitude, then place the point on a sphere of the configured radius.
// Altitude is discarded; every marker sits on the same shell.
type Converter struct {
	Port   Propagator
	Radius float64
}

// NewConverter returns a Converter placing markers at transform.MarkerRadius.
func NewConverter(port Propagator) *Converter {
	return &Converter{Port: port, Radius: transform.MarkerRadius}
}

// Geodetic returns the sub-satellite point of es at t.
func (c *Converter) Geodetic(es ElementSet, t time.Time) (transform.GeodeticPoint, error) {
	st, err := c.Port.Propagate(es, t)
	if err != nil {
		return transform.GeodeticPoint{}, err
	}
	return transform.InertialToGeodetic(st.PositionECI, st.SiderealTime), nil
}

// Position returns the render-space position of es at t.
func (c *Converter) Position(es ElementSet, t time.Time) (transform.Vec3, error) {
	gp, err := c.Geodetic(es, t)
	if err != nil {
		return transform.Vec3{}, fmt.Errorf("position of %d: %w", es.CatalogNumber(), err)
	}
	return transform.GeodeticToCartesian(gp.LatDeg, gp.LonDeg, c.Radius), nil
}
