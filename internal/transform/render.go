package transform

import "math"

const (
	// GlobeRadius is the radius of the rendered Earth sphere in scene units.
	GlobeRadius = 10.0
	// MarkerRadius places markers just outside the globe.
	MarkerRadius = 11.0
)

// GeodeticToCartesian maps latitude/longitude in degrees onto a sphere of the
// given radius in render space (Y up).
//
// The sign and the +180° longitude offset align the texture seam of the
// rendered globe with the antimeridian; changing either mirrors or rotates
// markers against the surface.
func GeodeticToCartesian(latDeg, lonDeg, radius float64) Vec3 {
	phi := (90 - latDeg) * (math.Pi / 180)
	theta := (lonDeg + 180) * (math.Pi / 180)
	return Vec3{
		X: -(radius * math.Sin(phi) * math.Cos(theta)),
		Y: radius * math.Cos(phi),
		Z: radius * math.Sin(phi) * math.Sin(theta),
	}
}

// CartesianToGeodetic inverts GeodeticToCartesian, ignoring radius.
func CartesianToGeodetic(v Vec3) (latDeg, lonDeg float64) {
	r := v.Norm()
	if r == 0 {
		return 0, 0
	}
	phi := math.Acos(clamp(v.Y/r, -1, 1))
	theta := math.Atan2(v.Z, -v.X)
	latDeg = 90 - phi*180/math.Pi
	lonDeg = NormalizeLongitude(theta*180/math.Pi - 180)
	return latDeg, lonDeg
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
