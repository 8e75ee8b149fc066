// Package transform converts satellite positions between the frames the viewer
// needs: the inertial frame the propagator reports in, the Earth-fixed frame,
// geodetic latitude/longitude, and the Cartesian render space around the globe.
//
// The inertial-to-fixed step is a single rotation about Z by Greenwich mean
// sidereal time (TEME -> PEF). Polar motion and the equation of the equinoxes
// are ignored; the error is tens of meters, far below one render pixel.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (2000-01-01 12:00:00 TT).
const j2000 = 2451545.0

// Vec3 is a Cartesian triple. Units depend on the frame: kilometers for
// inertial and Earth-fixed positions, scene units for render positions.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Array returns v as a fixed-size array, the shape used on the wire.
func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// JulianDate converts a UTC time to a Julian Date.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	frac := (float64(t.Hour()) +
		float64(t.Minute())/60.0 +
		(float64(t.Second())+float64(t.Nanosecond())/1e9)/3600.0) / 24.0

	// January and February count as months 13 and 14 of the previous year.
	if m <= 2 {
		y--
		m += 12
	}

	a := math.Floor(y / 100)
	b := 2 - a + math.Floor(a/4)

	return math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + b - 1524.5 + frac
}

// GMST returns Greenwich mean sidereal time in radians, in [0, 2π), using the
// IAU-82 expression (Vallado Eq. 3-47).
func GMST(t time.Time) float64 {
	tUT1 := (JulianDate(t) - j2000) / 36525.0

	// Seconds of time; 876600h expressed in seconds is 3155760000.
	sec := 67310.54841 +
		(3155760000.0+8640184.812866)*tUT1 +
		0.093104*tUT1*tUT1 -
		6.2e-6*tUT1*tUT1*tUT1

	sec = math.Mod(sec, 86400.0)
	if sec < 0 {
		sec += 86400.0
	}
	return sec / 86400.0 * 2.0 * math.Pi
}

// InertialToFixed rotates an inertial (TEME) position into the Earth-fixed
// frame given the sidereal angle in radians. Units are preserved.
func InertialToFixed(eci Vec3, gmst float64) Vec3 {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)
	return Vec3{
		X: eci.X*cosG + eci.Y*sinG,
		Y: -eci.X*sinG + eci.Y*cosG,
		Z: eci.Z,
	}
}

// PlausibleOrbitKm reports whether a position magnitude in kilometers belongs
// to an Earth orbiter: finite, above the surface, and inside ~50000 km.
func PlausibleOrbitKm(v Vec3) bool {
	for _, c := range [...]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := v.Norm()
	return mag >= 6200.0 && mag <= 50000.0
}
