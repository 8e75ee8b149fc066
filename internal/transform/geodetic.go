package transform

import "math"

// WGS-84 ellipsoid, in kilometers to match propagator output.
const (
	wgs84A  = 6378.137
	wgs84F  = 1.0 / 298.257223563
	wgs84E2 = wgs84F * (2 - wgs84F)
)

// GeodeticPoint is a position over the WGS-84 ellipsoid. Latitude and
// longitude are degrees; longitude is normalized to [-180, 180].
type GeodeticPoint struct {
	LatDeg, LonDeg float64
	AltKm          float64
}

// FixedToGeodetic converts an Earth-fixed position in kilometers to geodetic
// coordinates with Bowring's iteration. Five passes converge well below a
// millimeter for anything in orbit.
func FixedToGeodetic(ecef Vec3) GeodeticPoint {
	lon := math.Atan2(ecef.Y, ecef.X)
	p := math.Hypot(ecef.X, ecef.Y)

	lat := math.Atan2(ecef.Z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(ecef.Z+wgs84E2*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(ecef.Z)/math.Abs(sinLat) - n*(1-wgs84E2)
	}

	return GeodeticPoint{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: NormalizeLongitude(lon * 180.0 / math.Pi),
		AltKm:  alt,
	}
}

// InertialToGeodetic rotates an inertial position by the sidereal angle and
// returns the sub-satellite geodetic point.
func InertialToGeodetic(eci Vec3, gmst float64) GeodeticPoint {
	return FixedToGeodetic(InertialToFixed(eci, gmst))
}

// NormalizeLongitude wraps degrees into [-180, 180].
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180.0, 360.0)
	if lon < 0 {
		lon += 360.0
	}
	return lon - 180.0
}
