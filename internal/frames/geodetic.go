package frames

import (
	"math"

	"github.com/golang/geo/r3"
)

// Ellipsoid holds the semi-axes of the reference body in meters.
type Ellipsoid struct {
	SemiMajor, SemiMinor float64
}

// WGS84 returns the WGS-84 ellipsoid.
func WGS84() Ellipsoid {
	return Ellipsoid{SemiMajor: 6378137.0, SemiMinor: 6356752.314245}
}

func (e Ellipsoid) e2() float64 {
	return 1.0 - (e.SemiMinor*e.SemiMinor)/(e.SemiMajor*e.SemiMajor)
}

// MetersPerDegree returns the local ground distance, in meters, of one degree
// of longitude and one degree of latitude at the given latitude.
func (e Ellipsoid) MetersPerDegree(latDeg float64) (lonM, latM float64) {
	lat := latDeg * math.Pi / 180.0
	e2 := e.e2()

	sinLat := math.Sin(lat)
	den := math.Sqrt(1.0 - e2*sinLat*sinLat)

	// Radius of curvature in the prime vertical (east-west) and meridian.
	n := e.SemiMajor / den
	m := e.SemiMajor * (1.0 - e2) / (den * den * den)

	lonM = n * math.Cos(lat) * math.Pi / 180.0
	latM = m * math.Pi / 180.0
	return lonM, latM
}

// GeodeticToECEF converts geodetic coordinates (degrees, meters above the
// ellipsoid) to ECEF meters.
func (e Ellipsoid) GeodeticToECEF(latDeg, lonDeg, altM float64) r3.Vector {
	lat := latDeg * math.Pi / 180.0
	lon := lonDeg * math.Pi / 180.0
	e2 := e.e2()

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// Radius of curvature in the prime vertical.
	n := e.SemiMajor / math.Sqrt(1-e2*sinLat*sinLat)

	return r3.Vector{
		X: (n + altM) * cosLat * math.Cos(lon),
		Y: (n + altM) * cosLat * math.Sin(lon),
		Z: (n*(1-e2) + altM) * sinLat,
	}
}

// ECEFToGeodetic converts ECEF meters to geodetic coordinates (degrees,
// meters above the ellipsoid) using the iterative Bowring method. Converges
// in a few iterations for positions between the surface and Earth orbit.
func (e Ellipsoid) ECEFToGeodetic(p r3.Vector) (latDeg, lonDeg, altM float64) {
	e2 := e.e2()
	lon := math.Atan2(p.Y, p.X)
	rho := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, rho*(1-e2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := e.SemiMajor / math.Sqrt(1-e2*sinLat*sinLat)
		lat = math.Atan2(p.Z+e2*n*sinLat, rho)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	n := e.SemiMajor / math.Sqrt(1-e2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = rho/cosLat - n
	} else {
		alt = math.Abs(p.Z)/math.Abs(sinLat) - n*(1-e2)
	}

	return lat * 180.0 / math.Pi, lon * 180.0 / math.Pi, alt
}
