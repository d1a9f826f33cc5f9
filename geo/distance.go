// Package geo holds the coordinate type and great-circle distance used to
// score every listing against the reference point.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

const kmPerMile = 1.60934

// Unit selects the unit Distance reports in.
type Unit int

const (
	Kilometers Unit = iota
	Miles
)

// Point is a WGS 84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the point is within |lat| <= 90 and |lon| <= 180.
func (p Point) Valid() bool {
	return math.Abs(p.Lat) <= 90 && math.Abs(p.Lon) <= 180
}

// Distance returns the great-circle distance between a and b.
// Callers must pass valid points; out-of-range input is not checked.
func Distance(a, b Point, unit Unit) float64 {
	d := haversine(a, b)
	if unit == Miles {
		d /= kmPerMile
	}
	return d
}

// DistanceKm is Distance in kilometers.
func DistanceKm(a, b Point) float64 {
	return haversine(a, b)
}

func haversine(a, b Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*sinLon*sinLon
	// rounding can push h past 1 for near-antipodal points
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
