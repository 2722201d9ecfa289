// Package geo provides great-circle distance math and radius bounds for
// proximity ranking.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusMiles is the mean Earth radius used by the haversine formula.
const EarthRadiusMiles = 3959.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineMiles returns the great-circle distance between two points in
// miles. Addresses can span city-scale distances, so curvature matters at
// the margin; a flat-earth approximation is not acceptable here.
func HaversineMiles(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMiles * c
}

// Round1 rounds a distance to one decimal place. All user-facing distances
// pass through here so cached and fresh results compare equal.
func Round1(miles float64) float64 {
	return math.Round(miles*10) / 10
}

// BoundsAround returns a bounding box covering radiusMiles around p.
// The longitude span widens with latitude; near the poles the box covers
// all longitudes.
func BoundsAround(p Point, radiusMiles float64) *geom.Bounds {
	dLat := radiusMiles / EarthRadiusMiles * 180 / math.Pi
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	dLng := 180.0
	if cosLat > 1e-9 {
		dLng = math.Min(180, dLat/cosLat)
	}
	return geom.NewBounds(geom.XY).SetCoords(
		geom.Coord{p.Lng - dLng, p.Lat - dLat},
		geom.Coord{p.Lng + dLng, p.Lat + dLat},
	)
}

// InBounds reports whether pt falls inside b.
func InBounds(b *geom.Bounds, pt Point) bool {
	return b.OverlapsPoint(geom.XY, geom.Coord{pt.Lng, pt.Lat})
}
