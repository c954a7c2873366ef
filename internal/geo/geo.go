// Package geo provides distance, bearing and centroid helpers over WGS-84
// coordinates. All functions are pure.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// EarthRadiusMeters is the mean Earth radius used by HaversineDistance.
const EarthRadiusMeters = 6_371_000.0

// HaversineDistance returns the great-circle distance between a and b in meters.
func HaversineDistance(a, b domain.Coordinates) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// IsWithinRadius reports whether point lies within radiusMeters of center (inclusive).
func IsWithinRadius(center, point domain.Coordinates, radiusMeters float64) bool {
	return HaversineDistance(center, point) <= radiusMeters
}

// Centroid returns the arithmetic mean of the points' latitudes and longitudes.
// This is a city-scale approximation: it is not geodesically correct for
// large spans or sets straddling the antimeridian. Empty input yields the zero value.
func Centroid(points []domain.Coordinates) domain.Coordinates {
	if len(points) == 0 {
		return domain.Coordinates{}
	}
	var sumLat, sumLng float64
	for _, p := range points {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(points))
	return domain.Coordinates{Lat: sumLat / n, Lng: sumLng / n}
}

// Bearing returns the initial bearing from a to b in degrees, normalized to [0, 360).
func Bearing(a, b domain.Coordinates) float64 {
	deg := orbgeo.Bearing(ToPoint(a), ToPoint(b))
	return math.Mod(deg+360, 360)
}

// OffsetPoint returns the point distanceMeters away from origin along bearingDegrees.
func OffsetPoint(origin domain.Coordinates, distanceMeters, bearingDegrees float64) domain.Coordinates {
	return FromPoint(orbgeo.PointAtBearingAndDistance(ToPoint(origin), bearingDegrees, distanceMeters))
}

// ToPoint converts coordinates to an orb point (lng, lat order).
func ToPoint(c domain.Coordinates) orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// FromPoint converts an orb point back to coordinates.
func FromPoint(p orb.Point) domain.Coordinates {
	return domain.Coordinates{Lat: p.Lat(), Lng: p.Lon()}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
