// Package routing builds avoidance areas from active alerts for route planners.
package routing

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/geo"
)

// CircleVertices is the number of vertices used to approximate an alert circle.
const CircleVertices = 24

// ErrRouteBlocked is returned when no path avoids every flooded area.
var ErrRouteBlocked = errors.New("route crosses an active flood alert")

// RoutePlanner finds a path between two points that stays out of the given polygons.
type RoutePlanner interface {
	Route(ctx context.Context, origin, dest domain.Coordinates, avoid []orb.Polygon) ([]domain.Coordinates, error)
}

// AvoidancePolygon approximates an alert's circle as a closed ring.
func AvoidancePolygon(a domain.Alert) orb.Polygon {
	ring := make(orb.Ring, 0, CircleVertices+1)
	step := 360.0 / CircleVertices
	for i := 0; i < CircleVertices; i++ {
		p := geo.OffsetPoint(a.Location, a.RadiusMeters, float64(i)*step)
		ring = append(ring, geo.ToPoint(p))
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// AvoidancePolygons returns one polygon per active alert.
func AvoidancePolygons(alerts []domain.Alert) []orb.Polygon {
	var out []orb.Polygon
	for _, a := range alerts {
		if a.IsActive {
			out = append(out, AvoidancePolygon(a))
		}
	}
	return out
}

// FeatureCollection renders the avoidance polygons of active alerts as GeoJSON.
func FeatureCollection(alerts []domain.Alert) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, a := range alerts {
		if !a.IsActive {
			continue
		}
		f := geojson.NewFeature(AvoidancePolygon(a))
		f.ID = a.ID
		f.Properties["alert_id"] = a.ID
		f.Properties["area_name"] = a.AreaName
		f.Properties["severity"] = a.Severity.String()
		f.Properties["road_state"] = a.RoadState.String()
		f.Properties["radius_m"] = a.RadiusMeters
		fc.Append(f)
	}
	return fc
}

// DirectPlanner proposes the straight segment between two points and rejects
// it if any sample along it falls inside an avoidance polygon. It stands in
// where no external routing service is configured.
type DirectPlanner struct {
	// Samples is the number of points checked along the segment.
	Samples int
}

// Route implements RoutePlanner.
func (p DirectPlanner) Route(_ context.Context, origin, dest domain.Coordinates, avoid []orb.Polygon) ([]domain.Coordinates, error) {
	samples := p.Samples
	if samples < 2 {
		samples = 64
	}
	from, to := geo.ToPoint(origin), geo.ToPoint(dest)
	for i := 0; i <= samples; i++ {
		t := float64(i) / float64(samples)
		pt := orb.Point{from[0] + (to[0]-from[0])*t, from[1] + (to[1]-from[1])*t}
		for _, poly := range avoid {
			if planar.PolygonContains(poly, pt) {
				return nil, ErrRouteBlocked
			}
		}
	}
	return []domain.Coordinates{origin, dest}, nil
}
