// Package area resolves cluster centroids to human-readable area names.
//
// Resolution never fails because the area name is the alert de-duplication
// key. The geocoder is tried first; when it errors or returns nothing, the
// nearest configured area is used, prefixed with "Near" if it is farther than
// the match radius. With no configured areas the rounded coordinates are used.
package area

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/geo"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
)

// DefaultMatchRadiusMeters is how close a known area must be to be used by name alone.
const DefaultMatchRadiusMeters = 1500.0

// KnownArea is a named reference point for fallback resolution.
type KnownArea struct {
	Name     string             `json:"name"`
	Location domain.Coordinates `json:"location"`
}

// Resolver implements domain.AreaResolver.
type Resolver struct {
	geocoder    domain.Geocoder
	known       []KnownArea
	matchRadius float64
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewResolver creates a Resolver. Pass a nil geocoder to rely on known areas only.
func NewResolver(geocoder domain.Geocoder, known []KnownArea, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		geocoder:    geocoder,
		known:       known,
		matchRadius: DefaultMatchRadiusMeters,
		logger:      logger,
		metrics:     metrics,
	}
}

// ResolveArea returns an area name for the given point.
func (r *Resolver) ResolveArea(ctx context.Context, at domain.Coordinates) string {
	if r.geocoder != nil {
		result, err := r.geocoder.ReverseGeocode(ctx, at.Lat, at.Lng)
		switch {
		case err != nil:
			r.logger.Warn("reverse geocoding failed, using fallback area",
				"lat", at.Lat,
				"lng", at.Lng,
				"error", err,
			)
			r.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		case strings.TrimSpace(result.PlaceName) != "":
			r.metrics.GeocodeRequests.WithLabelValues("success").Inc()
			return strings.TrimSpace(result.PlaceName)
		default:
			r.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		}
	}
	r.metrics.GeocodeRequests.WithLabelValues("fallback").Inc()
	return r.Fallback(at)
}

// Fallback resolves a name from the known areas only.
func (r *Resolver) Fallback(at domain.Coordinates) string {
	nearest, dist := r.nearest(at)
	if nearest == nil {
		return fmt.Sprintf("Near %.3f,%.3f", at.Lat, at.Lng)
	}
	if dist <= r.matchRadius {
		return nearest.Name
	}
	return "Near " + nearest.Name
}

func (r *Resolver) nearest(at domain.Coordinates) (*KnownArea, float64) {
	var best *KnownArea
	bestDist := math.Inf(1)
	for i := range r.known {
		d := geo.HaversineDistance(at, r.known[i].Location)
		if d < bestDist {
			best, bestDist = &r.known[i], d
		}
	}
	return best, bestDist
}

// LoadKnownAreas reads a JSON array of known areas from path.
func LoadKnownAreas(path string) ([]KnownArea, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read known areas: %w", err)
	}
	var areas []KnownArea
	if err := json.Unmarshal(data, &areas); err != nil {
		return nil, fmt.Errorf("decode known areas: %w", err)
	}
	for i, a := range areas {
		if strings.TrimSpace(a.Name) == "" || !a.Location.Valid() {
			return nil, fmt.Errorf("known area %d: name and valid location are required", i)
		}
	}
	return areas, nil
}
