// Package cluster groups reports by spatial proximity.
//
// Grouping is greedy and seed-based: reports are visited in input order, each
// unassigned report seeds a new group, and every later unassigned report within
// the radius of that seed joins it. Distance is always measured to the seed,
// never to a running centroid, so the result is order-dependent and is not a
// transitive closure. At city-block radii the difference from connected
// components is rare, and keeping it preserves which alerts get created.
package cluster

import (
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/geo"
)

// DefaultRadiusMeters is the proximity radius used when callers pass zero.
const DefaultRadiusMeters = 500.0

// Cluster groups reports within radiusMeters of each group's seed report.
// Output order follows seed order; member order follows input order.
func Cluster(reports []domain.Report, radiusMeters float64) [][]domain.Report {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}

	assigned := make([]bool, len(reports))
	var groups [][]domain.Report

	for i := range reports {
		if assigned[i] {
			continue
		}
		seed := reports[i]
		assigned[i] = true
		group := []domain.Report{seed}

		for j := i + 1; j < len(reports); j++ {
			if assigned[j] {
				continue
			}
			if geo.IsWithinRadius(seed.Location, reports[j].Location, radiusMeters) {
				group = append(group, reports[j])
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// Locations returns the coordinates of every report in a cluster.
func Locations(group []domain.Report) []domain.Coordinates {
	out := make([]domain.Coordinates, len(group))
	for i, r := range group {
		out[i] = r.Location
	}
	return out
}

// Centroid returns the mean location of a cluster.
func Centroid(group []domain.Report) domain.Coordinates {
	return geo.Centroid(Locations(group))
}

// IDs returns the report IDs of a cluster in member order.
func IDs(group []domain.Report) []string {
	out := make([]string, len(group))
	for i, r := range group {
		out[i] = r.ID
	}
	return out
}

// DominantType returns the most frequent report type, breaking ties by first appearance.
func DominantType(group []domain.Report) domain.ReportType {
	counts := make(map[domain.ReportType]int, 3)
	var best domain.ReportType
	for _, r := range group {
		counts[r.Type]++
		if best == "" || counts[r.Type] > counts[best] {
			best = r.Type
		}
	}
	return best
}
