package alert

import (
	"fmt"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// ClassifySeverity maps a scored cluster to a severity tier:
//   - critical: confidence >= 6 or reportCount >= 4
//   - high:     confidence >= 4 or reportCount >= 3
//   - medium:   otherwise
func ClassifySeverity(confidence, reportCount int) domain.Severity {
	switch {
	case confidence >= 6 || reportCount >= 4:
		return domain.SeverityCritical
	case confidence >= 4 || reportCount >= 3:
		return domain.SeverityHigh
	default:
		return domain.SeverityMedium
	}
}

// InitialRoadState is flooded for high and critical alerts, monitoring for medium.
func InitialRoadState(s domain.Severity) domain.RoadState {
	switch s {
	case domain.SeverityCritical, domain.SeverityHigh:
		return domain.RoadFlooded
	case domain.SeverityMedium:
		return domain.RoadMonitoring
	default:
		// Unknown tiers are treated as hazardous.
		return domain.RoadFlooded
	}
}

// SuggestedActions returns the advice list for an alert, highest priority first.
func SuggestedActions(s domain.Severity, area string) []string {
	var actions []string
	switch s {
	case domain.SeverityCritical:
		actions = append(actions,
			fmt.Sprintf("Avoid %s until the water recedes", area),
			"Use an alternate route",
			"Pedestrians and two-wheelers should not attempt to cross flooded stretches",
		)
	case domain.SeverityHigh:
		actions = append(actions,
			"Pedestrians and two-wheelers should not attempt to cross flooded stretches",
		)
	case domain.SeverityMedium:
	}
	return append(actions,
		"Check the water level before crossing",
		fmt.Sprintf("Report updates from %s to help others", area),
	)
}
