package domain

import (
	"fmt"
	"time"
)

// Severity is the closed set of alert severity tiers, ordered low to high.
type Severity int

const (
	SeverityMedium Severity = iota + 1
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// RoadState is the three-tier community consensus on a flooded area.
type RoadState int

const (
	RoadFlooded RoadState = iota + 1
	RoadMonitoring
	RoadNormal
)

func (r RoadState) String() string {
	switch r {
	case RoadFlooded:
		return "flooded"
	case RoadMonitoring:
		return "monitoring"
	case RoadNormal:
		return "normal"
	default:
		return fmt.Sprintf("road_state(%d)", int(r))
	}
}

// ParseRoadState is the inverse of RoadState.String.
func ParseRoadState(s string) (RoadState, error) {
	switch s {
	case "flooded":
		return RoadFlooded, nil
	case "monitoring":
		return RoadMonitoring, nil
	case "normal":
		return RoadNormal, nil
	default:
		return 0, fmt.Errorf("unknown road state %q", s)
	}
}

func (r RoadState) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RoadState) UnmarshalText(b []byte) error {
	v, err := ParseRoadState(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Vote is a community opinion on whether an alerted area is still flooded.
type Vote int

const (
	VoteConfirm Vote = iota + 1
	VoteResolved
)

func (v Vote) String() string {
	switch v {
	case VoteConfirm:
		return "confirm"
	case VoteResolved:
		return "resolved"
	default:
		return fmt.Sprintf("vote(%d)", int(v))
	}
}

// ParseVote is the inverse of Vote.String.
func ParseVote(s string) (Vote, error) {
	switch s {
	case "confirm":
		return VoteConfirm, nil
	case "resolved":
		return VoteResolved, nil
	default:
		return 0, fmt.Errorf("unknown vote %q", s)
	}
}

func (v Vote) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Vote) UnmarshalText(b []byte) error {
	p, err := ParseVote(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Alert is an area-wide flood warning derived from a cluster of reports.
type Alert struct {
	ID               string      `json:"id"`
	Type             ReportType  `json:"type"`
	Severity         Severity    `json:"severity"`
	Location         Coordinates `json:"location"`
	AreaName         string      `json:"area_name"`
	RadiusMeters     float64     `json:"radius_m"`
	ConfidenceScore  int         `json:"confidence_score"`
	Explanation      string      `json:"explanation"`
	ReportCount      int         `json:"report_count"`
	ReportIDs        []string    `json:"report_ids"`
	TriggeredAt      time.Time   `json:"triggered_at"`
	ExpiresAt        time.Time   `json:"expires_at"`
	NotifiedUsers    int         `json:"notified_users"`
	IsActive         bool        `json:"is_active"`
	RoadState        RoadState   `json:"road_state"`
	ResolvedCount    int         `json:"resolved_count"`
	ConfirmedCount   int         `json:"confirmed_count"`
	MonitoringSince  *time.Time  `json:"monitoring_since,omitempty"`
	LastConfirmedAt  *time.Time  `json:"last_confirmed_at,omitempty"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty"`
	SuggestedActions []string    `json:"suggested_actions"`
	// Version increases with every state change; archived snapshots never
	// replace a newer one.
	Version int64 `json:"version"`
}

// Age returns how long the alert has existed at now.
func (a Alert) Age(now time.Time) time.Duration {
	return now.Sub(a.TriggeredAt)
}

// Clone returns a deep copy so callers never share mutable state with the store.
func (a Alert) Clone() Alert {
	c := a
	c.ReportIDs = append([]string(nil), a.ReportIDs...)
	c.SuggestedActions = append([]string(nil), a.SuggestedActions...)
	c.MonitoringSince = cloneTime(a.MonitoringSince)
	c.LastConfirmedAt = cloneTime(a.LastConfirmedAt)
	c.ResolvedAt = cloneTime(a.ResolvedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
