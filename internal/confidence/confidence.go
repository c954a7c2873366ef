// Package confidence scores report clusters with an additive point model.
//
// Every point in a score is attributable to a named bonus in the Breakdown,
// and the Explanation is derived from the Breakdown alone, so a decision can
// always be audited after the fact.
package confidence

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/couchcryptid/floodwatch-service/internal/cluster"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Weights are the policy constants of the point model.
type Weights struct {
	TextReport         int // per report
	PhotoAttached      int // per report carrying a photo
	PhotoVerified      int // per photo verified as showing flooding
	Recency            int // once, if any report is within RecencyWindow
	Rainfall           int // once, if it is raining
	MultipleReports    int // once, if the cluster has at least MultipleReportsMin reports
	SensorConfirmation int // once, if a critical sensor is near the centroid

	RecencyWindow      time.Duration
	MultipleReportsMin int
	SensorBoxDegrees   float64 // half-width of the lat/lng box around the centroid
}

// DefaultWeights returns the compatibility defaults.
func DefaultWeights() Weights {
	return Weights{
		TextReport:         1,
		PhotoAttached:      1,
		PhotoVerified:      1,
		Recency:            1,
		Rainfall:           1,
		MultipleReports:    2,
		SensorConfirmation: 3,
		RecencyWindow:      10 * time.Minute,
		MultipleReportsMin: 2,
		SensorBoxDegrees:   0.005,
	}
}

// Breakdown records the points each bonus contributed and the evidence behind it.
type Breakdown struct {
	TextReports          int `json:"text_reports"`
	PhotosAttached       int `json:"photos_attached"`
	PhotosVerified       int `json:"photos_verified"`
	RecencyBonus         int `json:"recency_bonus"`
	RainfallBonus        int `json:"rainfall_bonus"`
	MultipleReportsBonus int `json:"multiple_reports_bonus"`
	SensorBonus          int `json:"sensor_bonus"`

	ReportCount    int     `json:"report_count"`
	PhotoCount     int     `json:"photo_count"`
	VerifiedCount  int     `json:"verified_count"`
	RecentReportID string  `json:"recent_report_id,omitempty"`
	RainfallMm     float64 `json:"rainfall_mm"`
	SensorID       string  `json:"sensor_id,omitempty"`
}

// Total sums the bonus points.
func (b Breakdown) Total() int {
	return b.TextReports + b.PhotosAttached + b.PhotosVerified + b.RecencyBonus +
		b.RainfallBonus + b.MultipleReportsBonus + b.SensorBonus
}

// Score is the result of scoring one cluster.
type Score struct {
	Total       int       `json:"total"`
	Breakdown   Breakdown `json:"breakdown"`
	Explanation string    `json:"explanation"`
}

// Scorer applies Weights to clusters.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score rates a cluster given the current weather and sensor list. now anchors the recency bonus.
func (s *Scorer) Score(group []domain.Report, weather domain.WeatherSnapshot, sensors []domain.SensorNode, now time.Time) Score {
	w := s.weights
	b := Breakdown{
		ReportCount: len(group),
		RainfallMm:  weather.RainfallMm,
	}

	for _, r := range group {
		if r.HasPhoto() {
			b.PhotoCount++
		}
		if r.PhotoShowsFlood() {
			b.VerifiedCount++
		}
		if b.RecentReportID == "" && now.Sub(r.Timestamp) <= w.RecencyWindow {
			b.RecentReportID = r.ID
		}
	}

	b.TextReports = b.ReportCount * w.TextReport
	b.PhotosAttached = b.PhotoCount * w.PhotoAttached
	b.PhotosVerified = b.VerifiedCount * w.PhotoVerified
	if b.RecentReportID != "" {
		b.RecencyBonus = w.Recency
	}
	if weather.IsRaining {
		b.RainfallBonus = w.Rainfall
	}
	if b.ReportCount >= w.MultipleReportsMin {
		b.MultipleReportsBonus = w.MultipleReports
	}
	if len(group) > 0 {
		if id, ok := criticalSensorNear(cluster.Centroid(group), sensors, w.SensorBoxDegrees); ok {
			b.SensorID = id
			b.SensorBonus = w.SensorConfirmation
		}
	}

	return Score{
		Total:       b.Total(),
		Breakdown:   b,
		Explanation: Explain(b),
	}
}

// criticalSensorNear returns the first critical sensor inside the box around center.
func criticalSensorNear(center domain.Coordinates, sensors []domain.SensorNode, box float64) (string, bool) {
	for _, sn := range sensors {
		if sn.Status != domain.SensorCritical {
			continue
		}
		if math.Abs(sn.Location.Lat-center.Lat) <= box && math.Abs(sn.Location.Lng-center.Lng) <= box {
			return sn.ID, true
		}
	}
	return "", false
}

// Explain renders the fired bonuses in a fixed order: report count, sensor
// confirmation, photo count, AI verification, rainfall, recency.
func Explain(b Breakdown) string {
	parts := []string{plural(b.ReportCount, "report")}
	if b.SensorBonus > 0 {
		parts = append(parts, fmt.Sprintf("critical sensor %s nearby", b.SensorID))
	}
	if b.PhotosAttached > 0 {
		parts = append(parts, plural(b.PhotoCount, "photo"))
	}
	if b.PhotosVerified > 0 {
		parts = append(parts, fmt.Sprintf("%d AI-verified", b.VerifiedCount))
	}
	if b.RainfallBonus > 0 {
		parts = append(parts, fmt.Sprintf("raining (%.1fmm)", b.RainfallMm))
	}
	if b.RecencyBonus > 0 {
		parts = append(parts, fmt.Sprintf("recent report %s", b.RecentReportID))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
