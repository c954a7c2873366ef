package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportStalenessWindow bounds how far back reports are considered for clustering.
const ReportStalenessWindow = 2 * time.Hour

// ReportType classifies a citizen observation.
type ReportType string

const (
	ReportFlood         ReportType = "flood"
	ReportWaterlogging  ReportType = "waterlogging"
	ReportDrainOverflow ReportType = "drain_overflow"
)

// ParseReportType normalizes a report type, returning false for unknown values.
func ParseReportType(s string) (ReportType, bool) {
	switch t := ReportType(strings.ToLower(strings.TrimSpace(s))); t {
	case ReportFlood, ReportWaterlogging, ReportDrainOverflow:
		return t, true
	default:
		return "", false
	}
}

// Report is a citizen- or sensor-submitted flooding observation.
type Report struct {
	ID              string      `json:"id"`
	Type            ReportType  `json:"type"`
	Location        Coordinates `json:"location"`
	AreaName        string      `json:"area_name,omitempty"`
	Description     string      `json:"description,omitempty"`
	PhotoURL        string      `json:"photo_url,omitempty"`
	PhotoVerified   *bool       `json:"photo_verified,omitempty"`
	PhotoConfidence *float64    `json:"photo_confidence,omitempty"`
	Timestamp       time.Time   `json:"timestamp"`
	SubmitterID     string      `json:"submitter_id"`
	IsActive        bool        `json:"is_active"`
}

// HasPhoto reports whether a photo was attached.
func (r Report) HasPhoto() bool { return r.PhotoURL != "" }

// PhotoShowsFlood reports whether an attached photo was verified as showing flooding.
func (r Report) PhotoShowsFlood() bool {
	return r.HasPhoto() && r.PhotoVerified != nil && *r.PhotoVerified
}

// NeedsPhotoVerification reports whether a photo is attached but has no verdict yet.
func (r Report) NeedsPhotoVerification() bool {
	return r.HasPhoto() && r.PhotoVerified == nil
}

// RawEvent represents an unprocessed message from the reports topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

var (
	ErrMissingReportID  = errors.New("report id is required")
	ErrMissingSubmitter = errors.New("submitter id is required")
	ErrInvalidLocation  = errors.New("report location is out of range")
)

// ParseReport decodes and validates a report message. Reports arrive active;
// a missing timestamp falls back to the message time, then to now.
func ParseReport(raw RawEvent) (Report, error) {
	var payload struct {
		ID              string      `json:"id"`
		Type            string      `json:"type"`
		Location        Coordinates `json:"location"`
		AreaName        string      `json:"area_name"`
		Description     string      `json:"description"`
		PhotoURL        string      `json:"photo_url"`
		PhotoVerified   *bool       `json:"photo_verified"`
		PhotoConfidence *float64    `json:"photo_confidence"`
		Timestamp       time.Time   `json:"timestamp"`
		SubmitterID     string      `json:"submitter_id"`
	}
	if err := json.Unmarshal(raw.Value, &payload); err != nil {
		return Report{}, fmt.Errorf("parse report: %w", err)
	}

	report := Report{
		ID:              strings.TrimSpace(payload.ID),
		Location:        payload.Location,
		AreaName:        strings.TrimSpace(payload.AreaName),
		Description:     strings.TrimSpace(payload.Description),
		PhotoURL:        strings.TrimSpace(payload.PhotoURL),
		PhotoVerified:   payload.PhotoVerified,
		PhotoConfidence: payload.PhotoConfidence,
		Timestamp:       payload.Timestamp,
		SubmitterID:     strings.TrimSpace(payload.SubmitterID),
		IsActive:        true,
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = raw.Timestamp
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = clock.Now()
	}
	if err := ValidateReport(&report, payload.Type); err != nil {
		return Report{}, err
	}
	return report, nil
}

// ValidateReport checks required fields and normalizes the report type in place.
func ValidateReport(r *Report, rawType string) error {
	t, ok := ParseReportType(rawType)
	if !ok {
		return fmt.Errorf("parse report %q: unknown type %q", r.ID, rawType)
	}
	r.Type = t
	if r.ID == "" {
		return ErrMissingReportID
	}
	if r.SubmitterID == "" {
		return fmt.Errorf("report %q: %w", r.ID, ErrMissingSubmitter)
	}
	if !r.Location.Valid() || (r.Location.Lat == 0 && r.Location.Lng == 0) {
		return fmt.Errorf("report %q: %w", r.ID, ErrInvalidLocation)
	}
	if r.PhotoConfidence != nil {
		c := min(max(*r.PhotoConfidence, 0), 1)
		r.PhotoConfidence = &c
	}
	return nil
}
