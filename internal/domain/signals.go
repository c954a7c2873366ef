package domain

import (
	"fmt"
	"time"
)

// SensorStatus is set by an external prediction collaborator.
type SensorStatus string

const (
	SensorNormal   SensorStatus = "normal"
	SensorWarning  SensorStatus = "warning"
	SensorCritical SensorStatus = "critical"
	SensorOffline  SensorStatus = "offline"
)

// ParseSensorStatus validates a status string.
func ParseSensorStatus(s string) (SensorStatus, error) {
	switch st := SensorStatus(s); st {
	case SensorNormal, SensorWarning, SensorCritical, SensorOffline:
		return st, nil
	default:
		return "", fmt.Errorf("unknown sensor status %q", s)
	}
}

// SensorReading is the latest telemetry from a water-level sensor.
type SensorReading struct {
	WaterLevelCm      float64   `json:"water_level_cm"`
	RainfallMmPerHour float64   `json:"rainfall_mm_per_hour"`
	BatteryLevel      float64   `json:"battery_level"`
	Timestamp         time.Time `json:"timestamp"`
}

// SensorNode is a physical water-level sensor.
type SensorNode struct {
	ID          string         `json:"id"`
	Location    Coordinates    `json:"location"`
	AreaName    string         `json:"area_name"`
	Status      SensorStatus   `json:"status"`
	LastReading *SensorReading `json:"last_reading,omitempty"`
}

// WeatherSnapshot is the ambient weather at a point in time.
type WeatherSnapshot struct {
	IsRaining   bool      `json:"is_raining"`
	RainfallMm  float64   `json:"rainfall_mm"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	LastUpdated time.Time `json:"last_updated"`
	Fallback    bool      `json:"fallback,omitempty"`
}

// FallbackRainfallMm is the moderate rainfall assumed when weather is unavailable.
const FallbackRainfallMm = 10.0

// FallbackWeather is the conservative snapshot used when no provider answers:
// it assumes moderate rain so alerts are not suppressed by missing data.
func FallbackWeather(now time.Time) WeatherSnapshot {
	return WeatherSnapshot{
		IsRaining:   true,
		RainfallMm:  FallbackRainfallMm,
		LastUpdated: now,
		Fallback:    true,
	}
}
