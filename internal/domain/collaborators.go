package domain

import "context"

// WeatherProvider returns current weather. Implementations must not fail:
// when the upstream is unavailable they return FallbackWeather.
type WeatherProvider interface {
	Current(ctx context.Context, at Coordinates) WeatherSnapshot
}

// PhotoVerdict is the result of classifying a report photo.
type PhotoVerdict struct {
	IsFlood    bool
	Confidence float64 // 0.0–1.0
}

// PhotoVerifier classifies whether a photo shows flooding.
type PhotoVerifier interface {
	Verify(ctx context.Context, photoURL string) (PhotoVerdict, error)
}

// SensorOracle supplies the live sensor list for a processing pass.
type SensorOracle interface {
	Sensors() []SensorNode
}

// GeocodingResult contains place data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder converts coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// AreaResolver maps coordinates to an area name. It never fails; the area
// name is the alert de-duplication key.
type AreaResolver interface {
	ResolveArea(ctx context.Context, at Coordinates) string
}

// AudiencePurpose says why a broadcast is being sent.
type AudiencePurpose string

const (
	PurposeNewAlert AudiencePurpose = "new_alert"
	PurposeUpdate   AudiencePurpose = "update"
	PurposeFollowUp AudiencePurpose = "follow_up"
	PurposeResolved AudiencePurpose = "resolved"
)

// Audience describes who a broadcast targets.
type Audience struct {
	Purpose      AudiencePurpose
	AreaName     string
	Center       Coordinates
	RadiusMeters float64
}

// AudienceFor targets everyone within an alert's radius.
func AudienceFor(a Alert, purpose AudiencePurpose) Audience {
	return Audience{
		Purpose:      purpose,
		AreaName:     a.AreaName,
		Center:       a.Location,
		RadiusMeters: a.RadiusMeters,
	}
}

// BroadcastResult reports delivery counts for a broadcast.
type BroadcastResult struct {
	SentCount int
	Errors    []error
}

// Notifier delivers alert messages. Failures are reported in the result and
// never retried by the caller.
type Notifier interface {
	Broadcast(ctx context.Context, alert Alert, audience Audience) BroadcastResult
}
