// Package domain models citizen flood reports, ambient signals, and the
// area-wide alerts derived from them.
//
// # Reports
//
// A report is a single citizen observation of urban flooding. Accepted types:
//
//	flood           standing water on a road or open area
//	waterlogging    shallow pooling that slows traffic
//	drain_overflow  storm drain or sewer overflowing onto the street
//
// Reports are immutable once accepted except for IsActive, which flips to
// false when the alert they contributed to is resolved. Reports older than
// [ReportStalenessWindow] never take part in clustering.
//
// # Alerts
//
// An alert summarizes a cluster of reports around its centroid. It is keyed
// by area name: at most one active alert exists per area, and later passes
// update it in place. Severity is a closed enumeration (medium, high,
// critical) derived from the confidence score and report count.
//
// Road state tracks community consensus after an alert is raised:
//
//	flooded     hazardous, avoid
//	monitoring  residents report clearing, proceed with caution
//	normal      cleared; the alert is no longer active
//
// # Ambient Signals
//
// Weather snapshots and sensor nodes are read-only inputs supplied by
// collaborators each processing pass. A snapshot flagged Fallback was
// synthesized because the provider was unavailable; it assumes moderate rain
// so missing data biases toward alerting.
package domain
