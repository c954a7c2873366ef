// Package postgres archives alert snapshots for auditing.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS flood_alerts (
    id                TEXT PRIMARY KEY,
    type              TEXT NOT NULL,
    severity          TEXT NOT NULL,
    lat               DOUBLE PRECISION NOT NULL,
    lng               DOUBLE PRECISION NOT NULL,
    area_name         TEXT NOT NULL,
    radius_m          DOUBLE PRECISION NOT NULL,
    confidence_score  INTEGER NOT NULL,
    explanation       TEXT NOT NULL,
    report_count      INTEGER NOT NULL,
    report_ids        TEXT[] NOT NULL,
    triggered_at      TIMESTAMPTZ NOT NULL,
    expires_at        TIMESTAMPTZ NOT NULL,
    notified_users    INTEGER NOT NULL,
    is_active         BOOLEAN NOT NULL,
    road_state        TEXT NOT NULL,
    resolved_count    INTEGER NOT NULL,
    confirmed_count   INTEGER NOT NULL,
    monitoring_since  TIMESTAMPTZ,
    last_confirmed_at TIMESTAMPTZ,
    resolved_at       TIMESTAMPTZ,
    version           BIGINT NOT NULL DEFAULT 0,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE flood_alerts ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS flood_alerts_area_idx ON flood_alerts (area_name, triggered_at DESC);`

const upsertAlert = `
INSERT INTO flood_alerts (
    id, type, severity, lat, lng, area_name, radius_m, confidence_score,
    explanation, report_count, report_ids, triggered_at, expires_at,
    notified_users, is_active, road_state, resolved_count, confirmed_count,
    monitoring_since, last_confirmed_at, resolved_at, version
) VALUES (
    @id, @type, @severity, @lat, @lng, @area_name, @radius_m, @confidence_score,
    @explanation, @report_count, @report_ids, @triggered_at, @expires_at,
    @notified_users, @is_active, @road_state, @resolved_count, @confirmed_count,
    @monitoring_since, @last_confirmed_at, @resolved_at, @version
)
ON CONFLICT (id) DO UPDATE SET
    severity          = EXCLUDED.severity,
    confidence_score  = EXCLUDED.confidence_score,
    explanation       = EXCLUDED.explanation,
    report_count      = EXCLUDED.report_count,
    report_ids        = EXCLUDED.report_ids,
    expires_at        = EXCLUDED.expires_at,
    notified_users    = EXCLUDED.notified_users,
    is_active         = EXCLUDED.is_active,
    road_state        = EXCLUDED.road_state,
    resolved_count    = EXCLUDED.resolved_count,
    confirmed_count   = EXCLUDED.confirmed_count,
    monitoring_since  = EXCLUDED.monitoring_since,
    last_confirmed_at = EXCLUDED.last_confirmed_at,
    resolved_at       = EXCLUDED.resolved_at,
    version           = EXCLUDED.version,
    updated_at        = now()
WHERE flood_alerts.version <= EXCLUDED.version`

// Archive upserts alert snapshots into the flood_alerts table.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Archive{pool: pool}, nil
}

// EnsureSchema creates the archive table if it does not exist.
func (a *Archive) EnsureSchema(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create flood_alerts schema: %w", err)
	}
	return nil
}

// SaveAlert inserts or refreshes the archived snapshot of an alert. A snapshot
// older than the archived version is ignored.
func (a *Archive) SaveAlert(ctx context.Context, alert domain.Alert) error {
	if _, err := a.pool.Exec(ctx, upsertAlert, alertArgs(alert)); err != nil {
		return fmt.Errorf("archive alert %s: %w", alert.ID, err)
	}
	return nil
}

// CheckReadiness pings the database.
func (a *Archive) CheckReadiness(ctx context.Context) error {
	return a.pool.Ping(ctx)
}

func (a *Archive) Close() {
	a.pool.Close()
}

func alertArgs(a domain.Alert) pgx.NamedArgs {
	reportIDs := a.ReportIDs
	if reportIDs == nil {
		reportIDs = []string{}
	}
	return pgx.NamedArgs{
		"id":                a.ID,
		"type":              string(a.Type),
		"severity":          a.Severity.String(),
		"lat":               a.Location.Lat,
		"lng":               a.Location.Lng,
		"area_name":         a.AreaName,
		"radius_m":          a.RadiusMeters,
		"confidence_score":  a.ConfidenceScore,
		"explanation":       a.Explanation,
		"report_count":      a.ReportCount,
		"report_ids":        reportIDs,
		"triggered_at":      a.TriggeredAt,
		"expires_at":        a.ExpiresAt,
		"notified_users":    a.NotifiedUsers,
		"is_active":         a.IsActive,
		"road_state":        a.RoadState.String(),
		"resolved_count":    a.ResolvedCount,
		"confirmed_count":   a.ConfirmedCount,
		"monitoring_since":  a.MonitoringSince,
		"last_confirmed_at": a.LastConfirmedAt,
		"resolved_at":       a.ResolvedAt,
		"version":           a.Version,
	}
}
