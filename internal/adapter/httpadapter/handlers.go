package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
	"github.com/couchcryptid/floodwatch-service/internal/routing"
)

// AlertService is the engine surface the API drives.
type AlertService interface {
	Get(alertID string) (domain.Alert, bool)
	All() []domain.Alert
	Active() []domain.Alert
	Vote(ctx context.Context, alertID, userID string, vote domain.Vote) (domain.Alert, bool)
	Resolve(ctx context.Context, alertID string) (domain.Alert, bool)
	RespondFollowUp(ctx context.Context, alertID string, stillOngoing bool) (domain.Alert, bool)
}

// ReportSink accepts submitted reports.
type ReportSink interface {
	Ingest(ctx context.Context, reports []domain.Report) (engine.PassResult, error)
}

// API holds the handlers for /api/v1.
type API struct {
	alerts  AlertService
	reports ReportSink
	sensors domain.SensorOracle
	planner routing.RoutePlanner
	status  Checks
	clock   clockwork.Clock
	logger  *slog.Logger
	newID   func() string
}

// APIOption customizes an API.
type APIOption func(*API)

// WithSensors exposes the sensor list.
func WithSensors(s domain.SensorOracle) APIOption { return func(a *API) { a.sensors = s } }

// WithPlanner replaces the direct route planner.
func WithPlanner(p routing.RoutePlanner) APIOption { return func(a *API) { a.planner = p } }

// WithStatusChecks adds probes reported by /api/v1/status.
func WithStatusChecks(cs ...Check) APIOption {
	return func(a *API) { a.status = append(a.status, cs...) }
}

// WithClock sets the time used for reports submitted without a timestamp.
func WithClock(c clockwork.Clock) APIOption { return func(a *API) { a.clock = c } }

// WithIDGenerator replaces the UUID report id generator.
func WithIDGenerator(f func() string) APIOption { return func(a *API) { a.newID = f } }

// NewAPI creates the API handlers.
func NewAPI(alerts AlertService, reports ReportSink, logger *slog.Logger, opts ...APIOption) *API {
	a := &API{
		alerts:  alerts,
		reports: reports,
		planner: routing.DirectPlanner{},
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type reportRequest struct {
	ID          string             `json:"id"`
	Type        string             `json:"type" binding:"required"`
	Location    domain.Coordinates `json:"location"`
	AreaName    string             `json:"area_name"`
	Description string             `json:"description"`
	PhotoURL    string             `json:"photo_url"`
	Timestamp   *time.Time         `json:"timestamp"`
	SubmitterID string             `json:"submitter_id" binding:"required"`
}

// CreateReport accepts a report and runs an engine pass.
func (a *API) CreateReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	r := domain.Report{
		ID:          strings.TrimSpace(req.ID),
		Location:    req.Location,
		AreaName:    strings.TrimSpace(req.AreaName),
		Description: strings.TrimSpace(req.Description),
		PhotoURL:    strings.TrimSpace(req.PhotoURL),
		Timestamp:   a.clock.Now(),
		SubmitterID: strings.TrimSpace(req.SubmitterID),
		IsActive:    true,
	}
	if r.ID == "" {
		r.ID = a.newID()
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		r.Timestamp = *req.Timestamp
	}
	if err := domain.ValidateReport(&r, req.Type); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := a.reports.Ingest(c.Request.Context(), []domain.Report{r})
	if err != nil {
		a.logger.Error("ingest report failed", "report_id", r.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest report"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"report":    r,
		"created":   res.Created,
		"updated":   res.Updated,
		"decisions": res.Decisions,
	})
}

// ListAlerts returns active alerts, or every alert with ?all=true.
func (a *API) ListAlerts(c *gin.Context) {
	alerts := a.alerts.Active()
	if c.Query("all") == "true" {
		alerts = a.alerts.All()
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

// GetAlert returns one alert.
func (a *API) GetAlert(c *gin.Context) {
	alert, ok := a.alerts.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

type voteRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Vote   string `json:"vote" binding:"required"`
}

// CastVote records a community vote.
func (a *API) CastVote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	vote, err := domain.ParseVote(req.Vote)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	a.respond(c, id, func(ctx context.Context) (domain.Alert, bool) {
		return a.alerts.Vote(ctx, id, req.UserID, vote)
	})
}

type followUpRequest struct {
	StillOngoing *bool `json:"still_ongoing" binding:"required"`
}

// RespondFollowUp applies a "still ongoing?" answer.
func (a *API) RespondFollowUp(c *gin.Context) {
	var req followUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := c.Param("id")
	a.respond(c, id, func(ctx context.Context) (domain.Alert, bool) {
		return a.alerts.RespondFollowUp(ctx, id, *req.StillOngoing)
	})
}

// ResolveAlert deactivates an alert immediately.
func (a *API) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	a.respond(c, id, func(ctx context.Context) (domain.Alert, bool) {
		return a.alerts.Resolve(ctx, id)
	})
}

// respond maps a lifecycle refusal to 404 for unknown alerts and 409 for
// inactive ones.
func (a *API) respond(c *gin.Context, id string, op func(ctx context.Context) (domain.Alert, bool)) {
	alert, ok := op(c.Request.Context())
	if ok {
		c.JSON(http.StatusOK, alert)
		return
	}
	existing, found := a.alerts.Get(id)
	switch {
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case !existing.IsActive:
		c.JSON(http.StatusConflict, gin.H{"error": "alert is no longer active"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "request rejected"})
	}
}

// Avoidance returns the active alert circles as a GeoJSON FeatureCollection.
func (a *API) Avoidance(c *gin.Context) {
	c.JSON(http.StatusOK, routing.FeatureCollection(a.alerts.Active()))
}

type routeRequest struct {
	Origin      domain.Coordinates `json:"origin"`
	Destination domain.Coordinates `json:"destination"`
}

// PlanRoute finds a path that avoids every active alert.
func (a *API) PlanRoute(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !req.Origin.Valid() || !req.Destination.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "origin and destination must be valid coordinates"})
		return
	}

	path, err := a.planner.Route(c.Request.Context(), req.Origin, req.Destination,
		routing.AvoidancePolygons(a.alerts.Active()))
	if errors.Is(err, routing.ErrRouteBlocked) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		a.logger.Warn("route planning failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "route planning failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// ListSensors returns the registered sensors.
func (a *API) ListSensors(c *gin.Context) {
	sensors := []domain.SensorNode{}
	if a.sensors != nil {
		sensors = append(sensors, a.sensors.Sensors()...)
	}
	c.JSON(http.StatusOK, sensors)
}

// Status summarizes active alerts and component probes.
func (a *API) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{
		"active_alerts": len(a.alerts.Active()),
		"checks":        a.status.Report(ctx),
	})
}
