// Package engine ties clustering, scoring and the alert lifecycle into a
// single serialized decision loop.
//
// A pass filters stale reports, clusters the rest, rejects clusters that are
// too small or too weakly evidenced, resolves an area name per surviving
// cluster and upserts one alert per area. Area resolution, notification
// delivery and archiving happen outside the engine lock; only alert state
// mutations run under it.
package engine

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/alert"
	"github.com/couchcryptid/floodwatch-service/internal/cluster"
	"github.com/couchcryptid/floodwatch-service/internal/confidence"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
	"github.com/couchcryptid/floodwatch-service/internal/scheduler"
)

// Config holds the admission gate thresholds.
type Config struct {
	ClusterRadiusMeters float64
	MinReportsForAlert  int
	ConfidenceThreshold int
	ReportStaleness     time.Duration
}

// DefaultConfig returns the standard admission thresholds.
func DefaultConfig() Config {
	return Config{
		ClusterRadiusMeters: cluster.DefaultRadiusMeters,
		MinReportsForAlert:  2,
		ConfidenceThreshold: 3,
		ReportStaleness:     domain.ReportStalenessWindow,
	}
}

// Archive persists alert snapshots.
type Archive interface {
	SaveAlert(ctx context.Context, a domain.Alert) error
}

// ReportDeactivator marks reports inactive once their alert is resolved.
type ReportDeactivator interface {
	Deactivate(ids []string) int
}

// Dependencies are the engine's collaborators. Resolver is required; the rest
// are optional and default to no-ops, a real clock and fallback weather.
type Dependencies struct {
	Resolver  domain.AreaResolver
	Weather   domain.WeatherProvider
	Notifier  domain.Notifier
	Archive   Archive
	Reports   ReportDeactivator
	Scheduler scheduler.Scheduler
	Clock     clockwork.Clock
}

// Engine serializes processing passes, votes and follow-up handling against
// one alert collection.
type Engine struct {
	mu        sync.Mutex
	cfg       Config
	lifecycle *alert.Lifecycle
	scorer    *confidence.Scorer
	deps      Dependencies
	logger    *slog.Logger
	metrics   *observability.Metrics
	followUps map[string]scheduler.CancelFunc
}

// New creates an Engine. The lifecycle should share deps.Clock.
func New(cfg Config, lifecycle *alert.Lifecycle, scorer *confidence.Scorer, deps Dependencies, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(deps.Clock)
	}
	if deps.Weather == nil {
		deps.Weather = fallbackWeather{clock: deps.Clock}
	}
	return &Engine{
		cfg:       cfg,
		lifecycle: lifecycle,
		scorer:    scorer,
		deps:      deps,
		logger:    logger,
		metrics:   metrics,
		followUps: make(map[string]scheduler.CancelFunc),
	}
}

type fallbackWeather struct{ clock clockwork.Clock }

func (f fallbackWeather) Current(context.Context, domain.Coordinates) domain.WeatherSnapshot {
	return domain.FallbackWeather(f.clock.Now())
}

// Weather returns current conditions at a point from the configured provider.
func (e *Engine) Weather(ctx context.Context, at domain.Coordinates) domain.WeatherSnapshot {
	return e.deps.Weather.Current(ctx, at)
}

// Verdict is the admission gate's ruling on one cluster.
type Verdict string

const (
	VerdictCreated       Verdict = "created"
	VerdictUpdated       Verdict = "updated"
	VerdictUnchanged     Verdict = "unchanged"
	VerdictTooFewReports Verdict = "too_few_reports"
	VerdictLowConfidence Verdict = "low_confidence"
)

// Decision traces how one cluster was handled in a pass.
type Decision struct {
	Verdict   Verdict            `json:"verdict"`
	ReportIDs []string           `json:"report_ids"`
	Centroid  domain.Coordinates `json:"centroid"`
	AreaName  string             `json:"area_name,omitempty"`
	Score     confidence.Score   `json:"score"`
	AlertID   string             `json:"alert_id,omitempty"`
}

// Rejected reports whether the cluster failed the admission gate.
func (d Decision) Rejected() bool {
	return d.Verdict == VerdictTooFewReports || d.Verdict == VerdictLowConfidence
}

// PassResult is the outcome of one processing pass.
type PassResult struct {
	Created   []domain.Alert
	Updated   []domain.Alert
	Rejected  []Decision
	Decisions []Decision
	Active    []domain.Alert
}

type admitted struct {
	index int
	typ   domain.ReportType
}

// ProcessReports runs one pass over reports with the given weather and
// sensor readings and returns the current active alert set. Collaborator
// failures degrade data quality but never abort the pass.
func (e *Engine) ProcessReports(ctx context.Context, reports []domain.Report, weather domain.WeatherSnapshot, sensors []domain.SensorNode) PassResult {
	start := time.Now()
	defer func() { e.metrics.PassDuration.Observe(time.Since(start).Seconds()) }()

	now := e.deps.Clock.Now()
	groups := cluster.Cluster(e.fresh(reports, now), e.cfg.ClusterRadiusMeters)
	decisions := make([]Decision, len(groups))
	var queue []admitted

	for i, group := range groups {
		e.metrics.ClustersEvaluated.Inc()
		d := Decision{ReportIDs: cluster.IDs(group), Centroid: cluster.Centroid(group)}
		if len(group) < e.cfg.MinReportsForAlert {
			d.Verdict = VerdictTooFewReports
			decisions[i] = d
			continue
		}
		d.Score = e.scorer.Score(group, weather, sensors, now)
		if d.Score.Total < e.cfg.ConfidenceThreshold {
			d.Verdict = VerdictLowConfidence
			decisions[i] = d
			continue
		}
		d.AreaName = e.deps.Resolver.ResolveArea(ctx, d.Centroid)
		decisions[i] = d
		queue = append(queue, admitted{index: i, typ: cluster.DominantType(group)})
	}

	var result PassResult
	createdAt := make(map[string]int)

	e.mu.Lock()
	for _, q := range queue {
		d := &decisions[q.index]
		a, outcome := e.lifecycle.Upsert(alert.Candidate{
			AreaName:    d.AreaName,
			Location:    d.Centroid,
			Type:        q.typ,
			Confidence:  d.Score.Total,
			Explanation: d.Score.Explanation,
			ReportIDs:   d.ReportIDs,
		})
		d.AlertID = a.ID
		switch outcome {
		case alert.Created:
			d.Verdict = VerdictCreated
			createdAt[a.ID] = len(result.Created)
			result.Created = append(result.Created, a)
			e.scheduleFollowUp(a.ID)
		case alert.Updated:
			d.Verdict = VerdictUpdated
			// A second cluster landing in an area created earlier this pass
			// folds into that creation.
			if idx, ok := createdAt[a.ID]; ok {
				result.Created[idx] = a
				continue
			}
			result.Updated = append(result.Updated, a)
		case alert.Unchanged:
			d.Verdict = VerdictUnchanged
		}
	}
	e.refreshActiveGauge()
	e.mu.Unlock()

	for _, d := range decisions {
		e.logDecision(d)
		if d.Rejected() {
			e.metrics.ClustersRejected.WithLabelValues(string(d.Verdict)).Inc()
			result.Rejected = append(result.Rejected, d)
		}
	}
	result.Decisions = decisions
	e.metrics.AlertsCreated.Add(float64(len(result.Created)))
	e.metrics.AlertsUpdated.Add(float64(len(result.Updated)))

	for i := range result.Created {
		result.Created[i] = e.publish(ctx, result.Created[i], domain.PurposeNewAlert)
	}
	for i := range result.Updated {
		result.Updated[i] = e.publish(ctx, result.Updated[i], domain.PurposeUpdate)
	}

	result.Active = e.Active()
	return result
}

func (e *Engine) fresh(reports []domain.Report, now time.Time) []domain.Report {
	cutoff := now.Add(-e.cfg.ReportStaleness)
	out := make([]domain.Report, 0, len(reports))
	for _, r := range reports {
		if r.IsActive && r.Timestamp.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) logDecision(d Decision) {
	e.logger.Debug("cluster decision",
		"verdict", d.Verdict,
		"report_count", len(d.ReportIDs),
		"confidence", d.Score.Total,
		"explanation", d.Score.Explanation,
		"area", d.AreaName,
		"alert_id", d.AlertID,
	)
}

// publish broadcasts an alert, records the audience size and archives the
// alert's current snapshot.
func (e *Engine) publish(ctx context.Context, a domain.Alert, purpose domain.AudiencePurpose) domain.Alert {
	sent := e.broadcast(ctx, a, purpose)
	e.mu.Lock()
	if sent > 0 {
		e.lifecycle.RecordNotified(a.ID, sent)
	}
	current, ok := e.lifecycle.Store().Get(a.ID)
	e.mu.Unlock()

	if !ok {
		e.archive(ctx, a)
		return a
	}
	a.NotifiedUsers = current.NotifiedUsers
	e.archive(ctx, current)
	return a
}

func (e *Engine) broadcast(ctx context.Context, a domain.Alert, purpose domain.AudiencePurpose) int {
	if e.deps.Notifier == nil {
		return 0
	}
	res := e.deps.Notifier.Broadcast(ctx, a, domain.AudienceFor(a, purpose))
	for _, err := range res.Errors {
		e.logger.Warn("notification delivery failed",
			"alert_id", a.ID,
			"purpose", purpose,
			"error", err,
		)
	}
	e.metrics.Notifications.WithLabelValues("sent").Add(float64(res.SentCount))
	e.metrics.Notifications.WithLabelValues("error").Add(float64(len(res.Errors)))
	return res.SentCount
}

func (e *Engine) archive(ctx context.Context, a domain.Alert) {
	if e.deps.Archive == nil {
		return
	}
	if err := e.deps.Archive.SaveAlert(ctx, a); err != nil {
		e.logger.Warn("archive alert failed", "alert_id", a.ID, "error", err)
		e.metrics.ArchiveErrors.Inc()
	}
}

// Vote records a community vote. Rainfall at the alert's location decides
// whether the vote moves the road state. Returns false for unknown or
// inactive alerts, empty user ids and unknown votes.
func (e *Engine) Vote(ctx context.Context, alertID, userID string, vote domain.Vote) (domain.Alert, bool) {
	snapshot, ok := e.Get(alertID)
	if !ok || !snapshot.IsActive {
		e.metrics.Votes.WithLabelValues(vote.String(), "false").Inc()
		return domain.Alert{}, false
	}
	weather := e.deps.Weather.Current(ctx, snapshot.Location)

	e.mu.Lock()
	a, ok := e.lifecycle.CastVote(alertID, userID, vote, weather)
	resolved := ok && !a.IsActive
	if resolved {
		e.afterResolve(a)
	}
	e.mu.Unlock()

	e.metrics.Votes.WithLabelValues(vote.String(), strconv.FormatBool(ok)).Inc()
	switch {
	case resolved:
		e.announceResolution(ctx, a, alert.ResolvedByVotes)
	case ok:
		e.archive(ctx, a)
	}
	return a, ok
}

// Resolve deactivates an alert immediately.
func (e *Engine) Resolve(ctx context.Context, alertID string) (domain.Alert, bool) {
	e.mu.Lock()
	a, ok := e.lifecycle.MarkResolved(alertID)
	if ok {
		e.afterResolve(a)
	}
	e.mu.Unlock()

	if ok {
		e.announceResolution(ctx, a, alert.ResolvedManually)
	}
	return a, ok
}

// RespondFollowUp applies a yes/no answer to the "still ongoing?" prompt.
func (e *Engine) RespondFollowUp(ctx context.Context, alertID string, stillOngoing bool) (domain.Alert, bool) {
	if !stillOngoing {
		return e.Resolve(ctx, alertID)
	}
	e.mu.Lock()
	a, ok := e.lifecycle.RespondFollowUp(alertID, true)
	e.mu.Unlock()

	if ok {
		e.archive(ctx, a)
	}
	return a, ok
}

// SweepExpired applies the lifecycle's expiry policy and returns the alerts it deactivated.
func (e *Engine) SweepExpired(ctx context.Context) []domain.Alert {
	e.mu.Lock()
	expired := e.lifecycle.SweepExpired()
	for _, a := range expired {
		e.afterResolve(a)
	}
	e.mu.Unlock()

	for _, a := range expired {
		e.announceResolution(ctx, a, alert.ResolvedByExpiry)
	}
	return expired
}

// afterResolve releases per-alert state. Caller holds e.mu.
func (e *Engine) afterResolve(a domain.Alert) {
	e.cancelFollowUp(a.ID)
	if e.deps.Reports != nil {
		e.deps.Reports.Deactivate(a.ReportIDs)
	}
	e.refreshActiveGauge()
}

func (e *Engine) announceResolution(ctx context.Context, a domain.Alert, path alert.ResolutionPath) {
	e.logger.Info("alert resolved",
		"alert_id", a.ID,
		"area", a.AreaName,
		"path", path,
		"resolved_votes", a.ResolvedCount,
		"confirmed_votes", a.ConfirmedCount,
	)
	e.metrics.AlertsResolved.WithLabelValues(string(path)).Inc()
	e.broadcast(ctx, a, domain.PurposeResolved)
	e.archive(ctx, a)
}

// scheduleFollowUp arms the one-shot "still ongoing?" prompt. Caller holds e.mu.
func (e *Engine) scheduleFollowUp(alertID string) {
	delay := e.lifecycle.Policy().FollowUpDelay
	e.followUps[alertID] = e.deps.Scheduler.ScheduleOnce(delay, func() {
		e.sendFollowUp(alertID)
	})
}

// cancelFollowUp disarms a pending prompt. Caller holds e.mu.
func (e *Engine) cancelFollowUp(alertID string) {
	if cancel, ok := e.followUps[alertID]; ok {
		cancel()
		delete(e.followUps, alertID)
	}
}

func (e *Engine) sendFollowUp(alertID string) {
	e.mu.Lock()
	delete(e.followUps, alertID)
	a, due := e.lifecycle.FollowUpDue(alertID)
	if due {
		e.lifecycle.RecordFollowUpSent(alertID)
	}
	e.mu.Unlock()

	if !due {
		e.logger.Debug("follow-up skipped", "alert_id", alertID)
		return
	}
	e.metrics.FollowUpsSent.Inc()
	e.logger.Info("follow-up sent", "alert_id", alertID, "area", a.AreaName)
	e.broadcast(context.Background(), a, domain.PurposeFollowUp)
}

// Shutdown cancels pending follow-up prompts.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, cancel := range e.followUps {
		cancel()
		delete(e.followUps, id)
	}
}

// Get returns a snapshot of one alert.
func (e *Engine) Get(alertID string) (domain.Alert, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Store().Get(alertID)
}

// Active returns snapshots of the active alerts, oldest first.
func (e *Engine) Active() []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Store().Active()
}

// All returns snapshots of every alert the engine has seen.
func (e *Engine) All() []domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lifecycle.Store().All()
}

// refreshActiveGauge updates the active alert gauge. Caller holds e.mu.
func (e *Engine) refreshActiveGauge() {
	e.metrics.ActiveAlerts.Set(float64(len(e.lifecycle.Store().Active())))
}
