// Package alert owns the alert state machine: creation and in-place update
// per area, severity classification, community votes driving road state,
// manual resolution, follow-up prompts, and expiry.
//
// Road state transitions are evaluated when a vote lands, never polled:
//
//	flooded -> monitoring   resolved votes >= 1, no confirm within 15 min, rainfall < 5 mm
//	any     -> normal       resolved votes >= 2, rainfall < 2 mm (alert deactivates)
//	monitoring -> flooded   a fresh confirm vote
//
// Lifecycle is not safe for concurrent use; the engine serializes calls.
package alert

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// Policy holds the lifecycle thresholds.
type Policy struct {
	RadiusMeters      float64
	AlertTTL          time.Duration
	FollowUpDelay     time.Duration
	FollowUpExtension time.Duration

	ConfirmFreshness        time.Duration
	MonitoringResolvedVotes int
	MonitoringRainfallMm    float64
	NormalResolvedVotes     int
	NormalRainfallMm        float64
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		RadiusMeters:            800,
		AlertTTL:                60 * time.Minute,
		FollowUpDelay:           60 * time.Second,
		FollowUpExtension:       30 * time.Minute,
		ConfirmFreshness:        15 * time.Minute,
		MonitoringResolvedVotes: 1,
		MonitoringRainfallMm:    5,
		NormalResolvedVotes:     2,
		NormalRainfallMm:        2,
	}
}

// Candidate is a scored cluster that passed the admission gate.
type Candidate struct {
	AreaName    string
	Location    domain.Coordinates
	Type        domain.ReportType
	Confidence  int
	Explanation string
	ReportIDs   []string
}

// Outcome says what Upsert did.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
	// Unchanged means an active alert already carries the candidate's
	// score, report count, severity and report ids.
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// ResolutionPath records how an alert was deactivated.
type ResolutionPath string

const (
	ResolvedByVotes  ResolutionPath = "votes"
	ResolvedManually ResolutionPath = "manual"
	ResolvedByExpiry ResolutionPath = "expiry"
)

// Lifecycle applies state transitions to alerts in a Store.
type Lifecycle struct {
	store   *Store
	clock   clockwork.Clock
	policy  Policy
	expiry  ExpiryPolicy
	newID   func() string
	ballots map[string]map[string]domain.Vote // alert id -> user id -> active vote
	prompts map[string]time.Time              // alert id -> last follow-up prompt
}

// Option customizes a Lifecycle.
type Option func(*Lifecycle)

// WithClock sets the time source.
func WithClock(c clockwork.Clock) Option { return func(l *Lifecycle) { l.clock = c } }

// WithPolicy overrides the thresholds.
func WithPolicy(p Policy) Option { return func(l *Lifecycle) { l.policy = p } }

// WithExpiryPolicy sets how elapsed ExpiresAt is handled.
func WithExpiryPolicy(e ExpiryPolicy) Option { return func(l *Lifecycle) { l.expiry = e } }

// WithIDGenerator replaces the UUID alert id generator.
func WithIDGenerator(f func() string) Option { return func(l *Lifecycle) { l.newID = f } }

// NewLifecycle creates a Lifecycle over store.
func NewLifecycle(store *Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:   store,
		clock:   clockwork.NewRealClock(),
		policy:  DefaultPolicy(),
		expiry:  AdvisoryExpiry{},
		newID:   uuid.NewString,
		ballots: make(map[string]map[string]domain.Vote),
		prompts: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Store exposes the underlying alert store for reads.
func (l *Lifecycle) Store() *Store { return l.store }

// Policy returns the active thresholds.
func (l *Lifecycle) Policy() Policy { return l.policy }

// Upsert creates an alert for the candidate's area or, if one is already
// active there, overwrites its score, report count and severity in place.
// TriggeredAt, RoadState and vote tallies of an existing alert are preserved.
// An existing alert the candidate would not change is reported as Unchanged.
func (l *Lifecycle) Upsert(c Candidate) (domain.Alert, Outcome) {
	severity := ClassifySeverity(c.Confidence, len(c.ReportIDs))

	if existing, ok := l.store.activeInArea(c.AreaName); ok {
		ids := mergeIDs(existing.ReportIDs, c.ReportIDs)
		if existing.ConfidenceScore == c.Confidence &&
			existing.Explanation == c.Explanation &&
			existing.ReportCount == len(c.ReportIDs) &&
			existing.Severity == severity &&
			len(ids) == len(existing.ReportIDs) {
			return existing.Clone(), Unchanged
		}
		existing.ConfidenceScore = c.Confidence
		existing.Explanation = c.Explanation
		existing.ReportCount = len(c.ReportIDs)
		existing.ReportIDs = ids
		existing.Severity = severity
		existing.SuggestedActions = SuggestedActions(severity, existing.AreaName)
		existing.Version++
		return existing.Clone(), Updated
	}

	now := l.clock.Now()
	a := &domain.Alert{
		ID:               l.newID(),
		Type:             c.Type,
		Severity:         severity,
		Location:         c.Location,
		AreaName:         c.AreaName,
		RadiusMeters:     l.policy.RadiusMeters,
		ConfidenceScore:  c.Confidence,
		Explanation:      c.Explanation,
		ReportCount:      len(c.ReportIDs),
		ReportIDs:        append([]string(nil), c.ReportIDs...),
		TriggeredAt:      now,
		ExpiresAt:        now.Add(l.policy.AlertTTL),
		IsActive:         true,
		RoadState:        InitialRoadState(severity),
		SuggestedActions: SuggestedActions(severity, c.AreaName),
		Version:          1,
	}
	if a.RoadState == domain.RoadMonitoring {
		a.MonitoringSince = &now
	}
	l.store.insert(a)
	return a.Clone(), Created
}

// CastVote records userID's vote on an alert and re-evaluates road state
// against the current rainfall. Each user holds one active vote per alert;
// switching moves the vote between tallies. Returns false for unknown or
// inactive alerts.
func (l *Lifecycle) CastVote(alertID, userID string, vote domain.Vote, weather domain.WeatherSnapshot) (domain.Alert, bool) {
	a, ok := l.store.get(alertID)
	if !ok || !a.IsActive || userID == "" {
		return domain.Alert{}, false
	}
	if vote != domain.VoteConfirm && vote != domain.VoteResolved {
		return domain.Alert{}, false
	}
	now := l.clock.Now()

	userVotes := l.ballots[alertID]
	if userVotes == nil {
		userVotes = make(map[string]domain.Vote)
		l.ballots[alertID] = userVotes
	}
	if prev, voted := userVotes[userID]; !voted || prev != vote {
		if voted {
			adjustTally(a, prev, -1)
		}
		adjustTally(a, vote, 1)
		userVotes[userID] = vote
	}

	if vote == domain.VoteConfirm {
		a.LastConfirmedAt = &now
		if a.RoadState == domain.RoadMonitoring {
			a.RoadState = domain.RoadFlooded
			a.MonitoringSince = nil
		}
	}

	l.evaluateRoadState(a, weather.RainfallMm, now)
	a.Version++
	return a.Clone(), true
}

func adjustTally(a *domain.Alert, v domain.Vote, delta int) {
	switch v {
	case domain.VoteConfirm:
		a.ConfirmedCount += delta
	case domain.VoteResolved:
		a.ResolvedCount += delta
	}
}

func (l *Lifecycle) evaluateRoadState(a *domain.Alert, rainfallMm float64, now time.Time) {
	p := l.policy
	if a.ResolvedCount >= p.NormalResolvedVotes && rainfallMm < p.NormalRainfallMm {
		a.RoadState = domain.RoadNormal
		l.resolve(a, now)
		return
	}
	if a.RoadState == domain.RoadFlooded &&
		a.ResolvedCount >= p.MonitoringResolvedVotes &&
		!l.recentlyConfirmed(a, now) &&
		rainfallMm < p.MonitoringRainfallMm {
		a.RoadState = domain.RoadMonitoring
		a.MonitoringSince = &now
	}
}

func (l *Lifecycle) recentlyConfirmed(a *domain.Alert, now time.Time) bool {
	return a.LastConfirmedAt != nil && now.Sub(*a.LastConfirmedAt) < l.policy.ConfirmFreshness
}

// MarkResolved deactivates an alert immediately, bypassing vote thresholds.
// Returns false for unknown or already inactive alerts.
func (l *Lifecycle) MarkResolved(alertID string) (domain.Alert, bool) {
	a, ok := l.store.get(alertID)
	if !ok || !a.IsActive {
		return domain.Alert{}, false
	}
	a.RoadState = domain.RoadNormal
	l.resolve(a, l.clock.Now())
	a.Version++
	return a.Clone(), true
}

// RespondFollowUp applies the answer to a "still ongoing?" prompt: no resolves
// the alert, yes extends ExpiresAt to now plus the follow-up extension.
func (l *Lifecycle) RespondFollowUp(alertID string, stillOngoing bool) (domain.Alert, bool) {
	if !stillOngoing {
		return l.MarkResolved(alertID)
	}
	a, ok := l.store.get(alertID)
	if !ok || !a.IsActive {
		return domain.Alert{}, false
	}
	a.ExpiresAt = l.clock.Now().Add(l.policy.FollowUpExtension)
	a.Version++
	return a.Clone(), true
}

// FollowUpDue reports whether a follow-up prompt may be sent for the alert now.
func (l *Lifecycle) FollowUpDue(alertID string) (domain.Alert, bool) {
	a, ok := l.store.get(alertID)
	if !ok {
		return domain.Alert{}, false
	}
	var last *time.Time
	if t, sent := l.prompts[alertID]; sent {
		last = &t
	}
	if !ShouldSendFollowUp(*a, last, l.clock.Now(), l.policy.FollowUpDelay) {
		return domain.Alert{}, false
	}
	return a.Clone(), true
}

// RecordFollowUpSent stores the prompt time used to throttle re-sends.
func (l *Lifecycle) RecordFollowUpSent(alertID string) {
	l.prompts[alertID] = l.clock.Now()
}

// RecordNotified sets the notified-user estimate on an alert.
func (l *Lifecycle) RecordNotified(alertID string, count int) {
	if a, ok := l.store.get(alertID); ok && count > a.NotifiedUsers {
		a.NotifiedUsers = count
		a.Version++
	}
}

// SweepExpired deactivates active alerts the expiry policy rejects and returns them.
func (l *Lifecycle) SweepExpired() []domain.Alert {
	now := l.clock.Now()
	var expired []domain.Alert
	for _, snapshot := range l.store.Active() {
		if !l.expiry.ShouldExpire(snapshot, now) {
			continue
		}
		a, _ := l.store.get(snapshot.ID)
		l.resolve(a, now)
		a.Version++
		expired = append(expired, a.Clone())
	}
	return expired
}

func (l *Lifecycle) resolve(a *domain.Alert, now time.Time) {
	a.ResolvedAt = &now
	l.store.deactivate(a)
	delete(l.prompts, a.ID)
}

// ShouldSendFollowUp guards follow-up prompts: never for inactive alerts,
// never before the alert is interval old, and at most once per interval.
func ShouldSendFollowUp(a domain.Alert, lastPrompt *time.Time, now time.Time, interval time.Duration) bool {
	if !a.IsActive {
		return false
	}
	if a.Age(now) < interval {
		return false
	}
	if lastPrompt != nil && now.Sub(*lastPrompt) < interval {
		return false
	}
	return true
}

// mergeIDs appends ids not already present, preserving order.
func mergeIDs(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range incoming {
		if _, ok := seen[id]; !ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	return out
}
