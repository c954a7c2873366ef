package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/alert"
	"github.com/couchcryptid/floodwatch-service/internal/area"
	"github.com/couchcryptid/floodwatch-service/internal/confidence"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
	"github.com/couchcryptid/floodwatch-service/internal/notify"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
	"github.com/couchcryptid/floodwatch-service/internal/pipeline"
	"github.com/couchcryptid/floodwatch-service/internal/reports"
	"github.com/couchcryptid/floodwatch-service/internal/scheduler"
	"github.com/couchcryptid/floodwatch-service/internal/sensor"
)

// Scenario is a timeline of inputs replayed against a fresh engine.
type Scenario struct {
	Start      time.Time              `json:"start"`
	City       domain.Coordinates     `json:"city"`
	Expiry     string                 `json:"expiry"`
	KnownAreas []area.KnownArea       `json:"known_areas"`
	Weather    domain.WeatherSnapshot `json:"weather"`
	Sensors    []domain.SensorNode    `json:"sensors"`
	Steps      []Step                 `json:"steps"`
}

// Step is applied once the clock reaches Start+At. Offsets must not decrease.
type Step struct {
	At        offset                  `json:"at"`
	Weather   *domain.WeatherSnapshot `json:"weather,omitempty"`
	Sensors   []domain.SensorNode     `json:"sensors,omitempty"`
	Reports   []json.RawMessage       `json:"reports,omitempty"`
	Votes     []VoteInput             `json:"votes,omitempty"`
	FollowUps []FollowUpInput         `json:"follow_ups,omitempty"`
	Resolve   []string                `json:"resolve,omitempty"`
	Sweep     bool                    `json:"sweep,omitempty"`
}

type VoteInput struct {
	AlertID string      `json:"alert_id"`
	UserID  string      `json:"user_id"`
	Vote    domain.Vote `json:"vote"`
}

type FollowUpInput struct {
	AlertID      string `json:"alert_id"`
	StillOngoing bool   `json:"still_ongoing"`
}

// offset is a duration written as a Go duration string, e.g. "90s".
type offset time.Duration

func (o *offset) UnmarshalText(b []byte) error {
	d, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse offset: %w", err)
	}
	*o = offset(d)
	return nil
}

func (o offset) MarshalText() ([]byte, error) { return []byte(time.Duration(o).String()), nil }

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Start.IsZero() {
		return nil, fmt.Errorf("scenario %s: start is required", path)
	}
	var prev offset
	for i, st := range s.Steps {
		if st.At < prev {
			return nil, fmt.Errorf("scenario %s: step %d goes back in time", path, i)
		}
		prev = st.At
	}
	return &s, nil
}

// Message is a notification the engine sent during replay.
type Message struct {
	Purpose domain.AudiencePurpose `json:"purpose"`
	AlertID string                 `json:"alert_id"`
	Text    string                 `json:"text"`
}

// VoteOutcome records whether a vote was accepted and the alert state after it.
type VoteOutcome struct {
	VoteInput
	Accepted  bool   `json:"accepted"`
	RoadState string `json:"road_state,omitempty"`
	Active    bool   `json:"active"`
}

// StepTrace is everything that happened while applying one step.
type StepTrace struct {
	At        offset            `json:"at"`
	Time      time.Time         `json:"time"`
	Decisions []engine.Decision `json:"decisions,omitempty"`
	Invalid   []string          `json:"invalid,omitempty"`
	Votes     []VoteOutcome     `json:"votes,omitempty"`
	Expired   []string          `json:"expired,omitempty"`
	Messages  []Message         `json:"messages,omitempty"`
}

// Trace is the full replay result.
type Trace struct {
	Steps  []StepTrace    `json:"steps"`
	Alerts []domain.Alert `json:"alerts"`
}

// recorder is a Notifier that keeps formatted messages. Every broadcast
// counts as one notified user.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) Broadcast(_ context.Context, a domain.Alert, aud domain.Audience) domain.BroadcastResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{Purpose: aud.Purpose, AlertID: a.ID, Text: notify.Format(a, aud.Purpose)})
	return domain.BroadcastResult{SentCount: 1}
}

func (r *recorder) drain() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.msgs
	r.msgs = nil
	return out
}

// scriptedWeather returns whatever the current step set.
type scriptedWeather struct {
	mu       sync.Mutex
	snapshot domain.WeatherSnapshot
}

func (w *scriptedWeather) Current(context.Context, domain.Coordinates) domain.WeatherSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshot
}

func (w *scriptedWeather) set(s domain.WeatherSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshot = s
}

// Replay runs the scenario on a fake clock and returns the trace. Alert ids
// are assigned in creation order as alert-1, alert-2, ...
func Replay(ctx context.Context, s *Scenario, logger *slog.Logger) (*Trace, error) {
	expiry, err := alert.ParseExpiryPolicy(s.Expiry)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewFakeClockAt(s.Start)
	sched := scheduler.NewManual(clock)
	metrics := observability.NewUnregisteredMetrics()

	n := 0
	lifecycle := alert.NewLifecycle(alert.NewStore(),
		alert.WithClock(clock),
		alert.WithExpiryPolicy(expiry),
		alert.WithIDGenerator(func() string { n++; return fmt.Sprintf("alert-%d", n) }),
	)
	store := reports.NewStore(0)
	sensors := sensor.NewRegistry()
	for _, sn := range s.Sensors {
		sensors.Upsert(sn)
	}
	weather := &scriptedWeather{snapshot: s.Weather}
	rec := &recorder{}

	eng := engine.New(engine.DefaultConfig(), lifecycle, confidence.NewScorer(confidence.DefaultWeights()), engine.Dependencies{
		Resolver:  area.NewResolver(nil, s.KnownAreas, logger, metrics),
		Weather:   weather,
		Notifier:  rec,
		Reports:   store,
		Scheduler: sched,
		Clock:     clock,
	}, logger, metrics)
	defer eng.Shutdown()

	evaluator := pipeline.NewEvaluator(eng, store, sensors, s.City, clock)
	ingestor := pipeline.NewIngestor(store, nil, evaluator, clock, logger, metrics)

	trace := &Trace{}
	for _, st := range s.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sched.Advance(s.Start.Add(time.Duration(st.At)).Sub(clock.Now()))

		step := StepTrace{At: st.At, Time: clock.Now()}
		if st.Weather != nil {
			weather.set(*st.Weather)
		}
		for _, sn := range st.Sensors {
			sensors.Upsert(sn)
		}

		var batch []domain.Report
		for _, raw := range st.Reports {
			r, err := domain.ParseReport(domain.RawEvent{Value: raw, Timestamp: clock.Now()})
			if err != nil {
				step.Invalid = append(step.Invalid, err.Error())
				continue
			}
			batch = append(batch, r)
		}
		if len(batch) > 0 {
			res, err := ingestor.Ingest(ctx, batch)
			if err != nil {
				return nil, err
			}
			step.Decisions = res.Decisions
		}

		for _, v := range st.Votes {
			a, ok := eng.Vote(ctx, v.AlertID, v.UserID, v.Vote)
			out := VoteOutcome{VoteInput: v, Accepted: ok}
			if ok {
				out.RoadState = a.RoadState.String()
				out.Active = a.IsActive
			}
			step.Votes = append(step.Votes, out)
		}
		for _, f := range st.FollowUps {
			eng.RespondFollowUp(ctx, f.AlertID, f.StillOngoing)
		}
		for _, id := range st.Resolve {
			eng.Resolve(ctx, id)
		}
		if st.Sweep {
			for _, a := range eng.SweepExpired(ctx) {
				step.Expired = append(step.Expired, a.ID)
			}
		}

		step.Messages = rec.drain()
		trace.Steps = append(trace.Steps, step)
	}
	trace.Alerts = eng.All()
	return trace, nil
}
