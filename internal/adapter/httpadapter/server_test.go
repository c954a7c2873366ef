package httpadapter_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/floodwatch-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
)

func init() { gin.SetMode(gin.TestMode) }

var now = time.Date(2026, 7, 14, 18, 0, 0, 0, time.UTC)

// --- mocks ---

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type fakeAlerts struct {
	mu     sync.Mutex
	alerts map[string]domain.Alert
	votes  []domain.Vote
}

func newFakeAlerts(as ...domain.Alert) *fakeAlerts {
	f := &fakeAlerts{alerts: make(map[string]domain.Alert)}
	for _, a := range as {
		f.alerts[a.ID] = a
	}
	return f
}

func (f *fakeAlerts) Get(id string) (domain.Alert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	return a, ok
}

func (f *fakeAlerts) All() []domain.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		out = append(out, a)
	}
	return out
}

func (f *fakeAlerts) Active() []domain.Alert {
	var out []domain.Alert
	for _, a := range f.All() {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeAlerts) mutate(id string, fn func(*domain.Alert)) (domain.Alert, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok || !a.IsActive {
		return domain.Alert{}, false
	}
	fn(&a)
	f.alerts[id] = a
	return a, true
}

func (f *fakeAlerts) Vote(_ context.Context, id, _ string, v domain.Vote) (domain.Alert, bool) {
	return f.mutate(id, func(a *domain.Alert) {
		f.votes = append(f.votes, v)
		if v == domain.VoteResolved {
			a.ResolvedCount++
		} else {
			a.ConfirmedCount++
		}
	})
}

func (f *fakeAlerts) Resolve(_ context.Context, id string) (domain.Alert, bool) {
	return f.mutate(id, func(a *domain.Alert) {
		a.IsActive = false
		a.RoadState = domain.RoadNormal
	})
}

func (f *fakeAlerts) RespondFollowUp(_ context.Context, id string, ongoing bool) (domain.Alert, bool) {
	return f.mutate(id, func(a *domain.Alert) {
		if ongoing {
			a.ExpiresAt = now.Add(30 * time.Minute)
			return
		}
		a.IsActive = false
	})
}

type fakeSink struct {
	got []domain.Report
	err error
}

func (s *fakeSink) Ingest(_ context.Context, rs []domain.Report) (engine.PassResult, error) {
	if s.err != nil {
		return engine.PassResult{}, s.err
	}
	s.got = append(s.got, rs...)
	return engine.PassResult{Decisions: []engine.Decision{{Verdict: engine.VerdictTooFewReports, ReportIDs: []string{rs[0].ID}}}}, nil
}

type fixedSensors []domain.SensorNode

func (s fixedSensors) Sensors() []domain.SensorNode { return s }

// --- helpers ---

func activeAlert(id string) domain.Alert {
	return domain.Alert{
		ID:           id,
		Type:         domain.ReportFlood,
		Severity:     domain.SeverityHigh,
		Location:     domain.Coordinates{Lat: 12.9352, Lng: 77.6245},
		AreaName:     "Koramangala",
		RadiusMeters: 800,
		IsActive:     true,
		RoadState:    domain.RoadFlooded,
		TriggeredAt:  now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func resolvedAlert(id string) domain.Alert {
	a := activeAlert(id)
	a.IsActive = false
	a.RoadState = domain.RoadNormal
	return a
}

type testEnv struct {
	srv    *httpadapter.Server
	alerts *fakeAlerts
	sink   *fakeSink
}

func newTestEnv(readyErr error, alerts ...domain.Alert) *testEnv {
	env := &testEnv{alerts: newFakeAlerts(alerts...), sink: &fakeSink{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := httpadapter.NewAPI(env.alerts, env.sink, logger,
		httpadapter.WithClock(clockwork.NewFakeClockAt(now)),
		httpadapter.WithIDGenerator(func() string { return "generated-1" }),
		httpadapter.WithSensors(fixedSensors{{ID: "esp32-01", Status: domain.SensorWarning}}),
		httpadapter.WithStatusChecks(
			httpadapter.Check{Name: "pipeline", Checker: &mockReadiness{err: errors.New("no reports yet")}},
			httpadapter.Check{Name: "archive", Checker: httpadapter.CheckFunc(func(context.Context) error { return nil })},
		),
	)
	env.srv = httpadapter.NewServer(":0", api, &mockReadiness{err: readyErr}, logger)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	e.srv.ServeHTTP(rec, req)
	return rec
}

// --- probes ---

func TestHealthzReturns200(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := newTestEnv(fmt.Errorf("mqtt: not connected")).do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestChecks_FirstFailureWins(t *testing.T) {
	cs := httpadapter.Checks{
		{Name: "archive", Checker: &mockReadiness{}},
		{Name: "mqtt", Checker: &mockReadiness{err: errors.New("not connected")}},
	}
	err := cs.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Equal(t, "mqtt: not connected", err.Error())
	assert.Equal(t, map[string]string{"archive": "ok", "mqtt": "not connected"}, cs.Report(context.Background()))
}

// --- reports ---

func TestCreateReport_Accepted(t *testing.T) {
	env := newTestEnv(nil)
	rec := env.do(t, http.MethodPost, "/api/v1/reports", map[string]any{
		"type":         "flood",
		"location":     map[string]float64{"lat": 12.9352, "lng": 77.6245},
		"submitter_id": "u1",
		"description":  "  knee deep near the signal ",
	})

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, env.sink.got, 1)
	r := env.sink.got[0]
	assert.Equal(t, "generated-1", r.ID)
	assert.Equal(t, domain.ReportFlood, r.Type)
	assert.Equal(t, now, r.Timestamp)
	assert.Equal(t, "knee deep near the signal", r.Description)
	assert.True(t, r.IsActive)

	var body struct {
		Decisions []engine.Decision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Decisions, 1)
	assert.Equal(t, engine.VerdictTooFewReports, body.Decisions[0].Verdict)
}

func TestCreateReport_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"unknown type", map[string]any{"type": "tsunami", "location": map[string]float64{"lat": 12.9, "lng": 77.6}, "submitter_id": "u1"}},
		{"missing submitter", map[string]any{"type": "flood", "location": map[string]float64{"lat": 12.9, "lng": 77.6}}},
		{"bad location", map[string]any{"type": "flood", "location": map[string]float64{"lat": 123, "lng": 77.6}, "submitter_id": "u1"}},
		{"not json", "flood"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(nil)
			rec := env.do(t, http.MethodPost, "/api/v1/reports", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, env.sink.got)
		})
	}
}

func TestCreateReport_IngestFailure(t *testing.T) {
	env := newTestEnv(nil)
	env.sink.err = errors.New("boom")
	rec := env.do(t, http.MethodPost, "/api/v1/reports", map[string]any{
		"type":         "flood",
		"location":     map[string]float64{"lat": 12.9352, "lng": 77.6245},
		"submitter_id": "u1",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- alerts ---

func TestListAlerts(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"), resolvedAlert("a2"))

	var active []domain.Alert
	rec := env.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)

	var all []domain.Alert
	rec = env.do(t, http.MethodGet, "/api/v1/alerts?all=true", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
}

func TestListAlerts_EmptyIsArray(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/api/v1/alerts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetAlert(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"))

	rec := env.do(t, http.MethodGet, "/api/v1/alerts/a1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var a domain.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, domain.SeverityHigh, a.Severity)
	assert.Equal(t, domain.RoadFlooded, a.RoadState)

	rec = env.do(t, http.MethodGet, "/api/v1/alerts/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCastVote(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"), resolvedAlert("a2"))

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/a1/votes", map[string]string{"user_id": "u1", "vote": "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	var a domain.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, 1, a.ResolvedCount)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a1/votes", map[string]string{"user_id": "u1", "vote": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a1/votes", map[string]string{"vote": "confirm"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/missing/votes", map[string]string{"user_id": "u1", "vote": "confirm"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a2/votes", map[string]string{"user_id": "u1", "vote": "confirm"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, []domain.Vote{domain.VoteResolved}, env.alerts.votes)
}

func TestRespondFollowUp(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"), activeAlert("a2"))

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/a1/follow-up", map[string]bool{"still_ongoing": true})
	require.Equal(t, http.StatusOK, rec.Code)
	a, _ := env.alerts.Get("a1")
	assert.True(t, a.IsActive)
	assert.Equal(t, now.Add(30*time.Minute), a.ExpiresAt)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a2/follow-up", map[string]bool{"still_ongoing": false})
	require.Equal(t, http.StatusOK, rec.Code)
	a, _ = env.alerts.Get("a2")
	assert.False(t, a.IsActive)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a1/follow-up", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveAlert(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"))

	rec := env.do(t, http.MethodPost, "/api/v1/alerts/a1/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/a1/resolve", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/alerts/nope/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- geo ---

func TestAvoidance_ReturnsFeaturePerActiveAlert(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"), resolvedAlert("a2"))

	rec := env.do(t, http.MethodGet, "/api/v1/avoidance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	fc, err := geojson.UnmarshalFeatureCollection(rec.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "a1", fc.Features[0].Properties["alert_id"])
	assert.Equal(t, "Polygon", fc.Features[0].Geometry.GeoJSONType())
}

func TestPlanRoute(t *testing.T) {
	env := newTestEnv(nil, activeAlert("a1"))

	// Straight through the alert centre.
	rec := env.do(t, http.MethodPost, "/api/v1/routes", map[string]any{
		"origin":      map[string]float64{"lat": 12.9252, "lng": 77.6245},
		"destination": map[string]float64{"lat": 12.9452, "lng": 77.6245},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Well east of the alert.
	rec = env.do(t, http.MethodPost, "/api/v1/routes", map[string]any{
		"origin":      map[string]float64{"lat": 12.9252, "lng": 77.6600},
		"destination": map[string]float64{"lat": 12.9452, "lng": 77.6600},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Path []domain.Coordinates `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Path, 2)

	rec = env.do(t, http.MethodPost, "/api/v1/routes", map[string]any{
		"origin":      map[string]float64{"lat": 95, "lng": 0},
		"destination": map[string]float64{"lat": 12.9, "lng": 77.6},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSensors(t *testing.T) {
	rec := newTestEnv(nil).do(t, http.MethodGet, "/api/v1/sensors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sensors []domain.SensorNode
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sensors))
	require.Len(t, sensors, 1)
	assert.Equal(t, "esp32-01", sensors[0].ID)
}

func TestStatus(t *testing.T) {
	rec := newTestEnv(nil, activeAlert("a1")).do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		ActiveAlerts int               `json:"active_alerts"`
		Checks       map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.ActiveAlerts)
	assert.Equal(t, "ok", body.Checks["archive"])
	assert.Equal(t, "no reports yet", body.Checks["pipeline"])
}
