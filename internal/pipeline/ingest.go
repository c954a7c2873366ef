package pipeline

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
	"github.com/couchcryptid/floodwatch-service/internal/reports"
)

// Evaluator runs an engine pass over the stored reports with fresh weather
// at the city reference point and the current sensor list.
type Evaluator struct {
	engine  *engine.Engine
	reports *reports.Store
	sensors domain.SensorOracle
	center  domain.Coordinates
	clock   clockwork.Clock
}

// NewEvaluator creates an Evaluator. sensors may be nil.
func NewEvaluator(e *engine.Engine, store *reports.Store, sensors domain.SensorOracle, center domain.Coordinates, clock clockwork.Clock) *Evaluator {
	return &Evaluator{engine: e, reports: store, sensors: sensors, center: center, clock: clock}
}

// Evaluate runs one pass.
func (e *Evaluator) Evaluate(ctx context.Context) engine.PassResult {
	weather := e.engine.Weather(ctx, e.center)
	var sensors []domain.SensorNode
	if e.sensors != nil {
		sensors = e.sensors.Sensors()
	}
	return e.engine.ProcessReports(ctx, e.reports.Active(e.clock.Now()), weather, sensors)
}

// Ingestor verifies report photos, stores the reports and re-evaluates.
// It implements ReportSink.
type Ingestor struct {
	store     *reports.Store
	verifier  domain.PhotoVerifier
	evaluator *Evaluator
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewIngestor creates an Ingestor. Pass a nil verifier to skip photo verification.
func NewIngestor(store *reports.Store, verifier domain.PhotoVerifier, evaluator *Evaluator, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		store:     store,
		verifier:  verifier,
		evaluator: evaluator,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// Ingest implements ReportSink. Photo verification failures leave the
// report unverified. A batch adding no new reports skips the engine pass.
func (i *Ingestor) Ingest(ctx context.Context, batch []domain.Report) (engine.PassResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.PassResult{}, err
	}
	for idx := range batch {
		i.verifyPhoto(ctx, &batch[idx])
	}
	if added := i.store.Add(i.clock.Now(), batch...); added == 0 {
		i.logger.Debug("no new reports in batch", "batch_size", len(batch))
		return engine.PassResult{}, nil
	}
	return i.evaluator.Evaluate(ctx), nil
}

func (i *Ingestor) verifyPhoto(ctx context.Context, r *domain.Report) {
	if i.verifier == nil || !r.NeedsPhotoVerification() {
		return
	}
	verdict, err := i.verifier.Verify(ctx, r.PhotoURL)
	if err != nil {
		i.logger.Warn("photo verification failed, report stays unverified",
			"report_id", r.ID,
			"error", err,
		)
		i.metrics.PhotoVerifications.WithLabelValues("error").Inc()
		return
	}
	outcome := "not_flood"
	if verdict.IsFlood {
		outcome = "flood"
	}
	i.metrics.PhotoVerifications.WithLabelValues(outcome).Inc()
	r.PhotoVerified = &verdict.IsFlood
	r.PhotoConfidence = &verdict.Confidence
}
