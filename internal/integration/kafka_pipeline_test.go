//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/floodwatch-service/internal/adapter/kafka"
	"github.com/couchcryptid/floodwatch-service/internal/alert"
	"github.com/couchcryptid/floodwatch-service/internal/area"
	"github.com/couchcryptid/floodwatch-service/internal/confidence"
	"github.com/couchcryptid/floodwatch-service/internal/config"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
	"github.com/couchcryptid/floodwatch-service/internal/pipeline"
	"github.com/couchcryptid/floodwatch-service/internal/reports"
	"github.com/couchcryptid/floodwatch-service/internal/sensor"
)

const (
	testReportsTopic = "test-flood-reports"
	testAlertsTopic  = "test-flood-alerts"
)

var koramangala = domain.Coordinates{Lat: 12.9352, Lng: 77.6245}

// publishedAlert holds a deserialized message read from the alerts topic.
type publishedAlert struct {
	Event   kafka.AlertEvent
	Key     string
	Headers map[string]string
}

// readAlert reads a single message from the alerts consumer and deserializes it.
func readAlert(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedAlert {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from alerts topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var event kafka.AlertEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal alert message")
	return publishedAlert{Event: event, Key: string(msg.Key), Headers: headers}
}

func reportPayload(t *testing.T, id string, lat, lng float64, ts time.Time) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":           id,
		"type":         "flood",
		"location":     map[string]float64{"lat": lat, "lng": lng},
		"photo_url":    "https://img.example.com/" + id + ".jpg",
		"timestamp":    ts,
		"submitter_id": "user-" + id,
	})
	require.NoError(t, err)
	return payload
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaReportsTopic:  testReportsTopic,
		KafkaAlertsTopic:   testAlertsTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func alertsConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAlertsTopic,
		GroupID:     fmt.Sprintf("test-alerts-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (BatchExtractor)
// consumes a report and kafka.Writer (Notifier) publishes an alert event.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)
	createTopic(t, broker, testAlertsTopic)
	cfg := testConfig(broker, "test-reader")

	now := time.Now().UTC()
	payload := reportPayload(t, "r1", koramangala.Lat, koramangala.Lng, now)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testReportsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("r1"), Value: payload, Time: now}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from reports topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("r1"), raw.Key)
	assert.Equal(t, testReportsTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	report, err := domain.ParseReport(raw)
	require.NoError(t, err)
	assert.Equal(t, "r1", report.ID)
	assert.True(t, report.HasPhoto())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	a := domain.Alert{ID: "alert-1", AreaName: "Koramangala", Severity: domain.SeverityHigh, RoadState: domain.RoadFlooded, IsActive: true}
	res := writer.Broadcast(ctx, a, domain.AudienceFor(a, domain.PurposeNewAlert))
	require.Empty(t, res.Errors)

	got := readAlert(ctx, t, alertsConsumer(t, broker))
	assert.Equal(t, "alert-1", got.Key)
	assert.Equal(t, "new_alert", got.Headers["purpose"])
	_, err = time.Parse(time.RFC3339, got.Headers["published_at"])
	assert.NoError(t, err, "published_at should be valid RFC3339")
	assert.Equal(t, "Koramangala", got.Event.Alert.AreaName)
	assert.Equal(t, domain.SeverityHigh, got.Event.Alert.Severity)
}

// TestPipelineEndToEnd wires Reader -> Pipeline -> Ingestor -> Engine -> Writer
// against real Kafka: a poison message is skipped and three nearby reports
// raise one alert.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testReportsTopic)
	createTopic(t, broker, testAlertsTopic)
	cfg := testConfig(broker, "test-pipeline")

	now := time.Now().UTC()
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testReportsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: now},
		kafkago.Message{Key: []byte("r1"), Value: reportPayload(t, "r1", 12.9352, 77.6245, now), Time: now},
		kafkago.Message{Key: []byte("r2"), Value: reportPayload(t, "r2", 12.9357, 77.6247, now), Time: now},
		kafkago.Message{Key: []byte("r3"), Value: reportPayload(t, "r3", 12.9349, 77.6250, now), Time: now},
	))

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewRealClock()

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	store := reports.NewStore(0)
	eng := engine.New(engine.DefaultConfig(),
		alert.NewLifecycle(alert.NewStore(), alert.WithClock(clock)),
		confidence.NewScorer(confidence.DefaultWeights()),
		engine.Dependencies{
			Resolver: area.NewResolver(nil, []area.KnownArea{{Name: "Koramangala", Location: koramangala}}, logger, metrics),
			Notifier: writer,
			Reports:  store,
			Clock:    clock,
		}, logger, metrics)
	t.Cleanup(eng.Shutdown)

	eval := pipeline.NewEvaluator(eng, store, sensor.NewRegistry(), domain.Coordinates{Lat: 12.9716, Lng: 77.5946}, clock)
	ingestor := pipeline.NewIngestor(store, nil, eval, clock, logger, metrics)

	reader := kafka.NewReader(cfg, logger)
	t.Cleanup(func() { _ = reader.Close() })
	p := pipeline.New(reader, ingestor, logger, metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := alertsConsumer(t, broker)
	first := readAlert(ctx, t, consumer)
	assert.Equal(t, "new_alert", first.Headers["purpose"])
	assert.Equal(t, "Koramangala", first.Event.Alert.AreaName)
	assert.True(t, first.Event.Alert.IsActive)
	assert.GreaterOrEqual(t, first.Event.Alert.ConfidenceScore, engine.DefaultConfig().ConfidenceThreshold)
	assert.Equal(t, first.Event.Alert.ID, first.Key)

	require.Eventually(t, p.Ready, 30*time.Second, 100*time.Millisecond)
	assert.Len(t, eng.Active(), 1)

	pipelineCancel()
	require.NoError(t, <-errCh)
}
