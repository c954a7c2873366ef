// Package mqtt subscribes to water-level sensor status topics and feeds the
// sensor registry.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
)

// ClientConfig holds MQTT connection settings.
type ClientConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // e.g. "sensors/+/status"
}

// SensorSink receives decoded sensor states.
type SensorSink interface {
	Upsert(node domain.SensorNode)
}

// statusMessage is the JSON payload published on sensors/{id}/status.
type statusMessage struct {
	Status            string    `json:"status"`
	Lat               float64   `json:"lat"`
	Lng               float64   `json:"lng"`
	AreaName          string    `json:"area_name"`
	WaterLevelCm      *float64  `json:"water_level_cm"`
	RainfallMmPerHour float64   `json:"rainfall_mm_per_hour"`
	BatteryLevel      float64   `json:"battery_level"`
	Timestamp         time.Time `json:"timestamp"`
}

// Subscriber keeps a paho connection and forwards sensor updates to a sink.
type Subscriber struct {
	client paho.Client
	topic  string
	sink   SensorSink
	logger *slog.Logger
	now    func() time.Time
}

// Connect opens the broker connection. Subscriptions are (re)established on
// every connect so they survive automatic reconnects.
func Connect(cfg ClientConfig, sink SensorSink, logger *slog.Logger) (*Subscriber, error) {
	s := &Subscriber{topic: cfg.Topic, sink: sink, logger: logger, now: domain.Now}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
		if token := c.Subscribe(s.topic, 1, s.handleStatus); token.Wait() && token.Error() != nil {
			logger.Error("mqtt subscribe failed", "topic", s.topic, "error", token.Error())
			return
		}
		logger.Info("mqtt subscribed", "topic", s.topic)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}
	return s, nil
}

// CheckReadiness reports whether the broker connection is up.
func (s *Subscriber) CheckReadiness() error {
	if !s.client.IsConnectionOpen() {
		return errors.New("mqtt connection is not open")
	}
	return nil
}

// Close disconnects from the broker.
func (s *Subscriber) Close() {
	s.client.Disconnect(250)
}

func (s *Subscriber) handleStatus(_ paho.Client, msg paho.Message) {
	node, err := decodeStatus(msg.Topic(), msg.Payload(), s.now())
	if err != nil {
		s.logger.Warn("dropping sensor status", "topic", msg.Topic(), "error", err)
		return
	}
	s.sink.Upsert(node)
	s.logger.Debug("sensor status", "sensor_id", node.ID, "status", node.Status)
}

// decodeStatus turns a sensors/{id}/status payload into a SensorNode. A
// missing timestamp is stamped with now.
func decodeStatus(topic string, payload []byte, now time.Time) (domain.SensorNode, error) {
	id := sensorID(topic)
	if id == "" {
		return domain.SensorNode{}, fmt.Errorf("no sensor id in topic %q", topic)
	}

	var m statusMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return domain.SensorNode{}, fmt.Errorf("decode payload: %w", err)
	}
	status, err := domain.ParseSensorStatus(m.Status)
	if err != nil {
		return domain.SensorNode{}, err
	}
	loc := domain.Coordinates{Lat: m.Lat, Lng: m.Lng}
	if !loc.Valid() {
		return domain.SensorNode{}, domain.ErrInvalidLocation
	}

	node := domain.SensorNode{
		ID:       id,
		Location: loc,
		AreaName: m.AreaName,
		Status:   status,
	}
	if m.WaterLevelCm != nil {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = now
		}
		node.LastReading = &domain.SensorReading{
			WaterLevelCm:      *m.WaterLevelCm,
			RainfallMmPerHour: m.RainfallMmPerHour,
			BatteryLevel:      m.BatteryLevel,
			Timestamp:         ts,
		}
	}
	return node, nil
}

// sensorID extracts {id} from sensors/{id}/status.
func sensorID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}
