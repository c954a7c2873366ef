package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/couchcryptid/floodwatch-service/internal/alert"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers      []string
	KafkaReportsTopic string
	KafkaAlertsTopic  string
	KafkaGroupID      string
	HTTPAddr          string
	LogLevel          string
	LogFormat         string
	LogFile           string
	LogMaxSizeMB      int
	ShutdownTimeout   time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Reference point for city-wide weather lookups.
	CityLat float64
	CityLng float64

	KnownAreasFile string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	WeatherAPIKey          string
	WeatherTimeout         time.Duration
	WeatherCacheTTL        time.Duration
	WeatherRefreshSchedule string

	PhotoVerifierURL     string
	PhotoVerifierTimeout time.Duration

	TelegramBotToken  string
	TelegramChatIDs   []int64
	TelegramRateLimit int

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTSensorTopic string

	// Alert archive; empty disables it.
	DatabaseURL string

	ExpiryPolicy        string
	ExpirySweepSchedule string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file (ENV_FILE, default ".env") is loaded first if present.
func Load() (*Config, error) {
	if err := godotenv.Load(sharedcfg.EnvOrDefault("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parseDuration("WEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	weatherTTL, err := parseDuration("WEATHER_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	photoTimeout, err := parseDuration("PHOTO_VERIFIER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cityLat, err := parseFloat("CITY_LAT", "12.9716", -90, 90)
	if err != nil {
		return nil, err
	}
	cityLng, err := parseFloat("CITY_LNG", "77.5946", -180, 180)
	if err != nil {
		return nil, err
	}

	chatIDs, err := parseChatIDs(os.Getenv("TELEGRAM_CHAT_IDS"))
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportsTopic:  sharedcfg.EnvOrDefault("KAFKA_REPORTS_TOPIC", "flood-reports"),
		KafkaAlertsTopic:   sharedcfg.EnvOrDefault("KAFKA_ALERTS_TOPIC", "flood-alerts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "floodwatch"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:            os.Getenv("LOG_FILE"),
		LogMaxSizeMB:       parsePositiveInt("LOG_MAX_SIZE_MB", 50),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		CityLat:        cityLat,
		CityLng:        cityLng,
		KnownAreasFile: os.Getenv("KNOWN_AREAS_FILE"),

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositiveInt("MAPBOX_CACHE_SIZE", 1000),

		WeatherAPIKey:          os.Getenv("WEATHER_API_KEY"),
		WeatherTimeout:         weatherTimeout,
		WeatherCacheTTL:        weatherTTL,
		WeatherRefreshSchedule: sharedcfg.EnvOrDefault("WEATHER_REFRESH_SCHEDULE", "@every 5m"),

		PhotoVerifierURL:     os.Getenv("PHOTO_VERIFIER_URL"),
		PhotoVerifierTimeout: photoTimeout,

		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatIDs:   chatIDs,
		TelegramRateLimit: parsePositiveInt("TELEGRAM_RATE_LIMIT", 20),

		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "floodwatch"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTSensorTopic: sharedcfg.EnvOrDefault("MQTT_SENSOR_TOPIC", "sensors/+/status"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		ExpiryPolicy:        sharedcfg.EnvOrDefault("EXPIRY_POLICY", "advisory"),
		ExpirySweepSchedule: sharedcfg.EnvOrDefault("EXPIRY_SWEEP_SCHEDULE", "@every 1m"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaReportsTopic == "" {
		return errors.New("KAFKA_REPORTS_TOPIC is required")
	}
	if cfg.KafkaAlertsTopic == "" {
		return errors.New("KAFKA_ALERTS_TOPIC is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.TelegramBotToken != "" && len(cfg.TelegramChatIDs) == 0 {
		return errors.New("TELEGRAM_BOT_TOKEN is set but TELEGRAM_CHAT_IDS is empty")
	}
	if _, err := cron.ParseStandard(cfg.WeatherRefreshSchedule); err != nil {
		return fmt.Errorf("invalid WEATHER_REFRESH_SCHEDULE: %w", err)
	}
	if _, err := cron.ParseStandard(cfg.ExpirySweepSchedule); err != nil {
		return fmt.Errorf("invalid EXPIRY_SWEEP_SCHEDULE: %w", err)
	}
	if _, err := alert.ParseExpiryPolicy(cfg.ExpiryPolicy); err != nil {
		return fmt.Errorf("invalid EXPIRY_POLICY: %w", err)
	}
	return nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parseFloat(name, def string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return v, nil
}

func parsePositiveInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func parseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_IDS entry %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
