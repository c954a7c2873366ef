package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testMapboxToken = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "flood-reports", cfg.KafkaReportsTopic)
	assert.Equal(t, "flood-alerts", cfg.KafkaAlertsTopic)
	assert.Equal(t, "floodwatch", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, 50, cfg.LogMaxSizeMB)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.InDelta(t, 12.9716, cfg.CityLat, 1e-9)
	assert.InDelta(t, 77.5946, cfg.CityLng, 1e-9)
	assert.False(t, cfg.MapboxEnabled)
	assert.Empty(t, cfg.MapboxToken)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.Equal(t, 5*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, 10*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, "@every 5m", cfg.WeatherRefreshSchedule)
	assert.Equal(t, 10*time.Second, cfg.PhotoVerifierTimeout)
	assert.Empty(t, cfg.TelegramChatIDs)
	assert.Equal(t, 20, cfg.TelegramRateLimit)
	assert.Equal(t, "floodwatch", cfg.MQTTClientID)
	assert.Equal(t, "sensors/+/status", cfg.MQTTSensorTopic)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, "advisory", cfg.ExpiryPolicy)
	assert.Equal(t, "@every 1m", cfg.ExpirySweepSchedule)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_REPORTS_TOPIC", "custom-reports")
	t.Setenv("KAFKA_ALERTS_TOPIC", "custom-alerts")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_FILE", "/var/log/floodwatch.log")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("CITY_LAT", "19.0760")
	t.Setenv("CITY_LNG", "72.8777")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("WEATHER_CACHE_TTL", "2m")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHAT_IDS", "1001, -1002")
	t.Setenv("MQTT_BROKER", "tcp://mosquitto:1883")
	t.Setenv("DATABASE_URL", "postgres://localhost/floodwatch")
	t.Setenv("EXPIRY_POLICY", "hard")
	t.Setenv("EXPIRY_SWEEP_SCHEDULE", "*/2 * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-reports", cfg.KafkaReportsTopic)
	assert.Equal(t, "custom-alerts", cfg.KafkaAlertsTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/var/log/floodwatch.log", cfg.LogFile)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.InDelta(t, 19.0760, cfg.CityLat, 1e-9)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.Equal(t, 2*time.Minute, cfg.WeatherCacheTTL)
	assert.Equal(t, []int64{1001, -1002}, cfg.TelegramChatIDs)
	assert.Equal(t, "tcp://mosquitto:1883", cfg.MQTTBroker)
	assert.Equal(t, "postgres://localhost/floodwatch", cfg.DatabaseURL)
	assert.Equal(t, "hard", cfg.ExpiryPolicy)
	assert.Equal(t, "*/2 * * * *", cfg.ExpirySweepSchedule)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("FLOODWATCH_TEST_HTTP_ADDR=:7070\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("FLOODWATCH_TEST_HTTP_ADDR") })

	_, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", os.Getenv("FLOODWATCH_TEST_HTTP_ADDR"))
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidBatchSize(t *testing.T) {
	t.Setenv("BATCH_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SIZE")
}

func TestLoad_InvalidBatchFlushInterval(t *testing.T) {
	t.Setenv("BATCH_FLUSH_INTERVAL", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_FLUSH_INTERVAL")
}

func TestLoad_InvalidValuesNameTheVariable(t *testing.T) {
	cases := map[string]string{
		"MAPBOX_TIMEOUT":           "bad",
		"WEATHER_TIMEOUT":          "-5s",
		"WEATHER_CACHE_TTL":        "soon",
		"PHOTO_VERIFIER_TIMEOUT":   "0s",
		"CITY_LAT":                 "91",
		"CITY_LNG":                 "east",
		"TELEGRAM_CHAT_IDS":        "abc",
		"WEATHER_REFRESH_SCHEDULE": "every now and then",
		"EXPIRY_SWEEP_SCHEDULE":    "@sometimes",
		"EXPIRY_POLICY":            "eventually",
	}
	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_TelegramTokenWithoutChats(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_IDS")
}
