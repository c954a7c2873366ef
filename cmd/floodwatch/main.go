package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/floodwatch-service/internal/adapter/kafka"
	"github.com/couchcryptid/floodwatch-service/internal/adapter/mapbox"
	mqttadapter "github.com/couchcryptid/floodwatch-service/internal/adapter/mqtt"
	"github.com/couchcryptid/floodwatch-service/internal/adapter/photo"
	"github.com/couchcryptid/floodwatch-service/internal/adapter/postgres"
	"github.com/couchcryptid/floodwatch-service/internal/adapter/telegram"
	"github.com/couchcryptid/floodwatch-service/internal/adapter/weather"
	"github.com/couchcryptid/floodwatch-service/internal/alert"
	"github.com/couchcryptid/floodwatch-service/internal/area"
	"github.com/couchcryptid/floodwatch-service/internal/confidence"
	"github.com/couchcryptid/floodwatch-service/internal/config"
	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/engine"
	"github.com/couchcryptid/floodwatch-service/internal/jobs"
	"github.com/couchcryptid/floodwatch-service/internal/notify"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
	"github.com/couchcryptid/floodwatch-service/internal/pipeline"
	"github.com/couchcryptid/floodwatch-service/internal/reports"
	"github.com/couchcryptid/floodwatch-service/internal/scheduler"
	"github.com/couchcryptid/floodwatch-service/internal/sensor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	if err := run(cfg, clock, logger, metrics); err != nil {
		logger.Error("floodwatch exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Area names: Mapbox (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN) with known-area fallback.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		cached, err := mapbox.NewCachedGeocoder(mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger, metrics), cfg.MapboxCacheSize, metrics)
		if err != nil {
			return err
		}
		geocoder = cached
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}
	var known []area.KnownArea
	if cfg.KnownAreasFile != "" {
		loaded, err := area.LoadKnownAreas(cfg.KnownAreasFile)
		if err != nil {
			return err
		}
		known = loaded
		logger.Info("known areas loaded", "count", len(known))
	}
	resolver := area.NewResolver(geocoder, known, logger, metrics)

	// Weather: OpenWeatherMap when a key is configured, conservative fallback otherwise.
	var fetcher weather.Fetcher
	if cfg.WeatherAPIKey != "" {
		fetcher = weather.NewClient(cfg.WeatherAPIKey, cfg.WeatherTimeout)
	} else {
		logger.Warn("WEATHER_API_KEY not set, every pass uses fallback weather")
	}
	weatherProvider := weather.NewProvider(fetcher, cfg.WeatherCacheTTL, clock, logger, metrics)

	var verifier domain.PhotoVerifier
	if cfg.PhotoVerifierURL != "" {
		verifier = photo.NewClient(cfg.PhotoVerifierURL, cfg.PhotoVerifierTimeout)
	}

	// Notification channels.
	writer := kafkaadapter.NewWriter(cfg, logger)
	defer closeWith(logger, "kafka writer", writer.Close)
	channels := []domain.Notifier{writer}
	var tg *telegram.Notifier
	if cfg.TelegramBotToken != "" {
		var err error
		tg, err = telegram.New(cfg.TelegramBotToken, cfg.TelegramChatIDs, cfg.TelegramRateLimit)
		if err != nil {
			return err
		}
		channels = append(channels, tg)
		logger.Info("telegram notifications enabled", "chats", len(cfg.TelegramChatIDs))
	}
	notifier := notify.NewFanout(channels...)

	checks := httpadapter.Checks{}

	var archive engine.Archive
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		archive = pg
		checks = append(checks, httpadapter.Check{Name: "archive", Checker: pg})
	}

	sensors := sensor.NewRegistry()
	if cfg.MQTTBroker != "" {
		sub, err := mqttadapter.Connect(mqttadapter.ClientConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTSensorTopic,
		}, sensors, logger)
		if err != nil {
			return err
		}
		defer sub.Close()
		checks = append(checks, httpadapter.Check{
			Name:    "mqtt",
			Checker: httpadapter.CheckFunc(func(context.Context) error { return sub.CheckReadiness() }),
		})
	}

	// Decision engine.
	expiry, err := alert.ParseExpiryPolicy(cfg.ExpiryPolicy)
	if err != nil {
		return err
	}
	store := reports.NewStore(0)
	lifecycle := alert.NewLifecycle(alert.NewStore(), alert.WithClock(clock), alert.WithExpiryPolicy(expiry))
	eng := engine.New(engine.DefaultConfig(), lifecycle, confidence.NewScorer(confidence.DefaultWeights()), engine.Dependencies{
		Resolver:  resolver,
		Weather:   weatherProvider,
		Notifier:  notifier,
		Archive:   archive,
		Reports:   store,
		Scheduler: scheduler.New(clock),
		Clock:     clock,
	}, logger, metrics)
	defer eng.Shutdown()

	center := domain.Coordinates{Lat: cfg.CityLat, Lng: cfg.CityLng}
	evaluator := pipeline.NewEvaluator(eng, store, sensors, center, clock)
	ingestor := pipeline.NewIngestor(store, verifier, evaluator, clock, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	defer closeWith(logger, "kafka reader", reader.Close)
	p := pipeline.New(reader, ingestor, logger, metrics, cfg.BatchSize)

	runner := jobs.New(logger)
	if err := runner.Add(jobs.WeatherRefresh(cfg.WeatherRefreshSchedule, evaluator, logger)); err != nil {
		return err
	}
	if err := runner.Add(jobs.ExpirySweep(cfg.ExpirySweepSchedule, eng, logger)); err != nil {
		return err
	}

	api := httpadapter.NewAPI(eng, ingestor, logger,
		httpadapter.WithSensors(sensors),
		httpadapter.WithClock(clock),
		httpadapter.WithStatusChecks(append(checks, httpadapter.Check{Name: "pipeline", Checker: p})...),
	)
	srv := httpadapter.NewServer(cfg.HTTPAddr, api, checks, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start ingestion pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	// Answer follow-up prompts from Telegram buttons.
	if tg != nil {
		go tg.Listen(ctx, telegram.NewReplies(eng, logger))
	}

	runner.Start()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("job runner shutdown error", "error", err)
	}
	return nil
}

func closeWith(logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error(name+" close error", "error", err)
	}
}
