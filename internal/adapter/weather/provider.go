package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/floodwatch-service/internal/domain"
	"github.com/couchcryptid/floodwatch-service/internal/observability"
)

// Fetcher returns live conditions or an error.
type Fetcher interface {
	Fetch(ctx context.Context, at domain.Coordinates) (domain.WeatherSnapshot, error)
}

// cacheEntries bounds the number of distinct ~1 km cells kept.
const cacheEntries = 256

// Provider implements domain.WeatherProvider. Results are cached per ~1 km
// cell for the TTL. Any fetch failure, or a missing fetcher, yields
// domain.FallbackWeather.
type Provider struct {
	fetcher Fetcher
	ttl     time.Duration
	cache   *lru.Cache
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

type cached struct {
	snapshot  domain.WeatherSnapshot
	fetchedAt time.Time
}

// NewProvider creates a Provider. Pass a nil fetcher to always use the fallback.
func NewProvider(fetcher Fetcher, ttl time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Provider {
	cache, _ := lru.New(cacheEntries)
	return &Provider{
		fetcher: fetcher,
		ttl:     ttl,
		cache:   cache,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Current implements domain.WeatherProvider.
func (p *Provider) Current(ctx context.Context, at domain.Coordinates) domain.WeatherSnapshot {
	now := p.clock.Now()
	if p.fetcher == nil {
		p.metrics.WeatherFallbacks.Inc()
		return domain.FallbackWeather(now)
	}

	key := fmt.Sprintf("%.2f,%.2f", at.Lat, at.Lng)
	if v, ok := p.cache.Get(key); ok {
		if c := v.(cached); now.Sub(c.fetchedAt) < p.ttl {
			return c.snapshot
		}
	}

	snapshot, err := p.fetcher.Fetch(ctx, at)
	if err != nil {
		p.logger.Warn("weather unavailable, assuming moderate rain",
			"lat", at.Lat,
			"lng", at.Lng,
			"fallback_rainfall_mm", domain.FallbackRainfallMm,
			"error", err,
		)
		p.metrics.WeatherFallbacks.Inc()
		return domain.FallbackWeather(now)
	}
	if snapshot.LastUpdated.IsZero() {
		snapshot.LastUpdated = now
	}
	p.cache.Add(key, cached{snapshot: snapshot, fetchedAt: now})
	return snapshot
}
