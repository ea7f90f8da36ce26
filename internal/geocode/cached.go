package geocode

import (
	"context"
	"time"

	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/metrics"
	"reconquest/internal/storage"
)

// Cache is the slice of storage.Store the geocoder needs.
type Cache interface {
	GetGeocode(ctx context.Context, address string) (*storage.GeocodeEntry, error)
	PutGeocode(ctx context.Context, entry storage.GeocodeEntry) error
}

// Cached remembers definitive answers, hits and misses alike, in durable
// storage. Cache errors degrade to a direct lookup.
type Cached struct {
	next    Resolver
	cache   Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewCached(next Resolver, cache Cache, m *metrics.Metrics, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, metrics: m, logger: logger}
}

func (c *Cached) Lookup(ctx context.Context, address string) (internal.Coordinates, bool, error) {
	entry, err := c.cache.GetGeocode(ctx, address)
	if err != nil {
		c.logger.Warn("geocode cache read failed", zap.String("address", address), zap.Error(err))
	}
	if entry != nil {
		c.count("cache_hit")
		return entry.Coordinates, entry.Found, nil
	}

	coords, found, err := c.next.Lookup(ctx, address)
	if err != nil {
		c.count("error")
		return internal.Coordinates{}, false, err
	}
	if found {
		c.count("resolved")
	} else {
		c.count("not_found")
	}

	putErr := c.cache.PutGeocode(ctx, storage.GeocodeEntry{
		Address:     address,
		Coordinates: coords,
		Found:       found,
		ResolvedAt:  time.Now(),
	})
	if putErr != nil {
		c.logger.Warn("geocode cache write failed", zap.String("address", address), zap.Error(putErr))
	}
	return coords, found, nil
}

func (c *Cached) count(outcome string) {
	if c.metrics != nil {
		c.metrics.GeocodeLookups.WithLabelValues(outcome).Inc()
	}
}
