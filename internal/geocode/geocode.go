package geocode

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/config"
	"reconquest/internal/metrics"
)

// Resolver places an address. found=false with a nil error is a definitive
// miss; a non-nil error means the answer is unknown and must not be cached.
type Resolver interface {
	Lookup(ctx context.Context, address string) (internal.Coordinates, bool, error)
}

// Geocoder adapts a Resolver to the locator's error-free lookup contract.
// Failures are logged and reported as "not placed".
type Geocoder struct {
	resolver Resolver
	logger   *zap.Logger
}

func NewGeocoder(resolver Resolver, logger *zap.Logger) *Geocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Geocoder{resolver: resolver, logger: logger}
}

func (g *Geocoder) Geocode(ctx context.Context, address string) (internal.Coordinates, bool) {
	address = strings.TrimSpace(address)
	if address == "" || g.resolver == nil {
		return internal.Coordinates{}, false
	}
	coords, found, err := g.resolver.Lookup(ctx, address)
	if err != nil {
		g.logger.Warn("geocode lookup failed", zap.String("address", address), zap.Error(err))
		return internal.Coordinates{}, false
	}
	return coords, found
}

// Chain asks each resolver in turn and returns the first hit. An error from
// one resolver does not stop the chain; it is returned only when no later
// resolver answers.
type Chain []Resolver

func (c Chain) Lookup(ctx context.Context, address string) (internal.Coordinates, bool, error) {
	var firstErr error
	for _, r := range c {
		coords, found, err := r.Lookup(ctx, address)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			return coords, true, nil
		}
	}
	return internal.Coordinates{}, false, firstErr
}

// FromConfig assembles the resolver stack: the remote API behind the durable
// cache, then the postal-code fallback. With the API disabled only the
// fallback runs.
func FromConfig(cfg config.Config, cache Cache, m *metrics.Metrics, logger *zap.Logger) *Geocoder {
	chain := Chain{}
	if cfg.GeocoderEnabled && strings.TrimSpace(cfg.GeocoderBaseURL) != "" {
		var remote Resolver = NewClient(cfg)
		if cache != nil {
			remote = NewCached(remote, cache, m, logger)
		}
		chain = append(chain, remote)
	}
	chain = append(chain, DepartmentFallback{})
	return NewGeocoder(chain, logger)
}
