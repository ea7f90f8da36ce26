package storage

import (
	"context"
	"fmt"
	"time"

	"reconquest/internal"
	"reconquest/internal/config"
)

// Snapshot is a persisted serialized collection under a single key.
type Snapshot struct {
	Key       string
	Payload   []byte
	ItemCount int
	UpdatedAt time.Time
}

// GeocodeEntry caches one address resolution. Found=false records a known
// miss so the remote service is not asked again.
type GeocodeEntry struct {
	Address     string
	Coordinates internal.Coordinates
	Found       bool
	ResolvedAt  time.Time
}

// Store is the durable key/value surface shared by the sqlite and redis
// backends. Lookups of absent keys return nil without error.
type Store interface {
	Backend() string
	SaveSnapshot(ctx context.Context, key string, payload []byte, itemCount int) error
	LoadSnapshot(ctx context.Context, key string) (*Snapshot, error)
	DeleteSnapshot(ctx context.Context, key string) error
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (*string, error)
	PutGeocode(ctx context.Context, entry GeocodeEntry) error
	GetGeocode(ctx context.Context, address string) (*GeocodeEntry, error)
	// Lease takes a named exclusive lease for ttl. ok=false means another
	// holder owns it. The returned release func is safe to call once.
	Lease(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
	Close() error
}

// OpenFromConfig selects the backend named by STORAGE_BACKEND.
func OpenFromConfig(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case "", "sqlite":
		return Open(cfg.DBPath)
	case "redis":
		return OpenRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}
