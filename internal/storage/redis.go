package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "reconquest:"

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Redis keeps snapshots as hashes, metadata as plain strings and geocodes in
// one hash keyed by the folded address.
type Redis struct {
	rdb    *redis.Client
	locker *redislock.Client
}

func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedis(rdb), nil
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, locker: redislock.New(rdb)}
}

func (r *Redis) Backend() string { return "redis" }

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) SaveSnapshot(ctx context.Context, key string, payload []byte, itemCount int) error {
	return r.rdb.HSet(ctx, redisPrefix+"snapshot:"+key,
		"payload", payload,
		"bytes", len(payload),
		"itemCount", itemCount,
		"updatedAt", time.Now().UTC().Format(timeLayout),
	).Err()
}

func (r *Redis) LoadSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	fields, err := r.rdb.HGetAll(ctx, redisPrefix+"snapshot:"+key).Result()
	if err != nil {
		return nil, err
	}
	payload, ok := fields["payload"]
	if !ok {
		return nil, nil
	}
	snap := &Snapshot{Key: key, Payload: []byte(payload)}
	snap.ItemCount, _ = strconv.Atoi(fields["itemCount"])
	snap.UpdatedAt, _ = time.Parse(timeLayout, fields["updatedAt"])
	return snap, nil
}

func (r *Redis) DeleteSnapshot(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, redisPrefix+"snapshot:"+key).Err()
}

func (r *Redis) SetMetadata(ctx context.Context, key, value string) error {
	return r.rdb.Set(ctx, redisPrefix+"meta:"+key, value, 0).Err()
}

func (r *Redis) GetMetadata(ctx context.Context, key string) (*string, error) {
	val, err := r.rdb.Get(ctx, redisPrefix+"meta:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &val, nil
}

type redisGeocode struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Label      string  `json:"label,omitempty"`
	Found      bool    `json:"found"`
	ResolvedAt string  `json:"resolvedAt"`
}

func (r *Redis) PutGeocode(ctx context.Context, entry GeocodeEntry) error {
	resolved := entry.ResolvedAt
	if resolved.IsZero() {
		resolved = time.Now()
	}
	raw, err := json.Marshal(redisGeocode{
		Lat:        entry.Coordinates.Lat,
		Lng:        entry.Coordinates.Lng,
		Label:      entry.Coordinates.Label,
		Found:      entry.Found,
		ResolvedAt: resolved.UTC().Format(timeLayout),
	})
	if err != nil {
		return err
	}
	return r.rdb.HSet(ctx, redisPrefix+"geocodes", geocodeKey(entry.Address), raw).Err()
}

func (r *Redis) GetGeocode(ctx context.Context, address string) (*GeocodeEntry, error) {
	raw, err := r.rdb.HGet(ctx, redisPrefix+"geocodes", geocodeKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec redisGeocode
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	entry := &GeocodeEntry{Address: address, Found: rec.Found}
	entry.Coordinates.Lat = rec.Lat
	entry.Coordinates.Lng = rec.Lng
	entry.Coordinates.Label = rec.Label
	entry.ResolvedAt, _ = time.Parse(timeLayout, rec.ResolvedAt)
	return entry, nil
}

// Lease uses a redis lock so several API replicas sharing one redis agree on
// a single holder.
func (r *Redis) Lease(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	lock, err := r.locker.Obtain(ctx, redisPrefix+"lease:"+name, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return func() {}, false, nil
	}
	if err != nil {
		return func() {}, false, err
	}
	return func() {
		_ = lock.Release(context.Background())
	}, true, nil
}

var _ Store = (*Redis)(nil)
