package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"reconquest/internal/util"
)

const timeLayout = time.RFC3339Nano

type DB struct {
	conn *sql.DB

	leaseMu sync.Mutex
	leases  map[string]time.Time
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn, leases: map[string]time.Time{}}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Backend() string { return "sqlite" }

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS snapshots (
  key TEXT PRIMARY KEY,
  payload BLOB NOT NULL,
  bytes INTEGER NOT NULL,
  itemCount INTEGER NOT NULL,
  updatedAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS geocodes (
  address TEXT PRIMARY KEY,
  lat REAL,
  lon REAL,
  label TEXT,
  found INTEGER NOT NULL,
  resolvedAt TEXT NOT NULL
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) SaveSnapshot(ctx context.Context, key string, payload []byte, itemCount int) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO snapshots (key, payload, bytes, itemCount, updatedAt) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  payload = excluded.payload,
  bytes = excluded.bytes,
  itemCount = excluded.itemCount,
  updatedAt = excluded.updatedAt
`, key, payload, len(payload), itemCount, time.Now().UTC().Format(timeLayout))
	return err
}

func (d *DB) LoadSnapshot(ctx context.Context, key string) (*Snapshot, error) {
	var (
		snap      Snapshot
		updatedAt string
	)
	err := d.conn.QueryRowContext(ctx, `SELECT key, payload, itemCount, updatedAt FROM snapshots WHERE key = ?`, key).
		Scan(&snap.Key, &snap.Payload, &snap.ItemCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &snap, nil
}

func (d *DB) DeleteSnapshot(ctx context.Context, key string) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

func (d *DB) SetMetadata(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(ctx context.Context, key string) (*string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) PutGeocode(ctx context.Context, entry GeocodeEntry) error {
	resolved := entry.ResolvedAt
	if resolved.IsZero() {
		resolved = time.Now()
	}
	_, err := d.conn.ExecContext(ctx, `
INSERT INTO geocodes (address, lat, lon, label, found, resolvedAt) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(address) DO UPDATE SET
  lat = excluded.lat,
  lon = excluded.lon,
  label = excluded.label,
  found = excluded.found,
  resolvedAt = excluded.resolvedAt
`, geocodeKey(entry.Address), entry.Coordinates.Lat, entry.Coordinates.Lng, entry.Coordinates.Label, boolToInt(entry.Found), resolved.UTC().Format(timeLayout))
	return err
}

func (d *DB) GetGeocode(ctx context.Context, address string) (*GeocodeEntry, error) {
	var (
		entry      GeocodeEntry
		label      sql.NullString
		found      int
		resolvedAt string
	)
	err := d.conn.QueryRowContext(ctx, `SELECT lat, lon, label, found, resolvedAt FROM geocodes WHERE address = ?`, geocodeKey(address)).
		Scan(&entry.Coordinates.Lat, &entry.Coordinates.Lng, &label, &found, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.Address = address
	entry.Coordinates.Label = label.String
	entry.Found = found == 1
	entry.ResolvedAt, _ = time.Parse(timeLayout, resolvedAt)
	return &entry, nil
}

// Lease is process-local for sqlite: the database file is not shared between
// hosts, so an in-memory table is enough.
func (d *DB) Lease(_ context.Context, name string, ttl time.Duration) (func(), bool, error) {
	d.leaseMu.Lock()
	defer d.leaseMu.Unlock()

	now := time.Now()
	if until, held := d.leases[name]; held && now.Before(until) {
		return func() {}, false, nil
	}
	d.leases[name] = now.Add(ttl)

	var once sync.Once
	return func() {
		once.Do(func() {
			d.leaseMu.Lock()
			delete(d.leases, name)
			d.leaseMu.Unlock()
		})
	}, true, nil
}

// geocodeKey folds addresses so trivial spacing and case differences share a
// cache row.
func geocodeKey(address string) string {
	return strings.ToUpper(util.NormalizeSpaces(address))
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

var _ Store = (*DB)(nil)
