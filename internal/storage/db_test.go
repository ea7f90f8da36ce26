package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"reconquest/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "reconquest.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	snap, err := db.LoadSnapshot(ctx, "soprema_invoices")
	if err != nil || snap != nil {
		t.Fatalf("expected empty store, got %+v err=%v", snap, err)
	}

	if err := db.SaveSnapshot(ctx, "soprema_invoices", []byte(`{"v":1}`), 1); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveSnapshot(ctx, "soprema_invoices", []byte(`{"v":2}`), 2); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	snap, err = db.LoadSnapshot(ctx, "soprema_invoices")
	if err != nil || snap == nil {
		t.Fatalf("load: %+v err=%v", snap, err)
	}
	if string(snap.Payload) != `{"v":2}` || snap.ItemCount != 2 {
		t.Fatalf("unexpected snapshot: %s items=%d", snap.Payload, snap.ItemCount)
	}
	if time.Since(snap.UpdatedAt) > time.Minute {
		t.Fatalf("updatedAt not recorded: %v", snap.UpdatedAt)
	}

	if err := db.DeleteSnapshot(ctx, "soprema_invoices"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if snap, _ := db.LoadSnapshot(ctx, "soprema_invoices"); snap != nil {
		t.Fatalf("snapshot survived delete")
	}
}

func TestMetadataUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if v, err := db.GetMetadata(ctx, "stats.baseline"); err != nil || v != nil {
		t.Fatalf("expected missing key, got %v err=%v", v, err)
	}
	_ = db.SetMetadata(ctx, "stats.baseline", "a")
	_ = db.SetMetadata(ctx, "stats.baseline", "b")

	v, err := db.GetMetadata(ctx, "stats.baseline")
	if err != nil || v == nil || *v != "b" {
		t.Fatalf("got %v err=%v", v, err)
	}
}

func TestGeocodeCacheFoldsAddress(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.PutGeocode(ctx, GeocodeEntry{
		Address:     "12 rue des Lilas  69003 Lyon",
		Coordinates: internal.Coordinates{Lat: 45.75, Lng: 4.85, Label: "Lyon"},
		Found:       true,
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := db.PutGeocode(ctx, GeocodeEntry{Address: "nowhere", Found: false}); err != nil {
		t.Fatalf("put miss: %v", err)
	}

	hit, err := db.GetGeocode(ctx, "12 RUE DES LILAS 69003 LYON")
	if err != nil || hit == nil {
		t.Fatalf("expected hit, got %v err=%v", hit, err)
	}
	if !hit.Found || hit.Coordinates.Lat != 45.75 || hit.Coordinates.Label != "Lyon" {
		t.Fatalf("unexpected entry: %+v", hit)
	}

	miss, err := db.GetGeocode(ctx, "Nowhere")
	if err != nil || miss == nil || miss.Found {
		t.Fatalf("expected cached miss, got %+v err=%v", miss, err)
	}

	if none, _ := db.GetGeocode(ctx, "unknown"); none != nil {
		t.Fatalf("expected nil for uncached address")
	}
}

func TestLeaseIsExclusiveUntilReleased(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	release, ok, err := db.Lease(ctx, "baseline", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first lease: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := db.Lease(ctx, "baseline", time.Minute); ok {
		t.Fatalf("second lease should be refused")
	}
	release()
	release()
	if _, ok, _ := db.Lease(ctx, "baseline", time.Minute); !ok {
		t.Fatalf("lease not available after release")
	}
}
