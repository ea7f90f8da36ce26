package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconquest/internal"
	"reconquest/internal/analytics"
	"reconquest/internal/metrics"
	"reconquest/internal/repository"
	"reconquest/internal/storage"
	"reconquest/internal/util"
)

type flakyStore struct {
	storage.Store
	failSaves bool
}

func (f *flakyStore) SaveSnapshot(ctx context.Context, key string, payload []byte, n int) error {
	if f.failSaves {
		return errors.New("disk full")
	}
	return f.Store.SaveSnapshot(ctx, key, payload, n)
}

func openStore(t *testing.T, dir string) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(dir, "reconquest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func localOptions() Options {
	return Options{Key: "soprema_invoices", BudgetBytes: 5 * 1024 * 1024, NearRatio: 0.9, LocalDeployment: true}
}

func sampleInvoice(id, date string) internal.Invoice {
	return internal.Invoice{
		ID:     id,
		Number: "FA-" + id,
		Date:   date,
		Client: internal.Client{Name: "Client " + id, Address: "1 rue de la Paix 75002 Paris"},
		Amount: decimal.NewFromInt(500),
		Products: []internal.Product{{
			Reference:   "R",
			Designation: "IKO ARMOURBASE",
			Quantity:    decimal.NewFromInt(5),
			UnitPrice:   decimal.NewFromInt(100),
			TotalPrice:  decimal.NewFromInt(500),
			Type:        internal.ProductCompetitor,
		}},
		Potential: decimal.NewFromInt(350),
		Status:    internal.StatusAnalyzed,
	}
}

func TestWriteThroughSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := repository.New()
	mgr := NewManager(openStore(t, dir), repo, localOptions(), nil, nil)
	res, err := mgr.Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceEmpty, res.Source)

	_, err = repo.AddInvoice(sampleInvoice("a", "2024-01-10"))
	require.NoError(t, err)
	_, err = repo.AddInvoice(sampleInvoice("b", "2024-02-10"))
	require.NoError(t, err)
	repo.RemoveInvoice("a")

	info := mgr.StorageInfo()
	assert.Equal(t, 1, info.ItemCount)
	assert.Equal(t, "sqlite", info.Backend)
	assert.NotEmpty(t, info.LastSavedAt)

	fresh := repository.New()
	res, err = NewManager(openStore(t, dir), fresh, localOptions(), nil, nil).Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceRestored, res.Source)
	assert.Equal(t, 1, fresh.TotalInvoices())
	got, ok := fresh.Get("b")
	require.True(t, ok)
	assert.True(t, got.Potential.Equal(decimal.NewFromInt(350)))
}

func TestNonLocalEmptyStoreBootstrapsDemo(t *testing.T) {
	opts := localOptions()
	opts.LocalDeployment = false
	opts.DemoCount = 12
	opts.DemoSeed = 7

	repo := repository.New()
	res, err := NewManager(openStore(t, t.TempDir()), repo, opts, nil, nil).Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceDemo, res.Source)
	assert.Equal(t, 12, repo.TotalInvoices())
}

func TestLocalEmptyStoreStaysEmpty(t *testing.T) {
	opts := localOptions()
	opts.DemoCount = 12

	repo := repository.New()
	res, err := NewManager(openStore(t, t.TempDir()), repo, opts, nil, nil).Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceEmpty, res.Source)
	assert.Equal(t, 0, repo.TotalInvoices())
}

func TestCorruptSnapshotIsTreatedAsEmpty(t *testing.T) {
	ctx := context.Background()
	db := openStore(t, t.TempDir())
	require.NoError(t, db.SaveSnapshot(ctx, "soprema_invoices", []byte("{not json"), 3))

	opts := localOptions()
	opts.LocalDeployment = false
	opts.DemoCount = 4

	repo := repository.New()
	res, err := NewManager(db, repo, opts, nil, nil).Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceDemo, res.Source)
	assert.Len(t, res.Warnings, 1)
}

func TestOverflowEvictsOldestFromPersistedCopyOnly(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	m := metrics.New()

	one, err := json.Marshal(envelope{Version: envelopeVersion, Invoices: []internal.Invoice{sampleInvoice("x", "2024-01-01")}})
	require.NoError(t, err)

	opts := localOptions()
	opts.BudgetBytes = len(one)*3 + 64

	repo := repository.New()
	mgr := NewManager(openStore(t, dir), repo, opts, m, nil)
	_, err = mgr.Init(ctx)
	require.NoError(t, err)

	batch := []internal.Invoice{}
	for i := 10; i >= 1; i-- {
		batch = append(batch, sampleInvoice(fmt.Sprintf("i%02d", i), fmt.Sprintf("2024-03-%02d", i)))
	}
	require.NoError(t, repo.SetInvoices(batch))

	assert.Equal(t, 10, repo.TotalInvoices())
	info := mgr.StorageInfo()
	assert.True(t, info.Exceeded)
	assert.Greater(t, info.Evicted, 0)
	assert.LessOrEqual(t, info.BytesUsed, opts.BudgetBytes)
	assert.Equal(t, 10, info.MemoryCount)
	assert.Equal(t, float64(info.Evicted), testutil.ToFloat64(m.EvictedInvoices))

	restored := repository.New()
	_, err = NewManager(openStore(t, dir), restored, opts, nil, nil).Init(ctx)
	require.NoError(t, err)
	_, newestKept := restored.Get("i10")
	_, oldestKept := restored.Get("i01")
	assert.True(t, newestKept)
	assert.False(t, oldestKept)
}

func TestNothingFitsSkipsPersisting(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	opts := localOptions()
	opts.BudgetBytes = 10

	repo := repository.New()
	mgr := NewManager(openStore(t, t.TempDir()), repo, opts, m, nil)
	_, err := mgr.Init(ctx)
	require.NoError(t, err)

	_, err = repo.AddInvoice(sampleInvoice("a", "2024-01-01"))
	require.NoError(t, err, "quota problems never reach the mutation")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotSkipped))
	assert.True(t, mgr.StorageInfo().Exceeded)
	assert.Equal(t, 0, mgr.StorageInfo().ItemCount)
}

func TestStoreFailureIsAbsorbedAndRetriedOnTeardown(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	store := &flakyStore{Store: openStore(t, t.TempDir()), failSaves: true}

	repo := repository.New()
	mgr := NewManager(store, repo, localOptions(), m, nil)
	_, err := mgr.Init(ctx)
	require.NoError(t, err)

	_, err = repo.AddInvoice(sampleInvoice("a", "2024-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotFailures))
	assert.Equal(t, "disk full", mgr.StorageInfo().LastWriteErr)

	store.failSaves = false
	require.NoError(t, mgr.Teardown(ctx))
	assert.Empty(t, mgr.StorageInfo().LastWriteErr)
	assert.Equal(t, 1, mgr.StorageInfo().ItemCount)
}

func TestClearRemovesSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openStore(t, t.TempDir())
	repo := repository.New()
	mgr := NewManager(db, repo, localOptions(), nil, nil)
	_, err := mgr.Init(ctx)
	require.NoError(t, err)

	_, err = repo.AddInvoice(sampleInvoice("a", "2024-01-01"))
	require.NoError(t, err)
	repo.ClearAllInvoices()

	snap, err := db.LoadSnapshot(ctx, "soprema_invoices")
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 0, mgr.StorageInfo().BytesUsed)
}

func TestNearLimit(t *testing.T) {
	ctx := context.Background()
	opts := localOptions()
	repo := repository.New()
	mgr := NewManager(openStore(t, t.TempDir()), repo, opts, nil, nil)
	_, err := mgr.Init(ctx)
	require.NoError(t, err)
	_, err = repo.AddInvoice(sampleInvoice("a", "2024-01-01"))
	require.NoError(t, err)
	assert.False(t, mgr.StorageInfo().NearLimit)

	mgr.opts.BudgetBytes = mgr.StorageInfo().BytesUsed + 1
	mgr.info.BudgetBytes = mgr.opts.BudgetBytes
	assert.True(t, mgr.StorageInfo().NearLimit)
}

func TestSnapshotWithOnlyInvalidInvoicesFallsBackToDemo(t *testing.T) {
	ctx := context.Background()
	broken := sampleInvoice("bad", "not-a-date")
	payload, err := encode([]internal.Invoice{broken}, time.Now())
	require.NoError(t, err)

	cases := []struct {
		name   string
		local  bool
		source Source
		total  int
	}{
		{name: "hosted", local: false, source: SourceDemo, total: 5},
		{name: "local", local: true, source: SourceEmpty, total: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := openStore(t, t.TempDir())
			require.NoError(t, db.SaveSnapshot(ctx, "soprema_invoices", payload, 1))

			opts := localOptions()
			opts.LocalDeployment = tc.local
			opts.DemoCount = 5
			opts.Rules = analytics.DefaultRules()
			opts.Rules.ConversionRate = decimal.RequireFromString("0.5")

			repo := repository.New()
			res, err := NewManager(db, repo, opts, nil, nil).Init(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.source, res.Source)
			assert.Equal(t, 1, res.Skipped)
			assert.Equal(t, tc.total, repo.TotalInvoices())

			if tc.source == SourceDemo {
				assert.Equal(t, DemoDataset(0, 5, opts.Rules), repo.Snapshot())
			}
		})
	}
}

func fullInvoice() internal.Invoice {
	plan := json.RawMessage(`{"a":1,"zone":"69"}`)
	return internal.Invoice{
		ID:     "full",
		Number: "FA-2024-0042",
		Date:   "2024-04-18",
		Client: internal.Client{
			Name:     "Toitures Martin",
			FullName: "Toitures Martin SARL",
			Address:  "4 quai Perrache 69002 Lyon",
			Siret:    util.StringPtr("41234567800019"),
			Contact:  util.StringPtr("J. Martin"),
			Phone:    util.StringPtr("04 78 00 00 00"),
		},
		Distributor: internal.Distributor{Name: "Point P", Agency: "Lyon Gerland", Seller: util.StringPtr("C. Roux")},
		Amount:      decimal.RequireFromString("1256.25"),
		Potential:   decimal.RequireFromString("175.88"),
		Products: []internal.Product{
			{
				Reference:   "IKO-AB",
				Designation: "IKO Armourbase 40",
				Quantity:    decimal.RequireFromString("2.5"),
				UnitPrice:   decimal.RequireFromString("100.5"),
				TotalPrice:  decimal.RequireFromString("251.25"),
				Type:        internal.ProductCompetitor,
				Competitor:  &internal.CompetitorInfo{Brand: "IKO", Category: "membrane"},
				VerificationDetails: &internal.VerificationDetails{
					Confidence:   0.93,
					Reclassified: func() *bool { b := true; return &b }(),
				},
			},
			{
				Reference:   "SOP-EL",
				Designation: "Elastophene Flam 25",
				Quantity:    decimal.RequireFromString("10"),
				UnitPrice:   decimal.RequireFromString("100.5"),
				TotalPrice:  decimal.RequireFromString("1005"),
				Type:        internal.ProductSoprema,
				Brand:       util.StringPtr("SOPREMA"),
			},
		},
		Status:         internal.StatusPending,
		Region:         util.StringPtr("Auvergne-Rhône-Alpes"),
		ReconquestPlan: &internal.ReconquestPlan{Kind: internal.PlanCustomer, Raw: plan},
	}
}

// splitMoney zeroes the decimal fields and returns them in a fixed order so
// the remaining fields can be compared structurally.
func splitMoney(inv internal.Invoice) (internal.Invoice, []decimal.Decimal) {
	money := []decimal.Decimal{inv.Amount, inv.Potential}
	inv.Amount, inv.Potential = decimal.Decimal{}, decimal.Decimal{}
	products := make([]internal.Product, len(inv.Products))
	for i, p := range inv.Products {
		money = append(money, p.Quantity, p.UnitPrice, p.TotalPrice)
		p.Quantity, p.UnitPrice, p.TotalPrice = decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}
		products[i] = p
	}
	inv.Products = products
	return inv, money
}

func TestRestoreKeepsEveryField(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := repository.New()
	_, err := NewManager(openStore(t, dir), repo, localOptions(), nil, nil).Init(ctx)
	require.NoError(t, err)
	_, err = repo.AddInvoice(fullInvoice())
	require.NoError(t, err)
	_, err = repo.AddInvoice(sampleInvoice("plain", "2024-01-05"))
	require.NoError(t, err)
	before := repo.Snapshot()

	restored := repository.New()
	res, err := NewManager(openStore(t, dir), restored, localOptions(), nil, nil).Init(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Skipped)
	after := restored.Snapshot()
	require.Len(t, after, len(before))

	for i := range before {
		wantRest, wantMoney := splitMoney(before[i])
		gotRest, gotMoney := splitMoney(after[i])
		assert.Equal(t, wantRest, gotRest, before[i].ID)
		require.Len(t, gotMoney, len(wantMoney))
		for j := range wantMoney {
			assert.True(t, wantMoney[j].Equal(gotMoney[j]), "%s money[%d]: want %s got %s", before[i].ID, j, wantMoney[j], gotMoney[j])
		}
	}
	got, ok := restored.Get("full")
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1,"zone":"69"}`, string(got.ReconquestPlan.Raw))
	assert.Equal(t, "41234567800019", *got.Client.Siret)
}

func TestFlushNeverOverwritesNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	db := openStore(t, t.TempDir())
	repo := repository.New()
	mgr := NewManager(db, repo, localOptions(), nil, nil)
	_, err := mgr.Init(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := repo.AddInvoice(sampleInvoice(fmt.Sprintf("g%d-%02d", g, i), "2024-02-01"))
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			assert.NoError(t, mgr.Flush(ctx))
		}
	}()
	wg.Wait()

	snap, err := db.LoadSnapshot(ctx, "soprema_invoices")
	require.NoError(t, err)
	require.NotNil(t, snap)
	var env envelope
	require.NoError(t, json.Unmarshal(snap.Payload, &env))
	assert.Len(t, env.Invoices, 100)
	assert.Equal(t, 100, repo.TotalInvoices())
}
