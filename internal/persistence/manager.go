package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/analytics"
	"reconquest/internal/config"
	"reconquest/internal/metrics"
	"reconquest/internal/repository"
	"reconquest/internal/storage"
)

const envelopeVersion = 1

type envelope struct {
	Version  int                `json:"version"`
	SavedAt  time.Time          `json:"savedAt"`
	Invoices []internal.Invoice `json:"invoices"`
}

type Options struct {
	Key             string
	BudgetBytes     int
	NearRatio       float64
	LocalDeployment bool
	DemoCount       int
	DemoSeed        int64
	Rules           analytics.Rules
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Key:             cfg.StorageKey,
		BudgetBytes:     cfg.StorageBudget,
		NearRatio:       cfg.StorageNearRatio,
		LocalDeployment: cfg.IsLocalDeployment(),
		DemoCount:       cfg.DemoInvoiceCount,
		DemoSeed:        cfg.DemoSeed,
		Rules:           analytics.RulesFromConfig(cfg),
	}
}

type Source string

const (
	SourceRestored Source = "restored"
	SourceDemo     Source = "demo"
	SourceEmpty    Source = "empty"
)

type InitResult struct {
	Source   Source
	Loaded   int
	Skipped  int
	Warnings []string
}

// Manager keeps the repository and durable storage in step. Write failures
// and budget overflows are absorbed here: memory stays authoritative and the
// mutation that triggered the write always succeeds.
type Manager struct {
	store   storage.Store
	repo    *repository.Repository
	opts    Options
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	info     internal.StorageInfo
	dirty    bool
	attached bool
}

func NewManager(store storage.Store, repo *repository.Repository, opts Options, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	if opts.Rules.ConversionRate.IsZero() && opts.Rules.HighThreshold.IsZero() {
		opts.Rules = analytics.DefaultRules()
	}
	return &Manager{
		store:   store,
		repo:    repo,
		opts:    opts,
		metrics: m,
		logger:  logger.Named("persistence"),
		now:     time.Now,
		info: internal.StorageInfo{
			Backend:     store.Backend(),
			Key:         opts.Key,
			BudgetBytes: opts.BudgetBytes,
		},
	}
}

// Init restores the persisted collection or, when nothing usable is stored
// in a non-local deployment, loads the demo dataset. It then starts writing
// every accepted mutation through to the store. Unreadable snapshots are
// treated as empty.
func (m *Manager) Init(ctx context.Context) (InitResult, error) {
	result := InitResult{Source: SourceEmpty}

	invoices, err := m.load(ctx)
	if err != nil {
		m.logger.Warn("persisted snapshot unusable, starting empty", zap.String("key", m.opts.Key), zap.Error(err))
		result.Warnings = append(result.Warnings, err.Error())
	}

	if len(invoices) > 0 {
		result.Skipped = m.repo.Restore(invoices)
		result.Loaded = len(invoices) - result.Skipped
		if result.Skipped > 0 {
			m.logger.Warn("dropped invalid persisted invoices", zap.Int("skipped", result.Skipped))
		}
		if result.Loaded > 0 {
			result.Source = SourceRestored
		}
	}

	// keyed on what survived Restore
	if m.repo.TotalInvoices() == 0 && !m.opts.LocalDeployment && m.opts.DemoCount > 0 {
		demo := DemoDataset(m.opts.DemoSeed, m.opts.DemoCount, m.opts.Rules)
		if err := m.repo.SetInvoices(demo); err != nil {
			return result, fmt.Errorf("load demo dataset: %w", err)
		}
		result.Loaded = len(demo)
		result.Source = SourceDemo
	}

	m.metrics.RepositorySize.Set(float64(m.repo.TotalInvoices()))
	m.attach()

	m.logger.Info("repository initialized",
		zap.String("source", string(result.Source)),
		zap.Int("invoices", result.Loaded),
		zap.String("backend", m.store.Backend()),
	)
	return result, nil
}

func (m *Manager) attach() {
	m.mu.Lock()
	if m.attached {
		m.mu.Unlock()
		return
	}
	m.attached = true
	m.mu.Unlock()

	m.repo.OnChange(func(c repository.Change) {
		m.metrics.RepositorySize.Set(float64(len(c.Snapshot)))
		_ = m.persist(context.Background(), c.Snapshot)
	})
}

func (m *Manager) load(ctx context.Context) ([]internal.Invoice, error) {
	snap, err := m.store.LoadSnapshot(ctx, m.opts.Key)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap == nil || len(snap.Payload) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(snap.Payload, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version > envelopeVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", env.Version, envelopeVersion)
	}

	m.mu.Lock()
	m.info.BytesUsed = len(snap.Payload)
	m.info.ItemCount = len(env.Invoices)
	if !snap.UpdatedAt.IsZero() {
		m.info.LastSavedAt = snap.UpdatedAt.UTC().Format(time.RFC3339)
	}
	m.mu.Unlock()
	return env.Invoices, nil
}

// Flush persists the current repository content immediately. It holds the
// repository's write lock, so it cannot store a snapshot older than one an
// observer is writing concurrently. It must not be called from an observer.
func (m *Manager) Flush(ctx context.Context) error {
	var err error
	m.repo.Locked(func(snapshot []internal.Invoice) {
		err = m.persist(ctx, snapshot)
	})
	return err
}

// Teardown retries the last write if it did not reach the store.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	dirty := m.dirty
	m.mu.Unlock()
	if !dirty {
		return nil
	}
	return m.Flush(ctx)
}

func (m *Manager) StorageInfo() internal.StorageInfo {
	m.mu.Lock()
	info := m.info
	m.mu.Unlock()

	info.MemoryCount = m.repo.TotalInvoices()
	if info.BudgetBytes > 0 {
		info.NearLimit = float64(info.BytesUsed) >= m.opts.NearRatio*float64(info.BudgetBytes)
	}
	return info
}

func (m *Manager) persist(ctx context.Context, invoices []internal.Invoice) error {
	if len(invoices) == 0 {
		return m.clear(ctx)
	}

	payload, kept, err := m.fit(invoices)
	evicted := len(invoices) - kept

	var quota *internal.StorageQuotaError
	if errors.As(err, &quota) {
		m.metrics.QuotaEvents.Inc()
		m.metrics.SnapshotSkipped.Inc()
		m.logger.Warn("snapshot skipped, nothing fits the storage budget",
			zap.Int("invoices", len(invoices)), zap.Int("needed", quota.Needed), zap.Int("budget", quota.Budget))
		m.mu.Lock()
		m.info.Exceeded = true
		m.info.Evicted = len(invoices)
		m.dirty = false
		m.mu.Unlock()
		return err
	}
	if err != nil {
		return m.recordFailure(err)
	}

	if evicted > 0 {
		m.metrics.QuotaEvents.Inc()
		m.metrics.EvictedInvoices.Add(float64(evicted))
		m.logger.Warn("storage budget exceeded, oldest invoices left out of snapshot",
			zap.Int("evicted", evicted), zap.Int("kept", kept), zap.Int("budget", m.opts.BudgetBytes))
	}

	if err := m.store.SaveSnapshot(ctx, m.opts.Key, payload, kept); err != nil {
		return m.recordFailure(err)
	}

	m.metrics.SnapshotWrites.Inc()
	m.metrics.PersistedBytes.Set(float64(len(payload)))
	m.mu.Lock()
	m.info.BytesUsed = len(payload)
	m.info.ItemCount = kept
	m.info.Evicted = evicted
	m.info.Exceeded = evicted > 0
	m.info.LastSavedAt = m.now().UTC().Format(time.RFC3339)
	m.info.LastWriteErr = ""
	m.dirty = false
	m.mu.Unlock()
	return nil
}

func (m *Manager) clear(ctx context.Context) error {
	if err := m.store.DeleteSnapshot(ctx, m.opts.Key); err != nil {
		return m.recordFailure(err)
	}
	m.metrics.SnapshotWrites.Inc()
	m.metrics.PersistedBytes.Set(0)
	m.mu.Lock()
	m.info.BytesUsed = 0
	m.info.ItemCount = 0
	m.info.Evicted = 0
	m.info.Exceeded = false
	m.info.LastSavedAt = m.now().UTC().Format(time.RFC3339)
	m.info.LastWriteErr = ""
	m.dirty = false
	m.mu.Unlock()
	return nil
}

func (m *Manager) recordFailure(err error) error {
	m.metrics.SnapshotFailures.Inc()
	m.logger.Error("snapshot write failed", zap.String("key", m.opts.Key), zap.Error(err))
	m.mu.Lock()
	m.info.LastWriteErr = err.Error()
	m.dirty = true
	m.mu.Unlock()
	return err
}

// fit encodes invoices, evicting the oldest ones (date, then number) until
// the payload fits the budget. At least one invoice must survive; otherwise
// a StorageQuotaError is returned.
func (m *Manager) fit(invoices []internal.Invoice) ([]byte, int, error) {
	savedAt := m.now().UTC()
	full, err := encode(invoices, savedAt)
	if err != nil {
		return nil, 0, err
	}
	budget := m.opts.BudgetBytes
	if budget <= 0 || len(full) <= budget {
		return full, len(invoices), nil
	}

	oldest := evictionOrder(invoices)
	encodeWithout := func(k int) ([]byte, error) {
		drop := make(map[string]struct{}, k)
		for _, id := range oldest[:k] {
			drop[id] = struct{}{}
		}
		kept := make([]internal.Invoice, 0, len(invoices)-k)
		for _, inv := range invoices {
			if _, skip := drop[inv.ID]; !skip {
				kept = append(kept, inv)
			}
		}
		return encode(kept, savedAt)
	}

	// payload size shrinks monotonically as more invoices are dropped
	lo, hi := 1, len(invoices)-1
	var best []byte
	bestK := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		payload, err := encodeWithout(mid)
		if err != nil {
			return nil, 0, err
		}
		if len(payload) <= budget {
			best, bestK = payload, mid
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	if bestK < 0 {
		return nil, 0, &internal.StorageQuotaError{Needed: len(full), Budget: budget}
	}
	return best, len(invoices) - bestK, nil
}

func encode(invoices []internal.Invoice, savedAt time.Time) ([]byte, error) {
	return json.Marshal(envelope{Version: envelopeVersion, SavedAt: savedAt, Invoices: invoices})
}

func evictionOrder(invoices []internal.Invoice) []string {
	sorted := make([]internal.Invoice, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].Number < sorted[j].Number
	})
	ids := make([]string, len(sorted))
	for i, inv := range sorted {
		ids[i] = inv.ID
	}
	return ids
}
