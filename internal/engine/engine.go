package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"reconquest/internal"
	"reconquest/internal/analytics"
	"reconquest/internal/config"
	"reconquest/internal/events"
	"reconquest/internal/geocode"
	"reconquest/internal/metrics"
	"reconquest/internal/persistence"
	"reconquest/internal/pipeline"
	"reconquest/internal/repository"
	"reconquest/internal/storage"
)

const BaselineKey = "stats.baseline"

// Deps are the collaborators the engine does not build itself. Store is
// required; the rest default to config-driven or no-op implementations.
type Deps struct {
	Store    storage.Store
	Geocoder analytics.Geocoder
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// Engine owns one invoice repository and every view derived from it.
type Engine struct {
	cfg         config.Config
	rules       analytics.Rules
	repo        *repository.Repository
	persistence *persistence.Manager
	store       storage.Store
	geocoder    analytics.Geocoder
	plans       *events.Bus[internal.PlanRequest]
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

func New(cfg config.Config, deps Deps) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Geocoder == nil {
		deps.Geocoder = geocode.FromConfig(cfg, deps.Store, deps.Metrics, deps.Logger.Named("geocode"))
	}

	repo := repository.New()
	return &Engine{
		cfg:         cfg,
		rules:       analytics.RulesFromConfig(cfg),
		repo:        repo,
		persistence: persistence.NewManager(deps.Store, repo, persistence.OptionsFromConfig(cfg), deps.Metrics, deps.Logger),
		store:       deps.Store,
		geocoder:    deps.Geocoder,
		plans:       events.NewBus[internal.PlanRequest]("plan.requested", deps.Logger.Named("events")),
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		now:         deps.Now,
	}, nil
}

func (e *Engine) Init(ctx context.Context) (persistence.InitResult, error) {
	return e.persistence.Init(ctx)
}

// Teardown flushes pending state. The store stays open; its owner closes it.
func (e *Engine) Teardown(ctx context.Context) error {
	return e.persistence.Teardown(ctx)
}

func (e *Engine) Rules() analytics.Rules { return e.rules }

func (e *Engine) Metrics() *metrics.Metrics { return e.metrics }

func (e *Engine) StorageInfo() internal.StorageInfo {
	return e.persistence.StorageInfo()
}

// Mutations

func (e *Engine) AddInvoice(inv internal.Invoice) (internal.Invoice, error) {
	return e.repo.AddInvoice(inv)
}

func (e *Engine) RemoveInvoice(id string) bool {
	return e.repo.RemoveInvoice(id)
}

func (e *Engine) SetInvoices(list []internal.Invoice) error {
	return e.repo.SetInvoices(list)
}

func (e *Engine) ClearAllInvoices() {
	e.repo.ClearAllInvoices()
}

func (e *Engine) AttachPlan(id string, plan internal.ReconquestPlan) error {
	return e.repo.AttachPlan(id, plan)
}

// Import reads invoices from a file. With replace the file becomes the whole
// collection; otherwise its invoices are appended. Either way the batch is
// applied atomically.
func (e *Engine) Import(path string, replace bool) (pipeline.ImportResult, error) {
	res, err := pipeline.ImportInvoicesFromFile(path, e.rules.ConversionRate)
	if err != nil {
		return res, err
	}
	next := res.Invoices
	if !replace {
		next = append(e.repo.Snapshot(), res.Invoices...)
	}
	if err := e.repo.SetInvoices(next); err != nil {
		return res, err
	}
	e.logger.Info("invoices imported",
		zap.String("path", path),
		zap.Int("imported", len(res.Invoices)),
		zap.Int("skipped_rows", len(res.Skipped)),
		zap.Bool("replace", replace),
	)
	return res, nil
}

// Queries

func (e *Engine) Invoices() []internal.Invoice {
	return e.repo.Snapshot()
}

func (e *Engine) Invoice(id string) (internal.Invoice, bool) {
	return e.repo.Get(id)
}

func (e *Engine) TotalInvoices() int {
	return e.repo.TotalInvoices()
}

func (e *Engine) TotalPotential() decimal.Decimal {
	return e.repo.TotalPotential()
}

func (e *Engine) CompetitorBrands() []internal.BrandRollup {
	return analytics.CompetitorBrands(e.repo.Snapshot())
}

func (e *Engine) ProductTraceability(brand string) internal.BrandTraceability {
	return analytics.ProductTraceability(e.repo.Snapshot(), brand)
}

func (e *Engine) CustomerProfiles(ctx context.Context) []internal.CustomerProfile {
	return analytics.CustomerProfiles(ctx, e.repo.Snapshot(), e.rules, e.geocoder)
}

func (e *Engine) CustomerReconquestLocations(ctx context.Context) []internal.CustomerProfile {
	return analytics.CustomerReconquestLocations(ctx, e.repo.Snapshot(), e.rules, e.geocoder)
}

// DashboardStats compares the current metrics with the recorded baseline. An
// unreadable baseline is logged and the stats are computed without one.
func (e *Engine) DashboardStats(ctx context.Context) internal.DashboardStats {
	baseline, err := e.Baseline(ctx)
	if err != nil {
		e.logger.Warn("stats baseline unavailable", zap.Error(err))
	}
	return analytics.ComputeStats(e.repo.Snapshot(), baseline)
}

func (e *Engine) Baseline(ctx context.Context) (*internal.StatsBaseline, error) {
	raw, err := e.store.GetMetadata(ctx, BaselineKey)
	if err != nil || raw == nil {
		return nil, err
	}
	var b internal.StatsBaseline
	if err := json.Unmarshal([]byte(*raw), &b); err != nil {
		return nil, fmt.Errorf("decode %s: %w", BaselineKey, err)
	}
	return &b, nil
}

// RecordBaseline stores the current metrics as the reference for future
// trends.
func (e *Engine) RecordBaseline(ctx context.Context) (internal.StatsBaseline, error) {
	stats := analytics.ComputeStats(e.repo.Snapshot(), nil)
	b := analytics.BaselineFrom(stats, e.now())
	raw, err := json.Marshal(b)
	if err != nil {
		return b, err
	}
	if err := e.store.SetMetadata(ctx, BaselineKey, string(raw)); err != nil {
		return b, fmt.Errorf("store baseline: %w", err)
	}
	e.logger.Info("stats baseline recorded",
		zap.Float64("invoices", b.InvoicesAnalyzed),
		zap.Float64("clients", b.ClientsIdentified),
		zap.Float64("potential", b.BusinessPotential),
	)
	return b, nil
}

// Report gathers the export view in one pass over a single snapshot.
func (e *Engine) Report(ctx context.Context) pipeline.Report {
	snapshot := e.repo.Snapshot()
	baseline, err := e.Baseline(ctx)
	if err != nil {
		e.logger.Warn("stats baseline unavailable", zap.Error(err))
	}
	return pipeline.Report{
		GeneratedAt: e.now(),
		Stats:       analytics.ComputeStats(snapshot, baseline),
		Brands:      analytics.CompetitorBrands(snapshot),
		Customers:   analytics.CustomerProfiles(ctx, snapshot, e.rules, e.geocoder),
	}
}

// Plans

func (e *Engine) SubscribePlans(h events.Handler[internal.PlanRequest]) func() {
	return e.plans.Subscribe(h)
}

// FindPlan resolves subject as an invoice id first, then as a customer name,
// in which case the plan of that customer's most recent planned invoice wins.
func (e *Engine) FindPlan(subject string) (internal.PlanRequest, error) {
	subject = strings.TrimSpace(subject)
	if inv, ok := e.repo.Get(subject); ok {
		if !inv.HasPlan() {
			return internal.PlanRequest{}, fmt.Errorf("invoice %s has no plan: %w", subject, internal.ErrNotFound)
		}
		return internal.PlanRequest{Plan: *inv.ReconquestPlan, SubjectID: inv.ID, SubjectLabel: inv.Number}, nil
	}

	key := analytics.CustomerKey(subject)
	if key == "" {
		return internal.PlanRequest{}, internal.ErrNotFound
	}
	var latest *internal.Invoice
	for _, inv := range e.repo.Snapshot() {
		if !inv.HasPlan() || analytics.CustomerKey(inv.Client.Name) != key {
			continue
		}
		if latest == nil || inv.Date > latest.Date {
			inv := inv
			latest = &inv
		}
	}
	if latest == nil {
		return internal.PlanRequest{}, internal.ErrNotFound
	}
	return internal.PlanRequest{Plan: *latest.ReconquestPlan, SubjectID: latest.ID, SubjectLabel: latest.Client.Name}, nil
}

// RequestPlan broadcasts the plan for subject to plan subscribers.
func (e *Engine) RequestPlan(ctx context.Context, subject string) (internal.PlanRequest, int, error) {
	req, err := e.FindPlan(subject)
	if err != nil {
		return req, 0, err
	}
	delivered := e.plans.Publish(ctx, req)
	e.metrics.PlanRequests.Inc()
	return req, delivered, nil
}
