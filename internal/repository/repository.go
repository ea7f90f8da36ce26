package repository

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"reconquest/internal"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeReplaced ChangeKind = "replaced"
	ChangeCleared  ChangeKind = "cleared"
	ChangeUpdated  ChangeKind = "updated"
)

// Change is delivered to observers after a mutation has been applied.
// Snapshot is a private copy of the full collection at that point.
type Change struct {
	Kind     ChangeKind
	IDs      []string
	Snapshot []internal.Invoice
}

type Observer func(Change)

// Repository owns the canonical invoice collection. Readers take a shared
// lock and never wait on observers; mutations and their observer calls are
// serialized so one write-through never interleaves with another mutation.
type Repository struct {
	mu       sync.RWMutex
	invoices []internal.Invoice
	index    map[string]int

	writeMu   sync.Mutex
	observers []Observer

	validator *Validator
	newID     func() string
}

type Option func(*Repository)

func WithIDGenerator(fn func() string) Option {
	return func(r *Repository) { r.newID = fn }
}

func New(opts ...Option) *Repository {
	r := &Repository{
		index:     map[string]int{},
		validator: NewValidator(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers an observer called after every accepted mutation.
func (r *Repository) OnChange(fn Observer) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.observers = append(r.observers, fn)
}

// AddInvoice inserts inv. An empty id is replaced by a generated one; an id
// already present is rejected with DuplicateIDError.
func (r *Repository) AddInvoice(inv internal.Invoice) (internal.Invoice, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	inv = cloneInvoice(inv)
	inv.ID = strings.TrimSpace(inv.ID)
	if inv.ID == "" {
		inv.ID = r.newID()
	}
	if err := r.validator.Validate(inv); err != nil {
		return internal.Invoice{}, err
	}

	r.mu.Lock()
	if _, exists := r.index[inv.ID]; exists {
		r.mu.Unlock()
		return internal.Invoice{}, &internal.DuplicateIDError{ID: inv.ID}
	}
	r.index[inv.ID] = len(r.invoices)
	r.invoices = append(r.invoices, inv)
	r.mu.Unlock()

	r.notify(ChangeAdded, inv.ID)
	return cloneInvoice(inv), nil
}

// RemoveInvoice deletes the invoice with id. Removing an absent id is a no-op
// and reports false.
func (r *Repository) RemoveInvoice(id string) bool {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	pos, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.invoices = append(r.invoices[:pos], r.invoices[pos+1:]...)
	r.reindex()
	r.mu.Unlock()

	r.notify(ChangeRemoved, id)
	return true
}

// SetInvoices replaces the whole collection. The batch is validated first and
// rejected as a whole on the first invalid or duplicate record.
func (r *Repository) SetInvoices(list []internal.Invoice) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next, err := r.prepareBatch(list)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.invoices = next
	r.reindex()
	r.mu.Unlock()

	ids := make([]string, 0, len(next))
	for _, inv := range next {
		ids = append(ids, inv.ID)
	}
	r.notify(ChangeReplaced, ids...)
	return nil
}

// Restore loads a persisted collection without notifying observers. Records
// that no longer validate or repeat an id are dropped and counted.
func (r *Repository) Restore(list []internal.Invoice) (skipped int) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := make([]internal.Invoice, 0, len(list))
	seen := map[string]struct{}{}
	for _, inv := range list {
		inv = cloneInvoice(inv)
		if _, dup := seen[inv.ID]; dup || inv.ID == "" {
			skipped++
			continue
		}
		if err := r.validator.Validate(inv); err != nil {
			skipped++
			continue
		}
		seen[inv.ID] = struct{}{}
		next = append(next, inv)
	}

	r.mu.Lock()
	r.invoices = next
	r.reindex()
	r.mu.Unlock()
	return skipped
}

func (r *Repository) ClearAllInvoices() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	r.invoices = nil
	r.index = map[string]int{}
	r.mu.Unlock()

	r.notify(ChangeCleared)
}

// AttachPlan stores an opaque plan payload on an existing invoice.
func (r *Repository) AttachPlan(id string, plan internal.ReconquestPlan) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	pos, ok := r.index[id]
	if !ok {
		r.mu.Unlock()
		return internal.ErrNotFound
	}
	updated := cloneInvoice(r.invoices[pos])
	p := clonePlan(&plan)
	updated.ReconquestPlan = p
	if err := r.validator.Validate(updated); err != nil {
		r.mu.Unlock()
		return err
	}
	r.invoices[pos] = updated
	r.mu.Unlock()

	r.notify(ChangeUpdated, id)
	return nil
}

// Locked runs fn with a private snapshot while holding the mutation lock, so
// no mutation or observer call runs until fn returns.
func (r *Repository) Locked(fn func(snapshot []internal.Invoice)) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	fn(r.Snapshot())
}

func (r *Repository) Get(id string) (internal.Invoice, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.index[id]
	if !ok {
		return internal.Invoice{}, false
	}
	return cloneInvoice(r.invoices[pos]), true
}

// Snapshot returns a deep copy of the collection in insertion order.
func (r *Repository) Snapshot() []internal.Invoice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneInvoices(r.invoices)
}

func (r *Repository) TotalInvoices() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.invoices)
}

func (r *Repository) TotalPotential() decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := decimal.Zero
	for _, inv := range r.invoices {
		total = total.Add(inv.Potential)
	}
	return total
}

func (r *Repository) prepareBatch(list []internal.Invoice) ([]internal.Invoice, error) {
	next := make([]internal.Invoice, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, inv := range list {
		inv = cloneInvoice(inv)
		inv.ID = strings.TrimSpace(inv.ID)
		if inv.ID == "" {
			inv.ID = r.newID()
		}
		if _, dup := seen[inv.ID]; dup {
			return nil, &internal.DuplicateIDError{ID: inv.ID}
		}
		if err := r.validator.Validate(inv); err != nil {
			return nil, err
		}
		seen[inv.ID] = struct{}{}
		next = append(next, inv)
	}
	return next, nil
}

// reindex must be called with mu held for writing.
func (r *Repository) reindex() {
	r.index = make(map[string]int, len(r.invoices))
	for i, inv := range r.invoices {
		r.index[inv.ID] = i
	}
}

// notify must be called with writeMu held and mu released.
func (r *Repository) notify(kind ChangeKind, ids ...string) {
	if len(r.observers) == 0 {
		return
	}
	for _, fn := range r.observers {
		fn(Change{Kind: kind, IDs: ids, Snapshot: r.Snapshot()})
	}
}
