package internal

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"reconquest/internal/util"
)

type InvoiceStatus string

const (
	StatusAnalyzed   InvoiceStatus = "analyzed"
	StatusPending    InvoiceStatus = "pending"
	StatusProcessing InvoiceStatus = "processing"
)

type ProductType string

const (
	ProductCompetitor ProductType = "competitor"
	ProductSoprema    ProductType = "soprema"
)

type PlanKind string

const (
	PlanCustomer PlanKind = "customerPlan"
	PlanRegion   PlanKind = "regionPlan"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
)

type Client struct {
	Name     string  `json:"name" validate:"required"`
	FullName string  `json:"fullName"`
	Address  string  `json:"address"`
	Siret    *string `json:"siret,omitempty"`
	Contact  *string `json:"contact,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

type Distributor struct {
	Name   string  `json:"name"`
	Agency string  `json:"agency"`
	Seller *string `json:"seller,omitempty"`
}

type CompetitorInfo struct {
	Brand    string `json:"brand"`
	Category string `json:"category"`
}

type VerificationDetails struct {
	Confidence   float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reclassified *bool   `json:"reclassified,omitempty"`
}

type Product struct {
	Reference           string               `json:"reference"`
	Designation         string               `json:"designation"`
	Quantity            decimal.Decimal      `json:"quantity" validate:"gt=0"`
	UnitPrice           decimal.Decimal      `json:"unitPrice" validate:"gte=0"`
	TotalPrice          decimal.Decimal      `json:"totalPrice" validate:"gte=0"`
	Type                ProductType          `json:"type" validate:"oneof=competitor soprema"`
	Brand               *string              `json:"brand,omitempty"`
	Competitor          *CompetitorInfo      `json:"competitor,omitempty"`
	VerificationDetails *VerificationDetails `json:"verificationDetails,omitempty"`
}

// ResolveBrand follows competitor.brand, then brand, then the first usable
// token of the designation. An empty result means the brand is unknown.
func (p Product) ResolveBrand() string {
	if p.Competitor != nil && strings.TrimSpace(p.Competitor.Brand) != "" {
		return strings.TrimSpace(p.Competitor.Brand)
	}
	if p.Brand != nil && strings.TrimSpace(*p.Brand) != "" {
		return strings.TrimSpace(*p.Brand)
	}
	return util.BrandToken(p.Designation)
}

// ReconquestPlan is stored as produced upstream; only Kind is inspected.
type ReconquestPlan struct {
	Kind PlanKind        `json:"kind" validate:"oneof=customerPlan regionPlan"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

type Invoice struct {
	ID             string          `json:"id"`
	Number         string          `json:"number" validate:"required"`
	Date           string          `json:"date" validate:"required,datetime=2006-01-02"`
	Client         Client          `json:"client"`
	Distributor    Distributor     `json:"distributor"`
	Amount         decimal.Decimal `json:"amount" validate:"gte=0"`
	Potential      decimal.Decimal `json:"potential" validate:"gte=0"`
	Products       []Product       `json:"products" validate:"dive"`
	Status         InvoiceStatus   `json:"status" validate:"oneof=analyzed pending processing"`
	Region         *string         `json:"region,omitempty"`
	ReconquestPlan *ReconquestPlan `json:"reconquestPlan,omitempty"`
}

func (inv Invoice) HasPlan() bool {
	return inv.ReconquestPlan != nil
}

type Coordinates struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label,omitempty"`
}

type CustomerProfile struct {
	Name                string          `json:"name"`
	Address             string          `json:"address"`
	InvoiceCount        int             `json:"invoiceCount"`
	CompetitorAmount    decimal.Decimal `json:"competitorAmount"`
	ReconquestPotential decimal.Decimal `json:"reconquestPotential"`
	Priority            Priority        `json:"priority"`
	LastPurchaseDate    string          `json:"lastPurchaseDate,omitempty"`
	Coordinates         *Coordinates    `json:"coordinates,omitempty"`
	HasReconquestPlan   bool            `json:"hasReconquestPlan"`
	TopBrands           []string        `json:"topBrands,omitempty"`
}

type BrandRollup struct {
	Brand        string          `json:"brand"`
	Total        decimal.Decimal `json:"total"`
	InvoiceCount int             `json:"invoiceCount"`
}

type TraceabilityEntry struct {
	InvoiceID     string          `json:"invoiceId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	InvoiceDate   string          `json:"invoiceDate"`
	ClientName    string          `json:"clientName"`
	Distributor   string          `json:"distributor"`
	Reference     string          `json:"reference"`
	Designation   string          `json:"designation"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

type BrandTraceability struct {
	Brand       string              `json:"brand"`
	Entries     []TraceabilityEntry `json:"entries"`
	TotalAmount decimal.Decimal     `json:"totalAmount"`
}

type Metric struct {
	Value          float64        `json:"value"`
	Trend          float64        `json:"trend"`
	TrendDirection TrendDirection `json:"trendDirection"`
}

type DashboardStats struct {
	InvoicesAnalyzed  Metric `json:"invoicesAnalyzed"`
	ClientsIdentified Metric `json:"clientsIdentified"`
	BusinessPotential Metric `json:"businessPotential"`
}

// StatsBaseline is the prior observation the trends are computed against.
type StatsBaseline struct {
	InvoicesAnalyzed  float64 `json:"invoicesAnalyzed"`
	ClientsIdentified float64 `json:"clientsIdentified"`
	BusinessPotential float64 `json:"businessPotential"`
	RecordedAt        string  `json:"recordedAt"`
}

type StorageInfo struct {
	Backend      string `json:"backend"`
	Key          string `json:"key"`
	BytesUsed    int    `json:"bytesUsed"`
	BudgetBytes  int    `json:"budgetBytes"`
	ItemCount    int    `json:"itemCount"`
	MemoryCount  int    `json:"memoryCount"`
	Evicted      int    `json:"evicted"`
	NearLimit    bool   `json:"nearLimit"`
	Exceeded     bool   `json:"exceeded"`
	LastSavedAt  string `json:"lastSavedAt,omitempty"`
	LastWriteErr string `json:"lastWriteError,omitempty"`
}

type PlanRequest struct {
	Plan         ReconquestPlan `json:"plan"`
	SubjectID    string         `json:"subjectId"`
	SubjectLabel string         `json:"subjectLabel"`
}
