package analytics

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"reconquest/internal"
	"reconquest/internal/util"
)

type brandAccumulator struct {
	total    decimal.Decimal
	invoices map[string]struct{}
}

// CompetitorBrands rolls up every competitor line item by resolved brand.
// Items whose brand cannot be resolved are left out. The result is sorted by
// total descending, then brand ascending.
func CompetitorBrands(invoices []internal.Invoice) []internal.BrandRollup {
	acc := map[string]*brandAccumulator{}
	for _, inv := range invoices {
		key := invoiceKey(inv)
		for _, p := range inv.Products {
			if p.Type != internal.ProductCompetitor {
				continue
			}
			brand := p.ResolveBrand()
			if brand == "" {
				continue
			}
			a, ok := acc[brand]
			if !ok {
				a = &brandAccumulator{invoices: map[string]struct{}{}}
				acc[brand] = a
			}
			a.total = a.total.Add(p.TotalPrice)
			a.invoices[key] = struct{}{}
		}
	}

	out := make([]internal.BrandRollup, 0, len(acc))
	for brand, a := range acc {
		out = append(out, internal.BrandRollup{Brand: brand, Total: a.total, InvoiceCount: len(a.invoices)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Brand < out[j].Brand
	})
	return out
}

// ProductTraceability lists every competitor line item attributed to brand
// with the invoice context needed for an audit trail.
func ProductTraceability(invoices []internal.Invoice, brand string) internal.BrandTraceability {
	result := internal.BrandTraceability{Brand: brand, Entries: []internal.TraceabilityEntry{}}
	if strings.TrimSpace(brand) == "" {
		return result
	}
	for _, inv := range invoices {
		for _, p := range inv.Products {
			if p.Type != internal.ProductCompetitor || !MatchesBrand(p, brand) {
				continue
			}
			result.Entries = append(result.Entries, internal.TraceabilityEntry{
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.Number,
				InvoiceDate:   inv.Date,
				ClientName:    inv.Client.Name,
				Distributor:   inv.Distributor.Name,
				Reference:     p.Reference,
				Designation:   p.Designation,
				Quantity:      p.Quantity,
				UnitPrice:     p.UnitPrice,
				TotalPrice:    p.TotalPrice,
			})
			result.TotalAmount = result.TotalAmount.Add(p.TotalPrice)
		}
	}
	return result
}

// MatchesBrand applies the attribution chain in order: exact competitor
// brand, exact product brand (both trimmed), then a case-insensitive
// substring of the designation. Extraction quality varies, so every step is kept.
func MatchesBrand(p internal.Product, brand string) bool {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return false
	}
	if p.Competitor != nil && strings.TrimSpace(p.Competitor.Brand) == brand {
		return true
	}
	if p.Brand != nil && strings.TrimSpace(*p.Brand) == brand {
		return true
	}
	return util.ContainsFold(p.Designation, brand)
}

func invoiceKey(inv internal.Invoice) string {
	if inv.Number != "" {
		return inv.Number
	}
	return "id:" + inv.ID
}
