package analytics

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"reconquest/internal"
	"reconquest/internal/util"
)

const topBrandsPerCustomer = 3

// Geocoder resolves a postal address. ok is false when the address cannot be
// placed; the caller then leaves the profile without coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (internal.Coordinates, bool)
}

type customerGroup struct {
	profile     internal.CustomerProfile
	lastDate    time.Time
	addressDate time.Time
	brands      map[string]decimal.Decimal
}

// CustomerKey folds a client name into the grouping key. It returns "" for
// names that must not produce a customer (blank or extraction placeholders).
func CustomerKey(name string) string {
	if IsExtractionFailureMarker(name) {
		return ""
	}
	return util.NormalizeName(name)
}

// CustomerProfiles builds one profile per distinct customer, sorted by
// reconquest potential descending then name. geocoder may be nil.
func CustomerProfiles(ctx context.Context, invoices []internal.Invoice, rules Rules, geocoder Geocoder) []internal.CustomerProfile {
	groups := map[string]*customerGroup{}
	order := []string{}

	for _, inv := range invoices {
		key := CustomerKey(inv.Client.Name)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &customerGroup{
				profile: internal.CustomerProfile{Name: strings.TrimSpace(inv.Client.Name)},
				brands:  map[string]decimal.Decimal{},
			}
			groups[key] = g
			order = append(order, key)
		}

		g.profile.InvoiceCount++
		if inv.HasPlan() {
			g.profile.HasReconquestPlan = true
		}

		date, dateErr := time.Parse(time.DateOnly, inv.Date)
		if dateErr == nil && date.After(g.lastDate) {
			g.lastDate = date
			g.profile.LastPurchaseDate = inv.Date
		}
		if addr := strings.TrimSpace(inv.Client.Address); addr != "" {
			if g.profile.Address == "" || (dateErr == nil && date.After(g.addressDate)) {
				g.profile.Address = addr
				if dateErr == nil {
					g.addressDate = date
				}
			}
		}

		for _, p := range inv.Products {
			if p.Type != internal.ProductCompetitor {
				continue
			}
			g.profile.CompetitorAmount = g.profile.CompetitorAmount.Add(p.TotalPrice)
			if brand := p.ResolveBrand(); brand != "" {
				g.brands[brand] = g.brands[brand].Add(p.TotalPrice)
			}
		}
	}

	resolved := map[string]*internal.Coordinates{}
	out := make([]internal.CustomerProfile, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		p := g.profile
		p.ReconquestPotential = rules.ReconquestPotential(p.CompetitorAmount)
		p.Priority = rules.ClassifyPriority(p.CompetitorAmount)
		p.TopBrands = topBrands(g.brands, topBrandsPerCustomer)

		if geocoder != nil && p.Address != "" {
			coords, seen := resolved[p.Address]
			if !seen {
				if c, ok := geocoder.Geocode(ctx, p.Address); ok {
					coords = &c
				}
				resolved[p.Address] = coords
			}
			p.Coordinates = coords
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].ReconquestPotential.Cmp(out[j].ReconquestPotential); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CustomerReconquestLocations keeps the profiles that could be placed on a map.
func CustomerReconquestLocations(ctx context.Context, invoices []internal.Invoice, rules Rules, geocoder Geocoder) []internal.CustomerProfile {
	profiles := CustomerProfiles(ctx, invoices, rules, geocoder)
	out := make([]internal.CustomerProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.Coordinates != nil {
			out = append(out, p)
		}
	}
	return out
}

func topBrands(totals map[string]decimal.Decimal, limit int) []string {
	if len(totals) == 0 {
		return nil
	}
	brands := make([]string, 0, len(totals))
	for b := range totals {
		brands = append(brands, b)
	}
	sort.Slice(brands, func(i, j int) bool {
		if c := totals[brands[i]].Cmp(totals[brands[j]]); c != 0 {
			return c > 0
		}
		return brands[i] < brands[j]
	})
	if len(brands) > limit {
		brands = brands[:limit]
	}
	return brands
}
