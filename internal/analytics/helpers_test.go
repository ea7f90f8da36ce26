package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"reconquest/internal"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func competitorItem(brand, designation, total string) internal.Product {
	p := internal.Product{
		Reference:   "REF-" + brand,
		Designation: designation,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   dec(total),
		TotalPrice:  dec(total),
		Type:        internal.ProductCompetitor,
	}
	if brand != "" {
		p.Competitor = &internal.CompetitorInfo{Brand: brand, Category: "membrane"}
	}
	return p
}

func sopremaItem(designation, total string) internal.Product {
	return internal.Product{
		Reference:   "SOP",
		Designation: designation,
		Quantity:    decimal.NewFromInt(1),
		UnitPrice:   dec(total),
		TotalPrice:  dec(total),
		Type:        internal.ProductSoprema,
	}
}

func invoice(id, number, client, date string, products ...internal.Product) internal.Invoice {
	amount := decimal.Zero
	for _, p := range products {
		amount = amount.Add(p.TotalPrice)
	}
	return internal.Invoice{
		ID:       id,
		Number:   number,
		Date:     date,
		Client:   internal.Client{Name: client, FullName: client, Address: "1 rue de la Paix 75002 Paris"},
		Amount:   amount,
		Products: products,
		Status:   internal.StatusAnalyzed,
	}
}

type fakeGeocoder struct {
	known map[string]internal.Coordinates
	calls int
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) (internal.Coordinates, bool) {
	f.calls++
	c, ok := f.known[address]
	return c, ok
}
