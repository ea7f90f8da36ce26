package repository

import (
	"encoding/json"

	"reconquest/internal"
)

func cloneInvoices(in []internal.Invoice) []internal.Invoice {
	out := make([]internal.Invoice, len(in))
	for i, inv := range in {
		out[i] = cloneInvoice(inv)
	}
	return out
}

func cloneInvoice(inv internal.Invoice) internal.Invoice {
	out := inv
	out.Client.Siret = cloneString(inv.Client.Siret)
	out.Client.Contact = cloneString(inv.Client.Contact)
	out.Client.Phone = cloneString(inv.Client.Phone)
	out.Distributor.Seller = cloneString(inv.Distributor.Seller)
	out.Region = cloneString(inv.Region)
	out.ReconquestPlan = clonePlan(inv.ReconquestPlan)
	if inv.Products != nil {
		out.Products = make([]internal.Product, len(inv.Products))
		for i, p := range inv.Products {
			out.Products[i] = cloneProduct(p)
		}
	}
	return out
}

func cloneProduct(p internal.Product) internal.Product {
	out := p
	out.Brand = cloneString(p.Brand)
	if p.Competitor != nil {
		c := *p.Competitor
		out.Competitor = &c
	}
	if p.VerificationDetails != nil {
		v := *p.VerificationDetails
		if v.Reclassified != nil {
			r := *v.Reclassified
			v.Reclassified = &r
		}
		out.VerificationDetails = &v
	}
	return out
}

func clonePlan(p *internal.ReconquestPlan) *internal.ReconquestPlan {
	if p == nil {
		return nil
	}
	out := internal.ReconquestPlan{Kind: p.Kind}
	if p.Raw != nil {
		out.Raw = append(json.RawMessage(nil), p.Raw...)
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
