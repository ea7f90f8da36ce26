package persistence

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"reconquest/internal"
	"reconquest/internal/analytics"
	"reconquest/internal/util"
)

type demoCustomer struct {
	name    string
	address string
	region  string
}

type demoProduct struct {
	reference   string
	designation string
	brand       string
	category    string
	minPrice    int64
	maxPrice    int64
}

var demoCustomers = []demoCustomer{
	{"Dupont Toitures", "12 rue des Lilas 69003 Lyon", "Auvergne-Rhône-Alpes"},
	{"Etanchéité Martin", "45 avenue Jean Jaurès 31000 Toulouse", "Occitanie"},
	{"Bernard Couverture", "8 quai de la Fosse 44000 Nantes", "Pays de la Loire"},
	{"SARL Petit & Fils", "3 rue Nationale 59000 Lille", "Hauts-de-France"},
	{"Leroy Bâtiment", "21 cours Mirabeau 13100 Aix-en-Provence", "Provence-Alpes-Côte d'Azur"},
	{"Moreau Etanchéité", "17 rue Sainte-Catherine 33000 Bordeaux", "Nouvelle-Aquitaine"},
	{"Garnier Toiture", "5 place Kléber 67000 Strasbourg", "Grand Est"},
	{"Roux Constructions", "30 boulevard de la Liberté 35000 Rennes", "Bretagne"},
}

var demoDistributors = []internal.Distributor{
	{Name: "Point.P", Agency: "Agence Centre"},
	{Name: "Gedimat", Agency: "Agence Nord"},
	{Name: "Big Mat", Agency: "Agence Sud"},
}

var demoCompetitorProducts = []demoProduct{
	{"IKO-AB-PRO", "IKO ARMOURBASE PRO rouleau 15m²", "IKO", "membrane", 60, 110},
	{"SIP-PAR-30", "SIPLAST PARAFOR 30 GS", "SIPLAST", "membrane", 80, 140},
	{"BAU-TEC-K", "BAUDER TEC KSA DUO", "BAUDER", "membrane", 70, 120},
	{"DER-NT-4", "DERBIGUM NT 4mm", "DERBIGUM", "membrane", 90, 150},
	{"AXT-HYR-35", "AXTER HYRENE 35 TS", "AXTER", "membrane", 55, 95},
	{"ICO-EPS-100", "ICOPAL isolant EPS 100mm", "ICOPAL", "isolant", 20, 45},
}

var demoSopremaProducts = []demoProduct{
	{"SOP-ELA-40", "SOPRALENE FLAM 180-40", "SOPREMA", "membrane", 85, 130},
	{"SOP-EFI-80", "EFIGREEN ALU+ 80mm", "SOPREMA", "isolant", 30, 60},
	{"SOP-AQU", "AQUADERE primaire 10L", "SOPREMA", "primaire", 40, 70},
}

var demoStatuses = []internal.InvoiceStatus{
	internal.StatusAnalyzed, internal.StatusAnalyzed, internal.StatusAnalyzed,
	internal.StatusPending, internal.StatusProcessing,
}

// DemoDataset generates n plausible invoices. The same seed always yields the
// same dataset, so a demo deployment looks identical across restarts.
// Potentials follow rules, the same conversion rate imports use.
func DemoDataset(seed int64, n int, rules analytics.Rules) []internal.Invoice {
	if n <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

	out := make([]internal.Invoice, 0, n)
	for i := 0; i < n; i++ {
		customer := demoCustomers[rng.Intn(len(demoCustomers))]
		distributor := demoDistributors[rng.Intn(len(demoDistributors))]
		date := start.AddDate(0, 0, i*7+rng.Intn(5))

		lines := 1 + rng.Intn(4)
		products := make([]internal.Product, 0, lines)
		amount, competitorAmount := decimal.Zero, decimal.Zero
		for l := 0; l < lines; l++ {
			competitor := rng.Intn(3) > 0
			src := demoSopremaProducts
			if competitor {
				src = demoCompetitorProducts
			}
			dp := src[rng.Intn(len(src))]
			qty := decimal.NewFromInt(int64(10 + rng.Intn(190)))
			unit := decimal.NewFromInt(dp.minPrice + rng.Int63n(dp.maxPrice-dp.minPrice+1))
			total := qty.Mul(unit)

			p := internal.Product{
				Reference:           dp.reference,
				Designation:         dp.designation,
				Quantity:            qty,
				UnitPrice:           unit,
				TotalPrice:          total,
				Type:                internal.ProductSoprema,
				VerificationDetails: &internal.VerificationDetails{Confidence: 0.8 + float64(rng.Intn(20))/100},
			}
			if competitor {
				p.Type = internal.ProductCompetitor
				p.Competitor = &internal.CompetitorInfo{Brand: dp.brand, Category: dp.category}
				competitorAmount = competitorAmount.Add(total)
			} else {
				p.Brand = util.StringPtr(dp.brand)
			}
			amount = amount.Add(total)
			products = append(products, p)
		}

		out = append(out, internal.Invoice{
			ID:          fmt.Sprintf("demo-%03d", i+1),
			Number:      fmt.Sprintf("FA-%d-%04d", date.Year(), 1000+i),
			Date:        date.Format(time.DateOnly),
			Client:      internal.Client{Name: customer.name, FullName: customer.name, Address: customer.address},
			Distributor: distributor,
			Amount:      amount,
			Potential:   rules.ReconquestPotential(competitorAmount),
			Products:    products,
			Status:      demoStatuses[rng.Intn(len(demoStatuses))],
			Region:      util.StringPtr(customer.region),
		})
	}
	return out
}
