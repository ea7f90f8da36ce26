package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"reconquest/internal"
)

func TotalPotential(invoices []internal.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Potential)
	}
	return total
}

// CountClients counts distinct customers with the same exclusion rule as
// the locator.
func CountClients(invoices []internal.Invoice) int {
	seen := map[string]struct{}{}
	for _, inv := range invoices {
		if key := CustomerKey(inv.Client.Name); key != "" {
			seen[key] = struct{}{}
		}
	}
	return len(seen)
}

// ComputeStats derives the dashboard metrics. baseline is the previous
// observation; without one every trend is 0 and up.
func ComputeStats(invoices []internal.Invoice, baseline *internal.StatsBaseline) internal.DashboardStats {
	invoicesAnalyzed := float64(len(invoices))
	clients := float64(CountClients(invoices))
	potential := TotalPotential(invoices).InexactFloat64()

	stats := internal.DashboardStats{
		InvoicesAnalyzed:  internal.Metric{Value: invoicesAnalyzed, TrendDirection: internal.TrendUp},
		ClientsIdentified: internal.Metric{Value: clients, TrendDirection: internal.TrendUp},
		BusinessPotential: internal.Metric{Value: potential, TrendDirection: internal.TrendUp},
	}
	if baseline == nil {
		return stats
	}
	stats.InvoicesAnalyzed.Trend, stats.InvoicesAnalyzed.TrendDirection = Trend(invoicesAnalyzed, baseline.InvoicesAnalyzed)
	stats.ClientsIdentified.Trend, stats.ClientsIdentified.TrendDirection = Trend(clients, baseline.ClientsIdentified)
	stats.BusinessPotential.Trend, stats.BusinessPotential.TrendDirection = Trend(potential, baseline.BusinessPotential)
	return stats
}

// Trend returns the unrounded percentage change from previous; display
// rounding belongs to the caller.
// A zero previous value yields 0 when nothing changed and 100 otherwise.
func Trend(current, previous float64) (float64, internal.TrendDirection) {
	direction := internal.TrendUp
	if current < previous {
		direction = internal.TrendDown
	}
	if previous == 0 {
		if current == 0 {
			return 0, direction
		}
		return 100, direction
	}
	return (current - previous) / previous * 100, direction
}

func BaselineFrom(stats internal.DashboardStats, at time.Time) internal.StatsBaseline {
	return internal.StatsBaseline{
		InvoicesAnalyzed:  stats.InvoicesAnalyzed.Value,
		ClientsIdentified: stats.ClientsIdentified.Value,
		BusinessPotential: stats.BusinessPotential.Value,
		RecordedAt:        at.UTC().Format(time.RFC3339),
	}
}
