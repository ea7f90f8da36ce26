package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reconquest/internal"
)

func TestComputeStatsWithoutBaseline(t *testing.T) {
	a := invoice("1", "F-1", "Dupont SARL", "2024-01-01", competitorItem("IKO", "x", "100"))
	a.Potential = dec("70")
	b := invoice("2", "F-2", "Document PDF - conversion échouée", "2024-01-01", competitorItem("IKO", "x", "100"))
	b.Potential = dec("30.5")
	c := invoice("3", "F-3", "dupont sarl", "2024-01-01")

	stats := ComputeStats([]internal.Invoice{a, b, c}, nil)
	assert.Equal(t, 3.0, stats.InvoicesAnalyzed.Value)
	assert.Equal(t, 1.0, stats.ClientsIdentified.Value)
	assert.Equal(t, 100.5, stats.BusinessPotential.Value)
	for _, m := range []internal.Metric{stats.InvoicesAnalyzed, stats.ClientsIdentified, stats.BusinessPotential} {
		assert.Zero(t, m.Trend)
		assert.Equal(t, internal.TrendUp, m.TrendDirection)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(nil, nil)
	assert.Zero(t, stats.InvoicesAnalyzed.Value)
	assert.Zero(t, stats.BusinessPotential.Value)
	assert.True(t, TotalPotential(nil).IsZero())
}

func TestComputeStatsWithBaseline(t *testing.T) {
	a := invoice("1", "F-1", "Dupont SARL", "2024-01-01")
	a.Potential = dec("1500")
	b := invoice("2", "F-2", "Martin BTP", "2024-01-01")

	baseline := &internal.StatsBaseline{InvoicesAnalyzed: 4, ClientsIdentified: 2, BusinessPotential: 1000}
	stats := ComputeStats([]internal.Invoice{a, b}, baseline)

	assert.Equal(t, -50.0, stats.InvoicesAnalyzed.Trend)
	assert.Equal(t, internal.TrendDown, stats.InvoicesAnalyzed.TrendDirection)
	assert.Equal(t, 0.0, stats.ClientsIdentified.Trend)
	assert.Equal(t, internal.TrendUp, stats.ClientsIdentified.TrendDirection)
	assert.Equal(t, 50.0, stats.BusinessPotential.Trend)
	assert.Equal(t, internal.TrendUp, stats.BusinessPotential.TrendDirection)
}

func TestTrend(t *testing.T) {
	cases := []struct {
		current, previous float64
		want              float64
		dir               internal.TrendDirection
	}{
		{current: 110, previous: 100, want: 10, dir: internal.TrendUp},
		{current: 90, previous: 100, want: -10, dir: internal.TrendDown},
		{current: 1, previous: 3, want: -200.0 / 3, dir: internal.TrendDown},
		{current: 1001, previous: 1000, want: 0.1, dir: internal.TrendUp},
		{current: 0, previous: 0, want: 0, dir: internal.TrendUp},
		{current: 5, previous: 0, want: 100, dir: internal.TrendUp},
	}
	for _, tc := range cases {
		got, dir := Trend(tc.current, tc.previous)
		assert.InDelta(t, tc.want, got, 1e-9)
		assert.Equal(t, tc.dir, dir)
	}
}

func TestBaselineFrom(t *testing.T) {
	stats := internal.DashboardStats{
		InvoicesAnalyzed:  internal.Metric{Value: 3},
		ClientsIdentified: internal.Metric{Value: 2},
		BusinessPotential: internal.Metric{Value: 99.5},
	}
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	b := BaselineFrom(stats, at)
	assert.Equal(t, 3.0, b.InvoicesAnalyzed)
	assert.Equal(t, 99.5, b.BusinessPotential)
	assert.Equal(t, "2024-06-01T08:00:00Z", b.RecordedAt)
}
