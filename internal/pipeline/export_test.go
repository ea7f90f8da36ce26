package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"reconquest/internal"
)

func TestExportReportToXLSX(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "report.xlsx")
	report := Report{
		GeneratedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Stats: internal.DashboardStats{
			InvoicesAnalyzed: internal.Metric{Value: 3, Trend: 50, TrendDirection: internal.TrendUp},
		},
		Brands: []internal.BrandRollup{{Brand: "IKO", Total: decimal.NewFromInt(1200), InvoiceCount: 1}},
		Customers: []internal.CustomerProfile{{
			Name:        "Dupont",
			Priority:    internal.PriorityLow,
			Coordinates: &internal.Coordinates{Lat: 45.7, Lng: 4.8},
			TopBrands:   []string{"IKO", "SIPLAST"},
		}},
	}
	if err := ExportReportToXLSX(report, out); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Stats" || sheets[1] != "Brands" || sheets[2] != "Customers" {
		t.Fatalf("sheets=%v", sheets)
	}
	if v, _ := f.GetCellValue("Brands", "A2"); v != "IKO" {
		t.Fatalf("brand cell=%q", v)
	}
	if v, _ := f.GetCellValue("Customers", "K2"); v != "IKO, SIPLAST" {
		t.Fatalf("top brands cell=%q", v)
	}
	if v, _ := f.GetCellValue("Stats", "D2"); v != "up" {
		t.Fatalf("direction cell=%q", v)
	}
}
