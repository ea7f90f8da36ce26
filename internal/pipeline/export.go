package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"reconquest/internal"
)

// Report is everything the spreadsheet export shows.
type Report struct {
	GeneratedAt time.Time
	Stats       internal.DashboardStats
	Brands      []internal.BrandRollup
	Customers   []internal.CustomerProfile
}

func ExportReportToXLSX(report Report, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	statsSheet := f.GetSheetName(0)
	if err := f.SetSheetName(statsSheet, "Stats"); err != nil {
		return err
	}
	writeStats(f, "Stats", report)

	if _, err := f.NewSheet("Brands"); err != nil {
		return err
	}
	writeBrands(f, "Brands", report.Brands)

	if _, err := f.NewSheet("Customers"); err != nil {
		return err
	}
	writeCustomers(f, "Customers", report.Customers)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeRow(f *excelize.File, sheet string, r int, values ...any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, r)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func writeStats(f *excelize.File, sheet string, report Report) {
	writeRow(f, sheet, 1, "metric", "value", "trend_pct", "direction")
	metrics := []struct {
		name string
		m    internal.Metric
	}{
		{"invoices_analyzed", report.Stats.InvoicesAnalyzed},
		{"clients_identified", report.Stats.ClientsIdentified},
		{"business_potential", report.Stats.BusinessPotential},
	}
	for i, row := range metrics {
		writeRow(f, sheet, i+2, row.name, row.m.Value, row.m.Trend, string(row.m.TrendDirection))
	}
	if !report.GeneratedAt.IsZero() {
		writeRow(f, sheet, len(metrics)+3, "generated_at", report.GeneratedAt.UTC().Format(time.RFC3339))
	}
}

func writeBrands(f *excelize.File, sheet string, brands []internal.BrandRollup) {
	writeRow(f, sheet, 1, "brand", "total", "invoice_count")
	for i, b := range brands {
		writeRow(f, sheet, i+2, b.Brand, b.Total.InexactFloat64(), b.InvoiceCount)
	}
}

func writeCustomers(f *excelize.File, sheet string, customers []internal.CustomerProfile) {
	writeRow(f, sheet, 1,
		"name", "address", "invoice_count", "competitor_amount", "reconquest_potential",
		"priority", "last_purchase_date", "lat", "lng", "has_plan", "top_brands",
	)
	for i, c := range customers {
		var lat, lng any = "", ""
		if c.Coordinates != nil {
			lat, lng = c.Coordinates.Lat, c.Coordinates.Lng
		}
		writeRow(f, sheet, i+2,
			c.Name, c.Address, c.InvoiceCount, c.CompetitorAmount.InexactFloat64(), c.ReconquestPotential.InexactFloat64(),
			string(c.Priority), c.LastPurchaseDate, lat, lng, c.HasReconquestPlan, strings.Join(c.TopBrands, ", "),
		)
	}
}
