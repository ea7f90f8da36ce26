package pipeline

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"reconquest/internal"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

var rate = decimal.RequireFromString("0.7")

func TestParseInvoicesXLSXGroupsByNumber(t *testing.T) {
	blob := mkXLSX([][]any{
		{"N° facture", "Date", "Client", "Adresse", "Distributeur", "Référence", "Désignation", "Quantité", "Prix unitaire HT", "Total HT", "Type", "Marque"},
		{"FA-001", "12/03/2024", "Dupont Toitures", "12 rue des Lilas 69003 Lyon", "Point.P", "IKO-1", "IKO ARMOURBASE PRO", "10", "120,00", "1 200,00", "concurrent", "IKO"},
		{"FA-001", "", "", "", "", "SOP-1", "SOPRALENE FLAM", "5", "100", "500", "soprema", "SOPREMA"},
		{"FA-002", "2024-04-01", "Martin", "", "", "SIP-1", "SIPLAST PARAFOR 30", "2", "", "300", "", ""},
		{"", "", "", "", "", "", "orphan", "1", "1", "1", "", ""},
	})

	res, err := ParseInvoicesXLSX(blob, rate)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Invoices) != 2 {
		t.Fatalf("invoices=%d", len(res.Invoices))
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Row != 5 {
		t.Fatalf("skipped=%+v", res.Skipped)
	}

	first := res.Invoices[0]
	if first.Number != "FA-001" || first.Date != "2024-03-12" {
		t.Fatalf("unexpected header fields: %+v", first)
	}
	if len(first.Products) != 2 {
		t.Fatalf("products=%d", len(first.Products))
	}
	if !first.Amount.Equal(decimal.NewFromInt(1700)) {
		t.Fatalf("amount=%s", first.Amount)
	}
	if !first.Potential.Equal(decimal.NewFromInt(840)) {
		t.Fatalf("potential=%s", first.Potential)
	}
	if first.Products[0].Competitor == nil || first.Products[0].Competitor.Brand != "IKO" {
		t.Fatalf("competitor brand not set: %+v", first.Products[0])
	}
	if first.Products[1].Type != internal.ProductSoprema {
		t.Fatalf("second line should be soprema")
	}

	second := res.Invoices[1]
	line := second.Products[0]
	if line.Type != internal.ProductCompetitor || line.Competitor == nil || line.Competitor.Brand != "SIPLAST" {
		t.Fatalf("brand should come from designation: %+v", line)
	}
	if !line.UnitPrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("unit price derived from total: %s", line.UnitPrice)
	}
}

func TestParseInvoicesXLSXPotentialColumnWins(t *testing.T) {
	blob := mkXLSX([][]any{
		{"Facture", "Date", "Client", "Désignation", "Qté", "PU", "Total", "Potentiel"},
		{"F1", "2024-01-05", "Roux", "BAUDER TEC", 1, 1000, 1000, 123.45},
	})
	res, err := ParseInvoicesXLSX(blob, rate)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Invoices[0].Potential.Equal(decimal.RequireFromString("123.45")) {
		t.Fatalf("potential=%s", res.Invoices[0].Potential)
	}
}

func TestParseInvoicesXLSXWithoutHeader(t *testing.T) {
	blob := mkXLSX([][]any{
		{"F1", "2024-01-05", "Roux"},
	})
	res, err := ParseInvoicesXLSX(blob, rate)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Invoices) != 0 || len(res.Skipped) != 1 {
		t.Fatalf("expected sheet to be skipped: %+v", res)
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-12": "2024-03-12",
		"12/03/2024": "2024-03-12",
		"03-12-24":   "2024-03-12",
		"45363":      "2024-03-12",
		"soon":       "soon",
		"":           "",
	}
	for in, want := range cases {
		if got := parseDate(in); got != want {
			t.Fatalf("parseDate(%q)=%q want %q", in, got, want)
		}
	}
}
