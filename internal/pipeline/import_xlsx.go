package pipeline

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"reconquest/internal"
	"reconquest/internal/util"
)

type column int

const (
	colNumber column = iota
	colDate
	colClient
	colAddress
	colDistributor
	colAgency
	colReference
	colDesignation
	colQuantity
	colUnitPrice
	colTotal
	colType
	colBrand
	colCategory
	colPotential
	colRegion
	colStatus
	colCount
)

// header aliases, folded to lower case without accents
var columnAliases = [colCount][]string{
	colNumber:      {"numero facture", "n facture", "facture", "numero", "invoice number", "invoice", "number"},
	colDate:        {"date facture", "date"},
	colClient:      {"client", "customer", "raison sociale"},
	colAddress:     {"adresse", "address"},
	colDistributor: {"distributeur", "distributor", "fournisseur"},
	colAgency:      {"agence", "agency"},
	colReference:   {"reference", "ref", "code article"},
	colDesignation: {"designation", "libelle", "produit", "product", "description"},
	colQuantity:    {"quantite", "qte", "qty", "quantity"},
	colUnitPrice:   {"prix unitaire", "pu ht", "pu", "unit price", "unitprice"},
	colTotal:       {"total ht", "montant ht", "total", "montant", "total price", "totalprice"},
	colType:        {"type"},
	colBrand:       {"marque", "brand", "fabricant"},
	colCategory:    {"categorie", "category", "famille"},
	colPotential:   {"potentiel", "potential"},
	colRegion:      {"region"},
	colStatus:      {"statut", "status"},
}

var accentFolder = strings.NewReplacer(
	"é", "e", "è", "e", "ê", "e", "ë", "e", "à", "a", "â", "a", "ô", "o",
	"î", "i", "ï", "i", "û", "u", "ù", "u", "ç", "c", "°", "", "º", "",
	".", " ", "_", " ", "-", " ",
)

var dateLayouts = []string{time.DateOnly, "02/01/2006", "2/1/2006", "02-01-2006", "2006/01/02", "02/01/06", "01-02-06"}

// RowIssue reports a spreadsheet row that could not become a line item.
type RowIssue struct {
	Sheet  string `json:"sheet"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Invoices []internal.Invoice `json:"invoices"`
	Skipped  []RowIssue         `json:"skipped,omitempty"`
}

type invoiceDraft struct {
	inv           internal.Invoice
	potential     *decimal.Decimal
	competitorSum decimal.Decimal
}

// ParseInvoicesXLSX reads one line item per row, grouping rows by invoice
// number in first-seen order. A header row is required within the first
// three rows of each sheet. When no potential column is present the
// potential is the competitor spend times conversionRate.
func ParseInvoicesXLSX(content []byte, conversionRate decimal.Decimal) (ImportResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return ImportResult{}, err
	}
	defer f.Close()

	drafts := map[string]*invoiceDraft{}
	order := []string{}
	result := ImportResult{}

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var idx [colCount]int
		headerRow := -1
		for i := 0; i < len(rows) && i < 3; i++ {
			cells := normalizeCells(rows[i])
			if candidate, ok := inferColumns(cells); ok {
				idx, headerRow = candidate, i
				break
			}
		}
		if headerRow < 0 {
			result.Skipped = append(result.Skipped, RowIssue{Sheet: sheet, Row: 1, Reason: "no header row with invoice number and designation columns"})
			continue
		}

		for i := headerRow + 1; i < len(rows); i++ {
			cells := normalizeCells(rows[i])
			if isBlank(cells) {
				continue
			}
			rowNo := i + 1
			number := pickCell(cells, idx[colNumber], -1)
			if number == "" {
				result.Skipped = append(result.Skipped, RowIssue{Sheet: sheet, Row: rowNo, Reason: "missing invoice number"})
				continue
			}
			product, err := parseProductRow(cells, idx)
			if err != nil {
				result.Skipped = append(result.Skipped, RowIssue{Sheet: sheet, Row: rowNo, Reason: err.Error()})
				continue
			}

			d, ok := drafts[number]
			if !ok {
				d = &invoiceDraft{inv: internal.Invoice{
					ID:     number,
					Number: number,
					Status: internal.StatusAnalyzed,
				}}
				drafts[number] = d
				order = append(order, number)
			}
			fillInvoiceFields(d, cells, idx)
			d.inv.Products = append(d.inv.Products, product)
			d.inv.Amount = d.inv.Amount.Add(product.TotalPrice)
			if product.Type == internal.ProductCompetitor {
				d.competitorSum = d.competitorSum.Add(product.TotalPrice)
			}
		}
	}

	for _, number := range order {
		d := drafts[number]
		if d.potential != nil {
			d.inv.Potential = *d.potential
		} else {
			d.inv.Potential = d.competitorSum.Mul(conversionRate).Round(2)
		}
		result.Invoices = append(result.Invoices, d.inv)
	}
	return result, nil
}

func parseProductRow(cells []string, idx [colCount]int) (internal.Product, error) {
	designation := pickCell(cells, idx[colDesignation], -1)
	if designation == "" {
		return internal.Product{}, fmt.Errorf("missing designation")
	}

	qty, qtyOK := util.ParseAmount(pickCell(cells, idx[colQuantity], -1))
	unit, unitOK := util.ParseAmount(pickCell(cells, idx[colUnitPrice], -1))
	total, totalOK := util.ParseAmount(pickCell(cells, idx[colTotal], -1))
	if !qtyOK {
		qty, qtyOK = decimal.NewFromInt(1), true
	}
	switch {
	case unitOK && !totalOK:
		total = qty.Mul(unit).Round(2)
	case totalOK && !unitOK:
		if qty.IsZero() {
			return internal.Product{}, fmt.Errorf("zero quantity")
		}
		unit = total.Div(qty).Round(4)
	case !unitOK && !totalOK:
		return internal.Product{}, fmt.Errorf("no price for %q", designation)
	}

	p := internal.Product{
		Reference:   pickCell(cells, idx[colReference], -1),
		Designation: designation,
		Quantity:    qty,
		UnitPrice:   unit,
		TotalPrice:  total,
	}

	brand := pickCell(cells, idx[colBrand], -1)
	p.Type = productType(pickCell(cells, idx[colType], -1), brand)
	if p.Type == internal.ProductCompetitor {
		if brand == "" {
			brand = util.BrandToken(designation)
		}
		if brand != "" {
			p.Competitor = &internal.CompetitorInfo{Brand: brand, Category: pickCell(cells, idx[colCategory], -1)}
		}
	} else if brand != "" {
		p.Brand = util.StringPtr(brand)
	}
	return p, nil
}

func productType(raw, brand string) internal.ProductType {
	switch foldHeader(raw) {
	case "soprema", "interne", "own":
		return internal.ProductSoprema
	case "competitor", "concurrent", "concurrence":
		return internal.ProductCompetitor
	}
	if strings.EqualFold(strings.TrimSpace(brand), "soprema") {
		return internal.ProductSoprema
	}
	return internal.ProductCompetitor
}

func fillInvoiceFields(d *invoiceDraft, cells []string, idx [colCount]int) {
	inv := &d.inv
	setIfEmpty := func(dst *string, col column) {
		if *dst == "" {
			*dst = pickCell(cells, idx[col], -1)
		}
	}
	if inv.Date == "" {
		inv.Date = parseDate(pickCell(cells, idx[colDate], -1))
	}
	setIfEmpty(&inv.Client.Name, colClient)
	if inv.Client.FullName == "" {
		inv.Client.FullName = inv.Client.Name
	}
	setIfEmpty(&inv.Client.Address, colAddress)
	setIfEmpty(&inv.Distributor.Name, colDistributor)
	setIfEmpty(&inv.Distributor.Agency, colAgency)
	if inv.Region == nil {
		if region := pickCell(cells, idx[colRegion], -1); region != "" {
			inv.Region = util.StringPtr(region)
		}
	}
	if status := foldHeader(pickCell(cells, idx[colStatus], -1)); status != "" {
		switch internal.InvoiceStatus(status) {
		case internal.StatusAnalyzed, internal.StatusPending, internal.StatusProcessing:
			inv.Status = internal.InvoiceStatus(status)
		}
	}
	if d.potential == nil {
		if v, ok := util.ParseAmount(pickCell(cells, idx[colPotential], -1)); ok {
			d.potential = &v
		}
	}
}

// parseDate normalizes the usual spreadsheet renderings to ISO. Unparseable
// values are kept verbatim so validation reports them.
func parseDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(time.DateOnly)
		}
	}
	return raw
}

// inferColumns maps header cells to columns. ok is false unless both the
// invoice number and designation columns are found.
func inferColumns(headers []string) (idx [colCount]int, ok bool) {
	for c := range idx {
		idx[c] = -1
	}
	for i, h := range headers {
		norm := foldHeader(h)
		if norm == "" {
			continue
		}
		if c, found := matchColumn(norm, idx); found {
			idx[c] = i
		}
	}
	return idx, idx[colNumber] >= 0 && idx[colDesignation] >= 0
}

func matchColumn(norm string, taken [colCount]int) (column, bool) {
	for c := column(0); c < colCount; c++ {
		if taken[c] >= 0 {
			continue
		}
		for _, alias := range columnAliases[c] {
			if norm == alias {
				return c, true
			}
		}
	}
	for c := column(0); c < colCount; c++ {
		if taken[c] >= 0 {
			continue
		}
		for _, alias := range columnAliases[c] {
			if strings.HasPrefix(norm, alias+" ") {
				return c, true
			}
		}
	}
	return 0, false
}

func foldHeader(s string) string {
	return util.NormalizeSpaces(accentFolder.Replace(strings.ToLower(s)))
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(c))
	}
	return out
}

func pickCell(cells []string, idx int, fallback int) string {
	if idx >= 0 && idx < len(cells) {
		return strings.TrimSpace(cells[idx])
	}
	if fallback >= 0 && fallback < len(cells) {
		return strings.TrimSpace(cells[fallback])
	}
	return ""
}
