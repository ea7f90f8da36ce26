package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"reconquest/internal"
)

// ImportInvoicesFromFile loads structured invoices from a spreadsheet or a
// JSON document. JSON may be a bare array or an object with an "invoices"
// field, which is also the persisted snapshot layout.
func ImportInvoicesFromFile(path string, conversionRate decimal.Decimal) (ImportResult, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return ImportResult{}, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ParseInvoicesXLSX(blob, conversionRate)
	case ".json":
		invoices, err := decodeInvoicesJSON(blob)
		if err != nil {
			return ImportResult{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		return ImportResult{Invoices: invoices}, nil
	default:
		return ImportResult{}, fmt.Errorf("unsupported input type: %s", filepath.Ext(path))
	}
}

func decodeInvoicesJSON(blob []byte) ([]internal.Invoice, error) {
	trimmed := bytes.TrimSpace(blob)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []internal.Invoice
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped struct {
		Invoices []internal.Invoice `json:"invoices"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Invoices, nil
}
