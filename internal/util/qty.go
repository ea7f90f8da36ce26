package util

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	numberPattern    = regexp.MustCompile(`-?(\d{1,3}(?:[\s.,]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?)`)
	reThousandsDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	reThousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`)
	reDotThenComma   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+,\d+$`)
	reCommaThenDot   = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+\.\d+$`)
)

// ParseAmount reads a money or quantity cell as written on French invoices:
// "1 234,56 €", "1.234,56", "1234.56", "12 u". The first number wins.
func ParseAmount(input string) (decimal.Decimal, bool) {
	line := strings.ReplaceAll(input, " ", " ")
	line = strings.ReplaceAll(line, " ", " ")
	m := numberPattern.FindString(line)
	if m == "" {
		return decimal.Zero, false
	}
	negative := strings.HasPrefix(m, "-")
	norm := normalizeNumericToken(strings.TrimPrefix(m, "-"))
	d, err := decimal.NewFromString(norm)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	switch {
	case reThousandsDot.MatchString(compact):
		return strings.ReplaceAll(compact, ".", "")
	case reThousandsComma.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	case reDotThenComma.MatchString(compact):
		return strings.ReplaceAll(strings.ReplaceAll(compact, ".", ""), ",", ".")
	case reCommaThenDot.MatchString(compact):
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
