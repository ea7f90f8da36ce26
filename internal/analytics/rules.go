package analytics

import (
	"github.com/shopspring/decimal"

	"reconquest/internal"
	"reconquest/internal/config"
)

const (
	DefaultConversionRate  = 0.70
	DefaultHighThreshold   = 50000
	DefaultMediumThreshold = 20000
)

// Rules carries the reconquest constants: the share of competitor spend
// considered convertible and the priority tier boundaries.
type Rules struct {
	ConversionRate  decimal.Decimal
	HighThreshold   decimal.Decimal
	MediumThreshold decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		ConversionRate:  decimal.NewFromFloat(DefaultConversionRate),
		HighThreshold:   decimal.NewFromInt(DefaultHighThreshold),
		MediumThreshold: decimal.NewFromInt(DefaultMediumThreshold),
	}
}

func RulesFromConfig(cfg config.Config) Rules {
	return Rules{
		ConversionRate:  decimal.NewFromFloat(cfg.ConversionRate),
		HighThreshold:   decimal.NewFromFloat(cfg.PriorityHighThreshold),
		MediumThreshold: decimal.NewFromFloat(cfg.PriorityMediumThreshold),
	}
}

// ClassifyPriority is a step function: high from HighThreshold inclusive,
// medium from MediumThreshold inclusive, low below.
func (r Rules) ClassifyPriority(competitorAmount decimal.Decimal) internal.Priority {
	switch {
	case competitorAmount.GreaterThanOrEqual(r.HighThreshold):
		return internal.PriorityHigh
	case competitorAmount.GreaterThanOrEqual(r.MediumThreshold):
		return internal.PriorityMedium
	default:
		return internal.PriorityLow
	}
}

func (r Rules) ReconquestPotential(competitorAmount decimal.Decimal) decimal.Decimal {
	return competitorAmount.Mul(r.ConversionRate).Round(2)
}
