// Package loyalty sizes the point award for a completed sale.
package loyalty

import (
	"math"

	"tokopos/internal/domain"
)

// Engine computes earned points from the sale total and the customer tier.
// One point per whole currency unit spent, scaled by the tier multiplier.
type Engine struct {
	multipliers map[string]float64
}

func NewEngine() *Engine {
	return &Engine{
		multipliers: map[string]float64{
			domain.TierRegular: 1.0,
			domain.TierSilver:  1.25,
			domain.TierGold:    1.5,
		},
	}
}

// Multiplier returns the tier multiplier, defaulting to regular for an
// unknown tier.
func (e *Engine) Multiplier(tier string) float64 {
	if m, ok := e.multipliers[tier]; ok {
		return m
	}
	return e.multipliers[domain.TierRegular]
}

// PointsFor returns the points earned by a sale. Whole currency units only;
// the tier scaling rounds half up.
func (e *Engine) PointsFor(totalCents int64, tier string) int64 {
	if totalCents < 100 {
		return 0
	}
	base := totalCents / 100
	return int64(math.Round(float64(base) * e.Multiplier(tier)))
}
