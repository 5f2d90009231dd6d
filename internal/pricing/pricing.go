// Package pricing computes the current price of a market item from its cost
// basis, supply, demand, and volatility. It is pure: no I/O, no shared
// state, and all randomness comes from an injected source so tests can seed
// it deterministically.
package pricing

import "math/rand/v2"

const (
	// scarcityCap substitutes for the demand/supply ratio when supply is
	// zero, signalling scarcity without dividing by zero.
	scarcityCap = 2.0

	// floorFraction is the fraction of the cost basis below which a price
	// can never fall, even under extreme oversupply.
	floorFraction = 0.5
)

// Source yields uniform values in [0,1). *rand.Rand satisfies it.
type Source interface {
	Float64() float64
}

// Price returns the current price for an item.
//
// costBase = costBasis x productionModifier; the demand/supply ratio is
// capped at scarcityCap when supply is zero; the volatility factor jitters
// the price by up to ±volatility/2. The result never drops below half the
// cost base.
//
// Domain: supply >= 0, demand >= 0, volatility in [0,1]. Total over that
// domain; there are no error conditions.
func Price(costBasis, productionModifier, supply, demand, volatility float64, rng Source) float64 {
	costBase := costBasis * productionModifier

	ratio := scarcityCap
	if supply > 0 {
		ratio = demand / supply
	}

	volatilityFactor := 1 + (rng.Float64()-0.5)*volatility

	price := costBase * ratio * volatilityFactor
	floor := costBase * floorFraction
	if price < floor {
		return floor
	}
	return price
}

// NewSource returns a deterministic source seeded with the given value.
func NewSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed))
}
