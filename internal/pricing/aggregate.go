// Package pricing combines heterogeneous per-item price observations into a
// single calibrated price distribution.
package pricing

import (
	"math"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/mathutil"
)

// Observation is one source's view of an item's resale price. Spread is
// given either as StdDev or as a coefficient of variation (CV); zero means
// absent for both.
type Observation struct {
	SourceID    string
	Mean        float64
	StdDev      float64
	CV          float64
	SampleSize  int
	RecencyDays float64
	Reliability float64
}

// Estimate is the combined per-item price distribution.
type Estimate struct {
	Mu    float64
	Sigma float64
	Floor float64
	// Observations is the number of observations that contributed.
	Observations int
	// LowConfidence marks a floor-only estimate built from no valid evidence.
	LowConfidence bool
	// FloorBound is set when the floor lifted Mu.
	FloorBound bool
}

// CV returns Sigma/Mu, or 0 for a zero mean.
func (e Estimate) CV() float64 {
	if e.Mu <= 0 {
		return 0
	}
	return e.Sigma / e.Mu
}

// Valid reports whether the observation can carry weight.
func (o Observation) Valid() bool {
	return mathutil.IsFinite(o.Mean) && o.Mean > 0
}

// Spread resolves the observation's standard deviation, substituting
// fallbackCV × Mean when no spread was supplied.
func (o Observation) Spread(fallbackCV float64) float64 {
	switch {
	case mathutil.IsFinite(o.StdDev) && o.StdDev > 0:
		return o.StdDev
	case mathutil.IsFinite(o.CV) && o.CV > 0:
		return o.CV * o.Mean
	default:
		return fallbackCV * o.Mean
	}
}

func (o Observation) reliability() float64 {
	if !mathutil.IsFinite(o.Reliability) || o.Reliability <= 0 {
		return 1
	}
	return o.Reliability
}

// Aggregate combines observations by inverse-variance weighting, then
// applies the condition multiplier, the seasonality multiplier and the
// category or global salvage floor, in that order. It is a pure function of
// its inputs.
func Aggregate(observations []Observation, bucket condition.Bucket, category string, month time.Month, valuation config.ValuationConfig) Estimate {
	floor := valuation.Floor(category)

	var weightSum, weightedMean float64
	used := 0
	for _, obs := range observations {
		if !obs.Valid() {
			continue
		}
		spread := obs.Spread(valuation.FallbackCV)
		if spread < constants.Epsilon {
			spread = constants.Epsilon
		}
		// weight = 1 / (spread² · reliability⁻¹)
		weight := obs.reliability() / (spread * spread)
		weightSum += weight
		weightedMean += weight * obs.Mean
		used++
	}

	if used == 0 {
		return Estimate{Mu: floor, Sigma: 0, Floor: floor, LowConfidence: true, FloorBound: true}
	}

	mu := weightedMean / weightSum
	sigma := 1 / math.Sqrt(weightSum)

	factor := valuation.ConditionMultiplier(bucket) * valuation.SeasonalityFactor(category, month)
	mu *= factor
	sigma *= factor

	estimate := Estimate{Mu: mu, Sigma: sigma, Floor: floor, Observations: used}
	if estimate.Mu < floor {
		estimate.Mu = floor
		estimate.FloorBound = true
	}
	return estimate
}
