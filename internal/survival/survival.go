// Package survival converts market signals and the price-to-market ratio
// into a probability of sale by a horizon and an implied daily hazard rate.
package survival

import (
	"math"
	"sort"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/pricing"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/iwvelando/lotbid/pkg/mathutil"
)

// Params are the per-item effective log-logistic parameters.
type Params struct {
	Alpha              float64 // days to 50% sold
	Beta               float64 // shape
	CategoryScale      float64
	VelocityAdjustment float64
}

// Input describes one item for survival estimation.
type Input struct {
	Price     pricing.Estimate
	ListPrice *float64 // defaults to Price.Mu
	Condition condition.Bucket
	Category  string
	Month     time.Month
	// HorizonDays overrides the model horizon when positive.
	HorizonDays float64
	// Ladder replaces the single-price estimate when non-empty.
	Ladder []config.LadderPhase
}

// Result is the outcome of a survival estimate.
type Result struct {
	PSold          float64
	HazardRate     float64
	EffectiveAlpha float64
	Params         Params
	HorizonDays    float64
	PriceZ         float64
	// PriceFactor is the sale-weighted price multiplier realized under a
	// ladder; 1 without one.
	PriceFactor float64
	Ladder      bool
}

// Model holds the base parameters and adjustment tables. It is immutable
// once built and safe for concurrent use.
type Model struct {
	base             Params
	horizonDays      float64
	elasticityK      float64
	ladderElasticity float64
	valuation        config.ValuationConfig
}

// NewModel builds a Model from configuration, rejecting non-positive alpha
// or beta as configuration errors.
func NewModel(conf *config.Configuration) (*Model, error) {
	if conf == nil {
		return nil, config.Invalid("survival model requires a configuration")
	}
	base := Params{Alpha: conf.Survival.Alpha, Beta: conf.Survival.Beta}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	horizon := conf.Survival.HorizonDays
	if horizon <= 0 {
		horizon = constants.DefaultHorizonDays
	}
	return &Model{
		base:             base,
		horizonDays:      horizon,
		elasticityK:      conf.Survival.ElasticityK,
		ladderElasticity: conf.Survival.LadderElasticity,
		valuation:        conf.Valuation,
	}, nil
}

// HorizonDays returns the default horizon.
func (m *Model) HorizonDays() float64 {
	return m.horizonDays
}

// Estimate computes the probability of sale within the horizon, the implied
// constant daily hazard and the effective alpha for one item.
//
// Overpriced items (z > 0) get a larger alpha and therefore sell slower;
// underpriced items get no matching speed-up.
func (m *Model) Estimate(in Input) (Result, error) {
	horizon := in.HorizonDays
	if horizon <= 0 {
		horizon = m.horizonDays
	}

	z := priceZ(in, m.valuation.FallbackCV)
	params := Params{
		Beta:          m.base.Beta,
		CategoryScale: m.valuation.CategoryScaleFactor(in.Category),
		VelocityAdjustment: m.valuation.ConditionVelocityFactor(in.Condition) *
			m.valuation.SeasonalityFactor(in.Category, in.Month),
	}
	if params.VelocityAdjustment < constants.Epsilon {
		params.VelocityAdjustment = constants.Epsilon
	}
	params.Alpha = m.base.Alpha * params.CategoryScale * math.Exp(m.elasticityK*math.Max(z, 0)) / params.VelocityAdjustment
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	pSold := Probability(horizon, params.Alpha, params.Beta)
	result := Result{
		PSold:          pSold,
		HazardRate:     HazardRate(pSold, horizon),
		EffectiveAlpha: params.Alpha,
		Params:         params,
		HorizonDays:    horizon,
		PriceZ:         z,
		PriceFactor:    1,
	}

	if len(in.Ladder) > 0 {
		p, factor := ApplyLadder(result.HazardRate, horizon, in.Ladder, m.ladderElasticity)
		result.PSold = p
		result.HazardRate = HazardRate(p, horizon)
		result.PriceFactor = factor
		result.Ladder = true
	}
	return result, nil
}

// Validate rejects non-positive alpha or beta.
func (p Params) Validate() error {
	if !(p.Alpha > 0) || math.IsInf(p.Alpha, 0) {
		return config.Invalid("survival alpha must be positive and finite, got %v", p.Alpha)
	}
	if !(p.Beta > 0) || math.IsInf(p.Beta, 0) {
		return config.Invalid("survival beta must be positive and finite, got %v", p.Beta)
	}
	return nil
}

// Probability is the log-logistic CDF: (t/α)^β / (1 + (t/α)^β).
func Probability(t, alpha, beta float64) float64 {
	if t <= 0 {
		return 0
	}
	r := math.Pow(t/alpha, beta)
	if math.IsInf(r, 1) {
		return 1
	}
	return mathutil.Clip01(r / (1 + r))
}

// HazardRate converts a sell-through probability into the constant daily
// hazard that yields it: −ln(max(1−p, ε)) / horizon.
func HazardRate(p, horizonDays float64) float64 {
	if horizonDays <= 0 {
		return 0
	}
	return -math.Log(math.Max(1-mathutil.Clip01(p), constants.Epsilon)) / horizonDays
}

// ExpectedHoldingDays is E[min(T, horizon)] for an exponential sale time
// with rate lambda.
func ExpectedHoldingDays(lambda, horizonDays float64) float64 {
	if horizonDays <= 0 {
		return 0
	}
	if lambda < constants.Epsilon {
		return horizonDays
	}
	return (1 - math.Exp(-lambda*horizonDays)) / lambda
}

// ApplyLadder composes phase survival probabilities for a markdown
// schedule. Each phase scales the hazard by multiplier^(−elasticity). It
// returns the blended sell-through by the horizon and the sale-weighted
// price multiplier.
func ApplyLadder(hazard, horizonDays float64, ladder []config.LadderPhase, elasticity float64) (float64, float64) {
	phases := normalizeLadder(ladder, horizonDays)

	survived := 1.0
	weightedPrice := 0.0
	for i, phase := range phases {
		end := horizonDays
		if i+1 < len(phases) {
			end = phases[i+1].DayOffset
		}
		duration := end - phase.DayOffset
		if duration <= 0 {
			continue
		}
		phaseHazard := hazard * math.Pow(phase.PriceMultiplier, -elasticity)
		stay := math.Exp(-phaseHazard * duration)
		soldHere := survived * (1 - stay)
		weightedPrice += soldHere * phase.PriceMultiplier
		survived *= stay
	}

	p := mathutil.Clip01(1 - survived)
	if p < constants.Epsilon {
		return p, phases[0].PriceMultiplier
	}
	return p, weightedPrice / p
}

// normalizeLadder sorts phases, drops those at or past the horizon and
// makes sure the schedule starts at day zero at full price.
func normalizeLadder(ladder []config.LadderPhase, horizonDays float64) []config.LadderPhase {
	phases := make([]config.LadderPhase, 0, len(ladder)+1)
	for _, phase := range ladder {
		if phase.DayOffset < horizonDays && phase.PriceMultiplier > 0 {
			phases = append(phases, phase)
		}
	}
	sort.SliceStable(phases, func(i, j int) bool { return phases[i].DayOffset < phases[j].DayOffset })
	if len(phases) == 0 || phases[0].DayOffset > 0 {
		phases = append([]config.LadderPhase{{DayOffset: 0, PriceMultiplier: 1}}, phases...)
	}
	return phases
}

// priceZ is the list price's z-score against the market estimate. Missing
// spread falls back to the configured CV.
func priceZ(in Input, fallbackCV float64) float64 {
	if in.ListPrice == nil {
		return 0
	}
	sigma := in.Price.Sigma
	if sigma <= 0 {
		sigma = fallbackCV * in.Price.Mu
	}
	if sigma < constants.Epsilon {
		return 0
	}
	return (*in.ListPrice - in.Price.Mu) / sigma
}
