package survival

import (
	"math"
	"testing"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/pricing"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neutralConfig() *config.Configuration {
	conf := config.Default()
	conf.Valuation.ConditionVelocity = nil
	conf.Valuation.CategoryScale = nil
	conf.Valuation.Seasonality = nil
	conf.Survival.Alpha = 30
	conf.Survival.Beta = 2
	conf.Survival.ElasticityK = 0.1
	return conf
}

func newModel(t *testing.T, conf *config.Configuration) *Model {
	t.Helper()
	m, err := NewModel(conf)
	require.NoError(t, err)
	return m
}

func TestProbabilityMonotoneInTime(t *testing.T) {
	for _, beta := range []float64{0.5, 1, 2, 4.5} {
		for _, alpha := range []float64{1, 14, 45, 200} {
			prev := -1.0
			for day := 0.0; day <= 365; day += 0.5 {
				p := Probability(day, alpha, beta)
				assert.GreaterOrEqual(t, p, prev, "alpha=%v beta=%v day=%v", alpha, beta, day)
				assert.GreaterOrEqual(t, p, 0.0)
				assert.LessOrEqual(t, p, 1.0)
				prev = p
			}
		}
	}
}

func TestProbabilityAtAlphaIsHalf(t *testing.T) {
	for _, beta := range []float64{0.3, 1, 2, 7} {
		for _, alpha := range []float64{3, 30, 90} {
			assert.InDelta(t, 0.5, Probability(alpha, alpha, beta), 1e-12)
		}
	}
}

func TestProbabilityEdges(t *testing.T) {
	assert.Equal(t, 0.0, Probability(0, 30, 2))
	assert.Equal(t, 0.0, Probability(-5, 30, 2))
	assert.Equal(t, 1.0, Probability(1e300, 1e-300, 50))
}

func TestHazardRate(t *testing.T) {
	p := 0.6
	lambda := HazardRate(p, 60)
	assert.InDelta(t, p, 1-math.Exp(-lambda*60), 1e-12)

	// certain sale is guarded against log(0)
	assert.False(t, math.IsInf(HazardRate(1, 60), 0))
	assert.Equal(t, 0.0, HazardRate(0, 60))
	assert.Equal(t, 0.0, HazardRate(0.5, 0))
}

func TestExpectedHoldingDays(t *testing.T) {
	assert.Equal(t, 60.0, ExpectedHoldingDays(0, 60))
	lambda := 0.05
	assert.InDelta(t, (1-math.Exp(-3))/lambda, ExpectedHoldingDays(lambda, 60), 1e-12)
	assert.Less(t, ExpectedHoldingDays(0.5, 60), ExpectedHoldingDays(0.01, 60))
}

func TestNewModelRejectsInvalidParams(t *testing.T) {
	tests := []struct {
		name        string
		alpha, beta float64
	}{
		{"zero alpha", 0, 2},
		{"negative alpha", -3, 2},
		{"zero beta", 30, 0},
		{"nan beta", 30, math.NaN()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := neutralConfig()
			conf.Survival.Alpha = tt.alpha
			conf.Survival.Beta = tt.beta
			_, err := NewModel(conf)
			require.Error(t, err)
			assert.True(t, eris.Is(err, config.ErrInvalidConfig))
		})
	}

	_, err := NewModel(nil)
	assert.Error(t, err)
}

func TestEstimateNeutralItem(t *testing.T) {
	m := newModel(t, neutralConfig())
	res, err := m.Estimate(Input{
		Price:     pricing.Estimate{Mu: 100, Sigma: 20},
		Condition: condition.New,
		Category:  "misc",
		Month:     time.March,
	})
	require.NoError(t, err)

	assert.Equal(t, 30.0, res.EffectiveAlpha)
	assert.Equal(t, 60.0, res.HorizonDays)
	assert.InDelta(t, 0.8, res.PSold, 1e-12) // (60/30)^2 / (1 + 4)
	assert.InDelta(t, -math.Log(0.2)/60, res.HazardRate, 1e-12)
	assert.Equal(t, 1.0, res.PriceFactor)
	assert.False(t, res.Ladder)
}

func TestEstimateAsymmetricElasticity(t *testing.T) {
	m := newModel(t, neutralConfig())
	base := Input{Price: pricing.Estimate{Mu: 100, Sigma: 20}, Condition: condition.New}

	over := 140.0 // z = +2
	under := 60.0 // z = -2
	fair := 100.0

	resFair, err := m.Estimate(withList(base, fair))
	require.NoError(t, err)
	resOver, err := m.Estimate(withList(base, over))
	require.NoError(t, err)
	resUnder, err := m.Estimate(withList(base, under))
	require.NoError(t, err)

	assert.InDelta(t, 2, resOver.PriceZ, 1e-12)
	assert.InDelta(t, 30*math.Exp(0.2), resOver.EffectiveAlpha, 1e-9)
	assert.Less(t, resOver.PSold, resFair.PSold)

	// underpricing earns no speed-up
	assert.InDelta(t, -2, resUnder.PriceZ, 1e-12)
	assert.Equal(t, resFair.EffectiveAlpha, resUnder.EffectiveAlpha)
	assert.Equal(t, resFair.PSold, resUnder.PSold)
}

func TestEstimateMissingSpreadUsesFallbackCV(t *testing.T) {
	conf := neutralConfig()
	conf.Valuation.FallbackCV = 0.5
	m := newModel(t, conf)

	list := 150.0
	res, err := m.Estimate(Input{Price: pricing.Estimate{Mu: 100}, ListPrice: &list})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.PriceZ, 1e-12)
}

func TestEstimateAppliesVelocityAndCategoryScale(t *testing.T) {
	conf := neutralConfig()
	conf.Valuation.ConditionVelocity = map[string]float64{"used_fair": 0.5}
	conf.Valuation.CategoryScale = map[string]float64{"furniture": 2}
	conf.Valuation.Seasonality = map[string]map[string]float64{"furniture": {"6": 1.25}}
	m := newModel(t, conf)

	res, err := m.Estimate(Input{
		Price:     pricing.Estimate{Mu: 300, Sigma: 50},
		Condition: condition.UsedFair,
		Category:  "Furniture",
		Month:     time.June,
	})
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Params.CategoryScale)
	assert.InDelta(t, 0.625, res.Params.VelocityAdjustment, 1e-12)
	assert.InDelta(t, 30*2/0.625, res.EffectiveAlpha, 1e-9)
}

func TestEstimateHorizonOverride(t *testing.T) {
	m := newModel(t, neutralConfig())
	res, err := m.Estimate(Input{Price: pricing.Estimate{Mu: 10, Sigma: 1}, HorizonDays: 30})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.PSold, 1e-12)
}

func TestApplyLadder(t *testing.T) {
	hazard := HazardRate(0.5, 60)

	// a flat ladder reproduces the single-price probability
	p, factor := ApplyLadder(hazard, 60, []config.LadderPhase{{DayOffset: 0, PriceMultiplier: 1}}, 2)
	assert.InDelta(t, 0.5, p, 1e-12)
	assert.InDelta(t, 1, factor, 1e-12)

	ladder := []config.LadderPhase{
		{DayOffset: 45, PriceMultiplier: 0.6},
		{DayOffset: 21, PriceMultiplier: 0.9},
	}
	p, factor = ApplyLadder(hazard, 60, ladder, 2)
	assert.Greater(t, p, 0.5)
	assert.Less(t, factor, 1.0)
	assert.Greater(t, factor, 0.6)

	// expected composition by hand
	s1 := math.Exp(-hazard * 21)
	s2 := math.Exp(-hazard * math.Pow(0.9, -2) * 24)
	s3 := math.Exp(-hazard * math.Pow(0.6, -2) * 15)
	assert.InDelta(t, 1-s1*s2*s3, p, 1e-12)
	weighted := (1-s1)*1 + s1*(1-s2)*0.9 + s1*s2*(1-s3)*0.6
	assert.InDelta(t, weighted/p, factor, 1e-12)
}

func TestApplyLadderIgnoresPhasesPastHorizon(t *testing.T) {
	hazard := HazardRate(0.4, 30)
	p, factor := ApplyLadder(hazard, 30, []config.LadderPhase{{DayOffset: 45, PriceMultiplier: 0.5}}, 2)
	assert.InDelta(t, 0.4, p, 1e-12)
	assert.InDelta(t, 1, factor, 1e-12)
}

func TestEstimateWithLadderReplacesProbability(t *testing.T) {
	m := newModel(t, neutralConfig())
	in := Input{Price: pricing.Estimate{Mu: 100, Sigma: 20}}
	plain, err := m.Estimate(in)
	require.NoError(t, err)

	in.Ladder = []config.LadderPhase{{DayOffset: 0, PriceMultiplier: 1}, {DayOffset: 21, PriceMultiplier: 0.9}, {DayOffset: 45, PriceMultiplier: 0.7}}
	laddered, err := m.Estimate(in)
	require.NoError(t, err)

	assert.True(t, laddered.Ladder)
	assert.Greater(t, laddered.PSold, plain.PSold)
	assert.InDelta(t, laddered.PSold, 1-math.Exp(-laddered.HazardRate*60), 1e-9)
	assert.Equal(t, plain.EffectiveAlpha, laddered.EffectiveAlpha)
}

func withList(in Input, list float64) Input {
	in.ListPrice = &list
	return in
}
