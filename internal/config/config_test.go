package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		configPath string
		wantError  bool
	}{
		{
			name:       "Non-existent config file",
			configPath: "nonexistent.yaml",
			wantError:  true,
		},
		{
			name:       "Empty path uses defaults",
			configPath: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := LoadConfiguration(tt.configPath)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, conf)
		})
	}
}

func TestLoadConfigurationFromFile(t *testing.T) {
	path := writeConfig(t, `
survival:
  alpha: 21
  beta: 3
gate:
  baseThreshold: 2
  bonusPerFlag: 2
  maxThreshold: 6
valuation:
  categoryFloors:
    Kitchen: 4
  seasonality:
    Garden:
      may: 1.3
simulation:
  trials: 800
optimizer:
  min: 50
  max: 5000
  roiTarget: 1.5
`)

	conf, err := LoadConfiguration(path)
	require.NoError(t, err)

	assert.Equal(t, 21.0, conf.Survival.Alpha)
	assert.Equal(t, 3.0, conf.Survival.Beta)
	assert.Equal(t, 2, conf.Gate.BaseThreshold)
	assert.Equal(t, 6, conf.Gate.MaxThreshold)
	assert.Equal(t, 800, conf.Simulation.Trials)
	assert.Equal(t, 5000.0, conf.Optimizer.Max)
	assert.Equal(t, 1.5, conf.Optimizer.ROITarget)
	assert.Equal(t, 4.0, conf.Valuation.Floor("kitchen"))
	assert.Equal(t, 1.3, conf.Valuation.SeasonalityFactor("GARDEN", time.May))

	// untouched keys keep their defaults
	assert.Equal(t, 60.0, conf.Survival.HorizonDays)
	assert.Equal(t, 0.8, conf.Optimizer.RiskThreshold)
}

func TestLoadConfigurationRejectsInvalidSurvival(t *testing.T) {
	path := writeConfig(t, `
survival:
  alpha: 0
`)
	_, err := LoadConfiguration(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "survival.alpha")
}

func TestLoadConfigurationEnvOverride(t *testing.T) {
	t.Setenv("LOTBID_SIMULATION_TRIALS", "1234")
	conf, err := LoadConfiguration("")
	require.NoError(t, err)
	assert.Equal(t, 1234, conf.Simulation.Trials)
}

func TestDefault(t *testing.T) {
	conf := Default()
	require.NoError(t, conf.Validate())

	assert.Equal(t, 3, conf.Gate.BaseThreshold)
	assert.Equal(t, 1, conf.Gate.BonusPerFlag)
	assert.Equal(t, 5, conf.Gate.MaxThreshold)
	assert.Equal(t, DistributionLognormal, conf.Simulation.Distribution)
	assert.Equal(t, 1.0, conf.Valuation.ConditionMultiplier(condition.New))
	assert.Less(t, conf.Valuation.ConditionMultiplier(condition.ForParts), conf.Valuation.ConditionMultiplier(condition.UsedFair))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Configuration)
		wantErr string
	}{
		{"negative beta", func(c *Configuration) { c.Survival.Beta = -1 }, "survival.beta"},
		{"negative gate threshold", func(c *Configuration) { c.Gate.BaseThreshold = -1 }, "gate thresholds"},
		{"max below base", func(c *Configuration) { c.Gate.MaxThreshold = 1 }, "gate.maxThreshold"},
		{"zero trials", func(c *Configuration) { c.Simulation.Trials = 0 }, "simulation.trials"},
		{"rate above one", func(c *Configuration) { c.Simulation.DefectRate = 1.5 }, "simulation.defectRate"},
		{"negative lag", func(c *Configuration) { c.Simulation.PayoutLagDays = -2 }, "simulation.payoutLagDays"},
		{"unknown distribution", func(c *Configuration) { c.Simulation.Distribution = "cauchy" }, "distribution"},
		{"zero condition multiplier", func(c *Configuration) { c.Valuation.ConditionMultipliers["new"] = 0 }, "conditionMultipliers"},
		{"bad seasonality month", func(c *Configuration) {
			c.Valuation.Seasonality["toys"] = map[string]float64{"13": 1.1}
		}, "unknown month"},
		{"ladder multiplier", func(c *Configuration) {
			c.Survival.Ladder = []LadderPhase{{DayOffset: 0, PriceMultiplier: 0}}
		}, "price multiplier"},
		{"inverted bracket", func(c *Configuration) { c.Optimizer.Min = 500; c.Optimizer.Max = 100 }, "less than maximum"},
		{"risk threshold", func(c *Configuration) { c.Optimizer.RiskThreshold = 1.2 }, "riskThreshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Default()
			tt.mutate(conf)
			err := conf.Validate()
			require.Error(t, err)
			assert.True(t, eris.Is(err, ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWarnings(t *testing.T) {
	conf := Default()
	assert.Empty(t, conf.Warnings())

	conf.Simulation.PayoutLagDays = 90
	conf.Simulation.Trials = 100
	conf.Survival.LadderEnabled = true
	warnings := conf.Warnings()
	assert.Len(t, warnings, 3)
}

func TestSeasonalityFactor(t *testing.T) {
	conf := Default()
	assert.Equal(t, 1.3, conf.Valuation.SeasonalityFactor("Toys", time.December))
	assert.Equal(t, 1.0, conf.Valuation.SeasonalityFactor("toys", time.March))
	assert.Equal(t, 1.0, conf.Valuation.SeasonalityFactor("unheard-of", time.December))
}

func TestFloorFallsBackToSalvageFloor(t *testing.T) {
	conf := Default()
	assert.Equal(t, 10.0, conf.Valuation.Floor("Appliances"))
	assert.Equal(t, conf.Valuation.SalvageFloor, conf.Valuation.Floor("books"))
}

func TestAcquisitionCost(t *testing.T) {
	conf := Default()
	conf.Acquisition = AcquisitionConfig{BuyerPremium: 0.1, SalesTax: 0.05, Freight: 40}
	assert.InDelta(t, 100*1.1*1.05+40, conf.AcquisitionCost(100), 1e-9)
}

func TestAvailableMinutes(t *testing.T) {
	conf := Default()
	conf.Throughput = ThroughputConfig{StaffHoursPerDay: 2, WorkingDays: 10}
	assert.Equal(t, 1200.0, conf.AvailableMinutes())

	conf.Throughput.AvailableMinutes = 90
	assert.Equal(t, 90.0, conf.AvailableMinutes())
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		key  string
		want time.Month
		ok   bool
	}{
		{"1", time.January, true},
		{"12", time.December, true},
		{"Nov", time.November, true},
		{"september", time.September, true},
		{"0", 0, false},
		{"smarch", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseMonth(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}
