// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating it.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is the root of every configuration error. Configuration
// errors are fatal and never retried.
var ErrInvalidConfig = eris.New("invalid configuration")

// Configuration holds all configuration for a lotbid run. It is loaded once
// and treated as read-only afterwards.
type Configuration struct {
	Logging     LoggingConfig     `yaml:"logging,omitempty" mapstructure:"logging"`
	Output      OutputConfig      `yaml:"output,omitempty" mapstructure:"output"`
	Storage     StorageConfig     `yaml:"storage,omitempty" mapstructure:"storage"`
	Valuation   ValuationConfig   `yaml:"valuation" mapstructure:"valuation"`
	Survival    SurvivalConfig    `yaml:"survival" mapstructure:"survival"`
	Gate        GateConfig        `yaml:"gate" mapstructure:"gate"`
	Simulation  SimulationConfig  `yaml:"simulation" mapstructure:"simulation"`
	Acquisition AcquisitionConfig `yaml:"acquisition" mapstructure:"acquisition"`
	Throughput  ThroughputConfig  `yaml:"throughput" mapstructure:"throughput"`
	Optimizer   OptimizerConfig   `yaml:"optimizer" mapstructure:"optimizer"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, json, csv
}

// StorageConfig controls where run history is persisted. An empty path
// disables persistence.
type StorageConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// ValuationConfig holds the adjustment tables shared by the price aggregator
// and the survival estimator.
type ValuationConfig struct {
	FallbackCV           float64                       `yaml:"fallbackCV" mapstructure:"fallbackCV"`
	SalvageFloor         float64                       `yaml:"salvageFloor" mapstructure:"salvageFloor"`
	HighTrustConfidence  float64                       `yaml:"highTrustConfidence" mapstructure:"highTrustConfidence"`
	ConditionMultipliers map[string]float64            `yaml:"conditionMultipliers" mapstructure:"conditionMultipliers"`
	ConditionVelocity    map[string]float64            `yaml:"conditionVelocity" mapstructure:"conditionVelocity"`
	CategoryFloors       map[string]float64            `yaml:"categoryFloors" mapstructure:"categoryFloors"`
	CategoryScale        map[string]float64            `yaml:"categoryScale" mapstructure:"categoryScale"`
	Seasonality          map[string]map[string]float64 `yaml:"seasonality" mapstructure:"seasonality"`
}

// SurvivalConfig holds the base log-logistic parameters.
type SurvivalConfig struct {
	Alpha            float64       `yaml:"alpha" mapstructure:"alpha"` // days to 50% sold
	Beta             float64       `yaml:"beta" mapstructure:"beta"`   // shape
	HorizonDays      float64       `yaml:"horizonDays" mapstructure:"horizonDays"`
	ElasticityK      float64       `yaml:"elasticityK" mapstructure:"elasticityK"`
	LadderEnabled    bool          `yaml:"ladderEnabled" mapstructure:"ladderEnabled"`
	LadderElasticity float64       `yaml:"ladderElasticity" mapstructure:"ladderElasticity"`
	Ladder           []LadderPhase `yaml:"ladder,omitempty" mapstructure:"ladder"`
}

// LadderPhase is one step of a markdown schedule.
type LadderPhase struct {
	DayOffset       float64 `yaml:"dayOffset" mapstructure:"dayOffset"`
	PriceMultiplier float64 `yaml:"priceMultiplier" mapstructure:"priceMultiplier"`
}

// GateConfig holds the evidence gate thresholds.
type GateConfig struct {
	BaseThreshold int      `yaml:"baseThreshold" mapstructure:"baseThreshold"`
	BonusPerFlag  int      `yaml:"bonusPerFlag" mapstructure:"bonusPerFlag"`
	MaxThreshold  int      `yaml:"maxThreshold" mapstructure:"maxThreshold"`
	GenericTerms  []string `yaml:"genericTerms,omitempty" mapstructure:"genericTerms"`
}

// SimulationConfig holds Monte Carlo parameters.
type SimulationConfig struct {
	Trials                int     `yaml:"trials" mapstructure:"trials"`
	Workers               int     `yaml:"workers" mapstructure:"workers"`
	Seed                  int64   `yaml:"seed" mapstructure:"seed"`
	Distribution          string  `yaml:"distribution" mapstructure:"distribution"` // lognormal, normal
	MissingRate           float64 `yaml:"missingRate" mapstructure:"missingRate"`
	MissingRecovery       float64 `yaml:"missingRecovery" mapstructure:"missingRecovery"`
	DefectRate            float64 `yaml:"defectRate" mapstructure:"defectRate"`
	DefectRecovery        float64 `yaml:"defectRecovery" mapstructure:"defectRecovery"`
	MismatchRate          float64 `yaml:"mismatchRate" mapstructure:"mismatchRate"`
	MismatchDiscount      float64 `yaml:"mismatchDiscount" mapstructure:"mismatchDiscount"`
	PayoutLagDays         float64 `yaml:"payoutLagDays" mapstructure:"payoutLagDays"`
	SalvageFraction       float64 `yaml:"salvageFraction" mapstructure:"salvageFraction"`
	MarketplaceFee        float64 `yaml:"marketplaceFee" mapstructure:"marketplaceFee"`
	OpsCostPerMinute      float64 `yaml:"opsCostPerMinute" mapstructure:"opsCostPerMinute"`
	OpsMinutesPerUnit     float64 `yaml:"opsMinutesPerUnit" mapstructure:"opsMinutesPerUnit"`
	StorageCostPerUnitDay float64 `yaml:"storageCostPerUnitDay" mapstructure:"storageCostPerUnitDay"`
}

// AcquisitionConfig converts a hammer bid into total acquisition cost.
type AcquisitionConfig struct {
	BuyerPremium float64 `yaml:"buyerPremium" mapstructure:"buyerPremium"` // fraction of bid
	SalesTax     float64 `yaml:"salesTax" mapstructure:"salesTax"`         // fraction of bid plus premium
	Freight      float64 `yaml:"freight" mapstructure:"freight"`           // flat dollars
}

// ThroughputConfig describes processing capacity over the horizon.
type ThroughputConfig struct {
	StaffHoursPerDay float64 `yaml:"staffHoursPerDay" mapstructure:"staffHoursPerDay"`
	WorkingDays      float64 `yaml:"workingDays" mapstructure:"workingDays"`
	AvailableMinutes float64 `yaml:"availableMinutes" mapstructure:"availableMinutes"` // overrides staff hours when > 0
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. An empty path yields the defaults. Environment
// variables prefixed with LOTBID_ override file values.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := newViper()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, eris.Wrapf(err, "error reading config file %s", configPath)
		}
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, eris.Wrap(err, "unable to decode into struct")
	}

	configuration.Normalize()
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

// Default returns a normalized configuration built purely from defaults.
func Default() *Configuration {
	v := newViper()
	var configuration Configuration
	// Defaults are plain values; decoding them cannot fail.
	_ = v.Unmarshal(&configuration)
	configuration.Normalize()
	return &configuration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("output.format", constants.OutputFormatPretty)

	v.SetDefault("valuation.fallbackCV", constants.DefaultFallbackCV)
	v.SetDefault("valuation.salvageFloor", constants.DefaultSalvageFloor)
	v.SetDefault("valuation.highTrustConfidence", 0.9)
	v.SetDefault("valuation.conditionMultipliers", map[string]float64{
		string(condition.New):      1.0,
		string(condition.LikeNew):  0.9,
		string(condition.OpenBox):  0.85,
		string(condition.UsedGood): 0.7,
		string(condition.UsedFair): 0.55,
		string(condition.ForParts): 0.25,
		string(condition.Unknown):  0.6,
	})
	v.SetDefault("valuation.conditionVelocity", map[string]float64{
		string(condition.New):      1.0,
		string(condition.LikeNew):  0.95,
		string(condition.OpenBox):  0.9,
		string(condition.UsedGood): 0.8,
		string(condition.UsedFair): 0.7,
		string(condition.ForParts): 0.5,
		string(condition.Unknown):  0.75,
	})
	v.SetDefault("valuation.categoryFloors", map[string]float64{
		"electronics": 5.0,
		"appliances":  10.0,
		"furniture":   15.0,
	})
	v.SetDefault("valuation.categoryScale", map[string]float64{
		"electronics": 0.9,
		"apparel":     1.3,
		"furniture":   1.5,
		"toys":        1.1,
	})
	v.SetDefault("valuation.seasonality", map[string]map[string]float64{
		"toys":        {"1": 0.85, "10": 1.1, "11": 1.2, "12": 1.3},
		"electronics": {"1": 0.95, "11": 1.1, "12": 1.15},
		"outdoor":     {"4": 1.05, "5": 1.15, "6": 1.2, "7": 1.15, "11": 0.85, "12": 0.8},
	})

	v.SetDefault("survival.alpha", 30.0)
	v.SetDefault("survival.beta", 2.0)
	v.SetDefault("survival.horizonDays", float64(constants.DefaultHorizonDays))
	v.SetDefault("survival.elasticityK", constants.DefaultElasticityK)
	v.SetDefault("survival.ladderEnabled", false)
	v.SetDefault("survival.ladderElasticity", 2.0)

	v.SetDefault("gate.baseThreshold", 3)
	v.SetDefault("gate.bonusPerFlag", 1)
	v.SetDefault("gate.maxThreshold", 5)

	v.SetDefault("simulation.trials", 2000)
	v.SetDefault("simulation.workers", 4)
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.distribution", DistributionLognormal)
	v.SetDefault("simulation.missingRate", 0.03)
	v.SetDefault("simulation.missingRecovery", 0.0)
	v.SetDefault("simulation.defectRate", 0.08)
	v.SetDefault("simulation.defectRecovery", 0.4)
	v.SetDefault("simulation.mismatchRate", 0.05)
	v.SetDefault("simulation.mismatchDiscount", 0.2)
	v.SetDefault("simulation.payoutLagDays", 7.0)
	v.SetDefault("simulation.salvageFraction", 0.15)
	v.SetDefault("simulation.marketplaceFee", 0.13)
	v.SetDefault("simulation.opsCostPerMinute", 0.5)
	v.SetDefault("simulation.opsMinutesPerUnit", 6.0)
	v.SetDefault("simulation.storageCostPerUnitDay", 0.02)

	v.SetDefault("acquisition.buyerPremium", 0.15)
	v.SetDefault("acquisition.salesTax", 0.0)
	v.SetDefault("acquisition.freight", 0.0)

	v.SetDefault("throughput.staffHoursPerDay", 4.0)
	v.SetDefault("throughput.workingDays", 20.0)

	v.SetDefault("optimizer.min", 10.0)
	v.SetDefault("optimizer.max", 1000.0)
	v.SetDefault("optimizer.tolerance", defaultBidTolerance)
	v.SetDefault("optimizer.maxIterations", defaultMaxIterations)
	v.SetDefault("optimizer.roiTarget", 1.25)
	v.SetDefault("optimizer.riskThreshold", 0.8)
	v.SetDefault("optimizer.cashFloor", 0.0)
	v.SetDefault("optimizer.redraw", false)
}

// Distribution names accepted by the simulator.
const (
	DistributionLognormal = "lognormal"
	DistributionNormal    = "normal"
)

// Normalize fills defaults for zero values and canonicalizes table keys.
// Configuration built in code (tests, library callers) goes through the same
// path as configuration loaded from disk.
func (c *Configuration) Normalize() {
	val := &c.Valuation
	if val.FallbackCV <= 0 {
		val.FallbackCV = constants.DefaultFallbackCV
	}
	if val.SalvageFloor < 0 {
		val.SalvageFloor = 0
	}
	val.ConditionMultipliers = lowerKeys(val.ConditionMultipliers)
	val.ConditionVelocity = lowerKeys(val.ConditionVelocity)
	val.CategoryFloors = lowerKeys(val.CategoryFloors)
	val.CategoryScale = lowerKeys(val.CategoryScale)
	if val.Seasonality != nil {
		seasonality := make(map[string]map[string]float64, len(val.Seasonality))
		for category, months := range val.Seasonality {
			seasonality[CanonicalCategory(category)] = lowerKeys(months)
		}
		val.Seasonality = seasonality
	}

	if c.Survival.HorizonDays <= 0 {
		c.Survival.HorizonDays = constants.DefaultHorizonDays
	}
	if c.Survival.ElasticityK < 0 {
		c.Survival.ElasticityK = 0
	}

	if c.Simulation.Workers <= 0 {
		c.Simulation.Workers = 1
	}
	c.Simulation.Distribution = strings.ToLower(strings.TrimSpace(c.Simulation.Distribution))
	if c.Simulation.Distribution == "" {
		c.Simulation.Distribution = DistributionLognormal
	}

	if c.Throughput.WorkingDays <= 0 {
		c.Throughput.WorkingDays = c.Survival.HorizonDays
	}

	c.Optimizer.Normalize()
}

// Validate returns a configuration error for values the core cannot run with.
func (c *Configuration) Validate() error {
	if c.Survival.Alpha <= 0 {
		return Invalid("survival.alpha must be positive, got %v", c.Survival.Alpha)
	}
	if c.Survival.Beta <= 0 {
		return Invalid("survival.beta must be positive, got %v", c.Survival.Beta)
	}
	for _, phase := range c.Survival.Ladder {
		if phase.DayOffset < 0 {
			return Invalid("survival.ladder day offset must not be negative, got %v", phase.DayOffset)
		}
		if phase.PriceMultiplier <= 0 {
			return Invalid("survival.ladder price multiplier must be positive, got %v", phase.PriceMultiplier)
		}
	}

	if c.Gate.BaseThreshold < 0 || c.Gate.BonusPerFlag < 0 || c.Gate.MaxThreshold < 0 {
		return Invalid("gate thresholds must not be negative (base %d, bonus %d, max %d)",
			c.Gate.BaseThreshold, c.Gate.BonusPerFlag, c.Gate.MaxThreshold)
	}
	if c.Gate.MaxThreshold < c.Gate.BaseThreshold {
		return Invalid("gate.maxThreshold %d must be at least gate.baseThreshold %d",
			c.Gate.MaxThreshold, c.Gate.BaseThreshold)
	}

	for name, table := range map[string]map[string]float64{
		"valuation.conditionMultipliers": c.Valuation.ConditionMultipliers,
		"valuation.conditionVelocity":    c.Valuation.ConditionVelocity,
		"valuation.categoryScale":        c.Valuation.CategoryScale,
	} {
		for key, value := range table {
			if value <= 0 {
				return Invalid("%s[%s] must be positive, got %v", name, key, value)
			}
		}
	}
	for category, months := range c.Valuation.Seasonality {
		for month, value := range months {
			if _, ok := parseMonth(month); !ok {
				return Invalid("valuation.seasonality[%s] has unknown month %q", category, month)
			}
			if value <= 0 {
				return Invalid("valuation.seasonality[%s][%s] must be positive, got %v", category, month, value)
			}
		}
	}
	for category, floor := range c.Valuation.CategoryFloors {
		if floor < 0 {
			return Invalid("valuation.categoryFloors[%s] must not be negative, got %v", category, floor)
		}
	}

	sim := c.Simulation
	if sim.Trials <= 0 {
		return Invalid("simulation.trials must be positive, got %d", sim.Trials)
	}
	if sim.Distribution != DistributionLognormal && sim.Distribution != DistributionNormal {
		return Invalid("simulation.distribution %q is not supported", sim.Distribution)
	}
	for name, value := range map[string]float64{
		"simulation.missingRate":      sim.MissingRate,
		"simulation.missingRecovery":  sim.MissingRecovery,
		"simulation.defectRate":       sim.DefectRate,
		"simulation.defectRecovery":   sim.DefectRecovery,
		"simulation.mismatchRate":     sim.MismatchRate,
		"simulation.mismatchDiscount": sim.MismatchDiscount,
		"simulation.salvageFraction":  sim.SalvageFraction,
		"simulation.marketplaceFee":   sim.MarketplaceFee,
	} {
		if value < 0 || value > 1 {
			return Invalid("%s must be within [0, 1], got %v", name, value)
		}
	}
	for name, value := range map[string]float64{
		"simulation.payoutLagDays":         sim.PayoutLagDays,
		"simulation.opsCostPerMinute":      sim.OpsCostPerMinute,
		"simulation.opsMinutesPerUnit":     sim.OpsMinutesPerUnit,
		"simulation.storageCostPerUnitDay": sim.StorageCostPerUnitDay,
		"acquisition.buyerPremium":         c.Acquisition.BuyerPremium,
		"acquisition.salesTax":             c.Acquisition.SalesTax,
		"acquisition.freight":              c.Acquisition.Freight,
		"throughput.staffHoursPerDay":      c.Throughput.StaffHoursPerDay,
		"throughput.availableMinutes":      c.Throughput.AvailableMinutes,
	} {
		if value < 0 {
			return Invalid("%s must not be negative, got %v", name, value)
		}
	}

	return c.Optimizer.Validate()
}

// Warnings returns non-fatal notes about the configuration.
func (c *Configuration) Warnings() []string {
	var warnings []string
	if c.Simulation.PayoutLagDays >= c.Survival.HorizonDays {
		warnings = append(warnings, "simulation.payoutLagDays is at or beyond the horizon; no sale proceeds reach cash at horizon")
	}
	if c.Simulation.Trials < 500 {
		warnings = append(warnings, "simulation.trials below 500; percentile estimates will be noisy")
	}
	if c.Survival.LadderEnabled && len(c.Survival.Ladder) == 0 {
		warnings = append(warnings, "survival.ladderEnabled is set but no ladder phases are configured")
	}
	if c.Optimizer.Redraw {
		warnings = append(warnings, "optimizer.redraw is set; bisection steps use independent draws and results are not reproducible across bracket changes")
	}
	return warnings
}

// AcquisitionCost converts a hammer bid into the total cash outlay.
func (c *Configuration) AcquisitionCost(bid float64) float64 {
	withPremium := bid * (1 + c.Acquisition.BuyerPremium)
	return withPremium*(1+c.Acquisition.SalesTax) + c.Acquisition.Freight
}

// AvailableMinutes returns processing capacity over the horizon.
func (c *Configuration) AvailableMinutes() float64 {
	if c.Throughput.AvailableMinutes > 0 {
		return c.Throughput.AvailableMinutes
	}
	return c.Throughput.StaffHoursPerDay * constants.MinutesPerHour * c.Throughput.WorkingDays
}

// ConditionMultiplier returns the price multiplier for a condition bucket.
func (v ValuationConfig) ConditionMultiplier(bucket condition.Bucket) float64 {
	return lookup(v.ConditionMultipliers, string(bucket), 1.0)
}

// ConditionVelocityFactor returns the sell-speed factor for a condition bucket.
func (v ValuationConfig) ConditionVelocityFactor(bucket condition.Bucket) float64 {
	return lookup(v.ConditionVelocity, string(bucket), 1.0)
}

// CategoryScaleFactor returns the survival alpha scale for a category.
func (v ValuationConfig) CategoryScaleFactor(category string) float64 {
	return lookup(v.CategoryScale, CanonicalCategory(category), 1.0)
}

// Floor returns the category floor, falling back to the global salvage floor.
func (v ValuationConfig) Floor(category string) float64 {
	return lookup(v.CategoryFloors, CanonicalCategory(category), v.SalvageFloor)
}

// SeasonalityFactor returns the multiplier for a category and calendar
// month. Unknown categories or months yield 1.0.
func (v ValuationConfig) SeasonalityFactor(category string, month time.Month) float64 {
	months, ok := v.Seasonality[CanonicalCategory(category)]
	if !ok {
		return 1.0
	}
	for key, value := range months {
		if m, ok := parseMonth(key); ok && m == month {
			return value
		}
	}
	return 1.0
}

// CanonicalCategory lowercases and trims a category name.
func CanonicalCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func parseMonth(key string) (time.Month, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if n, err := strconv.Atoi(key); err == nil {
		if n >= 1 && n <= 12 {
			return time.Month(n), true
		}
		return 0, false
	}
	for m := time.January; m <= time.December; m++ {
		name := strings.ToLower(m.String())
		if key == name || key == name[:3] {
			return m, true
		}
	}
	return 0, false
}

func lookup(table map[string]float64, key string, fallback float64) float64 {
	if value, ok := table[key]; ok {
		return value
	}
	return fallback
}

func lowerKeys(table map[string]float64) map[string]float64 {
	if table == nil {
		return nil
	}
	lowered := make(map[string]float64, len(table))
	for key, value := range table {
		lowered[strings.ToLower(strings.TrimSpace(key))] = value
	}
	return lowered
}

// Invalid builds a configuration error wrapping ErrInvalidConfig.
func Invalid(format string, args ...interface{}) error {
	return eris.Wrapf(ErrInvalidConfig, format, args...)
}
