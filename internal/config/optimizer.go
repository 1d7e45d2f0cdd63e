package config

import (
	"math"
)

const (
	defaultBidTolerance  = 1.0
	defaultMaxIterations = 50
)

// OptimizerConfig defines the bid search bracket and the constraints a
// candidate bid must satisfy.
type OptimizerConfig struct {
	Min           float64 `yaml:"min" mapstructure:"min"`
	Max           float64 `yaml:"max" mapstructure:"max"`
	Tolerance     float64 `yaml:"tolerance,omitempty" mapstructure:"tolerance"`
	MaxIterations int     `yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	ROITarget     float64 `yaml:"roiTarget" mapstructure:"roiTarget"`
	RiskThreshold float64 `yaml:"riskThreshold" mapstructure:"riskThreshold"`
	CashFloor     float64 `yaml:"cashFloor" mapstructure:"cashFloor"`
	// Redraw makes every bisection step run a fresh simulation instead of
	// reusing one set of draws for the whole search.
	Redraw bool `yaml:"redraw,omitempty" mapstructure:"redraw"`
}

// Normalize ensures defaults are applied before validation.
func (o *OptimizerConfig) Normalize() {
	if o == nil {
		return
	}
	if o.Tolerance <= 0 {
		o.Tolerance = defaultBidTolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = defaultMaxIterations
	}
}

// Validate returns an error when the optimizer configuration is unusable.
func (o *OptimizerConfig) Validate() error {
	if o == nil {
		return Invalid("optimizer configuration cannot be nil")
	}

	o.Normalize()

	if math.IsNaN(o.Min) || math.IsNaN(o.Max) {
		return Invalid("optimizer bounds must be numeric")
	}
	if o.Min < 0 {
		return Invalid("optimizer minimum %.2f must not be negative", o.Min)
	}
	if o.Min >= o.Max {
		return Invalid("optimizer minimum %.2f must be less than maximum %.2f", o.Min, o.Max)
	}
	if o.ROITarget < 0 {
		return Invalid("optimizer roiTarget %.2f must not be negative", o.ROITarget)
	}
	if o.RiskThreshold < 0 || o.RiskThreshold > 1 {
		return Invalid("optimizer riskThreshold %.2f must be within [0, 1]", o.RiskThreshold)
	}
	return nil
}
