// Package constants provides shared constants for the lotbid application.
package constants

// Numerical guards
const (
	// Epsilon guards logarithms and divisions against zero.
	Epsilon = 1e-9

	// CurrencyTolerance is the tolerance for currency comparisons (1 cent)
	CurrencyTolerance = 0.01

	// DecimalPlaces is the precision for currency rounding
	DecimalPlaces = 2

	// PercentageMultiplier is used for percentage conversions
	PercentageMultiplier = 100.0
)

// Valuation defaults
const (
	// DefaultHorizonDays is the sell-through horizon used when none is configured.
	DefaultHorizonDays = 60

	// DefaultFallbackCV is the coefficient of variation substituted for
	// observations or estimates that carry no spread.
	DefaultFallbackCV = 0.35

	// DefaultElasticityK scales the overpricing penalty on survival alpha.
	DefaultElasticityK = 0.1

	// DefaultSalvageFloor is the global price floor in dollars.
	DefaultSalvageFloor = 1.0

	// MinutesPerHour converts staffing hours to minutes.
	MinutesPerHour = 60

	// MaxQuantity caps a single manifest line's unit count.
	MaxQuantity = 1_000_000
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"

	// OutputFormatJSON is the JSON output format
	OutputFormatJSON = "json"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// DefaultLotFile is the default lot manifest file name
	DefaultLotFile = "lot.yaml"

	// EnvPrefix is the prefix for environment overrides (LOTBID_SIMULATION_TRIALS, ...)
	EnvPrefix = "LOTBID"
)
