// Package manifest defines the header-normalized item record consumed by the
// valuation core and the YAML lot file that carries it.
package manifest

import (
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Secondary corroborating signals recognized by the evidence gate.
const (
	SignalOfferDepth     = "offer_depth"
	SignalRankVelocity   = "rank_velocity"
	SignalManualOverride = "manual_override"
)

// SourceManualOverride is the observation source created from a manual price.
const SourceManualOverride = "manual_override"

// manualReliability weights a manual override above marketplace comps.
const manualReliability = 4.0

// Number is a float that tolerates malformed input. Anything that does not
// parse as a finite number decodes as missing instead of failing the load.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a present Number.
func Num(v float64) Number {
	return Number{Value: v, Valid: true}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (n *Number) UnmarshalYAML(node *yaml.Node) error {
	*n = Number{}
	if node.Kind != yaml.ScalarNode {
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*n = Number{Value: v, Valid: true}
	return nil
}

// Or returns the value when present, fallback otherwise.
func (n Number) Or(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

// Observation is an externally-resolved price observation as it appears in
// a lot file.
type Observation struct {
	Source      string `yaml:"source"`
	Mean        Number `yaml:"mean"`
	StdDev      Number `yaml:"stdDev"`
	CV          Number `yaml:"cv"`
	SampleSize  Number `yaml:"sampleSize"`
	RecencyDays Number `yaml:"recencyDays"`
	Reliability Number `yaml:"reliability"`
}

// Identifiers holds catalog identifiers and the confidence of their match.
type Identifiers struct {
	UPC        string `yaml:"upc,omitempty"`
	EAN        string `yaml:"ean,omitempty"`
	ASIN       string `yaml:"asin,omitempty"`
	MPN        string `yaml:"mpn,omitempty"`
	Confidence Number `yaml:"confidence"`
}

// Any reports whether at least one identifier is present.
func (ids Identifiers) Any() bool {
	return ids.UPC != "" || ids.EAN != "" || ids.ASIN != "" || ids.MPN != ""
}

// RawItem is one manifest line before normalization.
type RawItem struct {
	ID               string        `yaml:"id"`
	Title            string        `yaml:"title"`
	Brand            string        `yaml:"brand"`
	Model            string        `yaml:"model"`
	Condition        string        `yaml:"condition"`
	Category         string        `yaml:"category"`
	Quantity         Number        `yaml:"quantity"`
	ListPrice        Number        `yaml:"listPrice"`
	ManualPrice      Number        `yaml:"manualPrice"`
	CompCount        Number        `yaml:"compCount"`
	OpsMinutes       Number        `yaml:"opsMinutes"`
	Identifiers      Identifiers   `yaml:"identifiers"`
	SecondarySignals []string      `yaml:"secondarySignals"`
	Observations     []Observation `yaml:"observations"`
}

// Lot is a lot manifest file.
type Lot struct {
	Name  string    `yaml:"name"`
	Month Number    `yaml:"month"`
	Items []RawItem `yaml:"items"`
}

// LoadLot reads a YAML lot manifest.
func LoadLot(path string) (*Lot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read lot %q", path)
	}
	return ParseLot(data)
}

// ParseLot decodes a YAML lot manifest.
func ParseLot(data []byte) (*Lot, error) {
	var lot Lot
	if err := yaml.Unmarshal(data, &lot); err != nil {
		return nil, eris.Wrap(err, "parse lot YAML")
	}
	return &lot, nil
}

// SaleMonth returns the lot's month for seasonality lookups, falling back to
// now when the manifest does not carry a valid 1-12 month.
func (l *Lot) SaleMonth(now time.Time) time.Month {
	if l != nil && l.Month.Valid {
		if m := int(l.Month.Value); m >= 1 && m <= 12 {
			return time.Month(m)
		}
	}
	return now.Month()
}
