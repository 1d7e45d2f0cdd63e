package manifest

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/internal/pricing"
	"github.com/iwvelando/lotbid/pkg/constants"
)

// Item is the strict item record every core function consumes. Optional
// fields are pointers; everything else has been defaulted by Normalize.
type Item struct {
	ID               string
	Title            string
	Brand            string
	Model            string
	Condition        condition.Bucket
	RawCondition     string
	Category         string
	Quantity         int
	QuantityCapped   bool // raw quantity exceeded constants.MaxQuantity
	ListPrice        *float64
	ManualPrice      *float64
	OpsMinutes       *float64
	CompCount        int
	HighTrustID      bool
	SecondarySignals []string
	Observations     []pricing.Observation
}

var knownSignals = map[string]bool{
	SignalOfferDepth:     true,
	SignalRankVelocity:   true,
	SignalManualOverride: true,
}

// Normalize converts a raw manifest line into an Item. It runs once at the
// system boundary; malformed numerics become missing rather than errors.
func Normalize(raw RawItem, index int, valuation config.ValuationConfig) Item {
	item := Item{
		ID:           strings.TrimSpace(raw.ID),
		Title:        strings.TrimSpace(raw.Title),
		Brand:        strings.TrimSpace(raw.Brand),
		Model:        strings.TrimSpace(raw.Model),
		RawCondition: raw.Condition,
		Condition:    condition.Normalize(raw.Condition),
		Category:     config.CanonicalCategory(raw.Category),
		Quantity:     1,
	}
	if item.ID == "" {
		item.ID = fmt.Sprintf("item-%d", index+1)
	}

	if q := raw.Quantity.Or(1); q > constants.MaxQuantity {
		item.Quantity = constants.MaxQuantity
		item.QuantityCapped = true
	} else if q >= 1 {
		item.Quantity = int(math.Floor(q))
	}
	item.ListPrice = positive(raw.ListPrice)
	item.ManualPrice = positive(raw.ManualPrice)
	if raw.OpsMinutes.Valid && raw.OpsMinutes.Value >= 0 {
		minutes := raw.OpsMinutes.Value
		item.OpsMinutes = &minutes
	}

	item.HighTrustID = raw.Identifiers.Any() && raw.Identifiers.Confidence.Or(0) >= valuation.HighTrustConfidence

	signals := make(map[string]bool)
	for _, s := range raw.SecondarySignals {
		key := strings.ToLower(strings.TrimSpace(s))
		if knownSignals[key] {
			signals[key] = true
		}
	}

	compsFromSamples := 0
	for _, obs := range raw.Observations {
		converted := pricing.Observation{
			SourceID:    strings.TrimSpace(obs.Source),
			Mean:        obs.Mean.Or(0),
			StdDev:      obs.StdDev.Or(0),
			CV:          obs.CV.Or(0),
			SampleSize:  int(math.Max(0, obs.SampleSize.Or(0))),
			RecencyDays: obs.RecencyDays.Or(0),
			Reliability: obs.Reliability.Or(0),
		}
		if converted.SourceID != SourceManualOverride {
			compsFromSamples += converted.SampleSize
		}
		item.Observations = append(item.Observations, converted)
	}

	if item.ManualPrice != nil {
		item.Observations = append(item.Observations, pricing.Observation{
			SourceID:    SourceManualOverride,
			Mean:        *item.ManualPrice,
			SampleSize:  1,
			Reliability: manualReliability,
		})
		signals[SignalManualOverride] = true
	}

	if raw.CompCount.Valid && raw.CompCount.Value >= 0 {
		item.CompCount = int(math.Floor(raw.CompCount.Value))
	} else {
		item.CompCount = compsFromSamples
	}

	for s := range signals {
		item.SecondarySignals = append(item.SecondarySignals, s)
	}
	sort.Strings(item.SecondarySignals)

	return item
}

// NormalizeLot normalizes every line of a lot.
func NormalizeLot(lot *Lot, valuation config.ValuationConfig) []Item {
	if lot == nil {
		return nil
	}
	items := make([]Item, 0, len(lot.Items))
	for i, raw := range lot.Items {
		items = append(items, Normalize(raw, i, valuation))
	}
	return items
}

func positive(n Number) *float64 {
	if !n.Valid || n.Value <= 0 {
		return nil
	}
	v := n.Value
	return &v
}
