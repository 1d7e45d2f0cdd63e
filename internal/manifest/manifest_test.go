package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/pkg/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLot = `
name: Returns pallet 42
month: 12
items:
  - id: sku-1
    title: KitchenAid Stand Mixer
    brand: KitchenAid
    condition: Open Box
    category: Appliances
    quantity: 2
    listPrice: "$249.99"
    compCount: 3
    secondarySignals: [offer_depth, Rank_Velocity, made_up]
    observations:
      - source: ebay_sold
        mean: "1,199.50"
        stdDev: 40
        sampleSize: 12
      - source: amazon
        mean: n/a
  - title: Lot of assorted damaged parts
    condition: "???"
    quantity: -4
    opsMinutes: abc
    manualPrice: 15
  - title: Sony headphones
    brand: Sony
    identifiers:
      upc: "027242920378"
      confidence: 0.95
    observations:
      - source: keepa
        mean: 180
        sampleSize: 5
      - source: ebay_sold
        mean: 170
        sampleSize: 7
`

func TestParseLotCoercesMalformedNumbers(t *testing.T) {
	lot, err := ParseLot([]byte(sampleLot))
	require.NoError(t, err)
	require.Len(t, lot.Items, 3)

	assert.Equal(t, "Returns pallet 42", lot.Name)
	assert.Equal(t, time.December, lot.SaleMonth(time.Now()))

	first := lot.Items[0]
	assert.Equal(t, Num(249.99), first.ListPrice)
	assert.Equal(t, Num(1199.5), first.Observations[0].Mean)
	assert.False(t, first.Observations[1].Mean.Valid)

	second := lot.Items[1]
	assert.False(t, second.OpsMinutes.Valid)
	assert.Equal(t, -4.0, second.Quantity.Value)
}

func TestParseLotRejectsBrokenYAML(t *testing.T) {
	_, err := ParseLot([]byte("items: [\n"))
	assert.Error(t, err)
}

func TestLoadLot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLot), 0o600))

	lot, err := LoadLot(path)
	require.NoError(t, err)
	assert.Len(t, lot.Items, 3)

	_, err = LoadLot(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaleMonthFallback(t *testing.T) {
	now := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.April, (&Lot{}).SaleMonth(now))
	assert.Equal(t, time.April, (&Lot{Month: Num(13)}).SaleMonth(now))
	var nilLot *Lot
	assert.Equal(t, time.April, nilLot.SaleMonth(now))
}

func TestNormalizeLot(t *testing.T) {
	lot, err := ParseLot([]byte(sampleLot))
	require.NoError(t, err)

	valuation := config.Default().Valuation
	valuation.HighTrustConfidence = 0.9
	items := NormalizeLot(lot, valuation)
	require.Len(t, items, 3)

	mixer := items[0]
	assert.Equal(t, "sku-1", mixer.ID)
	assert.Equal(t, condition.OpenBox, mixer.Condition)
	assert.Equal(t, "appliances", mixer.Category)
	assert.Equal(t, 2, mixer.Quantity)
	require.NotNil(t, mixer.ListPrice)
	assert.Equal(t, 249.99, *mixer.ListPrice)
	assert.Equal(t, 3, mixer.CompCount)
	assert.Equal(t, []string{SignalOfferDepth, SignalRankVelocity}, mixer.SecondarySignals)
	assert.False(t, mixer.HighTrustID)
	assert.Len(t, mixer.Observations, 2)

	bundle := items[1]
	assert.Equal(t, "item-2", bundle.ID)
	assert.Equal(t, condition.Unknown, bundle.Condition)
	assert.Equal(t, 1, bundle.Quantity)
	assert.Nil(t, bundle.OpsMinutes)
	require.NotNil(t, bundle.ManualPrice)
	assert.Equal(t, []string{SignalManualOverride}, bundle.SecondarySignals)
	require.Len(t, bundle.Observations, 1)
	assert.Equal(t, SourceManualOverride, bundle.Observations[0].SourceID)
	assert.Equal(t, 15.0, bundle.Observations[0].Mean)
	assert.Equal(t, 0, bundle.CompCount)

	headphones := items[2]
	assert.True(t, headphones.HighTrustID)
	assert.Equal(t, 12, headphones.CompCount)
	assert.Empty(t, headphones.SecondarySignals)
}

func TestNormalizeLowConfidenceIdentifierNotTrusted(t *testing.T) {
	raw := RawItem{Title: "Widget", Identifiers: Identifiers{ASIN: "B000", Confidence: Num(0.4)}}
	valuation := config.ValuationConfig{HighTrustConfidence: 0.9}
	assert.False(t, Normalize(raw, 0, valuation).HighTrustID)

	raw.Identifiers.Confidence = Num(0.95)
	assert.True(t, Normalize(raw, 0, valuation).HighTrustID)

	raw.Identifiers = Identifiers{Confidence: Num(1)}
	assert.False(t, Normalize(raw, 0, valuation).HighTrustID)
}

func TestNormalizeCapsHugeQuantity(t *testing.T) {
	lot, err := ParseLot([]byte("items:\n  - title: USB cable\n    quantity: 1e20\n  - title: Charger\n    quantity: 250000\n"))
	require.NoError(t, err)

	items := NormalizeLot(lot, config.ValuationConfig{})
	require.Len(t, items, 2)
	assert.Equal(t, constants.MaxQuantity, items[0].Quantity)
	assert.True(t, items[0].QuantityCapped)
	assert.Equal(t, 250000, items[1].Quantity)
	assert.False(t, items[1].QuantityCapped)
}

func TestNormalizeNilLot(t *testing.T) {
	assert.Nil(t, NormalizeLot(nil, config.ValuationConfig{}))
}
