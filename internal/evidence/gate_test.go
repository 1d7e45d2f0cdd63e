package evidence

import (
	"testing"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/stretchr/testify/assert"
)

var defaultThresholds = Thresholds{Base: 3, BonusPerFlag: 1, Max: 5}

func TestRequiredComps(t *testing.T) {
	assert.Equal(t, 3, defaultThresholds.RequiredComps(0))

	prev := defaultThresholds.RequiredComps(0)
	for flags := 1; flags <= 10; flags++ {
		got := defaultThresholds.RequiredComps(flags)
		assert.GreaterOrEqual(t, got, prev)
		assert.LessOrEqual(t, got, 5)
		prev = got
	}
	assert.Equal(t, 5, defaultThresholds.RequiredComps(3))
	assert.Equal(t, 3, defaultThresholds.RequiredComps(-2))

	// a max configured under base does not pull the requirement below base
	assert.Equal(t, 4, Thresholds{Base: 4, BonusPerFlag: 2, Max: 1}.RequiredComps(2))
}

func TestThresholdsFrom(t *testing.T) {
	th := ThresholdsFrom(config.GateConfig{BaseThreshold: 2, BonusPerFlag: 3, MaxThreshold: 9})
	assert.Equal(t, Thresholds{Base: 2, BonusPerFlag: 3, Max: 9}, th)
}

func TestDetect(t *testing.T) {
	d := NewDetector(nil)

	tests := []struct {
		name    string
		signals Signals
		want    []string
	}{
		{
			name:    "clean item",
			signals: Signals{Title: "Sony WH-1000XM4 Headphones", Brand: "Sony", Condition: condition.New},
			want:    nil,
		},
		{
			name:    "generic bundle",
			signals: Signals{Title: "Lot of assorted damaged parts", Condition: condition.Unknown},
			want:    []string{FlagGenericTitle, FlagMissingBrand, FlagUnknownCondition},
		},
		{
			name:    "word boundary",
			signals: Signals{Title: "Pilot G2 gel pens", Brand: "Pilot", Condition: condition.New},
			want:    nil,
		},
		{
			name:    "plural bundle",
			signals: Signals{Title: "Cable bundles", Brand: "Anker", Condition: condition.OpenBox},
			want:    []string{FlagGenericTitle},
		},
		{
			name:    "empty title",
			signals: Signals{Brand: "Acme", Condition: condition.UsedGood},
			want:    []string{FlagGenericTitle},
		},
		{
			name:    "unnormalized condition",
			signals: Signals{Title: "Blender", Brand: "Ninja", Condition: condition.Bucket("sparkly")},
			want:    []string{FlagUnknownCondition},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.Detect(tt.signals))
		})
	}
}

func TestDetectorCustomTerms(t *testing.T) {
	d := NewDetector([]string{"Refurb Kit", " "})
	assert.True(t, d.GenericTitle("Phone refurb kit"))
	assert.False(t, d.GenericTitle("Lot of phones"))
}

func TestGateScenarioAdmitted(t *testing.T) {
	signals := Signals{ItemID: "sku-1", Title: "KitchenAid Stand Mixer", Brand: "KitchenAid", Condition: condition.New}
	flags := NewDetector(nil).Detect(signals)
	assert.Empty(t, flags)

	record := Gate(signals, 3, []string{"offer_depth"}, flags, defaultThresholds)
	assert.True(t, record.Admitted)
	assert.Equal(t, 3, record.RequiredComps)
	assert.Equal(t, []string{"conf:req_comps:3", TagCore}, record.Tags)
}

func TestGateScenarioGenericDeferred(t *testing.T) {
	signals := Signals{ItemID: "sku-1", Title: "Lot of assorted damaged parts", Condition: condition.Normalize("Unknown")}
	flags := NewDetector(nil).Detect(signals)
	assert.Len(t, flags, 3)

	record := Gate(signals, 4, []string{"offer_depth"}, flags, defaultThresholds)
	assert.False(t, record.Admitted)
	assert.Equal(t, 5, record.RequiredComps)
	assert.Contains(t, record.Tags, "generic:title")
	assert.Contains(t, record.Tags, "conf:req_comps:5")
	assert.Contains(t, record.Tags, "comps:<5")
	assert.Contains(t, record.Tags, TagUpside)
}

func TestGateSecondarySignalMandatory(t *testing.T) {
	signals := Signals{ItemID: "a", Title: "Dyson V8", Brand: "Dyson", Condition: condition.New}
	record := Gate(signals, 50, nil, nil, defaultThresholds)
	assert.False(t, record.Admitted)
	assert.Contains(t, record.Tags, TagNoSecondary)
	assert.NotContains(t, record.Tags, "comps:<3")
}

func TestGateHighTrustAlwaysAdmitted(t *testing.T) {
	cases := []struct {
		comps     int
		secondary []string
		flags     []string
	}{
		{0, nil, nil},
		{0, nil, []string{FlagGenericTitle, FlagMissingBrand, FlagUnknownCondition}},
		{-7, []string{"rank_velocity"}, []string{FlagMissingBrand}},
	}
	for _, c := range cases {
		record := Gate(Signals{ItemID: "x", HighTrustID: true}, c.comps, c.secondary, c.flags, defaultThresholds)
		assert.True(t, record.Admitted)
		assert.Contains(t, record.Tags, TagHighTrust)
		assert.GreaterOrEqual(t, record.CompCount, 0)
	}
}

func TestGateCoercesNegativeComps(t *testing.T) {
	record := Gate(Signals{ItemID: "x", Brand: "b", Title: "t", Condition: condition.New}, -3, []string{"offer_depth"}, nil, defaultThresholds)
	assert.Equal(t, 0, record.CompCount)
	assert.False(t, record.Admitted)
}

func TestGateLowConfidenceTag(t *testing.T) {
	record := Gate(Signals{ItemID: "x", LowConfidence: true}, 0, nil, nil, defaultThresholds)
	assert.Equal(t, TagLowConfidence, record.Tags[0])
}

func TestGateDedupesInputs(t *testing.T) {
	record := Gate(Signals{ItemID: "x"}, 9, []string{"offer_depth", "offer_depth", ""}, []string{FlagMissingBrand, FlagMissingBrand}, defaultThresholds)
	assert.Equal(t, []string{"offer_depth"}, record.SecondarySignals)
	assert.Equal(t, []string{FlagMissingBrand}, record.AmbiguityFlags)
	assert.Equal(t, 4, record.RequiredComps)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Record{{Admitted: true}, {Admitted: false}, {Admitted: true}, {Admitted: true}})
	assert.Equal(t, 3, s.CoreCount)
	assert.Equal(t, 1, s.UpsideCount)
	assert.InDelta(t, 0.75, s.GatePassRate, 1e-12)

	assert.Equal(t, Summary{}, Summarize(nil))
}
