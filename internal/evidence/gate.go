// Package evidence decides which items are trusted enough to enter the bid
// simulation (core) and which are deferred for review (upside).
package evidence

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iwvelando/lotbid/internal/condition"
	"github.com/iwvelando/lotbid/internal/config"
)

// Ambiguity flags.
const (
	FlagGenericTitle     = "generic_title"
	FlagMissingBrand     = "missing_brand"
	FlagUnknownCondition = "unknown_condition"
)

// Decision tags.
const (
	TagHighTrust     = "id:high_trust"
	TagGenericTitle  = "generic:title"
	TagMissingBrand  = "brand:missing"
	TagUnknownCond   = "condition:unknown"
	TagNoSecondary   = "secondary:none"
	TagLowConfidence = "price:low_confidence"
	TagCore          = "gate:core"
	TagUpside        = "gate:upside"
)

// DefaultGenericTerms mark titles that describe a bundle or an uninspected
// mix rather than one identifiable product.
var DefaultGenericTerms = []string{
	"bundle", "lot", "assorted", "damaged", "mixed", "misc", "miscellaneous",
	"various", "variety", "untested", "pallet", "box of", "bulk", "grab bag",
	"mystery", "parts", "as is", "as-is", "wholesale",
}

// Signals are the item-level facts the gate looks at.
type Signals struct {
	ItemID        string
	Title         string
	Brand         string
	Condition     condition.Bucket
	HighTrustID   bool
	LowConfidence bool
}

// Thresholds configure the comp requirement.
type Thresholds struct {
	Base         int
	BonusPerFlag int
	Max          int
}

// ThresholdsFrom extracts gate thresholds from configuration.
func ThresholdsFrom(gate config.GateConfig) Thresholds {
	return Thresholds{Base: gate.BaseThreshold, BonusPerFlag: gate.BonusPerFlag, Max: gate.MaxThreshold}
}

// Record is the immutable gate decision for one item.
type Record struct {
	ItemID           string   `json:"itemId"`
	CompCount        int      `json:"compCount"`
	HighTrustID      bool     `json:"highTrustId"`
	SecondarySignals []string `json:"secondarySignals,omitempty"`
	AmbiguityFlags   []string `json:"ambiguityFlags,omitempty"`
	RequiredComps    int      `json:"requiredComps"`
	Admitted         bool     `json:"admitted"`
	Tags             []string `json:"tags"`
}

// RequiredComps returns min(max, base + bonus × flags). A max below base
// never lowers the requirement under base.
func (t Thresholds) RequiredComps(flags int) int {
	if flags < 0 {
		flags = 0
	}
	required := t.Base + t.BonusPerFlag*flags
	limit := t.Max
	if limit < t.Base {
		limit = t.Base
	}
	if required > limit {
		required = limit
	}
	return required
}

// Detector finds ambiguity flags in item signals.
type Detector struct {
	generic []*regexp.Regexp
}

// NewDetector builds a Detector for the given generic title terms; an empty
// list uses DefaultGenericTerms.
func NewDetector(terms []string) *Detector {
	if len(terms) == 0 {
		terms = DefaultGenericTerms
	}
	d := &Detector{}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		d.generic = append(d.generic, regexp.MustCompile(`\b`+regexp.QuoteMeta(term)+`s?\b`))
	}
	return d
}

// Detect returns the sorted ambiguity flags for an item.
func (d *Detector) Detect(s Signals) []string {
	var flags []string
	if d.GenericTitle(s.Title) {
		flags = append(flags, FlagGenericTitle)
	}
	if strings.TrimSpace(s.Brand) == "" {
		flags = append(flags, FlagMissingBrand)
	}
	if s.Condition == condition.Unknown || !s.Condition.Valid() {
		flags = append(flags, FlagUnknownCondition)
	}
	sort.Strings(flags)
	return flags
}

// GenericTitle reports whether a title reads like a bundle or mixed lot.
// Empty titles count as generic.
func (d *Detector) GenericTitle(title string) bool {
	lowered := strings.ToLower(strings.TrimSpace(title))
	if lowered == "" {
		return true
	}
	for _, re := range d.generic {
		if re.MatchString(lowered) {
			return true
		}
	}
	return false
}

// Gate classifies one item. It is total: negative comp counts coerce to zero
// and unknown signals are ignored by the caller's normalization.
func Gate(s Signals, compCount int, secondary []string, flags []string, t Thresholds) Record {
	if compCount < 0 {
		compCount = 0
	}
	record := Record{
		ItemID:           s.ItemID,
		CompCount:        compCount,
		HighTrustID:      s.HighTrustID,
		SecondarySignals: dedupe(secondary),
		AmbiguityFlags:   dedupe(flags),
	}
	record.RequiredComps = t.RequiredComps(len(record.AmbiguityFlags))

	if s.LowConfidence {
		record.Tags = append(record.Tags, TagLowConfidence)
	}

	if s.HighTrustID {
		record.Admitted = true
		record.Tags = append(record.Tags, TagHighTrust, TagCore)
		return record
	}

	for _, flag := range record.AmbiguityFlags {
		switch flag {
		case FlagGenericTitle:
			record.Tags = append(record.Tags, TagGenericTitle)
		case FlagMissingBrand:
			record.Tags = append(record.Tags, TagMissingBrand)
		case FlagUnknownCondition:
			record.Tags = append(record.Tags, TagUnknownCond)
		}
	}
	record.Tags = append(record.Tags, fmt.Sprintf("conf:req_comps:%d", record.RequiredComps))

	enoughComps := compCount >= record.RequiredComps
	if !enoughComps {
		record.Tags = append(record.Tags, fmt.Sprintf("comps:<%d", record.RequiredComps))
	}
	corroborated := len(record.SecondarySignals) > 0
	if !corroborated {
		record.Tags = append(record.Tags, TagNoSecondary)
	}

	record.Admitted = enoughComps && corroborated
	if record.Admitted {
		record.Tags = append(record.Tags, TagCore)
	} else {
		record.Tags = append(record.Tags, TagUpside)
	}
	return record
}

// Summary counts gate outcomes.
type Summary struct {
	CoreCount    int     `json:"coreCount"`
	UpsideCount  int     `json:"upsideCount"`
	GatePassRate float64 `json:"gatePassRate"`
}

// Summarize counts admitted and deferred records.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		if r.Admitted {
			s.CoreCount++
		} else {
			s.UpsideCount++
		}
	}
	if total := s.CoreCount + s.UpsideCount; total > 0 {
		s.GatePassRate = float64(s.CoreCount) / float64(total)
	}
	return s
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
