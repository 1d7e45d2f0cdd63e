package validation

import (
	"fmt"

	"github.com/iwvelando/lotbid/internal/manifest"
	"github.com/iwvelando/lotbid/pkg/constants"
)

// ValidateLot returns non-fatal warnings about a lot manifest. Malformed
// values are coerced during normalization; these warnings surface them.
func ValidateLot(lot *manifest.Lot) []string {
	var warnings []string
	if lot == nil || len(lot.Items) == 0 {
		return []string{"lot has no items"}
	}
	if lot.Month.Valid && (lot.Month.Value < 1 || lot.Month.Value > 12) {
		warnings = append(warnings, fmt.Sprintf("lot month %v is outside 1-12; the current month is used", lot.Month.Value))
	}

	seen := make(map[string]int)
	for i, item := range lot.Items {
		label := item.ID
		if label == "" {
			label = fmt.Sprintf("line %d", i+1)
		} else {
			if first, ok := seen[item.ID]; ok {
				warnings = append(warnings, fmt.Sprintf("item id %q repeats line %d", item.ID, first+1))
			} else {
				seen[item.ID] = i
			}
		}

		switch {
		case item.Quantity.Valid && item.Quantity.Value < 1:
			warnings = append(warnings, fmt.Sprintf("item %s quantity %v coerced to 1", label, item.Quantity.Value))
		case item.Quantity.Valid && item.Quantity.Value > constants.MaxQuantity:
			warnings = append(warnings, fmt.Sprintf("item %s quantity %v capped at %d", label, item.Quantity.Value, constants.MaxQuantity))
		}
		if !hasPrice(item) {
			warnings = append(warnings, fmt.Sprintf("item %s has no usable price observation", label))
		}
	}
	return warnings
}

func hasPrice(item manifest.RawItem) bool {
	if item.ManualPrice.Valid && item.ManualPrice.Value > 0 {
		return true
	}
	for _, obs := range item.Observations {
		if obs.Mean.Valid && obs.Mean.Value > 0 {
			return true
		}
	}
	return false
}
