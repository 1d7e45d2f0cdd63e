// Package format renders money and ratios for human-readable output.
package format

import (
	"math"

	"github.com/iwvelando/lotbid/pkg/mathutil"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount float64) string {
	formatted := NumericCurrency(math.Abs(amount))
	if amount < 0 && formatted != "0.00" {
		return "-$" + formatted
	}
	return "$" + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
func NumericCurrency(amount float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.2f", mathutil.Round(amount))
}

// Percent renders a [0, 1] ratio as a percentage with one decimal.
func Percent(ratio float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.1f%%", mathutil.CalculatePercentage(ratio, 1))
}

// Multiple renders a ratio such as ROI as "1.25x".
func Multiple(ratio float64) string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%.2fx", ratio)
}
