// Package validation provides common validation utilities.
package validation

import (
	"github.com/iwvelando/lotbid/internal/config"
	"github.com/iwvelando/lotbid/pkg/constants"
)

// ValidateOutputFormat checks if the output format is one of the supported formats.
func ValidateOutputFormat(format string) error {
	switch format {
	case constants.OutputFormatPretty, constants.OutputFormatJSON, constants.OutputFormatCSV:
		return nil
	}
	return config.Invalid("expected output format of %s, %s or %s, got %s",
		constants.OutputFormatPretty, constants.OutputFormatJSON, constants.OutputFormatCSV, format)
}
