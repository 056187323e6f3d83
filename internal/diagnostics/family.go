package diagnostics

import (
	"regexp"
	"strings"
)

var offGridRe = regexp.MustCompile(`off[-_ ]grid`)

// InferFamily is a pure function of (category, message). Rules are applied
// in order; the first match wins.
func InferFamily(category, message string) string {
	cat := strings.ToLower(strings.TrimSpace(category))
	msg := strings.ToLower(message)
	combined := cat + " " + msg

	switch {
	case strings.Contains(combined, "unconnected pin"):
		return "kicad_unconnected_pin"
	case strings.Contains(combined, "floating label"):
		return "floating_label"
	case offGridRe.MatchString(combined):
		return "off_grid"
	case strings.Contains(combined, "bom"):
		return "kicad_bom_property"
	case strings.Contains(combined, "pin conflict") && strings.Contains(combined, "unspecified connected to unspecified"):
		return "pin_conflict_low_signal"
	case strings.Contains(combined, "pin conflict"):
		return "pin_conflict_warning"
	case strings.Contains(combined, "duplicate reference"):
		return "duplicate_reference"
	case cat == "pcb_autorouting_error":
		return "pcb_autorouter_exhaustion"
	default:
		if cat == "" {
			return "validation"
		}
		return cat
	}
}
