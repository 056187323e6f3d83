package diagnostics

import (
	"regexp"
	"strings"
)

// functionalPinNames are pin labels that indicate an active, non-trivial
// net — unconnected, they are worth a human's attention rather than an
// auto-fix.
var functionalPinNames = []string{
	"VIN", "VOUT", "EN", "FB", "GATE", "VCC", "VDD", "VSS", "RESET", "NRST",
	"SDA", "SCL", "CLK", "DATA", "TX", "RX", "MISO", "MOSI", "SCK", "CS",
	"INT", "PWM", "ADC", "DAC", "SWDIO", "SWCLK",
}

// activeReferencePrefixes are designator prefixes considered "active"
// parts (as opposed to passives) when judging whether an unconnected pin
// matters.
var activeReferencePrefixes = []string{"U", "Q", "IC", "MCU", "REG", "VR"}

var powerDesignators = map[string]bool{
	"GND": true, "VCC": true, "VDD": true, "VSS": true,
	"3V3": true, "V3V3": true, "5V": true, "+3V3": true, "+5V": true,
}

var referenceTokenRe = regexp.MustCompile(`\b([A-Z]{1,3}\d+[A-Z]?)\b`)

func containsWord(upper, word string) bool {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(upper)
}

// PinIsFunctional reports whether a pin name or its surrounding reference
// designator looks like an active, non-trivial net.
func PinIsFunctional(message string) bool {
	return pinIsFunctional(message)
}

func pinIsFunctional(message string) bool {
	upper := strings.ToUpper(message)
	for _, name := range functionalPinNames {
		if containsWord(upper, name) {
			return true
		}
	}
	for _, tok := range referenceTokenRe.FindAllString(upper, -1) {
		i := 0
		for i < len(tok) && tok[i] >= 'A' && tok[i] <= 'Z' {
			i++
		}
		prefix := tok[:i]
		for _, p := range activeReferencePrefixes {
			if prefix == p {
				return true
			}
		}
	}
	return false
}

func isPowerDesignator(message string) bool {
	upper := strings.ToUpper(message)
	for name := range powerDesignators {
		if containsWord(upper, name) {
			return true
		}
	}
	return false
}

// parseDesignator extracts the reference designator a duplicate-reference
// or bom-property finding is about, falling back to "" when none is found.
func parseDesignator(message string) string {
	upper := strings.ToUpper(message)
	re := regexp.MustCompile(`REFERENCE[:\s]+([A-Z0-9+]+)`)
	if m := re.FindStringSubmatch(upper); m != nil {
		return m[1]
	}
	for name := range powerDesignators {
		if containsWord(upper, name) {
			return name
		}
	}
	if m := referenceTokenRe.FindString(upper); m != "" {
		return m
	}
	return ""
}

func clampSeverity(severity, max int) int {
	if severity > max {
		return max
	}
	return severity
}

// ClassifyHandling returns the handling bucket for a diagnostic and the
// (possibly clamped) severity it should carry from here on.
func ClassifyHandling(family, message string, severity int) (Handling, int) {
	msg := strings.ToLower(message)

	switch family {
	case "pin_conflict_low_signal", "kicad_bom_property":
		return HandlingShouldDemote, clampSeverity(severity, 5)
	case "pin_conflict_warning":
		return HandlingMustRepair, severity
	case "off_grid":
		if strings.Contains(msg, "connect") || strings.Contains(msg, "junction") {
			return HandlingMustRepair, severity
		}
		return HandlingAutoFixable, severity
	case "floating_label":
		if strings.Contains(msg, "missing net") || strings.Contains(msg, "ambiguous") {
			return HandlingMustRepair, severity
		}
		return HandlingAutoFixable, severity
	case "kicad_unconnected_pin":
		if pinIsFunctional(message) {
			return HandlingMustRepair, severity
		}
		return HandlingAutoFixable, severity
	case "duplicate_reference":
		if isPowerDesignator(message) {
			return HandlingShouldDemote, severity
		}
		return HandlingMustRepair, severity
	}

	for _, kw := range []string{
		"compile", "autorouter_exhaustion", "out_of_bounds", "missing_code_block",
		"short", "collision", "trace_error", "via_clearance_error",
		"kicad_schema_missing", "kicad_schema_analysis_error",
	} {
		if strings.Contains(family, kw) {
			return HandlingMustRepair, severity
		}
	}

	if severity >= 8 {
		return HandlingMustRepair, severity
	}
	return HandlingShouldDemote, severity
}
