package diagnostics

import "strings"

var blockingCategoryKeywords = []string{
	"compile", "missing_code_block", "short", "collision", "trace_error",
	"via_clearance_error", "out_of_bounds", "kicad_schema_missing",
	"kicad_schema_analysis_error",
}

// IsBlocking reports whether a diagnostic prevents the validation gate from
// passing.
func IsBlocking(d Diagnostic) bool {
	if d.Handling != HandlingMustRepair {
		return false
	}
	cat := strings.ToLower(d.Category)
	for _, kw := range blockingCategoryKeywords {
		if strings.Contains(cat, kw) {
			return true
		}
	}
	if d.Severity >= 8 {
		return true
	}
	if strings.Contains(cat, "clearance") && d.Severity >= 7 {
		return true
	}
	return false
}

// BlockingCount counts blocking diagnostics in a set.
func BlockingCount(diags []Diagnostic) int {
	n := 0
	for _, d := range diags {
		if IsBlocking(d) {
			n++
		}
	}
	return n
}
