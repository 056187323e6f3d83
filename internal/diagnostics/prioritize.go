package diagnostics

import "sort"

// Prioritize splits a deduplicated set into blocking/advisory lists, each
// sorted by descending severity.
func Prioritize(diags []Diagnostic) (blocking, advisory []Diagnostic) {
	for _, d := range diags {
		if IsBlocking(d) {
			blocking = append(blocking, d)
		} else {
			advisory = append(advisory, d)
		}
	}
	sort.SliceStable(blocking, func(i, j int) bool { return blocking[i].Severity > blocking[j].Severity })
	sort.SliceStable(advisory, func(i, j int) bool { return advisory[i].Severity > advisory[j].Severity })
	return blocking, advisory
}

// Focused returns the subset reported in validation_errors events: all
// blocking diagnostics (capped at 14) plus a small advisory tail — 10 when
// there's no blocking at all, else 4.
func Focused(diags []Diagnostic) []Diagnostic {
	blocking, advisory := Prioritize(diags)

	blockingCap := 14
	if len(blocking) < blockingCap {
		blockingCap = len(blocking)
	}

	advisoryCap := 4
	if len(blocking) == 0 {
		advisoryCap = 10
	}
	if len(advisory) < advisoryCap {
		advisoryCap = len(advisory)
	}

	out := make([]Diagnostic, 0, blockingCap+advisoryCap)
	out = append(out, blocking[:blockingCap]...)
	out = append(out, advisory[:advisoryCap]...)
	return out
}

// DominantBlockingFamily returns the family of the highest-severity
// blocking diagnostic, or "" when there is none.
func DominantBlockingFamily(diags []Diagnostic) string {
	blocking, _ := Prioritize(diags)
	if len(blocking) == 0 {
		return ""
	}
	return blocking[0].Family
}
