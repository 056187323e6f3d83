// Package repair implements the deterministic repair planner: given a
// classified diagnostic set it partitions diagnostics by handling and
// drops the ones that auto-resolve, without ever re-running external
// validation.
package repair

import (
	"sort"
	"strings"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
)

// Plan is what the planner decided to do with one attempt's diagnostics,
// plus the strategy that produced (or will produce) this attempt's code.
type Plan struct {
	Attempt              int
	AutoFixableFamilies  []string
	ShouldDemoteFamilies []string
	MustRepairFamilies   []string
	Strategy             string
}

// Result is the outcome of applying the plan.
type Result struct {
	Attempt        int
	BlockingBefore int
	BlockingAfter  int
	AutoFixedCount int
	DemotedCount   int
	Revalidated    bool // always false: the planner never re-validates
	AppliedActions []string
}

// Apply partitions diags by handling, drops the ones that auto-resolve,
// and returns the plan, the surviving diagnostics, and the result. diags
// must already be deduplicated and classified.
func Apply(attempt int, strategy string, diags []diagnostics.Diagnostic) (Plan, []diagnostics.Diagnostic, Result) {
	blockingBefore := diagnostics.BlockingCount(diags)

	plan := Plan{Attempt: attempt, Strategy: strategy}
	autoSet := map[string]bool{}
	demoteSet := map[string]bool{}
	mustSet := map[string]bool{}

	var survivors []diagnostics.Diagnostic
	autoFixed, demoted := 0, 0
	var actions []string

	for _, d := range diags {
		switch d.Handling {
		case diagnostics.HandlingAutoFixable:
			autoSet[d.Family] = true
			if autoResolves(d) {
				autoFixed++
				actions = append(actions, "auto_fix:"+d.Family)
				continue
			}
			survivors = append(survivors, d)
		case diagnostics.HandlingShouldDemote:
			demoteSet[d.Family] = true
			if d.Severity < 6 {
				demoted++
				actions = append(actions, "demote:"+d.Family)
			}
			survivors = append(survivors, d)
		default:
			mustSet[d.Family] = true
			survivors = append(survivors, d)
		}
	}

	plan.AutoFixableFamilies = sortedKeys(autoSet)
	plan.ShouldDemoteFamilies = sortedKeys(demoteSet)
	plan.MustRepairFamilies = sortedKeys(mustSet)

	result := Result{
		Attempt:        attempt,
		BlockingBefore: blockingBefore,
		BlockingAfter:  diagnostics.BlockingCount(survivors),
		AutoFixedCount: autoFixed,
		DemotedCount:   demoted,
		Revalidated:    false,
		AppliedActions: dedupeSorted(actions),
	}

	return plan, survivors, result
}

// autoResolves is the stricter predicate a must-be-auto_fixable diagnostic
// also has to satisfy before the planner drops it entirely.
func autoResolves(d diagnostics.Diagnostic) bool {
	msg := strings.ToLower(d.Message)
	switch d.Family {
	case "off_grid":
		return true
	case "floating_label":
		return !strings.Contains(msg, "ambiguous") && !strings.Contains(msg, "missing net")
	case "kicad_unconnected_pin":
		return !diagnostics.PinIsFunctional(d.Message)
	default:
		return false
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupeSorted(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
