package orchestrator

import (
	"math"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
	"github.com/codenerd-labs/circuitforge/internal/session"
)

// lowSignalFamilies mirrors the families the auto-dismiss step treats as
// not worth a human's attention.
var lowSignalFamilies = map[string]bool{
	"pin_conflict_low_signal": true,
	"kicad_bom_property":      true,
}

// ManufacturingReadiness scores the best attempt's final diagnostic set and
// the session's still-open review findings, clamped to [0, 100].
func ManufacturingReadiness(diags []diagnostics.Diagnostic, findings map[string]session.ReviewFinding) int {
	blocking, advisory := diagnostics.Prioritize(diags)

	lowSignal := 0
	for _, d := range advisory {
		if lowSignalFamilies[d.Family] {
			lowSignal++
		}
	}
	actionable := len(advisory) - lowSignal

	openCritical := 0
	for _, f := range findings {
		if f.Status == session.FindingOpen && f.Severity == "critical" {
			openCritical++
		}
	}

	score := 100.0
	score -= math.Min(70, 12*float64(len(blocking)))
	score -= math.Min(22, 2*float64(actionable))
	score -= math.Min(8, 0.5*float64(lowSignal))
	score -= math.Min(20, 10*float64(openCritical))

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
