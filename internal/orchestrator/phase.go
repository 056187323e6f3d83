package orchestrator

import "strings"

// Phase is one stage of a design session.
type Phase string

const (
	PhaseRequirements  Phase = "requirements"
	PhaseArchitecture  Phase = "architecture"
	PhaseImplementation Phase = "implementation"
	PhaseReview        Phase = "review"
	PhaseExport        Phase = "export"
)

var reviewKeywords = []string{"review", "audit", "check", "validate"}
var architectureKeywords = []string{"architecture", "topology", "block diagram", "system design"}
var reviewDomainKeywords = []string{"supply", "bom", "dfm", "erc", "drc"}
var exportKeywords = []string{"export", "gerber", "fabrication output", "release package"}

// SelectPhase infers the phase for a request, honoring an explicit phase
// override first.
func SelectPhase(explicit string, prompt string, hasHistory bool) Phase {
	if p := Phase(explicit); isValidPhase(p) {
		return p
	}

	lower := strings.ToLower(prompt)

	if containsAny(lower, reviewKeywords) {
		return PhaseReview
	}
	if !hasHistory {
		return PhaseRequirements
	}
	if containsAny(lower, architectureKeywords) {
		return PhaseArchitecture
	}
	if containsAny(lower, exportKeywords) {
		return PhaseExport
	}
	if containsAny(lower, reviewDomainKeywords) {
		return PhaseReview
	}
	return PhaseImplementation
}

func isValidPhase(p Phase) bool {
	switch p {
	case PhaseRequirements, PhaseArchitecture, PhaseImplementation, PhaseReview, PhaseExport:
		return true
	default:
		return false
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// HasValidationGate reports whether phase runs the bounded repair loop.
func HasValidationGate(p Phase) bool {
	switch p {
	case PhaseImplementation, PhaseReview, PhaseExport:
		return true
	default:
		return false
	}
}

// SurgicalEditEligible reports whether phase permits the surgical-edit
// short-circuit.
func SurgicalEditEligible(p Phase) bool {
	return HasValidationGate(p)
}
