// Package stopcheck decides, after each attempt, whether the orchestrator
// should retry, which strategy the next attempt should use, or whether it
// should stop (and why).
package stopcheck

import "github.com/codenerd-labs/circuitforge/internal/diagnostics"

// Reason is one of the five stop reasons the orchestrator can surface on a
// failed retry_result.
type Reason string

const (
	ReasonMaxAttempts             Reason = "max_attempts"
	ReasonAutorouterExhaustion    Reason = "autorouter_exhaustion"
	ReasonStructuralRepairExhaust Reason = "structural_repair_exhausted"
	ReasonStagnantSignature       Reason = "stagnant_signature"
	ReasonNoImprovement           Reason = "no_improvement"
)

// Config carries the bounded runtime knobs the evaluator reads from
// (internal/config.RuntimeConfig at call sites).
type Config struct {
	MaxAttempts                 int
	AutorouterStallLimit        int
	StructuralRepairTrigger     int
	SignatureRepeatLimit        int
	RetryStagnationLimit        int
	MinorReliefPasses           int
	MaxStructuralRepairAttempts int
	EnableStructuralRepairMode  bool
}

const (
	StrategyNormal                   = "normal"
	StrategyTargetedCongestionRelief = "targeted_congestion_relief"
	StrategyStructuralTraceRebuild   = "structural_trace_rebuild"
	StrategyStructuralLayoutSpread   = "structural_layout_spread"
)

var traceRebuildFamilies = map[string]bool{
	"source_trace_missing_endpoint":               true,
	"source_trace_rebuild_insufficient_intent":    true,
}

var congestionFamilies = map[string]bool{
	"pcb_trace_error":                  true,
	"pcb_via_clearance_error":          true,
	"pcb_component_out_of_bounds_error": true,
	"pcb_footprint_overlap_error":       true,
	"pcb_autorouter_exhaustion":         true,
}

// AttemptInput is what the orchestrator hands the evaluator once it has
// classified, deduped, and run the deterministic planner for an attempt.
type AttemptInput struct {
	Index                 int
	Strategy              string
	PostDedupDiagnostics  []diagnostics.Diagnostic
	BlockingBefore        int
	BlockingAfter         int
	CompileFailed         bool
}

type attemptSummary struct {
	index                   int
	strategy                string
	setSignature            string
	score                   int
	blockingCount           int
	diagCount               int
	dominantFamily          string
	hasAutorouterExhaustion bool
}

// Decision is the evaluator's verdict for one attempt boundary.
type Decision struct {
	Stop     bool
	Reason   Reason
	Strategy string // next attempt's strategy; meaningless when Stop is true
	ReliefPass    int // 1-indexed pass number, only set for targeted_congestion_relief
	ReliefPasses  int // configured ramp length, only set for targeted_congestion_relief
}
