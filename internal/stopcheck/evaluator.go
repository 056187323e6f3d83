package stopcheck

import (
	"sort"
	"strings"

	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
)

// Evaluator accumulates attempt history for one run and computes stop
// decisions and next strategies from it.
type Evaluator struct {
	cfg                   Config
	history               []attemptSummary
	structuralBudget      int
	minorReliefRun        bool
	minorReliefRampCount  int
	noReductionStreak     int
	best                  *attemptSummary
}

func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg, structuralBudget: cfg.MaxStructuralRepairAttempts}
}

func summarize(in AttemptInput) attemptSummary {
	sigs := make([]string, 0, len(in.PostDedupDiagnostics))
	hasAutorouter := false
	for _, d := range in.PostDedupDiagnostics {
		sigs = append(sigs, d.Signature)
		if d.Family == "pcb_autorouter_exhaustion" {
			hasAutorouter = true
		}
	}
	sort.Strings(sigs)

	return attemptSummary{
		index:                   in.Index,
		strategy:                in.Strategy,
		setSignature:            strings.Join(sigs, ","),
		score:                   diagnostics.Score(in.PostDedupDiagnostics, in.CompileFailed),
		blockingCount:           in.BlockingAfter,
		diagCount:               len(in.PostDedupDiagnostics),
		dominantFamily:          diagnostics.DominantBlockingFamily(in.PostDedupDiagnostics),
		hasAutorouterExhaustion: hasAutorouter,
	}
}

// Record stores the outcome of one attempt and updates best-attempt
// bookkeeping and structural-budget consumption.
func (e *Evaluator) Record(in AttemptInput) {
	s := summarize(in)
	e.history = append(e.history, s)

	switch in.Strategy {
	case StrategyStructuralTraceRebuild, StrategyStructuralLayoutSpread:
		if e.structuralBudget > 0 {
			e.structuralBudget--
		}
		if in.Strategy == StrategyStructuralLayoutSpread {
			e.minorReliefRampCount = 0
		}
	case StrategyTargetedCongestionRelief:
		e.minorReliefRun = true
		e.minorReliefRampCount++
	}

	if in.BlockingAfter < in.BlockingBefore {
		e.noReductionStreak = 0
	} else {
		e.noReductionStreak++
	}

	if e.best == nil || (s.blockingCount < e.best.blockingCount) ||
		(s.blockingCount == e.best.blockingCount && s.score < e.best.score) {
		best := s
		e.best = &best
	}
}

// BestAttemptIndex returns the 1-based index of the attempt with the
// lowest blocking count (ties broken by lowest score).
func (e *Evaluator) BestAttemptIndex() int {
	if e.best == nil {
		return 0
	}
	return e.best.index
}

func (e *Evaluator) repeatedSignatureCount() int {
	n := len(e.history)
	count := 0
	for i := n - 1; i > 0; i-- {
		if e.history[i].setSignature == e.history[i-1].setSignature {
			count++
		} else {
			break
		}
	}
	return count
}

func improved(prev, cur attemptSummary) bool {
	if prev.score-cur.score >= 120 {
		return true
	}
	return cur.diagCount < prev.diagCount
}

func (e *Evaluator) stagnantCount() int {
	n := len(e.history)
	count := 0
	for i := n - 1; i > 0; i-- {
		if improved(e.history[i-1], e.history[i]) {
			break
		}
		count++
	}
	return count
}

func (e *Evaluator) sameTopFamilyStreak() int {
	n := len(e.history)
	if n == 0 {
		return 0
	}
	count := 1
	for i := n - 1; i > 0; i-- {
		if e.history[i].dominantFamily != e.history[i-1].dominantFamily || e.history[i].dominantFamily == "" {
			break
		}
		count++
	}
	return count
}

func (e *Evaluator) noBlockingReductionStreak() int {
	return e.noReductionStreak
}

func (e *Evaluator) autorouterExhaustionStreak() int {
	n := len(e.history)
	count := 0
	for i := n - 1; i >= 0; i-- {
		if !e.history[i].hasAutorouterExhaustion {
			break
		}
		count++
	}
	return count
}

// candidateStrategy computes what the next strategy would be purely from
// family signals, ignoring structural budget availability.
func (e *Evaluator) candidateStrategy() string {
	last := e.history[len(e.history)-1]
	f := last.dominantFamily

	if traceRebuildFamilies[f] {
		return StrategyStructuralTraceRebuild
	}
	if congestionFamilies[f] && e.noBlockingReductionStreak() >= e.cfg.StructuralRepairTrigger {
		if e.minorReliefRampCount < e.cfg.MinorReliefPasses {
			return StrategyTargetedCongestionRelief
		}
		return StrategyStructuralLayoutSpread
	}
	return StrategyNormal
}

func (e *Evaluator) needsStructuralBudget(strategy string) bool {
	return strategy == StrategyStructuralTraceRebuild || strategy == StrategyStructuralLayoutSpread
}

// Evaluate returns the stop decision (and, when not stopping, the next
// attempt's strategy) for the most recently Record-ed attempt.
//
// Conditions are checked in this order: autorouter_exhaustion, then
// structural_repair_exhausted, then max_attempts once the attempt ceiling
// is reached, then stagnant_signature and no_improvement. So on the final
// attempt the two escalation reasons win over max_attempts, and
// max_attempts wins over the two stagnation reasons (see DESIGN.md's Open
// Question resolution).
func (e *Evaluator) Evaluate() Decision {
	last := e.history[len(e.history)-1]
	isLastAttempt := last.index >= e.cfg.MaxAttempts

	candidate := e.candidateStrategy()

	if e.autorouterExhaustionStreak() >= e.cfg.AutorouterStallLimit &&
		e.noBlockingReductionStreak() >= e.cfg.StructuralRepairTrigger &&
		e.minorReliefRun {
		return Decision{Stop: true, Reason: ReasonAutorouterExhaustion}
	}

	if isLastAttempt && e.needsStructuralBudget(candidate) && e.structuralBudget <= 0 && last.blockingCount > 0 {
		return Decision{Stop: true, Reason: ReasonStructuralRepairExhaust}
	}

	if isLastAttempt {
		return Decision{Stop: true, Reason: ReasonMaxAttempts}
	}

	if e.repeatedSignatureCount() >= e.cfg.SignatureRepeatLimit {
		return Decision{Stop: true, Reason: ReasonStagnantSignature}
	}

	if e.stagnantCount() >= e.cfg.RetryStagnationLimit {
		return Decision{Stop: true, Reason: ReasonNoImprovement}
	}

	strategy := candidate
	if e.needsStructuralBudget(strategy) && e.structuralBudget <= 0 {
		strategy = StrategyNormal
	}

	d := Decision{Stop: false, Strategy: strategy}
	if strategy == StrategyTargetedCongestionRelief {
		d.ReliefPass = e.minorReliefRampCount + 1
		d.ReliefPasses = e.cfg.MinorReliefPasses
	}
	return d
}
