// Package orchestrator drives the top-level state machine for one
// design/repair request: phase selection, the surgical-edit short-circuit,
// the bounded repair loop over the attempt runner, and finalization.
// Everything it depends on (the model stream, the compiler/validator, the
// architecture model, the adaptive-guardrails advisory) is an interface;
// this package only sequences them.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	attemptrun "github.com/codenerd-labs/circuitforge/internal/attempt"
	"github.com/codenerd-labs/circuitforge/internal/config"
	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
	"github.com/codenerd-labs/circuitforge/internal/diffutil"
	"github.com/codenerd-labs/circuitforge/internal/editengine"
	"github.com/codenerd-labs/circuitforge/internal/events"
	"github.com/codenerd-labs/circuitforge/internal/guardrails"
	"github.com/codenerd-labs/circuitforge/internal/httpapi"
	"github.com/codenerd-labs/circuitforge/internal/logging"
	"github.com/codenerd-labs/circuitforge/internal/perception"
	"github.com/codenerd-labs/circuitforge/internal/repair"
	"github.com/codenerd-labs/circuitforge/internal/session"
	"github.com/codenerd-labs/circuitforge/internal/stopcheck"
	"github.com/codenerd-labs/circuitforge/internal/strategy"
	"github.com/codenerd-labs/circuitforge/internal/validate"
)

// Orchestrator wires every collaborator the state machine depends on. It
// satisfies httpapi.Orchestrator.
type Orchestrator struct {
	Store        session.Store
	Registry     *session.Registry
	Stream       perception.ModelStream
	Checker      validate.Checker
	Architecture perception.ArchitectureModel
	Guardrails   perception.AdaptiveGuardrails
	Config       config.RuntimeConfig
}

func New(store session.Store, registry *session.Registry, stream perception.ModelStream, checker validate.Checker, arch perception.ArchitectureModel, guardrails perception.AdaptiveGuardrails, cfg config.RuntimeConfig) *Orchestrator {
	return &Orchestrator{
		Store: store, Registry: registry, Stream: stream, Checker: checker,
		Architecture: arch, Guardrails: guardrails, Config: cfg,
	}
}

func (o *Orchestrator) compileTimeout() time.Duration {
	return time.Duration(o.Config.CompileValidateTimeoutMS) * time.Millisecond
}

// cancelReason records the reason string a registry-driven cancel carries
// (e.g. "superseded"). Run does not consult it: every cancellation of the
// run context, whatever its reason, ends the run without `error` or `done`.
type cancelReason struct {
	mu     sync.Mutex
	reason string
}

func (c *cancelReason) set(r string) {
	c.mu.Lock()
	c.reason = r
	c.mu.Unlock()
}

func (c *cancelReason) get() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Run executes the full state machine for one request. It never panics on
// expected conditions; an internal error is converted to a single `error`
// event in the finally-block.
func (o *Orchestrator) Run(ctx context.Context, req httpapi.DesignRequest, emitter *events.Emitter) {
	log := logging.Get(logging.CategoryOrchestrator)
	start := time.Now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID("sess")
	}

	reason := &cancelReason{}
	runCtx, cancelRun := context.WithCancel(ctx)
	handle := o.Registry.Register(sessionID, func(r string) {
		reason.set(r)
		cancelRun()
	})

	terminalEmitted := false
	var sctx session.Context
	sctxLoaded := false
	defer func() {
		if sctxLoaded {
			o.Store.Put(sessionID, sctx)
		}
		o.Registry.Unregister(sessionID, handle.RunID)
		cancelRun()
		if r := recover(); r != nil {
			if !terminalEmitted {
				emitter.Emit(events.Error{Message: fmt.Sprintf("internal error: %v", r)})
			}
			log.Error("run panicked: session=%s err=%v", sessionID, r)
		}
		log.Info("run finished: session=%s duration=%s", sessionID, time.Since(start))
	}()

	emitter.Emit(events.SessionStarted{SessionID: sessionID, ProjectID: req.ProjectID})

	sctx, existed := o.Store.Get(sessionID)
	if !existed {
		sctx = session.NewContext(sessionID, req.ProjectID)
	}
	sctxLoaded = true
	hasHistory := existed && sctx.LastGeneratedCode != ""

	for _, rd := range req.ReviewDecisions {
		if f, ok := sctx.ReviewFindings[rd.FindingID]; ok {
			switch rd.Decision {
			case "accept":
				f.Status = session.FindingAccepted
			case "dismiss":
				f.Status = session.FindingDismissed
			}
			sctx.ReviewFindings[rd.FindingID] = f
		}
		emitter.Emit(events.ReviewDecision{Decision: events.ReviewDecisionPayload{
			FindingID: rd.FindingID, Decision: rd.Decision, Reason: rd.Reason,
		}})
	}

	phase := SelectPhase(req.Phase, req.Prompt, hasHistory)
	emitter.Emit(events.PhaseEntered{Phase: string(phase)})

	if phase == PhaseRequirements {
		sctx.Requirements = session.MergeRequirements(sctx.Requirements, deriveRequirements(req.Prompt))
	}
	if len(sctx.Architecture) == 0 {
		blocks, archErr := o.deriveArchitecture(runCtx, req.Prompt)
		if archErr != nil {
			emitter.Emit(events.PhaseProgress{Phase: string(phase), Message: "architecture model unavailable, using heuristic fallback"})
		}
		sctx.Architecture = session.MergeArchitecture(sctx.Architecture, blocks)
		for _, b := range blocks {
			emitter.Emit(events.PhaseProgress{Phase: string(phase), Message: fmt.Sprintf("architecture block %s (%s)", b.Label, b.Status)})
		}
	}

	basePrompt := req.Prompt
	surgicalFallthrough := false
	if SurgicalEditEligible(phase) {
		if edit, err := editengine.Parse(req.Prompt); err == nil {
			newCode, desc, applyErr := editengine.Apply(sctx.LastGeneratedCode, edit)
			if applyErr == nil {
				sctx.LastGeneratedCode = newCode
				basePrompt = req.Prompt + "\n\nA targeted edit was applied; reflect it with minimal changes: " + desc
				emitter.Emit(events.PhaseProgress{Phase: string(phase), Message: "surgical edit applied: " + desc})
			} else {
				emitter.Emit(events.PhaseBlockDone{Phase: string(phase), Status: "blocked", Message: applyErr.Error()})
			}
		} else {
			// Not a recognized surgical instruction: fall through to the
			// model, but on a short leash — this path exists to catch
			// phrasing the edit grammar missed, not to run a full attempt.
			surgicalFallthrough = true
		}
	}

	var finalResult attemptrun.Result
	var finalDiags []diagnostics.Diagnostic
	attemptsUsed := 0
	var stopReason stopcheck.Reason
	var totalCost float64

	if !HasValidationGate(phase) {
		// SurgicalEditEligible never holds here (it requires the same
		// validation gate), so the fall-through can't be set: no short
		// timeout to apply.
		result := attemptrun.Run(runCtx, attemptrun.Input{
			Prompt:                    basePrompt,
			Stream:                    o.Stream,
			Checker:                   o.Checker,
			Emitter:                   emitter,
			CompileValidateTimeout:    o.compileTimeout(),
			SpeculativeCompileEnabled: o.Config.EnableConnectivityPreflight,
		})
		attemptsUsed = 1
		totalCost += result.CostUSD
		finalResult = result
		if result.ExtractedCode != "" {
			sctx.LastGeneratedCode = result.ExtractedCode
			emitter.Emit(events.Code{File: "board.tsx", Content: result.ExtractedCode})
		}
		emitter.Emit(events.PhaseProgress{Phase: string(phase), Progress: 100})
	} else {
		attemptsUsed, totalCost, finalResult, finalDiags, stopReason = o.runRepairLoop(runCtx, emitter, phase, basePrompt, &sctx, surgicalFallthrough)
	}

	if runCtx.Err() != nil {
		// Client disconnect or supersession: both are caller-initiated from
		// this run's perspective, so exit through the finally-block without
		// emitting `error` or `done` — no further events from this stream
		// should be observed either way.
		return
	}

	var finalText string
	if stopReason == "" {
		finalText = finalResult.Text
	} else {
		finalText = composeFailureText(finalResult.ExtractedCode, finalDiags, stopReason)
	}
	emitter.Emit(events.Text{Content: finalText})

	var unresolved []string
	for _, d := range finalDiags {
		if diagnostics.IsBlocking(d) {
			unresolved = append(unresolved, d.Category)
		}
	}
	var reqTitles []string
	for _, r := range sctx.Requirements {
		reqTitles = append(reqTitles, r.Title)
	}

	emitter.Emit(events.FinalSummary{Summary: events.FinalSummaryPayload{
		DesignIntent:               truncate(req.Prompt, 160),
		ConfirmedRequirementTitles: reqTitles,
		UnresolvedBlockers:         unresolved,
		ManufacturingReadiness:     ManufacturingReadiness(finalDiags, sctx.ReviewFindings),
		DiagnosticsCount:           len(finalDiags),
		AttemptsUsed:               attemptsUsed,
	}})

	cost := totalCost
	emitter.Emit(events.Done{Usage: events.DoneUsage{TotalCostUSD: &cost}})
	terminalEmitted = true
}

// runRepairLoop runs step 7's bounded attempt loop for a validation-gated
// phase and returns the attempts used, accumulated cost, best attempt, its
// diagnostics, and the stop reason (empty on a clean gate pass).
func (o *Orchestrator) runRepairLoop(ctx context.Context, emitter *events.Emitter, phase Phase, basePrompt string, sctx *session.Context, surgicalFallthrough bool) (int, float64, attemptrun.Result, []diagnostics.Diagnostic, stopcheck.Reason) {
	evaluator := stopcheck.NewEvaluator(o.Config.StopcheckConfig())
	plannedStrategy := stopcheck.StrategyNormal
	var reliefPass, reliefPasses int
	previousCode := sctx.LastGeneratedCode
	var guardrailsAdvisory string
	guardrailsFetched := false

	var totalCost float64
	var best attemptrun.Result
	var bestDiags []diagnostics.Diagnostic
	bestBlockingAfter := -1
	bestScore := 0
	attemptsUsed := 0
	var stopReason stopcheck.Reason

	phaseFindings := map[string]session.ReviewFinding{}
	findingFamily := map[string]string{}

	maxAttempts := o.Config.MaxRepairAttempts

	for attemptNum := 1; attemptNum <= maxAttempts; attemptNum++ {
		if ctx.Err() != nil {
			// Cancelled (client disconnect or supersession) between attempts:
			// stop emitting immediately rather than running one more attempt
			// whose events would never be observed anyway.
			break
		}
		emitter.Emit(events.RetryStart{Attempt: attemptNum, MaxAttempts: maxAttempts})
		attemptStart := time.Now()

		mutatedCode := previousCode
		var extraFindings []diagnostics.RawFinding
		if plannedStrategy != stopcheck.StrategyNormal && previousCode != "" {
			var finding *diagnostics.RawFinding
			mutatedCode, _, finding = applyPlannedStrategy(plannedStrategy, previousCode, o.Config, reliefPass, reliefPasses)
			if finding != nil {
				extraFindings = append(extraFindings, *finding)
			}
		}

		prompt := basePrompt
		if attemptNum > 1 {
			prompt = attemptrun.ComposePrompt(basePrompt, mutatedCode, bestDiags, guardrailsAdvisory)
		}

		attemptCtx := ctx
		if attemptNum == 1 && surgicalFallthrough {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, config.AggressiveModelTimeouts().AttemptTimeout)
			defer cancel()
		}
		result := attemptrun.Run(attemptCtx, attemptrun.Input{
			Prompt:                    prompt,
			Stream:                    o.Stream,
			Checker:                   o.Checker,
			Emitter:                   emitter,
			CompileValidateTimeout:    o.compileTimeout(),
			SpeculativeCompileEnabled: o.Config.EnableConnectivityPreflight,
		})
		emitter.Emit(events.TimingMetric{Stage: "attempt", DurationMs: time.Since(attemptStart).Milliseconds(), Attempt: attemptNum})
		totalCost += result.CostUSD

		guardedCode, _ := guardrails.Apply(result.ExtractedCode)

		rawFindings := append(append([]diagnostics.RawFinding{}, result.Findings...), extraFindings...)
		diags := diagnostics.NormalizeAll(rawFindings)

		plan, survivors, repairResult := repair.Apply(attemptNum, plannedStrategy, diags)
		emitter.Emit(events.RepairPlan{Plan: events.RepairPlanPayload{
			Attempt: plan.Attempt, AutoFixableFamilies: plan.AutoFixableFamilies,
			ShouldDemoteFamilies: plan.ShouldDemoteFamilies, MustRepairFamilies: plan.MustRepairFamilies,
			Strategy: plan.Strategy,
		}})
		emitter.Emit(events.RepairResult{Result: events.RepairResultPayload{
			Attempt: repairResult.Attempt, BlockingBefore: repairResult.BlockingBefore,
			BlockingAfter: repairResult.BlockingAfter, DemotedCount: repairResult.DemotedCount,
			AutoFixedCount: repairResult.AutoFixedCount, Revalidated: repairResult.Revalidated,
			AppliedActions: repairResult.AppliedActions,
		}})

		emitReviewFindings(emitter, phaseFindings, findingFamily, survivors)
		merged := session.MergeReviewFindings(phaseFindings, producedFindings(survivors))
		phaseFindings = merged

		emitter.Emit(events.ValidationErrors{Attempt: attemptNum, Diagnostics: toWireDiagnostics(diagnostics.Focused(survivors))})

		if attemptNum > 1 {
			emitter.Emit(events.IterationDiff{Attempt: attemptNum, Diff: toIterationDiffPayload(diffutil.Compute(previousCode, guardedCode))})
		}
		if guardedCode != "" {
			emitter.Emit(events.Code{File: "board.tsx", Content: guardedCode})
		}

		score := diagnostics.Score(survivors, result.CompileFailed)

		if bestBlockingAfter < 0 || repairResult.BlockingAfter < bestBlockingAfter ||
			(repairResult.BlockingAfter == bestBlockingAfter && score < bestScore) {
			bestBlockingAfter = repairResult.BlockingAfter
			bestScore = score
			best = result
			best.ExtractedCode = guardedCode
			bestDiags = survivors
		}
		attemptsUsed = attemptNum

		evaluator.Record(stopcheck.AttemptInput{
			Index: attemptNum, Strategy: plannedStrategy, PostDedupDiagnostics: diags,
			BlockingBefore: repairResult.BlockingBefore, BlockingAfter: repairResult.BlockingAfter,
			CompileFailed: result.CompileFailed,
		})

		if repairResult.BlockingAfter == 0 && guardedCode != "" {
			emitter.Emit(events.GatePassed{Phase: string(phase), Gate: "compile_kicad_validation"})
			emitter.Emit(events.RetryResult{Attempt: attemptNum, Status: "clean", DiagnosticsCount: len(survivors), Score: score})
			previousCode = guardedCode
			break
		}
		emitter.Emit(events.GateBlocked{Phase: string(phase), Gate: "compile_kicad_validation", Reason: "blocking diagnostics remain"})

		decision := evaluator.Evaluate()
		if decision.Stop {
			emitter.Emit(events.RetryResult{Attempt: attemptNum, Status: "failed", DiagnosticsCount: len(survivors), Score: score, Reason: string(decision.Reason)})
			stopReason = decision.Reason
			previousCode = guardedCode
			break
		}
		emitter.Emit(events.RetryResult{Attempt: attemptNum, Status: "retrying", DiagnosticsCount: len(survivors), Score: score})

		if !guardrailsFetched {
			guardrailsFetched = true
			if o.Guardrails != nil {
				if s, err := o.Guardrails.Fetch(ctx); err == nil {
					guardrailsAdvisory = s
				}
			}
		}

		plannedStrategy = decision.Strategy
		reliefPass, reliefPasses = decision.ReliefPass, decision.ReliefPasses
		previousCode = guardedCode
	}

	if best.ExtractedCode != "" {
		sctx.LastGeneratedCode = best.ExtractedCode
	}

	for id, f := range phaseFindings {
		if f.Status == session.FindingOpen && lowSignalFamilies[findingFamily[id]] {
			f.Status = session.FindingDismissed
			phaseFindings[id] = f
			emitter.Emit(events.ReviewDecision{Decision: events.ReviewDecisionPayload{
				FindingID: id, Decision: "dismiss", Reason: "low-signal",
			}})
		}
	}
	sctx.ReviewFindings = session.MergeReviewFindings(sctx.ReviewFindings, phaseFindings)

	return attemptsUsed, totalCost, best, bestDiags, stopReason
}

func producedFindings(diags []diagnostics.Diagnostic) map[string]session.ReviewFinding {
	out := make(map[string]session.ReviewFinding, len(diags))
	for _, d := range diags {
		out[d.Category] = session.ReviewFinding{
			ID: d.Category, Category: d.Category, Severity: severityLabel(d),
			Message: d.Message, IsBlocking: diagnostics.IsBlocking(d), Status: session.FindingOpen,
		}
	}
	return out
}

// emitReviewFindings emits a review_finding for every newly produced
// finding and a system-driven review_decision{dismiss} for any previously
// open finding this attempt no longer reports.
func emitReviewFindings(emitter *events.Emitter, existing map[string]session.ReviewFinding, family map[string]string, diags []diagnostics.Diagnostic) {
	produced := producedFindings(diags)
	for _, d := range diags {
		family[d.Category] = d.Family
	}
	for id, f := range produced {
		if _, ok := existing[id]; !ok {
			emitter.Emit(events.ReviewFinding{Finding: events.ReviewFindingPayload{
				ID: f.ID, Category: f.Category, Severity: f.Severity, Message: f.Message, IsBlocking: f.IsBlocking,
			}})
		}
	}
	for id, prev := range existing {
		if prev.Status != session.FindingOpen {
			continue
		}
		if _, stillProduced := produced[id]; !stillProduced {
			emitter.Emit(events.ReviewDecision{Decision: events.ReviewDecisionPayload{
				FindingID: id, Decision: "dismiss", Reason: "no longer reported",
			}})
		}
	}
}

func severityLabel(d diagnostics.Diagnostic) string {
	if diagnostics.IsBlocking(d) {
		return "critical"
	}
	if d.Severity >= 6 {
		return "warning"
	}
	return "info"
}

func toWireDiagnostics(diags []diagnostics.Diagnostic) []events.WireDiagnostic {
	out := make([]events.WireDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, events.WireDiagnostic{
			Category: d.Category, Message: d.Message, Severity: d.Severity,
			Source: string(d.Source), Family: d.Family, Handling: string(d.Handling),
		})
	}
	return out
}

func toIterationDiffPayload(s diffutil.Summary) events.IterationDiffPayload {
	return events.IterationDiffPayload{
		AddedComponents: s.AddedComponents, RemovedComponents: s.RemovedComponents,
		ChangedComponentValues: s.ChangedComponentValues, TraceCountDelta: s.TraceCountDelta,
		Summary: fmt.Sprintf("+%d/-%d components, %d value changes, trace delta %d",
			s.AddedComponents, s.RemovedComponents, s.ChangedComponentValues, s.TraceCountDelta),
	}
}

// groupedDiagnosticsSummary renders one "[family] xN" line per distinct
// family, in first-seen order.
func groupedDiagnosticsSummary(diags []diagnostics.Diagnostic) string {
	counts := map[string]int{}
	var order []string
	for _, d := range diags {
		if _, ok := counts[d.Family]; !ok {
			order = append(order, d.Family)
		}
		counts[d.Family]++
	}
	var sb strings.Builder
	for _, f := range order {
		fmt.Fprintf(&sb, "[%s] x%d\n", f, counts[f])
	}
	return sb.String()
}

func composeFailureText(code string, diags []diagnostics.Diagnostic, reason stopcheck.Reason) string {
	var sb strings.Builder
	sb.WriteString("Generated a candidate circuit, but validation is still blocked.\n\n")
	if code != "" {
		sb.WriteString("```tsx\n")
		sb.WriteString(code)
		sb.WriteString("\n```\n\n")
	}
	sb.WriteString("Diagnostics:\n")
	sb.WriteString(groupedDiagnosticsSummary(diags))
	fmt.Fprintf(&sb, "\nStop reason: %s.\n", reason)
	return sb.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// deriveRequirements is the deterministic, low-cost heuristic step 4 calls
// for: split the prompt into clause-like fragments and keep the first
// four.
func deriveRequirements(prompt string) []session.RequirementItem {
	clauses := splitClauses(prompt)
	out := make([]session.RequirementItem, 0, 4)
	for i, c := range clauses {
		if i >= 4 {
			break
		}
		out = append(out, session.RequirementItem{ID: fmt.Sprintf("req-%d", i+1), Title: c})
	}
	return out
}

func splitClauses(prompt string) []string {
	replacer := strings.NewReplacer(" and ", ".", ";", ".", ",", ".")
	parts := strings.Split(replacer.Replace(prompt), ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// deriveArchitecture synthesizes the initial architecture via the
// collaborator, falling back to a single heuristic block on any error.
func (o *Orchestrator) deriveArchitecture(ctx context.Context, prompt string) ([]session.ArchitectureBlock, error) {
	if o.Architecture != nil {
		suggestions, err := o.Architecture.DeriveArchitecture(ctx, prompt)
		if err == nil && len(suggestions) > 0 {
			out := make([]session.ArchitectureBlock, 0, len(suggestions))
			for _, s := range suggestions {
				out = append(out, session.ArchitectureBlock{ID: s.ID, Label: s.Label, Status: s.Status})
			}
			return out, nil
		}
		if err != nil {
			return heuristicArchitecture(), err
		}
	}
	return heuristicArchitecture(), nil
}

func heuristicArchitecture() []session.ArchitectureBlock {
	return []session.ArchitectureBlock{{ID: "design", Label: "Core design", Status: "open"}}
}

// applyPlannedStrategy dispatches to the strategy package for the stop
// evaluator's chosen escalation and normalizes the three transforms' return
// shapes into one signature. Returns the input code unchanged for
// stopcheck.StrategyNormal.
func applyPlannedStrategy(s string, code string, cfg config.RuntimeConfig, reliefPass, reliefPasses int) (string, []string, *diagnostics.RawFinding) {
	switch s {
	case stopcheck.StrategyStructuralTraceRebuild:
		newCode, actions, finding := strategy.RebuildTraces(code)
		return newCode, actions, finding
	case stopcheck.StrategyTargetedCongestionRelief:
		passes := reliefPasses
		if passes <= 0 {
			passes = cfg.MinorReliefPasses
		}
		pass := reliefPass
		if pass <= 0 {
			pass = 1
		}
		scale := float64(pass) / float64(passes)
		newCode, actions := strategy.TargetedCongestionRelief(code, strategy.CongestionReliefParams{
			BoardScale:          scale,
			MaxBoardGrowthPct:   float64(cfg.MinorBoardGrowthCapPct),
			ComponentShiftMm:    float64(cfg.MinorComponentShiftMM),
			ComponentShiftCapMm: float64(cfg.MinorComponentShiftMM) * float64(passes),
		})
		return newCode, actions, nil
	case stopcheck.StrategyStructuralLayoutSpread:
		newCode, actions := strategy.StructuralLayoutSpread(code)
		return newCode, actions, nil
	default:
		return code, nil, nil
	}
}
