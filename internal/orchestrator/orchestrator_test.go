package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/codenerd-labs/circuitforge/internal/config"
	"github.com/codenerd-labs/circuitforge/internal/diagnostics"
	"github.com/codenerd-labs/circuitforge/internal/events"
	"github.com/codenerd-labs/circuitforge/internal/httpapi"
	"github.com/codenerd-labs/circuitforge/internal/perception"
	"github.com/codenerd-labs/circuitforge/internal/session"
	"github.com/codenerd-labs/circuitforge/internal/validate"
)

// TestMain verifies no run leaks a goroutine past its own completion: the
// supersession scenario in particular depends on blockingStream's goroutine
// actually observing ctx cancellation rather than leaking.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixedCodeStream always answers with the same fenced tsx block.
type fixedCodeStream struct{ code string }

func (f fixedCodeStream) Stream(ctx context.Context, prompt string) (<-chan perception.StreamEvent, error) {
	ch := make(chan perception.StreamEvent, 2)
	ch <- perception.StreamEvent{Kind: perception.StreamTextDelta, TextDelta: "```tsx\n" + f.code + "\n```"}
	ch <- perception.StreamEvent{Kind: perception.StreamFinalResult, Final: &perception.FinalResult{CostUSD: 0.01}}
	close(ch)
	return ch, nil
}

// noCodeStream never produces a fenced code block, forcing the attempt
// runner's synthesized attempt_timeout finding.
type noCodeStream struct{}

func (noCodeStream) Stream(ctx context.Context, prompt string) (<-chan perception.StreamEvent, error) {
	ch := make(chan perception.StreamEvent, 1)
	ch <- perception.StreamEvent{Kind: perception.StreamTextDelta, TextDelta: "still thinking, no code yet"}
	close(ch)
	return ch, nil
}

// blockingStream never produces anything until ctx is cancelled, for
// exercising supersession.
type blockingStream struct{}

func (blockingStream) Stream(ctx context.Context, prompt string) (<-chan perception.StreamEvent, error) {
	ch := make(chan perception.StreamEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// reportScriptChecker returns the next scripted report on each call,
// repeating the last one once exhausted.
type reportScriptChecker struct {
	reports []validate.Report
	calls   int
}

func (c *reportScriptChecker) Check(ctx context.Context, code string) (validate.Report, error) {
	i := c.calls
	c.calls++
	if len(c.reports) == 0 {
		return validate.Report{}, nil
	}
	if i < len(c.reports) {
		return c.reports[i], nil
	}
	return c.reports[len(c.reports)-1], nil
}

// alwaysTimeoutChecker never finishes before the caller's deadline.
type alwaysTimeoutChecker struct{ calls int }

func (c *alwaysTimeoutChecker) Check(ctx context.Context, code string) (validate.Report, error) {
	c.calls++
	select {
	case <-time.After(50 * time.Millisecond):
		return validate.Report{}, nil
	case <-ctx.Done():
		return validate.Report{}, ctx.Err()
	}
}

func collectEvents(emitter *events.Emitter) []events.Event {
	emitter.Close()
	var out []events.Event
	for ev := range emitter.Events() {
		out = append(out, ev)
	}
	return out
}

func eventsOfType[T events.Event](all []events.Event) []T {
	var out []T
	for _, e := range all {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func noInterferenceConfig() config.RuntimeConfig {
	cfg := config.Default()
	cfg.EnableConnectivityPreflight = false
	cfg.SignatureRepeatLimit = 10
	cfg.RetryStagnationLimit = 10
	cfg.AutorouterStallLimit = 10
	cfg.StructuralRepairTrigger = 10
	cfg.CompileValidateTimeoutMS = 10000
	return cfg
}

const sampleBoard = `<board width="50" height="50"/>
<component name="R1" pcbX="10" pcbY="10"/>
<component name="R2" pcbX="20" pcbY="20"/>
<connect pin="R1.1" net="net.sig"/>
<connect pin="R2.1" net="net.sig"/>`

func newOrchestrator(stream perception.ModelStream, checker validate.Checker, cfg config.RuntimeConfig) *Orchestrator {
	return New(session.NewMemoryStore(), session.NewRegistry(), stream, checker, nil, nil, cfg)
}

// S1: happy path with advisories — one blocking finding clears by the
// second attempt, an auto-fixable finding is dropped, a should-demote
// finding survives demoted, and the dismissed blocking/advisory findings
// surface as review_decision events.
func TestOrchestratorHappyPathWithAdvisories(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 3

	checker := &reportScriptChecker{reports: []validate.Report{
		{Findings: []diagnostics.RawFinding{
			{Category: "TRACE_COLLISION", Message: "trace collision detected near R1", Severity: 9, Source: diagnostics.SourceKicad},
			{Category: "PIN_CONFLICT_WARNING", Message: "pin conflict between R1 and R2", Severity: 6, Source: diagnostics.SourceTscircuit},
			{Category: "OFF_GRID_PLACEMENT", Message: "component placed off-grid", Severity: 3, Source: diagnostics.SourceKicad},
			{Category: "BOM_MISSING_MPN", Message: "bom entry missing mpn", Severity: 4, Source: diagnostics.SourceKicad},
		}},
		{Findings: []diagnostics.RawFinding{
			{Category: "BOM_MISSING_MPN", Message: "bom entry missing mpn", Severity: 4, Source: diagnostics.SourceKicad},
		}},
	}}

	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design a buck regulator", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	plans := eventsOfType[events.RepairPlan](all)
	require.NotEmpty(t, plans)

	results := eventsOfType[events.RepairResult](all)
	require.Len(t, results, 2)
	require.False(t, results[0].Result.Revalidated)
	require.False(t, results[1].Result.Revalidated)

	var sawAutoFixed, sawDemoted bool
	for _, r := range results {
		if r.Result.AutoFixedCount > 0 {
			sawAutoFixed = true
		}
		if r.Result.DemotedCount > 0 {
			sawDemoted = true
		}
	}
	require.True(t, sawAutoFixed, "expected at least one attempt to auto-fix a finding")
	require.True(t, sawDemoted, "expected at least one attempt to demote a finding")

	decisions := eventsOfType[events.ReviewDecision](all)
	var sawPinConflictDismiss bool
	for _, d := range decisions {
		if d.Decision.Decision == "dismiss" && strings.Contains(d.Decision.FindingID, "PIN_CONFLICT_WARNING") {
			sawPinConflictDismiss = true
		}
	}
	require.True(t, sawPinConflictDismiss)

	retryResults := eventsOfType[events.RetryResult](all)
	require.NotEmpty(t, retryResults)
	require.Equal(t, "clean", retryResults[len(retryResults)-1].Status)

	summaries := eventsOfType[events.FinalSummary](all)
	require.Len(t, summaries, 1)

	dones := eventsOfType[events.Done](all)
	errs := eventsOfType[events.Error](all)
	require.Len(t, dones, 1)
	require.Empty(t, errs)
}

// S2: the generation model never produces a code block; every attempt
// synthesizes attempt_timeout and the compiler/validator is never invoked.
func TestOrchestratorModelTimeoutCascade(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 3

	checker := &reportScriptChecker{}
	o := newOrchestrator(noCodeStream{}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	starts := eventsOfType[events.RetryStart](all)
	require.Len(t, starts, 3)

	validationErrors := eventsOfType[events.ValidationErrors](all)
	require.Len(t, validationErrors, 3)
	for _, v := range validationErrors {
		var found bool
		for _, d := range v.Diagnostics {
			if d.Category == "attempt_timeout" {
				found = true
			}
		}
		require.True(t, found, "expected attempt_timeout in every validation_errors event")
	}

	results := eventsOfType[events.RepairResult](all)
	require.Len(t, results, 3)

	retryResults := eventsOfType[events.RetryResult](all)
	require.Equal(t, "failed", retryResults[len(retryResults)-1].Status)
	require.Equal(t, "max_attempts", retryResults[len(retryResults)-1].Reason)

	require.Equal(t, 0, checker.calls)

	dones := eventsOfType[events.Done](all)
	require.Len(t, dones, 1)
}

// S3: the model produces valid code every time, but compile+validate never
// finishes before the deadline.
func TestOrchestratorValidatorTimeoutCascade(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 3
	cfg.CompileValidateTimeoutMS = 5

	checker := &alwaysTimeoutChecker{}
	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	starts := eventsOfType[events.RetryStart](all)
	require.Len(t, starts, 3)

	validationErrors := eventsOfType[events.ValidationErrors](all)
	require.Len(t, validationErrors, 3)
	for _, v := range validationErrors {
		var found bool
		for _, d := range v.Diagnostics {
			if d.Category == "compile_validate_timeout" {
				found = true
			}
		}
		require.True(t, found)
	}

	retryResults := eventsOfType[events.RetryResult](all)
	require.Equal(t, "max_attempts", retryResults[len(retryResults)-1].Reason)

	require.Equal(t, 3, checker.calls)
}

// S4: a low-signal pin-conflict finding never blocks the gate and is
// reported at "info" severity.
func TestOrchestratorLowSignalPinConflictDemotion(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 3

	checker := &reportScriptChecker{reports: []validate.Report{
		{Findings: []diagnostics.RawFinding{
			{Category: "PIN_CONFLICT_LOW_SIGNAL", Message: "pin conflict: unspecified connected to unspecified", Severity: 7, Source: diagnostics.SourceTscircuit},
		}},
	}}
	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	findings := eventsOfType[events.ReviewFinding](all)
	require.NotEmpty(t, findings)
	require.Equal(t, "PIN_CONFLICT_LOW_SIGNAL", findings[0].Finding.Category)
	require.Equal(t, "info", findings[0].Finding.Severity)
	require.False(t, findings[0].Finding.IsBlocking)

	retryResults := eventsOfType[events.RetryResult](all)
	require.Len(t, retryResults, 1)
	require.Equal(t, "clean", retryResults[0].Status)

	var sawLowSignalDismiss bool
	for _, d := range eventsOfType[events.ReviewDecision](all) {
		if d.Decision.Reason == "low-signal" {
			sawLowSignalDismiss = true
		}
	}
	require.True(t, sawLowSignalDismiss)
}

// S5: a persistent autorouter exhaustion signal, once a targeted congestion
// relief pass has actually run and still hasn't reduced blocking findings,
// stops the run early — well before the attempt ceiling.
func TestOrchestratorAutorouterExhaustionEarlyStop(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 6
	cfg.AutorouterStallLimit = 2
	cfg.StructuralRepairTrigger = 2
	cfg.MinorReliefPasses = 2
	cfg.SignatureRepeatLimit = 10
	cfg.RetryStagnationLimit = 10

	checker := &reportScriptChecker{reports: []validate.Report{
		{Findings: []diagnostics.RawFinding{
			{Category: "pcb_autorouting_error", Message: "autorouter could not complete routing", Severity: 9, Source: diagnostics.SourceKicad},
		}},
	}}
	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something dense", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	starts := eventsOfType[events.RetryStart](all)
	require.Less(t, len(starts), 6, "expected an early stop, well before the attempt ceiling")

	var sawCongestionRelief bool
	for _, p := range eventsOfType[events.RepairPlan](all) {
		if p.Plan.Strategy == "targeted_congestion_relief" {
			sawCongestionRelief = true
		}
	}
	require.True(t, sawCongestionRelief)

	retryResults := eventsOfType[events.RetryResult](all)
	require.Equal(t, "autorouter_exhaustion", retryResults[len(retryResults)-1].Reason)

	texts := eventsOfType[events.Text](all)
	require.Len(t, texts, 1)
	require.Contains(t, texts[0].Content, "Generated a candidate circuit, but validation is still blocked.")
	require.Contains(t, texts[0].Content, "```tsx")
}

// S6: a missing trace-endpoint signal escalates to structural trace
// rebuild, and once the structural repair budget is spent on the final
// attempt, the run stops with the specific reason rather than the generic
// attempt-ceiling fallback.
func TestOrchestratorStructuralTraceRebuildEscalation(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 3
	cfg.MaxStructuralRepairAttempts = 1
	cfg.SignatureRepeatLimit = 10
	cfg.RetryStagnationLimit = 10

	checker := &reportScriptChecker{reports: []validate.Report{
		{Findings: []diagnostics.RawFinding{
			{Category: "source_trace_missing_endpoint", Message: "missing endpoint for net sig", Severity: 9, Source: diagnostics.SourceTscircuit},
		}},
	}}
	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)

	var sawTraceRebuild bool
	for _, p := range eventsOfType[events.RepairPlan](all) {
		if p.Plan.Strategy == "structural_trace_rebuild" {
			sawTraceRebuild = true
		}
	}
	require.True(t, sawTraceRebuild)

	retryResults := eventsOfType[events.RetryResult](all)
	require.Equal(t, "structural_repair_exhausted", retryResults[len(retryResults)-1].Reason)

	texts := eventsOfType[events.Text](all)
	require.Len(t, texts, 1)
	require.Contains(t, texts[0].Content, "Stop reason: structural_repair_exhausted.")
	require.Contains(t, texts[0].Content, "[source_trace_missing_endpoint] x")
}

// Every run terminates with exactly one of done/error, never both, never
// neither.
func TestOrchestratorEmitsExactlyOneTerminalEvent(t *testing.T) {
	cfg := noInterferenceConfig()
	cfg.MaxRepairAttempts = 1
	checker := &reportScriptChecker{}
	o := newOrchestrator(fixedCodeStream{code: sampleBoard}, checker, cfg)
	emitter := events.NewEmitter(256)

	o.Run(context.Background(), httpapi.DesignRequest{Prompt: "design something", Phase: "implementation"}, emitter)

	all := collectEvents(emitter)
	dones := eventsOfType[events.Done](all)
	errs := eventsOfType[events.Error](all)
	require.Equal(t, 1, len(dones)+len(errs))
}

// A superseded run never reaches its terminal event: a second Run for the
// same session cancels the first before it can finish.
func TestOrchestratorSupersessionSilencesSuperseded(t *testing.T) {
	cfg := noInterferenceConfig()
	store := session.NewMemoryStore()
	registry := session.NewRegistry()
	checker := &reportScriptChecker{reports: []validate.Report{{}}}

	first := New(store, registry, blockingStream{}, checker, nil, nil, cfg)
	firstEmitter := events.NewEmitter(64)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		first.Run(context.Background(), httpapi.DesignRequest{SessionID: "shared", Prompt: "design something", Phase: "implementation"}, firstEmitter)
	}()

	// Give the first run time to register and start blocking on the stream.
	time.Sleep(20 * time.Millisecond)

	second := New(store, registry, fixedCodeStream{code: sampleBoard}, checker, nil, nil, cfg)
	secondEmitter := events.NewEmitter(256)
	second.Run(context.Background(), httpapi.DesignRequest{SessionID: "shared", Prompt: "design something", Phase: "implementation"}, secondEmitter)

	<-firstDone

	firstAll := collectEvents(firstEmitter)
	require.Empty(t, eventsOfType[events.Done](firstAll))
	require.Empty(t, eventsOfType[events.Error](firstAll))

	secondAll := collectEvents(secondEmitter)
	require.Len(t, eventsOfType[events.Done](secondAll), 1)
}
